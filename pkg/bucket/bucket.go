// Package bucket partitions a job's expanded work packages into resource
// buckets by evaluating each special case's file predicate against the
// record's referenced data directory, per spec.md §4.3.
package bucket

import (
	"os"
	"path/filepath"

	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// FileConstraint requires a path (relative to a record's data directory)
// to exist and optionally fall within a size range.
type FileConstraint struct {
	Path    string
	SizeMin int64 // 0 means unset
	SizeMax int64 // 0 means unset (unbounded)
}

// SpecialCase bundles a predicate (all FileConstraints must hold) with an
// alternative resource allocation and a bucket name suffix.
type SpecialCase struct {
	Name      string
	Files     []FileConstraint
	Resources workpkg.Resources
}

// Bucket groups work packages that share a resource allocation, to be
// submitted together as one array job.
type Bucket struct {
	Name      string
	Resources workpkg.Resources
	Packages  []*workpkg.WorkPackage
}

// StatFunc abstracts os.Stat so tests can fake file sizes without
// touching the filesystem.
type StatFunc func(path string) (size int64, ok bool)

func OSStat(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	return info.Size(), true
}

// DataDirFunc resolves a record's referenced data directory, against
// which special-case file paths are evaluated.
type DataDirFunc func(params map[string]param.Value) string

// Partition assigns each of packages to the first matching special case's
// bucket, in config order, falling back to the named default bucket.
// records[i] must correspond to packages[i] so predicates can be evaluated
// against the original parameter record.
//
// A special case whose predicate matches zero packages produces no bucket,
// per spec.md §8's boundary case.
func Partition(
	jobName string,
	defaultResources workpkg.Resources,
	cases []SpecialCase,
	packages []*workpkg.WorkPackage,
	dataDir DataDirFunc,
	stat StatFunc,
	warn func(msg string),
) []Bucket {
	byCase := make(map[string]*Bucket, len(cases)+1)
	order := []string{jobName}
	byCase[jobName] = &Bucket{Name: jobName, Resources: defaultResources}

	for _, wp := range packages {
		sc, matched := matchSpecialCase(cases, wp.Params, dataDir, stat, warn)
		name := jobName
		resources := defaultResources
		if matched {
			name = jobName + "." + sc.Name
			resources = sc.Resources
		}
		b, ok := byCase[name]
		if !ok {
			b = &Bucket{Name: name, Resources: resources}
			byCase[name] = b
			order = append(order, name)
		}
		b.Packages = append(b.Packages, wp)
	}

	buckets := make([]Bucket, 0, len(order))
	for _, name := range order {
		b := byCase[name]
		if len(b.Packages) == 0 {
			continue
		}
		buckets = append(buckets, *b)
	}
	return buckets
}

func matchSpecialCase(
	cases []SpecialCase,
	params map[string]param.Value,
	dataDir DataDirFunc,
	stat StatFunc,
	warn func(string),
) (SpecialCase, bool) {
	for _, sc := range cases {
		if predicateHolds(sc, params, dataDir, stat, warn) {
			return sc, true
		}
	}
	return SpecialCase{}, false
}

// predicateHolds evaluates all of a special case's file constraints. A
// missing file or an unreadable stat makes the predicate conservatively
// false (the package falls to the default bucket) with a warning, per
// spec.md §4.3.
func predicateHolds(
	sc SpecialCase,
	params map[string]param.Value,
	dataDir DataDirFunc,
	stat StatFunc,
	warn func(string),
) bool {
	if len(sc.Files) == 0 {
		return false
	}

	base := dataDir(params)
	for _, fc := range sc.Files {
		path := filepath.Join(base, fc.Path)
		size, ok := stat(path)
		if !ok {
			warn("special case " + sc.Name + ": " + path + " is missing or unreadable; falling back to default bucket")
			return false
		}
		if fc.SizeMin > 0 && size < fc.SizeMin {
			return false
		}
		if fc.SizeMax > 0 && size > fc.SizeMax {
			return false
		}
	}
	return true
}
