package bucket_test

import (
	"testing"

	"github.com/basaltrun/slurmpipe/pkg/bucket"
	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

func fakeStat(sizes map[string]int64) bucket.StatFunc {
	return func(path string) (int64, bool) {
		size, ok := sizes[path]
		return size, ok
	}
}

func TestPartitionSpecialCaseMatchesSubset(t *testing.T) {
	// spec.md §8 scenario 3: 3 records, special case small-cities requires
	// geom.csv size_max=20000; records 1,3 have size 10000, record 2 has 50000.
	packages := []*workpkg.WorkPackage{
		workpkg.New(workpkg.Key{JobName: "feature-engineering", Index: 0}, map[string]param.Value{"city": param.String("a")}, workpkg.Resources{}),
		workpkg.New(workpkg.Key{JobName: "feature-engineering", Index: 1}, map[string]param.Value{"city": param.String("b")}, workpkg.Resources{}),
		workpkg.New(workpkg.Key{JobName: "feature-engineering", Index: 2}, map[string]param.Value{"city": param.String("c")}, workpkg.Resources{}),
	}

	dataDir := func(params map[string]param.Value) string {
		city, _ := params["city"].AsString()
		return "/data/" + city
	}

	stat := fakeStat(map[string]int64{
		"/data/a/geom.csv": 10000,
		"/data/b/geom.csv": 50000,
		"/data/c/geom.csv": 10000,
	})

	special := []bucket.SpecialCase{
		{
			Name:      "small-cities",
			Files:     []bucket.FileConstraint{{Path: "geom.csv", SizeMax: 20000}},
			Resources: workpkg.Resources{CPUs: 1},
		},
	}

	var warnings []string
	buckets := bucket.Partition(
		"feature-engineering",
		workpkg.Resources{CPUs: 4},
		special,
		packages,
		dataDir,
		stat,
		func(msg string) { warnings = append(warnings, msg) },
	)

	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	small := findBucket(t, buckets, "feature-engineering.small-cities")
	if len(small.Packages) != 2 {
		t.Errorf("expected 2 packages in small-cities bucket, got %d", len(small.Packages))
	}
	if small.Packages[0].Index != 0 || small.Packages[1].Index != 2 {
		t.Errorf("expected original records 0,2 in small-cities bucket, got %d,%d", small.Packages[0].Index, small.Packages[1].Index)
	}

	def := findBucket(t, buckets, "feature-engineering")
	if len(def.Packages) != 1 || def.Packages[0].Index != 1 {
		t.Errorf("expected only record 1 in default bucket, got %+v", def.Packages)
	}
}

func TestPartitionUnmatchedSpecialCaseProducesNoBucket(t *testing.T) {
	packages := []*workpkg.WorkPackage{
		workpkg.New(workpkg.Key{JobName: "job", Index: 0}, map[string]param.Value{}, workpkg.Resources{}),
	}

	stat := fakeStat(map[string]int64{"/data/geom.csv": 99999})
	special := []bucket.SpecialCase{
		{Name: "small", Files: []bucket.FileConstraint{{Path: "geom.csv", SizeMax: 100}}},
	}

	buckets := bucket.Partition(
		"job", workpkg.Resources{}, special, packages,
		func(map[string]param.Value) string { return "/data" },
		stat,
		func(string) {},
	)

	if len(buckets) != 1 {
		t.Fatalf("expected only the default bucket, got %d buckets", len(buckets))
	}
	if buckets[0].Name != "job" {
		t.Errorf("expected default bucket name job, got %s", buckets[0].Name)
	}
}

func TestPartitionMissingFileFallsBackWithWarning(t *testing.T) {
	packages := []*workpkg.WorkPackage{
		workpkg.New(workpkg.Key{JobName: "job", Index: 0}, map[string]param.Value{}, workpkg.Resources{}),
	}

	special := []bucket.SpecialCase{
		{Name: "small", Files: []bucket.FileConstraint{{Path: "missing.csv", SizeMax: 100}}},
	}

	var warnings []string
	buckets := bucket.Partition(
		"job", workpkg.Resources{}, special, packages,
		func(map[string]param.Value) string { return "/data" },
		fakeStat(nil),
		func(msg string) { warnings = append(warnings, msg) },
	)

	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %d", len(warnings))
	}
	if len(buckets) != 1 || buckets[0].Name != "job" {
		t.Errorf("expected package to fall back to default bucket, got %+v", buckets)
	}
}

func findBucket(t *testing.T, buckets []bucket.Bucket, name string) bucket.Bucket {
	t.Helper()
	for _, b := range buckets {
		if b.Name == name {
			return b
		}
	}
	t.Fatalf("bucket %s not found among %+v", name, buckets)
	return bucket.Bucket{}
}
