package param

import (
	"sort"

	"github.com/basaltrun/slurmpipe/pkg/utils"
)

// CartesianProduct expands a "generator" parameter block into one map per
// combination, adapted from the teacher's pkg/utils/combination.MapCartesian.
//
// Unlike the teacher's version, which recurses over the basis map's Go
// iteration order, this sorts keys lexicographically before recursing so
// that expansion order is stable across runs: the last key (alphabetically)
// varies fastest, matching the spec's determinism requirement.
//
// basis is assumed to hold no empty dimensions; generator rejects an
// explicit empty-list generator value before it ever reaches here. An
// empty basis map (no keys at all) still yields an empty product.
func CartesianProduct(basis map[string][]Value) []map[string]Value {
	dims := len(basis)
	if dims == 0 {
		return []map[string]Value{}
	}

	keys := make([]string, 0, dims)
	for k := range basis {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var cartesian func(known []map[string]Value, rem []string) []map[string]Value
	cartesian = func(known []map[string]Value, rem []string) []map[string]Value {
		if len(rem) == 0 {
			return known
		}

		topic := rem[0]
		next := make([]map[string]Value, 0, len(known)*len(basis[topic]))

		for _, record := range known {
			for _, item := range basis[topic] {
				clone := copyRecord(record)
				clone[topic] = item
				next = append(next, clone)
			}
		}

		return cartesian(next, rem[1:])
	}

	seed := keys[0]
	rem := keys[1:]

	known := utils.Map(basis[seed], func(item Value) map[string]Value {
		return map[string]Value{seed: item}
	})

	return cartesian(known, rem)
}

func copyRecord(base map[string]Value) map[string]Value {
	next := make(map[string]Value, len(base))
	for k, v := range base {
		next[k] = v
	}
	return next
}
