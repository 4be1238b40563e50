package utils_test

// Local comparison helpers for asserting on the slice/map utilities in
// slice_test.go. Only the shapes these tests actually exercise are kept;
// there is no separate general-purpose comparison package.

func sliceEq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i, va := range a {
		if va != b[i] {
			return false
		}
	}
	return true
}

func mapEq[K, V comparable](a, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		if vb, ok := b[k]; !ok || vb != va {
			return false
		}
	}
	return true
}

// sliceContentEq reports whether a and b hold the same elements irrespective
// of order, treating duplicates as distinct (a bag/multiset comparison).
func sliceContentEq[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}

	remaining := make(map[int]T, len(b))
	for i, v := range b {
		remaining[i] = v
	}

NEXT:
	for _, va := range a {
		for k, vb := range remaining {
			if va == vb {
				delete(remaining, k)
				continue NEXT
			}
		}
		return false
	}

	return len(remaining) == 0
}
