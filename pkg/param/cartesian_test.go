package param_test

import (
	"testing"

	"github.com/basaltrun/slurmpipe/pkg/param"
)

func strs(vs ...string) []param.Value {
	out := make([]param.Value, len(vs))
	for i, v := range vs {
		out[i] = param.String(v)
	}
	return out
}

func str(v param.Value) string {
	s, _ := v.AsString()
	return s
}

func TestCartesianProduct(t *testing.T) {
	t.Run("generates Cartesian product with last key fastest, in lexicographic key order", func(t *testing.T) {
		basis := map[string][]param.Value{
			"top":    strs("t-shirt", "blouse"),
			"bottom": strs("jeans", "skirt"),
		}

		actual := param.CartesianProduct(basis)

		// Keys sort lexicographically as bottom, top, so top, the last
		// key, varies fastest and bottom varies slowest.
		expected := []map[string]string{
			{"bottom": "jeans", "top": "t-shirt"},
			{"bottom": "jeans", "top": "blouse"},
			{"bottom": "skirt", "top": "t-shirt"},
			{"bottom": "skirt", "top": "blouse"},
		}

		if len(actual) != len(expected) {
			t.Fatalf("length mismatch: got %d want %d", len(actual), len(expected))
		}
		for i, want := range expected {
			got := actual[i]
			if str(got["top"]) != want["top"] || str(got["bottom"]) != want["bottom"] {
				t.Errorf("at %d: got %+v want %+v", i, got, want)
			}
		}
	})

	t.Run("empty basis generates empty", func(t *testing.T) {
		actual := param.CartesianProduct(map[string][]param.Value{})
		if len(actual) != 0 {
			t.Error("unexpected items found: ", actual)
		}
	})

	t.Run("single dimension just flattens", func(t *testing.T) {
		basis := map[string][]param.Value{
			"shape": strs("tic", "tac", "toe"),
		}

		actual := param.CartesianProduct(basis)
		if len(actual) != 3 {
			t.Fatalf("unexpected length: %d", len(actual))
		}
		for i, want := range []string{"tic", "tac", "toe"} {
			if str(actual[i]["shape"]) != want {
				t.Errorf("at %d: got %s want %s", i, str(actual[i]["shape"]), want)
			}
		}
	})
}
