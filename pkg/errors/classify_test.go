package errors_test

import (
	"testing"

	xe "github.com/basaltrun/slurmpipe/pkg/errors"
)

func TestClassify(t *testing.T) {
	t.Run("recovers the class through Wrap layers", func(t *testing.T) {
		base := xe.WithClass(xe.ClassExpansion, xe.New("bad generator value"))
		wrapped := xe.Wrap(xe.WrapWithNote("expanding job foo", base))

		if got := xe.Classify(wrapped); got != xe.ClassExpansion {
			t.Errorf("got class %s, want %s", got, xe.ClassExpansion)
		}
	})

	t.Run("unclassified errors report ClassUnknown", func(t *testing.T) {
		if got := xe.Classify(xe.New("plain")); got != xe.ClassUnknown {
			t.Errorf("got class %s, want %s", got, xe.ClassUnknown)
		}
	})
}
