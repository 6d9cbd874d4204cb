package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestInvariantError(t *testing.T) {
	err := fmt.Errorf("rebuild: %w", Invariant("duplicate index", []r3.Vec{{X: 1, Y: 2, Z: 3}}, 7, 7))
	if !errors.Is(err, ErrInvariant) {
		t.Fatal("does not wrap ErrInvariant")
	}
	var ie *InvariantError
	if !errors.As(err, &ie) {
		t.Fatal("not an InvariantError")
	}
	if !strings.Contains(ie.Where, "TestInvariantError") {
		t.Errorf("located at %q", ie.Where)
	}
	msg := err.Error()
	for _, want := range []string{"duplicate index", "indices=[7 7]", "(1,2,3)"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q lacks %q", msg, want)
		}
	}
}
