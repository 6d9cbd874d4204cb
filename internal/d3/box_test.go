package d3

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestBoxSplitTilesSpace(t *testing.T) {
	b := Box{Min: r3.Vec{}, Max: r3.Vec{X: 2, Y: 1, Z: 1}}
	axis := b.LongestAxis()
	if axis != 0 {
		t.Fatalf("longest axis = %d, want 0", axis)
	}
	lo, hi := b.Split(axis, 1)
	closed := [3]bool{true, true, true}
	loOpen := [3]bool{false, true, true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		p := b.Random(rng)
		inLo := lo.ContainsHalfOpen(p, loOpen)
		inHi := hi.ContainsHalfOpen(p, closed)
		if inLo == inHi {
			t.Fatalf("point %v owned by lo=%v hi=%v", p, inLo, inHi)
		}
	}
	// Point exactly on the splitting plane belongs to the upper half only.
	p := r3.Vec{X: 1, Y: 0.5, Z: 0.5}
	if lo.ContainsHalfOpen(p, loOpen) || !hi.ContainsHalfOpen(p, closed) {
		t.Error("plane point not uniquely owned by upper half")
	}
}

func TestBoxDist2(t *testing.T) {
	b := Box{Min: r3.Vec{}, Max: Elem(1)}
	tests := []struct {
		p    r3.Vec
		want float64
	}{
		{r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 0},
		{r3.Vec{X: 2, Y: 0.5, Z: 0.5}, 1},
		{r3.Vec{X: 2, Y: 2, Z: 0.5}, 2},
		{r3.Vec{X: -1, Y: -1, Z: -1}, 3},
	}
	for _, test := range tests {
		got := b.Dist2(test.p)
		if got != test.want {
			t.Errorf("Dist2(%v) = %g, want %g", test.p, got, test.want)
		}
	}
}

func TestReflect(t *testing.T) {
	p := r3.Vec{X: 1, Y: 2, Z: 3}
	got := Reflect(p, r3.Vec{Z: 1}, r3.Vec{Z: 1})
	want := r3.Vec{X: 1, Y: 2, Z: -1}
	if !EqualWithin(got, want, 1e-12) {
		t.Errorf("Reflect = %v, want %v", got, want)
	}
	o := Orthogonal(r3.Vec{X: 0.3, Y: -2, Z: 0.1})
	if d := r3.Dot(o, r3.Vec{X: 0.3, Y: -2, Z: 0.1}); d > 1e-12 || d < -1e-12 {
		t.Errorf("Orthogonal not perpendicular: dot=%g", d)
	}
}
