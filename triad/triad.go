// Package triad implements alignment triads: three mutually orthogonal
// unit directions describing the desired local orientation of mesh cells.
// Direction signs carry no meaning, only the lines they span.
package triad

import (
	"math"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Triad holds three directions. A zero direction is unset.
type Triad [3]r3.Vec

// Identity returns the cartesian triad.
func Identity() Triad {
	return Triad{{X: 1}, {Y: 1}, {Z: 1}}
}

// FromNormal returns a triad whose first direction is the unit normal n.
// The two tangential directions are arbitrary but orthonormal.
func FromNormal(n r3.Vec) Triad {
	n = r3.Unit(n)
	t1 := d3.Orthogonal(n)
	return Triad{n, t1, r3.Cross(n, t1)}
}

// Set returns true if direction i is set.
func (t Triad) Set(i int) bool { return r3.Norm2(t[i]) > 0 }

// IsSet returns true if all three directions are set.
func (t Triad) IsSet() bool { return t.Set(0) && t.Set(1) && t.Set(2) }

// NSet returns the number of set directions.
func (t Triad) NSet() (n int) {
	for i := range t {
		if t.Set(i) {
			n++
		}
	}
	return n
}

// Orthonormalize completes and orthonormalizes a partially set triad using
// Gram-Schmidt in direction order. An unset triad is returned unchanged.
func (t Triad) Orthonormalize() Triad {
	var out Triad
	n := 0
	for i := range t {
		if !t.Set(i) {
			continue
		}
		v := t[i]
		for j := 0; j < n; j++ {
			v = r3.Sub(v, r3.Scale(r3.Dot(v, out[j]), out[j]))
		}
		if r3.Norm2(v) < 1e-24 {
			continue // linearly dependent on previous directions.
		}
		out[n] = r3.Unit(v)
		n++
	}
	switch n {
	case 0:
		return Triad{}
	case 1:
		out[1] = d3.Orthogonal(out[0])
		fallthrough
	case 2:
		out[2] = r3.Cross(out[0], out[1])
	}
	return out
}

// Polar returns the orthonormal triad closest to t in the Frobenius sense,
// the orthogonal factor of the polar decomposition of the matrix with rows t.
// Triads that are not fully set are orthonormalized instead.
func (t Triad) Polar() Triad {
	if !t.IsSet() {
		return t.Orthonormalize()
	}
	m := mat.NewDense(3, 3, []float64{
		t[0].X, t[0].Y, t[0].Z,
		t[1].X, t[1].Y, t[1].Z,
		t[2].X, t[2].Y, t[2].Z,
	})
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return t.Orthonormalize()
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	var out Triad
	for i := range out {
		out[i] = r3.Vec{X: r.At(i, 0), Y: r.At(i, 1), Z: r.At(i, 2)}
	}
	return out
}

// Equal returns true if every direction of t is within tol of the same
// direction of o, component-wise.
func (t Triad) Equal(o Triad, tol float64) bool {
	for i := range t {
		if !d3.EqualWithin(t[i], o[i], tol) {
			return false
		}
	}
	return true
}

// Scale returns t with every direction scaled by f.
func (t Triad) Scale(f float64) Triad {
	return Triad{r3.Scale(f, t[0]), r3.Scale(f, t[1]), r3.Scale(f, t[2])}
}

// Add returns the direction-wise sum of t and o.
func (t Triad) Add(o Triad) Triad {
	return Triad{r3.Add(t[0], o[0]), r3.Add(t[1], o[1]), r3.Add(t[2], o[2])}
}

// BestAligned returns the directions of b reordered and sign-flipped so that
// b's i'th direction is the one most parallel to a's i'th direction.
// Unset directions of a yield unset directions in the result.
func BestAligned(a, b Triad) Triad {
	var out Triad
	for i := range a {
		if !a.Set(i) {
			continue
		}
		j, dot := mostParallel(a[i], b)
		if j < 0 {
			continue
		}
		out[i] = r3.Scale(sign(dot), b[j])
	}
	return out
}

// BestAlignedDirections returns, for every direction of a, the unit bisector
// of that direction and the most parallel direction of b with its sign
// flipped to match.
func BestAlignedDirections(a, b Triad) [3]r3.Vec {
	var dirs [3]r3.Vec
	for i := range a {
		if !a.Set(i) {
			continue
		}
		j, dot := mostParallel(a[i], b)
		if j < 0 {
			dirs[i] = r3.Unit(a[i])
			continue
		}
		sum := r3.Add(a[i], r3.Scale(sign(dot), b[j]))
		if r3.Norm2(sum) == 0 {
			dirs[i] = r3.Unit(a[i])
			continue
		}
		dirs[i] = r3.Unit(sum)
	}
	return dirs
}

// Average returns the weighted average of triads ts expressed in ref's frame
// and projected back onto the orthonormal triads. Unset triads are ignored.
// If no triad contributes ref is returned.
func Average(ref Triad, ts []Triad, weights []float64) Triad {
	var sum Triad
	contrib := 0
	for i, t := range ts {
		if !t.IsSet() {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		sum = sum.Add(BestAligned(ref, t).Scale(w))
		contrib++
	}
	if contrib == 0 {
		return ref
	}
	return sum.Polar()
}

// MisalignmentAngle returns the largest angle in radians between a direction
// of a and its best aligned direction in b.
func MisalignmentAngle(a, b Triad) float64 {
	var worst float64
	for i := range a {
		if !a.Set(i) {
			continue
		}
		_, dot := mostParallel(r3.Unit(a[i]), b)
		c := math.Min(1, math.Abs(dot))
		worst = math.Max(worst, math.Acos(c))
	}
	return worst
}

func mostParallel(v r3.Vec, b Triad) (idx int, dot float64) {
	idx = -1
	best := -1.0
	for j := range b {
		if !b.Set(j) {
			continue
		}
		d := r3.Dot(v, b[j])
		if math.Abs(d) > best {
			best = math.Abs(d)
			idx = j
			dot = d
		}
	}
	return idx, dot
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
