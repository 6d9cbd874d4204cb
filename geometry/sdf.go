// Package geometry describes the surfaces a mesh conforms to: signed
// distance shapes, triangulated surfaces and their feature edges and points.
package geometry

import (
	"math"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// SDF is a signed distance function. Evaluate is negative inside the solid.
// It need not be exact away from the surface but must not overestimate the
// distance.
type SDF interface {
	Evaluate(p r3.Vec) float64
	// Bounds returns a box containing the solid.
	Bounds() r3.Box
}

// Sphere returns the exact SDF of a sphere.
func Sphere(center r3.Vec, radius float64) SDF {
	return &sphere{c: center, r: radius}
}

type sphere struct {
	c r3.Vec
	r float64
}

func (s *sphere) Evaluate(p r3.Vec) float64 { return r3.Norm(r3.Sub(p, s.c)) - s.r }

func (s *sphere) Bounds() r3.Box {
	return r3.Box(d3.CenteredBox(s.c, d3.Elem(2*s.r)))
}

// Box returns the exact SDF of an axis aligned box.
func Box(b r3.Box) SDF {
	bb := d3.Box(b)
	return &box{c: bb.Center(), half: r3.Scale(0.5, bb.Size())}
}

type box struct {
	c, half r3.Vec
}

func (s *box) Evaluate(p r3.Vec) float64 {
	d := r3.Sub(d3.AbsElem(r3.Sub(p, s.c)), s.half)
	outside := r3.Norm(d3.MaxElem(d, r3.Vec{}))
	inside := math.Min(d3.Max(d), 0)
	return outside + inside
}

func (s *box) Bounds() r3.Box {
	return r3.Box{Min: r3.Sub(s.c, s.half), Max: r3.Add(s.c, s.half)}
}

// Invert swaps the inside and outside of s. Its bounds are those of s.
func Invert(s SDF) SDF { return inverted{s} }

type inverted struct{ SDF }

func (s inverted) Evaluate(p r3.Vec) float64 { return -s.SDF.Evaluate(p) }

// Gradient returns the unit gradient of s at p by central differences of
// step eps.
func Gradient(s SDF, p r3.Vec, eps float64) r3.Vec {
	g := r3.Vec{
		X: s.Evaluate(r3.Add(p, r3.Vec{X: eps})) - s.Evaluate(r3.Add(p, r3.Vec{X: -eps})),
		Y: s.Evaluate(r3.Add(p, r3.Vec{Y: eps})) - s.Evaluate(r3.Add(p, r3.Vec{Y: -eps})),
		Z: s.Evaluate(r3.Add(p, r3.Vec{Z: eps})) - s.Evaluate(r3.Add(p, r3.Vec{Z: -eps})),
	}
	if r3.Norm2(g) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(g)
}

// Project returns the point of the surface of s closest to p and the outward
// unit normal there, refining the gradient estimate a few times.
func Project(s SDF, p r3.Vec, eps float64) (q, n r3.Vec) {
	q = p
	for i := 0; i < 4; i++ {
		d := s.Evaluate(q)
		n = Gradient(s, q, eps)
		if n == (r3.Vec{}) {
			return q, n
		}
		q = r3.Sub(q, r3.Scale(d, n))
		if math.Abs(d) <= eps {
			break
		}
	}
	return q, Gradient(s, q, eps)
}

// segmentCrossings returns the parameters t in [0, 1] at which the segment
// a-b crosses the surface of s. The segment is sphere traced so crossings
// closer together than tol may be missed.
func segmentCrossings(s SDF, a, b r3.Vec, tol float64) []float64 {
	const maxSteps = 4096
	ab := r3.Sub(b, a)
	length := r3.Norm(ab)
	if length == 0 {
		return nil
	}
	at := func(t float64) float64 { return s.Evaluate(r3.Add(a, r3.Scale(t, ab))) }
	eps := tol / length
	var out []float64
	t := 0.0
	f := at(0)
	for steps := 0; t < 1 && steps < maxSteps; steps++ {
		step := math.Max(math.Abs(f)/length, eps)
		tn := math.Min(1, t+step)
		fn := at(tn)
		if (f < 0) != (fn < 0) {
			lo, hi, flo := t, tn, f
			for i := 0; i < 60 && hi-lo > 1e-3*eps; i++ {
				mid := 0.5 * (lo + hi)
				fm := at(mid)
				if (fm < 0) == (flo < 0) {
					lo, flo = mid, fm
				} else {
					hi = mid
				}
			}
			out = append(out, 0.5*(lo+hi))
		}
		t, f = tn, fn
	}
	return out
}
