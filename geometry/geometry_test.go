package geometry

import (
	"bytes"
	"math"
	"testing"

	"github.com/deadsy/sdfx/sdf"
	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-6

var unitBox = r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}

// cube returns the twelve outward facing triangles of b.
func cube(b r3.Box) []Triangle {
	var out []Triangle
	size := r3.Sub(b.Max, b.Min)
	for axis := 0; axis < 3; axis++ {
		u, w := (axis+1)%3, (axis+2)%3
		eu := d3.SetComponent(r3.Vec{}, u, d3.Component(size, u))
		ew := d3.SetComponent(r3.Vec{}, w, d3.Component(size, w))
		for _, hi := range []bool{false, true} {
			p0 := b.Min
			if hi {
				p0 = d3.SetComponent(p0, axis, d3.Component(b.Max, axis))
			}
			p1, p2, p3 := r3.Add(p0, eu), r3.Add(r3.Add(p0, eu), ew), r3.Add(p0, ew)
			if hi {
				out = append(out, Triangle{p0, p1, p2}, Triangle{p0, p2, p3})
			} else {
				out = append(out, Triangle{p0, p2, p1}, Triangle{p0, p3, p2})
			}
		}
	}
	return out
}

func TestBoxSDF(t *testing.T) {
	s := Box(unitBox)
	for _, test := range []struct {
		p    r3.Vec
		want float64
	}{
		{p: r3.Vec{X: .5, Y: .5, Z: .5}, want: -.5},
		{p: r3.Vec{X: .5, Y: .5, Z: .9}, want: -.1},
		{p: r3.Vec{X: 2, Y: .5, Z: .5}, want: 1},
		{p: r3.Vec{X: 2, Y: 2, Z: .5}, want: math.Sqrt2},
		{p: r3.Vec{X: -1, Y: -1, Z: -1}, want: math.Sqrt(3)},
	} {
		if got := s.Evaluate(test.p); math.Abs(got-test.want) > tol {
			t.Errorf("Evaluate(%v)=%g, want %g", test.p, got, test.want)
		}
	}
}

func TestTriMeshSignedDistance(t *testing.T) {
	m, err := NewTriMesh(cube(unitBox), 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.OpenEdges() != 0 {
		t.Errorf("closed cube has %d open edges", m.OpenEdges())
	}
	ref := Box(unitBox)
	for _, p := range []r3.Vec{
		{X: .5, Y: .5, Z: .5},
		{X: .2, Y: .7, Z: .9},
		{X: 2, Y: .5, Z: .5},
		{X: 1.5, Y: 1.5, Z: .5}, // closest to an edge.
		{X: 2, Y: 2, Z: 2},      // closest to a corner.
		{X: -.3, Y: .4, Z: 1.2},
	} {
		want := ref.Evaluate(p)
		if got := m.Evaluate(p); math.Abs(got-want) > tol {
			t.Errorf("Evaluate(%v)=%g, want %g", p, got, want)
		}
	}
}

func TestSTLRoundTrip(t *testing.T) {
	model := cube(unitBox)
	var buf bytes.Buffer
	if err := WriteSTL(&buf, model); err != nil {
		t.Fatal(err)
	}
	got, err := ReadSTL(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(model) {
		t.Fatalf("read %d triangles, wrote %d", len(got), len(model))
	}
	for i := range got {
		for j := range got[i] {
			if !d3.EqualWithin(got[i][j], model[i][j], 1e-6) {
				t.Errorf("triangle %d vertex %d: got %v, want %v", i, j, got[i][j], model[i][j])
			}
		}
	}
}

func TestExtractFeaturesCube(t *testing.T) {
	m, err := NewTriMesh(cube(unitBox), 0)
	if err != nil {
		t.Fatal(err)
	}
	f := ExtractFeatures(m, 3, 30*math.Pi/180)
	if len(f.Edges) != 12 {
		t.Fatalf("got %d feature edges, want 12", len(f.Edges))
	}
	for i, e := range f.Edges {
		if e.Status != Convex {
			t.Errorf("edge %d is %s, want convex", i, e.Status)
		}
		if e.Surface != 3 {
			t.Errorf("edge %d surface %d", i, e.Surface)
		}
		if math.Abs(f.Length(i)-1) > tol {
			t.Errorf("edge %d length %g", i, f.Length(i))
		}
	}
	if n := len(f.FeaturePoints()); n != 8 {
		t.Errorf("got %d feature points, want 8", n)
	}
}

func TestBoxFeatures(t *testing.T) {
	f := BoxFeatures(unitBox, 0)
	if len(f.Edges) != 12 || len(f.FeaturePoints()) != 8 {
		t.Fatalf("got %d edges %d feature points", len(f.Edges), len(f.FeaturePoints()))
	}
	for i, e := range f.Edges {
		mid := d3.Mid(f.Points[e.A], f.Points[e.B])
		for _, n := range e.Normals {
			// Normals must point away from the box centre.
			if r3.Dot(n, r3.Sub(mid, r3.Vec{X: .5, Y: .5, Z: .5})) <= 0 {
				t.Errorf("edge %d normal %v points inward", i, n)
			}
		}
		if r3.Dot(e.Normals[0], f.Direction(i)) != 0 || r3.Dot(e.Normals[1], f.Direction(i)) != 0 {
			t.Errorf("edge %d normals not orthogonal to the edge", i)
		}
	}
	hit, ok := f.NearestEdge(r3.Vec{X: .3, Y: -.1, Z: -.1}, .5)
	if !ok {
		t.Fatal("no edge found")
	}
	if !d3.EqualWithin(hit.Point, r3.Vec{X: .3}, tol) || math.Abs(hit.Dist-math.Sqrt(.02)) > tol {
		t.Errorf("got edge hit %+v", hit)
	}
	if _, ok := f.NearestEdge(r3.Vec{X: .5, Y: .5, Z: .5}, .2); ok {
		t.Error("found edge far from the query point")
	}
	i, d, ok := f.NearestFeaturePoint(r3.Vec{X: 1.1, Y: 1, Z: 1}, .2)
	if !ok || !d3.EqualWithin(f.Points[i], unitBox.Max, 0) || math.Abs(d-.1) > tol {
		t.Errorf("got feature point %d at distance %g", i, d)
	}
}

func TestGeometryQueries(t *testing.T) {
	bounds := r3.Box{Min: d3.Elem(-2), Max: d3.Elem(2)}
	g, err := New(bounds, []Surface{{Name: "ball", Shape: Sphere(r3.Vec{}, 1), Side: Inside}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !g.Inside(r3.Vec{X: .2}) || g.Inside(r3.Vec{Z: 1.5}) {
		t.Error("bad inside classification")
	}
	hit, ok := g.Nearest(r3.Vec{Z: .5}, 1)
	if !ok {
		t.Fatal("no nearest surface point")
	}
	if !d3.EqualWithin(hit.Point, r3.Vec{Z: 1}, tol) || !d3.EqualWithin(hit.Normal, r3.Vec{Z: 1}, tol) {
		t.Errorf("got hit %+v", hit)
	}
	if _, ok := g.Nearest(r3.Vec{}, .5); ok {
		t.Error("centre is farther than .5 from the surface")
	}
	hits := g.Intersections(r3.Vec{X: -2}, r3.Vec{X: 2})
	if len(hits) != 2 {
		t.Fatalf("got %d intersections, want 2", len(hits))
	}
	if math.Abs(hits[0].Dist-.25) > tol || math.Abs(hits[1].Dist-.75) > tol {
		t.Errorf("got intersections at %g and %g", hits[0].Dist, hits[1].Dist)
	}
	if !g.AnyIntersection(r3.Vec{}, r3.Vec{Y: 2}) {
		t.Error("missed crossing")
	}
	if g.AnyIntersection(r3.Vec{X: -.2}, r3.Vec{X: .2}) {
		t.Error("segment inside the ball crosses nothing")
	}

	outside, err := New(bounds, []Surface{{Name: "ball", Shape: Sphere(r3.Vec{}, 1), Side: Outside}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if outside.Inside(r3.Vec{}) || !outside.Inside(r3.Vec{Z: 1.5}) {
		t.Error("bad outside classification")
	}
	n := outside.MeshNormal(Hit{Normal: r3.Vec{Z: 1}, Surface: 0})
	if n != (r3.Vec{Z: -1}) {
		t.Errorf("mesh normal %v should point into the ball", n)
	}
}

func TestTriMeshIntersections(t *testing.T) {
	m, err := NewTriMesh(cube(unitBox), 0)
	if err != nil {
		t.Fatal(err)
	}
	g, err := New(r3.Box{Min: d3.Elem(-1), Max: d3.Elem(2)}, []Surface{{Shape: m, Side: Inside}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	hits := g.Intersections(r3.Vec{X: -1, Y: .3, Z: .4}, r3.Vec{X: 2, Y: .3, Z: .4})
	if len(hits) != 2 {
		t.Fatalf("got %d intersections, want 2", len(hits))
	}
	if !d3.EqualWithin(hits[0].Point, r3.Vec{Y: .3, Z: .4}, tol) || !d3.EqualWithin(hits[0].Normal, r3.Vec{X: -1}, tol) {
		t.Errorf("first hit %+v", hits[0])
	}
	if !d3.EqualWithin(hits[1].Point, r3.Vec{X: 1, Y: .3, Z: .4}, tol) {
		t.Errorf("second hit %+v", hits[1])
	}
}

type sdfxBall struct{ r float64 }

func (b sdfxBall) Evaluate(p sdf.V3) float64 {
	return math.Sqrt(p.X*p.X+p.Y*p.Y+p.Z*p.Z) - b.r
}

func (b sdfxBall) BoundingBox() sdf.Box3 {
	return sdf.Box3{Min: sdf.V3{X: -b.r, Y: -b.r, Z: -b.r}, Max: sdf.V3{X: b.r, Y: b.r, Z: b.r}}
}

func TestFromSDFX(t *testing.T) {
	s := FromSDFX(sdfxBall{r: 2})
	if got := s.Evaluate(r3.Vec{X: 3}); math.Abs(got-1) > tol {
		t.Errorf("Evaluate=%g, want 1", got)
	}
	bb := s.Bounds()
	if bb.Min != d3.Elem(-2) || bb.Max != d3.Elem(2) {
		t.Errorf("bounds %v", bb)
	}
}
