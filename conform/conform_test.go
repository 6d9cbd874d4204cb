package conform

import (
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

var unitBox = r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}

type constSizer float64

func (s constSizer) CellSizeAndAlignment(r3.Vec) (float64, triad.Triad) {
	return float64(s), triad.Identity()
}

func boxGeometry(t *testing.T) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New(unitBox, []geometry.Surface{{Name: "box", Shape: geometry.Box(unitBox), Side: geometry.Inside}}, geometry.BoxFeatures(unitBox, 0))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func newTess(rng *rand.Rand) *delaunay.Tessellation {
	return delaunay.New(r3.Box(d3.Box(unitBox).Enlarge(d3.Elem(1))), delaunay.WithRand(rng), delaunay.WithPrecision(delaunay.Exact))
}

func TestFeaturePointGroupsBox(t *testing.T) {
	g := boxGeometry(t)
	e := New(Config{}, g, nil, 0)
	const s = .2
	groups, rep := e.FeaturePointGroups(constSizer(s))
	if len(groups) != 8 || len(rep.Anomalies) != 0 {
		t.Fatalf("got %d groups, anomalies %v", len(groups), rep.Anomalies)
	}
	d := e.PairDistance(s)
	for _, grp := range groups {
		if len(grp.Points) != 8 {
			t.Fatalf("corner group of %d points", len(grp.Points))
		}
		internal := 0
		for _, p := range grp.Points {
			if got := r3.Norm(r3.Sub(p.Pos, grp.Origin)); math.Abs(got-d*math.Sqrt(3)) > 1e-12 {
				t.Errorf("member %v at distance %g from corner %v", p.Pos, got, grp.Origin)
			}
			switch p.Type {
			case delaunay.InternalFeaturePoint:
				internal++
				if !g.Inside(p.Pos) {
					t.Errorf("internal member %v outside", p.Pos)
				}
			case delaunay.ExternalFeaturePoint:
				if g.Inside(p.Pos) {
					t.Errorf("external member %v inside", p.Pos)
				}
			default:
				t.Errorf("unexpected member type %s", p.Type)
			}
		}
		if internal != 1 {
			t.Errorf("corner group with %d internal members", internal)
		}
	}
}

func TestFeatureEdgeGroupsBox(t *testing.T) {
	g := boxGeometry(t)
	e := New(Config{}, g, nil, 0)
	groups, _ := e.FeatureEdgeGroups(constSizer(.2))
	// Groups at .3, .5 and .7 along every edge; .1 and .9 are too close to
	// the corners.
	if len(groups) != 36 {
		t.Fatalf("got %d edge groups, want 36", len(groups))
	}
	for _, grp := range groups {
		var in, out []r3.Vec
		for _, p := range grp.Points {
			if p.Type == delaunay.InternalFeatureEdge {
				in = append(in, p.Pos)
			} else {
				out = append(out, p.Pos)
			}
		}
		if len(in) != 1 || len(out) != 2 {
			t.Fatalf("convex edge group with %d internal %d external members", len(in), len(out))
		}
		if !g.Inside(in[0]) || g.Inside(out[0]) || g.Inside(out[1]) {
			t.Errorf("edge group at %v on the wrong sides", grp.Origin)
		}
		// Every member is equidistant from the edge point.
		r := r3.Norm(r3.Sub(in[0], grp.Origin))
		for _, p := range out {
			if math.Abs(r3.Norm(r3.Sub(p, grp.Origin))-r) > 1e-12 {
				t.Errorf("edge group at %v not symmetric", grp.Origin)
			}
		}
	}
}

func TestSurfaceGroupSides(t *testing.T) {
	bounds := r3.Box{Min: d3.Elem(-2), Max: d3.Elem(2)}
	const s = .5
	for _, test := range []struct {
		side         geometry.Side
		kind         Kind
		inner, outer delaunay.Type
		innerRadius  float64
	}{
		{side: geometry.Inside, kind: SurfacePair, inner: delaunay.InternalSurface, outer: delaunay.ExternalSurface, innerRadius: 1 - .05},
		{side: geometry.Outside, kind: SurfacePair, inner: delaunay.InternalSurface, outer: delaunay.ExternalSurface, innerRadius: 1 + .05},
		{side: geometry.Both, kind: BafflePair, inner: delaunay.InternalSurfaceBaffle, outer: delaunay.ExternalSurfaceBaffle, innerRadius: 1 - .05},
	} {
		g, err := geometry.New(bounds, []geometry.Surface{{Shape: geometry.Sphere(r3.Vec{}, 1), Side: test.side}}, nil)
		if err != nil {
			t.Fatal(err)
		}
		e := New(Config{}, g, nil, 0)
		hit, ok := g.Nearest(r3.Vec{Y: .8}, 1)
		if !ok {
			t.Fatal("no surface hit")
		}
		grp, ok := e.SurfaceGroup(hit, s)
		if !ok {
			t.Fatalf("%s: group rejected", test.side)
		}
		if grp.Kind != test.kind || grp.Points[0].Type != test.inner || grp.Points[1].Type != test.outer {
			t.Errorf("%s: got %s group of %s and %s", test.side, grp.Kind, grp.Points[0].Type, grp.Points[1].Type)
		}
		if got := r3.Norm(grp.Points[0].Pos); math.Abs(got-test.innerRadius) > 1e-6 {
			t.Errorf("%s: inner member at radius %g, want %g", test.side, got, test.innerRadius)
		}
		mid := d3.Mid(grp.Points[0].Pos, grp.Points[1].Pos)
		if !d3.EqualWithin(mid, hit.Point, 1e-9) {
			t.Errorf("%s: pair straddles %v, not %v", test.side, mid, hit.Point)
		}
	}
}

func TestInsertPairsBothOrNeither(t *testing.T) {
	g := boxGeometry(t)
	tess := newTess(rand.New(rand.NewSource(1)))
	occupied := r3.Vec{X: .5, Y: .5, Z: .5}
	tess.Insert(occupied, delaunay.NewInfo(delaunay.Internal))
	next := 100
	e := New(Config{}, g, nil, 0, WithIndexer(func() int { next++; return next }))
	pair := func(a, b r3.Vec) Group {
		return Group{Kind: SurfacePair, Points: []delaunay.Point{
			delaunay.NewPoint(a, delaunay.InternalSurface),
			delaunay.NewPoint(b, delaunay.ExternalSurface),
		}}
	}
	groups := []Group{
		pair(r3.Vec{X: .2, Y: .5, Z: .5}, occupied),
		pair(r3.Vec{X: .5, Y: .5, Z: .98}, r3.Vec{X: .5, Y: .5, Z: 1.02}),
		pair(r3.Vec{X: .3, Y: .3, Z: .3}, r3.Vec{X: .3, Y: .3, Z: .3}),
	}
	rep := e.InsertPairs(tess, groups)
	if rep.Groups[SurfacePair] != 1 || rep.Rejected != 2 {
		t.Fatalf("inserted %d, rejected %d", rep.Groups[SurfacePair], rep.Rejected)
	}
	if tess.NumVertices() != 3 {
		t.Fatalf("tessellation has %d vertices, want 3", tess.NumVertices())
	}
	ins := groups[1].Points
	if ins[0].Pair != ins[1].Index || ins[1].Pair != ins[0].Index || ins[0].Index == ins[1].Index {
		t.Errorf("pair not linked: %d->%d, %d->%d", ins[0].Index, ins[0].Pair, ins[1].Index, ins[1].Pair)
	}
	if un := UnpairedPoints(tess); len(un) != 0 {
		t.Errorf("unpaired points %v", un)
	}
}

func TestConformBox(t *testing.T) {
	g := boxGeometry(t)
	rng := rand.New(rand.NewSource(3))
	tess := newTess(rng)
	e := New(Config{}, g, nil, 0)
	sizer := constSizer(.2)

	corners, _ := e.FeaturePointGroups(sizer)
	rep := e.InsertPairs(tess, corners)
	if rep.Groups[FeaturePointGroup] != 8 {
		t.Fatalf("inserted %d corner groups", rep.Groups[FeaturePointGroup])
	}
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 5; k++ {
				p := r3.Vec{X: .1 + .2*float64(i), Y: .1 + .2*float64(j), Z: .1 + .2*float64(k)}
				p = r3.Add(p, r3.Scale(.01, r3.Vec{X: rng.Float64() - .5, Y: rng.Float64() - .5, Z: rng.Float64() - .5}))
				tess.Insert(p, delaunay.NewInfo(delaunay.Internal))
			}
		}
	}
	rep = e.Conform(tess, sizer)
	if rep.Groups[EdgeGroup] != 36 {
		t.Errorf("inserted %d edge groups, want 36", rep.Groups[EdgeGroup])
	}
	if rep.Groups[SurfacePair] == 0 {
		t.Error("no surface pairs inserted")
	}
	if rep.Passes < 1 || rep.Passes > e.Config().MaxPasses {
		t.Errorf("ran %d passes", rep.Passes)
	}
	if err := tess.Validate(); err != nil {
		t.Fatal(err)
	}
	if un := UnpairedPoints(tess); len(un) != 0 {
		t.Errorf("unpaired points %v", un)
	}
	// The external points enclose every point owning a dual cell.
	tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.OwnsDualCell() {
			return true
		}
		if !g.Inside(v.Pos) {
			t.Errorf("%s vertex %v outside the box", v.Type, v.Pos)
		}
		for _, c := range tess.IncidentCellsOf(h) {
			if tess.HasFarPoint(c) {
				t.Errorf("%s vertex %v touches the far tetrahedron", v.Type, v.Pos)
				break
			}
		}
		return true
	})
	check := e.MultipleIntersections(tess)
	if n := check.Anomalies["disagreeingEndpoints"]; n != 0 {
		t.Errorf("%d edges with disagreeing endpoints", n)
	}
}

// enclosed returns a tessellation holding one internal point at p inside a
// slightly irregular cube of external points well beyond the unit box.
func enclosed(t *testing.T, p r3.Vec) *delaunay.Tessellation {
	t.Helper()
	tess := newTess(rand.New(rand.NewSource(1)))
	for i := 0; i < 8; i++ {
		c := d3.Elem(-.9)
		if i&1 != 0 {
			c.X = 1.9
		}
		if i&2 != 0 {
			c.Y = 1.9
		}
		if i&4 != 0 {
			c.Z = 1.9
		}
		// Break the cospherical symmetry of the cube corners.
		c = r3.Add(c, r3.Scale(.02, r3.Vec{X: float64(i % 3), Y: float64(i%5) / 2, Z: float64(i%7) / 3}))
		if _, ok := tess.Insert(c, delaunay.NewInfo(delaunay.ExternalFeaturePoint)); !ok {
			t.Fatalf("corner %v dropped", c)
		}
	}
	if _, ok := tess.Insert(p, delaunay.NewInfo(delaunay.Internal)); !ok {
		t.Fatalf("point %v dropped", p)
	}
	return tess
}

func TestCrossingGroupsBeyondSearchDistance(t *testing.T) {
	g := boxGeometry(t)
	tess := enclosed(t, r3.Vec{X: .5, Y: .5, Z: .55})
	e := New(Config{}, g, nil, 0)
	sizer := constSizer(.2)
	if groups := e.SurfaceGroups(tess, sizer); len(groups) != 0 {
		t.Fatalf("got %d groups within the search distance, want none", len(groups))
	}
	// The dual cell of the point spans the whole box and crosses every face.
	groups := e.CrossingGroups(tess, sizer)
	faces := make(map[[3]int]bool)
	for _, grp := range groups {
		if grp.Kind != SurfacePair {
			t.Errorf("got %s group", grp.Kind)
		}
		if d, _ := g.Distance(grp.Origin); d > 1e-6 {
			t.Errorf("group origin %v at distance %g from the surface", grp.Origin, d)
		}
		n := r3.Sub(grp.Points[1].Pos, grp.Points[0].Pos)
		faces[[3]int{int(math.Round(n.X / r3.Norm(n))), int(math.Round(n.Y / r3.Norm(n))), int(math.Round(n.Z / r3.Norm(n)))}] = true
	}
	if len(faces) != 6 {
		t.Errorf("pairs on %d faces, want 6: %v", len(faces), faces)
	}
}

func TestConformDistantPoint(t *testing.T) {
	g := boxGeometry(t)
	p := r3.Vec{X: .5, Y: .5, Z: .72}
	tess := enclosed(t, p)
	e := New(Config{}, g, nil, 0)
	sizer := constSizer(.2)
	if d, _ := g.Distance(p); d <= e.Config().SearchDistanceCoeff*.2 {
		t.Fatalf("point within the search distance")
	}
	rep := e.Conform(tess, sizer)
	if rep.Groups[SurfacePair] == 0 {
		t.Fatal("no surface pairs conform the cell of the distant point")
	}
	top := false
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Type == delaunay.InternalSurface && v.Pos.Z > .9 {
			top = true
		}
		return true
	})
	if !top {
		t.Error("no surface pair on the face nearest the point")
	}
	if un := UnpairedPoints(tess); len(un) != 0 {
		t.Errorf("unpaired points %v", un)
	}
}

func TestInsertPairsRollsBackDroppedMember(t *testing.T) {
	g := boxGeometry(t)
	// Sites closer than the duplicate tolerance of the tessellation but
	// farther apart than the geometry tolerance pass the group pre-check.
	tess := delaunay.New(r3.Box(d3.Box(unitBox).Enlarge(d3.Elem(1))), delaunay.WithRand(rand.New(rand.NewSource(2))),
		delaunay.WithPrecision(delaunay.Exact), delaunay.WithDuplicateTolerance(1e-3))
	for _, p := range []r3.Vec{{X: .5, Y: .5, Z: .5}, {X: .2, Y: .7, Z: .4}, {X: .8, Y: .3, Z: .6}} {
		tess.Insert(p, delaunay.NewInfo(delaunay.Internal))
	}
	e := New(Config{}, g, nil, 0)
	a := r3.Vec{X: .5, Y: .5, Z: .98}
	groups := []Group{{Kind: SurfacePair, Origin: r3.Vec{X: .5, Y: .5, Z: 1}, Points: []delaunay.Point{
		delaunay.NewPoint(a, delaunay.InternalSurface),
		delaunay.NewPoint(r3.Add(a, r3.Vec{X: 1e-4}), delaunay.ExternalSurface),
	}}}
	rep := e.InsertPairs(tess, groups)
	if rep.Rejected != 1 || rep.Total() != 0 || rep.Anomalies["rolledBackGroups"] != 1 {
		t.Fatalf("got report %+v", rep)
	}
	if groups[0].Inserted {
		t.Error("rolled back group marked inserted")
	}
	if tess.NumVertices() != 3 {
		t.Fatalf("tessellation has %d vertices, want 3", tess.NumVertices())
	}
	if err := tess.Validate(); err != nil {
		t.Fatal(err)
	}
	if un := UnpairedPoints(tess); len(un) != 0 {
		t.Errorf("unpaired points %v", un)
	}
}
