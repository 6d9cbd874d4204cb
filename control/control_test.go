package control

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	unitBox = r3.Box{Max: r3.Vec{X: 1, Y: 1, Z: 1}}
	centre  = r3.Vec{X: .5, Y: .5, Z: .5}
)

func boxGeometry(t *testing.T) *geometry.Geometry {
	t.Helper()
	g, err := geometry.New(unitBox, []geometry.Surface{{Name: "box", Shape: geometry.Box(unitBox), Side: geometry.Inside}}, geometry.BoxFeatures(unitBox, 0))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func buildSerial(t *testing.T, g *geometry.Geometry, sizes Sizes) *Field {
	t.Helper()
	d, err := decomp.New(g.Bounds(), 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Build(Config{DefaultCellSize: .1}, g, sizes, d, comm.Serial(), rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestSizes(t *testing.T) {
	g := boxGeometry(t)
	lin, err := NewSource(SourceConfig{Type: "linearDistance", Surface: "box", Coeffs: map[string]any{
		"surfaceCellSize": .02, "distanceCellSize": .1, "distance": .2,
	}}, g)
	if err != nil {
		t.Fatal(err)
	}
	uni, err := NewSource(SourceConfig{Type: "uniform", Coeffs: map[string]any{"cellSize": "0.08"}}, g)
	if err != nil {
		t.Fatal(err)
	}
	sizes := Sizes{Default: .2, Sources: []Source{lin, uni}}
	for _, test := range []struct {
		p    r3.Vec
		want float64
	}{
		{p: centre, want: .08},
		{p: r3.Vec{X: .5, Y: .5, Z: .95}, want: .04},
		{p: r3.Vec{X: .5, Y: .5, Z: 1}, want: .02},
	} {
		if got := sizes.Size(test.p); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("Size(%v)=%g, want %g", test.p, got, test.want)
		}
	}
	if got := (Sizes{Default: .3}).Size(centre); got != .3 {
		t.Errorf("default size %g", got)
	}
}

func TestNewSourceErrors(t *testing.T) {
	g := boxGeometry(t)
	for name, cfg := range map[string]SourceConfig{
		"unknownType":    {Type: "spline"},
		"unknownSurface": {Type: "uniform", Surface: "lid", Coeffs: map[string]any{"cellSize": 1}},
		"missingCoeff":   {Type: "uniform"},
		"unusedCoeff":    {Type: "uniform", Coeffs: map[string]any{"cellSize": 1, "colour": "red"}},
		"negative":       {Type: "uniformDistance", Surface: "box", Coeffs: map[string]any{"cellSize": 1, "distance": -1}},
		"noSurface":      {Type: "linearDistance", Coeffs: map[string]any{"surfaceCellSize": 1, "distanceCellSize": 1, "distance": 1}},
	} {
		if _, err := NewSource(cfg, g); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestCellSizeAndAlignment(t *testing.T) {
	f := buildSerial(t, boxGeometry(t), Sizes{})
	size, align := f.CellSizeAndAlignment(centre)
	if math.Abs(size-.1) > 1e-12 {
		t.Errorf("size at centre %g, want .1", size)
	}
	if a := triad.MisalignmentAngle(triad.Identity(), align); a > 1e-9 {
		t.Errorf("alignment at centre misaligned by %g rad", a)
	}
	// Far outside the control cells the nearest control point answers.
	size, align = f.CellSizeAndAlignment(r3.Vec{X: 40, Y: 40, Z: 40})
	if math.Abs(size-.1) > 1e-12 || !align.IsSet() {
		t.Errorf("fallback gave %g %v", size, align)
	}
	// Near a face the alignment follows the face normal.
	_, align = f.CellSizeAndAlignment(r3.Vec{X: .5, Y: .5, Z: .02})
	if a := triad.MisalignmentAngle(triad.FromNormal(r3.Vec{Z: -1}), align); a > 1e-6 {
		t.Errorf("alignment near face misaligned by %g rad", a)
	}
}

func TestSmoothingLeavesFixedAlignments(t *testing.T) {
	f := buildSerial(t, boxGeometry(t), Sizes{})
	// Perturb the free alignments so smoothing has work to do.
	rng := rand.New(rand.NewSource(2))
	fixed := make(map[delaunay.VertexHandle]triad.Triad)
	f.tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Fixed {
			fixed[h] = v.Alignment
		} else {
			v.Alignment = triad.FromNormal(r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()})
		}
		return true
	})
	if len(fixed) == 0 {
		t.Fatal("no fixed control points")
	}
	if n := f.SmoothAlignments(4); n != 4 {
		t.Errorf("ran %d sweeps", n)
	}
	f.tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if want, ok := fixed[h]; ok {
			if v.Alignment != want {
				t.Errorf("fixed vertex %d alignment changed from %v to %v", h, want, v.Alignment)
			}
			return true
		}
		for i := range v.Alignment {
			if math.Abs(r3.Norm(v.Alignment[i])-1) > 1e-9 {
				t.Errorf("vertex %d direction %d not unit", h, i)
			}
			if d := r3.Dot(v.Alignment[i], v.Alignment[(i+1)%3]); math.Abs(d) > 1e-9 {
				t.Errorf("vertex %d directions not orthogonal", h)
			}
		}
		return true
	})
}

type sourceFunc func(p r3.Vec) (float64, bool)

func (f sourceFunc) Size(p r3.Vec) (float64, bool) { return f(p) }

func TestRefineResolvesSizeGradient(t *testing.T) {
	ball := sourceFunc(func(p r3.Vec) (float64, bool) {
		return .05, r3.Norm(r3.Sub(p, centre)) < .15
	})
	f := buildSerial(t, boxGeometry(t), Sizes{Sources: []Source{ball}})
	before, _ := f.CellSizeAndAlignment(centre)
	if math.Abs(before-.1) > 1e-12 {
		t.Fatalf("size at centre %g before refinement", before)
	}
	const maxIter = 5
	added, err := f.Refine(maxIter)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) == 0 || len(added) > maxIter || added[0] == 0 {
		t.Fatalf("refinement passes %v", added)
	}
	if len(added) < maxIter && added[len(added)-1] != 0 {
		t.Errorf("stopped early after a pass adding %d points", added[len(added)-1])
	}
	after, _ := f.CellSizeAndAlignment(centre)
	if !(after < before) {
		t.Errorf("size at centre %g after refinement, %g before", after, before)
	}
	if err := f.tess.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestDistributeCoversRegions(t *testing.T) {
	g := boxGeometry(t)
	serial := buildSerial(t, g, Sizes{})
	countInternal := func(f *Field) (n int) {
		for _, p := range f.Points() {
			if p.Type == delaunay.Internal {
				n++
			}
		}
		return n
	}
	want := countInternal(serial)

	const ranks = 3
	var mu sync.Mutex
	got := 0
	err := comm.Run(context.Background(), ranks, func(ctx context.Context, c comm.Comm) error {
		d, err := decomp.New(g.Bounds(), ranks, nil, nil)
		if err != nil {
			return err
		}
		f, err := Build(Config{DefaultCellSize: .1}, g, Sizes{}, d, c, rand.New(rand.NewSource(1)))
		if err != nil {
			return err
		}
		for _, p := range f.Points() {
			if d.Owner(p.Pos) != c.Rank() {
				t.Errorf("rank %d holds point owned by %d", c.Rank(), d.Owner(p.Pos))
			}
		}
		if _, referred := f.Count(); referred == 0 {
			t.Errorf("rank %d has no halo", c.Rank())
		}
		mu.Lock()
		got += countInternal(f)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("%d lattice points over %d ranks, %d serial", got, ranks, want)
	}
}

func TestRefineAgreesAcrossRanks(t *testing.T) {
	g := boxGeometry(t)
	// A fine region straddling the plane splitting the two regions.
	ball := sourceFunc(func(p r3.Vec) (float64, bool) {
		return .05, r3.Norm(r3.Sub(p, centre)) < .15
	})
	const (
		ranks   = 2
		queries = 500
	)
	sizes := make([][]float64, ranks)
	aligns := make([][]triad.Triad, ranks)
	err := comm.Run(context.Background(), ranks, func(ctx context.Context, c comm.Comm) error {
		d, err := decomp.New(g.Bounds(), ranks, nil, nil)
		if err != nil {
			return err
		}
		f, err := Build(Config{DefaultCellSize: .1}, g, Sizes{Sources: []Source{ball}}, d, c, rand.New(rand.NewSource(1)))
		if err != nil {
			return err
		}
		added, err := f.Refine(4)
		if err != nil {
			return err
		}
		if len(added) == 0 || added[0] == 0 {
			t.Errorf("rank %d: refinement passes %v", c.Rank(), added)
		}
		rng := rand.New(rand.NewSource(9))
		for i := 0; i < queries; i++ {
			p := r3.Vec{X: .45 + .1*rng.Float64(), Y: .1 + .8*rng.Float64(), Z: .1 + .8*rng.Float64()}
			s, a := f.CellSizeAndAlignment(p)
			sizes[c.Rank()] = append(sizes[c.Rank()], s)
			aligns[c.Rank()] = append(aligns[c.Rank()], a)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	bad := 0
	for i := 0; i < queries; i++ {
		a, b := sizes[0][i], sizes[1][i]
		if math.Abs(a-b) > 1e-9*math.Max(a, b) ||
			triad.MisalignmentAngle(aligns[0][i], aligns[1][i]) > 1e-6 {
			bad++
		}
	}
	if bad > 0 {
		t.Errorf("ranks disagree on %d of %d queries near the region boundary", bad, queries)
	}
}
