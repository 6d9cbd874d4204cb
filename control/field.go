// Package control implements the cell shape control field: a background
// tessellation of sparse control points carrying the target cell size and
// alignment that the mesher interpolates at arbitrary positions.
package control

import (
	"errors"
	"log/slog"
	"math"
	"math/rand"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/internal/kd"
	"github.com/soypat/cvmesh/internal/logging"
	"github.com/soypat/cvmesh/internal/spatial"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config configures the control field.
type Config struct {
	DefaultCellSize float64 `yaml:"defaultCellSize"`
	// BackgroundSpacingCoeff is the spacing of the initial control lattice
	// in multiples of DefaultCellSize.
	BackgroundSpacingCoeff float64 `yaml:"backgroundSpacingCoeff"`
	// NearSurfaceCoeff is the distance, in lattice spacings, within which
	// control points take their alignment from the surface.
	NearSurfaceCoeff float64 `yaml:"nearSurfaceCoeff"`
	// RefinementTolerance is the relative size deviation above which a
	// control cell is refined.
	RefinementTolerance float64 `yaml:"refinementTolerance"`
	// AlignmentTolerance is the misalignment in degrees above which a
	// control cell near a surface is refined.
	AlignmentTolerance float64 `yaml:"alignmentTolerance"`
	// HaloCoeff is the width, in lattice spacings, of the band of control
	// points copied from neighbouring ranks.
	HaloCoeff float64 `yaml:"haloCoeff"`
	// Jitter perturbs lattice points by this fraction of the spacing.
	Jitter      float64        `yaml:"jitter"`
	SizeSources []SourceConfig `yaml:"sizeSources"`
}

// WithDefaults returns c with unset coefficients given their defaults.
func (c Config) WithDefaults() Config {
	def := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.BackgroundSpacingCoeff, 2)
	def(&c.NearSurfaceCoeff, 1)
	def(&c.RefinementTolerance, 0.2)
	def(&c.AlignmentTolerance, 10)
	def(&c.HaloCoeff, 2)
	def(&c.Jitter, 1e-3)
	return c
}

// Field is one rank's part of the control field. It covers the rank's
// decomposition region plus a halo of referred control points.
type Field struct {
	cfg     Config
	geom    *geometry.Geometry
	sizes   Sizes
	decomp  *decomp.Decomposition
	comm    comm.Comm
	rng     *rand.Rand
	log     *slog.Logger
	tess    *delaunay.Tessellation
	nearest *kd.Tree
	spacing float64
}

type Option func(*Field)

func WithLogger(l *slog.Logger) Option {
	return func(f *Field) { f.log = l }
}

// Build seeds the control field with a jittered lattice over the geometry
// bounds and samples of the surfaces, keeping the points this rank owns,
// then exchanges halos with the other ranks.
func Build(cfg Config, g *geometry.Geometry, sizes Sizes, d *decomp.Decomposition, c comm.Comm, rng *rand.Rand, opts ...Option) (*Field, error) {
	cfg = cfg.WithDefaults()
	if !(cfg.DefaultCellSize > 0) {
		return nil, errors.New("control: defaultCellSize must be positive")
	}
	if sizes.Default == 0 {
		sizes.Default = cfg.DefaultCellSize
	}
	f := &Field{
		cfg:     cfg,
		geom:    g,
		sizes:   sizes,
		decomp:  d,
		comm:    c,
		rng:     rng,
		log:     logging.NewNop(),
		spacing: cfg.BackgroundSpacingCoeff * cfg.DefaultCellSize,
	}
	for _, o := range opts {
		o(f)
	}
	h := f.spacing
	bb := d3.Box(g.Bounds()).Enlarge(d3.Elem(4 * h))
	f.tess = delaunay.New(r3.Box(bb), delaunay.WithRand(rng))

	lattice := d3.Box(g.Bounds()).Enlarge(d3.Elem(2 * h))
	size := lattice.Size()
	n := [3]int{
		int(math.Ceil(size.X/h)) + 1,
		int(math.Ceil(size.Y/h)) + 1,
		int(math.Ceil(size.Z/h)) + 1,
	}
	step := r3.Vec{X: size.X / float64(n[0]-1), Y: size.Y / float64(n[1]-1), Z: size.Z / float64(n[2]-1)}
	seen := make(map[[3]int64]bool)
	var pts []delaunay.Point
	for i := 0; i < n[0]; i++ {
		for j := 0; j < n[1]; j++ {
			for k := 0; k < n[2]; k++ {
				p := r3.Add(lattice.Min, r3.Vec{X: float64(i) * step.X, Y: float64(j) * step.Y, Z: float64(k) * step.Z})
				p = r3.Add(p, r3.Scale(2*cfg.Jitter*h, r3.Vec{X: rng.Float64() - .5, Y: rng.Float64() - .5, Z: rng.Float64() - .5}))
				if d.Owner(p) != c.Rank() {
					continue
				}
				pt := f.controlPoint(p, delaunay.Internal)
				pts = append(pts, pt)
				hit, ok := g.Nearest(p, cfg.NearSurfaceCoeff*h)
				if !ok || d.Owner(hit.Point) != c.Rank() {
					continue
				}
				key := spatial.Key(hit.Point, h/2)
				if seen[key] {
					continue
				}
				seen[key] = true
				pts = append(pts, f.controlPoint(hit.Point, delaunay.InternalSurface))
			}
		}
	}
	f.tess.InsertPoints(pts)
	f.log.Debug("control lattice seeded", "points", len(pts), "spacing", h)
	if err := f.Distribute(d); err != nil {
		return nil, err
	}
	return f, nil
}

// controlPoint returns an owned control point at p with the source size and
// the surface alignment if a surface is near.
func (f *Field) controlPoint(p r3.Vec, t delaunay.Type) delaunay.Point {
	pt := delaunay.NewPoint(p, t)
	pt.Proc = f.comm.Rank()
	pt.TargetSize = f.sizes.Size(p)
	if a, ok := f.surfaceAlignment(p); ok {
		pt.Alignment = a
		pt.Fixed = true
	} else {
		pt.Alignment = triad.Identity()
	}
	return pt
}

// surfaceAlignment returns the triad of the nearest surface normal if a
// surface lies within the near surface distance of p.
func (f *Field) surfaceAlignment(p r3.Vec) (triad.Triad, bool) {
	hit, ok := f.geom.Nearest(p, f.cfg.NearSurfaceCoeff*f.spacing)
	if !ok || hit.Normal == (r3.Vec{}) {
		return triad.Triad{}, false
	}
	return triad.FromNormal(f.geom.MeshNormal(hit)), true
}

// Spacing returns the control lattice spacing.
func (f *Field) Spacing() float64 { return f.spacing }

// Tessellation returns the control tessellation.
func (f *Field) Tessellation() *delaunay.Tessellation { return f.tess }

// Sizes returns the size sources of the field.
func (f *Field) Sizes() Sizes { return f.sizes }

// Points returns the control points owned by this rank.
func (f *Field) Points() []delaunay.Point {
	var out []delaunay.Point
	f.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Real() {
			out = append(out, v.Point)
		}
		return true
	})
	return out
}

// CellSizeAndAlignment interpolates the target size and alignment at p
// barycentrically in the control cell containing p. Outside the finite
// control cells the values of the nearest control point are returned.
func (f *Field) CellSizeAndAlignment(p r3.Vec) (float64, triad.Triad) {
	c := f.tess.Locate(p)
	if c == delaunay.NoCell || f.tess.HasFarPoint(c) {
		return f.nearestSite(p)
	}
	w, ok := barycentric(f.tess.CellPoints(c), p)
	if !ok {
		return f.nearestSite(p)
	}
	cell := f.tess.Cell(c)
	var (
		size float64
		ts   [4]triad.Triad
		ref  triad.Triad
		wmax = -1.0
	)
	for i, h := range cell.V {
		v := f.tess.Vertex(h)
		size += w[i] * v.TargetSize
		ts[i] = v.Alignment
		if w[i] > wmax {
			wmax, ref = w[i], v.Alignment
		}
	}
	return size, triad.Average(ref, ts[:], w[:])
}

func (f *Field) nearestSite(p r3.Vec) (float64, triad.Triad) {
	it, _, ok := f.nearest.Nearest(p)
	if !ok {
		return f.sizes.Size(p), triad.Identity()
	}
	v := f.tess.Vertex(delaunay.VertexHandle(it.ID))
	return v.TargetSize, v.Alignment
}

// barycentric returns the barycentric coordinates of p in tetrahedron t,
// clamped to be non-negative. ok is false for flat tetrahedra.
func barycentric(t [4]r3.Vec, p r3.Vec) (w [4]float64, ok bool) {
	vol := signedVolume(t[0], t[1], t[2], t[3])
	if math.Abs(vol) < 1e-300 {
		return w, false
	}
	var sum float64
	for i := range t {
		q := t
		q[i] = p
		w[i] = math.Max(0, signedVolume(q[0], q[1], q[2], q[3])/vol)
		sum += w[i]
	}
	if sum == 0 {
		return w, false
	}
	for i := range w {
		w[i] /= sum
	}
	return w, true
}

func signedVolume(a, b, c, d r3.Vec) float64 {
	return r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(d, a)))
}

func (f *Field) rebuildIndex() {
	var items []kd.Item
	f.tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		items = append(items, kd.Item{Pos: v.Pos, ID: int(h)})
		return true
	})
	f.nearest = kd.New(items)
}
