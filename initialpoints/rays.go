package initialpoints

import (
	"math"

	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/coeffs"
	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/internal/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

type rayCoeffs struct {
	// InitialCellSize is the spacing of the surface samples rays start from.
	InitialCellSize             float64 `mapstructure:"initialCellSize"`
	RandomPerturbationCoeff     float64 `mapstructure:"randomPerturbationCoeff"`
	MinimumSurfaceDistanceCoeff float64 `mapstructure:"minimumSurfaceDistanceCoeff"`
	// MaxRayLength bounds the rays, 0 for the bounds diagonal.
	MaxRayLength float64 `mapstructure:"maxRayLength"`
}

// rayShooting shoots a ray from surface samples into the meshed region
// along the inward normal and places points along it at the local cell
// size. A ray ending on another surface fills only its first half, the
// other half being filled from the opposite side.
type rayShooting struct {
	filter
	sampling float64
	maxLen   float64
}

func newRayShooting(in map[string]any, p Params) (Method, error) {
	var c rayCoeffs
	if err := coeffs.Decode(in, &c); err != nil {
		return nil, err
	}
	if err := coeffs.Positive("initialCellSize", c.InitialCellSize); err != nil {
		return nil, err
	}
	if err := coeffs.InRange("randomPerturbationCoeff", c.RandomPerturbationCoeff, 0, 0.5); err != nil {
		return nil, err
	}
	if c.MinimumSurfaceDistanceCoeff == 0 {
		c.MinimumSurfaceDistanceCoeff = 0.5
	}
	if err := coeffs.Positive("minimumSurfaceDistanceCoeff", c.MinimumSurfaceDistanceCoeff); err != nil {
		return nil, err
	}
	if c.MaxRayLength < 0 {
		return nil, coeffs.Positive("maxRayLength", c.MaxRayLength)
	}
	if c.MaxRayLength == 0 {
		c.MaxRayLength = d3.Box(p.Geometry.Bounds()).Diagonal()
	}
	return &rayShooting{
		filter:   filter{Params: p, perturb: c.RandomPerturbationCoeff, minSurfaceDist: c.MinimumSurfaceDistanceCoeff},
		sampling: c.InitialCellSize,
		maxLen:   c.MaxRayLength,
	}, nil
}

// samples returns one surface hit per sampling cell near the surfaces
// meshed on one side. Every rank computes the same samples.
func (r *rayShooting) samples() []geometry.Hit {
	g := r.Geometry
	seen := make(map[[3]int64]bool)
	var hits []geometry.Hit
	newLattice(g.Bounds(), r.sampling).foreachCorner(g.Bounds(), func(x r3.Vec) {
		h, ok := g.Nearest(x, r.sampling)
		if !ok || g.Surfaces()[h.Surface].Side == geometry.Both {
			return
		}
		key := spatial.Key(h.Point, r.sampling)
		if seen[key] {
			return
		}
		seen[key] = true
		hits = append(hits, h)
	})
	return hits
}

func (r *rayShooting) InitialPoints() ([]delaunay.Point, error) {
	g := r.Geometry
	eps := 10 * g.Tolerance()
	placed := spatial.New(g.Tolerance())
	var pts []delaunay.Point
	for _, h := range r.samples() {
		dir := r3.Scale(-1, g.MeshNormal(h))
		length := math.Min(r.maxLen, rayExit(h.Point, dir, g.Bounds()))
		if length <= eps {
			continue
		}
		end := r3.Add(h.Point, r3.Scale(length, dir))
		if hits := g.Intersections(r3.Add(h.Point, r3.Scale(eps, dir)), end); len(hits) > 0 {
			length = r3.Norm(r3.Sub(hits[0].Point, h.Point)) / 2
		}
		s, _ := r.Sizer.CellSizeAndAlignment(h.Point)
		for t := s / 2; t <= length; t += s {
			x := r3.Add(h.Point, r3.Scale(t, dir))
			s, _ = r.Sizer.CellSizeAndAlignment(x)
			if placed.Near(x, s/2) {
				continue
			}
			placed.Add(x)
			if pt, ok := r.accept(x); ok {
				pts = append(pts, pt)
			}
		}
	}
	return pts, nil
}

// rayExit returns the distance along the unit direction dir from o, inside
// b, to the boundary of b.
func rayExit(o, dir r3.Vec, b r3.Box) float64 {
	t := math.Inf(1)
	for ax := 0; ax < 3; ax++ {
		d, x := d3.Component(dir, ax), d3.Component(o, ax)
		switch {
		case d > 0:
			t = math.Min(t, (d3.Component(b.Max, ax)-x)/d)
		case d < 0:
			t = math.Min(t, (d3.Component(b.Min, ax)-x)/d)
		}
	}
	return math.Max(t, 0)
}
