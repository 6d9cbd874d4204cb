package initialpoints

import (
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/internal/coeffs"
	"gonum.org/v1/gonum/spatial/r3"
)

type gridCoeffs struct {
	InitialCellSize float64 `mapstructure:"initialCellSize"`
	// RandomiseInitialGrid perturbs every point by up to
	// RandomPerturbationCoeff of the local cell size along each axis.
	RandomiseInitialGrid    bool    `mapstructure:"randomiseInitialGrid"`
	RandomPerturbationCoeff float64 `mapstructure:"randomPerturbationCoeff"`
	// MinimumSurfaceDistanceCoeff discards points closer to a surface than
	// this fraction of the local cell size. Defaults to 0.5.
	MinimumSurfaceDistanceCoeff float64 `mapstructure:"minimumSurfaceDistanceCoeff"`
}

func decodeGrid(in map[string]any) (gridCoeffs, error) {
	var c gridCoeffs
	if err := coeffs.Decode(in, &c); err != nil {
		return c, err
	}
	if err := coeffs.Positive("initialCellSize", c.InitialCellSize); err != nil {
		return c, err
	}
	if c.RandomiseInitialGrid && c.RandomPerturbationCoeff == 0 {
		c.RandomPerturbationCoeff = 0.1
	}
	if !c.RandomiseInitialGrid {
		c.RandomPerturbationCoeff = 0
	}
	if err := coeffs.InRange("randomPerturbationCoeff", c.RandomPerturbationCoeff, 0, 0.5); err != nil {
		return c, err
	}
	if c.MinimumSurfaceDistanceCoeff == 0 {
		c.MinimumSurfaceDistanceCoeff = 0.5
	}
	return c, coeffs.Positive("minimumSurfaceDistanceCoeff", c.MinimumSurfaceDistanceCoeff)
}

// filter turns candidate positions into owned internal points.
type filter struct {
	Params
	perturb, minSurfaceDist float64
}

// accept returns the point for candidate x. Ownership is decided before the
// perturbation so neighbouring ranks never both keep a candidate.
func (f filter) accept(x r3.Vec) (delaunay.Point, bool) {
	if !f.owns(x) {
		return delaunay.Point{}, false
	}
	s, align := f.Sizer.CellSizeAndAlignment(x)
	if f.perturb > 0 {
		r := f.Rand
		x = r3.Add(x, r3.Scale(2*f.perturb*s, r3.Vec{X: r.Float64() - .5, Y: r.Float64() - .5, Z: r.Float64() - .5}))
	}
	if !f.Geometry.Inside(x) {
		return delaunay.Point{}, false
	}
	if d, _ := f.Geometry.Distance(x); d < f.minSurfaceDist*s {
		return delaunay.Point{}, false
	}
	return f.point(x, s, align), true
}

// uniformGrid places a point at the centre of every cell of a cubic grid.
type uniformGrid struct {
	filter
	lat lattice
	bcc bool
}

func newUniformGrid(in map[string]any, p Params) (Method, error) {
	return newGrid(in, p, false)
}

// newBodyCentredCubic adds the cell corners to the uniform grid, giving
// the body centred cubic lattice whose Delaunay tetrahedra are isotropic.
func newBodyCentredCubic(in map[string]any, p Params) (Method, error) {
	return newGrid(in, p, true)
}

func newGrid(in map[string]any, p Params, bcc bool) (Method, error) {
	c, err := decodeGrid(in)
	if err != nil {
		return nil, err
	}
	return &uniformGrid{
		filter: filter{Params: p, perturb: c.RandomPerturbationCoeff, minSurfaceDist: c.MinimumSurfaceDistanceCoeff},
		lat:    newLattice(p.Geometry.Bounds(), c.InitialCellSize),
		bcc:    bcc,
	}, nil
}

func (g *uniformGrid) InitialPoints() ([]delaunay.Point, error) {
	var pts []delaunay.Point
	add := func(x r3.Vec) {
		if pt, ok := g.accept(x); ok {
			pts = append(pts, pt)
		}
	}
	reg := g.region()
	g.lat.foreachCentre(reg, add)
	if g.bcc {
		g.lat.foreachCorner(reg, add)
	}
	return pts, nil
}
