package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Side names the side of a surface that is meshed.
type Side uint8

const (
	// Inside meshes the interior of the solid.
	Inside Side = iota
	Outside
	// Both meshes either side and conforms the surface as a baffle.
	Both
)

func (s Side) String() string {
	switch s {
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	case Both:
		return "both"
	}
	return "unknown"
}

// ParseSide parses the names returned by Side.String.
func ParseSide(s string) (Side, error) {
	for _, side := range []Side{Inside, Outside, Both} {
		if side.String() == s {
			return side, nil
		}
	}
	return 0, fmt.Errorf("unknown meshable side %q", s)
}

// Surface is a named boundary of the meshed region.
type Surface struct {
	Name  string
	Shape SDF
	Side  Side
}

// Hit is a point on a surface.
type Hit struct {
	Point r3.Vec
	// Normal is the outward unit normal of the solid at Point.
	Normal  r3.Vec
	Surface int
	// Dist is the distance from the query point, or the segment parameter
	// for segment queries.
	Dist float64
}

// Geometry is the region to mesh: the part of bounds on the meshable side
// of every surface.
type Geometry struct {
	surfaces []Surface
	features *FeatureEdgeMesh
	bounds   d3.Box
	eps      float64
}

// New returns the geometry of surfaces within bounds. features may be nil.
func New(bounds r3.Box, surfaces []Surface, features *FeatureEdgeMesh) (*Geometry, error) {
	bb := d3.Box(bounds)
	if bb.IsEmpty() || d3.Min(bb.Size()) <= 0 {
		return nil, fmt.Errorf("degenerate geometry bounds %v", bounds)
	}
	if len(surfaces) == 0 {
		return nil, errors.New("geometry has no surfaces")
	}
	for i, s := range surfaces {
		if s.Shape == nil {
			return nil, fmt.Errorf("surface %d %q has no shape", i, s.Name)
		}
	}
	if features == nil {
		features = NewFeatureEdgeMesh(nil, nil)
	}
	return &Geometry{
		surfaces: surfaces,
		features: features,
		bounds:   bb,
		eps:      1e-7 * bb.Diagonal(),
	}, nil
}

func (g *Geometry) Bounds() r3.Box             { return r3.Box(g.bounds) }
func (g *Geometry) Surfaces() []Surface        { return g.surfaces }
func (g *Geometry) Features() *FeatureEdgeMesh { return g.features }

// Tolerance is the length below which geometric queries do not resolve.
func (g *Geometry) Tolerance() float64 { return g.eps }

// Inside reports whether p lies strictly within the meshed region.
func (g *Geometry) Inside(p r3.Vec) bool {
	if !g.bounds.Contains(p) {
		return false
	}
	for _, s := range g.surfaces {
		switch s.Side {
		case Inside:
			if s.Shape.Evaluate(p) >= 0 {
				return false
			}
		case Outside:
			if s.Shape.Evaluate(p) <= 0 {
				return false
			}
		}
	}
	return true
}

// Distance returns the unsigned distance from p to the closest surface and
// that surface's index.
func (g *Geometry) Distance(p r3.Vec) (float64, int) {
	best, idx := math.Inf(1), -1
	for i, s := range g.surfaces {
		if d := math.Abs(s.Shape.Evaluate(p)); d < best {
			best, idx = d, i
		}
	}
	return best, idx
}

// Nearest returns the surface point closest to p if one lies within maxDist.
func (g *Geometry) Nearest(p r3.Vec, maxDist float64) (Hit, bool) {
	d, idx := g.Distance(p)
	if idx < 0 || d > maxDist {
		return Hit{}, false
	}
	var q, n r3.Vec
	switch shape := g.surfaces[idx].Shape.(type) {
	case *TriMesh:
		var tri int
		q, tri, _ = shape.Closest(p)
		n = shape.FaceNormal(tri)
	default:
		q, n = Project(shape, p, g.eps)
	}
	return Hit{Point: q, Normal: n, Surface: idx, Dist: r3.Norm(r3.Sub(p, q))}, true
}

// Normal returns the outward unit normal of surface i near p.
func (g *Geometry) Normal(i int, p r3.Vec) r3.Vec {
	switch shape := g.surfaces[i].Shape.(type) {
	case *TriMesh:
		_, tri, _ := shape.Closest(p)
		return shape.FaceNormal(tri)
	default:
		return Gradient(shape, p, g.eps)
	}
}

// MeshNormal returns the unit normal at h pointing out of the meshed region.
// Surfaces meshed on both sides return the solid normal.
func (g *Geometry) MeshNormal(h Hit) r3.Vec {
	if g.surfaces[h.Surface].Side == Outside {
		return r3.Scale(-1, h.Normal)
	}
	return h.Normal
}

// Intersections returns the points where segment a-b crosses a surface
// ordered from a to b. Dist holds the segment parameter in [0, 1].
func (g *Geometry) Intersections(a, b r3.Vec) []Hit {
	var hits []Hit
	ab := r3.Sub(b, a)
	for i, s := range g.surfaces {
		var ts []float64
		if m, ok := s.Shape.(*TriMesh); ok {
			ts = m.SegmentCrossings(a, b)
		} else {
			ts = segmentCrossings(s.Shape, a, b, g.eps)
		}
		for _, t := range ts {
			p := r3.Add(a, r3.Scale(t, ab))
			hits = append(hits, Hit{Point: p, Normal: g.Normal(i, p), Surface: i, Dist: t})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Dist < hits[j].Dist })
	return hits
}

// AnyIntersection reports whether segment a-b crosses a surface.
func (g *Geometry) AnyIntersection(a, b r3.Vec) bool {
	for _, s := range g.surfaces {
		if m, ok := s.Shape.(*TriMesh); ok {
			if len(m.SegmentCrossings(a, b)) > 0 {
				return true
			}
			continue
		}
		// A sign change between the ends settles most segments without tracing.
		fa, fb := s.Shape.Evaluate(a), s.Shape.Evaluate(b)
		if (fa < 0) != (fb < 0) {
			return true
		}
		if math.Min(math.Abs(fa), math.Abs(fb)) > r3.Norm(r3.Sub(b, a)) {
			continue
		}
		if len(segmentCrossings(s.Shape, a, b, g.eps)) > 0 {
			return true
		}
	}
	return false
}
