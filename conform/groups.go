package conform

import (
	"math"
	"sort"

	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/internal/spatial"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

type member struct {
	pos r3.Vec
	typ delaunay.Type
}

func (e *Engine) newGroup(kind Kind, origin r3.Vec, size float64, align triad.Triad, surface int, members []member) Group {
	g := Group{Kind: kind, Origin: origin, Points: make([]delaunay.Point, len(members))}
	for i, m := range members {
		p := delaunay.NewPoint(m.pos, m.typ)
		p.Proc = e.rank
		p.Fixed = true
		p.TargetSize = size
		p.Alignment = align
		p.Surface = surface
		g.Points[i] = p
	}
	return g
}

// SurfaceGroup returns the pair straddling surface hit h for cell size s.
// ok is false when the meshable side member falls outside the meshed
// region, which happens where the surface curves sharply.
func (e *Engine) SurfaceGroup(h geometry.Hit, s float64) (Group, bool) {
	d := e.PairDistance(s)
	surf := e.geom.Surfaces()[h.Surface]
	if surf.Side == geometry.Both {
		n := h.Normal
		in, out := r3.Sub(h.Point, r3.Scale(d, n)), r3.Add(h.Point, r3.Scale(d, n))
		if !e.geom.Inside(in) || !e.geom.Inside(out) {
			return Group{}, false
		}
		return e.newGroup(BafflePair, h.Point, s, triad.FromNormal(n), h.Surface, []member{
			{pos: in, typ: delaunay.InternalSurfaceBaffle},
			{pos: out, typ: delaunay.ExternalSurfaceBaffle},
		}), true
	}
	m := e.geom.MeshNormal(h)
	in := r3.Sub(h.Point, r3.Scale(d, m))
	if !e.geom.Inside(in) {
		return Group{}, false
	}
	return e.newGroup(SurfacePair, h.Point, s, triad.FromNormal(m), h.Surface, []member{
		{pos: in, typ: delaunay.InternalSurface},
		{pos: r3.Add(h.Point, r3.Scale(d, m)), typ: delaunay.ExternalSurface},
	}), true
}

// nearFeature reports whether p lies within the exclusion radius of a
// feature point or feature edge for cell size s.
func (e *Engine) nearFeature(p r3.Vec, s float64) bool {
	f := e.geom.Features()
	if _, _, ok := f.NearestFeaturePoint(p, e.cfg.NearFeaturePointCoeff*s); ok {
		return true
	}
	_, ok := f.NearestEdge(p, e.cfg.NearFeatureEdgeCoeff*s)
	return ok
}

// surfacePoints indexes the surface points of tess for exclusion queries.
func (e *Engine) surfacePoints(tess *delaunay.Tessellation) *spatial.Set {
	set := spatial.New(e.geom.Tolerance())
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.SurfacePoint() {
			set.Add(v.Pos)
		}
		return true
	})
	return set
}

// tryHit appends the surface group for h unless another rank owns it or it
// lies near a feature or an existing surface point.
func (e *Engine) tryHit(h geometry.Hit, s float64, existing *spatial.Set, groups *[]Group) bool {
	if !e.owns(h.Point) || e.nearFeature(h.Point, s) {
		return false
	}
	d := e.PairDistance(s)
	if existing.Near(h.Point, e.cfg.NearSurfacePointCoeff*s+d) {
		return false
	}
	g, ok := e.SurfaceGroup(h, s)
	if !ok {
		return false
	}
	for _, p := range g.Points {
		existing.Add(p.Pos)
	}
	*groups = append(*groups, g)
	return true
}

// SurfaceGroups returns the surface pairs for the surface points nearest
// to internal points of tess within the search distance.
func (e *Engine) SurfaceGroups(tess *delaunay.Tessellation, sizer Sizer) []Group {
	existing := e.surfacePoints(tess)
	var groups []Group
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.InternalPoint() {
			return true
		}
		s, _ := sizer.CellSizeAndAlignment(v.Pos)
		if h, ok := e.geom.Nearest(v.Pos, e.cfg.SearchDistanceCoeff*s); ok {
			e.tryHit(h, s, existing, &groups)
		}
		return true
	})
	return groups
}

// CrossingGroups returns the surface pairs conforming the surface where
// the tessellation still crosses it: at the first crossing of every edge
// from an internal point, and where the dual cell of an internal point
// reaches past a surface.
func (e *Engine) CrossingGroups(tess *delaunay.Tessellation, sizer Sizer) []Group {
	existing := e.surfacePoints(tess)
	var groups []Group
	e.edgeCrossings(tess, sizer, existing, &groups)
	e.dualCellCrossings(tess, sizer, existing, &groups)
	return groups
}

// edgeCrossings adds a pair at the first surface crossing of every edge
// from an internal point to a non-far vertex, one of them owned.
func (e *Engine) edgeCrossings(tess *delaunay.Tessellation, sizer Sizer, existing *spatial.Set, groups *[]Group) {
	tess.FiniteEdges(func(ed delaunay.Edge) bool {
		a, b := tess.EdgeVertices(ed)
		va, vb := tess.Vertex(a), tess.Vertex(b)
		if (!va.InternalPoint() && !vb.InternalPoint()) || (va.Referred && vb.Referred) {
			return true
		}
		if !va.InternalPoint() {
			va, vb = vb, va
		}
		hits := e.geom.Intersections(va.Pos, vb.Pos)
		if len(hits) == 0 {
			return true
		}
		s, _ := sizer.CellSizeAndAlignment(hits[0].Point)
		e.tryHit(hits[0], s, existing, groups)
		return true
	})
}

// dualCellCrossings adds pairs where the segments from an internal point to
// the circumcentres of its cells cross a surface, nearest crossings first.
// A point with an unbounded dual cell is paired with its nearest surface
// point.
func (e *Engine) dualCellCrossings(tess *delaunay.Tessellation, sizer Sizer, existing *spatial.Set, groups *[]Group) {
	var hits []geometry.Hit
	tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.InternalPoint() {
			return true
		}
		clearance, _ := e.geom.Distance(v.Pos)
		hits = hits[:0]
		unbounded := false
		for _, c := range tess.IncidentCellsOf(h) {
			if tess.HasFarPoint(c) {
				unbounded = true
				continue
			}
			cc := tess.Dual(c)
			if r3.Norm(r3.Sub(cc, v.Pos)) < clearance {
				continue
			}
			if x := e.geom.Intersections(v.Pos, cc); len(x) > 0 {
				hits = append(hits, x[0])
			}
		}
		if unbounded {
			if near, ok := e.geom.Nearest(v.Pos, math.Inf(1)); ok {
				hits = append(hits, near)
			}
		}
		sort.Slice(hits, func(i, j int) bool {
			return r3.Norm2(r3.Sub(hits[i].Point, v.Pos)) < r3.Norm2(r3.Sub(hits[j].Point, v.Pos))
		})
		for _, hit := range hits {
			s, _ := sizer.CellSizeAndAlignment(hit.Point)
			e.tryHit(hit, s, existing, groups)
		}
		return true
	})
}

// meshEdge returns the face normals of edge fe pointing out of the meshed
// region and whether the region is convex along it.
func (e *Engine) meshEdge(fe geometry.FeatureEdge) (m1, m2 r3.Vec, convex, ok bool) {
	side := e.geom.Surfaces()[fe.Surface].Side
	if side == geometry.Both || fe.Status == geometry.Flat || fe.Status == geometry.Open {
		return m1, m2, false, false
	}
	m1, m2 = fe.Normals[0], fe.Normals[1]
	convex = fe.Status == geometry.Convex
	if side == geometry.Outside {
		m1, m2 = r3.Scale(-1, m1), r3.Scale(-1, m2)
		convex = !convex
	}
	return m1, m2, convex, true
}

// FeatureEdgeGroups returns the point groups conforming the convex and
// concave feature edges, spaced along each edge by the local cell size and
// kept clear of the feature points.
func (e *Engine) FeatureEdgeGroups(sizer Sizer) ([]Group, Report) {
	var (
		rep    Report
		groups []Group
	)
	f := e.geom.Features()
	for ei, fe := range f.Edges {
		m1, m2, convex, ok := e.meshEdge(fe)
		if !ok {
			continue
		}
		a, dir, length := f.Points[fe.A], f.Direction(ei), f.Length(ei)
		s0, _ := sizer.CellSizeAndAlignment(a)
		for t := 0.5 * e.cfg.FeatureEdgeSpacingCoeff * s0; t < length; {
			x := r3.Add(a, r3.Scale(t, dir))
			s, _ := sizer.CellSizeAndAlignment(x)
			t += e.cfg.FeatureEdgeSpacingCoeff * s
			if !e.owns(x) {
				continue
			}
			if _, _, near := f.NearestFeaturePoint(x, e.cfg.NearFeaturePointCoeff*s); near {
				continue
			}
			g, ok := e.edgeGroup(x, dir, m1, m2, convex, s, fe.Surface)
			if !ok {
				rep.anomaly("rejectedEdgeGroup", 1)
				continue
			}
			groups = append(groups, g)
		}
	}
	return groups, rep
}

func (e *Engine) edgeGroup(x, dir, m1, m2 r3.Vec, convex bool, s float64, surface int) (Group, bool) {
	d := e.PairDistance(s)
	align := triad.Triad{dir, m1, m2}.Orthonormalize()
	var members []member
	if convex {
		r := r3.Sub(x, r3.Scale(d, r3.Add(m1, m2)))
		members = []member{
			{pos: r, typ: delaunay.InternalFeatureEdge},
			{pos: d3.Reflect(r, x, m1), typ: delaunay.ExternalFeatureEdge},
			{pos: d3.Reflect(r, x, m2), typ: delaunay.ExternalFeatureEdge},
		}
	} else {
		r := r3.Add(x, r3.Scale(d, r3.Add(m1, m2)))
		r1 := d3.Reflect(r, x, m1)
		members = []member{
			{pos: r, typ: delaunay.ExternalFeatureEdge},
			{pos: r1, typ: delaunay.InternalFeatureEdge},
			{pos: d3.Reflect(r, x, m2), typ: delaunay.InternalFeatureEdge},
			{pos: d3.Reflect(r1, x, m2), typ: delaunay.InternalFeatureEdge},
		}
	}
	for _, m := range members {
		if m.typ == delaunay.InternalFeatureEdge && !e.geom.Inside(m.pos) {
			return Group{}, false
		}
	}
	return e.newGroup(EdgeGroup, x, s, align, surface, members), true
}

// FeaturePointGroups returns the point groups conforming the feature points
// where three faces meet. Convex corners get an internal point and its
// reflections across every subset of the face planes; concave corners get
// an external point with constrained reflections. Corners mixing convex and
// concave edges are counted as anomalies and skipped.
func (e *Engine) FeaturePointGroups(sizer Sizer) ([]Group, Report) {
	var (
		rep    Report
		groups []Group
	)
	f := e.geom.Features()
	for _, pi := range f.FeaturePoints() {
		x := f.Points[pi]
		if !e.owns(x) {
			continue
		}
		var (
			normals          []r3.Vec
			nConvex, nOthers int
			surface          = -1
		)
		for _, ei := range f.PointEdges(pi) {
			m1, m2, convex, ok := e.meshEdge(f.Edges[ei])
			if !ok {
				nOthers++
				continue
			}
			surface = f.Edges[ei].Surface
			if convex {
				nConvex++
			}
			for _, m := range [2]r3.Vec{m1, m2} {
				if !containsDirection(normals, m) {
					normals = append(normals, m)
				}
			}
		}
		nEdges := len(f.PointEdges(pi))
		switch {
		case nOthers > 0 || (nConvex > 0 && nConvex < nEdges):
			rep.anomaly("mixedFeaturePoint", 1)
			continue
		case len(normals) != 3:
			rep.anomaly("unsupportedFeaturePoint", 1)
			continue
		}
		s, _ := sizer.CellSizeAndAlignment(x)
		g, ok := e.cornerGroup(x, normals, nConvex == nEdges, s, surface)
		if !ok {
			rep.anomaly("rejectedFeaturePointGroup", 1)
			continue
		}
		groups = append(groups, g)
	}
	return groups, rep
}

func containsDirection(dirs []r3.Vec, v r3.Vec) bool {
	for _, d := range dirs {
		if r3.Dot(d, v) > 1-1e-9 {
			return true
		}
	}
	return false
}

func (e *Engine) cornerGroup(x r3.Vec, normals []r3.Vec, convex bool, s float64, surface int) (Group, bool) {
	d := e.PairDistance(s)
	sum := r3.Add(r3.Add(normals[0], normals[1]), normals[2])
	refType, reflType := delaunay.InternalFeaturePoint, delaunay.ExternalFeaturePoint
	r := r3.Sub(x, r3.Scale(d, sum))
	if !convex {
		refType, reflType = delaunay.ExternalFeaturePoint, delaunay.Constrained
		r = r3.Add(x, r3.Scale(d, sum))
	}
	members := []member{{pos: r, typ: refType}}
	for mask := 1; mask < 1<<len(normals); mask++ {
		p := r
		for i, n := range normals {
			if mask&(1<<i) != 0 {
				p = d3.Reflect(p, x, n)
			}
		}
		members = append(members, member{pos: p, typ: reflType})
	}
	for _, m := range members {
		if m.typ != delaunay.ExternalFeaturePoint && !e.geom.Inside(m.pos) {
			return Group{}, false
		}
	}
	align := triad.Triad{normals[0], normals[1], normals[2]}.Orthonormalize()
	return e.newGroup(FeaturePointGroup, x, s, align, surface, members), true
}
