package cvmesh

import (
	"math"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/diag"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxBacktracks bounds the halvings of a displacement that would carry a
// point across or too near the boundary.
const maxBacktracks = 10

// endpoint is the state of an edge end relevant to removal decisions.
type endpoint struct {
	internal bool
	fixed    bool
	removed  bool
	index    int
}

func (e endpoint) mobile() bool { return e.internal && !e.fixed }

// shortEdge decides the fate of the ends of an edge shorter than the
// removal distance. Two internal ends that are both still present are
// replaced by the midpoint. Every mobile end is removed.
func shortEdge(a, b endpoint) (removeA, removeB, insert bool) {
	insert = a.internal && b.internal && !a.removed && !b.removed
	return a.mobile(), b.mobile(), insert
}

// removalCandidate returns which end of an edge too short along an
// alignment direction is removed: 0 for a, 1 for b and -1 for neither.
// The mobile end with the lower global index is chosen so every rank
// holding the edge agrees.
func removalCandidate(a, b endpoint) int {
	if a.removed || b.removed {
		return -1
	}
	switch {
	case a.mobile() && (!b.mobile() || a.index < b.index):
		return 0
	case b.mobile():
		return 1
	}
	return -1
}

// polygonArea returns the area of the planar polygon pts.
func polygonArea(pts []r3.Vec) float64 {
	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}
	return r3.Norm(newellNormal(pts, idx)) / 2
}

// motion accumulates the decisions of one motion iteration.
type motion struct {
	disp    map[delaunay.VertexHandle]r3.Vec
	removed map[delaunay.VertexHandle]bool
	inserts []delaunay.Point
}

func (mo *motion) endpoint(h delaunay.VertexHandle, v *delaunay.Vertex) endpoint {
	return endpoint{internal: v.InternalPoint(), fixed: v.Fixed, removed: mo.removed[h], index: v.Index}
}

// remove marks the vertex h for removal if this rank owns it.
func (mo *motion) remove(h delaunay.VertexHandle, v *delaunay.Vertex) {
	if v.Real() && v.InternalPoint() && !v.Fixed {
		mo.removed[h] = true
	}
}

func (mo *motion) push(h delaunay.VertexHandle, v *delaunay.Vertex, d r3.Vec) {
	if v.Real() && v.InternalPoint() && !v.Fixed {
		mo.disp[h] = r3.Add(mo.disp[h], d)
	}
}

// move runs one motion iteration: every finite edge between internal or
// boundary vertices pushes its ends towards the target size along the
// alignment directions, inserts a point at its midpoint when its dual
// face is too large, or removes an end when too short. The moved points
// are then redistributed, retessellated and reconformed.
func (m *Mesher) move(iter int) (diag.Iteration, error) {
	relax := m.relax.Relaxation(iter)
	mo := m.edgeMotion()

	// Collect the retained internal points at their new positions.
	var (
		pts     []delaunay.Point
		sumDisp float64
		moved   int
		removed int
	)
	m.tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.Real() || !v.InternalPoint() {
			return true
		}
		if mo.removed[h] {
			removed++
			return true
		}
		p := v.Point
		if d, ok := mo.disp[h]; ok {
			d = m.limitDisplacement(p.Pos, r3.Scale(relax, d))
			p.Pos = r3.Add(p.Pos, d)
			sumDisp += r3.Norm(d) / m.sizeOf(v)
			moved++
		}
		pts = append(pts, p)
		return true
	})
	pts = append(pts, mo.inserts...)

	it := diag.Iteration{Iteration: iter, Relaxation: relax}
	var err error
	if sumDisp, err = m.comm.AllReduceSum(sumDisp); err != nil {
		return it, err
	}
	if moved, err = comm.AllReduceSumInt(m.comm, moved); err != nil {
		return it, err
	}
	if moved > 0 {
		it.MeanDisplacement = sumDisp / float64(moved)
	}
	if it.Inserted, err = comm.AllReduceSumInt(m.comm, len(mo.inserts)); err != nil {
		return it, err
	}
	if it.Removed, err = comm.AllReduceSumInt(m.comm, removed); err != nil {
		return it, err
	}
	m.metrics.PointsInserted.Add(float64(len(mo.inserts)))
	m.metrics.PointsRemoved.Add(float64(removed))

	rebalanced, err := m.rebalance(pts, func(delaunay.Point) float64 { return 1 })
	if err != nil {
		return it, err
	}
	if rebalanced {
		if err := m.field.Distribute(m.decomp); err != nil {
			return it, err
		}
	}
	if err := m.rebuild(pts); err != nil {
		return it, err
	}
	if err := m.conformSurfaces(); err != nil {
		return it, err
	}
	owned := 0
	m.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Real() {
			owned++
		}
		return true
	})
	it.Vertices, err = comm.AllReduceSumInt(m.comm, owned)
	return it, err
}

// edgeMotion visits every finite edge between internal or boundary
// vertices and accumulates the displacements, removals and midpoint
// insertions it calls for.
func (m *Mesher) edgeMotion() *motion {
	mc := m.cfg.MotionControl
	rank := m.comm.Rank()
	mo := &motion{
		disp:    make(map[delaunay.VertexHandle]r3.Vec),
		removed: make(map[delaunay.VertexHandle]bool),
	}
	insertAt := func(p r3.Vec) {
		if m.geom.Inside(p) && m.decomp.Owner(p) == rank {
			mo.inserts = append(mo.inserts, delaunay.NewPoint(p, delaunay.Internal))
		}
	}

	var duals []r3.Vec
	m.tess.FiniteEdges(func(e delaunay.Edge) bool {
		ha, hb := m.tess.EdgeVertices(e)
		va, vb := m.tess.Vertex(ha), m.tess.Vertex(hb)
		if !va.InternalOrBoundaryPoint() || !vb.InternalOrBoundaryPoint() || (va.Referred && vb.Referred) {
			return true
		}
		cells := m.tess.IncidentCells(e)
		duals = duals[:0]
		for _, c := range cells {
			if m.tess.HasFarPoint(c) {
				return true
			}
			duals = append(duals, m.tess.Dual(c))
		}
		ab := r3.Sub(vb.Pos, va.Pos)
		length := r3.Norm(ab)
		if length == 0 {
			return true
		}
		unit := r3.Scale(1/length, ab)
		mid := r3.Scale(0.5, r3.Add(va.Pos, vb.Pos))
		s, align := m.field.CellSizeAndAlignment(mid)
		ea, eb := mo.endpoint(ha, va), mo.endpoint(hb, vb)

		if length < mc.RemovalDistCoeff*s {
			removeA, removeB, insert := shortEdge(ea, eb)
			if insert {
				insertAt(mid)
			}
			if removeA {
				mo.remove(ha, va)
			}
			if removeB {
				mo.remove(hb, vb)
			}
			return true
		}

		alignA, alignB := va.Alignment, vb.Alignment
		if !alignA.IsSet() {
			alignA = align
		}
		if !alignB.IsSet() {
			alignB = align
		}
		area := polygonArea(duals) / (s * s)
		w := m.weight.FaceAreaWeight(area)
		for _, dir := range triad.BestAlignedDirections(alignA, alignB) {
			if r3.Norm2(dir) == 0 {
				continue
			}
			cos := r3.Dot(dir, unit)
			if math.Abs(cos) < *mc.CosAlignmentAcceptanceAngle {
				continue
			}
			if cos < 0 {
				dir, cos = r3.Scale(-1, dir), -cos
			}
			proj := length * cos
			if area > mc.FaceAreaRatioCoeff && proj > mc.InsertionDistCoeff*s &&
				cos > *mc.CosInsertionAcceptanceAngle && va.InternalPoint() && vb.InternalPoint() &&
				!m.geom.AnyIntersection(va.Pos, vb.Pos) {
				insertAt(mid)
				break
			}
			if proj < mc.RemovalDistCoeff*s {
				switch removalCandidate(ea, eb) {
				case 0:
					mo.remove(ha, va)
				case 1:
					mo.remove(hb, vb)
				}
				continue
			}
			delta := r3.Scale(0.5*(proj-s)*w, dir)
			mo.push(ha, va, delta)
			mo.push(hb, vb, r3.Scale(-1, delta))
		}
		return true
	})
	return mo
}

// limitDisplacement halves d until moving from p by d neither crosses a
// surface nor leaves p outside or too near the boundary. A displacement
// still rejected after maxBacktracks halvings is dropped.
func (m *Mesher) limitDisplacement(p, d r3.Vec) r3.Vec {
	for i := 0; i < maxBacktracks; i++ {
		q := r3.Add(p, d)
		if m.geom.Inside(q) && !m.geom.AnyIntersection(p, q) {
			s, _ := m.field.CellSizeAndAlignment(q)
			if dist, _ := m.geom.Distance(q); dist >= 2*m.conf.PairDistance(s) {
				return d
			}
		}
		d = r3.Scale(0.5, d)
	}
	return r3.Vec{}
}
