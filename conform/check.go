package conform

import "github.com/soypat/cvmesh/delaunay"

// MultipleIntersections flags the edges of tess with an owning endpoint
// that cross the surfaces more than once, and the edges between internal
// points whose endpoints lie on different sides of the meshed region
// without an odd number of crossings between them. Neither is corrected.
func (e *Engine) MultipleIntersections(tess *delaunay.Tessellation) Report {
	var rep Report
	multiple, disagree := 0, 0
	tess.FiniteEdges(func(ed delaunay.Edge) bool {
		a, b := tess.EdgeVertices(ed)
		va, vb := tess.Vertex(a), tess.Vertex(b)
		if !va.OwnsDualCell() && !vb.OwnsDualCell() {
			return true
		}
		hits := e.geom.Intersections(va.Pos, vb.Pos)
		if len(hits) > 1 {
			multiple++
		}
		if va.InternalPoint() && vb.InternalPoint() && len(hits)%2 == 0 &&
			e.geom.Inside(va.Pos) != e.geom.Inside(vb.Pos) {
			disagree++
		}
		return true
	})
	if multiple > 0 {
		rep.anomaly("multipleIntersections", multiple)
	}
	if disagree > 0 {
		rep.anomaly("disagreeingEndpoints", disagree)
	}
	if multiple+disagree > 0 {
		e.log.Warn("surface intersection anomalies", "multiple", multiple, "disagreeing", disagree)
	}
	return rep
}

// UnpairedPoints returns the indices of the owned vertices of tess whose
// pair partner is not present.
func UnpairedPoints(tess *delaunay.Tessellation) []int {
	present := make(map[int]bool, tess.NumVertices())
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		present[v.Index] = true
		return true
	})
	var out []int
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Real() && v.Pair >= 0 && !present[v.Pair] {
			out = append(out, v.Index)
		}
		return true
	})
	return out
}
