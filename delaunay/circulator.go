package delaunay

// Edge is a tessellation edge given as a cell and the positions of the
// edge's two vertices within it.
type Edge struct {
	Cell CellHandle
	I, J int
}

// EdgeVertices returns the handles of the edge endpoints.
func (t *Tessellation) EdgeVertices(e Edge) (VertexHandle, VertexHandle) {
	c := &t.cells[e.Cell]
	return c.V[e.I], c.V[e.J]
}

// IncidentCells returns the cells around e in circulation order, starting at
// e.Cell.
func (t *Tessellation) IncidentCells(e Edge) []CellHandle {
	vi, vj := t.EdgeVertices(e)
	start := e.Cell
	x := NoVertex
	for k, v := range t.cells[start].V {
		if k != e.I && k != e.J {
			x = v
			break
		}
	}
	ring := []CellHandle{start}
	cur := start
	for len(ring) <= t.live {
		cell := &t.cells[cur]
		next := cell.N[cell.Index(x)]
		// The vertex shared with next besides the edge is crossed next.
		y := NoVertex
		for _, v := range cell.V {
			if v != vi && v != vj && v != x {
				y = v
				break
			}
		}
		if next == NoCell || next == start {
			break
		}
		ring = append(ring, next)
		cur, x = next, y
	}
	return ring
}

// IncidentCellsOf returns every cell incident to v.
func (t *Tessellation) IncidentCellsOf(v VertexHandle) []CellHandle {
	start := t.verts[v].cell
	if start == NoCell || t.cells[start].dead || !t.cells[start].Has(v) {
		return nil
	}
	seen := map[CellHandle]bool{start: true}
	out := []CellHandle{start}
	for k := 0; k < len(out); k++ {
		for _, n := range t.cells[out[k]].N {
			if n == NoCell || seen[n] || !t.cells[n].Has(v) {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// AdjacentVertices returns the vertices sharing an edge with v, far vertices
// included.
func (t *Tessellation) AdjacentVertices(v VertexHandle) []VertexHandle {
	var out []VertexHandle
	seen := make(map[VertexHandle]bool)
	for _, c := range t.IncidentCellsOf(v) {
		for _, w := range t.cells[c].V {
			if w == v || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// IncidentEdge returns an edge joining v and w, false if there is none.
func (t *Tessellation) IncidentEdge(v, w VertexHandle) (Edge, bool) {
	for _, c := range t.IncidentCellsOf(v) {
		cell := &t.cells[c]
		if j := cell.Index(w); j >= 0 {
			return Edge{Cell: c, I: cell.Index(v), J: j}, true
		}
	}
	return Edge{}, false
}

// FiniteEdges calls fn once for every edge between two non-far vertices
// until fn returns false.
func (t *Tessellation) FiniteEdges(fn func(Edge) bool) {
	seen := make(map[faceKey]struct{}, 7*t.NumVertices())
	for c := range t.cells {
		cell := &t.cells[c]
		if cell.dead {
			continue
		}
		for i := 0; i < 3; i++ {
			if cell.V[i] < 4 {
				continue
			}
			for j := i + 1; j < 4; j++ {
				if cell.V[j] < 4 {
					continue
				}
				key := makeFaceKey(cell.V[i], cell.V[j])
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				if !fn(Edge{Cell: CellHandle(c), I: i, J: j}) {
					return
				}
			}
		}
	}
}
