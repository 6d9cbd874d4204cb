package delaunay

// VertexHandle addresses a vertex in a Tessellation. Handles are only valid
// until the next Reset.
type VertexHandle int

// CellHandle addresses a cell in a Tessellation. Handles of cells destroyed
// by an insertion may be reused by later insertions.
type CellHandle int

const (
	NoVertex VertexHandle = -1
	NoCell   CellHandle   = -1
)

// Dual index sentinels.
const (
	DualUnassigned = -1
	DualFar        = -2
)

// Cell is a positively oriented tetrahedron. N[i] is the neighbour across
// the face opposite V[i], NoCell on the outer faces of the far tetrahedron.
type Cell struct {
	V [4]VertexHandle
	N [4]CellHandle
	// DualIndex is the index of the cell's dual vertex or one of
	// DualUnassigned and DualFar.
	DualIndex int
	// FilterCount counts degenerate configurations met while inserting into
	// the cell.
	FilterCount int
	dead        bool
}

// Index returns the position of v in c or -1.
func (c *Cell) Index(v VertexHandle) int {
	for i, cv := range c.V {
		if cv == v {
			return i
		}
	}
	return -1
}

// Has reports whether v is a vertex of c.
func (c *Cell) Has(v VertexHandle) bool { return c.Index(v) >= 0 }

func (c *Cell) neighbourIndex(n CellHandle) int {
	for i, cn := range c.N {
		if cn == n {
			return i
		}
	}
	return -1
}

// HasFarPoint reports whether any vertex of c is a far vertex. Such cells
// never contribute a real dual vertex.
func (t *Tessellation) HasFarPoint(c CellHandle) bool {
	return t.anyVertex(c, (*Info).IsFar)
}

func (t *Tessellation) HasReferredPoint(c CellHandle) bool {
	return t.anyVertex(c, func(v *Info) bool { return v.Referred })
}

func (t *Tessellation) HasFeaturePoint(c CellHandle) bool {
	return t.anyVertex(c, (*Info).FeaturePoint)
}

// Real reports whether c has no far vertex and at least one vertex owned by
// this rank.
func (t *Tessellation) Real(c CellHandle) bool {
	return !t.HasFarPoint(c) && t.anyVertex(c, (*Info).Real)
}

// InternalOrBoundaryDualVertex reports whether the dual vertex of c
// belongs to the dual mesh, i.e. c touches a cell-owning vertex class.
func (t *Tessellation) InternalOrBoundaryDualVertex(c CellHandle) bool {
	return !t.HasFarPoint(c) && t.anyVertex(c, (*Info).InternalOrBoundaryPoint)
}

// BoundaryDualVertex reports whether the dual vertex of c lies on the
// conformed boundary: c spans both an internal and an external boundary
// vertex.
func (t *Tessellation) BoundaryDualVertex(c CellHandle) bool {
	return t.anyVertex(c, (*Info).InternalBoundaryPoint) &&
		t.anyVertex(c, (*Info).ExternalBoundaryPoint)
}

func (t *Tessellation) anyVertex(c CellHandle, f func(*Info) bool) bool {
	for _, v := range t.cells[c].V {
		if f(&t.verts[v].Info) {
			return true
		}
	}
	return false
}
