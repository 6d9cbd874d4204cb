package cvmesh

import (
	"fmt"
	"slices"
	"sort"

	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/internal/errs"
	"github.com/soypat/cvmesh/internal/spatial"
	"gonum.org/v1/gonum/spatial/r3"
)

// PolyMesh is one rank's part of the Voronoi dual mesh in face-owner form.
// Internal faces come first, ordered by owner then neighbour, followed by
// the faces of each patch. Face normals point out of the owner cell.
type PolyMesh struct {
	Points []r3.Vec
	Faces  [][]int
	// Owner holds the owner cell of every face.
	Owner []int
	// Neighbour holds the neighbour cell of every internal face.
	Neighbour []int
	Patches   []Patch
	// CellIndex holds the global index of the vertex generating each cell.
	CellIndex []int
}

// Patch is a contiguous range of boundary faces.
type Patch struct {
	Name        string
	Start, Size int
	// NeighbProc is the rank across a processor patch, -1 otherwise.
	NeighbProc int
}

func (m *PolyMesh) NumCells() int         { return len(m.CellIndex) }
func (m *PolyMesh) NumInternalFaces() int { return len(m.Neighbour) }

const defaultPatch = "defaultFaces"

// indexDualVertices numbers the circumcentres of the cells incident to the
// vertices owning a dual cell and returns their positions. Circumcentres
// within tol of an earlier one share its number. Cells with a far vertex
// are marked DualFar, all others DualUnassigned.
func indexDualVertices(tess *delaunay.Tessellation, tol float64) []r3.Vec {
	tess.ForEachCell(func(_ delaunay.CellHandle, c *delaunay.Cell) bool {
		c.DualIndex = delaunay.DualUnassigned
		return true
	})
	if tol <= 0 {
		tol = 1e-12
	}
	grid := spatial.New(tol)
	var pts []r3.Vec
	tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.OwnsDualCell() {
			return true
		}
		for _, ch := range tess.IncidentCellsOf(h) {
			c := tess.Cell(ch)
			if c.DualIndex != delaunay.DualUnassigned {
				continue
			}
			if tess.HasFarPoint(ch) {
				c.DualIndex = delaunay.DualFar
				continue
			}
			p := tess.Dual(ch)
			if i, ok := grid.Find(p, tol); ok {
				c.DualIndex = i
				continue
			}
			c.DualIndex = grid.Add(p)
			pts = append(pts, p)
		}
		return true
	})
	return pts
}

// buildDualFace returns the dual vertex indices of the cells around e in
// circulation order with repeats removed. The result may hold fewer than
// three indices; such faces are degenerate and the caller discards them.
func buildDualFace(tess *delaunay.Tessellation, e delaunay.Edge) ([]int, error) {
	a, b := tess.EdgeVertices(e)
	va, vb := tess.Vertex(a), tess.Vertex(b)
	if !va.InternalOrBoundaryPoint() && !vb.InternalOrBoundaryPoint() {
		return nil, errs.Invariant("dual face of an edge without an internal or boundary vertex",
			[]r3.Vec{va.Pos, vb.Pos}, va.Index, vb.Index)
	}
	cells := tess.IncidentCells(e)
	face := make([]int, 0, len(cells))
	for _, ch := range cells {
		di := tess.Cell(ch).DualIndex
		if di < 0 {
			p := tess.CellPoints(ch)
			return nil, errs.Invariant(fmt.Sprintf("dual face through cell with dual index %d", di),
				append([]r3.Vec{va.Pos, vb.Pos}, p[:]...), va.Index, vb.Index)
		}
		if n := len(face); n > 0 && face[n-1] == di {
			continue
		}
		face = append(face, di)
	}
	for len(face) > 1 && face[0] == face[len(face)-1] {
		face = face[:len(face)-1]
	}
	// Circumcentres merged by tolerance may repeat out of sequence.
	unique := face[:0]
	for _, di := range face {
		if !slices.Contains(unique, di) {
			unique = append(unique, di)
		}
	}
	return unique, nil
}

// ownerAndNeighbour orders the dual cells a and b of a face, -1 marking a
// side without a cell. Two cells are ordered lowest first; a boundary face
// is owned by its cell. reversed is set when the owner is b.
func ownerAndNeighbour(a, b int) (owner, neighbour int, reversed bool) {
	switch {
	case a < 0:
		return b, -1, b >= 0
	case b < 0:
		return a, -1, false
	case b < a:
		return b, a, true
	}
	return a, b, false
}

// newellNormal returns the area weighted normal of the polygon face.
func newellNormal(pts []r3.Vec, face []int) r3.Vec {
	var n r3.Vec
	for i, vi := range face {
		p, q := pts[vi], pts[face[(i+1)%len(face)]]
		n.X += (p.Y - q.Y) * (p.Z + q.Z)
		n.Y += (p.Z - q.Z) * (p.X + q.X)
		n.Z += (p.X - q.X) * (p.Y + q.Y)
	}
	return n
}

func isBaffle(v *delaunay.Vertex) bool {
	return v.Type == delaunay.InternalSurfaceBaffle || v.Type == delaunay.ExternalSurfaceBaffle
}

type polyFace struct {
	verts            []int
	owner, neighbour int
	// key orders processor faces identically on both ranks.
	key [2]int
}

// buildPolyMesh builds the dual mesh of the vertices of tess owning a dual
// cell. Boundary faces are patched by the name of the surface that created
// their vertices, surfaces indexing names. It returns the number of
// degenerate faces discarded.
func buildPolyMesh(tess *delaunay.Tessellation, names []string, tol float64, rank int) (*PolyMesh, int, error) {
	mesh := &PolyMesh{Points: indexDualVertices(tess, tol)}
	var owned []delaunay.VertexHandle
	tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.OwnsDualCell() {
			owned = append(owned, h)
		}
		return true
	})
	sort.Slice(owned, func(i, j int) bool { return tess.Vertex(owned[i]).Index < tess.Vertex(owned[j]).Index })
	cellOf := make(map[delaunay.VertexHandle]int, len(owned))
	for i, h := range owned {
		cellOf[h] = i
		mesh.CellIndex = append(mesh.CellIndex, tess.Vertex(h).Index)
	}
	cellID := func(h delaunay.VertexHandle) int {
		if c, ok := cellOf[h]; ok {
			return c
		}
		return -1
	}
	patchName := func(va, vb *delaunay.Vertex) string {
		s := va.Surface
		if s < 0 {
			s = vb.Surface
		}
		if s < 0 || s >= len(names) {
			return defaultPatch
		}
		return names[s]
	}

	var (
		internal  []polyFace
		boundary  = make(map[string][]polyFace)
		procs     = make(map[int][]polyFace)
		collapsed int
		ferr      error
	)
	tess.FiniteEdges(func(e delaunay.Edge) bool {
		a, b := tess.EdgeVertices(e)
		ca, cb := cellID(a), cellID(b)
		if ca < 0 && cb < 0 {
			return true
		}
		va, vb := tess.Vertex(a), tess.Vertex(b)
		face, err := buildDualFace(tess, e)
		if err != nil {
			ferr = err
			return false
		}
		if len(face) < 3 {
			collapsed++
			return true
		}
		if r3.Dot(newellNormal(mesh.Points, face), r3.Sub(vb.Pos, va.Pos)) < 0 {
			slices.Reverse(face)
		}
		if ca >= 0 && cb >= 0 && isBaffle(va) && isBaffle(vb) && (va.Pair == vb.Index || vb.Pair == va.Index) {
			back := slices.Clone(face)
			slices.Reverse(back)
			name := patchName(va, vb)
			boundary[name] = append(boundary[name], polyFace{verts: face, owner: ca}, polyFace{verts: back, owner: cb})
			return true
		}
		owner, neighbour, reversed := ownerAndNeighbour(ca, cb)
		if reversed {
			slices.Reverse(face)
		}
		if neighbour >= 0 {
			internal = append(internal, polyFace{verts: face, owner: owner, neighbour: neighbour})
			return true
		}
		other := vb
		if reversed {
			other = va
		}
		if other.Referred && other.InternalOrBoundaryPoint() {
			lo, hi := min(va.Index, vb.Index), max(va.Index, vb.Index)
			procs[other.Proc] = append(procs[other.Proc], polyFace{verts: face, owner: owner, neighbour: -1, key: [2]int{lo, hi}})
			return true
		}
		name := patchName(va, vb)
		boundary[name] = append(boundary[name], polyFace{verts: face, owner: owner, neighbour: -1})
		return true
	})
	if ferr != nil {
		return nil, collapsed, ferr
	}

	sort.Slice(internal, func(i, j int) bool {
		if internal[i].owner != internal[j].owner {
			return internal[i].owner < internal[j].owner
		}
		return internal[i].neighbour < internal[j].neighbour
	})
	for _, f := range internal {
		mesh.Faces = append(mesh.Faces, f.verts)
		mesh.Owner = append(mesh.Owner, f.owner)
		mesh.Neighbour = append(mesh.Neighbour, f.neighbour)
	}
	addPatch := func(name string, proc int, faces []polyFace) {
		mesh.Patches = append(mesh.Patches, Patch{Name: name, Start: len(mesh.Faces), Size: len(faces), NeighbProc: proc})
		for _, f := range faces {
			mesh.Faces = append(mesh.Faces, f.verts)
			mesh.Owner = append(mesh.Owner, f.owner)
		}
	}
	bnames := make([]string, 0, len(boundary))
	for name := range boundary {
		bnames = append(bnames, name)
	}
	sort.Strings(bnames)
	for _, name := range bnames {
		faces := boundary[name]
		sort.SliceStable(faces, func(i, j int) bool { return faces[i].owner < faces[j].owner })
		addPatch(name, -1, faces)
	}
	ranks := make([]int, 0, len(procs))
	for r := range procs {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		faces := procs[r]
		sort.Slice(faces, func(i, j int) bool {
			if faces[i].key[0] != faces[j].key[0] {
				return faces[i].key[0] < faces[j].key[0]
			}
			return faces[i].key[1] < faces[j].key[1]
		})
		addPatch(fmt.Sprintf("procBoundary%dto%d", rank, r), r, faces)
	}
	return mesh, collapsed, nil
}
