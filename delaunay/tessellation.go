package delaunay

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// farScale is the circumradius of the far tetrahedron relative to the
// diagonal of the tessellation bounds.
const farScale = 50

// Tessellation is an incremental 3-D Delaunay tessellation. All sites are
// enclosed by a tetrahedron of four Far vertices which occupy handles 0 to 3.
type Tessellation struct {
	bounds  r3.Box
	prec    Precision
	rng     *rand.Rand
	dupTol2 float64

	verts []Vertex
	cells []Cell
	free  []CellHandle
	last  CellHandle
	live  int

	dropped int

	// scratch for insertion.
	inCavity []uint32
	stamp    uint32
	cavity   []CellHandle
	stack    []CellHandle

	undo journal
}

// journal holds the state overwritten by the insertions since Begin.
type journal struct {
	active  bool
	nVerts  int
	nCells  int
	free    []CellHandle
	last    CellHandle
	live    int
	dropped int
	cells   map[CellHandle]Cell
	verts   map[VertexHandle]CellHandle
}

// Option configures a Tessellation.
type Option func(*Tessellation)

// WithPrecision selects the arithmetic used by Dual.
func WithPrecision(p Precision) Option {
	return func(t *Tessellation) { t.prec = p }
}

// WithRand sets the generator used to randomize point location walks.
func WithRand(rng *rand.Rand) Option {
	return func(t *Tessellation) { t.rng = rng }
}

// WithDuplicateTolerance sets the distance below which an inserted point is
// considered coincident with an existing site.
func WithDuplicateTolerance(tol float64) Option {
	return func(t *Tessellation) { t.dupTol2 = tol * tol }
}

// New returns an empty tessellation able to hold points in and around bounds.
func New(bounds r3.Box, opts ...Option) *Tessellation {
	diag := r3.Norm(r3.Sub(bounds.Max, bounds.Min))
	if diag == 0 {
		diag = 1
	}
	t := &Tessellation{
		bounds:  bounds,
		dupTol2: (1e-10 * diag) * (1e-10 * diag),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(1))
	}
	t.Reset()
	return t
}

// Reset removes every site and leaves the far tetrahedron.
func (t *Tessellation) Reset() {
	c := r3.Scale(0.5, r3.Add(t.bounds.Min, t.bounds.Max))
	r := farScale * math.Max(r3.Norm(r3.Sub(t.bounds.Max, t.bounds.Min)), 1)
	dirs := [4]r3.Vec{{X: 1, Y: 1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: -1, Y: -1, Z: 1}}
	t.verts = t.verts[:0]
	for _, d := range dirs {
		t.verts = append(t.verts, Vertex{Point: NewPoint(r3.Add(c, r3.Scale(r, d)), Far), cell: 0})
	}
	if orient3d(t.verts[0].Pos, t.verts[1].Pos, t.verts[2].Pos, t.verts[3].Pos) < 0 {
		t.verts[2], t.verts[3] = t.verts[3], t.verts[2]
	}
	t.cells = append(t.cells[:0], Cell{
		V:         [4]VertexHandle{0, 1, 2, 3},
		N:         [4]CellHandle{NoCell, NoCell, NoCell, NoCell},
		DualIndex: DualUnassigned,
	})
	t.free = t.free[:0]
	t.last = 0
	t.live = 1
	t.dropped = 0
	t.inCavity = t.inCavity[:0]
	t.stamp = 0
	t.undo = journal{}
}

// Begin starts recording insertions so that Rollback can undo them.
func (t *Tessellation) Begin() {
	t.undo = journal{
		active:  true,
		nVerts:  len(t.verts),
		nCells:  len(t.cells),
		free:    append([]CellHandle(nil), t.free...),
		last:    t.last,
		live:    t.live,
		dropped: t.dropped,
		cells:   make(map[CellHandle]Cell),
		verts:   make(map[VertexHandle]CellHandle),
	}
}

// Commit keeps the insertions since Begin.
func (t *Tessellation) Commit() { t.undo = journal{} }

// Rollback restores the tessellation to its state at Begin. It does nothing
// outside Begin and Commit.
func (t *Tessellation) Rollback() {
	j := &t.undo
	if !j.active {
		return
	}
	t.verts = t.verts[:j.nVerts]
	for v, c := range j.verts {
		t.verts[v].cell = c
	}
	t.cells = t.cells[:j.nCells]
	for c, cell := range j.cells {
		t.cells[c] = cell
	}
	if len(t.inCavity) > j.nCells {
		t.inCavity = t.inCavity[:j.nCells]
	}
	t.free = j.free
	t.last = j.last
	t.live = j.live
	t.dropped = j.dropped
	t.undo = journal{}
}

// saveCell records c before its first change since Begin.
func (t *Tessellation) saveCell(c CellHandle) {
	j := &t.undo
	if !j.active || int(c) >= j.nCells {
		return
	}
	if _, ok := j.cells[c]; !ok {
		j.cells[c] = t.cells[c]
	}
}

func (t *Tessellation) saveVertex(v VertexHandle) {
	j := &t.undo
	if !j.active || int(v) >= j.nVerts {
		return
	}
	if _, ok := j.verts[v]; !ok {
		j.verts[v] = t.verts[v].cell
	}
}

// Bounds returns the box the tessellation was created for.
func (t *Tessellation) Bounds() r3.Box { return t.bounds }

// Precision returns the arithmetic used by Dual.
func (t *Tessellation) Precision() Precision { return t.prec }

// NumVertices returns the number of sites, far vertices excluded.
func (t *Tessellation) NumVertices() int { return len(t.verts) - 4 }

// NumCells returns the number of live cells, far cells included.
func (t *Tessellation) NumCells() int { return t.live }

// Dropped returns the number of points dropped as coincident since the last
// Reset.
func (t *Tessellation) Dropped() int { return t.dropped }

// Vertex returns the vertex addressed by v. The pointer is invalidated by
// the next insertion.
func (t *Tessellation) Vertex(v VertexHandle) *Vertex { return &t.verts[v] }

// Cell returns the cell addressed by c. The pointer is invalidated by the
// next insertion.
func (t *Tessellation) Cell(c CellHandle) *Cell { return &t.cells[c] }

// CellPoints returns the vertex positions of c.
func (t *Tessellation) CellPoints(c CellHandle) [4]r3.Vec {
	cell := &t.cells[c]
	return [4]r3.Vec{t.verts[cell.V[0]].Pos, t.verts[cell.V[1]].Pos, t.verts[cell.V[2]].Pos, t.verts[cell.V[3]].Pos}
}

// ForEachVertex calls fn for every site, far vertices excluded, until fn
// returns false.
func (t *Tessellation) ForEachVertex(fn func(VertexHandle, *Vertex) bool) {
	for i := 4; i < len(t.verts); i++ {
		if !fn(VertexHandle(i), &t.verts[i]) {
			return
		}
	}
}

// ForEachCell calls fn for every live cell until fn returns false.
func (t *Tessellation) ForEachCell(fn func(CellHandle, *Cell) bool) {
	for i := range t.cells {
		if t.cells[i].dead {
			continue
		}
		if !fn(CellHandle(i), &t.cells[i]) {
			return
		}
	}
}

// Dual returns the circumcentre of c.
func (t *Tessellation) Dual(c CellHandle) r3.Vec {
	p := t.CellPoints(c)
	if t.prec == Exact {
		cc, _ := exactCircumcenter(p[0], p[1], p[2], p[3])
		return cc
	}
	cc, ok := circumcenter(p[0], p[1], p[2], p[3])
	if !ok {
		cc, _ = exactCircumcenter(p[0], p[1], p[2], p[3])
	}
	return cc
}

// CellQuality returns a scale-free flatness measure of c in [0, 1]. Values
// near zero flag numerically coplanar cells.
func (t *Tessellation) CellQuality(c CellHandle) float64 {
	p := t.CellPoints(c)
	return tetQuality(p[0], p[1], p[2], p[3])
}

// Insert adds a site at p. If p coincides with an existing site or lies
// outside the far tetrahedron the point is dropped and Insert returns the
// coincident vertex (or NoVertex) and false.
func (t *Tessellation) Insert(p r3.Vec, info Info) (VertexHandle, bool) {
	c := t.Locate(p)
	if c == NoCell {
		t.dropped++
		return NoVertex, false
	}
	if v := t.coincidentNear(c, p); v != NoVertex {
		t.dropped++
		return v, false
	}
	if !t.findCavity(c, p) {
		t.saveCell(c)
		t.cells[c].FilterCount++
		t.dropped++
		return NoVertex, false
	}
	v := VertexHandle(len(t.verts))
	t.verts = append(t.verts, Vertex{Point: Point{Pos: p, Info: info}})
	t.fillCavity(v)
	return v, true
}

// InsertPoints inserts pts in order and returns the number inserted and the
// handle of each point, NoVertex for dropped ones.
func (t *Tessellation) InsertPoints(pts []Point) (int, []VertexHandle) {
	handles := make([]VertexHandle, len(pts))
	n := 0
	for i := range pts {
		v, ok := t.Insert(pts[i].Pos, pts[i].Info)
		if !ok {
			handles[i] = NoVertex
			continue
		}
		handles[i] = v
		n++
	}
	return n, handles
}

// Coincident reports whether inserting p would be dropped as a duplicate.
func (t *Tessellation) Coincident(p r3.Vec) bool {
	c := t.Locate(p)
	if c == NoCell {
		return true
	}
	return t.coincidentNear(c, p) != NoVertex
}

func (t *Tessellation) coincidentNear(c CellHandle, p r3.Vec) VertexHandle {
	check := func(c CellHandle) VertexHandle {
		for _, v := range t.cells[c].V {
			if v >= 4 && r3.Norm2(r3.Sub(t.verts[v].Pos, p)) <= t.dupTol2 {
				return v
			}
		}
		return NoVertex
	}
	if v := check(c); v != NoVertex {
		return v
	}
	for _, n := range t.cells[c].N {
		if n == NoCell {
			continue
		}
		if v := check(n); v != NoVertex {
			return v
		}
	}
	return NoVertex
}

// Locate returns a cell whose closure contains p, or NoCell if p lies
// outside the far tetrahedron. It walks from the last cell visited, crossing
// faces p lies beyond, starting each step at a random face.
func (t *Tessellation) Locate(p r3.Vec) CellHandle {
	c := t.last
	if c < 0 || int(c) >= len(t.cells) || t.cells[c].dead {
		c = t.anyLiveCell()
	}
	maxSteps := 4*len(t.cells) + 16
walk:
	for step := 0; step < maxSteps; step++ {
		cell := &t.cells[c]
		pts := t.CellPoints(c)
		start := t.rng.Intn(4)
		for k := 0; k < 4; k++ {
			i := (start + k) % 4
			q := pts
			q[i] = p
			if orient3d(q[0], q[1], q[2], q[3]) < 0 {
				if cell.N[i] == NoCell {
					return NoCell
				}
				c = cell.N[i]
				continue walk
			}
		}
		t.last = c
		return c
	}
	return t.locateBruteForce(p)
}

func (t *Tessellation) locateBruteForce(p r3.Vec) CellHandle {
outer:
	for i := range t.cells {
		if t.cells[i].dead {
			continue
		}
		pts := t.CellPoints(CellHandle(i))
		for k := 0; k < 4; k++ {
			q := pts
			q[k] = p
			if orient3d(q[0], q[1], q[2], q[3]) < 0 {
				continue outer
			}
		}
		t.last = CellHandle(i)
		return CellHandle(i)
	}
	return NoCell
}

func (t *Tessellation) anyLiveCell() CellHandle {
	for i := range t.cells {
		if !t.cells[i].dead {
			return CellHandle(i)
		}
	}
	panic("delaunay: tessellation has no live cell")
}

func (t *Tessellation) nextStamp() uint32 {
	for len(t.inCavity) < len(t.cells) {
		t.inCavity = append(t.inCavity, 0)
	}
	t.stamp++
	if t.stamp == 0 {
		for i := range t.inCavity {
			t.inCavity[i] = 0
		}
		t.stamp = 1
	}
	return t.stamp
}

// findCavity collects the cells whose circumsphere strictly contains p,
// starting from c, and checks that p sees every cavity boundary face.
func (t *Tessellation) findCavity(c CellHandle, p r3.Vec) bool {
	stamp := t.nextStamp()
	t.cavity = append(t.cavity[:0], c)
	t.stack = append(t.stack[:0], c)
	t.inCavity[c] = stamp
	for len(t.stack) > 0 {
		cur := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		for _, n := range t.cells[cur].N {
			if n == NoCell || t.inCavity[n] == stamp {
				continue
			}
			q := t.CellPoints(n)
			if inSphere(q[0], q[1], q[2], q[3], p) > 0 {
				t.inCavity[n] = stamp
				t.cavity = append(t.cavity, n)
				t.stack = append(t.stack, n)
			}
		}
	}
	for _, x := range t.cavity {
		cell := &t.cells[x]
		for i, n := range cell.N {
			if n != NoCell && t.inCavity[n] == stamp {
				continue
			}
			q := t.CellPoints(x)
			q[i] = p
			if orient3d(q[0], q[1], q[2], q[3]) <= 0 {
				return false
			}
		}
	}
	return true
}

type faceKey [2]VertexHandle

func makeFaceKey(a, b VertexHandle) faceKey {
	if a > b {
		a, b = b, a
	}
	return faceKey{a, b}
}

type faceRef struct {
	c CellHandle
	i int
}

// fillCavity replaces the cavity found by findCavity by the cells joining v
// to the cavity boundary.
func (t *Tessellation) fillCavity(v VertexHandle) {
	stamp := t.stamp
	open := make(map[faceKey]faceRef, 2*len(t.cavity))
	var created []CellHandle
	for _, x := range t.cavity {
		for i := 0; i < 4; i++ {
			n := t.cells[x].N[i]
			if n != NoCell && int(n) < len(t.inCavity) && t.inCavity[n] == stamp {
				continue
			}
			nc := t.allocCell()
			cell := &t.cells[nc]
			cell.V = t.cells[x].V
			cell.V[i] = v
			cell.N = [4]CellHandle{NoCell, NoCell, NoCell, NoCell}
			cell.N[i] = n
			cell.DualIndex = DualUnassigned
			if n != NoCell {
				t.saveCell(n)
				nb := &t.cells[n]
				nb.N[nb.neighbourIndex(x)] = nc
			}
			for j := 0; j < 4; j++ {
				if j == i {
					continue
				}
				// Face j holds v and the two vertices other than V[i] and V[j].
				var pair [2]VertexHandle
				k := 0
				for m := 0; m < 4; m++ {
					if m != i && m != j {
						pair[k] = cell.V[m]
						k++
					}
				}
				key := makeFaceKey(pair[0], pair[1])
				if other, ok := open[key]; ok {
					cell.N[j] = other.c
					t.cells[other.c].N[other.i] = nc
					delete(open, key)
				} else {
					open[key] = faceRef{c: nc, i: j}
				}
			}
			created = append(created, nc)
		}
	}
	for _, x := range t.cavity {
		t.saveCell(x)
		t.cells[x].dead = true
		t.free = append(t.free, x)
		t.live--
	}
	for _, nc := range created {
		for _, cv := range t.cells[nc].V {
			t.saveVertex(cv)
			t.verts[cv].cell = nc
		}
	}
	t.last = created[0]
}

func (t *Tessellation) allocCell() CellHandle {
	t.live++
	if n := len(t.free); n > 0 {
		// Cells of the current cavity are freed only after it is filled.
		c := t.free[n-1]
		t.free = t.free[:n-1]
		t.saveCell(c)
		t.cells[c] = Cell{DualIndex: DualUnassigned}
		t.inCavity[c] = 0
		return c
	}
	t.cells = append(t.cells, Cell{DualIndex: DualUnassigned})
	t.inCavity = append(t.inCavity, 0)
	return CellHandle(len(t.cells) - 1)
}

// NearestVertex returns the site closest to p, far vertices excluded, or
// NoVertex if the tessellation holds no site.
func (t *Tessellation) NearestVertex(p r3.Vec) VertexHandle {
	if len(t.verts) == 4 {
		return NoVertex
	}
	c := t.Locate(p)
	best := NoVertex
	bestD := math.Inf(1)
	consider := func(v VertexHandle) {
		if v < 4 {
			return
		}
		if d := r3.Norm2(r3.Sub(t.verts[v].Pos, p)); d < bestD {
			best, bestD = v, d
		}
	}
	if c != NoCell {
		for _, v := range t.cells[c].V {
			consider(v)
		}
	}
	if best == NoVertex {
		for i := 4; i < len(t.verts); i++ {
			consider(VertexHandle(i))
		}
		return best
	}
	// Greedy descent over the Delaunay graph reaches the nearest site.
	for {
		improved := false
		for _, w := range t.AdjacentVertices(best) {
			before := best
			consider(w)
			if best != before {
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// ErrValidation is returned by Validate and ValidateDelaunay.
var ErrValidation = errors.New("delaunay: invalid tessellation")

// Validate checks neighbour symmetry and positive orientation of every live
// cell.
func (t *Tessellation) Validate() error {
	var err error
	t.ForEachCell(func(c CellHandle, cell *Cell) bool {
		p := t.CellPoints(c)
		if orient3d(p[0], p[1], p[2], p[3]) <= 0 {
			err = fmt.Errorf("%w: cell %d %v not positively oriented", ErrValidation, c, cell.V)
			return false
		}
		for i, n := range cell.N {
			if n == NoCell {
				if !t.HasFarPoint(c) {
					err = fmt.Errorf("%w: finite cell %d has no neighbour across face %d", ErrValidation, c, i)
					return false
				}
				continue
			}
			nb := &t.cells[n]
			if nb.dead {
				err = fmt.Errorf("%w: cell %d neighbours dead cell %d", ErrValidation, c, n)
				return false
			}
			j := nb.neighbourIndex(c)
			if j < 0 {
				err = fmt.Errorf("%w: cell %d not a neighbour of its neighbour %d", ErrValidation, c, n)
				return false
			}
			for m, v := range cell.V {
				if m != i && !nb.Has(v) {
					err = fmt.Errorf("%w: cells %d and %d do not share face %d", ErrValidation, c, n, i)
					return false
				}
			}
			if nb.Has(cell.V[i]) {
				err = fmt.Errorf("%w: cells %d and %d share opposite vertex %d", ErrValidation, c, n, cell.V[i])
				return false
			}
		}
		return true
	})
	return err
}

// ValidateDelaunay checks that no vertex opposite a cell lies strictly inside
// its circumsphere.
func (t *Tessellation) ValidateDelaunay() error {
	var err error
	t.ForEachCell(func(c CellHandle, cell *Cell) bool {
		p := t.CellPoints(c)
		for _, n := range cell.N {
			if n == NoCell {
				continue
			}
			nb := &t.cells[n]
			opp := nb.V[nb.neighbourIndex(c)]
			if inSphere(p[0], p[1], p[2], p[3], t.verts[opp].Pos) > 0 {
				err = fmt.Errorf("%w: vertex %d inside circumsphere of cell %d", ErrValidation, opp, c)
				return false
			}
		}
		return true
	})
	return err
}
