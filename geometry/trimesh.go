package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle is a surface triangle, counter-clockwise seen from outside.
type Triangle [3]r3.Vec

// Normal returns the unit normal of t.
func (t Triangle) Normal() r3.Vec {
	return r3.Unit(r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0])))
}

func (t Triangle) centroid() r3.Vec {
	return r3.Scale(1./3., r3.Add(r3.Add(t[0], t[1]), t[2]))
}

const leafSize = 4

// TriMesh is a welded triangle surface indexed by a bounding interval
// hierarchy. It evaluates as an SDF using angle weighted pseudo normals for
// the sign, so it must be closed and consistently oriented for Evaluate to be
// meaningful. Nearest point and segment queries work on any surface.
type TriMesh struct {
	verts []r3.Vec
	tris  [][3]int
	faceN []r3.Vec
	// edge pseudo normals keyed by vertex pair, lower index first.
	edgeN map[[2]int]r3.Vec
	vertN []r3.Vec
	nodes []bihNode
	bb    d3.Box
	open  int
}

// bihNode is a node of the hierarchy. Interior nodes hold the maximum of the
// left child and the minimum of the right child along axis; leaves hold a
// range of triangles.
type bihNode struct {
	axis        int // -1 for leaves.
	left, right float64
	child       int
	start, end  int
}

// NewTriMesh welds vertices of model closer than weldTol and builds the
// search hierarchy. If weldTol is zero it is inferred from the shortest edge.
func NewTriMesh(model []Triangle, weldTol float64) (*TriMesh, error) {
	if len(model) == 0 {
		return nil, errors.New("empty triangle slice")
	}
	minSide2 := math.MaxFloat64
	for _, t := range model {
		for j := range t {
			minSide2 = math.Min(minSide2, r3.Norm2(r3.Sub(t[(j+1)%3], t[j])))
		}
	}
	if weldTol == 0 {
		weldTol = math.Sqrt(minSide2) / 256
	}
	if weldTol <= 0 || math.IsNaN(weldTol) {
		return nil, fmt.Errorf("degenerate model: shortest edge %g", math.Sqrt(minSide2))
	}
	m := &TriMesh{bb: d3.Empty(), edgeN: make(map[[2]int]r3.Vec)}
	// vertex index cache in weld tolerance units.
	cache := make(map[[3]int64]int)
	ri := 1 / weldTol
	for _, t := range model {
		var tri [3]int
		for j, v := range t {
			key := [3]int64{int64(math.Round(v.X * ri)), int64(math.Round(v.Y * ri)), int64(math.Round(v.Z * ri))}
			idx, ok := cache[key]
			if !ok {
				idx = len(m.verts)
				cache[key] = idx
				m.verts = append(m.verts, v)
				m.bb = m.bb.Include(v)
			}
			tri[j] = idx
		}
		if tri[0] == tri[1] || tri[1] == tri[2] || tri[2] == tri[0] {
			continue // collapsed by welding.
		}
		m.tris = append(m.tris, tri)
	}
	if len(m.tris) == 0 {
		return nil, errors.New("all triangles degenerate after welding")
	}
	m.nodes = make([]bihNode, 1, 2*len(m.tris)/leafSize+1)
	m.subdivide(0, 0, len(m.tris))
	// subdivide reorders triangles.
	m.pseudoNormals()
	return m, nil
}

func (m *TriMesh) triangle(i int) Triangle {
	t := m.tris[i]
	return Triangle{m.verts[t[0]], m.verts[t[1]], m.verts[t[2]]}
}

// Triangles returns the welded triangles.
func (m *TriMesh) Triangles() []Triangle {
	out := make([]Triangle, len(m.tris))
	for i := range m.tris {
		out[i] = m.triangle(i)
	}
	return out
}

// OpenEdges returns the number of edges with a single adjacent triangle.
func (m *TriMesh) OpenEdges() int { return m.open }

func (m *TriMesh) Bounds() r3.Box { return r3.Box(m.bb) }

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

func (m *TriMesh) pseudoNormals() {
	m.faceN = make([]r3.Vec, len(m.tris))
	m.vertN = make([]r3.Vec, len(m.verts))
	count := make(map[[2]int]int)
	for i, tri := range m.tris {
		t := m.triangle(i)
		n := t.Normal()
		m.faceN[i] = n
		for j := range tri {
			// Vertex normals are weighted by the opening angle at the vertex.
			s1, s2 := r3.Sub(t[(j+1)%3], t[j]), r3.Sub(t[(j+2)%3], t[j])
			alpha := math.Acos(math.Max(-1, math.Min(1, r3.Cos(s1, s2))))
			m.vertN[tri[j]] = r3.Add(m.vertN[tri[j]], r3.Scale(alpha, n))
			key := edgeKey(tri[j], tri[(j+1)%3])
			m.edgeN[key] = r3.Add(m.edgeN[key], n)
			count[key]++
		}
	}
	for _, c := range count {
		if c == 1 {
			m.open++
		}
	}
}

func (m *TriMesh) subdivide(node, start, end int) {
	if end-start <= leafSize {
		m.nodes[node] = bihNode{axis: -1, start: start, end: end}
		return
	}
	bb := d3.Empty()
	for _, tri := range m.tris[start:end] {
		for _, v := range tri {
			bb = bb.Include(m.verts[v])
		}
	}
	axis := bb.LongestAxis()
	sub := m.tris[start:end]
	sort.Slice(sub, func(i, j int) bool {
		ti := Triangle{m.verts[sub[i][0]], m.verts[sub[i][1]], m.verts[sub[i][2]]}
		tj := Triangle{m.verts[sub[j][0]], m.verts[sub[j][1]], m.verts[sub[j][2]]}
		return d3.Component(ti.centroid(), axis) < d3.Component(tj.centroid(), axis)
	})
	mid := start + (end-start)/2
	left, right := math.Inf(-1), math.Inf(1)
	for i := start; i < mid; i++ {
		for _, v := range m.tris[i] {
			left = math.Max(left, d3.Component(m.verts[v], axis))
		}
	}
	for i := mid; i < end; i++ {
		for _, v := range m.tris[i] {
			right = math.Min(right, d3.Component(m.verts[v], axis))
		}
	}
	child := len(m.nodes)
	m.nodes = append(m.nodes, bihNode{}, bihNode{})
	m.nodes[node] = bihNode{axis: axis, left: left, right: right, child: child}
	m.subdivide(child, start, mid)
	m.subdivide(child+1, mid, end)
}

// feature of a triangle closest to a point.
type feature int

const (
	featV0 feature = iota
	featV1
	featV2
	featE01
	featE12
	featE20
	featFace
)

// closestOnTriangle returns the point of t closest to p and the feature it
// lies on.
func closestOnTriangle(p r3.Vec, t Triangle) (r3.Vec, feature) {
	a, b, c := t[0], t[1], t[2]
	ab, ac, ap := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(p, a)
	d1, d2 := r3.Dot(ab, ap), r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a, featV0
	}
	bp := r3.Sub(p, b)
	d3, d4 := r3.Dot(ab, bp), r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b, featV1
	}
	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab)), featE01
	}
	cp := r3.Sub(p, c)
	d5, d6 := r3.Dot(ab, cp), r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c, featV2
	}
	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac)), featE20
	}
	va := d3*d6 - d5*d4
	if va <= 0 && d4-d3 >= 0 && d5-d6 >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b))), featE12
	}
	denom := 1 / (va + vb + vc)
	v, w := vb*denom, vc*denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac))), featFace
}

func (m *TriMesh) pseudoNormal(tri int, f feature) r3.Vec {
	t := m.tris[tri]
	switch f {
	case featV0, featV1, featV2:
		return m.vertN[t[f-featV0]]
	case featE01:
		return m.edgeN[edgeKey(t[0], t[1])]
	case featE12:
		return m.edgeN[edgeKey(t[1], t[2])]
	case featE20:
		return m.edgeN[edgeKey(t[2], t[0])]
	}
	return m.faceN[tri]
}

// Closest returns the surface point nearest to p, the index of its triangle
// and the signed distance to it.
func (m *TriMesh) Closest(p r3.Vec) (q r3.Vec, tri int, signed float64) {
	best := math.Inf(1)
	tri = -1
	var feat feature
	m.nearest(p, 0, r3.Box(m.bb), &best, &q, &tri, &feat)
	if tri < 0 {
		return p, -1, math.Inf(1)
	}
	d := math.Sqrt(best)
	if r3.Dot(m.pseudoNormal(tri, feat), r3.Sub(p, q)) < 0 {
		d = -d
	}
	return q, tri, d
}

func (m *TriMesh) nearest(p r3.Vec, node int, bb r3.Box, best *float64, q *r3.Vec, tri *int, feat *feature) {
	n := &m.nodes[node]
	if n.axis < 0 {
		for i := n.start; i < n.end; i++ {
			c, f := closestOnTriangle(p, m.triangle(i))
			if d := r3.Norm2(r3.Sub(p, c)); d < *best {
				*best, *q, *tri, *feat = d, c, i, f
			}
		}
		return
	}
	lbb, rbb := bb, bb
	lbb.Max = d3.SetComponent(lbb.Max, n.axis, n.left)
	rbb.Min = d3.SetComponent(rbb.Min, n.axis, n.right)
	ld, rd := d3.Box(lbb).Dist2(p), d3.Box(rbb).Dist2(p)
	first, second := n.child, n.child+1
	fbb, sbb, fd, sd := lbb, rbb, ld, rd
	if rd < ld {
		first, second = second, first
		fbb, sbb, fd, sd = rbb, lbb, rd, ld
	}
	if fd < *best {
		m.nearest(p, first, fbb, best, q, tri, feat)
	}
	if sd < *best {
		m.nearest(p, second, sbb, best, q, tri, feat)
	}
}

// Evaluate returns the signed distance from p to the surface.
func (m *TriMesh) Evaluate(p r3.Vec) float64 {
	_, _, d := m.Closest(p)
	return d
}

// FaceNormal returns the unit normal of triangle i.
func (m *TriMesh) FaceNormal(i int) r3.Vec { return m.faceN[i] }

// SegmentCrossings returns the parameters t in [0, 1] at which segment a-b
// crosses a triangle, in increasing order.
func (m *TriMesh) SegmentCrossings(a, b r3.Vec) []float64 {
	var out []float64
	m.segment(a, b, 0, r3.Box(m.bb), &out)
	sort.Float64s(out)
	return out
}

func (m *TriMesh) segment(a, b r3.Vec, node int, bb r3.Box, out *[]float64) {
	if !segmentHitsBox(a, b, bb) {
		return
	}
	n := &m.nodes[node]
	if n.axis < 0 {
		for i := n.start; i < n.end; i++ {
			if t, ok := segmentTriangle(a, b, m.triangle(i)); ok {
				*out = append(*out, t)
			}
		}
		return
	}
	lbb, rbb := bb, bb
	lbb.Max = d3.SetComponent(lbb.Max, n.axis, n.left)
	rbb.Min = d3.SetComponent(rbb.Min, n.axis, n.right)
	m.segment(a, b, n.child, lbb, out)
	m.segment(a, b, n.child+1, rbb, out)
}

// segmentHitsBox is the slab test of segment a-b against a box grown by a
// small relative margin.
func segmentHitsBox(a, b r3.Vec, bb r3.Box) bool {
	margin := 1e-9 * (1 + d3.Box(bb).Diagonal())
	t0, t1 := 0.0, 1.0
	d := r3.Sub(b, a)
	for i := 0; i < 3; i++ {
		o, di := d3.Component(a, i), d3.Component(d, i)
		lo, hi := d3.Component(bb.Min, i)-margin, d3.Component(bb.Max, i)+margin
		if di == 0 {
			if o < lo || o > hi {
				return false
			}
			continue
		}
		ta, tb := (lo-o)/di, (hi-o)/di
		if ta > tb {
			ta, tb = tb, ta
		}
		t0, t1 = math.Max(t0, ta), math.Min(t1, tb)
		if t0 > t1 {
			return false
		}
	}
	return true
}

// segmentTriangle is the Möller-Trumbore intersection of segment a-b with t.
func segmentTriangle(a, b r3.Vec, t Triangle) (float64, bool) {
	const eps = 1e-14
	d := r3.Sub(b, a)
	e1, e2 := r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0])
	h := r3.Cross(d, e2)
	det := r3.Dot(e1, h)
	if math.Abs(det) < eps*r3.Norm(d)*r3.Norm(e1)*r3.Norm(e2) {
		return 0, false
	}
	f := 1 / det
	s := r3.Sub(a, t[0])
	u := f * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return 0, false
	}
	qv := r3.Cross(s, e1)
	v := f * r3.Dot(d, qv)
	if v < 0 || u+v > 1 {
		return 0, false
	}
	tt := f * r3.Dot(e2, qv)
	if tt < 0 || tt > 1 {
		return 0, false
	}
	return tt, true
}
