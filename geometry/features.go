package geometry

import (
	"math"

	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/internal/kd"
	"gonum.org/v1/gonum/spatial/r3"
)

// EdgeStatus classifies a feature edge by the solid angle of the solid
// along it.
type EdgeStatus uint8

const (
	Flat EdgeStatus = iota
	// Convex edges enclose less than half a turn of solid.
	Convex
	Concave
	// Open edges border a single face.
	Open
)

func (s EdgeStatus) String() string {
	switch s {
	case Flat:
		return "flat"
	case Convex:
		return "convex"
	case Concave:
		return "concave"
	case Open:
		return "open"
	}
	return "unknown"
}

// FeatureEdge is a sharp edge of a surface.
type FeatureEdge struct {
	A, B int // indices into Points.
	// Normals are the outward unit normals of the faces meeting at the
	// edge. Open edges repeat their single face normal.
	Normals [2]r3.Vec
	Status  EdgeStatus
	Surface int
}

// EdgeHit is the result of a nearest edge query.
type EdgeHit struct {
	Edge  int
	Point r3.Vec
	Dist  float64
}

// FeatureEdgeMesh holds the feature edges and feature points of the
// geometry. Feature points are the points where three or more feature edges
// meet.
type FeatureEdgeMesh struct {
	Points     []r3.Vec
	Edges      []FeatureEdge
	pointEdges [][]int
	featurePts []int
	samples    *kd.Tree
	points     *kd.Tree
	spacing    float64
}

// NewFeatureEdgeMesh indexes edges over points for proximity queries.
func NewFeatureEdgeMesh(points []r3.Vec, edges []FeatureEdge) *FeatureEdgeMesh {
	f := &FeatureEdgeMesh{Points: points, Edges: edges}
	f.pointEdges = make([][]int, len(points))
	minLen := math.Inf(1)
	bb := d3.Empty()
	for i, e := range edges {
		f.pointEdges[e.A] = append(f.pointEdges[e.A], i)
		f.pointEdges[e.B] = append(f.pointEdges[e.B], i)
		minLen = math.Min(minLen, r3.Norm(r3.Sub(points[e.B], points[e.A])))
		bb = bb.Include(points[e.A]).Include(points[e.B])
	}
	var ptItems []kd.Item
	for i, pe := range f.pointEdges {
		if len(pe) >= 3 {
			f.featurePts = append(f.featurePts, i)
			ptItems = append(ptItems, kd.Item{Pos: points[i], ID: i})
		}
	}
	f.points = kd.New(ptItems)
	if len(edges) == 0 {
		f.samples = kd.New(nil)
		return f
	}
	f.spacing = 0.5 * math.Max(minLen, 1e-3*bb.Diagonal())
	var samples []kd.Item
	for i, e := range edges {
		a, b := points[e.A], points[e.B]
		n := int(math.Ceil(r3.Norm(r3.Sub(b, a))/f.spacing)) + 1
		for k := 0; k < n; k++ {
			samples = append(samples, kd.Item{Pos: d3.Lerp(a, b, float64(k)/float64(n-1)), ID: i})
		}
	}
	f.samples = kd.New(samples)
	return f
}

// FeaturePoints returns the indices of the feature points.
func (f *FeatureEdgeMesh) FeaturePoints() []int { return f.featurePts }

// PointEdges returns the edges incident to point i.
func (f *FeatureEdgeMesh) PointEdges(i int) []int { return f.pointEdges[i] }

// Direction returns the unit direction of edge e from A to B.
func (f *FeatureEdgeMesh) Direction(e int) r3.Vec {
	return r3.Unit(r3.Sub(f.Points[f.Edges[e].B], f.Points[f.Edges[e].A]))
}

// Length returns the length of edge e.
func (f *FeatureEdgeMesh) Length(e int) float64 {
	return r3.Norm(r3.Sub(f.Points[f.Edges[e].B], f.Points[f.Edges[e].A]))
}

// NearestEdge returns the edge point closest to p among the edges within
// maxDist of it.
func (f *FeatureEdgeMesh) NearestEdge(p r3.Vec, maxDist float64) (EdgeHit, bool) {
	best := EdgeHit{Edge: -1, Dist: math.Inf(1)}
	seen := make(map[int]bool)
	for _, it := range f.samples.Within(p, maxDist+f.spacing) {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		e := f.Edges[it.ID]
		q := closestOnSegment(p, f.Points[e.A], f.Points[e.B])
		if d := r3.Norm(r3.Sub(p, q)); d <= maxDist && d < best.Dist {
			best = EdgeHit{Edge: it.ID, Point: q, Dist: d}
		}
	}
	return best, best.Edge >= 0
}

// NearestFeaturePoint returns the feature point closest to p if it lies
// within maxDist.
func (f *FeatureEdgeMesh) NearestFeaturePoint(p r3.Vec, maxDist float64) (int, float64, bool) {
	it, d, ok := f.points.Nearest(p)
	if !ok || d > maxDist {
		return -1, d, false
	}
	return it.ID, d, true
}

func closestOnSegment(p, a, b r3.Vec) r3.Vec {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return a
	}
	t := math.Max(0, math.Min(1, r3.Dot(r3.Sub(p, a), ab)/l2))
	return r3.Add(a, r3.Scale(t, ab))
}

// ExtractFeatures returns the edges of m whose adjacent faces meet at an
// angle sharper than featureAngle radians, plus every open edge.
func ExtractFeatures(m *TriMesh, surface int, featureAngle float64) *FeatureEdgeMesh {
	adj := make(map[[2]int][]int)
	var order [][2]int
	for i, tri := range m.tris {
		for j := range tri {
			key := edgeKey(tri[j], tri[(j+1)%3])
			if _, ok := adj[key]; !ok {
				order = append(order, key)
			}
			adj[key] = append(adj[key], i)
		}
	}
	cosFeature := math.Cos(featureAngle)
	remap := make(map[int]int)
	var points []r3.Vec
	index := func(v int) int {
		if i, ok := remap[v]; ok {
			return i
		}
		remap[v] = len(points)
		points = append(points, m.verts[v])
		return len(points) - 1
	}
	var edges []FeatureEdge
	for _, key := range order {
		tris := adj[key]
		var e FeatureEdge
		switch len(tris) {
		case 1:
			n := m.faceN[tris[0]]
			e = FeatureEdge{Normals: [2]r3.Vec{n, n}, Status: Open}
		case 2:
			n1, n2 := m.faceN[tris[0]], m.faceN[tris[1]]
			if r3.Dot(n1, n2) >= cosFeature {
				continue
			}
			mid := d3.Mid(m.verts[key[0]], m.verts[key[1]])
			status := Concave
			if r3.Dot(r3.Sub(m.triangle(tris[1]).centroid(), mid), n1) < 0 {
				status = Convex
			}
			e = FeatureEdge{Normals: [2]r3.Vec{n1, n2}, Status: status}
		default:
			continue // non-manifold.
		}
		e.A, e.B = index(key[0]), index(key[1])
		e.Surface = surface
		edges = append(edges, e)
	}
	return NewFeatureEdgeMesh(points, edges)
}

// BoxFeatures returns the twelve convex edges and eight corners of box b.
func BoxFeatures(b r3.Box, surface int) *FeatureEdgeMesh {
	corner := func(bits int) r3.Vec {
		var v r3.Vec
		for axis := 0; axis < 3; axis++ {
			x := d3.Component(b.Min, axis)
			if bits&(1<<axis) != 0 {
				x = d3.Component(b.Max, axis)
			}
			v = d3.SetComponent(v, axis, x)
		}
		return v
	}
	points := make([]r3.Vec, 8)
	for i := range points {
		points[i] = corner(i)
	}
	var edges []FeatureEdge
	for axis := 0; axis < 3; axis++ {
		u, w := (axis+1)%3, (axis+2)%3
		for k := 0; k < 4; k++ {
			var bits int
			var normals [2]r3.Vec
			for j, other := range [2]int{u, w} {
				hi := k&(1<<j) != 0
				sign := -1.0
				if hi {
					bits |= 1 << other
					sign = 1
				}
				normals[j] = d3.SetComponent(r3.Vec{}, other, sign)
			}
			edges = append(edges, FeatureEdge{
				A:       bits,
				B:       bits | 1<<axis,
				Normals: normals,
				Status:  Convex,
				Surface: surface,
			})
		}
	}
	return NewFeatureEdgeMesh(points, edges)
}

// Merge returns the union of feature meshes. Points are not welded.
func Merge(meshes ...*FeatureEdgeMesh) *FeatureEdgeMesh {
	var points []r3.Vec
	var edges []FeatureEdge
	for _, f := range meshes {
		if f == nil {
			continue
		}
		off := len(points)
		points = append(points, f.Points...)
		for _, e := range f.Edges {
			e.A += off
			e.B += off
			edges = append(edges, e)
		}
	}
	return NewFeatureEdgeMesh(points, edges)
}
