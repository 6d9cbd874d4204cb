package cvmesh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/soypat/cvmesh/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

// latticeTessellation returns the exact tessellation of the 5x5x5 integer
// lattice. The centre vertex has type centre and all others type rest on
// surface 0.
func latticeTessellation(t *testing.T, centre, rest delaunay.Type) (*delaunay.Tessellation, delaunay.VertexHandle) {
	t.Helper()
	tess := delaunay.New(r3.Box{Max: r3.Vec{X: 4, Y: 4, Z: 4}},
		delaunay.WithPrecision(delaunay.Exact), delaunay.WithRand(rand.New(rand.NewSource(1))))
	var pts []delaunay.Point
	mid := -1
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 5; k++ {
				p := delaunay.NewPoint(r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)}, rest)
				p.Surface = 0
				if i == 2 && j == 2 && k == 2 {
					mid = len(pts)
					p.Type = centre
					p.Surface = -1
				}
				p.Index = len(pts)
				pts = append(pts, p)
			}
		}
	}
	n, handles := tess.InsertPoints(pts)
	if n != len(pts) {
		t.Fatalf("inserted %d of %d lattice points", n, len(pts))
	}
	return tess, handles[mid]
}

func TestBuildDualFaceMinimal(t *testing.T) {
	tess, centre := latticeTessellation(t, delaunay.Internal, delaunay.Internal)
	indexDualVertices(tess, 1e-9)
	axis, other := 0, 0
	for _, w := range tess.AdjacentVertices(centre) {
		e, ok := tess.IncidentEdge(centre, w)
		if !ok {
			t.Fatalf("no edge to adjacent vertex %d", w)
		}
		face, err := buildDualFace(tess, e)
		if err != nil {
			t.Fatal(err)
		}
		length := r3.Norm(r3.Sub(tess.Vertex(w).Pos, tess.Vertex(centre).Pos))
		if math.Abs(length-1) < 1e-12 {
			axis++
			if len(face) != 4 {
				t.Errorf("axis edge to %v: face %v, want 4 vertices", tess.Vertex(w).Pos, face)
			}
			continue
		}
		other++
		if len(face) >= 3 {
			t.Errorf("diagonal edge to %v: face %v, want fewer than 3 vertices", tess.Vertex(w).Pos, face)
		}
		seen := map[int]bool{}
		for _, di := range face {
			if seen[di] {
				t.Errorf("face %v repeats %d", face, di)
			}
			seen[di] = true
		}
	}
	if axis != 6 || other == 0 {
		t.Errorf("got %d axis edges and %d others", axis, other)
	}
}

func TestBuildDualFaceInvariant(t *testing.T) {
	tess, centre := latticeTessellation(t, delaunay.ExternalSurface, delaunay.ExternalSurface)
	indexDualVertices(tess, 1e-9)
	w := tess.AdjacentVertices(centre)[0]
	e, _ := tess.IncidentEdge(centre, w)
	if _, err := buildDualFace(tess, e); err == nil {
		t.Fatal("expected an invariant error for an edge between external vertices")
	}
}

func TestOwnerAndNeighbour(t *testing.T) {
	for _, test := range []struct {
		a, b             int
		owner, neighbour int
		reversed         bool
	}{
		{a: 3, b: 7, owner: 3, neighbour: 7},
		{a: 7, b: 3, owner: 3, neighbour: 7, reversed: true},
		{a: 5, b: -1, owner: 5, neighbour: -1},
		{a: -1, b: 5, owner: 5, neighbour: -1, reversed: true},
		{a: 0, b: 1, owner: 0, neighbour: 1},
	} {
		owner, neighbour, reversed := ownerAndNeighbour(test.a, test.b)
		if owner != test.owner || neighbour != test.neighbour || reversed != test.reversed {
			t.Errorf("ownerAndNeighbour(%d, %d) = %d, %d, %t, want %d, %d, %t", test.a, test.b,
				owner, neighbour, reversed, test.owner, test.neighbour, test.reversed)
		}
		if neighbour >= 0 && owner >= neighbour {
			t.Errorf("ownerAndNeighbour(%d, %d): owner %d not below neighbour %d", test.a, test.b, owner, neighbour)
		}
	}
}

func TestPolyMeshCube(t *testing.T) {
	tess, centre := latticeTessellation(t, delaunay.Internal, delaunay.ExternalSurface)
	mesh, collapsed, err := buildPolyMesh(tess, []string{"walls"}, 1e-9, 0)
	if err != nil {
		t.Fatal(err)
	}
	if mesh.NumCells() != 1 || mesh.CellIndex[0] != tess.Vertex(centre).Index {
		t.Fatalf("cells %v", mesh.CellIndex)
	}
	if mesh.NumInternalFaces() != 0 || len(mesh.Faces) != 6 || collapsed == 0 {
		t.Fatalf("%d internal faces, %d faces, %d collapsed", mesh.NumInternalFaces(), len(mesh.Faces), collapsed)
	}
	if len(mesh.Patches) != 1 || mesh.Patches[0] != (Patch{Name: "walls", Start: 0, Size: 6, NeighbProc: -1}) {
		t.Fatalf("patches %+v", mesh.Patches)
	}
	c := tess.Vertex(centre).Pos
	for i, face := range mesh.Faces {
		if mesh.Owner[i] != 0 || len(face) != 4 {
			t.Errorf("face %d: owner %d, vertices %v", i, mesh.Owner[i], face)
		}
		var centroid r3.Vec
		for _, v := range face {
			centroid = r3.Add(centroid, r3.Scale(.25, mesh.Points[v]))
		}
		n := newellNormal(mesh.Points, face)
		if r3.Dot(n, r3.Sub(centroid, c)) <= 0 {
			t.Errorf("face %d points into its owner", i)
		}
		if area := r3.Norm(n) / 2; math.Abs(area-1) > 1e-9 {
			t.Errorf("face %d area %g, want 1", i, area)
		}
	}
	q := qualityReport(tess, mesh, collapsed, nil)
	if math.Abs(q.TotalVolume-1) > 1e-9 || q.MinCellVolume != q.MaxCellVolume {
		t.Errorf("volumes min %g max %g total %g, want 1", q.MinCellVolume, q.MaxCellVolume, q.TotalVolume)
	}
}
