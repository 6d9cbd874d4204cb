package cvmesh

import (
	"log/slog"
	"math"
	"sort"

	gr3 "github.com/golang/geo/r3"
	"github.com/markus-wa/quickhull-go/v2"
	"github.com/soypat/cvmesh/delaunay"
)

// coplanarQuality is the cell quality below which a cell is counted as
// numerically coplanar.
const coplanarQuality = 1e-3

// QualityReport summarizes the recoverable anomalies of a finished mesh.
type QualityReport struct {
	Cells int
	// CoplanarCells counts Delaunay cells around owned vertices flatter
	// than coplanarQuality.
	CoplanarCells int
	// CollapsedFaces counts dual faces discarded with fewer than three
	// vertices.
	CollapsedFaces int
	// Dropped counts points dropped as coincident by the last rebuild.
	Dropped int
	// Anomalies holds the conformation anomaly counts by kind.
	Anomalies map[string]int

	MinCellVolume, MaxCellVolume, TotalVolume float64
}

func (q QualityReport) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("cells", q.Cells),
		slog.Int("coplanar", q.CoplanarCells),
		slog.Int("collapsedFaces", q.CollapsedFaces),
		slog.Int("dropped", q.Dropped),
		slog.Float64("minVolume", q.MinCellVolume),
		slog.Float64("maxVolume", q.MaxCellVolume),
		slog.Float64("volume", q.TotalVolume),
	}
	kinds := make([]string, 0, len(q.Anomalies))
	for kind := range q.Anomalies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		attrs = append(attrs, slog.Int(kind, q.Anomalies[kind]))
	}
	return slog.GroupValue(attrs...)
}

// coplanarCells counts the finite cells around vertices owning a dual cell
// whose quality falls below coplanarQuality.
func coplanarCells(tess *delaunay.Tessellation) int {
	n := 0
	tess.ForEachCell(func(c delaunay.CellHandle, _ *delaunay.Cell) bool {
		if tess.HasFarPoint(c) || !tess.InternalOrBoundaryDualVertex(c) {
			return true
		}
		if tess.CellQuality(c) < coplanarQuality {
			n++
		}
		return true
	})
	return n
}

// cellVolumes returns the volume of every cell of mesh as the volume of the
// convex hull of its vertices.
func cellVolumes(mesh *PolyMesh) []float64 {
	verts := make([][]int, mesh.NumCells())
	for i, face := range mesh.Faces {
		verts[mesh.Owner[i]] = append(verts[mesh.Owner[i]], face...)
		if i < len(mesh.Neighbour) {
			verts[mesh.Neighbour[i]] = append(verts[mesh.Neighbour[i]], face...)
		}
	}
	vols := make([]float64, len(verts))
	qh := new(quickhull.QuickHull)
	for c, idx := range verts {
		sort.Ints(idx)
		var pts []gr3.Vector
		for i, v := range idx {
			if i > 0 && idx[i-1] == v {
				continue
			}
			p := mesh.Points[v]
			pts = append(pts, gr3.Vector{X: p.X, Y: p.Y, Z: p.Z})
		}
		if len(pts) < 4 {
			continue
		}
		ch := qh.ConvexHull(pts, true, true, 0)
		vols[c] = hullVolume(pts, ch.Indices)
	}
	return vols
}

// hullVolume integrates the volume of the closed triangle mesh by the
// divergence theorem.
func hullVolume(pts []gr3.Vector, tris []int) float64 {
	var v float64
	for i := 0; i+2 < len(tris); i += 3 {
		a, b, c := pts[tris[i]], pts[tris[i+1]], pts[tris[i+2]]
		v += a.Dot(b.Cross(c))
	}
	return math.Abs(v) / 6
}

func qualityReport(tess *delaunay.Tessellation, mesh *PolyMesh, collapsed int, anomalies map[string]int) QualityReport {
	q := QualityReport{
		Cells:          mesh.NumCells(),
		CoplanarCells:  coplanarCells(tess),
		CollapsedFaces: collapsed,
		Dropped:        tess.Dropped(),
		Anomalies:      anomalies,
	}
	vols := cellVolumes(mesh)
	if len(vols) > 0 {
		q.MinCellVolume = math.Inf(1)
	}
	for _, v := range vols {
		q.MinCellVolume = math.Min(q.MinCellVolume, v)
		q.MaxCellVolume = math.Max(q.MaxCellVolume, v)
		q.TotalVolume += v
	}
	return q
}
