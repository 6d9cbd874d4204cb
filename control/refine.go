package control

import (
	"math"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Refine inserts a control point at the centroid of every control cell
// whose interpolated size deviates from the source size by more than the
// refinement tolerance, or whose interpolated alignment near a surface is
// misaligned with it by more than the alignment tolerance. Cells already
// smaller than the target size are left alone. It runs at most
// maxIterations passes and stops after a pass in which no rank added a
// point. After a pass adding points the field is redistributed so the
// halos carry the points added by the neighbouring ranks. The number of
// points added by all ranks in each pass is returned.
func (f *Field) Refine(maxIterations int) ([]int, error) {
	var added []int
	alignTol := f.cfg.AlignmentTolerance * math.Pi / 180
	for it := 0; it < maxIterations; it++ {
		var pts []delaunay.Point
		f.tess.ForEachCell(func(c delaunay.CellHandle, cell *delaunay.Cell) bool {
			if f.tess.HasFarPoint(c) {
				return true
			}
			p := f.tess.CellPoints(c)
			centre := r3.Scale(0.25, r3.Add(r3.Add(p[0], p[1]), r3.Add(p[2], p[3])))
			if f.decomp.Owner(centre) != f.comm.Rank() {
				return true
			}
			target := f.sizes.Size(centre)
			if longestEdge(p) < target {
				return true
			}
			var (
				size float64
				ts   [4]triad.Triad
			)
			for i, h := range cell.V {
				v := f.tess.Vertex(h)
				size += 0.25 * v.TargetSize
				ts[i] = v.Alignment
			}
			refine := math.Abs(size-target) > f.cfg.RefinementTolerance*target
			if !refine {
				if a, ok := f.surfaceAlignment(centre); ok {
					interp := triad.Average(ts[0], ts[:], nil)
					refine = triad.MisalignmentAngle(a, interp) > alignTol
				}
			}
			if refine {
				pt := f.controlPoint(centre, delaunay.Internal)
				if !pt.Fixed {
					pt.Alignment = triad.Average(ts[0], ts[:], nil)
				}
				pts = append(pts, pt)
			}
			return true
		})
		n, _ := f.tess.InsertPoints(pts)
		total, err := comm.AllReduceSumInt(f.comm, n)
		if err != nil {
			return added, err
		}
		added = append(added, total)
		f.log.Debug("control refinement pass", "iteration", it, "added", n, "total", total)
		if total == 0 {
			break
		}
		if err := f.Distribute(f.decomp); err != nil {
			return added, err
		}
	}
	f.rebuildIndex()
	return added, nil
}

func longestEdge(p [4]r3.Vec) float64 {
	var l2 float64
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			l2 = math.Max(l2, r3.Norm2(r3.Sub(p[i], p[j])))
		}
	}
	return math.Sqrt(l2)
}
