package control

import (
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/triad"
)

// SmoothAlignments runs maxIterations Jacobi sweeps over the owned control
// points whose alignment is not fixed. Each sweep replaces the alignment of
// every such point with the orthonormalized average of its neighbours'
// alignments, far vertices excluded. Fixed and referred points are read
// only. There is no residual test; it returns the number of sweeps run.
func (f *Field) SmoothAlignments(maxIterations int) int {
	var free []delaunay.VertexHandle
	f.tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.Fixed && !v.Referred {
			free = append(free, h)
		}
		return true
	})
	next := make([]triad.Triad, len(free))
	var ts []triad.Triad
	for it := 0; it < maxIterations; it++ {
		for i, h := range free {
			ts = ts[:0]
			for _, n := range f.tess.AdjacentVertices(h) {
				if nv := f.tess.Vertex(n); !nv.IsFar() {
					ts = append(ts, nv.Alignment)
				}
			}
			next[i] = triad.Average(f.tess.Vertex(h).Alignment, ts, nil)
		}
		for i, h := range free {
			f.tess.Vertex(h).Alignment = next[i]
		}
	}
	f.log.Debug("alignments smoothed", "points", len(free), "sweeps", maxIterations)
	return maxIterations
}
