package control

import (
	"fmt"

	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

// Distribute routes the owned control points to the ranks owning them
// under d, copies the points within the halo of each neighbouring region
// to it and rebuilds the local control tessellation from both.
func (f *Field) Distribute(d *decomp.Decomposition) error {
	owned, err := decomp.Distribute(f.comm, d, f.Points())
	if err != nil {
		return fmt.Errorf("control: distribute: %w", err)
	}
	pos := make([]r3.Vec, len(owned))
	radius := make([]float64, len(owned))
	halo := f.cfg.HaloCoeff * f.spacing
	for i, p := range owned {
		pos[i] = p.Pos
		radius[i] = halo
	}
	ghosts, err := decomp.Refer(f.comm, owned, decomp.GhostTargets(d, f.comm.Rank(), pos, radius))
	if err != nil {
		return fmt.Errorf("control: refer halo: %w", err)
	}
	f.decomp = d
	f.tess.Reset()
	f.tess.InsertPoints(owned)
	f.tess.InsertPoints(ghosts)
	f.rebuildIndex()
	f.log.Debug("control field distributed", "owned", len(owned), "referred", len(ghosts),
		"dropped", f.tess.Dropped())
	return nil
}

// Count returns the number of owned and referred control points.
func (f *Field) Count() (owned, referred int) {
	f.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Referred {
			referred++
		} else {
			owned++
		}
		return true
	})
	return owned, referred
}
