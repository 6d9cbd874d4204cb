package decomp

import (
	"fmt"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

// Distribute sends every point to the rank owning its position and returns
// the points this rank owns, in source rank order. Proc is set to the owning
// rank and Referred is cleared.
func Distribute(c comm.Comm, d *Decomposition, pts []delaunay.Point) ([]delaunay.Point, error) {
	if d.NumProcs() != c.Size() {
		return nil, fmt.Errorf("decomp: %d regions for %d ranks", d.NumProcs(), c.Size())
	}
	out := make([][]delaunay.Point, c.Size())
	for _, p := range pts {
		r := d.Owner(p.Pos)
		p.Proc = r
		p.Referred = false
		out[r] = append(out[r], p)
	}
	return exchange(c, out)
}

// Refer sends read-only copies of pts to the ranks listed for each point.
// The copies arrive flagged Referred; the rank of origin is kept in Proc.
func Refer(c comm.Comm, pts []delaunay.Point, targets [][]int) ([]delaunay.Point, error) {
	out := make([][]delaunay.Point, c.Size())
	for i, p := range pts {
		for _, r := range targets[i] {
			if r == c.Rank() {
				continue
			}
			p.Referred = true
			out[r] = append(out[r], p)
		}
	}
	return exchange(c, out)
}

// GhostTargets returns, for each point, the ranks other than its owner whose
// region lies within radius of it.
func GhostTargets(d *Decomposition, self int, pos []r3.Vec, radius []float64) [][]int {
	targets := make([][]int, len(pos))
	for i, p := range pos {
		for _, r := range d.Overlapping(p, radius[i]*radius[i]) {
			if r != self {
				targets[i] = append(targets[i], r)
			}
		}
	}
	return targets
}

func exchange(c comm.Comm, out [][]delaunay.Point) ([]delaunay.Point, error) {
	send := make([][]byte, len(out))
	for r := range out {
		send[r] = delaunay.MarshalPoints(out[r])
	}
	recv, err := c.AllToAll(send)
	if err != nil {
		return nil, err
	}
	var pts []delaunay.Point
	for src, b := range recv {
		got, err := delaunay.UnmarshalPoints(b)
		if err != nil {
			return nil, fmt.Errorf("decomp: points from rank %d: %w", src, err)
		}
		pts = append(pts, got...)
	}
	return pts, nil
}
