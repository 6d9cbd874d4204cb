package initialpoints

import (
	"math"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// lattice is a cubic grid of resolution res anchored at origin. Cell (i,j,k)
// spans origin+res*(i,j,k) to origin+res*(i+1,j+1,k+1). Anchoring every
// rank's lattice at the same origin keeps the ranks' points disjoint.
type lattice struct {
	origin r3.Vec
	res    float64
	div    [3]int
}

func newLattice(bounds r3.Box, res float64) lattice {
	sz := d3.Box(bounds).Size()
	return lattice{
		origin: bounds.Min,
		res:    res,
		div: [3]int{
			int(math.Ceil(sz.X / res)),
			int(math.Ceil(sz.Y / res)),
			int(math.Ceil(sz.Z / res)),
		},
	}
}

// span returns the cell index ranges [lo, hi) of the cells overlapping b,
// grown by one cell for nodes the ownership test will sort out.
func (l lattice) span(b r3.Box) (lo, hi [3]int) {
	for ax := 0; ax < 3; ax++ {
		o := d3.Component(l.origin, ax)
		lo[ax] = int(math.Floor((d3.Component(b.Min, ax)-o)/l.res)) - 1
		hi[ax] = int(math.Ceil((d3.Component(b.Max, ax)-o)/l.res)) + 1
		lo[ax] = max(lo[ax], 0)
		hi[ax] = min(hi[ax], l.div[ax])
	}
	return lo, hi
}

// node returns origin+res*(i+off, j+off, k+off).
func (l lattice) node(i, j, k int, off float64) r3.Vec {
	return r3.Add(l.origin, r3.Scale(l.res, r3.Vec{X: float64(i) + off, Y: float64(j) + off, Z: float64(k) + off}))
}

// foreachCentre calls f with the centre of every cell overlapping b.
func (l lattice) foreachCentre(b r3.Box, f func(r3.Vec)) {
	lo, hi := l.span(b)
	for i := lo[0]; i < hi[0]; i++ {
		for j := lo[1]; j < hi[1]; j++ {
			for k := lo[2]; k < hi[2]; k++ {
				f(l.node(i, j, k, 0.5))
			}
		}
	}
}

// foreachCorner calls f with every cell corner of the cells overlapping b.
// Corners shared between cells are visited once.
func (l lattice) foreachCorner(b r3.Box, f func(r3.Vec)) {
	lo, hi := l.span(b)
	for i := lo[0]; i <= hi[0]; i++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for k := lo[2]; k <= hi[2]; k++ {
				f(l.node(i, j, k, 0))
			}
		}
	}
}
