// Package decomp partitions space among the ranks of a distributed mesh by
// weighted recursive coordinate bisection of a bounding box.
package decomp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// minSplitFraction keeps every region at least this fraction of its
// parent's extent along the split axis.
const minSplitFraction = 0.05

// Region is the half-open box owned by a rank. Along the axes where Closed
// is set the region reaches the decomposition bounds and its upper face is
// inclusive.
type Region struct {
	Box    d3.Box
	Closed [3]bool
}

// Contains reports whether p belongs to the region.
func (r Region) Contains(p r3.Vec) bool {
	return r.Box.ContainsHalfOpen(p, r.Closed)
}

// Decomposition assigns every point of space to exactly one rank.
type Decomposition struct {
	bounds  d3.Box
	regions []Region
	root    *node
}

type node struct {
	axis int
	pos  float64
	lo   *node
	hi   *node
	rank int // leaves only.
}

func (n *node) leaf() bool { return n.lo == nil }

// New partitions bounds into nProcs regions so that the sample weight in
// every region is as even as possible. Samples outside bounds are ignored.
// A nil weights slice weighs every sample 1.
func New(bounds r3.Box, nProcs int, samples []r3.Vec, weights []float64) (*Decomposition, error) {
	if nProcs < 1 {
		return nil, errors.New("decomp: need at least one rank")
	}
	b := d3.Box(bounds)
	if b.IsEmpty() || d3.Min(b.Size()) <= 0 {
		return nil, fmt.Errorf("decomp: degenerate bounds %v", bounds)
	}
	if weights != nil && len(weights) != len(samples) {
		return nil, fmt.Errorf("decomp: %d weights for %d samples", len(weights), len(samples))
	}
	d := &Decomposition{bounds: b, regions: make([]Region, nProcs)}
	idx := make([]int, 0, len(samples))
	for i, s := range samples {
		if b.Contains(s) {
			idx = append(idx, i)
		}
	}
	d.root = d.split(b, [3]bool{true, true, true}, 0, nProcs, samples, weights, idx)
	return d, nil
}

func (d *Decomposition) split(box d3.Box, closed [3]bool, lo, hi int, samples []r3.Vec, weights []float64, idx []int) *node {
	if hi-lo == 1 {
		d.regions[lo] = Region{Box: box, Closed: closed}
		return &node{rank: lo}
	}
	nlo := (hi - lo) / 2
	frac := float64(nlo) / float64(hi-lo)
	axis := box.LongestAxis()
	min, max := d3.Component(box.Min, axis), d3.Component(box.Max, axis)
	pos := min + frac*(max-min)
	if len(idx) > 0 {
		sort.Slice(idx, func(i, j int) bool {
			return d3.Component(samples[idx[i]], axis) < d3.Component(samples[idx[j]], axis)
		})
		total := 0.0
		for _, i := range idx {
			total += weight(weights, i)
		}
		acc := 0.0
		for k, i := range idx {
			acc += weight(weights, i)
			if acc >= frac*total {
				pos = d3.Component(samples[i], axis)
				if k+1 < len(idx) {
					pos = 0.5 * (pos + d3.Component(samples[idx[k+1]], axis))
				}
				break
			}
		}
	}
	margin := minSplitFraction * (max - min)
	pos = math.Max(min+margin, math.Min(max-margin, pos))

	loBox, hiBox := box.Split(axis, pos)
	loClosed := closed
	loClosed[axis] = false
	var loIdx, hiIdx []int
	for _, i := range idx {
		if d3.Component(samples[i], axis) < pos {
			loIdx = append(loIdx, i)
		} else {
			hiIdx = append(hiIdx, i)
		}
	}
	return &node{
		axis: axis,
		pos:  pos,
		lo:   d.split(loBox, loClosed, lo, lo+nlo, samples, weights, loIdx),
		hi:   d.split(hiBox, closed, lo+nlo, hi, samples, weights, hiIdx),
	}
}

func weight(weights []float64, i int) float64 {
	if weights == nil {
		return 1
	}
	return weights[i]
}

// Bounds returns the decomposed box.
func (d *Decomposition) Bounds() r3.Box { return r3.Box(d.bounds) }

// NumProcs returns the number of regions.
func (d *Decomposition) NumProcs() int { return len(d.regions) }

// Region returns the region owned by rank.
func (d *Decomposition) Region(rank int) Region { return d.regions[rank] }

// Owner returns the rank owning p. Points outside the bounds are owned by
// the rank owning the closest point of the bounds.
func (d *Decomposition) Owner(p r3.Vec) int {
	p = d.bounds.Clamp(p)
	n := d.root
	for !n.leaf() {
		if d3.Component(p, n.axis) < n.pos {
			n = n.lo
		} else {
			n = n.hi
		}
	}
	return n.rank
}

// Overlapping returns the ranks whose region intersects the ball of squared
// radius r2 around centre, in ascending order.
func (d *Decomposition) Overlapping(centre r3.Vec, r2 float64) []int {
	var out []int
	for rank, reg := range d.regions {
		if reg.Box.Dist2(centre) <= r2 {
			out = append(out, rank)
		}
	}
	return out
}

// Route groups the indices of points by owning rank.
func (d *Decomposition) Route(points []r3.Vec) [][]int {
	out := make([][]int, len(d.regions))
	for i, p := range points {
		r := d.Owner(p)
		out[r] = append(out[r], i)
	}
	return out
}

// LoadUnbalance returns the relative excess of the most loaded rank over the
// mean load, 0 for a perfect balance.
func LoadUnbalance(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	total, max := 0, 0
	for _, c := range counts {
		total += c
		if c > max {
			max = c
		}
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(counts))
	return (float64(max) - mean) / mean
}

// Rebalance recomputes the partition from new samples. The bounds and the
// number of ranks are kept.
func (d *Decomposition) Rebalance(samples []r3.Vec, weights []float64) error {
	nd, err := New(r3.Box(d.bounds), len(d.regions), samples, weights)
	if err != nil {
		return err
	}
	*d = *nd
	return nil
}
