// Package kd indexes tagged points in a gonum k-d tree for nearest and
// radius queries.
package kd

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// Item is an indexed point. ID is free for the caller to use.
type Item struct {
	Pos r3.Vec
	ID  int
}

func (it *Item) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*Item)
	switch d {
	case 0:
		return it.Pos.X - q.Pos.X
	case 1:
		return it.Pos.Y - q.Pos.Y
	case 2:
		return it.Pos.Z - q.Pos.Z
	}
	panic("unreachable")
}

func (it *Item) Dims() int { return 3 }

// Distance returns the squared euclidean distance.
func (it *Item) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(it.Pos, c.(*Item).Pos))
}

type items []Item

func (s items) Index(i int) kdtree.Comparable { return &s[i] }
func (s items) Len() int                      { return len(s) }
func (s items) Slice(start, end int) kdtree.Interface {
	return s[start:end]
}

func (s items) Pivot(d kdtree.Dim) int {
	p := plane{dim: d, items: s}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

type plane struct {
	dim   kdtree.Dim
	items items
}

func (p plane) Less(i, j int) bool {
	return p.items[i].Compare(&p.items[j], p.dim) < 0
}
func (p plane) Swap(i, j int) { p.items[i], p.items[j] = p.items[j], p.items[i] }
func (p plane) Len() int      { return len(p.items) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.items = p.items[start:end]
	return p
}

// Tree is a static k-d tree over items.
type Tree struct {
	tree *kdtree.Tree
	n    int
}

// New builds a tree over a copy of its.
func New(its []Item) *Tree {
	if len(its) == 0 {
		return &Tree{}
	}
	s := make(items, len(its))
	copy(s, its)
	return &Tree{tree: kdtree.New(s, false), n: len(s)}
}

// Len returns the number of indexed items.
func (t *Tree) Len() int { return t.n }

// Nearest returns the item closest to p and its distance. ok is false for an
// empty tree.
func (t *Tree) Nearest(p r3.Vec) (it Item, dist float64, ok bool) {
	if t.n == 0 {
		return Item{}, math.Inf(1), false
	}
	c, d2 := t.tree.Nearest(&Item{Pos: p})
	if c == nil {
		return Item{}, math.Inf(1), false
	}
	return *c.(*Item), math.Sqrt(d2), true
}

// Within returns the items at distance r or closer to p, nearest first.
func (t *Tree) Within(p r3.Vec, r float64) []Item {
	if t.n == 0 {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	t.tree.NearestSet(keep, &Item{Pos: p})
	found := make([]kdtree.ComparableDist, 0, len(keep.Heap))
	for _, cd := range keep.Heap {
		if cd.Comparable != nil {
			found = append(found, cd)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Dist < found[j].Dist })
	var out []Item
	for _, cd := range found {
		out = append(out, *cd.Comparable.(*Item))
	}
	return out
}
