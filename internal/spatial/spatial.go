// Package spatial indexes points for radius queries.
package spatial

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"
)

// Key returns the grid cell of side cell containing p.
func Key(p r3.Vec, cell float64) [3]int64 {
	return [3]int64{
		int64(math.Floor(p.X / cell)),
		int64(math.Floor(p.Y / cell)),
		int64(math.Floor(p.Z / cell)),
	}
}

// Set is a growable set of points held in an R-tree. Points are numbered
// in the order they are added.
type Set struct {
	tree *rtreego.Rtree
	tol  float64
	n    int
}

type site struct {
	pos  r3.Vec
	i    int
	rect *rtreego.Rect
}

func (s *site) Bounds() *rtreego.Rect { return s.rect }

// New returns an empty set. Each point is stored as a box of half side
// tol, which must be positive.
func New(tol float64) *Set {
	if !(tol > 0) {
		tol = 1e-12
	}
	return &Set{tree: rtreego.NewTree(3, 25, 50), tol: tol}
}

func point(p r3.Vec) rtreego.Point { return rtreego.Point{p.X, p.Y, p.Z} }

func (s *Set) Len() int { return s.n }

// Add adds p and returns its number.
func (s *Set) Add(p r3.Vec) int {
	s.tree.Insert(&site{pos: p, i: s.n, rect: point(p).ToRect(s.tol)})
	s.n++
	return s.n - 1
}

// Near reports whether a point of s lies within r of p.
func (s *Set) Near(p r3.Vec, r float64) bool {
	_, ok := s.Find(p, r)
	return ok
}

// Find returns the number of the lowest numbered point of s within r of p.
func (s *Set) Find(p r3.Vec, r float64) (int, bool) {
	if s.n == 0 {
		return -1, false
	}
	r2 := r * r
	best := -1
	for _, obj := range s.tree.SearchIntersect(point(p).ToRect(math.Max(r, s.tol))) {
		st := obj.(*site)
		if (best < 0 || st.i < best) && r3.Norm2(r3.Sub(p, st.pos)) <= r2 {
			best = st.i
		}
	}
	return best, best >= 0
}

