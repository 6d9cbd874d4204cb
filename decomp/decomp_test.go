package decomp

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

var bounds = r3.Box{Min: r3.Vec{X: -1, Y: -1, Z: -1}, Max: r3.Vec{X: 1, Y: 2, Z: 1}}

func randomPoints(rng *rand.Rand, n int) []r3.Vec {
	pts := make([]r3.Vec, n)
	for i := range pts {
		pts[i] = d3.Box(bounds).Random(rng)
	}
	return pts
}

func TestRegionsTileBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := randomPoints(rng, 500)
	for _, n := range []int{1, 2, 3, 5, 8} {
		d, err := New(bounds, n, samples, nil)
		if err != nil {
			t.Fatal(err)
		}
		queries := randomPoints(rng, 2000)
		// Points on the bounds and on split planes.
		queries = append(queries, bounds.Min, bounds.Max, r3.Vec{X: 1, Y: -1, Z: 0})
		for k := 0; k < d.NumProcs(); k++ {
			queries = append(queries, d.Region(k).Box.Min, d.Region(k).Box.Max)
		}
		for _, p := range queries {
			owners := 0
			for k := 0; k < n; k++ {
				if d.Region(k).Contains(p) {
					owners++
					if d.Owner(p) != k {
						t.Fatalf("n=%d: Owner(%v)=%d but region %d contains it", n, p, d.Owner(p), k)
					}
				}
			}
			if owners != 1 {
				t.Fatalf("n=%d: point %v owned by %d regions", n, p, owners)
			}
		}
	}
}

func TestWeightedBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	// Samples crowded into one corner.
	var samples []r3.Vec
	for i := 0; i < 4000; i++ {
		p := d3.Box(bounds).Random(rng)
		if i%4 != 0 {
			p = r3.Scale(0.25, r3.Add(p, r3.Vec{X: -3, Y: -3, Z: -3}))
		}
		samples = append(samples, p)
	}
	d, err := New(bounds, 4, samples, nil)
	if err != nil {
		t.Fatal(err)
	}
	var counts []int
	for _, idx := range d.Route(samples) {
		counts = append(counts, len(idx))
	}
	if u := LoadUnbalance(counts); u > 0.1 {
		t.Fatalf("load unbalance %g, counts %v", u, counts)
	}
}

func TestLoadUnbalance(t *testing.T) {
	if got := LoadUnbalance([]int{10, 10, 10}); got != 0 {
		t.Errorf("balanced: got %g", got)
	}
	if got := LoadUnbalance([]int{30, 0, 0}); got != 2 {
		t.Errorf("unbalanced: got %g", got)
	}
}

func TestOverlapping(t *testing.T) {
	d, err := New(r3.Box{Max: r3.Vec{X: 2, Y: 1, Z: 1}}, 2, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := d.Overlapping(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 0.1); len(got) != 1 || got[0] != 0 {
		t.Fatalf("interior ball: got %v", got)
	}
	if got := d.Overlapping(r3.Vec{X: 0.95, Y: 0.5, Z: 0.5}, 0.01); len(got) != 2 {
		t.Fatalf("ball across split: got %v", got)
	}
}

// TestDistributeRoundTrip checks that redistributing points preserves the
// global count and leaves every point on its owning rank.
func TestDistributeRoundTrip(t *testing.T) {
	const nProcs = 4
	const perRank = 300
	rng := rand.New(rand.NewSource(3))
	d, err := New(bounds, nProcs, randomPoints(rng, 1000), nil)
	if err != nil {
		t.Fatal(err)
	}
	var total atomic.Int64
	err = comm.Run(context.Background(), nProcs, func(ctx context.Context, c comm.Comm) error {
		rng := rand.New(rand.NewSource(int64(10 + c.Rank())))
		var pts []delaunay.Point
		for i := 0; i < perRank; i++ {
			p := delaunay.NewPoint(d3.Box(bounds).Random(rng), delaunay.Internal)
			if i%10 == 0 {
				// Exactly on a partition plane.
				reg := d.Region(c.Rank())
				p.Pos = reg.Box.Min
			}
			pts = append(pts, p)
		}
		got, err := Distribute(c, d, pts)
		if err != nil {
			return err
		}
		for _, p := range got {
			if p.Proc != c.Rank() || !d.Region(c.Rank()).Contains(p.Pos) {
				t.Errorf("rank %d received point %v owned by %d", c.Rank(), p.Pos, d.Owner(p.Pos))
			}
		}
		total.Add(int64(len(got)))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if total.Load() != nProcs*perRank {
		t.Fatalf("got %d points after redistribution, want %d", total.Load(), nProcs*perRank)
	}
}
