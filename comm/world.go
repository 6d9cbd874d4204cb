package comm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Run starts n ranks in-process, each running fn on its own goroutine, and
// waits for all of them. The first rank to fail aborts the world so that
// ranks blocked in a collective return ErrAborted; its error is returned.
func Run(ctx context.Context, n int, fn func(ctx context.Context, c Comm) error) error {
	if n < 1 {
		return errors.New("comm: world needs at least one rank")
	}
	w := newWorld(n)
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { w.abort(context.Cause(gctx)) })
	defer stop()
	for r := 0; r < n; r++ {
		r := r
		g.Go(func() error {
			err := fn(gctx, &rank{w: w, rank: r})
			if err != nil {
				err = fmt.Errorf("rank %d: %w", r, err)
				w.abort(err)
			}
			return err
		})
	}
	return g.Wait()
}

type world struct {
	n       int
	mu      sync.Mutex
	cond    *sync.Cond
	arrived int
	gen     uint64
	err     error
	slots   []any
	out     []any
}

func newWorld(n int) *world {
	w := &world{n: n, slots: make([]any, n)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *world) abort(cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = fmt.Errorf("%w: %v", ErrAborted, cause)
	}
	w.cond.Broadcast()
}

// exchange contributes v for rank and returns every rank's contribution once
// all ranks have contributed.
func (w *world) exchange(rank int, v any) ([]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return nil, w.err
	}
	w.slots[rank] = v
	w.arrived++
	gen := w.gen
	if w.arrived == w.n {
		w.out = append([]any(nil), w.slots...)
		for i := range w.slots {
			w.slots[i] = nil
		}
		w.arrived = 0
		w.gen++
		w.cond.Broadcast()
		return w.out, nil
	}
	for w.gen == gen && w.err == nil {
		w.cond.Wait()
	}
	if w.gen == gen {
		return nil, w.err
	}
	return w.out, nil
}

type rank struct {
	w    *world
	rank int
}

func (r *rank) Rank() int { return r.rank }
func (r *rank) Size() int { return r.w.n }

func (r *rank) Barrier() error {
	_, err := r.w.exchange(r.rank, nil)
	return err
}

func (r *rank) AllGatherInt(v int) ([]int, error) {
	all, err := r.w.exchange(r.rank, v)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(all))
	for i, a := range all {
		out[i] = a.(int)
	}
	return out, nil
}

func (r *rank) reduce(v float64, op func(a, b float64) float64) (float64, error) {
	all, err := r.w.exchange(r.rank, v)
	if err != nil {
		return math.NaN(), err
	}
	acc := all[0].(float64)
	for _, a := range all[1:] {
		acc = op(acc, a.(float64))
	}
	return acc, nil
}

func (r *rank) AllReduceSum(v float64) (float64, error) {
	return r.reduce(v, func(a, b float64) float64 { return a + b })
}

func (r *rank) AllReduceMax(v float64) (float64, error) {
	return r.reduce(v, math.Max)
}

func (r *rank) AllReduceOr(v bool) (bool, error) {
	all, err := r.w.exchange(r.rank, v)
	if err != nil {
		return false, err
	}
	for _, a := range all {
		if a.(bool) {
			return true, nil
		}
	}
	return false, nil
}

func (r *rank) AllToAll(send [][]byte) ([][]byte, error) {
	if len(send) != r.w.n {
		return nil, fmt.Errorf("comm: AllToAll got %d messages for %d ranks", len(send), r.w.n)
	}
	owned := make([][]byte, len(send))
	for dst, b := range send {
		owned[dst] = append([]byte(nil), b...)
	}
	all, err := r.w.exchange(r.rank, owned)
	if err != nil {
		return nil, err
	}
	recv := make([][]byte, len(all))
	for src, a := range all {
		recv[src] = a.([][]byte)[r.rank]
	}
	return recv, nil
}
