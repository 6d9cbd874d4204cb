// Package comm provides the synchronous collective operations ranks of a
// distributed mesh use to exchange data. Ranks share no state besides the
// messages they exchange, which are always copied.
package comm

import (
	"errors"
	"math"
)

// ErrAborted is returned by collectives of a world in which a rank failed or
// whose context was cancelled.
var ErrAborted = errors.New("comm: world aborted")

// Comm is the view one rank has of its world. Every collective blocks until
// all ranks of the world call it.
type Comm interface {
	Rank() int
	Size() int
	Barrier() error
	// AllGatherInt returns the value contributed by each rank, by rank.
	AllGatherInt(v int) ([]int, error)
	AllReduceSum(v float64) (float64, error)
	AllReduceMax(v float64) (float64, error)
	AllReduceOr(v bool) (bool, error)
	// AllToAll sends send[r] to rank r and returns the messages addressed to
	// this rank, by source rank. len(send) must equal Size.
	AllToAll(send [][]byte) ([][]byte, error)
}

// Serial returns the world of a single rank.
func Serial() Comm { return serial{} }

type serial struct{}

func (serial) Rank() int                               { return 0 }
func (serial) Size() int                               { return 1 }
func (serial) Barrier() error                          { return nil }
func (serial) AllGatherInt(v int) ([]int, error)       { return []int{v}, nil }
func (serial) AllReduceSum(v float64) (float64, error) { return v, nil }
func (serial) AllReduceMax(v float64) (float64, error) { return v, nil }
func (serial) AllReduceOr(v bool) (bool, error)        { return v, nil }

func (serial) AllToAll(send [][]byte) ([][]byte, error) {
	if len(send) != 1 {
		return nil, errors.New("comm: AllToAll needs one message per rank")
	}
	return [][]byte{append([]byte(nil), send[0]...)}, nil
}

// Offset returns the exclusive prefix sum of the per-rank counts below rank
// and the total over all ranks.
func Offset(c Comm, count int) (offset, total int, err error) {
	counts, err := c.AllGatherInt(count)
	if err != nil {
		return 0, 0, err
	}
	for r, n := range counts {
		if r < c.Rank() {
			offset += n
		}
		total += n
	}
	return offset, total, nil
}

// AllReduceSumInt sums an integer over all ranks.
func AllReduceSumInt(c Comm, v int) (int, error) {
	_, total, err := Offset(c, v)
	return total, err
}

// AllReduceMin returns the minimum of v over all ranks.
func AllReduceMin(c Comm, v float64) (float64, error) {
	m, err := c.AllReduceMax(-v)
	return -m, err
}

// AllReduceMean returns the mean of v over all ranks.
func AllReduceMean(c Comm, v float64) (float64, error) {
	s, err := c.AllReduceSum(v)
	if err != nil {
		return math.NaN(), err
	}
	return s / float64(c.Size()), nil
}
