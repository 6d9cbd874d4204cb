package cvmesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/internal/errs"
	"gonum.org/v1/gonum/spatial/r3"
)

// rebuild sends the internal points pts held by this rank to their owners,
// then resets the tessellation and inserts the retained feature points
// followed by the owned internal points, all freshly indexed. Ghost copies
// are exchanged last.
func (m *Mesher) rebuild(pts []delaunay.Point) error {
	owned, err := decomp.Distribute(m.comm, m.decomp, pts)
	if err != nil {
		return err
	}
	owned = m.keepInternal(owned)
	all := make([]delaunay.Point, 0, len(m.features)+len(owned))
	all = append(all, m.features...)
	all = append(all, owned...)
	if err := m.reindex(all); err != nil {
		return err
	}
	copy(m.features, all)

	m.tess.Reset()
	inserted, _ := m.tess.InsertPoints(all)
	if dropped := len(all) - inserted; dropped > 0 {
		m.metrics.PointsDropped.Add(float64(dropped))
		m.log.Debug("coincident points dropped", "dropped", dropped)
	}
	m.metrics.Vertices.Set(float64(inserted))
	clear(m.sent)
	if err := m.referGhosts(); err != nil {
		return err
	}
	return m.checkIndices()
}

// keepInternal drops the points outside the meshed region or too close to
// a surface to clear its point pairs, and refreshes the target size and
// alignment of the others from the control field.
func (m *Mesher) keepInternal(pts []delaunay.Point) []delaunay.Point {
	search := m.conf.Config().SearchDistanceCoeff
	out := pts[:0]
	for _, p := range pts {
		if !m.geom.Inside(p.Pos) {
			continue
		}
		s, align := m.field.CellSizeAndAlignment(p.Pos)
		d, _ := m.geom.Distance(p.Pos)
		if d < 2*m.conf.PairDistance(s) {
			continue
		}
		p.TargetSize, p.Alignment = s, align
		p.Type = delaunay.Internal
		if d < search*s {
			p.Type = delaunay.InternalNearBoundary
		}
		p.Pair, p.Surface = -1, -1
		p.Proc = m.comm.Rank()
		out = append(out, p)
	}
	if n := len(pts) - len(out); n > 0 {
		m.log.Debug("points outside the meshed region dropped", "dropped", n)
	}
	return out
}

// reindex gives pts consecutive global indices following those of the
// lower ranks and maps the Pair of every point to its partner's new index.
// Partners held by other ranks are found through a broadcast of the index
// changes of every paired point.
func (m *Mesher) reindex(pts []delaunay.Point) error {
	offset, total, err := comm.Offset(m.comm, len(pts))
	if err != nil {
		return err
	}
	remap := make(map[int]int)
	var changes []int
	for i := range pts {
		old := pts[i].Index
		pts[i].Index = offset + i
		if old >= 0 && pts[i].Pair >= 0 {
			remap[old] = pts[i].Index
			changes = append(changes, old, pts[i].Index)
		}
	}
	m.nextIndex = total + m.comm.Rank()
	if m.comm.Size() > 1 {
		recv, err := broadcast(m.comm, encodeInts(changes))
		if err != nil {
			return err
		}
		for src, b := range recv {
			if src == m.comm.Rank() {
				continue
			}
			ints, err := decodeInts(b)
			if err != nil {
				return fmt.Errorf("index changes from rank %d: %w", src, err)
			}
			for k := 0; k+1 < len(ints); k += 2 {
				remap[ints[k]] = ints[k+1]
			}
		}
	}
	for i := range pts {
		if pts[i].Pair < 0 {
			continue
		}
		np, ok := remap[pts[i].Pair]
		if !ok {
			return errs.Invariant("pair partner lost in reindexing", []r3.Vec{pts[i].Pos}, pts[i].Index, pts[i].Pair)
		}
		pts[i].Pair = np
	}
	return nil
}

// referGhosts copies owned vertices to the ranks whose tessellation they
// may affect. The first round sends a band of HaloCoeff target sizes
// around every vertex; later rounds send the vertices of every real cell
// whose circumsphere reaches another region, until a round sends nothing
// on any rank or the referral budget is spent.
func (m *Mesher) referGhosts() error {
	if m.comm.Size() == 1 {
		return nil
	}
	bd := m.cfg.BackgroundMeshDecomposition
	rank := m.comm.Rank()
	for round := 0; round < bd.MaxReferralIterations; round++ {
		var (
			pts     []delaunay.Point
			targets [][]int
		)
		refer := func(v *delaunay.Vertex, ranks []int) {
			var fresh []int
			for _, r := range ranks {
				if r == rank || slices.Contains(m.sent[v.Index], r) {
					continue
				}
				m.sent[v.Index] = append(m.sent[v.Index], r)
				fresh = append(fresh, r)
			}
			if len(fresh) > 0 {
				pts = append(pts, v.Point)
				targets = append(targets, fresh)
			}
		}
		if round == 0 {
			m.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
				if v.Real() {
					r := bd.HaloCoeff * m.sizeOf(v)
					refer(v, m.decomp.Overlapping(v.Pos, r*r))
				}
				return true
			})
		} else {
			m.tess.ForEachCell(func(c delaunay.CellHandle, cell *delaunay.Cell) bool {
				if !m.tess.Real(c) {
					return true
				}
				centre := m.tess.Dual(c)
				p := m.tess.CellPoints(c)
				ranks := m.decomp.Overlapping(centre, r3.Norm2(r3.Sub(p[0], centre)))
				if len(ranks) < 2 {
					return true
				}
				for _, vh := range cell.V {
					if v := m.tess.Vertex(vh); v.Real() {
						refer(v, ranks)
					}
				}
				return true
			})
		}
		ghosts, err := decomp.Refer(m.comm, pts, targets)
		if err != nil {
			return err
		}
		n, _ := m.tess.InsertPoints(ghosts)
		m.log.Debug("ghosts referred", "round", round, "sent", len(pts), "received", len(ghosts), "inserted", n)
		more, err := m.comm.AllReduceOr(len(pts) > 0)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

func (m *Mesher) sizeOf(v *delaunay.Vertex) float64 {
	if v.TargetSize > 0 {
		return v.TargetSize
	}
	return m.cfg.CellShapeControl.DefaultCellSize
}

// checkIndices returns an InvariantError if an owned vertex is unindexed
// or two vertices of the tessellation share a global index.
func (m *Mesher) checkIndices() error {
	seen := make(map[int]r3.Vec, m.tess.NumVertices())
	var err error
	m.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.IsFar() {
			return true
		}
		if v.Index < 0 {
			err = errs.Invariant("unindexed vertex", []r3.Vec{v.Pos}, v.Index)
			return false
		}
		if prev, dup := seen[v.Index]; dup {
			err = errs.Invariant("duplicate global index", []r3.Vec{prev, v.Pos}, v.Index)
			return false
		}
		seen[v.Index] = v.Pos
		return true
	})
	return err
}

// rebalance recomputes the decomposition from the weighted points of every
// rank when the summed weights are unbalanced beyond MaxLoadUnbalance. It
// reports whether the decomposition changed. Every rank reaches the same
// decision.
func (m *Mesher) rebalance(pts []delaunay.Point, weight func(delaunay.Point) float64) (bool, error) {
	if m.comm.Size() == 1 {
		return false, nil
	}
	load := 0.0
	for _, p := range pts {
		load += weight(p)
	}
	counts, err := m.comm.AllGatherInt(int(math.Round(load)))
	if err != nil {
		return false, err
	}
	unbalance := decomp.LoadUnbalance(counts)
	if unbalance <= m.cfg.BackgroundMeshDecomposition.MaxLoadUnbalance {
		return false, nil
	}
	all, err := gatherPoints(m.comm, pts)
	if err != nil {
		return false, err
	}
	samples := make([]r3.Vec, len(all))
	weights := make([]float64, len(all))
	for i, p := range all {
		samples[i], weights[i] = p.Pos, weight(p)
	}
	if err := m.decomp.Rebalance(samples, weights); err != nil {
		return false, err
	}
	m.log.Info("decomposition rebalanced", "unbalance", unbalance, "loads", counts)
	return true, nil
}

// broadcast sends b to every rank and returns the buffers of all ranks in
// rank order.
func broadcast(c comm.Comm, b []byte) ([][]byte, error) {
	send := make([][]byte, c.Size())
	for r := range send {
		send[r] = b
	}
	return c.AllToAll(send)
}

// gatherPoints returns the points of every rank in rank order.
func gatherPoints(c comm.Comm, pts []delaunay.Point) ([]delaunay.Point, error) {
	recv, err := broadcast(c, delaunay.MarshalPoints(pts))
	if err != nil {
		return nil, err
	}
	var all []delaunay.Point
	for src, b := range recv {
		got, err := delaunay.UnmarshalPoints(b)
		if err != nil {
			return nil, fmt.Errorf("points from rank %d: %w", src, err)
		}
		all = append(all, got...)
	}
	return all, nil
}

func encodeInts(v []int) []byte {
	b := make([]byte, 0, len(v)*binary.MaxVarintLen32)
	for _, x := range v {
		b = binary.AppendVarint(b, int64(x))
	}
	return b
}

var errShortInts = errors.New("truncated integer list")

func decodeInts(b []byte) ([]int, error) {
	var v []int
	for len(b) > 0 {
		x, n := binary.Varint(b)
		if n <= 0 {
			return nil, errShortInts
		}
		v = append(v, int(x))
		b = b[n:]
	}
	return v, nil
}
