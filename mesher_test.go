package cvmesh

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func loadBox(t *testing.T) Config {
	t.Helper()
	cfg, err := Load(strings.NewReader(boxConfig))
	require.NoError(t, err)
	return cfg
}

func TestStateString(t *testing.T) {
	require.Equal(t, "surfaceConformed", SurfaceConformed.String())
	require.Equal(t, "timeLimitReached", TimeLimitReached.String())
	require.Equal(t, "State(42)", State(42).String())
}

func TestNewConfigError(t *testing.T) {
	cfg := loadBox(t)
	cfg.MotionControl.CosInsertionAcceptanceAngle = nil
	_, err := New(cfg, comm.Serial())
	require.True(t, errors.Is(err, ErrConfig), "%v", err)

	cfg = loadBox(t)
	cfg.Geometry.Surfaces[0].Type = "torus"
	_, err = New(cfg, comm.Serial())
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr), "%v", err)
	require.Equal(t, "geometry", cerr.Key)
}

func TestCheckIndicesDuplicate(t *testing.T) {
	m, err := New(loadBox(t), comm.Serial())
	require.NoError(t, err)
	a := delaunay.NewPoint(r3.Vec{X: 0.2, Y: 0.5, Z: 0.5}, delaunay.Internal)
	b := delaunay.NewPoint(r3.Vec{X: 0.7, Y: 0.5, Z: 0.5}, delaunay.Internal)
	a.Index, b.Index = 5, 6
	n, _ := m.Tessellation().InsertPoints([]delaunay.Point{a, b})
	require.Equal(t, 2, n)
	require.NoError(t, m.checkIndices())

	c := delaunay.NewPoint(r3.Vec{X: 0.5, Y: 0.2, Z: 0.5}, delaunay.Internal)
	c.Index = 5
	m.Tessellation().InsertPoints([]delaunay.Point{c})
	err = m.checkIndices()
	require.True(t, errors.Is(err, ErrInvariant), "%v", err)
}

func TestReindexPairs(t *testing.T) {
	m, err := New(loadBox(t), comm.Serial())
	require.NoError(t, err)
	pts := []delaunay.Point{
		delaunay.NewPoint(r3.Vec{X: 0.2, Y: 0.5, Z: 0.5}, delaunay.Internal),
		delaunay.NewPoint(r3.Vec{X: 0.3, Y: 0.5, Z: 0.5}, delaunay.InternalSurface),
		delaunay.NewPoint(r3.Vec{X: 0.4, Y: 0.5, Z: 0.5}, delaunay.ExternalSurface),
	}
	pts[1].Index, pts[1].Pair = 17, 40
	pts[2].Index, pts[2].Pair = 40, 17
	require.NoError(t, m.reindex(pts))
	for i, p := range pts {
		require.Equal(t, i, p.Index)
	}
	require.Equal(t, -1, pts[0].Pair)
	require.Equal(t, 2, pts[1].Pair)
	require.Equal(t, 1, pts[2].Pair)
	require.Equal(t, 3, m.newIndex())

	lost := []delaunay.Point{delaunay.NewPoint(r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, delaunay.InternalSurface)}
	lost[0].Index, lost[0].Pair = 3, 99
	require.True(t, errors.Is(m.reindex(lost), ErrInvariant))
}

func TestIntsCodec(t *testing.T) {
	in := []int{0, -1, 1 << 40, 7, -300}
	out, err := decodeInts(encodeInts(in))
	require.NoError(t, err)
	require.Equal(t, in, out)
	_, err = decodeInts([]byte{0x80})
	require.Error(t, err)
}

func TestRunBoxSerial(t *testing.T) {
	if testing.Short() {
		t.Skip("full meshing run")
	}
	cfg := loadBox(t)
	m, err := New(cfg, comm.Serial())
	require.NoError(t, err)
	res, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, []State{Converged, TimeLimitReached}, res.State)
	require.LessOrEqual(t, res.Iterations, cfg.MotionControl.MaxIterations)
	require.Len(t, res.History, res.Iterations)
	require.NotZero(t, res.Mesh.NumCells())
	require.Len(t, res.Mesh.Owner, len(res.Mesh.Faces))
	require.Len(t, res.Mesh.Neighbour, res.Mesh.NumInternalFaces())

	// Every vertex carries a unique global index and pairs are mutual.
	index := map[int]*delaunay.Vertex{}
	m.Tessellation().ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.IsFar() {
			require.NotContains(t, index, v.Index)
			index[v.Index] = v
		}
		return true
	})
	requirePairRings(t, index)

	// Every surface point sits at the pair distance from the walls.
	internalSurface := 0
	for i, v := range index {
		if v.Type == delaunay.InternalSurface {
			internalSurface++
		}
		if !v.SurfacePoint() {
			continue
		}
		dist, _ := m.geom.Distance(v.Pos)
		bound := cfg.SurfaceConformation.PointPairDistanceCoeff*v.TargetSize + 1e-6
		require.LessOrEqual(t, dist, bound, "surface vertex %d at %v", i, v.Pos)
	}
	require.NotZero(t, internalSurface, "no internal surface points")
}

// requirePairRings checks that following Pair from any paired vertex
// returns to it.
func requirePairRings(t *testing.T, index map[int]*delaunay.Vertex) {
	t.Helper()
	for i, v := range index {
		if v.Pair < 0 {
			continue
		}
		j, steps := v.Pair, 1
		for ; j != i && steps <= len(index); steps++ {
			partner, ok := index[j]
			require.True(t, ok, "vertex %d paired with missing %d", i, j)
			j = partner.Pair
		}
		require.Equal(t, i, j, "pair ring of vertex %d does not close", i)
	}
}

func TestRunBoxTwoRanks(t *testing.T) {
	if testing.Short() {
		t.Skip("full meshing run")
	}
	cfg := loadBox(t)
	serial, err := RunWorld(context.Background(), cfg, 1, nil)
	require.NoError(t, err)
	want := serial[0].Mesh.NumCells()

	const ranks = 2
	var (
		mu      sync.Mutex
		results = make([]*Result, ranks)
		index   = map[int]*delaunay.Vertex{}
	)
	err = comm.Run(context.Background(), ranks, func(ctx context.Context, c comm.Comm) error {
		m, err := New(cfg, c)
		if err != nil {
			return err
		}
		res, err := m.Run(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		results[c.Rank()] = res
		m.Tessellation().ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
			if v.Real() {
				if _, dup := index[v.Index]; dup {
					t.Errorf("index %d owned twice", v.Index)
				}
				index[v.Index] = v
			}
			return true
		})
		return nil
	})
	require.NoError(t, err)

	got := 0
	procFaces := map[[2]int]int{}
	for r, res := range results {
		require.NotZero(t, res.Mesh.NumCells(), "rank %d", r)
		got += res.Mesh.NumCells()
		for _, p := range res.Mesh.Patches {
			if p.NeighbProc >= 0 {
				procFaces[[2]int{r, p.NeighbProc}] = p.Size
			}
		}
	}
	// Surface exclusion across the region boundary and the motion of
	// each region make the totals differ slightly from the serial mesh.
	require.LessOrEqual(t, math.Abs(float64(got-want)), 0.1*float64(want),
		"%d cells over %d ranks, %d serial", got, ranks, want)
	require.NotZero(t, procFaces[[2]int{0, 1}], "no processor faces")
	require.Equal(t, procFaces[[2]int{0, 1}], procFaces[[2]int{1, 0}],
		"processor patch sizes differ across the region boundary")
	requirePairRings(t, index)
}

func TestRunCancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("full meshing run")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := RunWorld(ctx, loadBox(t), 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, TimeLimitReached, res[0].State)
	require.Zero(t, res[0].Iterations)
	require.NotNil(t, res[0].Mesh)
}
