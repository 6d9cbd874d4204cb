package cvmesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/soypat/cvmesh/comm"
	"github.com/soypat/cvmesh/conform"
	"github.com/soypat/cvmesh/control"
	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/diag"
	"github.com/soypat/cvmesh/faceareaweight"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/initialpoints"
	"github.com/soypat/cvmesh/internal/d3"
	"github.com/soypat/cvmesh/internal/errs"
	"github.com/soypat/cvmesh/internal/logging"
	"github.com/soypat/cvmesh/internal/metrics"
	"github.com/soypat/cvmesh/relaxation"
	"gonum.org/v1/gonum/spatial/r3"
)

// State is the stage a Mesher has reached.
type State int

const (
	SeedInit State = iota
	SizeFieldBuilt
	InitialPointsInserted
	FeaturePointsInserted
	SurfaceConformed
	Moving
	Reconformed
	Converged
	TimeLimitReached
)

var stateNames = [...]string{
	"seedInit", "sizeFieldBuilt", "initialPointsInserted", "featurePointsInserted",
	"surfaceConformed", "moving", "reconformed", "converged", "timeLimitReached",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Mesher generates one rank's part of a conformal Voronoi mesh. All ranks
// of a world must call Run together.
type Mesher struct {
	cfg     Config
	comm    comm.Comm
	geom    *geometry.Geometry
	decomp  *decomp.Decomposition
	field   *control.Field
	tess    *delaunay.Tessellation
	conf    *conform.Engine
	relax   relaxation.Model
	weight  faceareaweight.Model
	rng     *rand.Rand
	log     *slog.Logger
	metrics *metrics.Metrics

	state State
	// nextIndex is the next fresh global index of this rank. Fresh indices
	// step by the world size so ranks never collide.
	nextIndex int
	// features holds the feature point group members created by this rank.
	features []delaunay.Point
	// sent records the ranks each owned vertex was referred to since the
	// last rebuild.
	sent      map[int][]int
	anomalies map[string]int
	history   []diag.Iteration
}

type Option func(*Mesher)

func WithLogger(l *slog.Logger) Option {
	return func(m *Mesher) { m.log = l }
}

// WithGeometry meshes g instead of the geometry of the configuration.
func WithGeometry(g *geometry.Geometry) Option {
	return func(m *Mesher) { m.geom = g }
}

// Result is the outcome of a run on one rank.
type Result struct {
	State      State
	Iterations int
	Mesh       *PolyMesh
	Quality    QualityReport
	History    []diag.Iteration
	Metrics    *metrics.Metrics
}

// New prepares a mesher for the rank c of its world. Configuration problems
// are returned as a ConfigError.
func New(cfg Config, c comm.Comm, opts ...Option) (*Mesher, error) {
	cfg = cfg.WithDefaults()
	m := &Mesher{
		cfg:       cfg,
		comm:      c,
		log:       logging.NewNop(),
		sent:      make(map[int][]int),
		anomalies: make(map[string]int),
	}
	for _, o := range opts {
		o(m)
	}
	if err := cfg.validate(m.geom == nil); err != nil {
		return nil, err
	}
	if m.geom == nil {
		g, err := geometry.Build(cfg.Geometry)
		if err != nil {
			return nil, &ConfigError{Key: "geometry", Err: err}
		}
		m.geom = g
	}
	prec, _ := parsePrecision(cfg.Precision)
	var err error
	m.decomp, err = decomp.New(m.geom.Bounds(), c.Size(), nil, nil)
	if err != nil {
		return nil, err
	}
	mc := cfg.MotionControl
	m.relax, err = relaxation.New(mc.RelaxationModel.Type, mc.RelaxationModel.Coeffs, mc.MaxIterations)
	if err != nil {
		return nil, &ConfigError{Key: "motionControl.relaxationModel", Err: err}
	}
	m.weight, err = faceareaweight.New(mc.FaceAreaWeightModel.Type, mc.FaceAreaWeightModel.Coeffs)
	if err != nil {
		return nil, &ConfigError{Key: "motionControl.faceAreaWeightModel", Err: err}
	}
	m.rng = rand.New(rand.NewSource(cfg.Seed + int64(c.Rank())))
	m.metrics = metrics.New(c.Rank())
	bounds := d3.Box(m.geom.Bounds()).Enlarge(d3.Elem(4 * cfg.CellShapeControl.DefaultCellSize))
	m.tess = delaunay.New(r3.Box(bounds), delaunay.WithPrecision(prec), delaunay.WithRand(m.rng),
		delaunay.WithDuplicateTolerance(m.geom.Tolerance()))
	m.conf = conform.New(cfg.SurfaceConformation, m.geom, m.decomp, c.Rank(),
		conform.WithLogger(m.log), conform.WithIndexer(m.newIndex))
	return m, nil
}

func (m *Mesher) newIndex() int {
	i := m.nextIndex
	m.nextIndex += m.comm.Size()
	return i
}

// State returns the stage the mesher has reached.
func (m *Mesher) State() State { return m.state }

// Metrics returns the collectors of the mesher.
func (m *Mesher) Metrics() *metrics.Metrics { return m.metrics }

// Tessellation returns the main tessellation of the rank.
func (m *Mesher) Tessellation() *delaunay.Tessellation { return m.tess }

// Run builds the size field, seeds and conforms the tessellation and moves
// the points until the displacement converges, the iteration budget is
// spent or ctx is done. All ranks stop at the same iteration. The final
// tessellation is turned into the rank's dual mesh.
func (m *Mesher) Run(ctx context.Context) (*Result, error) {
	steps := []struct {
		run  func() error
		next State
	}{
		{m.buildSizeField, SizeFieldBuilt},
		{m.insertInitialPoints, InitialPointsInserted},
		{m.insertFeaturePoints, FeaturePointsInserted},
		{m.conformSurfaces, SurfaceConformed},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return nil, fmt.Errorf("%s: %w", step.next, err)
		}
		m.state = step.next
		m.log.Info("stage complete", "state", m.state, "vertices", m.tess.NumVertices())
	}

	mc := m.cfg.MotionControl
	iter := 0
	for m.state != Converged && m.state != TimeLimitReached {
		stop, err := m.comm.AllReduceOr(ctx.Err() != nil || iter >= mc.MaxIterations)
		if err != nil {
			return nil, err
		}
		if stop {
			m.state = TimeLimitReached
			break
		}
		m.state = Moving
		it, err := m.move(iter)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iter, err)
		}
		m.state = Reconformed
		m.history = append(m.history, it)
		m.metrics.Iterations.Inc()
		m.metrics.Relaxation.Set(it.Relaxation)
		m.log.Info("iteration", "iter", iter, "relaxation", it.Relaxation,
			"displacement", it.MeanDisplacement, "inserted", it.Inserted,
			"removed", it.Removed, "vertices", it.Vertices)
		iter++
		if mc.ConvergenceTolerance > 0 && it.MeanDisplacement < mc.ConvergenceTolerance {
			m.state = Converged
		}
	}

	mesh, quality, err := m.finalize()
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	m.log.Info("mesh complete", "state", m.state, "iterations", iter, "quality", quality)
	if m.cfg.ObjOutput {
		if err := m.writeDiagnostics(mesh); err != nil {
			return nil, err
		}
	}
	return &Result{State: m.state, Iterations: iter, Mesh: mesh, Quality: quality, History: m.history,
		Metrics: m.metrics}, nil
}

// buildSizeField builds, refines, smooths and distributes the control
// field, rebalancing the decomposition on its weighted point density. The
// field is always redistributed last so every rank interpolates the same
// sizes and alignments near the region boundaries.
func (m *Mesher) buildSizeField() error {
	cfg := m.cfg.CellShapeControl
	sizes := control.Sizes{Default: cfg.DefaultCellSize}
	for i, sc := range cfg.SizeSources {
		src, err := control.NewSource(sc, m.geom)
		if err != nil {
			return &ConfigError{Key: fmt.Sprintf("cellShapeControl.sizeSources[%d]", i), Err: err}
		}
		sizes.Sources = append(sizes.Sources, src)
	}
	var err error
	m.field, err = control.Build(cfg, m.geom, sizes, m.decomp, m.comm, m.rng,
		control.WithLogger(m.log))
	if err != nil {
		return err
	}
	added, err := m.field.Refine(m.cfg.MotionControl.MaxRefinementIterations)
	if err != nil {
		return err
	}
	sweeps := m.field.SmoothAlignments(m.cfg.MotionControl.MaxSmoothingIterations)
	owned, referred := m.field.Count()
	m.log.Debug("size field built", "refined", added, "sweeps", sweeps, "owned", owned, "referred", referred)

	spacing := m.field.Spacing()
	_, err = m.rebalance(m.field.Points(), func(p delaunay.Point) float64 {
		r := spacing / p.TargetSize
		return r * r * r
	})
	if err != nil {
		return err
	}
	// The halos still hold the alignments from before smoothing.
	return m.field.Distribute(m.decomp)
}

func (m *Mesher) insertInitialPoints() error {
	ip := m.cfg.InitialPoints
	method, err := initialpoints.New(ip.Type, ip.Coeffs, initialpoints.Params{
		Geometry: m.geom,
		Decomp:   m.decomp,
		Rank:     m.comm.Rank(),
		Sizer:    m.field,
		Rand:     m.rng,
	})
	if err != nil {
		return &ConfigError{Key: "initialPoints", Err: err}
	}
	pts, err := method.InitialPoints()
	if err != nil {
		return err
	}
	m.log.Debug("initial points", "method", ip.Type, "points", len(pts))
	return m.rebuild(pts)
}

// insertFeaturePoints inserts the corner groups whose corner this rank
// owns. Inserted groups are kept and reinserted by every rebuild.
func (m *Mesher) insertFeaturePoints() error {
	groups, rep := m.conf.FeaturePointGroups(m.field)
	rep.Merge(m.conf.InsertPairs(m.tess, groups))
	for _, g := range groups {
		if g.Inserted {
			m.features = append(m.features, g.Points...)
		}
	}
	m.record(rep)
	m.log.Debug("feature points", "report", rep)
	if err := m.referGhosts(); err != nil {
		return err
	}
	return m.checkIndices()
}

// conformSurfaces conforms the tessellation, checks the pair invariant and
// refers the new boundary points to the neighbouring ranks.
func (m *Mesher) conformSurfaces() error {
	rep := m.conf.Conform(m.tess, m.field)
	rep.Merge(m.conf.MultipleIntersections(m.tess))
	if unpaired := conform.UnpairedPoints(m.tess); len(unpaired) > 0 {
		return errs.Invariant("conforming points without their pair", nil, unpaired...)
	}
	m.record(rep)
	if err := m.referGhosts(); err != nil {
		return err
	}
	if err := m.checkIndices(); err != nil {
		return err
	}
	m.log.Debug("surface conformation", "report", rep)
	m.printVertexInfo()
	return nil
}

// record adds the counts of rep to the metrics and the anomaly totals.
func (m *Mesher) record(rep conform.Report) {
	for k, n := range rep.Groups {
		if n > 0 {
			m.metrics.Pairs.WithLabelValues(conform.Kind(k).String()).Add(float64(n))
		}
	}
	m.metrics.AddAnomalies(rep.Anomalies)
	for kind, n := range rep.Anomalies {
		m.anomalies[kind] += n
	}
}

func (m *Mesher) printVertexInfo() {
	if !m.cfg.PrintVertexInfo {
		return
	}
	counts := make(map[delaunay.Type]int)
	referred := 0
	m.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Referred {
			referred++
		} else {
			counts[v.Type]++
		}
		return true
	})
	attrs := []any{"referred", referred}
	for _, t := range delaunay.Types() {
		if counts[t] > 0 {
			attrs = append(attrs, t.String(), counts[t])
		}
	}
	m.log.Info("vertex info", attrs...)
}

// finalize builds the dual mesh of the final tessellation and its quality
// report.
func (m *Mesher) finalize() (*PolyMesh, QualityReport, error) {
	names := make([]string, len(m.geom.Surfaces()))
	for i, s := range m.geom.Surfaces() {
		names[i] = s.Name
	}
	mesh, collapsed, err := buildPolyMesh(m.tess, names, m.geom.Tolerance(), m.comm.Rank())
	if err != nil {
		return nil, QualityReport{}, err
	}
	if collapsed > 0 {
		m.anomalies["collapsedFaces"] += collapsed
		m.metrics.AddAnomalies(map[string]int{"collapsedFaces": collapsed})
	}
	q := qualityReport(m.tess, mesh, collapsed, m.anomalies)
	if q.CoplanarCells > 0 {
		m.metrics.AddAnomalies(map[string]int{"coplanarCells": q.CoplanarCells})
	}
	return mesh, q, nil
}

// writeDiagnostics writes the points, edges and dual faces of the rank as
// OBJ files, a render of the boundary faces, a mid-height cross-section
// and the convergence plot.
func (m *Mesher) writeDiagnostics(mesh *PolyMesh) error {
	dir := m.cfg.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := func(base string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_rank%d", base, m.comm.Rank()))
	}
	var pts []delaunay.Point
	m.tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if !v.IsFar() {
			pts = append(pts, v.Point)
		}
		return true
	})
	err := errors.Join(
		diag.CreateFile(name("points")+".obj", func(w io.Writer) error { return diag.WritePointsOBJ(w, pts) }),
		diag.CreateFile(name("edges")+".obj", func(w io.Writer) error { return diag.WriteEdgesOBJ(w, m.tess) }),
		diag.CreateFile(name("faces")+".obj", func(w io.Writer) error {
			return diag.WriteFacesOBJ(w, mesh.Points, mesh.Faces)
		}),
	)
	if err != nil {
		return err
	}
	boundary := mesh.Faces[mesh.NumInternalFaces():]
	if tris := diag.Triangulate(mesh.Points, boundary); len(tris) > 0 {
		img, err := diag.RenderTriangles(tris, diag.DefaultView())
		if err != nil {
			return err
		}
		if err := diag.SavePNG(name("boundary")+".png", img); err != nil {
			return err
		}
	}
	bounds := m.geom.Bounds()
	z := (bounds.Min.Z + bounds.Max.Z) / 2
	if len(diag.SliceSegments(mesh.Points, mesh.Faces, z)) > 0 {
		err := diag.CreateFile(name("slice")+".svg", func(w io.Writer) error {
			return diag.WriteSliceSVG(w, mesh.Points, mesh.Faces, z, 800)
		})
		if err != nil {
			return err
		}
	}
	if len(m.history) == 0 {
		return nil
	}
	return diag.CreateFile(name("convergence")+".png", func(w io.Writer) error {
		return diag.PlotConvergence(w, m.history, "png")
	})
}

// RunWorld runs a mesher on each of n in-process ranks and returns their
// results by rank. Cancelling ctx stops every rank at the same iteration
// and still produces a mesh. A failing rank aborts the others. Each rank
// logs to log annotated with its rank. A nil log discards the records.
func RunWorld(ctx context.Context, cfg Config, n int, log *slog.Logger, opts ...Option) ([]*Result, error) {
	if log == nil {
		log = logging.NewNop()
	}
	results := make([]*Result, n)
	err := comm.Run(context.WithoutCancel(ctx), n, func(_ context.Context, c comm.Comm) error {
		rankOpts := append(opts[:len(opts):len(opts)], WithLogger(logging.ForRank(log, c.Rank())))
		m, err := New(cfg, c, rankOpts...)
		if err != nil {
			return err
		}
		res, err := m.Run(ctx)
		if err != nil {
			return err
		}
		results[c.Rank()] = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
