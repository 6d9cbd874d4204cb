// Package conform forces the Voronoi dual of a tessellation onto the
// surfaces, feature edges and feature points of a geometry by inserting
// groups of points placed symmetrically about them.
package conform

import (
	"log/slog"
	"sort"

	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/logging"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config configures surface conformation. Distances are in multiples of
// the local target cell size.
type Config struct {
	// PointPairDistanceCoeff is the distance of pair members from the
	// conformed location.
	PointPairDistanceCoeff float64 `yaml:"pointPairDistanceCoeff"`
	// SearchDistanceCoeff is the distance from a surface within which an
	// internal point triggers a surface pair.
	SearchDistanceCoeff float64 `yaml:"searchDistanceCoeff"`
	// NearSurfacePointCoeff is the exclusion radius around existing surface
	// points.
	NearSurfacePointCoeff float64 `yaml:"nearSurfacePointCoeff"`
	NearFeatureEdgeCoeff  float64 `yaml:"nearFeatureEdgeCoeff"`
	// NearFeaturePointCoeff is the exclusion radius around feature points.
	NearFeaturePointCoeff float64 `yaml:"nearFeaturePointCoeff"`
	// FeatureEdgeSpacingCoeff is the spacing of edge groups along an edge.
	FeatureEdgeSpacingCoeff float64 `yaml:"featureEdgeSpacingCoeff"`
	// MaxPasses bounds the conformation passes of one Conform call.
	MaxPasses int `yaml:"maxPasses"`
	// MinHitRatio stops conformation once a pass adds fewer groups than
	// this fraction of the internal points.
	MinHitRatio float64 `yaml:"minHitRatio"`
}

// WithDefaults returns c with unset coefficients given their defaults.
func (c Config) WithDefaults() Config {
	def := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.PointPairDistanceCoeff, 0.1)
	def(&c.SearchDistanceCoeff, 1)
	def(&c.NearSurfacePointCoeff, 0.5)
	def(&c.NearFeatureEdgeCoeff, 0.5)
	def(&c.NearFeaturePointCoeff, 1)
	def(&c.FeatureEdgeSpacingCoeff, 1)
	if c.MaxPasses == 0 {
		c.MaxPasses = 3
	}
	return c
}

// Sizer returns the target cell size and alignment at a point.
type Sizer interface {
	CellSizeAndAlignment(p r3.Vec) (float64, triad.Triad)
}

// Kind classifies conforming point groups.
type Kind uint8

const (
	// SurfacePair straddles a surface meshed on one side.
	SurfacePair Kind = iota
	// BafflePair straddles a surface meshed on both sides.
	BafflePair
	EdgeGroup
	FeaturePointGroup
	numKinds
)

var kindNames = [numKinds]string{"surfacePair", "bafflePair", "edgeGroup", "featurePointGroup"}

func (k Kind) String() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Group is a set of points inserted together or not at all. Once inserted
// each member's Pair holds the index of the next member, so the members form
// a ring.
type Group struct {
	Kind Kind
	// Origin is the conformed surface, edge or corner location.
	Origin r3.Vec
	Points []delaunay.Point
	// Inserted is set by InsertPairs once every member is in.
	Inserted bool
}

// Report accumulates the outcome of conformation passes.
type Report struct {
	Passes int
	Groups [numKinds]int
	// Rejected counts groups not inserted because a member coincided with
	// an existing site or another member, or was dropped on insertion.
	Rejected  int
	Anomalies map[string]int
}

func (r *Report) anomaly(kind string, n int) {
	if r.Anomalies == nil {
		r.Anomalies = make(map[string]int)
	}
	r.Anomalies[kind] += n
}

// Merge adds the counts of o to r.
func (r *Report) Merge(o Report) {
	r.Passes += o.Passes
	for k := range r.Groups {
		r.Groups[k] += o.Groups[k]
	}
	r.Rejected += o.Rejected
	for kind, n := range o.Anomalies {
		r.anomaly(kind, n)
	}
}

// Total returns the number of groups inserted.
func (r Report) Total() (n int) {
	for _, g := range r.Groups {
		n += g
	}
	return n
}

// LogValue lists the non-zero counts.
func (r Report) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Int("passes", r.Passes), slog.Int("rejected", r.Rejected)}
	for k, n := range r.Groups {
		if n > 0 {
			attrs = append(attrs, slog.Int(Kind(k).String(), n))
		}
	}
	kinds := make([]string, 0, len(r.Anomalies))
	for kind := range r.Anomalies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		attrs = append(attrs, slog.Int(kind, r.Anomalies[kind]))
	}
	return slog.GroupValue(attrs...)
}

// Engine builds and inserts the conforming point groups of one rank. A rank
// creates the groups whose origin it owns.
type Engine struct {
	cfg    Config
	geom   *geometry.Geometry
	decomp *decomp.Decomposition
	rank   int
	next   func() int
	log    *slog.Logger
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIndexer sets the source of global indices for inserted points.
func WithIndexer(next func() int) Option {
	return func(e *Engine) { e.next = next }
}

// New returns an engine for rank. A nil decomposition owns everything.
func New(cfg Config, g *geometry.Geometry, d *decomp.Decomposition, rank int, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg.WithDefaults(),
		geom:   g,
		decomp: d,
		rank:   rank,
		log:    logging.NewNop(),
	}
	counter := 0
	e.next = func() int { counter++; return counter - 1 }
	for _, o := range opts {
		o(e)
	}
	return e
}

// SetDecomposition replaces the decomposition deciding group ownership.
func (e *Engine) SetDecomposition(d *decomp.Decomposition) { e.decomp = d }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) owns(p r3.Vec) bool {
	return e.decomp == nil || e.decomp.Owner(p) == e.rank
}

// PairDistance returns the distance of pair members from the conformed
// location for cell size s.
func (e *Engine) PairDistance(s float64) float64 { return e.cfg.PointPairDistanceCoeff * s }

// Conform inserts the feature edge groups and then runs surface passes.
// The first pairs internal points near a surface. Later ones pair the
// surface crossings of edges and dual cells of internal points, stopping
// after a pass adding no groups or fewer than MinHitRatio of the internal
// points. At most MaxPasses passes are run.
func (e *Engine) Conform(tess *delaunay.Tessellation, sizer Sizer) Report {
	var rep Report
	edges, erep := e.FeatureEdgeGroups(sizer)
	rep.Merge(erep)
	rep.Merge(e.InsertPairs(tess, edges))
	internal := 0
	tess.ForEachVertex(func(_ delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.Real() && v.InternalPoint() {
			internal++
		}
		return true
	})
	for pass := 0; pass < e.cfg.MaxPasses; pass++ {
		var groups []Group
		if pass == 0 {
			groups = e.SurfaceGroups(tess, sizer)
		} else {
			groups = e.CrossingGroups(tess, sizer)
		}
		prep := e.InsertPairs(tess, groups)
		prep.Passes = 1
		rep.Merge(prep)
		if pass == 0 {
			// Points beyond the search distance are left to the crossing passes.
			continue
		}
		added := prep.Total()
		if added == 0 || (internal > 0 && float64(added) < e.cfg.MinHitRatio*float64(internal)) {
			break
		}
	}
	e.log.Debug("surface conformation", "report", rep)
	return rep
}
