package cvmesh

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/soypat/cvmesh/conform"
	"github.com/soypat/cvmesh/control"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/faceareaweight"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/initialpoints"
	"github.com/soypat/cvmesh/relaxation"
	"gopkg.in/yaml.v3"
)

// Config is the complete mesher configuration as read from YAML.
type Config struct {
	Geometry                    geometry.Config `yaml:"geometry"`
	InitialPoints               StrategyConfig  `yaml:"initialPoints"`
	MotionControl               MotionControl   `yaml:"motionControl"`
	SurfaceConformation         conform.Config  `yaml:"surfaceConformation"`
	CellShapeControl            control.Config  `yaml:"cellShapeControl"`
	BackgroundMeshDecomposition Decomposition   `yaml:"backgroundMeshDecomposition"`

	// ObjOutput writes diagnostic OBJ files, a render of the dual faces and
	// the convergence plot to OutputDir.
	ObjOutput bool `yaml:"objOutput"`
	// PrintVertexInfo logs per-type vertex counts after every rebuild.
	PrintVertexInfo bool `yaml:"printVertexInfo"`
	// Precision of the circumcentre computation, inexact or exact.
	Precision string `yaml:"precision"`
	// Seed of the random sources. Rank r uses Seed+r.
	Seed      int64  `yaml:"seed"`
	OutputDir string `yaml:"outputDir"`
}

// StrategyConfig selects a registered strategy and its coefficients.
type StrategyConfig struct {
	Type   string         `yaml:"type"`
	Coeffs map[string]any `yaml:"coeffs"`
}

// MotionControl configures the motion iterations. Distances are in
// multiples of the local target cell size.
type MotionControl struct {
	MaxIterations           int            `yaml:"maxIterations"`
	MaxRefinementIterations int            `yaml:"maxRefinementIterations"`
	MaxSmoothingIterations  int            `yaml:"maxSmoothingIterations"`
	RelaxationModel         StrategyConfig `yaml:"relaxationModel"`
	FaceAreaWeightModel     StrategyConfig `yaml:"faceAreaWeightModel"`
	// CosAlignmentAcceptanceAngle is the cosine an edge must reach against
	// an alignment direction to be driven along it.
	CosAlignmentAcceptanceAngle *float64 `yaml:"cosAlignmentAcceptanceAngle"`
	// CosInsertionAcceptanceAngle is the cosine an edge must exceed for a
	// point to be inserted at its midpoint.
	CosInsertionAcceptanceAngle *float64 `yaml:"cosInsertionAcceptanceAngle"`
	InsertionDistCoeff          float64  `yaml:"insertionDistCoeff"`
	RemovalDistCoeff            float64  `yaml:"removalDistCoeff"`
	// FaceAreaRatioCoeff is the dual face area, in squared target sizes,
	// an edge needs before a point is inserted on it.
	FaceAreaRatioCoeff float64 `yaml:"faceAreaRatioCoeff"`
	// ConvergenceTolerance ends the run once the mean displacement of an
	// iteration falls below it. Zero disables the test.
	ConvergenceTolerance float64 `yaml:"convergenceTolerance"`
}

// Decomposition configures the parallel partitioning.
type Decomposition struct {
	// MaxLoadUnbalance triggers a rebalance when the relative excess of the
	// busiest rank over the mean exceeds it.
	MaxLoadUnbalance      float64 `yaml:"maxLoadUnbalance"`
	MaxReferralIterations int     `yaml:"maxReferralIterations"`
	// HaloCoeff is the width, in target cell sizes, of the band of points
	// copied to neighbouring ranks before circumspheres take over.
	HaloCoeff float64 `yaml:"haloCoeff"`
}

// Load reads a YAML configuration from r. Unknown keys are an error. The
// returned configuration has its defaults applied and is validated.
func Load(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, &ConfigError{Key: "(document)", Err: err}
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile is Load reading the file at path.
func LoadFile(path string) (Config, error) {
	fp, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer fp.Close()
	cfg, err := Load(fp)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// WithDefaults returns c with unset optional entries given their defaults.
func (c Config) WithDefaults() Config {
	def := func(v *float64, d float64) {
		if *v == 0 {
			*v = d
		}
	}
	defInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	if c.InitialPoints.Type == "" {
		c.InitialPoints.Type = "uniformGrid"
	}
	mc := &c.MotionControl
	defInt(&mc.MaxIterations, 50)
	defInt(&mc.MaxRefinementIterations, 2)
	defInt(&mc.MaxSmoothingIterations, 100)
	if mc.RelaxationModel.Type == "" {
		mc.RelaxationModel = StrategyConfig{
			Type:   "adaptiveLinear",
			Coeffs: map[string]any{"relaxationStart": 1.0, "relaxationEnd": 0.0},
		}
	}
	if mc.FaceAreaWeightModel.Type == "" {
		mc.FaceAreaWeightModel = StrategyConfig{
			Type:   "piecewiseLinearRamp",
			Coeffs: map[string]any{"lowerBound": 0.5, "upperBound": 1.0},
		}
	}
	def(&mc.InsertionDistCoeff, 1.75)
	def(&mc.RemovalDistCoeff, 0.65)
	def(&mc.FaceAreaRatioCoeff, 0.5)

	bd := &c.BackgroundMeshDecomposition
	def(&bd.MaxLoadUnbalance, 0.2)
	defInt(&bd.MaxReferralIterations, 5)
	def(&bd.HaloCoeff, 2)

	c.SurfaceConformation = c.SurfaceConformation.WithDefaults()
	c.CellShapeControl = c.CellShapeControl.WithDefaults()
	if c.Precision == "" {
		c.Precision = "inexact"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	return c
}

// Validate checks c and returns a ConfigError naming the first offending
// key. Strategy coefficients are checked by building the strategy except
// for the initial points method, which needs the geometry.
func (c Config) Validate() error { return c.validate(true) }

// validate is Validate skipping the geometry section unless geometry is set.
func (c Config) validate(geometry bool) error {
	if geometry && len(c.Geometry.Surfaces) == 0 {
		return configErr("geometry.surfaces", "at least one surface required")
	}
	if !slices.Contains(initialpoints.Names(), c.InitialPoints.Type) {
		return configErr("initialPoints.type", "unknown method %q, have %v", c.InitialPoints.Type, initialpoints.Names())
	}

	mc := c.MotionControl
	if mc.MaxIterations < 1 {
		return configErr("motionControl.maxIterations", "must be at least 1, got %d", mc.MaxIterations)
	}
	if mc.MaxRefinementIterations < 0 {
		return configErr("motionControl.maxRefinementIterations", "must not be negative, got %d", mc.MaxRefinementIterations)
	}
	if mc.MaxSmoothingIterations < 0 {
		return configErr("motionControl.maxSmoothingIterations", "must not be negative, got %d", mc.MaxSmoothingIterations)
	}
	if _, err := relaxation.New(mc.RelaxationModel.Type, mc.RelaxationModel.Coeffs, mc.MaxIterations); err != nil {
		return &ConfigError{Key: "motionControl.relaxationModel", Err: err}
	}
	if _, err := faceareaweight.New(mc.FaceAreaWeightModel.Type, mc.FaceAreaWeightModel.Coeffs); err != nil {
		return &ConfigError{Key: "motionControl.faceAreaWeightModel", Err: err}
	}
	for _, cos := range []struct {
		key string
		v   *float64
	}{
		{"motionControl.cosAlignmentAcceptanceAngle", mc.CosAlignmentAcceptanceAngle},
		{"motionControl.cosInsertionAcceptanceAngle", mc.CosInsertionAcceptanceAngle},
	} {
		if cos.v == nil {
			return configErr(cos.key, "required")
		}
		if !(*cos.v >= -1 && *cos.v <= 1) {
			return configErr(cos.key, "must be a cosine in [-1, 1], got %g", *cos.v)
		}
	}
	for _, coeff := range []struct {
		key string
		v   float64
	}{
		{"motionControl.insertionDistCoeff", mc.InsertionDistCoeff},
		{"motionControl.removalDistCoeff", mc.RemovalDistCoeff},
		{"motionControl.faceAreaRatioCoeff", mc.FaceAreaRatioCoeff},
		{"surfaceConformation.pointPairDistanceCoeff", c.SurfaceConformation.PointPairDistanceCoeff},
		{"surfaceConformation.searchDistanceCoeff", c.SurfaceConformation.SearchDistanceCoeff},
		{"surfaceConformation.featureEdgeSpacingCoeff", c.SurfaceConformation.FeatureEdgeSpacingCoeff},
		{"cellShapeControl.defaultCellSize", c.CellShapeControl.DefaultCellSize},
		{"cellShapeControl.backgroundSpacingCoeff", c.CellShapeControl.BackgroundSpacingCoeff},
		{"backgroundMeshDecomposition.haloCoeff", c.BackgroundMeshDecomposition.HaloCoeff},
	} {
		if !(coeff.v > 0) {
			return configErr(coeff.key, "must be positive, got %g", coeff.v)
		}
	}
	if mc.RemovalDistCoeff >= mc.InsertionDistCoeff {
		return configErr("motionControl.removalDistCoeff", "must be below insertionDistCoeff %g, got %g",
			mc.InsertionDistCoeff, mc.RemovalDistCoeff)
	}
	if mc.ConvergenceTolerance < 0 {
		return configErr("motionControl.convergenceTolerance", "must not be negative, got %g", mc.ConvergenceTolerance)
	}
	if ppd := c.SurfaceConformation.PointPairDistanceCoeff; ppd >= 0.5 {
		return configErr("surfaceConformation.pointPairDistanceCoeff", "must be below 0.5, got %g", ppd)
	}
	if c.SurfaceConformation.MaxPasses < 1 {
		return configErr("surfaceConformation.maxPasses", "must be at least 1, got %d", c.SurfaceConformation.MaxPasses)
	}
	bd := c.BackgroundMeshDecomposition
	if bd.MaxLoadUnbalance < 0 {
		return configErr("backgroundMeshDecomposition.maxLoadUnbalance", "must not be negative, got %g", bd.MaxLoadUnbalance)
	}
	if bd.MaxReferralIterations < 1 {
		return configErr("backgroundMeshDecomposition.maxReferralIterations", "must be at least 1, got %d", bd.MaxReferralIterations)
	}
	if _, err := parsePrecision(c.Precision); err != nil {
		return &ConfigError{Key: "precision", Err: err}
	}
	return nil
}

func parsePrecision(s string) (delaunay.Precision, error) {
	switch s {
	case "", "inexact":
		return delaunay.Inexact, nil
	case "exact":
		return delaunay.Exact, nil
	}
	return 0, fmt.Errorf("want inexact or exact, got %q", s)
}
