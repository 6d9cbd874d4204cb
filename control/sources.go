package control

import (
	"fmt"
	"math"

	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/internal/coeffs"
	"gonum.org/v1/gonum/spatial/r3"
)

// Source prescribes a cell size over part of the domain. ok is false where
// the source does not apply.
type Source interface {
	Size(p r3.Vec) (size float64, ok bool)
}

// SourceConfig selects a size source by type. Coeffs are decoded into the
// coefficients of the chosen type.
type SourceConfig struct {
	Type string `yaml:"type"`
	// Surface names the geometry surface the source is measured from.
	// Uniform sources without a surface apply everywhere.
	Surface string         `yaml:"surface,omitempty"`
	Coeffs  map[string]any `yaml:"coeffs"`
}

type uniformCoeffs struct {
	CellSize float64 `mapstructure:"cellSize"`
}

type uniformDistanceCoeffs struct {
	CellSize float64 `mapstructure:"cellSize"`
	Distance float64 `mapstructure:"distance"`
}

type linearDistanceCoeffs struct {
	SurfaceCellSize  float64 `mapstructure:"surfaceCellSize"`
	DistanceCellSize float64 `mapstructure:"distanceCellSize"`
	Distance         float64 `mapstructure:"distance"`
}

// NewSource builds the source described by cfg over g.
func NewSource(cfg SourceConfig, g *geometry.Geometry) (Source, error) {
	surface := -1
	if cfg.Surface != "" {
		for i, s := range g.Surfaces() {
			if s.Name == cfg.Surface {
				surface = i
			}
		}
		if surface < 0 {
			return nil, fmt.Errorf("size source %s: unknown surface %q", cfg.Type, cfg.Surface)
		}
	}
	positive := func(name string, v float64) error {
		if !(v > 0) {
			return fmt.Errorf("size source %s: %s must be positive, got %g", cfg.Type, name, v)
		}
		return nil
	}
	var shape geometry.SDF
	if surface >= 0 {
		shape = g.Surfaces()[surface].Shape
	}
	switch cfg.Type {
	case "uniform":
		var c uniformCoeffs
		if err := coeffs.Decode(cfg.Coeffs, &c); err != nil {
			return nil, fmt.Errorf("size source uniform: %w", err)
		}
		if err := positive("cellSize", c.CellSize); err != nil {
			return nil, err
		}
		return uniform{size: c.CellSize, shape: shape}, nil

	case "uniformDistance":
		var c uniformDistanceCoeffs
		if err := coeffs.Decode(cfg.Coeffs, &c); err != nil {
			return nil, fmt.Errorf("size source uniformDistance: %w", err)
		}
		if err := positive("cellSize", c.CellSize); err != nil {
			return nil, err
		}
		if err := positive("distance", c.Distance); err != nil {
			return nil, err
		}
		if shape == nil {
			return nil, fmt.Errorf("size source uniformDistance needs a surface")
		}
		return uniformDistance{size: c.CellSize, dist: c.Distance, shape: shape}, nil

	case "linearDistance":
		var c linearDistanceCoeffs
		if err := coeffs.Decode(cfg.Coeffs, &c); err != nil {
			return nil, fmt.Errorf("size source linearDistance: %w", err)
		}
		for name, v := range map[string]float64{
			"surfaceCellSize": c.SurfaceCellSize, "distanceCellSize": c.DistanceCellSize, "distance": c.Distance,
		} {
			if err := positive(name, v); err != nil {
				return nil, err
			}
		}
		if shape == nil {
			return nil, fmt.Errorf("size source linearDistance needs a surface")
		}
		return linearDistance{c: c, shape: shape}, nil
	}
	return nil, fmt.Errorf("unknown size source type %q", cfg.Type)
}

// uniform applies inside its surface's solid, or everywhere without one.
type uniform struct {
	size  float64
	shape geometry.SDF
}

func (u uniform) Size(p r3.Vec) (float64, bool) {
	if u.shape != nil && u.shape.Evaluate(p) > 0 {
		return 0, false
	}
	return u.size, true
}

type uniformDistance struct {
	size, dist float64
	shape      geometry.SDF
}

func (u uniformDistance) Size(p r3.Vec) (float64, bool) {
	if math.Abs(u.shape.Evaluate(p)) > u.dist {
		return 0, false
	}
	return u.size, true
}

// linearDistance grows from surfaceCellSize on the surface to
// distanceCellSize at distance.
type linearDistance struct {
	c     linearDistanceCoeffs
	shape geometry.SDF
}

func (l linearDistance) Size(p r3.Vec) (float64, bool) {
	d := math.Abs(l.shape.Evaluate(p))
	if d > l.c.Distance {
		return 0, false
	}
	t := d / l.c.Distance
	return l.c.SurfaceCellSize + t*(l.c.DistanceCellSize-l.c.SurfaceCellSize), true
}

// Sizes combines sources by taking the smallest applicable size, bounded
// above by a default.
type Sizes struct {
	Default float64
	Sources []Source
}

// Size returns the target cell size at p.
func (s Sizes) Size(p r3.Vec) float64 {
	size := s.Default
	for _, src := range s.Sources {
		if v, ok := src.Size(p); ok && v < size {
			size = v
		}
	}
	return size
}
