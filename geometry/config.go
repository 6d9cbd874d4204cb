package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/cvmesh/internal/d3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config describes the geometry to mesh.
type Config struct {
	// Bounds limits the meshed region. It is required when a surface is
	// meshed on its outside and defaults to the surface bounds otherwise.
	Bounds   *BoundsConfig   `yaml:"bounds,omitempty"`
	Surfaces []SurfaceConfig `yaml:"surfaces"`
}

type BoundsConfig struct {
	Min [3]float64 `yaml:"min"`
	Max [3]float64 `yaml:"max"`
}

// SurfaceConfig describes one surface. Type is one of sphere, box or file.
type SurfaceConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Side is inside, outside or both.
	Side string `yaml:"side"`

	Center [3]float64 `yaml:"center,omitempty"`
	Radius float64    `yaml:"radius,omitempty"`
	Min    [3]float64 `yaml:"min,omitempty"`
	Max    [3]float64 `yaml:"max,omitempty"`

	File          string  `yaml:"file,omitempty"`
	WeldTolerance float64 `yaml:"weldTolerance,omitempty"`
	// FeatureAngle in degrees. Faces meeting at a sharper angle form a
	// feature edge. Defaults to 30.
	FeatureAngle float64 `yaml:"featureAngle,omitempty"`
}

const defaultFeatureAngle = 30

func vecOf(a [3]float64) r3.Vec { return r3.Vec{X: a[0], Y: a[1], Z: a[2]} }

// Build constructs the geometry described by cfg, loading surface files
// and extracting their feature edges.
func Build(cfg Config) (*Geometry, error) {
	if len(cfg.Surfaces) == 0 {
		return nil, errors.New("no surfaces configured")
	}
	var (
		surfaces []Surface
		features []*FeatureEdgeMesh
		bb       = d3.Empty()
		outside  bool
	)
	for i, sc := range cfg.Surfaces {
		side, err := ParseSide(sc.Side)
		if err != nil {
			return nil, fmt.Errorf("surface %q: %w", sc.Name, err)
		}
		outside = outside || side == Outside
		var shape SDF
		switch sc.Type {
		case "sphere":
			if sc.Radius <= 0 {
				return nil, fmt.Errorf("surface %q: sphere radius must be positive", sc.Name)
			}
			shape = Sphere(vecOf(sc.Center), sc.Radius)
		case "box":
			box := r3.Box{Min: vecOf(sc.Min), Max: vecOf(sc.Max)}
			if d3.Min(r3.Sub(box.Max, box.Min)) <= 0 {
				return nil, fmt.Errorf("surface %q: box max must exceed min", sc.Name)
			}
			shape = Box(box)
			features = append(features, BoxFeatures(box, i))
		case "file":
			tris, err := LoadSurfaceFile(sc.File)
			if err != nil {
				return nil, fmt.Errorf("surface %q: %w", sc.Name, err)
			}
			m, err := NewTriMesh(tris, sc.WeldTolerance)
			if err != nil {
				return nil, fmt.Errorf("surface %q: %w", sc.Name, err)
			}
			angle := sc.FeatureAngle
			if angle == 0 {
				angle = defaultFeatureAngle
			}
			shape = m
			features = append(features, ExtractFeatures(m, i, angle*math.Pi/180))
		default:
			return nil, fmt.Errorf("surface %q: unknown type %q", sc.Name, sc.Type)
		}
		surfaces = append(surfaces, Surface{Name: sc.Name, Shape: shape, Side: side})
		bb = bb.Extend(d3.Box(shape.Bounds()))
	}
	var bounds r3.Box
	switch {
	case cfg.Bounds != nil:
		bounds = r3.Box{Min: vecOf(cfg.Bounds.Min), Max: vecOf(cfg.Bounds.Max)}
	case outside:
		return nil, errors.New("bounds are required to mesh the outside of a surface")
	default:
		// Leave room for the external half of the surface point pairs.
		bounds = r3.Box(bb.ScaleAboutCenter(1.1))
	}
	return New(bounds, surfaces, Merge(features...))
}
