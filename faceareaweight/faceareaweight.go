// Package faceareaweight provides the curves weighting point displacements
// by the ratio of a dual face's area to its target area.
package faceareaweight

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soypat/cvmesh/internal/coeffs"
)

// Model maps a face area fraction to a displacement weight in [0, 1].
type Model interface {
	FaceAreaWeight(fraction float64) float64
}

// Factory builds a model from its coefficients.
type Factory func(coeffs map[string]any) (Model, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a model available under name. Registering a name twice
// panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("faceareaweight: model registered twice: " + name)
	}
	factories[name] = f
}

// New builds the model registered under name.
func New(name string, coeffs map[string]any) (Model, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown face area weight model %q, have %v", name, Names())
	}
	m, err := f(coeffs)
	if err != nil {
		return nil, fmt.Errorf("face area weight model %s: %w", name, err)
	}
	return m, nil
}

// Names returns the registered model names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("piecewiseLinearRamp", newPiecewiseLinearRamp)
}

type rampCoeffs struct {
	LowerBound float64 `mapstructure:"lowerBound"`
	UpperBound float64 `mapstructure:"upperBound"`
}

// PiecewiseLinearRamp is 0 up to Lower, 1 from Upper and linear between.
type PiecewiseLinearRamp struct {
	Lower, Upper float64
}

func newPiecewiseLinearRamp(in map[string]any) (Model, error) {
	var c rampCoeffs
	if err := coeffs.Decode(in, &c); err != nil {
		return nil, err
	}
	if err := coeffs.InRange("lowerBound", c.LowerBound, 0, c.UpperBound); err != nil {
		return nil, err
	}
	if c.UpperBound == c.LowerBound {
		return nil, fmt.Errorf("upperBound must exceed lowerBound %g", c.LowerBound)
	}
	return PiecewiseLinearRamp{Lower: c.LowerBound, Upper: c.UpperBound}, nil
}

func (r PiecewiseLinearRamp) FaceAreaWeight(fraction float64) float64 {
	switch {
	case fraction <= r.Lower:
		return 0
	case fraction >= r.Upper:
		return 1
	}
	return (fraction - r.Lower) / (r.Upper - r.Lower)
}
