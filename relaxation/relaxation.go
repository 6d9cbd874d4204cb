// Package relaxation provides the schedules scaling the point displacements
// of each motion iteration.
package relaxation

import (
	"fmt"
	"sort"
	"sync"
)

// Model returns the relaxation factor for a motion iteration. Iterations
// are numbered from 0 and requested in increasing order.
type Model interface {
	Relaxation(iteration int) float64
}

// Factory builds a model from its coefficients for a run of maxIterations.
type Factory func(coeffs map[string]any, maxIterations int) (Model, error)

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
		panic("relaxation: model registered twice: " + name)
	}
	factories[name] = f
}

// New builds the model registered under name.
func New(name string, coeffs map[string]any, maxIterations int) (Model, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown relaxation model %q, have %v", name, Names())
	}
	if maxIterations < 1 {
		return nil, fmt.Errorf("relaxation model %s: need at least one iteration, got %d", name, maxIterations)
	}
	m, err := f(coeffs, maxIterations)
	if err != nil {
		return nil, fmt.Errorf("relaxation model %s: %w", name, err)
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
	Register("adaptiveLinear", newAdaptiveLinear)
	Register("rampHoldFall", newRampHoldFall)
}
