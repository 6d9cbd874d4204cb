// Package initialpoints seeds the internal points of the mesher before the
// first motion iteration.
package initialpoints

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/soypat/cvmesh/decomp"
	"github.com/soypat/cvmesh/delaunay"
	"github.com/soypat/cvmesh/geometry"
	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Method generates the initial internal points owned by one rank.
type Method interface {
	InitialPoints() ([]delaunay.Point, error)
}

// Sizer returns the target cell size and alignment at a point.
type Sizer interface {
	CellSizeAndAlignment(p r3.Vec) (float64, triad.Triad)
}

// Params are the collaborators shared by every method.
type Params struct {
	Geometry *geometry.Geometry
	// Decomp decides ownership. Nil owns everything.
	Decomp *decomp.Decomposition
	Rank   int
	Sizer  Sizer
	Rand   *rand.Rand
}

func (p Params) owns(x r3.Vec) bool {
	return p.Decomp == nil || p.Decomp.Owner(x) == p.Rank
}

// region returns the box holding the points p may own.
func (p Params) region() r3.Box {
	if p.Decomp == nil {
		return p.Geometry.Bounds()
	}
	return r3.Box(p.Decomp.Region(p.Rank).Box)
}

func (p Params) point(x r3.Vec, size float64, align triad.Triad) delaunay.Point {
	pt := delaunay.NewPoint(x, delaunay.Internal)
	pt.Proc = p.Rank
	pt.TargetSize = size
	pt.Alignment = align
	return pt
}

// Factory builds a method from its coefficients.
type Factory func(coeffs map[string]any, p Params) (Method, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a method available under name. Registering a name twice
// panics.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		panic("initialpoints: method registered twice: " + name)
	}
	factories[name] = f
}

// New builds the method registered under name.
func New(name string, coeffs map[string]any, p Params) (Method, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown initial points method %q, have %v", name, Names())
	}
	if p.Geometry == nil || p.Sizer == nil || p.Rand == nil {
		return nil, errors.New("initial points: geometry, sizer and random source required")
	}
	m, err := f(coeffs, p)
	if err != nil {
		return nil, fmt.Errorf("initial points method %s: %w", name, err)
	}
	return m, nil
}

// Names returns the registered method names in sorted order.
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
	Register("uniformGrid", newUniformGrid)
	Register("bodyCentredCubic", newBodyCentredCubic)
	Register("rayShooting", newRayShooting)
}
