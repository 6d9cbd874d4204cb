package geometry

import (
	"github.com/deadsy/sdfx/sdf"
	"gonum.org/v1/gonum/spatial/r3"
)

// FromSDFX adapts a solid built with the sdfx library.
func FromSDFX(s sdf.SDF3) SDF { return sdfxAdapter{s} }

type sdfxAdapter struct{ s sdf.SDF3 }

func (a sdfxAdapter) Evaluate(p r3.Vec) float64 {
	return a.s.Evaluate(sdf.V3{X: p.X, Y: p.Y, Z: p.Z})
}

func (a sdfxAdapter) Bounds() r3.Box {
	bb := a.s.BoundingBox()
	return r3.Box{
		Min: r3.Vec{X: bb.Min.X, Y: bb.Min.Y, Z: bb.Min.Z},
		Max: r3.Vec{X: bb.Max.X, Y: bb.Max.Y, Z: bb.Max.Z},
	}
}
