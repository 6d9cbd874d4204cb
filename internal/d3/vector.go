package d3

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// R3 vector helpers shared by the tessellation, control field and
// conformation packages.

// Elem returns a vector with all components set to sides.
func Elem(sides float64) r3.Vec {
	return r3.Vec{
		X: sides,
		Y: sides,
		Z: sides,
	}
}

func EqualWithin(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol &&
		math.Abs(a.Y-b.Y) <= tol &&
		math.Abs(a.Z-b.Z) <= tol
}

// MinElem return a vector with the minimum components of two vectors.
func MinElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
}

// MaxElem return a vector with the maximum components of two vectors.
func MaxElem(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}
}

func Max(a r3.Vec) float64 {
	return math.Max(a.Z, math.Max(a.X, a.Y))
}

func Min(a r3.Vec) float64 {
	return math.Min(a.Z, math.Min(a.X, a.Y))
}

func AbsElem(a r3.Vec) r3.Vec {
	return r3.Vec{
		X: math.Abs(a.X),
		Y: math.Abs(a.Y),
		Z: math.Abs(a.Z),
	}
}

// Component returns the i'th component of a (0=X, 1=Y, 2=Z).
func Component(a r3.Vec, i int) float64 {
	switch i {
	case 0:
		return a.X
	case 1:
		return a.Y
	case 2:
		return a.Z
	}
	panic("bad vector component")
}

// SetComponent returns a with its i'th component replaced by v.
func SetComponent(a r3.Vec, i int, v float64) r3.Vec {
	switch i {
	case 0:
		a.X = v
	case 1:
		a.Y = v
	case 2:
		a.Z = v
	default:
		panic("bad vector component")
	}
	return a
}

// Lerp linearly interpolates between a and b, t in [0,1].
func Lerp(a, b r3.Vec, t float64) r3.Vec {
	return r3.Add(a, r3.Scale(t, r3.Sub(b, a)))
}

// Mid returns the midpoint of a and b.
func Mid(a, b r3.Vec) r3.Vec {
	return r3.Scale(0.5, r3.Add(a, b))
}

// Orthogonal returns a unit vector perpendicular to a. a must be non-zero.
func Orthogonal(a r3.Vec) r3.Vec {
	b := AbsElem(a)
	var other r3.Vec
	switch {
	case b.X <= b.Y && b.X <= b.Z:
		other = r3.Vec{X: 1}
	case b.Y <= b.Z:
		other = r3.Vec{Y: 1}
	default:
		other = r3.Vec{Z: 1}
	}
	return r3.Unit(r3.Cross(a, other))
}

// Reflect reflects p across the plane through origin with unit normal n.
func Reflect(p, origin, n r3.Vec) r3.Vec {
	d := r3.Dot(r3.Sub(p, origin), n)
	return r3.Sub(p, r3.Scale(2*d, n))
}
