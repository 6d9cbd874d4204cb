package delaunay

import (
	"math"
	"math/big"

	gr3 "github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/r3"
)

// Precision selects the arithmetic used to compute dual vertices.
type Precision int

const (
	// Inexact computes circumcentres in float64.
	Inexact Precision = iota
	// Exact computes circumcentre numerators and denominators exactly and
	// rounds once. It is used to diagnose numerically coplanar cells.
	Exact
)

func (p Precision) String() string {
	switch p {
	case Inexact:
		return "inexact"
	case Exact:
		return "exact"
	}
	return "unknown"
}

// Relative error bounds of the float filters. The permanents below bound the
// magnitude of every product term so these are conservative.
const (
	orientErrBound   = 1e-14
	inSphereErrBound = 5e-14
)

// orient3d returns a positive value if d lies on the positive side of the
// plane through a, b, c, i.e. (b-a)·((c-a)×(d-a)) > 0, negative on the other
// side and zero if the points are coplanar. The sign is exact.
func orient3d(a, b, c, d r3.Vec) float64 {
	ba, ca, da := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(d, a)
	det := r3.Dot(ba, r3.Cross(ca, da))
	perm := r3.Norm(ba) * r3.Norm(ca) * r3.Norm(da)
	if math.Abs(det) > orientErrBound*perm {
		return det
	}
	return float64(exactOrient3d(a, b, c, d))
}

func exactOrient3d(a, b, c, d r3.Vec) int {
	pa := precise(a)
	ba, ca, da := precise(b).Sub(pa), precise(c).Sub(pa), precise(d).Sub(pa)
	return ba.Dot(ca.Cross(da)).Sign()
}

// inSphere returns a positive value if e lies strictly inside the
// circumsphere of the positively oriented tetrahedron a, b, c, d, negative if
// outside and zero if cospherical. The sign is exact.
func inSphere(a, b, c, d, e r3.Vec) float64 {
	ae, be, ce, de := r3.Sub(a, e), r3.Sub(b, e), r3.Sub(c, e), r3.Sub(d, e)
	al, bl, cl, dl := r3.Norm2(ae), r3.Norm2(be), r3.Norm2(ce), r3.Norm2(de)
	na, nb, nc, nd := math.Sqrt(al), math.Sqrt(bl), math.Sqrt(cl), math.Sqrt(dl)
	det := -al*triple(be, ce, de) + bl*triple(ae, ce, de) - cl*triple(ae, be, de) + dl*triple(ae, be, ce)
	perm := al*nb*nc*nd + bl*na*nc*nd + cl*na*nb*nd + dl*na*nb*nc
	if math.Abs(det) > inSphereErrBound*perm {
		return -det
	}
	return float64(exactInSphere(a, b, c, d, e))
}

func exactInSphere(a, b, c, d, e r3.Vec) int {
	pe := precise(e)
	ae, be, ce, de := precise(a).Sub(pe), precise(b).Sub(pe), precise(c).Sub(pe), precise(d).Sub(pe)
	det := new(big.Float).Mul(ae.Dot(ae), be.Dot(ce.Cross(de)))
	det.Neg(det)
	det.Add(det, new(big.Float).Mul(be.Dot(be), ae.Dot(ce.Cross(de))))
	det.Sub(det, new(big.Float).Mul(ce.Dot(ce), ae.Dot(be.Cross(de))))
	det.Add(det, new(big.Float).Mul(de.Dot(de), ae.Dot(be.Cross(ce))))
	return -det.Sign()
}

func triple(a, b, c r3.Vec) float64 {
	return r3.Dot(a, r3.Cross(b, c))
}

// circumcenter returns the centre of the sphere through a, b, c, d and false
// if the tetrahedron is flat, in which case the centroid is returned.
func circumcenter(a, b, c, d r3.Vec) (r3.Vec, bool) {
	ba, ca, da := r3.Sub(b, a), r3.Sub(c, a), r3.Sub(d, a)
	denom := 2 * r3.Dot(ba, r3.Cross(ca, da))
	if denom == 0 {
		return centroid(a, b, c, d), false
	}
	num := r3.Add(r3.Add(
		r3.Scale(r3.Norm2(ba), r3.Cross(ca, da)),
		r3.Scale(r3.Norm2(ca), r3.Cross(da, ba))),
		r3.Scale(r3.Norm2(da), r3.Cross(ba, ca)))
	return r3.Add(a, r3.Scale(1/denom, num)), true
}

// exactCircumcenter evaluates the circumcentre numerator and denominator
// without rounding and rounds the quotient once.
func exactCircumcenter(a, b, c, d r3.Vec) (r3.Vec, bool) {
	pa := precise(a)
	ba, ca, da := precise(b).Sub(pa), precise(c).Sub(pa), precise(d).Sub(pa)
	denom := ba.Dot(ca.Cross(da))
	if denom.Sign() == 0 {
		return centroid(a, b, c, d), false
	}
	denom.Mul(denom, big.NewFloat(2))
	num := ca.Cross(da).Mul(ba.Dot(ba)).
		Add(da.Cross(ba).Mul(ca.Dot(ca))).
		Add(ba.Cross(ca).Mul(da.Dot(da)))
	quo := func(n *big.Float, offset float64) float64 {
		q := new(big.Float).SetPrec(128).Quo(n, denom)
		q.Add(q, big.NewFloat(offset))
		f, _ := q.Float64()
		return f
	}
	return r3.Vec{X: quo(num.X, a.X), Y: quo(num.Y, a.Y), Z: quo(num.Z, a.Z)}, true
}

// tetQuality returns a flatness measure of the tetrahedron in [0, 1]:
// 1 for the regular tetrahedron, 0 for a flat one.
func tetQuality(a, b, c, d r3.Vec) float64 {
	vol6 := math.Abs(triple(r3.Sub(b, a), r3.Sub(c, a), r3.Sub(d, a)))
	lmax := 0.0
	pts := [4]r3.Vec{a, b, c, d}
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			lmax = math.Max(lmax, r3.Norm(r3.Sub(pts[i], pts[j])))
		}
	}
	if lmax == 0 {
		return 0
	}
	return math.Sqrt2 * vol6 / (lmax * lmax * lmax)
}

func centroid(a, b, c, d r3.Vec) r3.Vec {
	return r3.Scale(0.25, r3.Add(r3.Add(a, b), r3.Add(c, d)))
}

func precise(v r3.Vec) gr3.PreciseVector {
	return gr3.NewPreciseVector(v.X, v.Y, v.Z)
}
