package delaunay

import (
	"strconv"

	"github.com/soypat/cvmesh/triad"
	"gonum.org/v1/gonum/spatial/r3"
)

// Type classifies a tessellation vertex by its role in the conformed mesh.
type Type uint8

const (
	Unassigned Type = iota
	Internal
	InternalNearBoundary
	InternalSurface
	InternalSurfaceBaffle
	ExternalSurfaceBaffle
	InternalFeatureEdge
	InternalFeaturePoint
	ExternalSurface
	ExternalFeatureEdge
	ExternalFeaturePoint
	Constrained
	Far
	numTypes
)

var typeNames = [numTypes]string{
	Unassigned:            "unassigned",
	Internal:              "internal",
	InternalNearBoundary:  "internalNearBoundary",
	InternalSurface:       "internalSurface",
	InternalSurfaceBaffle: "internalSurfaceBaffle",
	ExternalSurfaceBaffle: "externalSurfaceBaffle",
	InternalFeatureEdge:   "internalFeatureEdge",
	InternalFeaturePoint:  "internalFeaturePoint",
	ExternalSurface:       "externalSurface",
	ExternalFeatureEdge:   "externalFeatureEdge",
	ExternalFeaturePoint:  "externalFeaturePoint",
	Constrained:           "constrained",
	Far:                   "far",
}

func (t Type) String() string {
	if t >= numTypes {
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// Types returns all vertex types in declaration order.
func Types() []Type {
	out := make([]Type, numTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Info is the mesh-domain metadata attached to every tessellation vertex.
type Info struct {
	// Index is the global vertex index, -1 while unassigned.
	Index int
	Type  Type
	// Proc is the rank owning the vertex.
	Proc int
	// Referred is set on read-only ghost copies of vertices owned by another rank.
	Referred bool
	// Fixed vertices are excluded from motion and removal.
	Fixed      bool
	TargetSize float64
	Alignment  triad.Triad
	// Pair is the global index of the point pair partner, -1 if none.
	Pair int
	// Surface is the geometry surface that generated the vertex, -1 if none.
	Surface int
}

// NewInfo returns unindexed, unpaired metadata of type t.
func NewInfo(t Type) Info {
	return Info{Index: -1, Type: t, Pair: -1, Surface: -1}
}

// Point is a position with its metadata, the unit of insertion and of
// exchange between ranks.
type Point struct {
	Pos r3.Vec
	Info
}

// NewPoint returns an unindexed point of type t at pos.
func NewPoint(pos r3.Vec, t Type) Point {
	return Point{Pos: pos, Info: NewInfo(t)}
}

// Vertex is a tessellation site.
type Vertex struct {
	Point
	cell CellHandle // one incident cell.
}

// InternalPoint returns true for internal vertices, including those near
// the boundary.
func (v *Info) InternalPoint() bool {
	return v.Type == Internal || v.Type == InternalNearBoundary
}

// InternalBoundaryPoint returns true for the conforming vertices on the
// meshed side of a surface, feature or constraint.
func (v *Info) InternalBoundaryPoint() bool {
	switch v.Type {
	case InternalSurface, InternalSurfaceBaffle, ExternalSurfaceBaffle,
		InternalFeatureEdge, InternalFeaturePoint, Constrained:
		return true
	}
	return false
}

// ExternalBoundaryPoint returns true for the conforming vertices outside
// the meshed region.
func (v *Info) ExternalBoundaryPoint() bool {
	switch v.Type {
	case ExternalSurface, ExternalFeatureEdge, ExternalFeaturePoint:
		return true
	}
	return false
}

// BoundaryPoint returns true for conforming vertices on either side.
func (v *Info) BoundaryPoint() bool {
	return v.InternalBoundaryPoint() || v.ExternalBoundaryPoint()
}

// InternalOrBoundaryPoint returns true for the vertex classes that own a
// dual cell when they are not referred.
func (v *Info) InternalOrBoundaryPoint() bool {
	return v.InternalPoint() || v.InternalBoundaryPoint()
}

// SurfacePoint returns true for the members of surface and baffle pairs.
func (v *Info) SurfacePoint() bool {
	switch v.Type {
	case InternalSurface, InternalSurfaceBaffle, ExternalSurfaceBaffle, ExternalSurface:
		return true
	}
	return false
}

// FeatureEdgePoint returns true for vertices of feature edge groups.
func (v *Info) FeatureEdgePoint() bool {
	return v.Type == InternalFeatureEdge || v.Type == ExternalFeatureEdge
}

// FeaturePoint returns true for vertices of feature point groups and
// constrained vertices.
func (v *Info) FeaturePoint() bool {
	return v.Type == InternalFeaturePoint || v.Type == ExternalFeaturePoint || v.Type == Constrained
}

// IsFar returns true for the vertices enclosing the tessellation.
func (v *Info) IsFar() bool { return v.Type == Far }

// Real returns true for vertices owned by this rank.
func (v *Info) Real() bool { return !v.Referred && v.Type != Far }

// OwnsDualCell returns true if the vertex generates a cell of the dual mesh
// on this rank.
func (v *Info) OwnsDualCell() bool {
	return !v.Referred && v.InternalOrBoundaryPoint()
}
