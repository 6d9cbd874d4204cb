package delaunay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// PointSize is the size in bytes of one encoded Point.
const PointSize = 3*8 + 8 + 1 + 4 + 1 + 8 + 9*8 + 8 + 4

const (
	flagReferred = 1 << iota
	flagFixed
)

// MarshalPoints encodes pts as consecutive little-endian fixed width
// records.
func MarshalPoints(pts []Point) []byte {
	b := make([]byte, len(pts)*PointSize)
	for i := range pts {
		putPoint(b[i*PointSize:], &pts[i])
	}
	return b
}

// UnmarshalPoints decodes a record stream produced by MarshalPoints.
func UnmarshalPoints(b []byte) ([]Point, error) {
	if len(b)%PointSize != 0 {
		return nil, fmt.Errorf("point stream length %d not a multiple of %d", len(b), PointSize)
	}
	pts := make([]Point, len(b)/PointSize)
	for i := range pts {
		if err := getPoint(b[i*PointSize:], &pts[i]); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	return pts, nil
}

func putPoint(b []byte, p *Point) {
	_ = b[PointSize-1] // early bounds check
	putVec(b, p.Pos)
	binary.LittleEndian.PutUint64(b[24:], uint64(int64(p.Index)))
	b[32] = byte(p.Type)
	binary.LittleEndian.PutUint32(b[33:], uint32(int32(p.Proc)))
	var flags byte
	if p.Referred {
		flags |= flagReferred
	}
	if p.Fixed {
		flags |= flagFixed
	}
	b[37] = flags
	binary.LittleEndian.PutUint64(b[38:], math.Float64bits(p.TargetSize))
	for i := 0; i < 3; i++ {
		putVec(b[46+24*i:], p.Alignment[i])
	}
	binary.LittleEndian.PutUint64(b[118:], uint64(int64(p.Pair)))
	binary.LittleEndian.PutUint32(b[126:], uint32(int32(p.Surface)))
}

func getPoint(b []byte, p *Point) error {
	_ = b[PointSize-1] // early bounds check
	p.Pos = getVec(b)
	p.Index = int(int64(binary.LittleEndian.Uint64(b[24:])))
	p.Type = Type(b[32])
	if p.Type >= numTypes {
		return errors.New("invalid vertex type " + p.Type.String())
	}
	p.Proc = int(int32(binary.LittleEndian.Uint32(b[33:])))
	p.Referred = b[37]&flagReferred != 0
	p.Fixed = b[37]&flagFixed != 0
	p.TargetSize = math.Float64frombits(binary.LittleEndian.Uint64(b[38:]))
	for i := 0; i < 3; i++ {
		p.Alignment[i] = getVec(b[46+24*i:])
	}
	p.Pair = int(int64(binary.LittleEndian.Uint64(b[118:])))
	p.Surface = int(int32(binary.LittleEndian.Uint32(b[126:])))
	if math.IsNaN(p.Pos.X) || math.IsNaN(p.Pos.Y) || math.IsNaN(p.Pos.Z) {
		return errors.New("NaN point position")
	}
	return nil
}

func putVec(b []byte, v r3.Vec) {
	_ = b[23] // early bounds check
	binary.LittleEndian.PutUint64(b, math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(v.Y))
	binary.LittleEndian.PutUint64(b[16:], math.Float64bits(v.Z))
}

func getVec(b []byte) r3.Vec {
	_ = b[23] // early bounds check
	return r3.Vec{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b)),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		Z: math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
	}
}
