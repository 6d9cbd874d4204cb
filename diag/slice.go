package diag

import (
	"errors"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	sliceStyle = "stroke:rgb(70,137,102);stroke-width:1"
	sliceBack  = "fill:rgb(255,248,227)"
)

// SliceSegments returns the segments cut from the polygonal faces by the
// plane z = z0. Faces touching the plane only at a vertex or along an edge
// contribute nothing.
func SliceSegments(points []r3.Vec, faces [][]int, z0 float64) [][2]r3.Vec {
	var segs [][2]r3.Vec
	var cuts []r3.Vec
	for _, f := range faces {
		cuts = cuts[:0]
		for i, vi := range f {
			p, q := points[vi], points[f[(i+1)%len(f)]]
			dp, dq := p.Z-z0, q.Z-z0
			if (dp < 0) == (dq < 0) {
				continue
			}
			t := dp / (dp - dq)
			cuts = append(cuts, r3.Add(p, r3.Scale(t, r3.Sub(q, p))))
		}
		// A convex face crosses the plane twice.
		if len(cuts) == 2 {
			segs = append(segs, [2]r3.Vec{cuts[0], cuts[1]})
		}
	}
	return segs
}

// WriteSliceSVG draws the cross-section of the faces by the plane z = z0
// as an SVG image width pixels wide.
func WriteSliceSVG(w io.Writer, points []r3.Vec, faces [][]int, z0 float64, width int) error {
	segs := SliceSegments(points, faces, z0)
	if len(segs) == 0 {
		return errors.New("no faces cross the slice plane")
	}
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, s := range segs {
		for _, p := range s {
			lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
			hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
		}
	}
	span := math.Max(hi.X-lo.X, hi.Y-lo.Y)
	if span == 0 {
		return errors.New("degenerate slice")
	}
	const margin = 10
	scale := float64(width-2*margin) / span
	height := int(math.Ceil((hi.Y-lo.Y)*scale)) + 2*margin
	screen := func(p r3.Vec) (int, int) {
		// SVG y grows downwards.
		return margin + int(math.Round((p.X-lo.X)*scale)), height - margin - int(math.Round((p.Y-lo.Y)*scale))
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, sliceBack)
	for _, s := range segs {
		x1, y1 := screen(s[0])
		x2, y2 := screen(s[1])
		canvas.Line(x1, y1, x2, y2, sliceStyle)
	}
	canvas.End()
	return nil
}
