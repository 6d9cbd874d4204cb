// Package diag writes diagnostic views of a mesh: Wavefront OBJ files of
// points, Delaunay edges and dual faces, rendered images of the boundary,
// SVG cross-sections and convergence plots.
package diag

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/soypat/cvmesh/delaunay"
	"gonum.org/v1/gonum/spatial/r3"
)

func writeVertex(w *bufio.Writer, p r3.Vec) {
	fmt.Fprintf(w, "v %g %g %g\n", p.X, p.Y, p.Z)
}

// WritePointsOBJ writes pts as OBJ vertices grouped by vertex type.
func WritePointsOBJ(w io.Writer, pts []delaunay.Point) error {
	bw := bufio.NewWriter(w)
	for _, t := range delaunay.Types() {
		first := true
		for _, p := range pts {
			if p.Type != t {
				continue
			}
			if first {
				fmt.Fprintf(bw, "g %s\n", t)
				first = false
			}
			writeVertex(bw, p.Pos)
		}
	}
	return bw.Flush()
}

// WriteEdgesOBJ writes the finite edges of tess as OBJ lines.
func WriteEdgesOBJ(w io.Writer, tess *delaunay.Tessellation) error {
	bw := bufio.NewWriter(w)
	objIndex := make(map[delaunay.VertexHandle]int)
	n := 0
	tess.ForEachVertex(func(h delaunay.VertexHandle, v *delaunay.Vertex) bool {
		if v.IsFar() {
			return true
		}
		n++
		objIndex[h] = n
		writeVertex(bw, v.Pos)
		return true
	})
	tess.FiniteEdges(func(e delaunay.Edge) bool {
		a, b := tess.EdgeVertices(e)
		fmt.Fprintf(bw, "l %d %d\n", objIndex[a], objIndex[b])
		return true
	})
	return bw.Flush()
}

// WriteFacesOBJ writes polygonal faces over points. Faces index points from 0.
func WriteFacesOBJ(w io.Writer, points []r3.Vec, faces [][]int) error {
	bw := bufio.NewWriter(w)
	for _, p := range points {
		writeVertex(bw, p)
	}
	for fi, f := range faces {
		if len(f) < 3 {
			return fmt.Errorf("face %d has %d points", fi, len(f))
		}
		bw.WriteByte('f')
		for _, i := range f {
			if i < 0 || i >= len(points) {
				return fmt.Errorf("face %d indexes point %d of %d", fi, i, len(points))
			}
			fmt.Fprintf(bw, " %d", i+1)
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// CreateFile creates the file at path and writes to it with write.
func CreateFile(path string, write func(io.Writer) error) (err error) {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, fp.Close())
	}()
	return write(fp)
}
