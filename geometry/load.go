package geometry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/fauxgl"
	"gonum.org/v1/gonum/spatial/r3"
)

// LoadSurfaceFile reads the triangles of a surface file. The format is
// chosen by extension: .stl, .obj or .ply.
func LoadSurfaceFile(path string) ([]Triangle, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".stl":
		fp, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer fp.Close()
		tris, err := ReadSTL(fp)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return tris, nil
	case ".obj":
		return LoadOBJ(path)
	case ".ply":
		return LoadPLY(path)
	default:
		return nil, fmt.Errorf("%s: unsupported surface format %q", path, ext)
	}
}

// LoadOBJ reads the triangles of a Wavefront OBJ file.
func LoadOBJ(path string) ([]Triangle, error) {
	mesh, err := fauxgl.LoadOBJ(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fromFauxgl(path, mesh)
}

// LoadPLY reads the triangles of a PLY file.
func LoadPLY(path string) ([]Triangle, error) {
	mesh, err := fauxgl.LoadPLY(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fromFauxgl(path, mesh)
}

func fromFauxgl(path string, mesh *fauxgl.Mesh) ([]Triangle, error) {
	if len(mesh.Triangles) == 0 {
		return nil, fmt.Errorf("%s: no triangles", path)
	}
	out := make([]Triangle, len(mesh.Triangles))
	for i, t := range mesh.Triangles {
		out[i] = Triangle{vec(t.V1.Position), vec(t.V2.Position), vec(t.V3.Position)}
	}
	return out, nil
}

func vec(v fauxgl.Vector) r3.Vec { return r3.Vec{X: v.X, Y: v.Y, Z: v.Z} }
