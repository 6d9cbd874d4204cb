package diag

import (
	"errors"
	"image"

	"github.com/fogleman/fauxgl"
	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/spatial/r3"
)

// View configures a boundary render. The mesh is fitted into the bi-unit
// cube centred at the origin before the camera is applied.
type View struct {
	Width, Height int
	// Supersample renders at this multiple of the output size and
	// downsamples for antialiasing. 0 is taken as 1.
	Supersample     int
	Eye, LookAt, Up r3.Vec
	Near, Far       float64
	// Fovy is the vertical field of view in degrees.
	Fovy float64
}

// DefaultView looks at the mesh from a corner of the bi-unit cube.
func DefaultView() View {
	return View{
		Width: 800, Height: 600, Supersample: 2,
		Eye: r3.Vec{X: 3, Y: 2.5, Z: 2}, Up: r3.Vec{Z: 1},
		Near: 1, Far: 10, Fovy: 30,
	}
}

// Triangulate fans every polygonal face into triangles.
func Triangulate(points []r3.Vec, faces [][]int) [][3]r3.Vec {
	var tris [][3]r3.Vec
	for _, f := range faces {
		for i := 2; i < len(f); i++ {
			tris = append(tris, [3]r3.Vec{points[f[0]], points[f[i-1]], points[f[i]]})
		}
	}
	return tris
}

func fv(v r3.Vec) fauxgl.Vector { return fauxgl.V(v.X, v.Y, v.Z) }

// RenderTriangles shades tris with a phong shader as seen from view.
func RenderTriangles(tris [][3]r3.Vec, view View) (image.Image, error) {
	if len(tris) == 0 {
		return nil, errors.New("diag: no triangles to render")
	}
	if view.Width <= 0 || view.Height <= 0 {
		return nil, errors.New("diag: empty image size")
	}
	scale := max(view.Supersample, 1)
	ft := make([]*fauxgl.Triangle, len(tris))
	for i, t := range tris {
		ft[i] = fauxgl.NewTriangleForPoints(fv(t[0]), fv(t[1]), fv(t[2]))
	}
	mesh := fauxgl.NewTriangleMesh(ft)
	mesh.BiUnitCube()

	context := fauxgl.NewContext(view.Width*scale, view.Height*scale)
	context.ClearColorBufferWith(fauxgl.HexColor("#FFF8E3"))
	aspect := float64(view.Width) / float64(view.Height)
	matrix := fauxgl.LookAt(fv(view.Eye), fv(view.LookAt), fv(view.Up)).Perspective(view.Fovy, aspect, view.Near, view.Far)
	light := fauxgl.V(-0.75, 1, 0.25).Normalize()
	shader := fauxgl.NewPhongShader(matrix, light, fv(view.Eye))
	shader.ObjectColor = fauxgl.HexColor("#468966")
	context.Shader = shader
	context.DrawMesh(mesh)

	img := context.Image()
	if scale > 1 {
		img = resize.Resize(uint(view.Width), uint(view.Height), img, resize.Bilinear)
	}
	return img, nil
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	return fauxgl.SavePNG(path, img)
}
