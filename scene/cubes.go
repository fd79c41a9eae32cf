// Package scene builds the CPU-side geometry and textures drawn by hellovr:
// the cube volume, the companion window quad, controller axis lines, mip
// chains and OBJ render models.
package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	CubeScale   = 0.3
	CubeSpacing = 4.0

	// MaxCubeVolume bounds the cube volume edge so the vertex buffer stays
	// within a few tens of megabytes.
	MaxCubeVolume = 100

	cubeVertexCount = 36
)

// SceneVertex is a textured cube vertex.
type SceneVertex struct {
	Position mgl32.Vec3
	TexCoord mgl32.Vec2
}

// CubeVolume builds width*height*depth unit cubes, each scaled by CubeScale
// and spaced CubeSpacing apart, centered on the origin.
func CubeVolume(width, height, depth int) ([]SceneVertex, error) {
	for _, edge := range []int{width, height, depth} {
		if edge < 1 || edge > MaxCubeVolume {
			return nil, errors.Newf("cube volume %dx%dx%d out of range 1..%d", width, height, depth, MaxCubeVolume)
		}
	}

	vertices := make([]SceneVertex, 0, width*height*depth*cubeVertexCount)

	scale := mgl32.Scale3D(CubeScale, CubeScale, CubeScale)
	origin := mgl32.Translate3D(
		-float32(width)*CubeSpacing/2,
		-float32(height)*CubeSpacing/2,
		-float32(depth)*CubeSpacing/2,
	)
	mat := scale.Mul4(origin)

	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vertices = AppendCube(vertices, mat)
				mat = mat.Mul4(mgl32.Translate3D(CubeSpacing, 0, 0))
			}
			mat = mat.Mul4(mgl32.Translate3D(-float32(width)*CubeSpacing, CubeSpacing, 0))
		}
		mat = mat.Mul4(mgl32.Translate3D(0, -float32(height)*CubeSpacing, CubeSpacing))
	}

	return vertices, nil
}

// AppendCube appends the 12 triangles of the unit cube transformed by mat.
func AppendCube(vertices []SceneVertex, mat mgl32.Mat4) []SceneVertex {
	corner := func(x, y, z float32) mgl32.Vec3 {
		return mat.Mul4x1(mgl32.Vec4{x, y, z, 1}).Vec3()
	}

	a := corner(0, 0, 0)
	b := corner(1, 0, 0)
	c := corner(1, 1, 0)
	d := corner(0, 1, 0)
	e := corner(0, 0, 1)
	f := corner(1, 0, 1)
	g := corner(1, 1, 1)
	h := corner(0, 1, 1)

	// Each face is two triangles sharing the quad's diagonal.
	face := func(p0, p1, p2, p3 mgl32.Vec3) {
		vertices = append(vertices,
			SceneVertex{p0, mgl32.Vec2{0, 1}},
			SceneVertex{p1, mgl32.Vec2{1, 1}},
			SceneVertex{p2, mgl32.Vec2{1, 0}},
			SceneVertex{p2, mgl32.Vec2{1, 0}},
			SceneVertex{p3, mgl32.Vec2{0, 0}},
			SceneVertex{p0, mgl32.Vec2{0, 1}},
		)
	}

	face(e, f, g, h) // front
	face(b, a, d, c) // back
	face(h, g, c, d) // top
	face(a, b, f, e) // bottom
	face(a, e, h, d) // left
	face(f, b, c, g) // right

	return vertices
}
