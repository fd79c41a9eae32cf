package scene

import "github.com/go-gl/mathgl/mgl32"

// CompanionVertex is a clip-space position with the texture coordinate of
// the screen target sampled there.
type CompanionVertex struct {
	Position mgl32.Vec2
	TexCoord mgl32.Vec2
}

// CompanionQuad covers the whole companion window with the screen target.
// Clip space y points down, so the top row of the target lands at the top of
// the window.
func CompanionQuad() ([]CompanionVertex, []uint16) {
	vertices := []CompanionVertex{
		{Position: mgl32.Vec2{-1, -1}, TexCoord: mgl32.Vec2{0, 0}},
		{Position: mgl32.Vec2{1, -1}, TexCoord: mgl32.Vec2{1, 0}},
		{Position: mgl32.Vec2{-1, 1}, TexCoord: mgl32.Vec2{0, 1}},
		{Position: mgl32.Vec2{1, 1}, TexCoord: mgl32.Vec2{1, 1}},
	}
	indices := []uint16{0, 1, 3, 0, 3, 2}
	return vertices, indices
}
