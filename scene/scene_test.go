package scene

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec3(t *testing.T, expected, actual mgl32.Vec3) {
	t.Helper()
	assert.True(t, expected.ApproxEqualThreshold(actual, 1e-5), "expected %v, got %v", expected, actual)
}

func TestCubeVolumeSingleCube(t *testing.T) {
	vertices, err := CubeVolume(1, 1, 1)
	require.NoError(t, err)
	require.Len(t, vertices, 36)

	// The volume is shifted by half its extent, then scaled.
	assertVec3(t, mgl32.Vec3{-0.6, -0.6, -0.3}, vertices[0].Position)
	assert.Equal(t, mgl32.Vec2{0, 1}, vertices[0].TexCoord)
	assertVec3(t, mgl32.Vec3{-0.3, -0.3, -0.3}, vertices[2].Position)
	assert.Equal(t, vertices[2], vertices[3])
	assert.Equal(t, vertices[0], vertices[5])
}

func TestCubeVolumeSpacing(t *testing.T) {
	vertices, err := CubeVolume(2, 2, 2)
	require.NoError(t, err)
	require.Len(t, vertices, 8*36)

	// The second cube sits one spacing step along X.
	assertVec3(t, mgl32.Vec3{0, -1.2, -0.9}, vertices[36].Position)

	// The third cube wraps back to X=0 one step up.
	assertVec3(t, mgl32.Vec3{-1.2, 0, -0.9}, vertices[72].Position)

	// The fifth cube starts the next Z slice.
	assertVec3(t, mgl32.Vec3{-1.2, -1.2, 0.3}, vertices[4*36].Position)
}

func TestCubeVolumeRange(t *testing.T) {
	_, err := CubeVolume(0, 1, 1)
	assert.Error(t, err)

	_, err = CubeVolume(1, MaxCubeVolume+1, 1)
	assert.Error(t, err)
}

func TestCompanionQuad(t *testing.T) {
	vertices, indices := CompanionQuad()
	require.Len(t, vertices, 4)
	assert.Equal(t, []uint16{0, 1, 3, 0, 3, 2}, indices)

	for _, index := range indices {
		assert.Less(t, int(index), len(vertices))
	}
	assert.Equal(t, mgl32.Vec2{0, 0}, vertices[0].TexCoord)
	assert.Equal(t, mgl32.Vec2{1, 1}, vertices[3].TexCoord)
}

func TestControllerAxes(t *testing.T) {
	pose := mgl32.Translate3D(1, 2, 3)

	vertices := ControllerAxes(nil, []mgl32.Mat4{pose, mgl32.Ident4()})
	require.Len(t, vertices, 2*AxisVerticesPerController)

	assertVec3(t, mgl32.Vec3{1, 2, 3}, vertices[0].Position)
	assertVec3(t, mgl32.Vec3{1.05, 2, 3}, vertices[1].Position)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, vertices[1].Color)
	assertVec3(t, mgl32.Vec3{1, 2.05, 3}, vertices[3].Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, vertices[5].Color)

	assertVec3(t, mgl32.Vec3{1, 2, 2.98}, vertices[6].Position)
	assertVec3(t, mgl32.Vec3{1, 2, -36}, vertices[7].Position)
	assert.Equal(t, pointerColor, vertices[7].Color)

	assertVec3(t, mgl32.Vec3{0, 0, 0}, vertices[8].Position)
}

func TestNextMipLevelAverages(t *testing.T) {
	src := []byte{
		0, 0, 0, 255, 100, 0, 0, 255,
		0, 200, 0, 255, 0, 0, 40, 251,
	}

	dst, width, height := NextMipLevelRGBA(src, 2, 2)
	assert.Equal(t, 1, width)
	assert.Equal(t, 1, height)
	assert.Equal(t, []byte{25, 50, 10, 254}, dst)
}

func TestBuildMipChain(t *testing.T) {
	img := CheckerTexture(8, 2)
	chain, err := BuildMipChain(img)
	require.NoError(t, err)

	require.Len(t, chain.Levels, 4)
	assert.Equal(t, MipLevel{Width: 8, Height: 8, Offset: 0}, chain.Levels[0])
	assert.Equal(t, MipLevel{Width: 4, Height: 4, Offset: 256}, chain.Levels[1])
	assert.Equal(t, MipLevel{Width: 2, Height: 2, Offset: 320}, chain.Levels[2])
	assert.Equal(t, MipLevel{Width: 1, Height: 1, Offset: 336}, chain.Levels[3])
	assert.Len(t, chain.Pixels, 340)
	assert.Equal(t, img.Pix, chain.Pixels[:256])
}

func TestBuildMipChainStopsAtThinEdge(t *testing.T) {
	chain, err := BuildMipChain(image.NewRGBA(image.Rect(0, 0, 8, 2)))
	require.NoError(t, err)

	require.Len(t, chain.Levels, 2)
	assert.Equal(t, MipLevel{Width: 4, Height: 1, Offset: 64}, chain.Levels[1])
}

func TestDecodeRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(2, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, src))

	img, err := DecodeRGBA(buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Rect)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.RGBAAt(2, 1))

	_, err = DecodeRGBA(strings.NewReader("not an image"))
	assert.Error(t, err)
}

const quadOBJ = `
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
`

func TestDecodeRenderModel(t *testing.T) {
	model, err := DecodeRenderModel("quad", strings.NewReader(quadOBJ), nil)
	require.NoError(t, err)

	assert.Equal(t, "quad", model.Name)
	assert.Len(t, model.Vertices, 4)
	assert.Equal(t, []uint16{0, 1, 2, 0, 2, 3}, model.Indices)

	assert.Equal(t, mgl32.Vec3{1, 1, 0}, model.Vertices[2].Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, model.Vertices[2].Normal)
	assert.Equal(t, mgl32.Vec2{1, 0}, model.Vertices[2].TexCoord)
}

func TestDecodeRenderModelEmpty(t *testing.T) {
	_, err := DecodeRenderModel("empty", strings.NewReader("v 0 0 0\n"), nil)
	assert.Error(t, err)
}
