package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Eye selects which HMD eye a texture is submitted for.
type Eye int

const (
	EyeLeft Eye = iota
	EyeRight
)

func (e Eye) String() string {
	if e == EyeLeft {
		return "left"
	}
	return "right"
}

// Target is the render target rendered for this eye.
func (e Eye) Target() TargetID {
	if e == EyeLeft {
		return LeftEye
	}
	return RightEye
}

// ColorSpace is the color space the compositor should assume for a texture.
type ColorSpace int

const (
	ColorSpaceAuto ColorSpace = iota
	ColorSpaceGamma
	ColorSpaceLinear
)

// TextureBounds is the region of a submitted texture, in UV space, that the
// compositor should sample.
type TextureBounds struct {
	UMin, VMin float32
	UMax, VMax float32
}

// FullTexture covers the whole texture.
var FullTexture = TextureBounds{UMin: 0, VMin: 0, UMax: 1, VMax: 1}

// EyeTexture describes an eye image handed to the compositor. The image is
// left in COLOR_ATTACHMENT_OPTIMAL.
type EyeTexture struct {
	Image      core1_0.Image
	Format     core1_0.Format
	Extent     core1_0.Extent2D
	Samples    core1_0.SampleCountFlags
	Bounds     TextureBounds
	ColorSpace ColorSpace
}

// Compositor is the VR session collaborator.
type Compositor interface {
	// WaitGetPoses blocks until the runtime is ready for the next frame and
	// refreshes the tracked device poses.
	WaitGetPoses() error
	Submit(eye Eye, texture EyeTexture) error
}

// EyeTexture builds the compositor submission for an eye target.
func (t *RenderTarget) EyeTexture() EyeTexture {
	return EyeTexture{
		Image:      t.Descriptor.ColorImage,
		Format:     t.Descriptor.Format,
		Extent:     t.Descriptor.Extent,
		Samples:    t.Descriptor.Samples,
		Bounds:     FullTexture,
		ColorSpace: ColorSpaceAuto,
	}
}
