package scene

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"
)

// MipLevel locates one level inside MipChain.Pixels.
type MipLevel struct {
	Width, Height int
	Offset        int
}

// MipChain is tightly packed RGBA8 pixel data for every level of a texture,
// largest first.
type MipChain struct {
	Pixels []byte
	Levels []MipLevel
}

// NextMipLevelRGBA box-filters src (srcWidth x srcHeight RGBA8) down to half
// size in each dimension, never below one texel, and returns the new level.
func NextMipLevelRGBA(src []byte, srcWidth, srcHeight int) ([]byte, int, int) {
	dstWidth := srcWidth / 2
	if dstWidth <= 0 {
		dstWidth = 1
	}
	dstHeight := srcHeight / 2
	if dstHeight <= 0 {
		dstHeight = 1
	}

	dst := make([]byte, dstWidth*dstHeight*4)
	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			samples := [4]int{
				((y*2)*srcWidth + x*2) * 4,
				((y*2)*srcWidth + x*2 + 1) * 4,
				((y*2+1)*srcWidth + x*2) * 4,
				((y*2+1)*srcWidth + x*2 + 1) * 4,
			}

			var sum [4]float32
			for _, index := range samples {
				for channel := 0; channel < 4; channel++ {
					sum[channel] += float32(src[index+channel])
				}
			}

			out := (y*dstWidth + x) * 4
			for channel := 0; channel < 4; channel++ {
				dst[out+channel] = uint8(sum[channel] / 4)
			}
		}
	}

	return dst, dstWidth, dstHeight
}

// BuildMipChain generates levels from img until either dimension reaches one
// texel.
func BuildMipChain(img *image.RGBA) (*MipChain, error) {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("texture is empty")
	}

	level := make([]byte, width*height*4)
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		copy(level[y*width*4:], row)
	}

	chain := &MipChain{
		Pixels: append([]byte(nil), level...),
		Levels: []MipLevel{{Width: width, Height: height, Offset: 0}},
	}

	for width > 1 && height > 1 {
		level, width, height = NextMipLevelRGBA(level, width, height)
		chain.Levels = append(chain.Levels, MipLevel{Width: width, Height: height, Offset: len(chain.Pixels)})
		chain.Pixels = append(chain.Pixels, level...)
	}

	return chain, nil
}

// DecodeRGBA decodes a PNG or JPEG image and converts it to RGBA8.
func DecodeRGBA(r io.Reader) (*image.RGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}

	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba, nil
}

// CheckerTexture is the stand-in texture used when no texture file is
// configured.
func CheckerTexture(size, squares int) *image.RGBA {
	light := color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	dark := color.RGBA{R: 0x40, G: 0x60, B: 0x90, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / squares
	if cell < 1 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetRGBA(x, y, light)
			} else {
				img.SetRGBA(x, y, dark)
			}
		}
	}
	return img
}

// SolidTexture is a single-texel texture of c.
func SolidTexture(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, c)
	return img
}
