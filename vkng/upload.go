package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
)

// TextureLevel locates one mip level inside a texture's staging data.
type TextureLevel struct {
	Width, Height int
	Offset        int
}

// TextureUpload copies a complete, CPU-generated mip chain from a staging
// buffer into a sampled image and leaves the image SHADER_READ_ONLY_OPTIMAL.
type TextureUpload struct {
	Texture *ImageUnit

	staging *BufferUnit
	levels  []TextureLevel
	driver  core1_0.DeviceDriver
}

func (a *Allocator) NewTextureUpload(format core1_0.Format, pixels []byte, levels []TextureLevel) (*TextureUpload, error) {
	if len(levels) == 0 {
		return nil, errors.New("texture has no mip levels")
	}

	staging, err := a.CreateBufferWithData(core1_0.BufferUsageTransferSrc, pixels)
	if err != nil {
		return nil, errors.Wrap(err, "create texture staging buffer")
	}

	texture, err := a.CreateImage(ImageOptions{
		Width:     levels[0].Width,
		Height:    levels[0].Height,
		MipLevels: len(levels),
		Format:    format,
		Usage:     core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		Aspect:    core1_0.ImageAspectColor,
	})
	if err != nil {
		staging.Destroy()
		return nil, errors.Wrap(err, "create texture image")
	}

	return &TextureUpload{
		Texture: texture,
		staging: staging,
		levels:  levels,
		driver:  a.Driver,
	}, nil
}

func (u *TextureUpload) RecordUpload(cmd render.CommandBuffer) error {
	buffer, err := Unwrap(cmd)
	if err != nil {
		return err
	}

	allLevels := core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     len(u.levels),
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	err = u.driver.CmdPipelineBarrier(buffer.Handle, core1_0.PipelineStageTopOfPipe, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			SrcAccessMask:       0,
			DstAccessMask:       core1_0.AccessTransferWrite,
			OldLayout:           core1_0.ImageLayoutUndefined,
			NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
			SrcQueueFamilyIndex: render.QueueFamilyIgnored,
			DstQueueFamilyIndex: render.QueueFamilyIgnored,
			Image:               u.Texture.Image,
			SubresourceRange:    allLevels,
		},
	})
	if err != nil {
		return err
	}

	var regions []core1_0.BufferImageCopy
	for level, extent := range u.levels {
		regions = append(regions, core1_0.BufferImageCopy{
			BufferOffset: extent.Offset,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       level,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
		})
	}

	err = u.driver.CmdCopyBufferToImage(buffer.Handle, u.staging.Buffer, u.Texture.Image, core1_0.ImageLayoutTransferDstOptimal, regions...)
	if err != nil {
		return err
	}

	return u.driver.CmdPipelineBarrier(buffer.Handle, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			SrcAccessMask:       core1_0.AccessTransferWrite,
			DstAccessMask:       core1_0.AccessShaderRead,
			OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
			NewLayout:           core1_0.ImageLayoutShaderReadOnlyOptimal,
			SrcQueueFamilyIndex: render.QueueFamilyIgnored,
			DstQueueFamilyIndex: render.QueueFamilyIgnored,
			Image:               u.Texture.Image,
			SubresourceRange:    allLevels,
		},
	})
}

func (u *TextureUpload) ReleaseStaging() {
	u.staging.Destroy()
}

// BufferUpload copies data into a device-local buffer through a staging
// buffer.
type BufferUpload struct {
	Buffer *BufferUnit

	staging *BufferUnit
	driver  core1_0.DeviceDriver
}

func (a *Allocator) NewBufferUpload(usage core1_0.BufferUsageFlags, data []byte) (*BufferUpload, error) {
	if len(data) == 0 {
		return nil, errors.New("buffer upload has no data")
	}

	staging, err := a.CreateBufferWithData(core1_0.BufferUsageTransferSrc, data)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}

	buffer, err := a.CreateBuffer(len(data), usage|core1_0.BufferUsageTransferDst, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		staging.Destroy()
		return nil, err
	}

	return &BufferUpload{Buffer: buffer, staging: staging, driver: a.Driver}, nil
}

func (u *BufferUpload) RecordUpload(cmd render.CommandBuffer) error {
	buffer, err := Unwrap(cmd)
	if err != nil {
		return err
	}

	return u.driver.CmdCopyBuffer(buffer.Handle, u.staging.Buffer, u.Buffer.Buffer, core1_0.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      u.Buffer.Size,
	})
}

func (u *BufferUpload) ReleaseStaging() {
	u.staging.Destroy()
}
