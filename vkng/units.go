package vkng

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Allocator creates device-memory-backed objects on one logical device.
type Allocator struct {
	Driver           core1_0.DeviceDriver
	MemoryProperties *core1_0.PhysicalDeviceMemoryProperties
}

func CreateImageView(driver core1_0.DeviceDriver, image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags, mipLevels int) (core1_0.ImageView, error) {
	imageView, _, err := driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return imageView, err
}

type ImageOptions struct {
	Width, Height int
	MipLevels     int
	Samples       core1_0.SampleCountFlags
	Format        core1_0.Format
	Usage         core1_0.ImageUsageFlags
	Aspect        core1_0.ImageAspectFlags
}

// ImageUnit is an optimal-tiling image with its bound memory and a view over
// every mip level. The three are created and destroyed together.
type ImageUnit struct {
	Image  core1_0.Image
	Memory core1_0.DeviceMemory
	View   core1_0.ImageView

	Format    core1_0.Format
	Extent    core1_0.Extent2D
	MipLevels int

	release *Cleanup
}

func (a *Allocator) CreateImage(options ImageOptions) (unit *ImageUnit, err error) {
	var cleanup Cleanup
	defer func() {
		if err != nil {
			cleanup.Run()
		}
	}()

	mipLevels := options.MipLevels
	if mipLevels < 1 {
		mipLevels = 1
	}
	samples := options.Samples
	if samples == 0 {
		samples = core1_0.Samples1
	}

	image, _, err := a.Driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  options.Width,
			Height: options.Height,
			Depth:  1,
		},
		MipLevels:     mipLevels,
		ArrayLayers:   1,
		Format:        options.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         options.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       samples,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}
	cleanup.Add(func() { a.Driver.DestroyImage(image, nil) })

	memReqs := a.Driver.GetImageMemoryRequirements(image)
	memoryIndex, err := FindMemoryType(a.MemoryProperties, memReqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	memory, _, err := a.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryIndex,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate image memory")
	}
	cleanup.Add(func() { a.Driver.FreeMemory(memory, nil) })

	_, err = a.Driver.BindImageMemory(image, memory, 0)
	if err != nil {
		return nil, errors.Wrap(err, "bind image memory")
	}

	view, err := CreateImageView(a.Driver, image, options.Format, options.Aspect, mipLevels)
	if err != nil {
		return nil, errors.Wrap(err, "create image view")
	}
	cleanup.Add(func() { a.Driver.DestroyImageView(view, nil) })

	return &ImageUnit{
		Image:     image,
		Memory:    memory,
		View:      view,
		Format:    options.Format,
		Extent:    core1_0.Extent2D{Width: options.Width, Height: options.Height},
		MipLevels: mipLevels,
		release:   cleanup.Move(),
	}, nil
}

func (u *ImageUnit) Destroy() {
	if u == nil || u.release == nil {
		return
	}
	u.release.Run()
	u.release = nil
}

// BufferUnit is a buffer with its own bound memory. Host-visible buffers can
// be persistently mapped.
type BufferUnit struct {
	Buffer core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int

	driver  core1_0.DeviceDriver
	mapped  []byte
	release *Cleanup
}

func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (unit *BufferUnit, err error) {
	var cleanup Cleanup
	defer func() {
		if err != nil {
			cleanup.Run()
		}
	}()

	buffer, _, err := a.Driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}
	cleanup.Add(func() { a.Driver.DestroyBuffer(buffer, nil) })

	memRequirements := a.Driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := FindMemoryType(a.MemoryProperties, memRequirements.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}

	memory, _, err := a.Driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate buffer memory")
	}
	cleanup.Add(func() { a.Driver.FreeMemory(memory, nil) })

	_, err = a.Driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	return &BufferUnit{
		Buffer:  buffer,
		Memory:  memory,
		Size:    size,
		driver:  a.Driver,
		release: cleanup.Move(),
	}, nil
}

// CreateBufferWithData creates a host-visible, host-coherent buffer holding
// data.
func (a *Allocator) CreateBufferWithData(usage core1_0.BufferUsageFlags, data []byte) (*BufferUnit, error) {
	unit, err := a.CreateBuffer(len(data), usage, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	mapped, err := unit.Map()
	if err != nil {
		unit.Destroy()
		return nil, err
	}
	copy(mapped, data)
	unit.Unmap()

	return unit, nil
}

// Map maps the whole buffer and keeps it mapped until Unmap or Destroy.
func (u *BufferUnit) Map() ([]byte, error) {
	if u.mapped != nil {
		return u.mapped, nil
	}

	ptr, _, err := u.driver.MapMemory(u.Memory, 0, u.Size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}

	u.mapped = unsafe.Slice((*byte)(ptr), u.Size)
	return u.mapped, nil
}

func (u *BufferUnit) Unmap() {
	if u.mapped == nil {
		return
	}
	u.driver.UnmapMemory(u.Memory)
	u.mapped = nil
}

func (u *BufferUnit) Destroy() {
	if u == nil || u.release == nil {
		return
	}
	u.Unmap()
	u.release.Run()
	u.release = nil
}
