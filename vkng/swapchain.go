package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/hellovr/render"
)

// ErrOutOfDate is returned by acquire and present when the surface no longer
// matches the swapchain. The window is fixed-size, so the frame loop just
// skips the companion window for that frame.
var ErrOutOfDate = errors.New("swapchain out of date")

type SwapchainOptions struct {
	Surface      khr_surface.Surface
	Capabilities *khr_surface.SurfaceCapabilities
	Format       khr_surface.SurfaceFormat
	PresentMode  khr_surface.PresentMode
	Extent       core1_0.Extent2D

	// QueueFamilies lists the graphics and present families when they
	// differ; the images are then shared concurrently.
	QueueFamilies []int
}

// Swapchain is the companion window's swapchain and its image views.
type Swapchain struct {
	driver    core1_0.DeviceDriver
	extension khr_swapchain.ExtensionDriver
	present   core1_0.Queue

	Handle khr_swapchain.Swapchain
	Format core1_0.Format
	Extent core1_0.Extent2D
	Images []core1_0.Image
	Views  []core1_0.ImageView
}

func NewSwapchain(driver core1_0.DeviceDriver, presentQueue core1_0.Queue, options SwapchainOptions) (swapchain *Swapchain, err error) {
	var cleanup Cleanup
	defer func() {
		if err != nil {
			cleanup.Run()
		}
	}()

	extension := khr_swapchain.CreateExtensionDriverFromCoreDriver(driver)

	imageCount := options.Capabilities.MinImageCount + 1
	if options.Capabilities.MaxImageCount > 0 && options.Capabilities.MaxImageCount < imageCount {
		imageCount = options.Capabilities.MaxImageCount
	}

	sharingMode := core1_0.SharingModeExclusive
	if len(options.QueueFamilies) > 1 {
		sharingMode = core1_0.SharingModeConcurrent
	}

	handle, _, err := extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: options.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      options.Format.Format,
		ImageColorSpace:  options.Format.ColorSpace,
		ImageExtent:      options.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: options.QueueFamilies,

		PreTransform:   options.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    options.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	cleanup.Add(func() { extension.DestroySwapchain(handle, nil) })

	images, _, err := extension.GetSwapchainImages(handle)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	swapchain = &Swapchain{
		driver:    driver,
		extension: extension,
		present:   presentQueue,
		Handle:    handle,
		Format:    options.Format.Format,
		Extent:    options.Extent,
		Images:    images,
	}

	for i, image := range images {
		view, err := CreateImageView(driver, image, options.Format.Format, core1_0.ImageAspectColor, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "create swapchain image view %d", i)
		}
		cleanup.Add(func() { driver.DestroyImageView(view, nil) })
		swapchain.Views = append(swapchain.Views, view)
	}

	return swapchain, nil
}

func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

// AcquireNextImage waits with no timeout. A suboptimal swapchain still hands
// out an image and signals the semaphore, so it counts as success.
func (s *Swapchain) AcquireNextImage(signal render.Semaphore) (int, error) {
	semaphore, err := semaphoreHandle(signal)
	if err != nil {
		return 0, err
	}

	imageIndex, res, err := s.extension.AcquireNextImage(s.Handle, common.NoTimeout, &semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, ErrOutOfDate
	} else if err != nil {
		return 0, err
	}

	return imageIndex, nil
}

func (s *Swapchain) Present(imageIndex int, wait render.Semaphore) error {
	presentInfo := khr_swapchain.PresentInfo{
		Swapchains:   []khr_swapchain.Swapchain{s.Handle},
		ImageIndices: []int{imageIndex},
	}

	if wait != nil {
		semaphore, err := semaphoreHandle(wait)
		if err != nil {
			return err
		}
		presentInfo.WaitSemaphores = []core1_0.Semaphore{semaphore}
	}

	res, err := s.extension.QueuePresent(s.present, presentInfo)
	if res == khr_swapchain.VKErrorOutOfDate {
		return ErrOutOfDate
	}
	return err
}

func (s *Swapchain) Destroy() {
	for _, view := range s.Views {
		s.driver.DestroyImageView(view, nil)
	}
	s.Views = nil

	if s.Handle.Initialized() {
		s.extension.DestroySwapchain(s.Handle, nil)
		s.Handle = khr_swapchain.Swapchain{}
	}
}
