package render

import (
	"github.com/cockroachdb/errors"
)

// Swapchain is the presentation collaborator for the companion window.
type Swapchain interface {
	ImageCount() int
	// AcquireNextImage blocks, with no timeout, until an image is available.
	// signal is signaled once the image may be rendered to.
	AcquireNextImage(signal Semaphore) (int, error)
	// Present queues imageIndex for display after wait is signaled.
	Present(imageIndex int, wait Semaphore) error
}

// Acquired is the result of a successful swapchain acquire.
type Acquired struct {
	ImageIndex int
	// Slot is the frame index whose acquire semaphore was signaled.
	Slot int

	// ImageAvailable is the semaphore the acquire signals and the frame
	// submission must wait on.
	ImageAvailable Semaphore
	// RenderFinished is signaled by the frame submission and waited on by
	// present.
	RenderFinished Semaphore
}

// SwapchainPresenter owns the companion swapchain's semaphores and the frame
// index that rotates through them.
type SwapchainPresenter struct {
	swapchain Swapchain

	// imageAvailable is indexed by frame index; renderFinished by image index.
	imageAvailable []Semaphore
	renderFinished []Semaphore

	imageCount int
	frameIndex int
}

func NewSwapchainPresenter(device Device, swapchain Swapchain) (presenter *SwapchainPresenter, err error) {
	count := swapchain.ImageCount()
	if count <= 0 {
		return nil, errors.Newf("swapchain has %d images", count)
	}

	presenter = &SwapchainPresenter{swapchain: swapchain, imageCount: count}
	defer func() {
		if err != nil {
			presenter.Destroy()
			presenter = nil
		}
	}()

	for i := 0; i < count; i++ {
		semaphore, err := device.CreateSemaphore()
		if err != nil {
			return presenter, errors.Wrapf(err, "create acquire semaphore %d", i)
		}
		presenter.imageAvailable = append(presenter.imageAvailable, semaphore)

		semaphore, err = device.CreateSemaphore()
		if err != nil {
			return presenter, errors.Wrapf(err, "create render-finished semaphore %d", i)
		}
		presenter.renderFinished = append(presenter.renderFinished, semaphore)
	}

	return presenter, nil
}

func (p *SwapchainPresenter) ImageCount() int {
	return p.imageCount
}

func (p *SwapchainPresenter) FrameIndex() int {
	return p.frameIndex
}

// AcquireNext acquires the next swapchain image, signaling the acquire
// semaphore of the current frame index slot.
func (p *SwapchainPresenter) AcquireNext() (Acquired, error) {
	slot := p.frameIndex
	imageIndex, err := p.swapchain.AcquireNextImage(p.imageAvailable[slot])
	if err != nil {
		return Acquired{}, err
	}

	if imageIndex < 0 || imageIndex >= len(p.renderFinished) {
		return Acquired{}, errors.Newf("swapchain returned image %d of %d", imageIndex, len(p.renderFinished))
	}

	return Acquired{
		ImageIndex:     imageIndex,
		Slot:           slot,
		ImageAvailable: p.imageAvailable[slot],
		RenderFinished: p.renderFinished[imageIndex],
	}, nil
}

// Present queues the acquired image once its frame's submission has finished.
func (p *SwapchainPresenter) Present(acquired Acquired) error {
	return p.swapchain.Present(acquired.ImageIndex, acquired.RenderFinished)
}

// Advance moves to the next frame index. It is called exactly once per frame
// whether or not acquire and present succeeded.
func (p *SwapchainPresenter) Advance() {
	p.frameIndex = (p.frameIndex + 1) % p.imageCount
}

// Destroy releases the semaphores. The device must be idle.
func (p *SwapchainPresenter) Destroy() {
	for _, semaphore := range p.imageAvailable {
		semaphore.Destroy()
	}
	p.imageAvailable = nil

	for _, semaphore := range p.renderFinished {
		semaphore.Destroy()
	}
	p.renderFinished = nil
}
