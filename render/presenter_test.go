package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenterRotatesAcquireSemaphores(t *testing.T) {
	device := &fakeDevice{}
	swapchain := &fakeSwapchain{count: 3, order: []int{1, 1, 2}}

	presenter, err := NewSwapchainPresenter(device, swapchain)
	require.NoError(t, err)
	assert.Len(t, device.semaphores, 6)

	for frame := 0; frame < 7; frame++ {
		acquired, err := presenter.AcquireNext()
		require.NoError(t, err)

		assert.Equal(t, frame%3, acquired.Slot)
		assert.Same(t, presenter.imageAvailable[frame%3], acquired.ImageAvailable)
		assert.Same(t, presenter.renderFinished[acquired.ImageIndex], acquired.RenderFinished)

		require.NoError(t, presenter.Present(acquired))
		presenter.Advance()
	}
	assert.Equal(t, 7%3, presenter.FrameIndex())
}

func TestPresenterRejectsBadImageIndex(t *testing.T) {
	device := &fakeDevice{}
	swapchain := &fakeSwapchain{count: 2, order: []int{5}}

	presenter, err := NewSwapchainPresenter(device, swapchain)
	require.NoError(t, err)

	_, err = presenter.AcquireNext()
	assert.Error(t, err)
}

func TestPresenterCleansUpPartialCreation(t *testing.T) {
	device := &fakeDevice{semaphoreErr: errors.New("out of host memory"), semaphoreErrAfter: 3}

	presenter, err := NewSwapchainPresenter(device, &fakeSwapchain{count: 3})
	assert.Error(t, err)
	assert.Nil(t, presenter)

	require.Len(t, device.semaphores, 3)
	for _, semaphore := range device.semaphores {
		assert.True(t, semaphore.destroyed)
	}
}

func TestPresenterDestroy(t *testing.T) {
	device := &fakeDevice{}
	presenter, err := NewSwapchainPresenter(device, &fakeSwapchain{count: 2})
	require.NoError(t, err)

	presenter.Destroy()
	for _, semaphore := range device.semaphores {
		assert.True(t, semaphore.destroyed)
	}

	// Advancing after destroy is harmless.
	presenter.Advance()
	assert.Equal(t, 1, presenter.FrameIndex())
}
