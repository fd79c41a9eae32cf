package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRecyclesOldestSignaledHandle(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	first, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Allocated())
	require.NoError(t, pool.Release(first))

	// The first fence has not signaled yet, so a new handle is needed.
	second, err := pool.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Allocated())
	assert.NotSame(t, first, second)

	first.Fence.(*fakeFence).signaled = true
	require.NoError(t, pool.Release(second))

	third, err := pool.Acquire()
	require.NoError(t, err)
	assert.Same(t, first, third)
	assert.Equal(t, 2, pool.Allocated())

	assert.Equal(t, 1, third.Commands.(*fakeCommandBuffer).resets)
	assert.Equal(t, 1, third.Fence.(*fakeFence).resets)
	assert.False(t, third.Fence.(*fakeFence).signaled)
	assert.Equal(t, 1, pool.Idle())
	assert.Equal(t, 1, pool.Outstanding())
}

func TestPoolNeverReusesStuckFence(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	stuck, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Release(stuck))

	for i := 0; i < 100; i++ {
		handle, err := pool.Acquire()
		require.NoError(t, err)
		assert.NotSame(t, stuck, handle)
		require.NoError(t, pool.Release(handle))
	}

	assert.Equal(t, 101, pool.Allocated())
	assert.Zero(t, stuck.Commands.(*fakeCommandBuffer).resets)
	assert.Zero(t, stuck.Fence.(*fakeFence).resets)
}

func TestPoolOnlyInspectsOldestHandle(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	a, err := pool.Acquire()
	require.NoError(t, err)
	b, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Release(a))
	require.NoError(t, pool.Release(b))

	// b finishing first cannot happen on a single queue; the pool keeps
	// waiting on a.
	b.Fence.(*fakeFence).signaled = true

	c, err := pool.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.NotSame(t, b, c)
	assert.Equal(t, 3, pool.Allocated())
}

func TestPoolNeverLendsTwice(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	live := map[*CommandBufferHandle]bool{}
	var released []*CommandBufferHandle

	// A fixed mix of acquires, releases and fence completions.
	for step := 0; step < 500; step++ {
		switch step % 5 {
		case 0, 1, 3:
			handle, err := pool.Acquire()
			require.NoError(t, err)
			require.False(t, live[handle], "handle lent twice at step %d", step)
			live[handle] = true
		case 2:
			for handle := range live {
				require.NoError(t, pool.Release(handle))
				delete(live, handle)
				released = append(released, handle)
				break
			}
		case 4:
			for handle := range live {
				require.NoError(t, pool.Release(handle))
				delete(live, handle)
				released = append(released, handle)
			}
			if len(released) > 0 {
				released[0].Fence.(*fakeFence).signaled = true
				released = released[1:]
			}
		}
	}

	assert.Equal(t, len(live), pool.Outstanding())
}

func TestPoolReleaseRequiresLentHandle(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	handle, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Release(handle))

	assert.True(t, errors.Is(pool.Release(handle), ErrNotLent))
	assert.True(t, errors.Is(pool.Release(nil), ErrNotLent))
	assert.True(t, errors.Is(pool.Release(&CommandBufferHandle{}), ErrNotLent))
	assert.Equal(t, 1, pool.Idle())
}

func TestPoolAllocationFailures(t *testing.T) {
	device := &fakeDevice{allocateErr: errors.New("out of device memory")}
	pool := NewCommandBufferPool(device)

	_, err := pool.Acquire()
	assert.ErrorContains(t, err, "allocate command buffer")
	assert.Empty(t, device.fences)

	device = &fakeDevice{fenceErr: errors.New("out of host memory")}
	pool = NewCommandBufferPool(device)

	_, err = pool.Acquire()
	assert.ErrorContains(t, err, "create command buffer fence")
	require.Len(t, device.commandBuffers, 1)
	assert.True(t, device.commandBuffers[0].freed)
	assert.Zero(t, pool.Allocated())
}

func TestPoolShutdownFreesEverything(t *testing.T) {
	device := &fakeDevice{}
	pool := NewCommandBufferPool(device)

	idle, err := pool.Acquire()
	require.NoError(t, err)
	require.NoError(t, pool.Release(idle))
	_, err = pool.Acquire()
	require.NoError(t, err)

	require.NoError(t, pool.Shutdown())

	assert.Equal(t, 1, device.waitIdles)
	for _, cmd := range device.commandBuffers {
		assert.True(t, cmd.freed)
	}
	for _, fence := range device.fences {
		assert.True(t, fence.destroyed)
	}
	assert.Zero(t, pool.Idle())
	assert.Zero(t, pool.Outstanding())
}
