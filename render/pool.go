package render

import (
	"github.com/cockroachdb/errors"
)

// ErrNotLent is returned when a handle is released that the pool does not
// currently have lent out.
var ErrNotLent = errors.New("command buffer handle is not lent out")

// CommandBufferHandle pairs a command buffer with the fence that signals when
// the buffer's last submission has completed.
type CommandBufferHandle struct {
	Commands CommandBuffer
	Fence    Fence

	lent bool
}

// CommandBufferPool lends out command buffers and recycles them once their
// fence has signaled.
//
// Released handles are kept oldest first. Because everything is submitted to
// a single queue, the oldest submission completes first, so polling the
// oldest handle's fence is enough to know whether anything can be recycled.
type CommandBufferPool struct {
	device Device

	// recycle[0] is the least recently submitted handle.
	recycle     []*CommandBufferHandle
	outstanding map[*CommandBufferHandle]struct{}
	allocated   int
}

func NewCommandBufferPool(device Device) *CommandBufferPool {
	return &CommandBufferPool{
		device:      device,
		outstanding: make(map[*CommandBufferHandle]struct{}),
	}
}

// Acquire returns a reset command buffer ready for recording. The oldest
// released handle is reused if its fence has signaled, otherwise a new
// command buffer and fence are allocated.
func (p *CommandBufferPool) Acquire() (*CommandBufferHandle, error) {
	if len(p.recycle) > 0 {
		oldest := p.recycle[0]

		signaled, err := oldest.Fence.Signaled()
		if err != nil {
			return nil, errors.Wrap(err, "query command buffer fence status")
		}

		if signaled {
			err = oldest.Commands.Reset()
			if err != nil {
				return nil, errors.Wrap(err, "reset command buffer")
			}

			err = oldest.Fence.Reset()
			if err != nil {
				return nil, errors.Wrap(err, "reset command buffer fence")
			}

			p.recycle[0] = nil
			p.recycle = p.recycle[1:]
			return p.lend(oldest), nil
		}
	}

	commands, err := p.device.AllocateCommandBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "allocate command buffer")
	}

	fence, err := p.device.CreateFence()
	if err != nil {
		commands.Free()
		return nil, errors.Wrap(err, "create command buffer fence")
	}

	p.allocated++
	return p.lend(&CommandBufferHandle{Commands: commands, Fence: fence}), nil
}

func (p *CommandBufferPool) lend(handle *CommandBufferHandle) *CommandBufferHandle {
	handle.lent = true
	p.outstanding[handle] = struct{}{}
	return handle
}

// Release hands a submitted command buffer back to the pool. The handle's
// fence must have been attached to the submission; the handle becomes the
// last candidate for reuse.
func (p *CommandBufferPool) Release(handle *CommandBufferHandle) error {
	if handle == nil || !handle.lent {
		return ErrNotLent
	}
	if _, ok := p.outstanding[handle]; !ok {
		return ErrNotLent
	}

	handle.lent = false
	delete(p.outstanding, handle)
	p.recycle = append(p.recycle, handle)
	return nil
}

// Allocated is the number of command buffers created over the pool's lifetime.
func (p *CommandBufferPool) Allocated() int {
	return p.allocated
}

// Idle is the number of released handles waiting to be recycled.
func (p *CommandBufferPool) Idle() int {
	return len(p.recycle)
}

// Outstanding is the number of handles currently lent out.
func (p *CommandBufferPool) Outstanding() int {
	return len(p.outstanding)
}

// Shutdown waits for the device to go idle, then frees every command buffer
// and fence the pool has created, including handles still lent out.
func (p *CommandBufferPool) Shutdown() error {
	err := p.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle before freeing command buffers")
	}

	for _, handle := range p.recycle {
		handle.Commands.Free()
		handle.Fence.Destroy()
	}
	p.recycle = nil

	for handle := range p.outstanding {
		handle.lent = false
		handle.Commands.Free()
		handle.Fence.Destroy()
	}
	p.outstanding = make(map[*CommandBufferHandle]struct{})

	return nil
}
