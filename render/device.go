package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Fence is a GPU->CPU completion signal attached to a queue submission.
type Fence interface {
	// Signaled polls the fence without blocking.
	Signaled() (bool, error)
	Reset() error
	Destroy()
}

// Semaphore orders work between the presentation engine and the queue.
type Semaphore interface {
	Destroy()
}

// Recorder is the subset of command recording the frame core issues itself.
// Draw calls are recorded by the scene collaborators against the same buffer.
type Recorder interface {
	CmdPipelineBarrier(srcStageMask, dstStageMask core1_0.PipelineStageFlags, barrier core1_0.ImageMemoryBarrier) error
	CmdBeginRenderPass(begin core1_0.RenderPassBeginInfo) error
	CmdEndRenderPass()
	CmdSetViewport(viewport core1_0.Viewport)
	CmdSetScissor(scissor core1_0.Rect2D)
}

// CommandBuffer is one primary command buffer allocated from the device's
// command pool. The pool must have been created with the reset-command-buffer
// flag so buffers can be reset individually.
type CommandBuffer interface {
	Recorder

	// Begin starts recording with the one-time-submit usage hint.
	Begin() error
	End() error
	// Reset discards recorded commands and releases their resources.
	Reset() error
	Free()
}

// Device is the graphics-device collaborator the pool allocates from.
type Device interface {
	AllocateCommandBuffer() (CommandBuffer, error)
	// CreateFence creates an unsignaled fence.
	CreateFence() (Fence, error)
	CreateSemaphore() (Semaphore, error)
	WaitIdle() error
}

// SemaphoreWait is a semaphore a submission waits on and the stage that waits.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     core1_0.PipelineStageFlags
}

// Submission is a single batch sent to the graphics queue.
type Submission struct {
	Commands CommandBuffer
	Fence    Fence
	Wait     []SemaphoreWait
	Signal   []Semaphore
}

// Queue is the single graphics-capable queue. Submissions execute in order.
type Queue interface {
	Submit(submission Submission) error
	WaitIdle() error
}
