package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
)

// Device allocates command buffers and synchronization objects from a logical
// device. Command buffers come from a single pool created with the
// reset-command-buffer flag.
type Device struct {
	Driver      core1_0.DeviceDriver
	commandPool core1_0.CommandPool
}

// NewDevice creates the command pool for queueFamily.
func NewDevice(driver core1_0.DeviceDriver, queueFamily int) (*Device, error) {
	pool, _, err := driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &Device{Driver: driver, commandPool: pool}, nil
}

func (d *Device) AllocateCommandBuffer() (render.CommandBuffer, error) {
	buffers, _, err := d.Driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, err
	}

	return &CommandBuffer{Driver: d.Driver, Handle: buffers[0]}, nil
}

func (d *Device) CreateFence() (render.Fence, error) {
	fence, _, err := d.Driver.CreateFence(nil, core1_0.FenceCreateInfo{})
	if err != nil {
		return nil, err
	}

	return &Fence{driver: d.Driver, Handle: fence}, nil
}

func (d *Device) CreateSemaphore() (render.Semaphore, error) {
	semaphore, _, err := d.Driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, err
	}

	return &Semaphore{driver: d.Driver, Handle: semaphore}, nil
}

func (d *Device) WaitIdle() error {
	_, err := d.Driver.DeviceWaitIdle()
	return err
}

// Destroy destroys the command pool. Every command buffer allocated from it
// must already be freed.
func (d *Device) Destroy() {
	if d.commandPool.Initialized() {
		d.Driver.DestroyCommandPool(d.commandPool, nil)
		d.commandPool = core1_0.CommandPool{}
	}
}

type Fence struct {
	driver core1_0.DeviceDriver
	Handle core1_0.Fence
}

func (f *Fence) Signaled() (bool, error) {
	res, err := f.driver.GetFenceStatus(f.Handle)
	if err != nil {
		return false, err
	}
	return res == core1_0.VKSuccess, nil
}

func (f *Fence) Reset() error {
	_, err := f.driver.ResetFences(f.Handle)
	return err
}

func (f *Fence) Destroy() {
	f.driver.DestroyFence(f.Handle, nil)
}

type Semaphore struct {
	driver core1_0.DeviceDriver
	Handle core1_0.Semaphore
}

func (s *Semaphore) Destroy() {
	s.driver.DestroySemaphore(s.Handle, nil)
}

func semaphoreHandle(semaphore render.Semaphore) (core1_0.Semaphore, error) {
	s, ok := semaphore.(*Semaphore)
	if !ok {
		return core1_0.Semaphore{}, errors.Newf("semaphore %T was not created by this device", semaphore)
	}
	return s.Handle, nil
}

// Queue submits to one device queue.
type Queue struct {
	driver core1_0.DeviceDriver
	Handle core1_0.Queue
}

func NewQueue(driver core1_0.DeviceDriver, family, index int) *Queue {
	return &Queue{driver: driver, Handle: driver.GetQueue(family, index)}
}

func (q *Queue) Submit(submission render.Submission) error {
	commands, err := Unwrap(submission.Commands)
	if err != nil {
		return err
	}

	info := core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{commands.Handle},
	}

	for _, wait := range submission.Wait {
		semaphore, err := semaphoreHandle(wait.Semaphore)
		if err != nil {
			return err
		}
		info.WaitSemaphores = append(info.WaitSemaphores, semaphore)
		info.WaitDstStageMask = append(info.WaitDstStageMask, wait.Stage)
	}

	for _, signal := range submission.Signal {
		semaphore, err := semaphoreHandle(signal)
		if err != nil {
			return err
		}
		info.SignalSemaphores = append(info.SignalSemaphores, semaphore)
	}

	var fence *core1_0.Fence
	if submission.Fence != nil {
		f, ok := submission.Fence.(*Fence)
		if !ok {
			return errors.Newf("fence %T was not created by this device", submission.Fence)
		}
		fence = &f.Handle
	}

	_, err = q.driver.QueueSubmit(q.Handle, fence, info)
	return err
}

func (q *Queue) WaitIdle() error {
	_, err := q.driver.QueueWaitIdle(q.Handle)
	return err
}
