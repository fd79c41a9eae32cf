package render

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

func layoutName(layout core1_0.ImageLayout) string {
	switch layout {
	case core1_0.ImageLayoutUndefined:
		return "UNDEFINED"
	case core1_0.ImageLayoutColorAttachmentOptimal:
		return "COLOR_ATTACHMENT_OPTIMAL"
	case core1_0.ImageLayoutDepthStencilAttachmentOptimal:
		return "DEPTH_STENCIL_ATTACHMENT_OPTIMAL"
	case core1_0.ImageLayoutShaderReadOnlyOptimal:
		return "SHADER_READ_ONLY_OPTIMAL"
	case khr_swapchain.ImageLayoutPresentSrc:
		return "PRESENT_SRC_KHR"
	}
	return fmt.Sprintf("layout %d", int(layout))
}

type fakeFence struct {
	id        int
	signaled  bool
	resets    int
	destroyed bool
}

func (f *fakeFence) Signaled() (bool, error) {
	if f.destroyed {
		return false, errors.Newf("fence %d used after destroy", f.id)
	}
	return f.signaled, nil
}

func (f *fakeFence) Reset() error {
	if !f.signaled {
		return errors.Newf("fence %d reset while unsignaled", f.id)
	}
	f.signaled = false
	f.resets++
	return nil
}

func (f *fakeFence) Destroy() {
	f.destroyed = true
}

type fakeSemaphore struct {
	id        int
	destroyed bool
}

func (s *fakeSemaphore) Destroy() {
	s.destroyed = true
}

type recordedBarrier struct {
	src, dst core1_0.PipelineStageFlags
	barrier  core1_0.ImageMemoryBarrier
}

type fakeCommandBuffer struct {
	id int

	recording bool
	begins    int
	ends      int
	resets    int
	freed     bool

	barriers []recordedBarrier
	passes   []core1_0.RenderPassBeginInfo
	// events is a readable trace of everything recorded since the last reset.
	events []string
}

func (c *fakeCommandBuffer) Begin() error {
	if c.recording {
		return errors.Newf("command buffer %d already recording", c.id)
	}
	c.recording = true
	c.begins++
	return nil
}

func (c *fakeCommandBuffer) End() error {
	if !c.recording {
		return errors.Newf("command buffer %d not recording", c.id)
	}
	c.recording = false
	c.ends++
	return nil
}

func (c *fakeCommandBuffer) Reset() error {
	c.recording = false
	c.resets++
	c.barriers = nil
	c.passes = nil
	c.events = nil
	return nil
}

func (c *fakeCommandBuffer) Free() {
	c.freed = true
}

func (c *fakeCommandBuffer) CmdPipelineBarrier(src, dst core1_0.PipelineStageFlags, barrier core1_0.ImageMemoryBarrier) error {
	c.barriers = append(c.barriers, recordedBarrier{src: src, dst: dst, barrier: barrier})
	c.events = append(c.events, fmt.Sprintf("barrier %s->%s", layoutName(barrier.OldLayout), layoutName(barrier.NewLayout)))
	return nil
}

func (c *fakeCommandBuffer) CmdBeginRenderPass(begin core1_0.RenderPassBeginInfo) error {
	c.passes = append(c.passes, begin)
	c.events = append(c.events, "begin pass")
	return nil
}

func (c *fakeCommandBuffer) CmdEndRenderPass() {
	c.events = append(c.events, "end pass")
}

func (c *fakeCommandBuffer) CmdSetViewport(viewport core1_0.Viewport) {
	c.events = append(c.events, fmt.Sprintf("viewport %gx%g", viewport.Width, viewport.Height))
}

func (c *fakeCommandBuffer) CmdSetScissor(scissor core1_0.Rect2D) {
	c.events = append(c.events, fmt.Sprintf("scissor %dx%d", scissor.Extent.Width, scissor.Extent.Height))
}

type fakeDevice struct {
	commandBuffers []*fakeCommandBuffer
	fences         []*fakeFence
	semaphores     []*fakeSemaphore
	waitIdles      int

	allocateErr  error
	fenceErr     error
	semaphoreErr error
	// semaphoreErrAfter fails semaphore creation once this many exist.
	semaphoreErrAfter int
}

func (d *fakeDevice) AllocateCommandBuffer() (CommandBuffer, error) {
	if d.allocateErr != nil {
		return nil, d.allocateErr
	}
	cmd := &fakeCommandBuffer{id: len(d.commandBuffers)}
	d.commandBuffers = append(d.commandBuffers, cmd)
	return cmd, nil
}

func (d *fakeDevice) CreateFence() (Fence, error) {
	if d.fenceErr != nil {
		return nil, d.fenceErr
	}
	fence := &fakeFence{id: len(d.fences)}
	d.fences = append(d.fences, fence)
	return fence, nil
}

func (d *fakeDevice) CreateSemaphore() (Semaphore, error) {
	if d.semaphoreErr != nil && len(d.semaphores) >= d.semaphoreErrAfter {
		return nil, d.semaphoreErr
	}
	semaphore := &fakeSemaphore{id: len(d.semaphores)}
	d.semaphores = append(d.semaphores, semaphore)
	return semaphore, nil
}

func (d *fakeDevice) WaitIdle() error {
	d.waitIdles++
	return nil
}

// submitRecord is a copy of what a command buffer held when it was submitted.
type submitRecord struct {
	events   []string
	barriers []recordedBarrier
}

type fakeQueue struct {
	submissions []Submission
	records     []submitRecord
	waitIdles   int
	submitErr   error

	// completeOnSubmit signals the submission's fence immediately.
	completeOnSubmit bool
}

func (q *fakeQueue) Submit(submission Submission) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	q.submissions = append(q.submissions, submission)
	cmd := submission.Commands.(*fakeCommandBuffer)
	q.records = append(q.records, submitRecord{
		events:   append([]string(nil), cmd.events...),
		barriers: append([]recordedBarrier(nil), cmd.barriers...),
	})
	if q.completeOnSubmit && submission.Fence != nil {
		submission.Fence.(*fakeFence).signaled = true
	}
	return nil
}

func (q *fakeQueue) WaitIdle() error {
	q.waitIdles++
	for _, submission := range q.submissions {
		if submission.Fence != nil {
			submission.Fence.(*fakeFence).signaled = true
		}
	}
	return nil
}

type presentCall struct {
	imageIndex int
	wait       Semaphore
}

type fakeSwapchain struct {
	count int
	// order is the sequence of image indices handed out by acquire.
	order []int
	calls int

	acquireErrs map[int]error
	presentErrs map[int]error

	acquireSignals []Semaphore
	presents       []presentCall
}

func (s *fakeSwapchain) ImageCount() int {
	return s.count
}

func (s *fakeSwapchain) AcquireNextImage(signal Semaphore) (int, error) {
	call := s.calls
	s.calls++
	s.acquireSignals = append(s.acquireSignals, signal)

	if err := s.acquireErrs[call]; err != nil {
		return 0, err
	}
	if len(s.order) == 0 {
		return call % s.count, nil
	}
	return s.order[call%len(s.order)], nil
}

func (s *fakeSwapchain) Present(imageIndex int, wait Semaphore) error {
	call := len(s.presents)
	s.presents = append(s.presents, presentCall{imageIndex: imageIndex, wait: wait})
	return s.presentErrs[call]
}

type fakeScene struct {
	frames  int
	targets []TargetID
	err     error
}

func (s *fakeScene) BeginFrame() error {
	s.frames++
	return nil
}

func (s *fakeScene) RenderScene(cmd CommandBuffer, target TargetID) error {
	if s.err != nil {
		return s.err
	}
	s.targets = append(s.targets, target)
	fake := cmd.(*fakeCommandBuffer)
	fake.events = append(fake.events, "draw "+target.String())
	return nil
}

type fakeCompanionScene struct {
	images []int
}

func (s *fakeCompanionScene) RenderCompanion(cmd CommandBuffer, imageIndex int) error {
	s.images = append(s.images, imageIndex)
	fake := cmd.(*fakeCommandBuffer)
	fake.events = append(fake.events, fmt.Sprintf("draw companion %d", imageIndex))
	return nil
}

type compositorSubmit struct {
	eye     Eye
	texture EyeTexture
}

type fakeCompositor struct {
	submits   []compositorSubmit
	waits     int
	submitErr error
}

func (c *fakeCompositor) WaitGetPoses() error {
	c.waits++
	return nil
}

func (c *fakeCompositor) Submit(eye Eye, texture EyeTexture) error {
	c.submits = append(c.submits, compositorSubmit{eye: eye, texture: texture})
	return c.submitErr
}

func testTargets() [NumTargets]*RenderTarget {
	var targets [NumTargets]*RenderTarget
	for i := range targets {
		id := TargetID(i)
		targets[i] = NewRenderTarget(id, RenderTargetDescriptor{
			Format:           core1_0.FormatR8G8B8A8SRGB,
			Extent:           core1_0.Extent2D{Width: 64, Height: 32},
			Samples:          core1_0.Samples4,
			SampledAfterPass: id == Screen,
		})
	}
	return targets
}

func testCompanion(count int) *CompanionWindow {
	window, err := NewCompanionWindow(CompanionWindowDescriptor{
		Images:       make([]core1_0.Image, count),
		Framebuffers: make([]core1_0.Framebuffer, count),
		Extent:       core1_0.Extent2D{Width: 128, Height: 72},
	})
	if err != nil {
		panic(err)
	}
	return window
}

func barriersWithAspect(barriers []recordedBarrier, aspect core1_0.ImageAspectFlags) []recordedBarrier {
	var matching []recordedBarrier
	for _, barrier := range barriers {
		if barrier.barrier.SubresourceRange.AspectMask == aspect {
			matching = append(matching, barrier)
		}
	}
	return matching
}
