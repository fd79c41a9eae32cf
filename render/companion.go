package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// CompanionWindowDescriptor holds the swapchain images of the desktop window
// and the framebuffers built on them, indexed by swapchain image index.
type CompanionWindowDescriptor struct {
	Images       []core1_0.Image
	Framebuffers []core1_0.Framebuffer
	RenderPass   core1_0.RenderPass
	Extent       core1_0.Extent2D
}

// CompanionWindow tracks the layout of every swapchain image. Unlike the eye
// targets, these cycle PRESENT_SRC -> COLOR_ATTACHMENT_OPTIMAL -> PRESENT_SRC
// every frame.
type CompanionWindow struct {
	Descriptor CompanionWindowDescriptor

	images []ImageState
}

func NewCompanionWindow(desc CompanionWindowDescriptor) (*CompanionWindow, error) {
	if len(desc.Images) == 0 {
		return nil, errors.New("companion window has no swapchain images")
	}
	if len(desc.Images) != len(desc.Framebuffers) {
		return nil, errors.Newf("companion window has %d images but %d framebuffers", len(desc.Images), len(desc.Framebuffers))
	}

	window := &CompanionWindow{Descriptor: desc}
	for _, image := range desc.Images {
		window.images = append(window.images, NewImageState(image, core1_0.ImageAspectColor))
	}
	return window, nil
}

func (w *CompanionWindow) ImageCount() int {
	return len(w.images)
}

func (w *CompanionWindow) ImageLayout(imageIndex int) core1_0.ImageLayout {
	return w.images[imageIndex].Layout()
}

// PrepareForPresentation moves every image that has never been used out of
// UNDEFINED so the per-frame cycle can start from PRESENT_SRC.
func (w *CompanionWindow) PrepareForPresentation(rec Recorder) error {
	for i := range w.images {
		if w.images[i].Layout() != core1_0.ImageLayoutUndefined {
			continue
		}

		err := w.images[i].Transition(rec, Transition{
			NewLayout: khr_swapchain.ImageLayoutPresentSrc,
			SrcStage:  core1_0.PipelineStageBottomOfPipe,
			DstStage:  core1_0.PipelineStageColorAttachmentOutput,
			SrcAccess: 0,
			DstAccess: core1_0.AccessColorAttachmentWrite,
		})
		if err != nil {
			return errors.Wrapf(err, "prepare swapchain image %d", i)
		}
	}
	return nil
}

// BeginRendering transitions the acquired image for rendering and begins the
// companion render pass on its framebuffer.
func (w *CompanionWindow) BeginRendering(rec Recorder, imageIndex int) error {
	if imageIndex < 0 || imageIndex >= len(w.images) {
		return errors.Newf("swapchain image %d out of range", imageIndex)
	}

	err := w.images[imageIndex].Transition(rec, Transition{
		NewLayout: core1_0.ImageLayoutColorAttachmentOptimal,
		SrcStage:  core1_0.PipelineStageColorAttachmentOutput,
		DstStage:  core1_0.PipelineStageColorAttachmentOutput,
		SrcAccess: core1_0.AccessColorAttachmentRead,
		DstAccess: core1_0.AccessColorAttachmentWrite,
	})
	if err != nil {
		return err
	}

	extent := w.Descriptor.Extent
	rec.CmdSetViewport(core1_0.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	rec.CmdSetScissor(core1_0.Rect2D{Extent: extent})

	return rec.CmdBeginRenderPass(core1_0.RenderPassBeginInfo{
		RenderPass:  w.Descriptor.RenderPass,
		Framebuffer: w.Descriptor.Framebuffers[imageIndex],
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 1},
		},
	})
}

// FinishRendering ends the companion pass and hands the image back to the
// presentation engine.
func (w *CompanionWindow) FinishRendering(rec Recorder, imageIndex int) error {
	rec.CmdEndRenderPass()

	return w.images[imageIndex].Transition(rec, Transition{
		NewLayout: khr_swapchain.ImageLayoutPresentSrc,
		SrcStage:  core1_0.PipelineStageColorAttachmentOutput,
		DstStage:  core1_0.PipelineStageColorAttachmentOutput,
		SrcAccess: core1_0.AccessColorAttachmentWrite,
		DstAccess: core1_0.AccessColorAttachmentWrite,
	})
}

// RecordUpload prepares the swapchain images during resource loading.
func (w *CompanionWindow) RecordUpload(cmd CommandBuffer) error {
	return w.PrepareForPresentation(cmd)
}
