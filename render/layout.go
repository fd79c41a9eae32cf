package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamilyIgnored leaves queue family ownership unchanged in a barrier.
const QueueFamilyIgnored = -1

// ImageState is the client-side mirror of one image's GPU layout. It must only
// be touched from the frame loop, in the order barriers are recorded.
type ImageState struct {
	Image  core1_0.Image
	Aspect core1_0.ImageAspectFlags

	layout core1_0.ImageLayout
}

func NewImageState(image core1_0.Image, aspect core1_0.ImageAspectFlags) ImageState {
	return ImageState{
		Image:  image,
		Aspect: aspect,
		layout: core1_0.ImageLayoutUndefined,
	}
}

// Layout is the layout the image was last transitioned to.
func (s *ImageState) Layout() core1_0.ImageLayout {
	return s.layout
}

// Transition describes one layout change and its synchronization scope.
type Transition struct {
	NewLayout core1_0.ImageLayout

	SrcStage  core1_0.PipelineStageFlags
	DstStage  core1_0.PipelineStageFlags
	SrcAccess core1_0.AccessFlags
	DstAccess core1_0.AccessFlags
}

// Transition records a barrier from the tracked layout to t.NewLayout and
// then tracks the new layout. Nothing is tracked if recording fails.
func (s *ImageState) Transition(rec Recorder, t Transition) error {
	barrier := core1_0.ImageMemoryBarrier{
		SrcAccessMask:       t.SrcAccess,
		DstAccessMask:       t.DstAccess,
		OldLayout:           s.layout,
		NewLayout:           t.NewLayout,
		SrcQueueFamilyIndex: QueueFamilyIgnored,
		DstQueueFamilyIndex: QueueFamilyIgnored,
		Image:               s.Image,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     s.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	err := rec.CmdPipelineBarrier(t.SrcStage, t.DstStage, barrier)
	if err != nil {
		return err
	}

	s.layout = t.NewLayout
	return nil
}

var (
	toColorAttachment = Transition{
		NewLayout: core1_0.ImageLayoutColorAttachmentOptimal,
		SrcStage:  core1_0.PipelineStageTransfer | core1_0.PipelineStageFragmentShader,
		DstStage:  core1_0.PipelineStageColorAttachmentOutput,
		SrcAccess: core1_0.AccessShaderRead | core1_0.AccessTransferRead,
		DstAccess: core1_0.AccessColorAttachmentWrite,
	}

	toDepthAttachment = Transition{
		NewLayout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		SrcStage:  core1_0.PipelineStageBottomOfPipe,
		DstStage:  core1_0.PipelineStageEarlyFragmentTests,
		SrcAccess: 0,
		DstAccess: core1_0.AccessDepthStencilAttachmentWrite,
	}

	toShaderRead = Transition{
		NewLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		SrcStage:  core1_0.PipelineStageColorAttachmentOutput,
		DstStage:  core1_0.PipelineStageFragmentShader,
		SrcAccess: core1_0.AccessColorAttachmentWrite,
		DstAccess: core1_0.AccessShaderRead,
	}
)
