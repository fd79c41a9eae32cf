package render

import (
	"fmt"

	"github.com/vkngwrapper/core/v3/core1_0"
)

// TargetID names one of the off-screen render targets.
type TargetID int

const (
	LeftEye TargetID = iota
	RightEye
	Screen

	NumTargets = 3
)

func (id TargetID) String() string {
	switch id {
	case LeftEye:
		return "left eye"
	case RightEye:
		return "right eye"
	case Screen:
		return "screen"
	}
	return fmt.Sprintf("target %d", int(id))
}

// RenderTargetDescriptor holds the already-created objects backing a target.
type RenderTargetDescriptor struct {
	ColorImage  core1_0.Image
	DepthImage  core1_0.Image
	RenderPass  core1_0.RenderPass
	Framebuffer core1_0.Framebuffer
	Format      core1_0.Format
	Extent      core1_0.Extent2D
	Samples     core1_0.SampleCountFlags

	// SampledAfterPass targets are read by a shader once their pass ends and
	// are moved to SHADER_READ_ONLY_OPTIMAL after rendering.
	SampledAfterPass bool
}

// RenderTarget is a color+depth framebuffer plus the tracked layout of both
// images.
type RenderTarget struct {
	ID         TargetID
	Descriptor RenderTargetDescriptor

	color ImageState
	depth ImageState
}

func NewRenderTarget(id TargetID, desc RenderTargetDescriptor) *RenderTarget {
	return &RenderTarget{
		ID:         id,
		Descriptor: desc,
		color:      NewImageState(desc.ColorImage, core1_0.ImageAspectColor),
		depth:      NewImageState(desc.DepthImage, core1_0.ImageAspectDepth),
	}
}

func (t *RenderTarget) ColorLayout() core1_0.ImageLayout {
	return t.color.Layout()
}

func (t *RenderTarget) DepthLayout() core1_0.ImageLayout {
	return t.depth.Layout()
}

// TransitionColorForRendering moves the color image from whatever layout it
// was last left in to COLOR_ATTACHMENT_OPTIMAL. It is recorded every frame.
func (t *RenderTarget) TransitionColorForRendering(rec Recorder) error {
	return t.color.Transition(rec, toColorAttachment)
}

// TransitionDepthOnFirstUse moves the depth image out of UNDEFINED the first
// time the target is rendered and reports whether a barrier was recorded.
// The render pass clears depth on load after that.
func (t *RenderTarget) TransitionDepthOnFirstUse(rec Recorder) (bool, error) {
	if t.depth.Layout() != core1_0.ImageLayoutUndefined {
		return false, nil
	}

	err := t.depth.Transition(rec, toDepthAttachment)
	if err != nil {
		return false, err
	}
	return true, nil
}

// BeginRenderPass sets the viewport and scissor to the full target and begins
// its render pass, clearing color to opaque black and depth to 1.0.
func (t *RenderTarget) BeginRenderPass(rec Recorder) error {
	extent := t.Descriptor.Extent
	rec.CmdSetViewport(core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
	rec.CmdSetScissor(core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})

	return rec.CmdBeginRenderPass(core1_0.RenderPassBeginInfo{
		RenderPass:  t.Descriptor.RenderPass,
		Framebuffer: t.Descriptor.Framebuffer,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0, 0, 0, 1},
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	})
}

// FinishRendering ends the render pass and, for sampled targets, makes the
// color image readable by the companion window's fragment shader.
func (t *RenderTarget) FinishRendering(rec Recorder) error {
	rec.CmdEndRenderPass()

	if !t.Descriptor.SampledAfterPass {
		return nil
	}
	return t.color.Transition(rec, toShaderRead)
}
