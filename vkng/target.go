package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
)

const (
	TargetColorFormat = core1_0.FormatR8G8B8A8SRGB
	TargetDepthFormat = core1_0.FormatD32SignedFloat
)

type TargetOptions struct {
	Width, Height int
	Samples       core1_0.SampleCountFlags

	// Sampled targets are read by the companion window after their pass.
	Sampled bool
}

// TargetUnit owns the color image, depth image, render pass and framebuffer
// behind one off-screen render target.
type TargetUnit struct {
	Color       *ImageUnit
	Depth       *ImageUnit
	RenderPass  core1_0.RenderPass
	Framebuffer core1_0.Framebuffer

	samples core1_0.SampleCountFlags
	sampled bool
	release *Cleanup
}

// CreateTargetRenderPass builds a color+depth pass whose attachments start
// and end in their attachment-optimal layouts. The frame loop moves the
// images into those layouts itself before the pass begins.
func CreateTargetRenderPass(driver core1_0.DeviceDriver, samples core1_0.SampleCountFlags) (core1_0.RenderPass, error) {
	renderPass, _, err := driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         TargetColorFormat,
				Samples:        samples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
			{
				Format:         TargetDepthFormat,
				Samples:        samples,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
	})
	if err != nil {
		return core1_0.RenderPass{}, errors.Wrap(err, "create target render pass")
	}
	return renderPass, nil
}

func (a *Allocator) CreateTarget(options TargetOptions) (unit *TargetUnit, err error) {
	var cleanup Cleanup
	defer func() {
		if err != nil {
			cleanup.Run()
		}
	}()

	if options.Width <= 0 || options.Height <= 0 {
		return nil, errors.Newf("render target size %dx%d", options.Width, options.Height)
	}

	color, err := a.CreateImage(ImageOptions{
		Width:   options.Width,
		Height:  options.Height,
		Samples: options.Samples,
		Format:  TargetColorFormat,
		Usage:   core1_0.ImageUsageColorAttachment | core1_0.ImageUsageSampled | core1_0.ImageUsageTransferSrc,
		Aspect:  core1_0.ImageAspectColor,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create color target")
	}
	cleanup.Add(color.Destroy)

	depth, err := a.CreateImage(ImageOptions{
		Width:   options.Width,
		Height:  options.Height,
		Samples: options.Samples,
		Format:  TargetDepthFormat,
		Usage:   core1_0.ImageUsageDepthStencilAttachment,
		Aspect:  core1_0.ImageAspectDepth,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create depth target")
	}
	cleanup.Add(depth.Destroy)

	renderPass, err := CreateTargetRenderPass(a.Driver, options.Samples)
	if err != nil {
		return nil, err
	}
	cleanup.Add(func() { a.Driver.DestroyRenderPass(renderPass, nil) })

	framebuffer, _, err := a.Driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass: renderPass,
		Layers:     1,
		Attachments: []core1_0.ImageView{
			color.View,
			depth.View,
		},
		Width:  options.Width,
		Height: options.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create target framebuffer")
	}
	cleanup.Add(func() { a.Driver.DestroyFramebuffer(framebuffer, nil) })

	return &TargetUnit{
		Color:       color,
		Depth:       depth,
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		samples:     options.Samples,
		sampled:     options.Sampled,
		release:     cleanup.Move(),
	}, nil
}

func (u *TargetUnit) Descriptor() render.RenderTargetDescriptor {
	return render.RenderTargetDescriptor{
		ColorImage:       u.Color.Image,
		DepthImage:       u.Depth.Image,
		RenderPass:       u.RenderPass,
		Framebuffer:      u.Framebuffer,
		Format:           u.Color.Format,
		Extent:           u.Color.Extent,
		Samples:          u.samples,
		SampledAfterPass: u.sampled,
	}
}

func (u *TargetUnit) Destroy() {
	if u == nil || u.release == nil {
		return
	}
	u.release.Run()
	u.release = nil
}

// CompanionFramebuffers is the single-attachment render pass the desktop
// mirror draws with and one framebuffer per swapchain image.
type CompanionFramebuffers struct {
	RenderPass   core1_0.RenderPass
	Framebuffers []core1_0.Framebuffer

	swapchain *Swapchain
	release   *Cleanup
}

func NewCompanionFramebuffers(driver core1_0.DeviceDriver, swapchain *Swapchain) (framebuffers *CompanionFramebuffers, err error) {
	var cleanup Cleanup
	defer func() {
		if err != nil {
			cleanup.Run()
		}
	}()

	renderPass, _, err := driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         swapchain.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutColorAttachmentOptimal,
				FinalLayout:    core1_0.ImageLayoutColorAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "create companion render pass")
	}
	cleanup.Add(func() { driver.DestroyRenderPass(renderPass, nil) })

	var handles []core1_0.Framebuffer
	for i, view := range swapchain.Views {
		framebuffer, _, err := driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass:  renderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{view},
			Width:       swapchain.Extent.Width,
			Height:      swapchain.Extent.Height,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create framebuffer for swapchain image %d", i)
		}
		cleanup.Add(func() { driver.DestroyFramebuffer(framebuffer, nil) })
		handles = append(handles, framebuffer)
	}

	return &CompanionFramebuffers{
		RenderPass:   renderPass,
		Framebuffers: handles,
		swapchain:    swapchain,
		release:      cleanup.Move(),
	}, nil
}

func (f *CompanionFramebuffers) Descriptor() render.CompanionWindowDescriptor {
	return render.CompanionWindowDescriptor{
		Images:       f.swapchain.Images,
		Framebuffers: f.Framebuffers,
		RenderPass:   f.RenderPass,
		Extent:       f.swapchain.Extent,
	}
}

func (f *CompanionFramebuffers) Destroy() {
	if f == nil || f.release == nil {
		return
	}
	f.release.Run()
	f.release = nil
}
