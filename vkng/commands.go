package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/hellovr/render"
)

// CommandBuffer is a primary command buffer. Draw recording that the frame
// core does not know about goes straight to Driver with Handle.
type CommandBuffer struct {
	Driver core1_0.DeviceDriver
	Handle core1_0.CommandBuffer
}

// Unwrap returns the vkngwrapper command buffer behind cmd.
func Unwrap(cmd render.CommandBuffer) (*CommandBuffer, error) {
	buffer, ok := cmd.(*CommandBuffer)
	if !ok {
		return nil, errors.Newf("command buffer %T was not allocated by this device", cmd)
	}
	return buffer, nil
}

func (c *CommandBuffer) Begin() error {
	_, err := c.Driver.BeginCommandBuffer(c.Handle, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return err
}

func (c *CommandBuffer) End() error {
	_, err := c.Driver.EndCommandBuffer(c.Handle)
	return err
}

func (c *CommandBuffer) Reset() error {
	_, err := c.Driver.ResetCommandBuffer(c.Handle, core1_0.CommandBufferResetReleaseResources)
	return err
}

func (c *CommandBuffer) Free() {
	c.Driver.FreeCommandBuffers(c.Handle)
}

func (c *CommandBuffer) CmdPipelineBarrier(srcStageMask, dstStageMask core1_0.PipelineStageFlags, barrier core1_0.ImageMemoryBarrier) error {
	return c.Driver.CmdPipelineBarrier(c.Handle, srcStageMask, dstStageMask, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
}

func (c *CommandBuffer) CmdBeginRenderPass(begin core1_0.RenderPassBeginInfo) error {
	return c.Driver.CmdBeginRenderPass(c.Handle, core1_0.SubpassContentsInline, begin)
}

func (c *CommandBuffer) CmdEndRenderPass() {
	c.Driver.CmdEndRenderPass(c.Handle)
}

func (c *CommandBuffer) CmdSetViewport(viewport core1_0.Viewport) {
	c.Driver.CmdSetViewport(c.Handle, viewport)
}

func (c *CommandBuffer) CmdSetScissor(scissor core1_0.Rect2D) {
	c.Driver.CmdSetScissor(c.Handle, scissor)
}
