// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/vkframe/device"
)

// CmdBufferState is the recording state of a command buffer.
type CmdBufferState int

// Command buffer states
const (
	// CmdBufferEmpty buffers hold no native buffer.
	CmdBufferEmpty CmdBufferState = iota
	CmdBufferInitial
	CmdBufferRecording
	CmdBufferExecutable
)

func (s CmdBufferState) String() string {
	switch s {
	case CmdBufferInitial:
		return "initial"
	case CmdBufferRecording:
		return "recording"
	case CmdBufferExecutable:
		return "executable"
	}
	return "empty"
}

// CmdBuffer is a primary or secondary command buffer borrowed from a
// CmdPool.
type CmdBuffer interface {
	Handle() device.CommandBuffer
	Level() device.CommandBufferLevel
	State() CmdBufferState

	base() *cmdBuffer
}

type cmdBuffer struct {
	pool   *CmdPool
	handle device.CommandBuffer
	level  device.CommandBufferLevel
	state  CmdBufferState
}

func newCmdBuffer(pool *CmdPool, handle device.CommandBuffer, level device.CommandBufferLevel) cmdBuffer {
	return cmdBuffer{pool: pool, handle: handle, level: level, state: CmdBufferInitial}
}

func (c *cmdBuffer) base() *cmdBuffer {
	return c
}

func (c *cmdBuffer) clear() {
	c.pool, c.handle, c.state = nil, 0, CmdBufferEmpty
}

// Handle returns the native command buffer, zero once released.
func (c *cmdBuffer) Handle() device.CommandBuffer {
	return c.handle
}

// Level returns the command buffer level.
func (c *cmdBuffer) Level() device.CommandBufferLevel {
	return c.level
}

// State returns the recording state.
func (c *cmdBuffer) State() CmdBufferState {
	return c.state
}

func (c *cmdBuffer) dev() *Device {
	return c.pool.dev
}

func (c *cmdBuffer) begin(op string, info device.BeginInfo) error {
	switch c.state {
	case CmdBufferEmpty:
		// an empty buffer has no pool to report through
		return &InvariantError{Op: op, Reason: "command buffer is empty"}
	case CmdBufferRecording:
		return c.dev().invariant(op, "%s buffer %d is already recording", c.level, c.handle)
	}
	if err := device.Check("vk.BeginCommandBuffer", c.dev().native.BeginCommandBuffer(c.handle, info)); err != nil {
		return err
	}
	c.state = CmdBufferRecording
	return nil
}

func (c *cmdBuffer) recording(op string) error {
	if c.state == CmdBufferEmpty {
		return &InvariantError{Op: op, Reason: "command buffer is empty"}
	}
	if c.state != CmdBufferRecording {
		return c.dev().invariant(op, "%s buffer %d is %s, not recording", c.level, c.handle, c.state)
	}
	return nil
}

// End ends recording.
func (c *cmdBuffer) End() error {
	if err := c.recording("core.CmdBuffer.End"); err != nil {
		return err
	}
	if err := device.Check("vk.EndCommandBuffer", c.dev().native.EndCommandBuffer(c.handle)); err != nil {
		return err
	}
	c.state = CmdBufferExecutable
	return nil
}

// Reset discards everything recorded but keeps the buffer checked out.
func (c *cmdBuffer) Reset() error {
	if c.state == CmdBufferEmpty {
		return &InvariantError{Op: "core.CmdBuffer.Reset", Reason: "command buffer is empty"}
	}
	if err := device.Check("vk.ResetCommandBuffer", c.dev().native.ResetCommandBuffer(c.handle, false)); err != nil {
		return err
	}
	c.state = CmdBufferInitial
	return nil
}

// Release returns the buffer to its pool.
func (c *cmdBuffer) Release() error {
	if c.state == CmdBufferEmpty {
		return &InvariantError{Op: "core.CmdBuffer.Release", Reason: "command buffer is empty"}
	}
	return c.pool.Return(c)
}

// CopyBuffer records a copy between two buffers.
func (c *cmdBuffer) CopyBuffer(src, dst *Buffer, regions ...device.BufferCopy) error {
	if err := c.recording("core.CmdBuffer.CopyBuffer"); err != nil {
		return err
	}
	if len(regions) == 0 {
		size := src.Size()
		if dst.Size() < size {
			size = dst.Size()
		}
		regions = []device.BufferCopy{{Size: size}}
	}
	c.dev().native.CmdCopyBuffer(c.handle, src.handle, dst.handle, regions)
	return nil
}

// CopyBufferToImage records a copy of src into dst. Every level the
// regions write to must be in the transfer destination layout.
func (c *cmdBuffer) CopyBufferToImage(src *Buffer, dst *Image, regions ...device.BufferImageCopy) error {
	const op = "core.CmdBuffer.CopyBufferToImage"
	if err := c.recording(op); err != nil {
		return err
	}
	if debugChecks {
		for _, r := range regions {
			if l := dst.Layout(r.ImageSubresource.MipLevel); l != device.ImageLayoutTransferDstOptimal {
				return c.dev().invariant(op, "level %d of image %d is %s", r.ImageSubresource.MipLevel, dst.id, l)
			}
		}
	}
	c.dev().native.CmdCopyBufferToImage(c.handle, src.handle, dst.handle, device.ImageLayoutTransferDstOptimal, regions)
	return nil
}

// BlitImage records a blit from transfer source levels of src to
// transfer destination levels of dst.
func (c *cmdBuffer) BlitImage(src, dst *Image, filter device.Filter, regions ...device.ImageBlit) error {
	const op = "core.CmdBuffer.BlitImage"
	if err := c.recording(op); err != nil {
		return err
	}
	if debugChecks {
		for _, r := range regions {
			if l := src.Layout(r.SrcSubresource.MipLevel); l != device.ImageLayoutTransferSrcOptimal {
				return c.dev().invariant(op, "source level %d of image %d is %s", r.SrcSubresource.MipLevel, src.id, l)
			}
			if l := dst.Layout(r.DstSubresource.MipLevel); l != device.ImageLayoutTransferDstOptimal {
				return c.dev().invariant(op, "destination level %d of image %d is %s", r.DstSubresource.MipLevel, dst.id, l)
			}
		}
	}
	c.dev().native.CmdBlitImage(c.handle, src.handle, device.ImageLayoutTransferSrcOptimal,
		dst.handle, device.ImageLayoutTransferDstOptimal, regions, filter)
	return nil
}

// PrimaryCmdBuffer is submitted to queues directly.
type PrimaryCmdBuffer struct {
	cmdBuffer

	pass   device.Inheritance
	inPass bool
}

// Begin starts recording. An executable buffer is implicitly reset.
func (p *PrimaryCmdBuffer) Begin(flags device.CommandBufferUsageFlags) error {
	if err := p.begin("core.PrimaryCmdBuffer.Begin", device.BeginInfo{Flags: flags}); err != nil {
		return err
	}
	p.pass, p.inPass = device.Inheritance{}, false
	return nil
}

// BeginRenderPass begins the render pass of fb. Secondary buffers begun
// with p as their parent while the pass is active continue it.
func (p *PrimaryCmdBuffer) BeginRenderPass(fb *Framebuffer, contents device.SubpassContents, clear ...device.ClearColor) error {
	const op = "core.PrimaryCmdBuffer.BeginRenderPass"
	if err := p.recording(op); err != nil {
		return err
	}
	if p.inPass {
		return p.dev().invariant(op, "buffer %d is already inside a render pass", p.handle)
	}
	p.dev().native.CmdBeginRenderPass(p.handle, device.RenderPassBegin{
		RenderPass:  fb.pass.handle,
		Framebuffer: fb.handle,
		Extent:      fb.extent,
		ClearColors: clear,
		Contents:    contents,
	})
	p.pass = device.Inheritance{RenderPass: fb.pass.handle, Framebuffer: fb.handle}
	p.inPass = true
	return nil
}

// EndRenderPass ends the active render pass.
func (p *PrimaryCmdBuffer) EndRenderPass() error {
	const op = "core.PrimaryCmdBuffer.EndRenderPass"
	if err := p.recording(op); err != nil {
		return err
	}
	if !p.inPass {
		return p.dev().invariant(op, "buffer %d is not inside a render pass", p.handle)
	}
	p.dev().native.CmdEndRenderPass(p.handle)
	p.inPass = false
	return nil
}

// InRenderPass reports whether a render pass is active.
func (p *PrimaryCmdBuffer) InRenderPass() bool {
	return p.inPass
}

// ExecuteCommands records the execution of executable secondary buffers.
func (p *PrimaryCmdBuffer) ExecuteCommands(secondaries ...*SecondaryCmdBuffer) error {
	const op = "core.PrimaryCmdBuffer.ExecuteCommands"
	if err := p.recording(op); err != nil {
		return err
	}
	if len(secondaries) == 0 {
		return nil
	}
	handles := make([]device.CommandBuffer, len(secondaries))
	for i, s := range secondaries {
		if s.state != CmdBufferExecutable {
			return p.dev().invariant(op, "secondary buffer %d is %s", s.handle, s.state)
		}
		handles[i] = s.handle
	}
	p.dev().native.CmdExecuteCommands(p.handle, handles)
	return nil
}

// SecondaryCmdBuffer is executed from a primary buffer.
type SecondaryCmdBuffer struct {
	cmdBuffer

	inheritance device.Inheritance
}

// Begin starts recording. When parent is inside a render pass the
// buffer inherits and continues it.
func (s *SecondaryCmdBuffer) Begin(parent *PrimaryCmdBuffer, flags device.CommandBufferUsageFlags) error {
	var inheritance device.Inheritance
	if parent != nil && parent.inPass {
		inheritance = parent.pass
		flags |= device.CommandBufferUsageRenderPassContinue
	}
	err := s.begin("core.SecondaryCmdBuffer.Begin", device.BeginInfo{Flags: flags, Inheritance: &inheritance})
	if err != nil {
		return err
	}
	s.inheritance = inheritance
	return nil
}

// Inheritance returns what the buffer inherited when it was begun.
func (s *SecondaryCmdBuffer) Inheritance() device.Inheritance {
	return s.inheritance
}
