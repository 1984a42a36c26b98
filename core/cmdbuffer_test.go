// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/device/devicetest"
	qt "github.com/frankban/quicktest"
)

func kinds(native *devicetest.Device, cb device.CommandBuffer) []string {
	var k []string
	for _, cmd := range native.Commands(cb) {
		k = append(k, cmd.Kind)
	}
	return k
}

func TestCmdBufferStates(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.IsNil)
	src, err := dev.NewBuffer(64, device.BufferUsageTransferSrc, device.MemoryPropertyHostVisible)
	c.Assert(err, qt.IsNil)
	dst, err := dev.NewBuffer(32, device.BufferUsageTransferDst, 0)
	c.Assert(err, qt.IsNil)

	cmd, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)

	err = cmd.End()
	c.Assert(isInvariant(err), qt.Equals, true)
	err = cmd.CopyBuffer(src, dst)
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(cmd.Begin(0), qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferRecording)
	c.Assert(native.Recording(cmd.Handle()), qt.Equals, true)
	err = cmd.Begin(0)
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(cmd.CopyBuffer(src, dst), qt.IsNil)
	c.Assert(cmd.End(), qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferExecutable)
	c.Assert(kinds(native, cmd.Handle()), qt.DeepEquals, []string{"CopyBuffer"})

	// an executable buffer begins again without a reset
	c.Assert(cmd.Begin(device.CommandBufferUsageOneTimeSubmit), qt.IsNil)
	c.Assert(kinds(native, cmd.Handle()), qt.DeepEquals, []string(nil))
	c.Assert(cmd.Reset(), qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferInitial)
	c.Assert(native.Recording(cmd.Handle()), qt.Equals, false)

	c.Assert(cmd.Release(), qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferEmpty)
	for name, f := range map[string]func() error{
		"Begin":   func() error { return cmd.Begin(0) },
		"End":     cmd.End,
		"Reset":   cmd.Reset,
		"Release": cmd.Release,
		"Copy":    func() error { return cmd.CopyBuffer(src, dst) },
	} {
		c.Run(name, func(c *qt.C) {
			c.Assert(isInvariant(f()), qt.Equals, true)
		})
	}

	c.Assert(pool.Destroy(), qt.IsNil)
	src.Destroy()
	dst.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func TestCmdBufferBeginFailure(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.IsNil)
	cmd, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)

	native.Fail("BeginCommandBuffer", device.ErrorOutOfHostMemory)
	err = cmd.Begin(0)
	c.Assert(err, qt.ErrorMatches, `vk.BeginCommandBuffer\(\): ErrorOutOfHostMemory`)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferInitial)

	c.Assert(cmd.Begin(0), qt.IsNil)
	native.Fail("EndCommandBuffer", device.ErrorOutOfDeviceMemory)
	err = cmd.End()
	c.Assert(err, qt.ErrorMatches, `vk.EndCommandBuffer\(\): ErrorOutOfDeviceMemory`)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferRecording)

	c.Assert(cmd.End(), qt.IsNil)
	c.Assert(cmd.Release(), qt.IsNil)
	c.Assert(pool.Destroy(), qt.IsNil)
	assertClean(c, native)
}

func TestCmdBufferRenderPass(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	sc, err := dev.NewSwapchain(core.SwapchainConfig{MinImageCount: 2, Extent: device.Extent2D{Width: 32, Height: 16}})
	c.Assert(err, qt.IsNil)
	target, err := dev.NewSwapchainTarget(sc)
	c.Assert(err, qt.IsNil)
	c.Assert(len(target.Framebuffers), qt.Equals, sc.Len())
	c.Assert(target.Framebuffer(uint32(sc.Len())), qt.IsNil)

	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1, MaxSecondaryBuffers: 2})
	c.Assert(err, qt.IsNil)
	cmd, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)
	inside, err := pool.NewSecondary()
	c.Assert(err, qt.IsNil)
	outside, err := pool.NewSecondary()
	c.Assert(err, qt.IsNil)

	fb := target.Framebuffer(1)
	colour := device.ClearColor{0, 0, 0, 1}

	c.Assert(cmd.Begin(device.CommandBufferUsageOneTimeSubmit), qt.IsNil)

	// begun before the pass, nothing is inherited
	c.Assert(outside.Begin(cmd, 0), qt.IsNil)
	c.Assert(outside.Inheritance(), qt.Equals, device.Inheritance{})
	c.Assert(outside.End(), qt.IsNil)

	err = cmd.EndRenderPass()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(cmd.BeginRenderPass(fb, device.SubpassContentsSecondaryCommandBuffers, colour), qt.IsNil)
	c.Assert(cmd.InRenderPass(), qt.Equals, true)
	err = cmd.BeginRenderPass(fb, device.SubpassContentsInline)
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(inside.Begin(cmd, 0), qt.IsNil)
	c.Assert(inside.Inheritance(), qt.Equals, device.Inheritance{
		RenderPass:  target.Pass.Handle(),
		Framebuffer: fb.Handle(),
	})

	err = cmd.ExecuteCommands(inside)
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(inside.End(), qt.IsNil)
	c.Assert(cmd.ExecuteCommands(inside), qt.IsNil)
	c.Assert(cmd.ExecuteCommands(), qt.IsNil)
	c.Assert(cmd.EndRenderPass(), qt.IsNil)
	c.Assert(cmd.InRenderPass(), qt.Equals, false)
	c.Assert(cmd.End(), qt.IsNil)

	commands := native.Commands(cmd.Handle())
	c.Assert(kinds(native, cmd.Handle()), qt.DeepEquals, []string{"BeginRenderPass", "ExecuteCommands", "EndRenderPass"})
	c.Assert(commands[0].Begin, qt.DeepEquals, device.RenderPassBegin{
		RenderPass:  target.Pass.Handle(),
		Framebuffer: fb.Handle(),
		Extent:      device.Extent2D{Width: 32, Height: 16},
		ClearColors: []device.ClearColor{colour},
		Contents:    device.SubpassContentsSecondaryCommandBuffers,
	})
	c.Assert(commands[1].Secondaries, qt.DeepEquals, []device.CommandBuffer{inside.Handle()})

	// beginning again leaves the pass
	c.Assert(cmd.Begin(0), qt.IsNil)
	c.Assert(cmd.InRenderPass(), qt.Equals, false)
	c.Assert(cmd.End(), qt.IsNil)

	for _, cb := range []core.CmdBuffer{cmd, inside, outside} {
		c.Assert(pool.Return(cb), qt.IsNil)
	}
	c.Assert(pool.Destroy(), qt.IsNil)
	target.Destroy()
	sc.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}
