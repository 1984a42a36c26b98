// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"errors"
	"testing"
	"time"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/device/devicetest"
	qt "github.com/frankban/quicktest"
)

var colour = device.ClearColor{0, 0, 0, 1}

type rendererFixture struct {
	dev    *core.Device
	native *devicetest.Device
	sc     *core.Swapchain
	r      *renderer.Renderer
}

// newRenderer creates a two phase renderer presenting to a three image
// swapchain. The transfer phase uses the second graphics queue.
func newRenderer(c *qt.C, timeout time.Duration) (*rendererFixture, func()) {
	dev, native := newDevice(c)
	graphics, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	transfer, err := dev.NewQueue(0, 1)
	c.Assert(err, qt.IsNil)
	sc, err := dev.NewSwapchain(core.SwapchainConfig{MinImageCount: 3, Extent: device.Extent2D{Width: 64, Height: 64}})
	c.Assert(err, qt.IsNil)

	r, err := renderer.New(dev, renderer.Configuration{
		Phases: []renderer.PhaseConfiguration{
			{Phase: renderer.PhaseGraphics, Queue: graphics, MaxSecondaryBuffers: 1},
			{Phase: renderer.PhaseTransfer, Queue: transfer},
		},
		Swapchain:   sc,
		WaitTimeout: timeout,
	})
	c.Assert(err, qt.IsNil)
	f := &rendererFixture{dev: dev, native: native, sc: sc, r: r}
	return f, func() {
		c.Assert(r.Destroy(), qt.IsNil)
		sc.Destroy()
		assertClean(c, native)
	}
}

// frame records a clear of the acquired image and skips the transfer
// phase.
func (rf *rendererFixture) frame(c *qt.C) core.PresentResult {
	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	f.Skip(renderer.PhaseTransfer)
	cmd := f.Cmd(renderer.PhaseGraphics)
	c.Assert(cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, colour), qt.IsNil)
	c.Assert(cmd.EndRenderPass(), qt.IsNil)
	res, err := rf.r.End(f)
	c.Assert(err, qt.IsNil)
	return res
}

func TestNew(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)

	_, err = renderer.New(dev, renderer.Configuration{})
	c.Assert(err, qt.ErrorMatches, `renderer.New\(\): no phases`)

	_, err = renderer.New(dev, renderer.Configuration{Phases: []renderer.PhaseConfiguration{
		{Phase: renderer.PhaseGraphics, Queue: q},
		{Phase: renderer.PhaseGraphics, Queue: q},
	}})
	c.Assert(err, qt.ErrorMatches, `renderer.New\(\): phase graphics configured twice`)

	// the transfer phase is created before the graphics one fails
	_, err = renderer.New(dev, renderer.Configuration{Phases: []renderer.PhaseConfiguration{
		{Phase: renderer.PhaseGraphics, Queue: &core.Queue{}},
		{Phase: renderer.PhaseTransfer, Queue: q},
	}})
	c.Assert(err, qt.ErrorMatches, `renderer.NewStage\(graphics\): queue is not bound`)
	assertClean(c, native)
}

func TestRendererWiring(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	r := rf.r
	c.Assert(r.Stage(renderer.PhaseTransfer).Name(), qt.Equals, "transfer")
	c.Assert(r.Stage(renderer.PhaseTransfer).Target(), qt.IsNil)
	c.Assert(r.Stage(renderer.PhaseGraphics).Target(), qt.Equals, r.Target())
	c.Assert(r.Stage(renderer.Phase(9)), qt.IsNil)
	c.Assert(r.Timeline(renderer.Phase(9), 0), qt.IsNil)
	c.Assert(r.Timeline(renderer.PhaseGraphics, renderer.GroupSize), qt.IsNil)
	c.Assert(r.Timeline(renderer.PhaseGraphics, -1), qt.IsNil)
	c.Assert(len(r.Target().Framebuffers), qt.Equals, 3)

	err := r.Wait()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.Wait\(\): Advance was not called`)

	c.Assert(r.Advance(), qt.Equals, renderer.Cycle{})
	f, err := r.Begin()
	c.Assert(err, qt.IsNil)
	c.Assert(f.Status, qt.Equals, core.PresentSuccess)
	c.Assert(f.Cmd(renderer.Phase(9)), qt.IsNil)
	_, err = f.Secondary(renderer.Phase(9))
	c.Assert(err, qt.ErrorMatches, `renderer.Frame.Secondary\(\): phase phase\(9\) is not configured`)
	_, err = r.End(f)
	c.Assert(err, qt.IsNil)

	// transfer signals its timeline, graphics waits on it and on the
	// acquired image, then signals its timeline and the present
	// semaphore.
	subs := rf.native.Submits()
	c.Assert(len(subs), qt.Equals, 2)
	transfer, graphics := subs[0].Submit, subs[1].Submit
	tt := r.Timeline(renderer.PhaseTransfer, 0)
	gt := r.Timeline(renderer.PhaseGraphics, 0)
	c.Assert(transfer.WaitSemaphores, qt.DeepEquals, []device.Semaphore(nil))
	c.Assert(transfer.SignalSemaphores, qt.DeepEquals, []device.Semaphore{tt.Handle()})
	c.Assert(transfer.SignalValues, qt.DeepEquals, []uint64{1})
	c.Assert(graphics.WaitSemaphores[0], qt.Equals, tt.Handle())
	c.Assert(graphics.WaitValues, qt.DeepEquals, []uint64{1, 0})
	c.Assert(graphics.WaitStages, qt.DeepEquals, []device.PipelineStageFlags{
		device.PipelineStageAllCommands,
		device.PipelineStageColorAttachmentOutput,
	})
	c.Assert(graphics.SignalSemaphores[0], qt.Equals, gt.Handle())
	c.Assert(graphics.SignalValues, qt.DeepEquals, []uint64{1, 0})

	presents := rf.native.Presents()
	c.Assert(len(presents), qt.Equals, 1)
	c.Assert(presents[0].WaitSemaphores, qt.DeepEquals, []device.Semaphore{graphics.SignalSemaphores[1]})
	c.Assert(presents[0].Swapchains, qt.DeepEquals, []device.Swapchain{rf.sc.Handle()})
}

func TestRendererFrames(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	for i := 0; i < 6; i++ {
		c.Assert(rf.frame(c), qt.Equals, core.PresentSuccess)
		c.Assert(rf.r.Cycle(), qt.Equals, renderer.Cycle{Index: uint64(i), SubIndex: i % 2})
	}

	presents := rf.native.Presents()
	c.Assert(len(presents), qt.Equals, 6)
	for i, p := range presents {
		c.Assert(p.ImageIndices, qt.DeepEquals, []uint32{uint32(i % 3)}, qt.Commentf("present %d", i))
	}
	for _, p := range []renderer.Phase{renderer.PhaseTransfer, renderer.PhaseGraphics} {
		for i := 0; i < renderer.GroupSize; i++ {
			c.Assert(rf.r.Timeline(p, i).Value(), qt.Equals, uint64(3), qt.Commentf("%s slot %d", p, i))
		}
	}

	// skipped transfer work is submitted without a command buffer
	subs := rf.native.Submits()
	c.Assert(len(subs), qt.Equals, 12)
	for i := 0; i < len(subs); i += 2 {
		c.Assert(subs[i].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer(nil))
		c.Assert(len(subs[i+1].Submit.CommandBuffers), qt.Equals, 1)
	}
}

func TestRendererTransferWork(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	src, err := rf.dev.NewStagingBuffer(make([]byte, 64))
	c.Assert(err, qt.IsNil)
	defer src.Destroy()
	dst, err := rf.dev.NewStagingBuffer(make([]byte, 64))
	c.Assert(err, qt.IsNil)
	defer dst.Destroy()

	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	c.Assert(f.Cmd(renderer.PhaseTransfer).CopyBuffer(src, dst, device.BufferCopy{Size: 64}), qt.IsNil)

	// a render pass left open is ended with the stage
	cmd := f.Cmd(renderer.PhaseGraphics)
	c.Assert(cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsSecondaryCommandBuffers), qt.IsNil)
	sec, err := f.Secondary(renderer.PhaseGraphics)
	c.Assert(err, qt.IsNil)
	c.Assert(sec.Begin(cmd, 0), qt.IsNil)
	c.Assert(sec.Inheritance().Framebuffer, qt.Equals, f.Framebuffer().Handle())
	c.Assert(sec.End(), qt.IsNil)
	c.Assert(cmd.ExecuteCommands(sec), qt.IsNil)
	_, err = f.Secondary(renderer.PhaseTransfer)
	c.Assert(err, qt.ErrorMatches, `core.CmdPool.checkout\(\): no free secondary buffers, 0 of 0 checked out`)

	res, err := rf.r.End(f)
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, core.PresentSuccess)
	_, err = rf.r.End(f)
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.End\(\): frame 0/0 already ended`)

	var kinds []string
	for _, rc := range rf.native.Commands(cmd.Handle()) {
		kinds = append(kinds, rc.Kind)
	}
	c.Assert(kinds, qt.DeepEquals, []string{"BeginRenderPass", "ExecuteCommands", "EndRenderPass"})
	subs := rf.native.Submits()
	c.Assert(subs[0].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer{f.Cmd(renderer.PhaseTransfer).Handle()})

	pool := rf.r.Stage(renderer.PhaseGraphics).Pool()
	c.Assert(pool.CheckedOut(device.CommandBufferLevelSecondary), qt.Equals, 1)
	rf.frame(c)
	c.Assert(pool.CheckedOut(device.CommandBufferLevelSecondary), qt.Equals, 1)
	rf.frame(c)
	c.Assert(pool.CheckedOut(device.CommandBufferLevelSecondary), qt.Equals, 0)
}

func TestRendererStaleFrame(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	rf.r.Advance()
	_, err = rf.r.End(f)
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.End\(\): frame 0/0 ended in cycle 1/1`)

	// the abandoned slot is discarded on destroy
	c.Assert(rf.r.Stage(renderer.PhaseGraphics).Pool().CheckedOut(device.CommandBufferLevelPrimary), qt.Equals, 2)
}

func TestRendererSkipGraphics(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	for i := 0; i < 3; i++ {
		rf.r.Advance()
		f, err := rf.r.Begin()
		c.Assert(err, qt.IsNil)
		f.Skip(renderer.PhaseTransfer)
		f.Skip(renderer.PhaseGraphics)
		res, err := rf.r.End(f)
		c.Assert(err, qt.IsNil)
		c.Assert(res, qt.Equals, core.PresentSuccess)
	}
	c.Assert(len(rf.native.Presents()), qt.Equals, 3)

	// the presented image still goes through the render pass, anything
	// recorded before the skip is dropped
	subs := rf.native.Submits()
	c.Assert(len(subs), qt.Equals, 6)
	for i := 0; i < len(subs); i += 2 {
		c.Assert(subs[i].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer(nil))
		graphics := subs[i+1].Submit.CommandBuffers
		c.Assert(len(graphics), qt.Equals, 1)
		var kinds []string
		for _, rc := range rf.native.Commands(graphics[0]) {
			kinds = append(kinds, rc.Kind)
		}
		c.Assert(kinds, qt.DeepEquals, []string{"BeginRenderPass", "EndRenderPass"})
	}
	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	cmd := f.Cmd(renderer.PhaseGraphics)
	c.Assert(cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, device.ClearColor{1, 0, 0, 1}), qt.IsNil)
	f.Skip(renderer.PhaseTransfer)
	f.Skip(renderer.PhaseGraphics)
	_, err = rf.r.End(f)
	c.Assert(err, qt.IsNil)
	commands := rf.native.Commands(cmd.Handle())
	c.Assert(len(commands), qt.Equals, 2)
	c.Assert(commands[0].Begin.ClearColors, qt.DeepEquals, []device.ClearColor{{}})
}

func TestRendererBeginTwice(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	rf.native.Hold()
	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	f.Skip(renderer.PhaseTransfer)
	_, err = rf.r.End(f)
	c.Assert(err, qt.IsNil)

	// the slot's buffers are still pending
	_, err = rf.r.Begin()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.Begin\(\): frame 0/0 already begun`)
	c.Assert(rf.native.Pending(), qt.Equals, 2)

	rf.native.Release(-1)
	c.Assert(rf.frame(c), qt.Equals, core.PresentSuccess)
	c.Assert(len(rf.native.Presents()), qt.Equals, 2)
}

func TestRendererStageBeginFailure(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	// transfer begins, graphics does not
	rf.native.Fail("BeginCommandBuffer", device.Success)
	rf.native.Fail("BeginCommandBuffer", device.ErrorOutOfHostMemory)
	rf.r.Advance()
	_, err := rf.r.Begin()
	c.Assert(err, qt.ErrorMatches, `vk.BeginCommandBuffer\(\): ErrorOutOfHostMemory`)
	transfer, err := rf.r.Stage(renderer.PhaseTransfer).SubmitInfo(0)
	c.Assert(err, qt.IsNil)
	c.Assert(transfer.SignalValues(), qt.DeepEquals, []uint64{0})

	// the retry keeps the image acquired by the failed attempt
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	c.Assert(f.ImageIndex, qt.Equals, uint32(0))
	f.Skip(renderer.PhaseTransfer)
	c.Assert(f.Cmd(renderer.PhaseGraphics).BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, colour), qt.IsNil)
	res, err := rf.r.End(f)
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, core.PresentSuccess)
	c.Assert(rf.frame(c), qt.Equals, core.PresentSuccess)

	presents := rf.native.Presents()
	c.Assert(len(presents), qt.Equals, 2)
	c.Assert(presents[0].ImageIndices, qt.DeepEquals, []uint32{0})
	c.Assert(presents[1].ImageIndices, qt.DeepEquals, []uint32{1})
}

func TestRendererTimeout(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 10*time.Millisecond)
	defer done()

	rf.native.Hold()
	rf.frame(c)
	rf.frame(c)
	c.Assert(rf.native.Pending(), qt.Equals, 4)

	rf.r.Advance()
	_, err := rf.r.Begin()
	c.Assert(errors.Is(err, core.ErrTimeout), qt.Equals, true)
	err = rf.r.Wait()
	c.Assert(errors.Is(err, core.ErrTimeout), qt.Equals, true)

	// the first frame's submissions free slot 0
	rf.native.Release(2)
	c.Assert(rf.r.Wait(), qt.IsNil)
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	f.Skip(renderer.PhaseTransfer)
	_, err = rf.r.End(f)
	c.Assert(err, qt.IsNil)
	rf.native.Release(-1)
	c.Assert(rf.native.Pending(), qt.Equals, 0)
	rf.frame(c)
}

func TestRendererOutOfDate(t *testing.T) {
	c := qt.New(t)
	rf, done := newRenderer(c, 0)
	defer done()

	rf.native.AcquireResults(device.ErrorOutOfDate)
	rf.r.Advance()
	f, err := rf.r.Begin()
	c.Assert(err, qt.IsNil)
	c.Assert(f.Status, qt.Equals, core.PresentOutOfDate)
	c.Assert(f.Cmd(renderer.PhaseGraphics), qt.IsNil)
	f.Skip(renderer.PhaseGraphics)
	res, err := rf.r.End(f)
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, core.PresentOutOfDate)
	c.Assert(len(rf.native.Submits()), qt.Equals, 0)
	c.Assert(len(rf.native.Presents()), qt.Equals, 0)

	old := rf.r.Target()
	c.Assert(rf.r.Rebuild(device.Extent2D{Width: 128, Height: 96}), qt.IsNil)
	c.Assert(rf.r.Target(), qt.Not(qt.Equals), old)
	c.Assert(rf.r.Target().Extent, qt.Equals, device.Extent2D{Width: 128, Height: 96})
	c.Assert(rf.r.Stage(renderer.PhaseGraphics).Target(), qt.Equals, rf.r.Target())
	c.Assert(rf.frame(c), qt.Equals, core.PresentSuccess)

	rf.native.AcquireResults(device.Suboptimal)
	c.Assert(rf.frame(c), qt.Equals, core.PresentSuboptimal)
	rf.native.PresentResults(device.ErrorOutOfDate)
	c.Assert(rf.frame(c), qt.Equals, core.PresentOutOfDate)
	c.Assert(rf.frame(c), qt.Equals, core.PresentSuccess)
}

func TestRendererWithoutSwapchain(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	sc, err := dev.NewSwapchain(core.SwapchainConfig{MinImageCount: 2, Extent: device.Extent2D{Width: 32, Height: 32}})
	c.Assert(err, qt.IsNil)
	target, err := dev.NewSwapchainTarget(sc)
	c.Assert(err, qt.IsNil)

	r, err := renderer.New(dev, renderer.Configuration{
		Phases: []renderer.PhaseConfiguration{{Phase: renderer.PhaseGraphics, Queue: q}},
		Target: target,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(r.Target(), qt.Equals, target)

	for i := 0; i < 3; i++ {
		r.Advance()
		f, err := r.Begin()
		c.Assert(err, qt.IsNil)
		c.Assert(f.Framebuffer(), qt.Equals, target.Framebuffers[0])
		cmd := f.Cmd(renderer.PhaseGraphics)
		c.Assert(cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, colour), qt.IsNil)
		res, err := r.End(f)
		c.Assert(err, qt.IsNil)
		c.Assert(res, qt.Equals, core.PresentSuccess)
	}
	c.Assert(len(native.Submits()), qt.Equals, 3)
	c.Assert(len(native.Presents()), qt.Equals, 0)
	c.Assert(r.Timeline(renderer.PhaseGraphics, 0).Value(), qt.Equals, uint64(2))

	err = r.Rebuild(device.Extent2D{Width: 64, Height: 64})
	c.Assert(errors.Is(err, core.ErrUnsupported), qt.Equals, true)

	// the target belongs to the caller
	c.Assert(r.Destroy(), qt.IsNil)
	c.Assert(len(target.Framebuffers), qt.Equals, 2)
	target.Destroy()
	sc.Destroy()
	assertClean(c, native)
}

func BenchmarkFrame(b *testing.B) {
	c := qt.New(b)
	rf, done := newRenderer(c, 0)
	defer done()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rf.frame(c)
	}
}
