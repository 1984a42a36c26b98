// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"testing"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/device/devicetest"
	qt "github.com/frankban/quicktest"
)

type submitFixture struct {
	dev    *core.Device
	native *devicetest.Device
	queue  *core.Queue
	binary [2]*core.Semaphore
	tl     [2]*core.TimelineSemaphore
}

func newSubmitFixture(c *qt.C) (*submitFixture, func()) {
	dev, native := newDevice(c)
	f := &submitFixture{dev: dev, native: native}
	var err error
	f.queue, err = dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	for i := range f.binary {
		f.binary[i], err = dev.NewSemaphore()
		c.Assert(err, qt.IsNil)
		f.tl[i], err = dev.NewTimelineSemaphore(0)
		c.Assert(err, qt.IsNil)
	}
	return f, func() {
		for i := range f.binary {
			f.binary[i].Destroy()
			f.tl[i].Destroy()
		}
	}
}

func TestSubmitInfoPartition(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)

	b0, _ := dev.NewSemaphore()
	b1, _ := dev.NewSemaphore()
	w0, _ := dev.NewTimelineSemaphore(0)
	w1, _ := dev.NewTimelineSemaphore(0)
	s0, _ := dev.NewTimelineSemaphore(0)
	s1, _ := dev.NewTimelineSemaphore(0)
	for _, ts := range []*core.TimelineSemaphore{w0, w1} {
		c.Assert(ts.Signal(7), qt.IsNil)
	}
	// the binary waits need something to have signaled them
	signal, err := core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{b0.Ref(), b1.Ref()}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(q.Submit(signal), qt.IsNil)

	si, err := core.NewSubmitInfo(nil,
		[]core.WaitSemaphore{
			{Semaphore: b0.Ref(), Stage: device.PipelineStageTransfer},
			{Semaphore: w0.Ref(), Stage: device.PipelineStageVertexShader},
			{Semaphore: b1.Ref(), Stage: device.PipelineStageFragmentShader},
			{Semaphore: w1.Ref(), Stage: device.PipelineStageComputeShader},
		},
		[]core.SemaphoreRef{b0.Ref(), s0.Ref(), b1.Ref(), s1.Ref()},
		nil)
	c.Assert(err, qt.IsNil)
	c.Assert(q.Submit(si), qt.IsNil)

	c.Assert(si.WaitValues(), qt.DeepEquals, []uint64{7, 7})
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64{1, 1})

	submits := native.Submits()
	got := submits[len(submits)-1].Submit
	c.Assert(got.WaitSemaphores, qt.DeepEquals, []device.Semaphore{w0.Handle(), w1.Handle(), b0.Handle(), b1.Handle()})
	c.Assert(got.WaitStages, qt.DeepEquals, []device.PipelineStageFlags{
		device.PipelineStageVertexShader, device.PipelineStageComputeShader,
		device.PipelineStageTransfer, device.PipelineStageFragmentShader,
	})
	c.Assert(got.WaitValues, qt.DeepEquals, []uint64{7, 7, 0, 0})
	c.Assert(got.SignalSemaphores, qt.DeepEquals, []device.Semaphore{s0.Handle(), s1.Handle(), b0.Handle(), b1.Handle()})
	c.Assert(got.SignalValues, qt.DeepEquals, []uint64{1, 1, 0, 0})
	assertClean(c, native)
}

func TestSubmitInfoBinaryOnly(t *testing.T) {
	c := qt.New(t)
	f, done := newSubmitFixture(c)
	defer done()

	si, err := core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{f.binary[0].Ref()}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(si.WaitValues(), qt.DeepEquals, []uint64(nil))
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64(nil))
	c.Assert(f.queue.Submit(si), qt.IsNil)

	got := f.native.Submits()[0].Submit
	c.Assert(got.WaitValues, qt.DeepEquals, []uint64(nil))
	c.Assert(got.SignalValues, qt.DeepEquals, []uint64(nil))
	c.Assert(f.native.Signaled(f.binary[0].Handle()), qt.Equals, true)
	assertClean(c, f.native)
}

func TestSubmitInfoNilSemaphore(t *testing.T) {
	c := qt.New(t)
	f, done := newSubmitFixture(c)
	defer done()

	_, err := core.NewSubmitInfo(nil, []core.WaitSemaphore{{Semaphore: f.tl[0].Ref()}, {}}, nil, nil)
	c.Assert(err, qt.ErrorMatches, `core.NewSubmitInfo\(\): wait semaphore 1 is nil`)
	_, err = core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{{}}, nil)
	c.Assert(err, qt.ErrorMatches, `core.NewSubmitInfo\(\): signal semaphore 0 is nil`)
	_, err = core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{core.Timeline(nil)}, nil)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestSkipMatchesSubmit(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.IsNil)
	cmd, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)
	ts, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)

	si, err := core.NewSubmitInfo([]device.CommandBuffer{cmd.Handle()}, nil, []core.SemaphoreRef{ts.Ref()}, nil)
	c.Assert(err, qt.IsNil)

	c.Assert(cmd.Begin(device.CommandBufferUsageOneTimeSubmit), qt.IsNil)
	c.Assert(cmd.End(), qt.IsNil)
	c.Assert(q.Submit(si), qt.IsNil)
	c.Assert(q.Skip(si), qt.IsNil)

	submits := native.Submits()
	c.Assert(len(submits), qt.Equals, 2)
	submitted, skipped := submits[0].Submit, submits[1].Submit
	c.Assert(submitted.CommandBuffers, qt.DeepEquals, []device.CommandBuffer{cmd.Handle()})
	c.Assert(skipped.CommandBuffers, qt.DeepEquals, []device.CommandBuffer(nil))
	c.Assert(skipped.SignalSemaphores, qt.DeepEquals, submitted.SignalSemaphores)
	c.Assert(skipped.SignalValues, qt.DeepEquals, []uint64{2})

	v, err := ts.GPUValue()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(2))

	c.Assert(cmd.Release(), qt.IsNil)
	c.Assert(pool.Destroy(), qt.IsNil)
	ts.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func TestConstSubmit(t *testing.T) {
	c := qt.New(t)
	f, done := newSubmitFixture(c)
	defer done()

	si, err := core.NewSubmitInfo(nil,
		[]core.WaitSemaphore{{Semaphore: f.tl[0].Ref(), Stage: device.PipelineStageAllCommands}},
		[]core.SemaphoreRef{f.tl[1].Ref()}, nil)
	c.Assert(err, qt.IsNil)

	si.Next()
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64{1})
	c.Assert(f.queue.ConstSubmit(si), qt.IsNil)
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64{1})
	c.Assert(f.tl[1].Value(), qt.Equals, uint64(1))

	c.Assert(f.queue.Skip(si), qt.IsNil)
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64{2})
	si.Next()
	c.Assert(f.queue.ConstSkip(si), qt.IsNil)
	c.Assert(f.tl[1].Value(), qt.Equals, uint64(3))
	v, err := f.tl[1].GPUValue()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(3))
}

func TestSetCommandBuffers(t *testing.T) {
	c := qt.New(t)
	f, done := newSubmitFixture(c)
	defer done()

	buffers := []device.CommandBuffer{1}
	si, err := core.NewSubmitInfo(buffers, nil, []core.SemaphoreRef{f.binary[0].Ref()}, nil)
	c.Assert(err, qt.IsNil)
	si.SetCommandBuffers(nil)
	// the buffers are copied, changing the caller's slice has no effect
	buffers[0] = 2
	c.Assert(f.queue.Submit(si), qt.IsNil)
	c.Assert(f.native.Submits()[0].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer(nil))
	assertClean(c, f.native)
}

func TestPresentInfo(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	sc, err := dev.NewSwapchain(core.SwapchainConfig{MinImageCount: 2, Extent: device.Extent2D{Width: 64, Height: 64}})
	c.Assert(err, qt.IsNil)
	ready, err := dev.NewSemaphore()
	c.Assert(err, qt.IsNil)
	ts, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)

	_, err = core.NewPresentInfo(sc, []core.SemaphoreRef{ready.Ref(), ts.Ref()})
	c.Assert(errors.Is(err, core.ErrTimelineInPresent), qt.Equals, true)
	_, err = core.NewPresentInfo(nil, nil)
	c.Assert(err, qt.ErrorMatches, `core.NewPresentInfo\(\): nil swapchain`)
	_, err = core.NewPresentInfo(sc, []core.SemaphoreRef{{}})
	c.Assert(err, qt.Not(qt.IsNil))

	pi, err := core.NewPresentInfo(sc, []core.SemaphoreRef{ready.Ref()})
	c.Assert(err, qt.IsNil)
	c.Assert(pi.Swapchain(), qt.Equals, sc)

	index, res, err := sc.AcquireNextImage(ready, device.WaitForever)
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, core.PresentSuccess)
	res, err = q.Present(index, pi)
	c.Assert(err, qt.IsNil)
	c.Assert(res, qt.Equals, core.PresentSuccess)

	presents := native.Presents()
	c.Assert(len(presents), qt.Equals, 1)
	c.Assert(presents[0].Swapchains, qt.DeepEquals, []device.Swapchain{sc.Handle()})
	c.Assert(presents[0].ImageIndices, qt.DeepEquals, []uint32{index})
	c.Assert(presents[0].WaitSemaphores, qt.DeepEquals, []device.Semaphore{ready.Handle()})

	for _, tc := range []struct {
		native device.Result
		want   core.PresentResult
	}{
		{device.Suboptimal, core.PresentSuboptimal},
		{device.ErrorOutOfDate, core.PresentOutOfDate},
	} {
		native.PresentResults(tc.native)
		_, _, err := sc.AcquireNextImage(ready, device.WaitForever)
		c.Assert(err, qt.IsNil)
		res, err := q.Present(index, pi)
		c.Assert(err, qt.IsNil)
		c.Assert(res, qt.Equals, tc.want)
	}

	native.PresentResults(device.ErrorSurfaceLost)
	_, _, err = sc.AcquireNextImage(ready, device.WaitForever)
	c.Assert(err, qt.IsNil)
	_, err = q.Present(index, pi)
	c.Assert(err, qt.ErrorMatches, `vk.QueuePresent\(\): ErrorSurfaceLost`)

	ready.Destroy()
	ts.Destroy()
	sc.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func BenchmarkSubmitInfoNext(b *testing.B) {
	c := qt.New(b)
	f, done := newSubmitFixture(c)
	defer done()

	si, err := core.NewSubmitInfo(nil,
		[]core.WaitSemaphore{
			{Semaphore: f.binary[0].Ref(), Stage: device.PipelineStageTransfer},
			{Semaphore: f.tl[0].Ref(), Stage: device.PipelineStageAllCommands},
		},
		[]core.SemaphoreRef{f.binary[1].Ref(), f.tl[1].Ref()},
		nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		si.Next()
	}
	b.StopTimer()
	if v := f.tl[1].Value(); v != uint64(b.N) {
		b.Fatalf("timeline at %d after %d calls", v, b.N)
	}
}
