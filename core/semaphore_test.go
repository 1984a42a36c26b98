// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	qt "github.com/frankban/quicktest"
)

func TestSemaphoreRef(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	var zero core.SemaphoreRef
	c.Assert(zero.Kind(), qt.Equals, core.SemaphoreKind(0))
	c.Assert(zero.Handle(), qt.Equals, device.Semaphore(0))
	c.Assert(core.Binary(nil).Kind(), qt.Equals, core.SemaphoreKind(0))

	s, err := dev.NewSemaphore()
	c.Assert(err, qt.IsNil)
	ts, err := dev.NewTimelineSemaphore(3)
	c.Assert(err, qt.IsNil)
	c.Assert(s.ID(), qt.Not(qt.Equals), ts.ID())

	b := s.Ref()
	c.Assert(b.Kind(), qt.Equals, core.BinaryKind)
	c.Assert(b.Binary(), qt.Equals, s)
	c.Assert(b.Timeline() == nil, qt.Equals, true)
	c.Assert(b.Handle(), qt.Equals, s.Handle())

	tl := ts.Ref()
	c.Assert(tl.Kind(), qt.Equals, core.TimelineKind)
	c.Assert(tl.Timeline(), qt.Equals, ts)
	c.Assert(tl.Binary() == nil, qt.Equals, true)
	c.Assert(tl.Handle(), qt.Equals, ts.Handle())

	s.Destroy()
	s.Destroy()
	ts.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func TestTimelineSemaphoreHost(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	ts, err := dev.NewTimelineSemaphore(2)
	c.Assert(err, qt.IsNil)
	c.Assert(ts.Value(), qt.Equals, uint64(2))

	v, err := ts.GPUValue()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(2))

	c.Assert(ts.Signal(5), qt.IsNil)
	c.Assert(ts.Value(), qt.Equals, uint64(5))
	v, err = ts.GPUValue()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(5))

	c.Assert(isInvariant(ts.Signal(5)), qt.Equals, true)
	c.Assert(isInvariant(ts.Signal(4)), qt.Equals, true)
	c.Assert(isInvariant(ts.Wait(6, 0)), qt.Equals, true)
	c.Assert(ts.Wait(5, 0), qt.IsNil)
	c.Assert(ts.WaitCurrent(device.WaitForever), qt.IsNil)

	ts.Destroy()
	_, err = ts.GPUValue()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(isInvariant(ts.Signal(10)), qt.Equals, true)
	c.Assert(isInvariant(ts.WaitCurrent(0)), qt.Equals, true)
	assertClean(c, native)
}

func TestTimelineSemaphoreMonotonic(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	first, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)
	second, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)

	produce, err := core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{first.Ref()}, nil)
	c.Assert(err, qt.IsNil)
	consume, err := core.NewSubmitInfo(nil,
		[]core.WaitSemaphore{{Semaphore: first.Ref(), Stage: device.PipelineStageAllCommands}},
		[]core.SemaphoreRef{second.Ref()}, nil)
	c.Assert(err, qt.IsNil)

	for i := uint64(1); i <= 4; i++ {
		c.Assert(q.Submit(produce), qt.IsNil)
		c.Assert(produce.SignalValues(), qt.DeepEquals, []uint64{i})
		c.Assert(q.Submit(consume), qt.IsNil)
		c.Assert(consume.WaitValues(), qt.DeepEquals, []uint64{i})
		c.Assert(consume.SignalValues(), qt.DeepEquals, []uint64{i})
	}
	for _, ts := range []*core.TimelineSemaphore{first, second} {
		v, err := ts.GPUValue()
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, uint64(4))
		c.Assert(ts.Value(), qt.Equals, uint64(4))
	}

	var last uint64
	for _, s := range native.Submits() {
		if len(s.Submit.SignalSemaphores) == 0 || s.Submit.SignalSemaphores[0] != second.Handle() {
			continue
		}
		c.Assert(s.Submit.SignalValues[0] > last, qt.Equals, true)
		last = s.Submit.SignalValues[0]
	}
	first.Destroy()
	second.Destroy()
	assertClean(c, native)
}

func TestTimelineSemaphoreTimeout(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	ts, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)
	si, err := core.NewSubmitInfo(nil, nil, []core.SemaphoreRef{ts.Ref()}, nil)
	c.Assert(err, qt.IsNil)

	native.Hold()
	c.Assert(q.Submit(si), qt.IsNil)
	err = ts.WaitCurrent(10 * time.Millisecond)
	c.Assert(errors.Is(err, core.ErrTimeout), qt.Equals, true)

	done := make(chan error, 1)
	go func() {
		done <- ts.WaitCurrent(device.WaitForever)
	}()
	native.Release(-1)
	c.Assert(<-done, qt.IsNil)
	ts.Destroy()
	assertClean(c, native)
}

func TestFence(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	f, err := dev.NewFence(true)
	c.Assert(err, qt.IsNil)
	signaled, err := f.Signaled()
	c.Assert(err, qt.IsNil)
	c.Assert(signaled, qt.Equals, true)
	c.Assert(f.Wait(0), qt.IsNil)

	c.Assert(f.Reset(), qt.IsNil)
	signaled, err = f.Signaled()
	c.Assert(err, qt.IsNil)
	c.Assert(signaled, qt.Equals, false)
	c.Assert(errors.Is(f.Wait(0), core.ErrTimeout), qt.Equals, true)

	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	si, err := core.NewSubmitInfo(nil, nil, nil, f)
	c.Assert(err, qt.IsNil)
	c.Assert(si.Fence(), qt.Equals, f)
	c.Assert(q.Submit(si), qt.IsNil)
	c.Assert(f.Wait(device.WaitForever), qt.IsNil)

	f.Destroy()
	c.Assert(isInvariant(f.Wait(0)), qt.Equals, true)
	assertClean(c, native)
	assertReleased(c, native)
}

func TestSemaphoreCreateFailure(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)
	native.Fail("CreateTimelineSemaphore", device.ErrorOutOfHostMemory)
	_, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.ErrorMatches, `vk.CreateSemaphore\(\): ErrorOutOfHostMemory`)
	native.Fail("CreateSemaphore", device.ErrorOutOfDeviceMemory)
	_, err = dev.NewSemaphore()
	c.Assert(err, qt.Not(qt.IsNil))
	native.Fail("CreateFence", device.ErrorOutOfDeviceMemory)
	_, err = dev.NewFence(false)
	c.Assert(err, qt.Not(qt.IsNil))
	assertReleased(c, native)
}
