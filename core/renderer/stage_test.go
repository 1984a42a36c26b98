// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer_test

import (
	"errors"
	"io/ioutil"
	"testing"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/device/devicetest"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
)

func newDevice(c *qt.C) (*core.Device, *devicetest.Device) {
	l := logrus.New()
	l.SetOutput(ioutil.Discard)
	native := devicetest.New()
	dev, err := core.NewDevice(native, core.Configuration{Logger: l})
	c.Assert(err, qt.IsNil)
	return dev, native
}

func assertClean(c *qt.C, native *devicetest.Device) {
	c.Assert(native.Validation(), qt.DeepEquals, []string(nil))
	c.Assert(native.Live(), qt.DeepEquals, map[string]int{})
}

func isInvariant(err error) bool {
	return errors.Is(err, core.ErrInvariant)
}

func TestCycle(t *testing.T) {
	c := qt.New(t)

	var cycle renderer.Cycle
	want := []renderer.Cycle{
		{Index: 1, SubIndex: 1},
		{Index: 2, SubIndex: 0},
		{Index: 3, SubIndex: 1},
		{Index: 4, SubIndex: 0},
	}
	for _, w := range want {
		cycle = cycle.Next()
		c.Assert(cycle, qt.Equals, w)
	}
	c.Assert(cycle.String(), qt.Equals, "4/0")
	c.Assert(renderer.Cycle{Index: 7, SubIndex: 1}.String(), qt.Equals, "7/1")
	c.Assert(renderer.PhaseTransfer.String(), qt.Equals, "transfer")
	c.Assert(renderer.Phase(5).String(), qt.Equals, "phase(5)")
}

func BenchmarkCycle(b *testing.B) {
	var cycle renderer.Cycle
	for i := 0; i < b.N; i++ {
		cycle = cycle.Next()
	}
	if cycle.Index != uint64(b.N) {
		b.Fatalf("cycle %s after %d frames", cycle, b.N)
	}
}

func TestStageConfigGroups(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	a, err := dev.NewSemaphore()
	c.Assert(err, qt.IsNil)
	defer a.Destroy()

	var cfg renderer.StageConfig
	err = cfg.AddSignalGroup([]core.SemaphoreRef{a.Ref()})
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.StageConfig.AddSignalGroup\(\): group of 1 semaphores, frame slots need 2`)

	wait := core.WaitSemaphore{Semaphore: a.Ref(), Stage: device.PipelineStageAllCommands}
	err = cfg.AddWaitGroup([]core.WaitSemaphore{wait, wait, wait})
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.StageConfig.AddWaitGroup\(\): group of 3 semaphores, frame slots need 2`)

	a.Destroy()
	assertClean(c, native)
}

func TestNewStageUnboundQueue(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	_, err := renderer.NewStage(dev, renderer.StageConfig{Name: "copy"})
	c.Assert(err, qt.ErrorMatches, `renderer.NewStage\(copy\): queue is not bound`)
	_, err = renderer.NewStage(dev, renderer.StageConfig{Name: "copy", Queue: &core.Queue{}})
	c.Assert(err, qt.ErrorMatches, `renderer.NewStage\(copy\): queue is not bound`)
	assertClean(c, native)
}

func TestStageSlots(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	tl, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)
	other, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)

	cfg := renderer.StageConfig{Name: "copy", Queue: q, MaxSecondaryBuffers: 1}
	c.Assert(cfg.AddSignalGroup([]core.SemaphoreRef{tl.Ref(), other.Ref()}), qt.IsNil)
	s, err := renderer.NewStage(dev, cfg)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Name(), qt.Equals, "copy")
	c.Assert(s.Queue(), qt.Equals, q)
	c.Assert(s.Pool().Capacity(device.CommandBufferLevelPrimary), qt.Equals, 2)
	c.Assert(s.Pool().Capacity(device.CommandBufferLevelSecondary), qt.Equals, 2)

	_, err = s.Begin(2)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.Begin\(\): frame slot 2 of 2`)
	_, err = s.Secondary(0)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.Secondary\(\): stage copy slot 0 is idle`)
	c.Assert(s.End(0), qt.ErrorMatches, `renderer.Stage.End\(\): stage copy slot 0 is idle`)

	cmd, err := s.Begin(0)
	c.Assert(err, qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferRecording)
	_, err = s.Begin(0)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.Begin\(\): stage copy slot 0 is recording`)
	c.Assert(s.Submit(0), qt.ErrorMatches, `renderer.Stage.Submit\(\): stage copy slot 0 is recording`)

	sec, err := s.Secondary(0)
	c.Assert(err, qt.IsNil)
	c.Assert(sec.Begin(cmd, 0), qt.IsNil)
	c.Assert(sec.End(), qt.IsNil)
	c.Assert(cmd.ExecuteCommands(sec), qt.IsNil)
	c.Assert(s.Pool().CheckedOut(device.CommandBufferLevelSecondary), qt.Equals, 1)

	c.Assert(s.End(0), qt.IsNil)
	_, err = s.Begin(0)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.Begin\(\): stage copy slot 0 is recorded`)
	c.Assert(s.Submit(0), qt.IsNil)
	c.Assert(tl.Value(), qt.Equals, uint64(1))
	si, err := s.SubmitInfo(0)
	c.Assert(err, qt.IsNil)
	c.Assert(si.SignalValues(), qt.DeepEquals, []uint64{1})
	_, err = s.SubmitInfo(2)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.SubmitInfo\(\): frame slot 2 of 2`)

	// the slot's secondaries go back once it records again
	_, err = s.Begin(0)
	c.Assert(err, qt.IsNil)
	c.Assert(s.Pool().CheckedOut(device.CommandBufferLevelSecondary), qt.Equals, 0)
	c.Assert(s.Skip(0), qt.IsNil)
	c.Assert(tl.Value(), qt.Equals, uint64(2))

	// slot 1 is independent of slot 0
	c.Assert(s.Skip(1), qt.IsNil)
	c.Assert(other.Value(), qt.Equals, uint64(1))
	err = s.Skip(1)
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `renderer.Stage.Skip\(\): stage copy slot 1 is submitted`)
	c.Assert(other.Value(), qt.Equals, uint64(1))

	subs := native.Submits()
	c.Assert(len(subs), qt.Equals, 3)
	c.Assert(subs[0].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer{cmd.Handle()})
	c.Assert(subs[1].Submit.CommandBuffers, qt.DeepEquals, []device.CommandBuffer(nil))
	c.Assert(subs[1].Submit.SignalValues, qt.DeepEquals, []uint64{2})

	c.Assert(dev.WaitIdle(), qt.IsNil)
	c.Assert(s.Destroy(), qt.IsNil)
	tl.Destroy()
	other.Destroy()
	assertClean(c, native)
}

func TestStageDiscard(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	tl, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)
	other, err := dev.NewTimelineSemaphore(0)
	c.Assert(err, qt.IsNil)

	cfg := renderer.StageConfig{Name: "copy", Queue: q}
	c.Assert(cfg.AddSignalGroup([]core.SemaphoreRef{tl.Ref(), other.Ref()}), qt.IsNil)
	s, err := renderer.NewStage(dev, cfg)
	c.Assert(err, qt.IsNil)

	c.Assert(s.Discard(0), qt.ErrorMatches, `renderer.Stage.Discard\(\): stage copy slot 0 is idle`)
	c.Assert(s.Discard(2), qt.ErrorMatches, `renderer.Stage.Discard\(\): frame slot 2 of 2`)

	cmd, err := s.Begin(0)
	c.Assert(err, qt.IsNil)
	resets := native.Resets(cmd.Handle())
	c.Assert(s.Discard(0), qt.IsNil)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferInitial)
	c.Assert(native.Resets(cmd.Handle()), qt.Equals, resets+1)
	c.Assert(s.Submit(0), qt.ErrorMatches, `renderer.Stage.Submit\(\): stage copy slot 0 is idle`)

	// a recorded slot is dropped too, and records again afterwards
	_, err = s.Begin(0)
	c.Assert(err, qt.IsNil)
	c.Assert(s.End(0), qt.IsNil)
	c.Assert(s.Discard(0), qt.IsNil)
	_, err = s.Begin(0)
	c.Assert(err, qt.IsNil)
	c.Assert(s.End(0), qt.IsNil)
	c.Assert(s.Submit(0), qt.IsNil)
	c.Assert(tl.Value(), qt.Equals, uint64(1))
	c.Assert(len(native.Submits()), qt.Equals, 1)

	c.Assert(s.Discard(0), qt.ErrorMatches, `renderer.Stage.Discard\(\): stage copy slot 0 is submitted`)

	c.Assert(dev.WaitIdle(), qt.IsNil)
	c.Assert(s.Destroy(), qt.IsNil)
	tl.Destroy()
	other.Destroy()
	assertClean(c, native)
}

func TestStageDestroyError(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	q, err := dev.NewQueue(0, 0)
	c.Assert(err, qt.IsNil)
	s, err := renderer.NewStage(dev, renderer.StageConfig{Name: "copy", Queue: q})
	c.Assert(err, qt.IsNil)

	// the failing reset is reported, every buffer is still freed
	native.Fail("ResetCommandBuffer", device.ErrorOutOfHostMemory)
	c.Assert(s.Destroy(), qt.ErrorMatches, `vk.ResetCommandBuffer\(\): ErrorOutOfHostMemory`)
	assertClean(c, native)
}
