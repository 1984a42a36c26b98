// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"fmt"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

type slotState int

const (
	slotIdle slotState = iota
	slotRecording
	slotRecorded
	slotSubmitted
)

func (s slotState) String() string {
	switch s {
	case slotRecording:
		return "recording"
	case slotRecorded:
		return "recorded"
	case slotSubmitted:
		return "submitted"
	}
	return "idle"
}

type slot struct {
	cmd         *core.PrimaryCmdBuffer
	submit      *core.SubmitInfo
	state       slotState
	secondaries []*core.SecondaryCmdBuffer
}

// Stage submits one primary command buffer per frame to a queue. Each
// frame slot has its own buffer and semaphores.
type Stage struct {
	dev    *core.Device
	log    logrus.FieldLogger
	name   string
	queue  *core.Queue
	target *core.RenderTarget
	pool   *core.CmdPool
	slots  [GroupSize]slot
}

// NewStage creates a stage and its command pool.
func NewStage(dev *core.Device, cfg StageConfig) (*Stage, error) {
	if cfg.Queue == nil || !cfg.Queue.Created() {
		return nil, fmt.Errorf("renderer.NewStage(%s): queue is not bound", cfg.Name)
	}
	pool, err := dev.NewCmdPool(core.CmdPoolConfig{
		Family:              cfg.Queue.Family(),
		MaxPrimaryBuffers:   GroupSize,
		MaxSecondaryBuffers: GroupSize * cfg.MaxSecondaryBuffers,
	})
	if err != nil {
		return nil, err
	}
	s := &Stage{
		dev:    dev,
		log:    dev.Logger().WithField("stage", cfg.Name),
		name:   cfg.Name,
		queue:  cfg.Queue,
		target: cfg.Target,
		pool:   pool,
	}
	for i := range s.slots {
		cmd, err := pool.NewPrimary()
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.slots[i].cmd = cmd
		si, err := core.NewSubmitInfo([]device.CommandBuffer{cmd.Handle()}, cfg.slotWaits(i), cfg.slotSignals(i), nil)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.slots[i].submit = si
	}
	s.log.WithFields(logrus.Fields{
		"family":    cfg.Queue.Family(),
		"waits":     len(cfg.waits) / GroupSize,
		"signals":   len(cfg.signals) / GroupSize,
		"secondary": cfg.MaxSecondaryBuffers,
	}).Debug("stage created")
	return s, nil
}

// Name returns the stage name.
func (s *Stage) Name() string {
	return s.name
}

// Queue returns the queue the stage submits to.
func (s *Stage) Queue() *core.Queue {
	return s.queue
}

// Target returns the render target, nil for stages without one.
func (s *Stage) Target() *core.RenderTarget {
	return s.target
}

// SetTarget replaces the render target.
func (s *Stage) SetTarget(t *core.RenderTarget) {
	s.target = t
}

// Pool returns the command pool of the stage.
func (s *Stage) Pool() *core.CmdPool {
	return s.pool
}

// SubmitInfo returns the submit description of frame slot subIndex.
func (s *Stage) SubmitInfo(subIndex int) (*core.SubmitInfo, error) {
	sl, err := s.slot("renderer.Stage.SubmitInfo", subIndex)
	if err != nil {
		return nil, err
	}
	return sl.submit, nil
}

func (s *Stage) slot(op string, subIndex int) (*slot, error) {
	if subIndex < 0 || subIndex >= GroupSize {
		return nil, &core.InvariantError{Op: op, Reason: fmt.Sprintf("frame slot %d of %d", subIndex, GroupSize)}
	}
	return &s.slots[subIndex], nil
}

func (s *Stage) invariant(op string, subIndex int, state slotState) error {
	err := &core.InvariantError{Op: op, Reason: fmt.Sprintf("stage %s slot %d is %s", s.name, subIndex, state)}
	s.log.WithField("op", op).Error(err.Reason)
	return err
}

// Begin starts recording the primary buffer of frame slot subIndex. The
// slot's previous submission must have finished executing, and its
// secondary buffers go back to the pool.
func (s *Stage) Begin(subIndex int) (*core.PrimaryCmdBuffer, error) {
	const op = "renderer.Stage.Begin"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return nil, err
	}
	if sl.state == slotRecording || sl.state == slotRecorded {
		return nil, s.invariant(op, subIndex, sl.state)
	}
	for _, sec := range sl.secondaries {
		if err := sec.Release(); err != nil {
			return nil, err
		}
	}
	sl.secondaries = sl.secondaries[:0]
	if err := sl.cmd.Begin(device.CommandBufferUsageOneTimeSubmit); err != nil {
		return nil, err
	}
	sl.state = slotRecording
	return sl.cmd, nil
}

// Secondary checks out a secondary buffer for frame slot subIndex. It is
// returned to the pool when the slot begins recording again.
func (s *Stage) Secondary(subIndex int) (*core.SecondaryCmdBuffer, error) {
	const op = "renderer.Stage.Secondary"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return nil, err
	}
	if sl.state != slotRecording {
		return nil, s.invariant(op, subIndex, sl.state)
	}
	sec, err := s.pool.NewSecondary()
	if err != nil {
		return nil, err
	}
	sl.secondaries = append(sl.secondaries, sec)
	return sec, nil
}

// End ends recording of frame slot subIndex.
func (s *Stage) End(subIndex int) error {
	const op = "renderer.Stage.End"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return err
	}
	if sl.state != slotRecording {
		return s.invariant(op, subIndex, sl.state)
	}
	if sl.cmd.InRenderPass() {
		if err := sl.cmd.EndRenderPass(); err != nil {
			return err
		}
	}
	if err := sl.cmd.End(); err != nil {
		return err
	}
	sl.state = slotRecorded
	return nil
}

// Submit submits the recorded buffer of frame slot subIndex.
func (s *Stage) Submit(subIndex int) error {
	const op = "renderer.Stage.Submit"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return err
	}
	if sl.state != slotRecorded {
		return s.invariant(op, subIndex, sl.state)
	}
	if err := s.queue.Submit(sl.submit); err != nil {
		return err
	}
	sl.state = slotSubmitted
	return nil
}

// Skip submits the semaphores of frame slot subIndex without its
// buffer, so that waits on the slot behave as if work was submitted.
// Recording in progress is ended and discarded.
func (s *Stage) Skip(subIndex int) error {
	const op = "renderer.Stage.Skip"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return err
	}
	switch sl.state {
	case slotSubmitted:
		return s.invariant(op, subIndex, sl.state)
	case slotRecording:
		if sl.cmd.InRenderPass() {
			if err := sl.cmd.EndRenderPass(); err != nil {
				return err
			}
		}
		if err := sl.cmd.End(); err != nil {
			return err
		}
	}
	if err := s.queue.Skip(sl.submit); err != nil {
		return err
	}
	sl.state = slotSubmitted
	return nil
}

// Discard drops whatever frame slot subIndex recorded and leaves it
// idle, without submitting anything.
func (s *Stage) Discard(subIndex int) error {
	const op = "renderer.Stage.Discard"
	sl, err := s.slot(op, subIndex)
	if err != nil {
		return err
	}
	if sl.state != slotRecording && sl.state != slotRecorded {
		return s.invariant(op, subIndex, sl.state)
	}
	if err := sl.cmd.Reset(); err != nil {
		return err
	}
	sl.state = slotIdle
	return nil
}

// Destroy returns every buffer and destroys the pool. The device must
// have finished executing the stage's submissions. The first error is
// returned, after everything was released.
func (s *Stage) Destroy() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for i := range s.slots {
		sl := &s.slots[i]
		for _, sec := range sl.secondaries {
			keep(sec.Release())
		}
		sl.secondaries = nil
		if sl.cmd != nil && sl.cmd.State() != core.CmdBufferEmpty {
			keep(sl.cmd.Release())
		}
		sl.state = slotIdle
	}
	keep(s.pool.Destroy())
	return first
}
