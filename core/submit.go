// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/devblok/vkframe/device"
)

// SubmitInfo is a reusable description of a queue submission. Timeline
// semaphores come first in the wait and signal lists, followed by the
// binary ones, and their values are kept up to date by Next.
type SubmitInfo struct {
	waits   []*TimelineSemaphore
	signals []*TimelineSemaphore

	// prefixes of submit.WaitValues and submit.SignalValues
	waitValues   []uint64
	signalValues []uint64

	fence  *Fence
	submit device.Submit
	skip   device.Submit
}

// NewSubmitInfo describes a submission of buffers that waits on waits,
// signals signals and, when fence is not nil, signals fence.
func NewSubmitInfo(buffers []device.CommandBuffer, waits []WaitSemaphore, signals []SemaphoreRef, fence *Fence) (*SubmitInfo, error) {
	si := &SubmitInfo{fence: fence}
	if err := si.initWait(waits); err != nil {
		return nil, err
	}
	if err := si.initSignal(signals); err != nil {
		return nil, err
	}
	if err := si.validate(); err != nil {
		return nil, err
	}
	si.SetCommandBuffers(buffers)
	return si, nil
}

func (si *SubmitInfo) initWait(waits []WaitSemaphore) error {
	var binary []WaitSemaphore
	for i, w := range waits {
		switch w.Semaphore.Kind() {
		case TimelineKind:
			si.waits = append(si.waits, w.Semaphore.Timeline())
			si.submit.WaitSemaphores = append(si.submit.WaitSemaphores, w.Semaphore.Handle())
			si.submit.WaitStages = append(si.submit.WaitStages, w.Stage)
		case BinaryKind:
			binary = append(binary, w)
		default:
			return fmt.Errorf("core.NewSubmitInfo(): wait semaphore %d is nil", i)
		}
	}
	for _, w := range binary {
		si.submit.WaitSemaphores = append(si.submit.WaitSemaphores, w.Semaphore.Handle())
		si.submit.WaitStages = append(si.submit.WaitStages, w.Stage)
	}
	if len(si.waits) > 0 {
		si.submit.WaitValues = make([]uint64, len(si.submit.WaitSemaphores))
		si.waitValues = si.submit.WaitValues[:len(si.waits)]
	}
	return nil
}

func (si *SubmitInfo) initSignal(signals []SemaphoreRef) error {
	var binary []device.Semaphore
	for i, s := range signals {
		switch s.Kind() {
		case TimelineKind:
			si.signals = append(si.signals, s.Timeline())
			si.submit.SignalSemaphores = append(si.submit.SignalSemaphores, s.Handle())
		case BinaryKind:
			binary = append(binary, s.Handle())
		default:
			return fmt.Errorf("core.NewSubmitInfo(): signal semaphore %d is nil", i)
		}
	}
	si.submit.SignalSemaphores = append(si.submit.SignalSemaphores, binary...)
	if len(si.signals) > 0 {
		si.submit.SignalValues = make([]uint64, len(si.submit.SignalSemaphores))
		si.signalValues = si.submit.SignalValues[:len(si.signals)]
	}
	return nil
}

// validate checks that every timeline semaphore has exactly one value.
func (si *SubmitInfo) validate() error {
	if len(si.waitValues) != len(si.waits) {
		return &InvariantError{
			Op:     "core.NewSubmitInfo",
			Reason: fmt.Sprintf("%d wait values for %d timeline semaphores", len(si.waitValues), len(si.waits)),
		}
	}
	if len(si.signalValues) != len(si.signals) {
		return &InvariantError{
			Op:     "core.NewSubmitInfo",
			Reason: fmt.Sprintf("%d signal values for %d timeline semaphores", len(si.signalValues), len(si.signals)),
		}
	}
	return nil
}

// SetCommandBuffers replaces the command buffers submitted. The skip
// description never carries any.
func (si *SubmitInfo) SetCommandBuffers(buffers []device.CommandBuffer) {
	si.submit.CommandBuffers = append([]device.CommandBuffer(nil), buffers...)
	si.skip = si.submit
	si.skip.CommandBuffers = nil
}

// Next brings the submission up to date with the timeline semaphores:
// every wait expects the current value and every signal gets a new one.
// It must be called exactly once before each submission that uses si.
func (si *SubmitInfo) Next() {
	for i, t := range si.waits {
		si.waitValues[i] = t.Value()
	}
	for i, t := range si.signals {
		si.signalValues[i] = t.Next()
	}
}

// rollback undoes the signal values taken by the last Next, for a
// submission the device never accepted.
func (si *SubmitInfo) rollback() {
	for i, t := range si.signals {
		t.value--
		si.signalValues[i] = t.value
	}
}

// WaitValues returns the values the timeline waits expect.
func (si *SubmitInfo) WaitValues() []uint64 {
	return append([]uint64(nil), si.waitValues...)
}

// SignalValues returns the values the timeline signals set.
func (si *SubmitInfo) SignalValues() []uint64 {
	return append([]uint64(nil), si.signalValues...)
}

// Fence returns the fence signaled by the submission, if any.
func (si *SubmitInfo) Fence() *Fence {
	return si.fence
}

func (si *SubmitInfo) fenceHandle() device.Fence {
	if si.fence == nil {
		return 0
	}
	return si.fence.handle
}

// PresentInfo is a reusable description of a present of one swapchain.
type PresentInfo struct {
	swapchain *Swapchain
	present   device.Present
}

// NewPresentInfo describes presenting swapchain once waits are
// signaled. Present cannot wait on timeline semaphores.
func NewPresentInfo(swapchain *Swapchain, waits []SemaphoreRef) (*PresentInfo, error) {
	if swapchain == nil {
		return nil, fmt.Errorf("core.NewPresentInfo(): nil swapchain")
	}
	pi := &PresentInfo{
		swapchain: swapchain,
		present: device.Present{
			Swapchains:   make([]device.Swapchain, 1),
			ImageIndices: make([]uint32, 1),
		},
	}
	for i, w := range waits {
		switch w.Kind() {
		case BinaryKind:
			pi.present.WaitSemaphores = append(pi.present.WaitSemaphores, w.Handle())
		case TimelineKind:
			return nil, fmt.Errorf("core.NewPresentInfo(): wait semaphore %d: %w", i, ErrTimelineInPresent)
		default:
			return nil, fmt.Errorf("core.NewPresentInfo(): wait semaphore %d is nil", i)
		}
	}
	return pi, nil
}

// Swapchain returns the presented swapchain.
func (pi *PresentInfo) Swapchain() *Swapchain {
	return pi.swapchain
}
