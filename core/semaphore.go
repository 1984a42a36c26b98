// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"time"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// Semaphore is a binary semaphore.
type Semaphore struct {
	noCopy noCopy

	dev    *Device
	id     ID
	handle device.Semaphore
}

// NewSemaphore creates a binary semaphore.
func (d *Device) NewSemaphore() (*Semaphore, error) {
	handle, r := d.native.CreateSemaphore()
	if err := device.Check("vk.CreateSemaphore", r); err != nil {
		return nil, err
	}
	s := &Semaphore{dev: d, id: d.NextID(), handle: handle}
	d.log.WithFields(logrus.Fields{"id": s.id, "kind": "semaphore"}).Debug("created")
	return s, nil
}

// ID returns the object ID.
func (s *Semaphore) ID() ID {
	return s.id
}

// Handle returns the native semaphore.
func (s *Semaphore) Handle() device.Semaphore {
	return s.handle
}

// Ref returns a reference to s for submit and present descriptions.
func (s *Semaphore) Ref() SemaphoreRef {
	return Binary(s)
}

// Destroy destroys the native semaphore. It must not be in use.
func (s *Semaphore) Destroy() {
	if s == nil || s.handle == 0 {
		return
	}
	s.dev.native.DestroySemaphore(s.handle)
	s.handle = 0
}

// TimelineSemaphore is a semaphore with a monotonically increasing
// counter. Value is what the CPU expects the counter to reach once
// everything submitted so far has executed, GPUValue is what it is now.
type TimelineSemaphore struct {
	noCopy noCopy

	dev    *Device
	id     ID
	handle device.Semaphore
	value  uint64
}

// NewTimelineSemaphore creates a timeline semaphore starting at initial.
func (d *Device) NewTimelineSemaphore(initial uint64) (*TimelineSemaphore, error) {
	handle, r := d.native.CreateTimelineSemaphore(initial)
	if err := device.Check("vk.CreateSemaphore", r); err != nil {
		return nil, err
	}
	t := &TimelineSemaphore{dev: d, id: d.NextID(), handle: handle, value: initial}
	d.log.WithFields(logrus.Fields{"id": t.id, "kind": "timeline semaphore", "initial": initial}).Debug("created")
	return t, nil
}

// ID returns the object ID.
func (t *TimelineSemaphore) ID() ID {
	return t.id
}

// Handle returns the native semaphore.
func (t *TimelineSemaphore) Handle() device.Semaphore {
	return t.handle
}

// Ref returns a reference to t for submit descriptions.
func (t *TimelineSemaphore) Ref() SemaphoreRef {
	return Timeline(t)
}

// Value returns the value the counter reaches once the last signal
// handed out by Next executes.
func (t *TimelineSemaphore) Value() uint64 {
	return t.value
}

// Next increments and returns the expected value. Call it exactly once
// per submission that signals t.
func (t *TimelineSemaphore) Next() uint64 {
	t.value++
	return t.value
}

// GPUValue queries the current counter value.
func (t *TimelineSemaphore) GPUValue() (uint64, error) {
	if t.handle == 0 {
		return 0, t.dev.invariant("core.TimelineSemaphore.GPUValue", "semaphore %d is destroyed", t.id)
	}
	v, r := t.dev.native.SemaphoreCounterValue(t.handle)
	if err := device.Check("vk.GetSemaphoreCounterValue", r); err != nil {
		return 0, err
	}
	return v, nil
}

// Wait blocks until the counter reaches value or timeout elapses, in
// which case ErrTimeout is returned.
func (t *TimelineSemaphore) Wait(value uint64, timeout time.Duration) error {
	if t.handle == 0 {
		return t.dev.invariant("core.TimelineSemaphore.Wait", "semaphore %d is destroyed", t.id)
	}
	if value > t.value {
		return t.dev.invariant("core.TimelineSemaphore.Wait", "waiting for %d, semaphore %d only expects %d", value, t.id, t.value)
	}
	r := t.dev.native.WaitSemaphores([]device.Semaphore{t.handle}, []uint64{value}, timeout)
	if r == device.Timeout {
		return fmt.Errorf("vk.WaitSemaphores(%d): %w", value, ErrTimeout)
	}
	return device.Check("vk.WaitSemaphores", r)
}

// WaitCurrent waits for the counter to reach Value.
func (t *TimelineSemaphore) WaitCurrent(timeout time.Duration) error {
	return t.Wait(t.value, timeout)
}

// Signal signals the counter from the host. The expected value follows.
func (t *TimelineSemaphore) Signal(value uint64) error {
	if t.handle == 0 {
		return t.dev.invariant("core.TimelineSemaphore.Signal", "semaphore %d is destroyed", t.id)
	}
	if value <= t.value {
		return t.dev.invariant("core.TimelineSemaphore.Signal", "value %d does not increase %d", value, t.value)
	}
	if err := device.Check("vk.SignalSemaphore", t.dev.native.SignalSemaphore(t.handle, value)); err != nil {
		return err
	}
	t.value = value
	return nil
}

// Destroy destroys the native semaphore. It must not be in use.
func (t *TimelineSemaphore) Destroy() {
	if t == nil || t.handle == 0 {
		return
	}
	t.dev.native.DestroySemaphore(t.handle)
	t.handle = 0
}

// SemaphoreKind tells binary and timeline semaphores apart.
type SemaphoreKind uint8

// Semaphore kinds
const (
	BinaryKind SemaphoreKind = iota + 1
	TimelineKind
)

// SemaphoreRef refers to either a binary or a timeline semaphore.
// The zero value refers to nothing.
type SemaphoreRef struct {
	kind     SemaphoreKind
	binary   *Semaphore
	timeline *TimelineSemaphore
}

// Binary refers to a binary semaphore.
func Binary(s *Semaphore) SemaphoreRef {
	return SemaphoreRef{kind: BinaryKind, binary: s}
}

// Timeline refers to a timeline semaphore.
func Timeline(t *TimelineSemaphore) SemaphoreRef {
	return SemaphoreRef{kind: TimelineKind, timeline: t}
}

// Kind returns the kind of the semaphore, zero when r refers to nothing.
func (r SemaphoreRef) Kind() SemaphoreKind {
	switch {
	case r.kind == BinaryKind && r.binary != nil:
		return BinaryKind
	case r.kind == TimelineKind && r.timeline != nil:
		return TimelineKind
	}
	return 0
}

// Binary returns the binary semaphore, nil for timeline references.
func (r SemaphoreRef) Binary() *Semaphore {
	return r.binary
}

// Timeline returns the timeline semaphore, nil for binary references.
func (r SemaphoreRef) Timeline() *TimelineSemaphore {
	return r.timeline
}

// Handle returns the native semaphore.
func (r SemaphoreRef) Handle() device.Semaphore {
	switch r.Kind() {
	case BinaryKind:
		return r.binary.handle
	case TimelineKind:
		return r.timeline.handle
	}
	return 0
}

// WaitSemaphore is a semaphore a submission waits on, and the stages
// that wait for it.
type WaitSemaphore struct {
	Semaphore SemaphoreRef
	Stage     device.PipelineStageFlags
}

// Fence is a GPU to CPU signal.
type Fence struct {
	noCopy noCopy

	dev    *Device
	id     ID
	handle device.Fence
}

// NewFence creates a fence, in the signaled state when signaled is set.
func (d *Device) NewFence(signaled bool) (*Fence, error) {
	handle, r := d.native.CreateFence(signaled)
	if err := device.Check("vk.CreateFence", r); err != nil {
		return nil, err
	}
	return &Fence{dev: d, id: d.NextID(), handle: handle}, nil
}

// Handle returns the native fence.
func (f *Fence) Handle() device.Fence {
	return f.handle
}

// Wait blocks until the fence is signaled or timeout elapses.
func (f *Fence) Wait(timeout time.Duration) error {
	if f.handle == 0 {
		return f.dev.invariant("core.Fence.Wait", "fence %d is destroyed", f.id)
	}
	r := f.dev.native.WaitForFences([]device.Fence{f.handle}, true, timeout)
	if r == device.Timeout {
		return fmt.Errorf("vk.WaitForFences(): %w", ErrTimeout)
	}
	return device.Check("vk.WaitForFences", r)
}

// Signaled reports whether the fence is signaled.
func (f *Fence) Signaled() (bool, error) {
	r := f.dev.native.FenceStatus(f.handle)
	if r == device.NotReady {
		return false, nil
	}
	if err := device.Check("vk.GetFenceStatus", r); err != nil {
		return false, err
	}
	return true, nil
}

// Reset puts the fence back into the unsignaled state.
func (f *Fence) Reset() error {
	return device.Check("vk.ResetFences", f.dev.native.ResetFences([]device.Fence{f.handle}))
}

// Destroy destroys the native fence.
func (f *Fence) Destroy() {
	if f == nil || f.handle == 0 {
		return
	}
	f.dev.native.DestroyFence(f.handle)
	f.handle = 0
}
