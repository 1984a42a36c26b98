// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strings"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// QueueCaps are the capabilities of a queue.
type QueueCaps uint32

// Queue capabilities
const (
	CapGraphics QueueCaps = 1 << iota
	CapCompute
	CapTransfer
	CapPresent
)

func (c QueueCaps) String() string {
	var names []string
	for _, n := range []struct {
		cap  QueueCaps
		name string
	}{
		{CapGraphics, "graphics"},
		{CapCompute, "compute"},
		{CapTransfer, "transfer"},
		{CapPresent, "present"},
	} {
		if c&n.cap != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func familyCaps(f device.QueueFamily) QueueCaps {
	var caps QueueCaps
	if f.Flags&device.QueueGraphics != 0 {
		caps |= CapGraphics
	}
	if f.Flags&device.QueueCompute != 0 {
		caps |= CapCompute
	}
	// graphics and compute queues implicitly support transfers
	if f.Flags&(device.QueueTransfer|device.QueueGraphics|device.QueueCompute) != 0 {
		caps |= CapTransfer
	}
	if f.Present {
		caps |= CapPresent
	}
	return caps
}

// PresentResult is the outcome of a present or acquire that did not fail.
type PresentResult int

// Present results
const (
	PresentSuccess PresentResult = iota
	PresentSuboptimal
	PresentOutOfDate
)

func (r PresentResult) String() string {
	switch r {
	case PresentSuboptimal:
		return "suboptimal"
	case PresentOutOfDate:
		return "out of date"
	}
	return "success"
}

func presentResult(op string, r device.Result) (PresentResult, error) {
	switch r {
	case device.Success:
		return PresentSuccess, nil
	case device.Suboptimal:
		return PresentSuboptimal, nil
	case device.ErrorOutOfDate:
		return PresentOutOfDate, nil
	}
	if err := device.Check(op, r); err != nil {
		return PresentSuccess, err
	}
	return PresentSuccess, &device.Error{Op: op, Result: r}
}

// Queue owns a hardware execution queue once it is bound.
type Queue struct {
	noCopy noCopy

	dev    *Device
	handle device.Queue
	family uint32
	index  uint32
	caps   QueueCaps
}

// NewQueue wraps queue index of family.
func (d *Device) NewQueue(family, index uint32) (*Queue, error) {
	q := &Queue{dev: d}
	if err := q.Bind(family, index); err != nil {
		return nil, err
	}
	return q, nil
}

// Bind binds q to queue index of family, releasing whatever it was
// bound to. On failure q is left unbound.
func (q *Queue) Bind(family, index uint32) error {
	q.Reset()
	handle, r := q.dev.native.GetQueue(family, index)
	if err := device.Check("vk.GetDeviceQueue", r); err != nil {
		return err
	}
	for _, f := range q.dev.families {
		if f.Index == family {
			q.caps = familyCaps(f)
		}
	}
	q.handle, q.family, q.index = handle, family, index
	q.dev.log.WithFields(logrus.Fields{
		"family": family,
		"index":  index,
		"caps":   q.caps,
	}).Debug("queue bound")
	return nil
}

// Reset unbinds q.
func (q *Queue) Reset() {
	q.handle = 0
	q.family, q.index, q.caps = 0, 0, 0
}

// Created reports whether q is bound to a native queue.
func (q *Queue) Created() bool {
	return q.handle != 0
}

// Handle returns the native queue.
func (q *Queue) Handle() device.Queue {
	return q.handle
}

// Family returns the queue family index.
func (q *Queue) Family() uint32 {
	return q.family
}

// Index returns the index of the queue inside its family.
func (q *Queue) Index() uint32 {
	return q.index
}

// Caps returns the capabilities of the queue family.
func (q *Queue) Caps() QueueCaps {
	return q.caps
}

func (q *Queue) check(op string) error {
	if debugChecks && !q.Created() {
		return q.dev.invariant(op, "queue is not bound")
	}
	return nil
}

// Submit advances the timeline values of si and submits it. The values
// are restored when the device rejects the submission.
func (q *Queue) Submit(si *SubmitInfo) error {
	if err := q.check("core.Queue.Submit"); err != nil {
		return err
	}
	si.Next()
	if err := q.ConstSubmit(si); err != nil {
		si.rollback()
		return err
	}
	return nil
}

// ConstSubmit submits si as it is, without advancing its timeline values.
func (q *Queue) ConstSubmit(si *SubmitInfo) error {
	if err := q.check("core.Queue.ConstSubmit"); err != nil {
		return err
	}
	return device.Check("vk.QueueSubmit", q.dev.native.QueueSubmit(q.handle, []device.Submit{si.submit}, si.fenceHandle()))
}

// Skip advances the timeline values of si and submits its semaphores
// without any command buffers.
func (q *Queue) Skip(si *SubmitInfo) error {
	if err := q.check("core.Queue.Skip"); err != nil {
		return err
	}
	si.Next()
	if err := q.ConstSkip(si); err != nil {
		si.rollback()
		return err
	}
	return nil
}

// ConstSkip is Skip without advancing the timeline values.
func (q *Queue) ConstSkip(si *SubmitInfo) error {
	if err := q.check("core.Queue.ConstSkip"); err != nil {
		return err
	}
	return device.Check("vk.QueueSubmit", q.dev.native.QueueSubmit(q.handle, []device.Submit{si.skip}, si.fenceHandle()))
}

// Present presents image imageIndex of the swapchain in pi. Suboptimal
// and out of date swapchains are reported through PresentResult, every
// other failure is returned as an error.
func (q *Queue) Present(imageIndex uint32, pi *PresentInfo) (PresentResult, error) {
	if err := q.check("core.Queue.Present"); err != nil {
		return PresentSuccess, err
	}
	pi.present.Swapchains[0] = pi.swapchain.Handle()
	pi.present.ImageIndices[0] = imageIndex
	res, err := presentResult("vk.QueuePresent", q.dev.native.QueuePresent(q.handle, pi.present))
	if res != PresentSuccess {
		q.dev.log.WithField("image", imageIndex).Warnf("present: swapchain %s", res)
	}
	return res, err
}

// WaitIdle blocks until the queue has finished all submitted work.
func (q *Queue) WaitIdle() error {
	if err := q.check("core.Queue.WaitIdle"); err != nil {
		return err
	}
	return device.Check("vk.QueueWaitIdle", q.dev.native.QueueWaitIdle(q.handle))
}
