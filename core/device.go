// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// Device is the entry point of the package. It wraps a native device
// and creates every other object.
type Device struct {
	native   device.Device
	cfg      Configuration
	log      logrus.FieldLogger
	ids      *IDs
	memory   *MemoryAllocator
	families []device.QueueFamily
}

// NewDevice wraps native. The Device does not take ownership of native,
// the caller destroys it after the Device is done with it.
func NewDevice(native device.Device, cfg Configuration) (*Device, error) {
	if native == nil {
		return nil, fmt.Errorf("core.NewDevice(): nil native device")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.IDs == nil {
		cfg.IDs = &IDs{}
	}
	info := native.Info()
	d := &Device{
		native:   native,
		cfg:      cfg,
		ids:      cfg.IDs,
		memory:   NewMemoryAllocator(native),
		families: native.QueueFamilies(),
		log:      cfg.Logger.WithField("device", info.Name),
	}
	if len(d.families) == 0 {
		return nil, fmt.Errorf("core.NewDevice(): %w", ErrNoQueueFamily)
	}
	d.log.WithFields(logrus.Fields{
		"vendor":   info.VendorID,
		"families": len(d.families),
	}).Debug("device wrapped")
	return d, nil
}

// Native returns the wrapped native device.
func (d *Device) Native() device.Device {
	return d.native
}

// Logger returns the logger objects of this device log to.
func (d *Device) Logger() logrus.FieldLogger {
	return d.log
}

// Memory returns the device memory allocator.
func (d *Device) Memory() *MemoryAllocator {
	return d.memory
}

// NextID allocates an object ID.
func (d *Device) NextID() ID {
	return d.ids.Next()
}

// FindMemoryType returns the index of a memory type allowed by filter
// that has all of the properties.
func (d *Device) FindMemoryType(filter uint32, properties device.MemoryPropertyFlags) (uint32, error) {
	return d.memory.FindMemoryType(filter, properties)
}

// QueueFamilies returns the queue families of the device.
func (d *Device) QueueFamilies() []device.QueueFamily {
	return append([]device.QueueFamily(nil), d.families...)
}

// FindQueueFamily returns the first queue family having every
// capability in caps. A family dedicated to exactly caps is preferred,
// which picks the transfer-only family for CapTransfer when one exists.
func (d *Device) FindQueueFamily(caps QueueCaps) (device.QueueFamily, error) {
	var (
		found bool
		best  device.QueueFamily
	)
	for _, f := range d.families {
		have := familyCaps(f)
		if have&caps != caps {
			continue
		}
		if have == caps {
			return f, nil
		}
		if !found {
			best, found = f, true
		}
	}
	if !found {
		return device.QueueFamily{}, fmt.Errorf("core.FindQueueFamily(%s): %w", caps, ErrNoQueueFamily)
	}
	return best, nil
}

// MaxUsableSampleCount returns the highest sample count usable for both
// colour and depth attachments, capped by Configuration.MaxMSAASamples.
func (d *Device) MaxUsableSampleCount() device.SampleCountFlags {
	limits := d.native.Limits()
	counts := limits.FramebufferColorSampleCounts & limits.FramebufferDepthSampleCounts
	for c := device.SampleCount64; c > device.SampleCount1; c >>= 1 {
		if d.cfg.MaxMSAASamples != 0 && c > d.cfg.MaxMSAASamples {
			continue
		}
		if counts&c != 0 {
			return c
		}
	}
	return device.SampleCount1
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return device.Check("vk.DeviceWaitIdle", d.native.WaitIdle())
}

// SingleTimeCommands records commands with record into a one time
// primary buffer from pool, submits it to q and waits for it to finish.
func (d *Device) SingleTimeCommands(q *Queue, pool *CmdPool, record func(*PrimaryCmdBuffer) error) error {
	cmd, err := pool.NewPrimary()
	if err != nil {
		return err
	}
	defer cmd.Release()

	fence, err := d.NewFence(false)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	if err := cmd.Begin(device.CommandBufferUsageOneTimeSubmit); err != nil {
		return err
	}
	if err := record(cmd); err != nil {
		cmd.End()
		return err
	}
	if err := cmd.End(); err != nil {
		return err
	}

	si, err := NewSubmitInfo([]device.CommandBuffer{cmd.Handle()}, nil, nil, fence)
	if err != nil {
		return err
	}
	if err := q.Submit(si); err != nil {
		return err
	}
	return fence.Wait(device.WaitForever)
}
