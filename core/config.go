// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// FramesInFlight is the number of frames the CPU may record ahead of
// the GPU. Every per-frame resource is allocated this many times.
const FramesInFlight = 2

// Configuration defines a device wide configuration
type Configuration struct {
	// MaxMSAASamples caps the sample count MaxUsableSampleCount
	// reports. Zero leaves it uncapped.
	MaxMSAASamples device.SampleCountFlags

	// Logger receives the debug and error output of everything
	// created through the Device. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// IDs allocates object IDs. Devices sharing an allocator get
	// IDs that are unique across all of them.
	IDs *IDs
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the interval window events are polled at.
	EventPollDelay time.Duration
}

// CmdPoolConfig sizes a command pool. Both quotas are allocated
// when the pool is created.
type CmdPoolConfig struct {
	Family              uint32
	MaxPrimaryBuffers   int
	MaxSecondaryBuffers int

	// Transient hints that buffers are short lived.
	Transient bool
}
