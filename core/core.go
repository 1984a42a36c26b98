// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core wraps the native device objects that drive a frame loop:
// queues, semaphores, fences, command pools and buffers, images,
// buffers, pipeline barriers and swapchains. Every object is created
// through a Device and released with Destroy (or Release for borrowed
// command buffers). Nothing in this package is safe for concurrent use
// unless stated otherwise.
package core

import "sync/atomic"

// ID identifies an object created through a Device.
type ID uint64

// IDs hands out monotonically increasing object IDs.
// It is safe for concurrent use.
type IDs struct {
	last uint64
}

// Next returns a new ID. The first ID is 1.
func (a *IDs) Next() ID {
	return ID(atomic.AddUint64(&a.last, 1))
}

// noCopy is embedded into objects that exclusively own a native handle.
// go vet reports copies of anything containing it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
