// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package renderer

import (
	"fmt"
	"time"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
)

// StageConfig configures a Stage. Semaphores are added in groups of
// GroupSize, element i of every group belongs to frame slot i.
type StageConfig struct {
	Name  string
	Queue *core.Queue

	// MaxSecondaryBuffers is the number of secondary buffers each frame
	// slot can check out.
	MaxSecondaryBuffers int

	// Target is the render target of graphics stages.
	Target *core.RenderTarget

	signals []core.SemaphoreRef
	waits   []core.WaitSemaphore
}

// AddSignalGroup adds a semaphore per frame slot to signal.
func (c *StageConfig) AddSignalGroup(group []core.SemaphoreRef) error {
	if len(group) != GroupSize {
		return &core.InvariantError{
			Op:     "renderer.StageConfig.AddSignalGroup",
			Reason: fmt.Sprintf("group of %d semaphores, frame slots need %d", len(group), GroupSize),
		}
	}
	c.signals = append(c.signals, group...)
	return nil
}

// AddWaitGroup adds a semaphore per frame slot to wait on.
func (c *StageConfig) AddWaitGroup(group []core.WaitSemaphore) error {
	if len(group) != GroupSize {
		return &core.InvariantError{
			Op:     "renderer.StageConfig.AddWaitGroup",
			Reason: fmt.Sprintf("group of %d semaphores, frame slots need %d", len(group), GroupSize),
		}
	}
	c.waits = append(c.waits, group...)
	return nil
}

// slotSignals returns the signal semaphores of frame slot i.
func (c *StageConfig) slotSignals(i int) []core.SemaphoreRef {
	var s []core.SemaphoreRef
	for j := i; j < len(c.signals); j += GroupSize {
		s = append(s, c.signals[j])
	}
	return s
}

// slotWaits returns the wait semaphores of frame slot i.
func (c *StageConfig) slotWaits(i int) []core.WaitSemaphore {
	var w []core.WaitSemaphore
	for j := i; j < len(c.waits); j += GroupSize {
		w = append(w, c.waits[j])
	}
	return w
}

// PhaseConfiguration configures one phase of a Renderer.
type PhaseConfiguration struct {
	Phase               Phase
	Queue               *core.Queue
	MaxSecondaryBuffers int
}

// Configuration describes the renderer configuration
type Configuration struct {
	// Phases are submitted in Phase order. Each phase appears once.
	Phases []PhaseConfiguration

	// Swapchain, when set, is acquired from at the start of a frame and
	// presented at the end. The renderer creates and rebuilds a render
	// target for it.
	Swapchain *core.Swapchain

	// Target is the render target of the graphics phase when there is no
	// swapchain.
	Target *core.RenderTarget

	// WaitTimeout bounds waits for frame slots and swapchain images.
	// Zero waits forever.
	WaitTimeout time.Duration

	// ClearColor fills the swapchain image of frames whose presenting
	// phase is skipped.
	ClearColor device.ClearColor
}
