// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package renderer drives the frame loop. A Renderer submits one Stage
// per Phase every frame, keeping FramesInFlight frames in flight and
// rotating frame slots between them.
package renderer

import (
	"fmt"
	"sort"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// Phase orders the stages of a frame.
type Phase int

// Phases, in submission order
const (
	PhaseTransfer Phase = iota
	PhaseGraphics
)

func (p Phase) String() string {
	switch p {
	case PhaseTransfer:
		return "transfer"
	case PhaseGraphics:
		return "graphics"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type phase struct {
	Phase
	stage     *Stage
	timelines [GroupSize]*core.TimelineSemaphore
}

// Renderer describes the rendering machinery
type Renderer struct {
	dev     *core.Device
	cfg     Configuration
	log     logrus.FieldLogger
	phases  []*phase
	started bool
	current Cycle
	next    Cycle
	waited  bool
	begun   bool

	// acquired is set while the image of the current cycle was acquired
	// but no frame using it has begun.
	acquired bool
	image    uint32
	status   core.PresentResult

	target         *core.RenderTarget
	imageAvailable [GroupSize]*core.Semaphore
	renderFinished [GroupSize]*core.Semaphore
	present        [GroupSize]*core.PresentInfo
}

// New creates the stages and semaphores of every phase.
func New(dev *core.Device, cfg Configuration) (*Renderer, error) {
	if len(cfg.Phases) == 0 {
		return nil, fmt.Errorf("renderer.New(): no phases")
	}
	if cfg.WaitTimeout == 0 {
		cfg.WaitTimeout = device.WaitForever
	}
	cfg.Phases = append([]PhaseConfiguration(nil), cfg.Phases...)
	sort.SliceStable(cfg.Phases, func(i, j int) bool { return cfg.Phases[i].Phase < cfg.Phases[j].Phase })
	for i := 1; i < len(cfg.Phases); i++ {
		if cfg.Phases[i].Phase == cfg.Phases[i-1].Phase {
			return nil, fmt.Errorf("renderer.New(): phase %s configured twice", cfg.Phases[i].Phase)
		}
	}

	r := &Renderer{dev: dev, cfg: cfg, log: dev.Logger().WithField("system", "renderer"), target: cfg.Target}
	if err := r.create(); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) create() error {
	if sc := r.cfg.Swapchain; sc != nil {
		target, err := r.dev.NewSwapchainTarget(sc)
		if err != nil {
			return err
		}
		r.target = target
		for i := 0; i < GroupSize; i++ {
			if r.imageAvailable[i], err = r.dev.NewSemaphore(); err != nil {
				return err
			}
			if r.renderFinished[i], err = r.dev.NewSemaphore(); err != nil {
				return err
			}
			if r.present[i], err = core.NewPresentInfo(sc, []core.SemaphoreRef{r.renderFinished[i].Ref()}); err != nil {
				return err
			}
		}
	}

	for k, pc := range r.cfg.Phases {
		p := &phase{Phase: pc.Phase}
		r.phases = append(r.phases, p)
		var signals []core.SemaphoreRef
		for i := range p.timelines {
			t, err := r.dev.NewTimelineSemaphore(0)
			if err != nil {
				return err
			}
			p.timelines[i] = t
			signals = append(signals, t.Ref())
		}

		cfg := StageConfig{
			Name:                pc.Phase.String(),
			Queue:               pc.Queue,
			MaxSecondaryBuffers: pc.MaxSecondaryBuffers,
		}
		if err := cfg.AddSignalGroup(signals); err != nil {
			return err
		}
		if k > 0 {
			var waits []core.WaitSemaphore
			for _, t := range r.phases[k-1].timelines {
				waits = append(waits, core.WaitSemaphore{Semaphore: t.Ref(), Stage: device.PipelineStageAllCommands})
			}
			if err := cfg.AddWaitGroup(waits); err != nil {
				return err
			}
		}
		if k == len(r.cfg.Phases)-1 {
			cfg.Target = r.target
			if r.cfg.Swapchain != nil {
				if err := r.addSwapchainGroups(&cfg); err != nil {
					return err
				}
			}
		}
		stage, err := NewStage(r.dev, cfg)
		if err != nil {
			return err
		}
		p.stage = stage
	}
	return nil
}

func (r *Renderer) addSwapchainGroups(cfg *StageConfig) error {
	var (
		waits   []core.WaitSemaphore
		signals []core.SemaphoreRef
	)
	for i := 0; i < GroupSize; i++ {
		waits = append(waits, core.WaitSemaphore{
			Semaphore: r.imageAvailable[i].Ref(),
			Stage:     device.PipelineStageColorAttachmentOutput,
		})
		signals = append(signals, r.renderFinished[i].Ref())
	}
	if err := cfg.AddWaitGroup(waits); err != nil {
		return err
	}
	return cfg.AddSignalGroup(signals)
}

// Advance moves on to the next frame. The first frame is cycle 0.
func (r *Renderer) Advance() Cycle {
	if r.started {
		r.current = r.next
	}
	r.started = true
	r.next = r.current.Next()
	r.waited, r.begun, r.acquired = false, false, false
	return r.current
}

// Cycle returns the current frame.
func (r *Renderer) Cycle() Cycle {
	return r.current
}

// Stage returns the stage of phase p, nil when p is not configured.
func (r *Renderer) Stage(p Phase) *Stage {
	for _, ph := range r.phases {
		if ph.Phase == p {
			return ph.stage
		}
	}
	return nil
}

// Timeline returns the timeline semaphore phase p signals in frame slot
// subIndex, nil when p is not configured or subIndex is not a slot.
func (r *Renderer) Timeline(p Phase, subIndex int) *core.TimelineSemaphore {
	if subIndex < 0 || subIndex >= GroupSize {
		return nil
	}
	for _, ph := range r.phases {
		if ph.Phase == p {
			return ph.timelines[subIndex]
		}
	}
	return nil
}

// Target returns the render target of the graphics phase.
func (r *Renderer) Target() *core.RenderTarget {
	return r.target
}

// Wait blocks until the device has finished the last frame that used
// the current frame slot.
func (r *Renderer) Wait() error {
	if !r.started {
		return &core.InvariantError{Op: "renderer.Wait", Reason: "Advance was not called"}
	}
	last := r.phases[len(r.phases)-1]
	if err := last.timelines[r.current.SubIndex].WaitCurrent(r.cfg.WaitTimeout); err != nil {
		return err
	}
	r.waited = true
	return nil
}

// Frame is a frame being recorded.
type Frame struct {
	Cycle      Cycle
	ImageIndex uint32

	// Status is the result of acquiring the swapchain image. Nothing is
	// recorded into an out of date frame.
	Status core.PresentResult

	r       *Renderer
	buffers []*core.PrimaryCmdBuffer
	skip    []bool
	ended   bool
}

func (f *Frame) phase(p Phase) int {
	for i, ph := range f.r.phases {
		if ph.Phase == p {
			return i
		}
	}
	return -1
}

// Cmd returns the primary buffer of phase p, nil when p is not
// configured or the frame is out of date.
func (f *Frame) Cmd(p Phase) *core.PrimaryCmdBuffer {
	i := f.phase(p)
	if i < 0 || f.buffers == nil {
		return nil
	}
	return f.buffers[i]
}

// Secondary checks out a secondary buffer of phase p for this frame.
func (f *Frame) Secondary(p Phase) (*core.SecondaryCmdBuffer, error) {
	i := f.phase(p)
	if i < 0 {
		return nil, fmt.Errorf("renderer.Frame.Secondary(): phase %s is not configured", p)
	}
	return f.r.phases[i].stage.Secondary(f.Cycle.SubIndex)
}

// Skip marks phase p as having no work this frame. Anything recorded
// into it is discarded. When p is the phase presenting to the
// swapchain, its buffer is recorded again with only a render pass
// clearing the image to Configuration.ClearColor, which leaves the
// image in the present layout.
func (f *Frame) Skip(p Phase) {
	if i := f.phase(p); i >= 0 && f.skip != nil {
		f.skip[i] = true
	}
}

// Framebuffer returns the framebuffer of the acquired swapchain image,
// or the first framebuffer of the target without a swapchain.
func (f *Frame) Framebuffer() *core.Framebuffer {
	if f.r.target == nil {
		return nil
	}
	return f.r.target.Framebuffer(f.ImageIndex)
}

// Begin starts the current frame: it waits for the frame slot if Wait
// was not called, acquires a swapchain image and begins every stage.
// A frame can begin once per cycle. When a stage fails to begin, the
// ones already begun are discarded and Begin can be retried, reusing
// the image acquired.
func (r *Renderer) Begin() (*Frame, error) {
	if r.begun {
		return nil, &core.InvariantError{Op: "renderer.Begin", Reason: fmt.Sprintf("frame %s already begun", r.current)}
	}
	if !r.waited {
		if err := r.Wait(); err != nil {
			return nil, err
		}
	}
	slot := r.current.SubIndex
	f := &Frame{Cycle: r.current, r: r}
	if sc := r.cfg.Swapchain; sc != nil {
		if !r.acquired {
			index, res, err := sc.AcquireNextImage(r.imageAvailable[slot], r.cfg.WaitTimeout)
			if err != nil {
				return nil, err
			}
			if res == core.PresentOutOfDate {
				r.log.WithField("cycle", r.current).Warn("acquire: swapchain out of date")
				r.begun = true
				f.Status = res
				return f, nil
			}
			r.acquired, r.image, r.status = true, index, res
		}
		f.ImageIndex, f.Status = r.image, r.status
	}
	f.buffers = make([]*core.PrimaryCmdBuffer, len(r.phases))
	f.skip = make([]bool, len(r.phases))
	for i, p := range r.phases {
		cmd, err := p.stage.Begin(slot)
		if err != nil {
			for _, begun := range r.phases[:i] {
				if derr := begun.stage.Discard(slot); derr != nil {
					r.log.WithField("stage", begun.stage.Name()).Errorf("discard: %v", derr)
				}
			}
			return nil, err
		}
		f.buffers[i] = cmd
	}
	r.begun, r.acquired = true, false
	return f, nil
}

// End submits every stage of f in phase order, skipping the ones marked
// with Frame.Skip, and presents the swapchain image.
func (r *Renderer) End(f *Frame) (core.PresentResult, error) {
	if f.ended {
		return core.PresentSuccess, &core.InvariantError{Op: "renderer.End", Reason: fmt.Sprintf("frame %s already ended", f.Cycle)}
	}
	if f.Cycle != r.current {
		return core.PresentSuccess, &core.InvariantError{Op: "renderer.End", Reason: fmt.Sprintf("frame %s ended in cycle %s", f.Cycle, r.current)}
	}
	f.ended = true
	if f.Status == core.PresentOutOfDate {
		return core.PresentOutOfDate, nil
	}
	slot := f.Cycle.SubIndex
	presenting := len(r.phases) - 1
	for i, p := range r.phases {
		if f.skip[i] && i == presenting && r.cfg.Swapchain != nil {
			if err := r.clearImage(f); err != nil {
				return core.PresentSuccess, err
			}
		} else if f.skip[i] {
			if err := p.stage.Skip(slot); err != nil {
				return core.PresentSuccess, err
			}
			continue
		}
		if err := p.stage.End(slot); err != nil {
			return core.PresentSuccess, err
		}
		if err := p.stage.Submit(slot); err != nil {
			return core.PresentSuccess, err
		}
	}
	if r.cfg.Swapchain == nil {
		return core.PresentSuccess, nil
	}
	last := r.phases[len(r.phases)-1]
	res, err := last.stage.Queue().Present(f.ImageIndex, r.present[slot])
	if err != nil {
		return res, err
	}
	if f.Status == core.PresentSuboptimal && res == core.PresentSuccess {
		res = core.PresentSuboptimal
	}
	return res, nil
}

// clearImage records the last stage of f again with a single render
// pass over the acquired image.
func (r *Renderer) clearImage(f *Frame) error {
	stage := r.phases[len(r.phases)-1].stage
	slot := f.Cycle.SubIndex
	if err := stage.Discard(slot); err != nil {
		return err
	}
	cmd, err := stage.Begin(slot)
	if err != nil {
		return err
	}
	f.buffers[len(f.buffers)-1] = cmd
	return cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, r.cfg.ClearColor)
}

// Rebuild recreates the swapchain with extent and the render target
// that uses it. It waits for the device to go idle first.
func (r *Renderer) Rebuild(extent device.Extent2D) error {
	sc := r.cfg.Swapchain
	if sc == nil {
		return fmt.Errorf("renderer.Rebuild(): %w", core.ErrUnsupported)
	}
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	r.target.Destroy()
	r.target = nil
	if err := sc.Recreate(extent); err != nil {
		return err
	}
	target, err := r.dev.NewSwapchainTarget(sc)
	if err != nil {
		return err
	}
	r.target = target
	r.phases[len(r.phases)-1].stage.SetTarget(target)
	r.log.WithField("extent", fmt.Sprintf("%dx%d", extent.Width, extent.Height)).Info("swapchain rebuilt")
	return nil
}

// Destroy waits for the device to go idle and destroys everything the
// renderer created.
func (r *Renderer) Destroy() error {
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	var first error
	for _, p := range r.phases {
		if p.stage != nil {
			if err := p.stage.Destroy(); err != nil && first == nil {
				first = err
			}
		}
		for _, t := range p.timelines {
			t.Destroy()
		}
	}
	r.phases = nil
	for i := 0; i < GroupSize; i++ {
		r.imageAvailable[i].Destroy()
		r.renderFinished[i].Destroy()
	}
	if r.cfg.Swapchain != nil {
		r.target.Destroy()
	}
	r.target = nil
	return first
}
