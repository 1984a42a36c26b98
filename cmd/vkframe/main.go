// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command vkframe opens a window and runs the two phase frame loop on
// it: a transfer phase uploading a texture and a graphics phase
// clearing the swapchain image and presenting it.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/core/renderer"
	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/device/vulkan"
	"github.com/devblok/vkframe/utility/kar"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

func newWindow(cfg configuration) (*sdl.Window, error) {
	return sdl.CreateWindow("vkframe",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width),
		int32(cfg.Height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
}

func main() {
	cfg, err := loadConfiguration()
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(cfg.LogLevel)
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg configuration) error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		return err
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := newWindow(cfg)
	if err != nil {
		return err
	}
	defer window.Destroy()

	instance, err := vulkan.NewInstance(sdl.VulkanGetVkGetInstanceProcAddr(), vulkan.InstanceConfiguration{
		ApplicationName: "vkframe",
		Extensions:      window.VulkanGetInstanceExtensions(),
		DebugMode:       cfg.Debug,
	})
	if err != nil {
		return err
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Handle())
	if err != nil {
		return err
	}
	instance.SetSurface(surface)

	native, err := instance.NewDevice(vulkan.DeviceConfiguration{PhysicalDevice: cfg.Device})
	if err != nil {
		return err
	}
	defer func() {
		if live := native.Live(); live > 0 {
			log.WithField("objects", live).Warn("objects alive at exit")
		}
		native.Destroy()
	}()

	dev, err := core.NewDevice(native, core.Configuration{Logger: log.StandardLogger()})
	if err != nil {
		return err
	}
	return frameLoop(cfg, dev, window)
}

// queues returns the graphics queue and the queue the transfer phase
// submits to, a second queue of the same family when there is one.
func queues(dev *core.Device) (*core.Queue, *core.Queue, error) {
	family, err := dev.FindQueueFamily(core.CapGraphics | core.CapPresent)
	if err != nil {
		return nil, nil, err
	}
	graphics, err := dev.NewQueue(family.Index, 0)
	if err != nil {
		return nil, nil, err
	}
	if family.Count < 2 {
		return graphics, graphics, nil
	}
	transfer, err := dev.NewQueue(family.Index, 1)
	if err != nil {
		return nil, nil, err
	}
	return graphics, transfer, nil
}

func drawableExtent(window *sdl.Window) device.Extent2D {
	w, h := window.VulkanGetDrawableSize()
	return device.Extent2D{Width: uint32(w), Height: uint32(h)}
}

func frameLoop(cfg configuration, dev *core.Device, window *sdl.Window) error {
	graphics, transfer, err := queues(dev)
	if err != nil {
		return err
	}

	sc, err := dev.NewSwapchain(core.SwapchainConfig{
		MinImageCount: cfg.SwapchainSize,
		Extent:        drawableExtent(window),
	})
	if err != nil {
		return err
	}
	defer sc.Destroy()

	r, err := renderer.New(dev, renderer.Configuration{
		Phases: []renderer.PhaseConfiguration{
			{Phase: renderer.PhaseTransfer, Queue: transfer},
			{Phase: renderer.PhaseGraphics, Queue: graphics},
		},
		Swapchain:   sc,
		WaitTimeout: cfg.WaitTimeout,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Destroy(); err != nil {
			log.WithError(err).Error("renderer destroy")
		}
	}()

	cache, err := loadPipelineCache(dev, cfg.PipelineCache)
	if err != nil {
		return err
	}
	defer func() {
		if err := savePipelineCache(cache, cfg.PipelineCache); err != nil {
			log.WithError(err).Warn("pipeline cache not saved")
		}
		cache.Destroy()
	}()

	tex, err := dev.NewTexture(checkerboard(cfg.TextureSize, 8,
		glm.Vec4{0.9, 0.4, 0.1, 1}, glm.Vec4{0.1, 0.5, 0.9, 1}), true)
	if err != nil {
		return err
	}
	defer tex.Destroy()
	defer func() {
		if err := dev.WaitIdle(); err != nil {
			log.WithError(err).Error("device wait idle")
		}
	}()

	var (
		timer     = core.NewTime(cfg.Time)
		start     = time.Now()
		uploaded  = false
		uploadAt  renderer.Cycle
		staging   = true
		rebuild   = false
		minimised = false
	)
	defer timer.Stop()

	render := func() error {
		if rebuild {
			if err := r.Rebuild(drawableExtent(window)); err != nil {
				return err
			}
			rebuild = false
		}

		cycle := r.Advance()
		f, err := r.Begin()
		if err != nil {
			return err
		}
		if staging && uploaded && cycle.Index >= uploadAt.Index+renderer.GroupSize {
			tex.ReleaseStaging()
			staging = false
		}
		if f.Status == core.PresentOutOfDate {
			rebuild = true
			_, err := r.End(f)
			return err
		}

		if !uploaded {
			if err := tex.Record(f.Cmd(renderer.PhaseTransfer)); err != nil {
				return err
			}
			uploaded, uploadAt = true, cycle
		} else {
			f.Skip(renderer.PhaseTransfer)
		}

		cmd := f.Cmd(renderer.PhaseGraphics)
		colour := defaultScene.clearColor(time.Since(start))
		if err := cmd.BeginRenderPass(f.Framebuffer(), device.SubpassContentsInline, colour); err != nil {
			return err
		}
		if err := cmd.EndRenderPass(); err != nil {
			return err
		}

		res, err := r.End(f)
		if err != nil {
			return err
		}
		if res != core.PresentSuccess {
			log.WithFields(log.Fields{"cycle": cycle, "result": res}).Debug("present")
			rebuild = true
		}
		return nil
	}

EventLoop:
	for {
		select {
		case <-timer.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch et := event.(type) {
				case *sdl.KeyboardEvent:
					if et.Keysym.Sym == sdl.K_ESCAPE {
						break EventLoop
					}
				case *sdl.QuitEvent:
					break EventLoop
				case *sdl.WindowEvent:
					switch et.Event {
					case sdl.WINDOWEVENT_SIZE_CHANGED:
						rebuild = true
					case sdl.WINDOWEVENT_MINIMIZED:
						minimised = true
					case sdl.WINDOWEVENT_RESTORED:
						minimised, rebuild = false, true
					}
				}
			}
		case <-timer.FpsTicker().C:
			if minimised {
				continue
			}
			if err := render(); err != nil {
				return err
			}
		}
	}
	log.Println("Event loop exited")
	return nil
}

// loadPipelineCache seeds the pipeline cache from the archive at path.
// A missing archive gives an empty cache.
func loadPipelineCache(dev *core.Device, path string) (*core.PipelineCache, error) {
	ar, err := kar.OpenFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return dev.NewPipelineCache(nil)
	}
	if err != nil {
		log.WithError(err).WithField("archive", path).Warn("pipeline cache archive unreadable")
		return dev.NewPipelineCache(nil)
	}
	defer ar.Close()
	return dev.LoadPipelineCache(ar)
}

// savePipelineCache writes the cache into the archive at path, keeping
// the entries other devices stored there.
func savePipelineCache(cache *core.PipelineCache, path string) error {
	b, err := kar.NewBuilder(kar.Header{Author: "vkframe", DateCreated: time.Now().Unix(), Version: 1})
	if err != nil {
		return err
	}
	defer b.Close()
	if err := cache.Save(b); err != nil {
		return err
	}

	if ar, err := kar.OpenFile(path); err == nil {
		err := copyEntries(b, ar)
		ar.Close()
		if err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := b.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("os.Rename(%s): %v", path, err)
	}
	log.WithField("archive", path).Debug("pipeline cache saved")
	return nil
}

// copyEntries adds every entry of ar that b does not have yet.
func copyEntries(b *kar.Builder, ar *kar.Archive) error {
	for _, entry := range ar.Index() {
		if b.Contains(entry.Name) {
			continue
		}
		r, err := ar.Open(entry.Name)
		if err != nil {
			return err
		}
		if err := b.Add(entry.Name, r); err != nil {
			return err
		}
	}
	return nil
}
