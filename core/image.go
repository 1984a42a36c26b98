// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// ImageConfig describes an image to create.
type ImageConfig struct {
	Format device.Format
	Extent device.Extent2D

	// MipLevels is the number of levels, zero for the full chain.
	MipLevels uint32

	// Layers defaults to one.
	Layers  uint32
	Samples device.SampleCountFlags
	Usage   device.ImageUsageFlags

	// Aspect defaults to the colour aspect.
	Aspect device.ImageAspectFlags

	// Memory are the properties of the backing memory, device local
	// when zero.
	Memory device.MemoryPropertyFlags
}

// MipLevels returns the length of the full mip chain of extent.
func MipLevels(extent device.Extent2D) uint32 {
	m := extent.Width
	if extent.Height > m {
		m = extent.Height
	}
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}

// Image is an image with a cached layout per mip level. The cached
// layouts only change when a barrier recorded on the image is applied.
type Image struct {
	dev    *Device
	id     ID
	handle device.Image
	memory *Memory
	owned  bool

	format device.Format
	extent device.Extent2D
	layers uint32
	aspect device.ImageAspectFlags

	mu      sync.RWMutex
	layouts []device.ImageLayout
}

// NewImage creates an image bound to its own memory. Every level starts
// in the undefined layout.
func (d *Device) NewImage(cfg ImageConfig) (*Image, error) {
	if cfg.MipLevels == 0 {
		cfg.MipLevels = MipLevels(cfg.Extent)
	}
	if cfg.Layers == 0 {
		cfg.Layers = 1
	}
	if cfg.Samples == 0 {
		cfg.Samples = device.SampleCount1
	}
	if cfg.Aspect == 0 {
		cfg.Aspect = device.ImageAspectColor
	}
	if cfg.Memory == 0 {
		cfg.Memory = device.MemoryPropertyDeviceLocal
	}
	handle, r := d.native.CreateImage(device.ImageCreateInfo{
		Format:    cfg.Format,
		Extent:    device.Extent3D{Width: cfg.Extent.Width, Height: cfg.Extent.Height, Depth: 1},
		MipLevels: cfg.MipLevels,
		Layers:    cfg.Layers,
		Samples:   cfg.Samples,
		Usage:     cfg.Usage,
	})
	if err := device.Check("vk.CreateImage", r); err != nil {
		return nil, err
	}
	memory, err := d.memory.Malloc(d.native.ImageMemoryRequirements(handle), cfg.Memory)
	if err != nil {
		d.native.DestroyImage(handle)
		return nil, err
	}
	if err := device.Check("vk.BindImageMemory", d.native.BindImageMemory(handle, memory.handle, 0)); err != nil {
		d.native.DestroyImage(handle)
		memory.Release()
		return nil, err
	}
	img := d.wrapImage(handle, cfg.Format, cfg.Extent, cfg.MipLevels, cfg.Layers, cfg.Aspect)
	img.memory, img.owned = memory, true
	d.log.WithFields(logrus.Fields{
		"id":     img.id,
		"kind":   "image",
		"extent": fmt.Sprintf("%dx%d", cfg.Extent.Width, cfg.Extent.Height),
		"levels": cfg.MipLevels,
	}).Debug("created")
	return img, nil
}

// wrapImage wraps an image owned by someone else, a swapchain image.
func (d *Device) wrapImage(handle device.Image, format device.Format, extent device.Extent2D, levels, layers uint32, aspect device.ImageAspectFlags) *Image {
	return &Image{
		dev:     d,
		id:      d.NextID(),
		handle:  handle,
		format:  format,
		extent:  extent,
		layers:  layers,
		aspect:  aspect,
		layouts: make([]device.ImageLayout, levels),
	}
}

// ID returns the object ID.
func (i *Image) ID() ID {
	return i.id
}

// Handle returns the native image.
func (i *Image) Handle() device.Image {
	return i.handle
}

// Format returns the texel format.
func (i *Image) Format() device.Format {
	return i.format
}

// Extent returns the extent of level 0.
func (i *Image) Extent() device.Extent2D {
	return i.extent
}

// MipExtent returns the extent of level.
func (i *Image) MipExtent(level uint32) device.Extent2D {
	e := device.Extent2D{Width: i.extent.Width >> level, Height: i.extent.Height >> level}
	if e.Width == 0 {
		e.Width = 1
	}
	if e.Height == 0 {
		e.Height = 1
	}
	return e
}

// MipLevels returns the number of levels.
func (i *Image) MipLevels() uint32 {
	return uint32(len(i.layouts))
}

// Layers returns the number of array layers.
func (i *Image) Layers() uint32 {
	return i.layers
}

// Aspect returns the aspects of the image.
func (i *Image) Aspect() device.ImageAspectFlags {
	return i.aspect
}

// Layout returns the cached layout of level.
func (i *Image) Layout(level uint32) device.ImageLayout {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if int(level) >= len(i.layouts) {
		return device.ImageLayoutUndefined
	}
	return i.layouts[level]
}

// Layouts returns the cached layouts of every level.
func (i *Image) Layouts() []device.ImageLayout {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]device.ImageLayout(nil), i.layouts...)
}

// resetLayouts forgets the contents of the image.
func (i *Image) resetLayouts() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for l := range i.layouts {
		i.layouts[l] = device.ImageLayoutUndefined
	}
}

// NewView creates a view of every level and layer of the image.
func (i *Image) NewView() (*ImageView, error) {
	handle, r := i.dev.native.CreateImageView(device.ImageViewCreateInfo{
		Image:  i.handle,
		Format: i.format,
		SubresourceRange: device.ImageSubresourceRange{
			AspectMask: i.aspect,
			LevelCount: i.MipLevels(),
			LayerCount: i.layers,
		},
	})
	if err := device.Check("vk.CreateImageView", r); err != nil {
		return nil, err
	}
	return &ImageView{dev: i.dev, handle: handle, image: i}, nil
}

// Destroy destroys the image and frees its memory. Images owned by a
// swapchain are left alone.
func (i *Image) Destroy() {
	if i == nil || i.handle == 0 {
		return
	}
	if i.owned {
		i.dev.native.DestroyImage(i.handle)
		i.memory.Release()
	}
	i.handle = 0
}

// ImageView is a view of an image.
type ImageView struct {
	dev    *Device
	handle device.ImageView
	image  *Image
}

// Handle returns the native image view.
func (v *ImageView) Handle() device.ImageView {
	return v.handle
}

// Image returns the viewed image.
func (v *ImageView) Image() *Image {
	return v.image
}

// Destroy destroys the view.
func (v *ImageView) Destroy() {
	if v == nil || v.handle == 0 {
		return
	}
	v.dev.native.DestroyImageView(v.handle)
	v.handle = 0
}
