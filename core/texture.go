// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"image"

	"github.com/devblok/vkframe/device"
)

// Texture is a sampled image together with the staging buffer its
// pixels are uploaded from.
type Texture struct {
	Image   *Image
	staging *Buffer
}

// NewTexture stages src for upload into a new sRGB image, with a full
// mip chain when mipmaps is set. Record the upload with Record.
func (d *Device) NewTexture(src image.Image, mipmaps bool) (*Texture, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("core.NewTexture(): empty image")
	}
	staging, err := d.NewStagingBuffer(GetPixels(src, 4*b.Dx()))
	if err != nil {
		return nil, err
	}
	cfg := ImageConfig{
		Format:    device.FormatR8G8B8A8Srgb,
		Extent:    device.Extent2D{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		MipLevels: 1,
		Usage:     device.ImageUsageTransferDst | device.ImageUsageSampled,
	}
	if mipmaps {
		cfg.MipLevels = 0
		cfg.Usage |= device.ImageUsageTransferSrc
	}
	img, err := d.NewImage(cfg)
	if err != nil {
		staging.Destroy()
		return nil, err
	}
	return &Texture{Image: img, staging: staging}, nil
}

// Record records the upload into cb.
func (t *Texture) Record(cb *PrimaryCmdBuffer) error {
	if t.staging == nil {
		return fmt.Errorf("core.Texture.Record(): staging buffer is released")
	}
	return UploadTexture(cb, t.staging, t.Image)
}

// ReleaseStaging destroys the staging buffer once the upload executed.
func (t *Texture) ReleaseStaging() {
	t.staging.Destroy()
	t.staging = nil
}

// Destroy destroys the image and the staging buffer.
func (t *Texture) Destroy() {
	t.staging.Destroy()
	t.Image.Destroy()
}

// UploadTexture records a copy of staging into level 0 of img, blits
// every following level from the one before it and leaves all levels
// ready to be sampled.
func UploadTexture(cb *PrimaryCmdBuffer, staging *Buffer, img *Image) error {
	transition := func(layout device.ImageLayout, first, count uint32) error {
		var b ImageBarrier
		if err := b.AddTransition(img, layout, first, count); err != nil {
			return err
		}
		return b.Execute(cb)
	}

	if err := transition(device.ImageLayoutTransferDstOptimal, 0, 0); err != nil {
		return err
	}
	extent := img.Extent()
	err := cb.CopyBufferToImage(staging, img, device.BufferImageCopy{
		ImageSubresource: device.ImageSubresourceLayers{AspectMask: img.Aspect(), LayerCount: img.Layers()},
		ImageExtent:      device.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	})
	if err != nil {
		return err
	}

	levels := img.MipLevels()
	for level := uint32(1); level < levels; level++ {
		if err := transition(device.ImageLayoutTransferSrcOptimal, level-1, 1); err != nil {
			return err
		}
		src, dst := img.MipExtent(level-1), img.MipExtent(level)
		err := cb.BlitImage(img, img, device.FilterLinear, device.ImageBlit{
			SrcSubresource: device.ImageSubresourceLayers{AspectMask: img.Aspect(), MipLevel: level - 1, LayerCount: img.Layers()},
			SrcOffsets:     [2]device.Offset3D{{}, {X: int32(src.Width), Y: int32(src.Height), Z: 1}},
			DstSubresource: device.ImageSubresourceLayers{AspectMask: img.Aspect(), MipLevel: level, LayerCount: img.Layers()},
			DstOffsets:     [2]device.Offset3D{{}, {X: int32(dst.Width), Y: int32(dst.Height), Z: 1}},
		})
		if err != nil {
			return err
		}
		if err := transition(device.ImageLayoutShaderReadOnlyOptimal, level-1, 1); err != nil {
			return err
		}
	}
	return transition(device.ImageLayoutShaderReadOnlyOptimal, levels-1, 1)
}
