// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"time"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

type swapchain struct {
	handle vk.Swapchain
	images []device.Image
}

var compositeAlphaFlags = []vk.CompositeAlphaFlagBits{
	vk.CompositeAlphaOpaqueBit,
	vk.CompositeAlphaPreMultipliedBit,
	vk.CompositeAlphaPostMultipliedBit,
	vk.CompositeAlphaInheritBit,
}

func (d *Device) surfaceFormat() (vk.SurfaceFormat, vk.Result) {
	var count uint32
	if r := vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, nil); r != vk.Success {
		return vk.SurfaceFormat{}, r
	}
	formats := make([]vk.SurfaceFormat, count)
	if r := vk.GetPhysicalDeviceSurfaceFormats(d.physical, d.surface, &count, formats); r != vk.Success {
		return vk.SurfaceFormat{}, r
	}
	if count == 0 {
		return vk.SurfaceFormat{}, vk.ErrorFormatNotSupported
	}
	formats[0].Deref()
	format := formats[0]
	if format.Format == vk.FormatUndefined {
		// the surface has no preference
		format.Format = vk.Format(device.FormatB8G8R8A8Unorm)
	}
	return format, vk.Success
}

// CreateSwapchain implements device.Device. The extent follows the
// surface when the surface dictates one, the requested extent clamped
// to the surface limits otherwise.
func (d *Device) CreateSwapchain(info device.SwapchainCreateInfo) (device.Swapchain, device.SwapchainProperties, device.Result) {
	if d.surface == vk.NullSurface {
		return 0, device.SwapchainProperties{}, device.ErrorSurfaceLost
	}
	var caps vk.SurfaceCapabilities
	if r := vk.GetPhysicalDeviceSurfaceCapabilities(d.physical, d.surface, &caps); r != vk.Success {
		return 0, device.SwapchainProperties{}, result(r)
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	format, r := d.surfaceFormat()
	if r != vk.Success {
		return 0, device.SwapchainProperties{}, result(r)
	}

	extent := caps.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		extent = vk.Extent2D{
			Width:  clamp(info.Extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(info.Extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}
	count := info.MinImageCount
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range compositeAlphaFlags {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	var old vk.Swapchain = vk.NullSwapchain
	if sc, ok := d.swapchains.get(info.Old); ok {
		old = sc.handle
	}

	var handle vk.Swapchain
	res := vk.CreateSwapchain(d.device, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    count,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     old,
	}, nil, &handle)
	if res != vk.Success {
		return 0, device.SwapchainProperties{}, result(res)
	}

	var numImages uint32
	if res := vk.GetSwapchainImages(d.device, handle, &numImages, nil); res != vk.Success {
		vk.DestroySwapchain(d.device, handle, nil)
		return 0, device.SwapchainProperties{}, result(res)
	}
	native := make([]vk.Image, numImages)
	if res := vk.GetSwapchainImages(d.device, handle, &numImages, native); res != vk.Success {
		vk.DestroySwapchain(d.device, handle, nil)
		return 0, device.SwapchainProperties{}, result(res)
	}
	sc := &swapchain{handle: handle, images: make([]device.Image, numImages)}
	for n, img := range native[:numImages] {
		sc.images[n] = d.images.put(img)
	}
	props := device.SwapchainProperties{
		Format: device.Format(format.Format),
		Extent: device.Extent2D{Width: extent.Width, Height: extent.Height},
	}
	return d.swapchains.put(sc), props, device.Success
}

func clamp(v, min, max uint32) uint32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// DestroySwapchain implements device.Device. The swapchain images go
// with it.
func (d *Device) DestroySwapchain(s device.Swapchain) {
	sc, ok := d.swapchains.take(s)
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.take(img)
	}
	vk.DestroySwapchain(d.device, sc.handle, nil)
}

// SwapchainImages implements device.Device.
func (d *Device) SwapchainImages(s device.Swapchain) ([]device.Image, device.Result) {
	sc, ok := d.swapchains.get(s)
	if !ok {
		return nil, device.ErrorSurfaceLost
	}
	return append([]device.Image(nil), sc.images...), device.Success
}

// AcquireNextImage implements device.Device.
func (d *Device) AcquireNextImage(s device.Swapchain, timeout time.Duration, semaphore device.Semaphore, fence device.Fence) (uint32, device.Result) {
	sc, ok := d.swapchains.get(s)
	if !ok {
		return 0, device.ErrorSurfaceLost
	}
	var index uint32
	r := vk.AcquireNextImage(d.device, sc.handle, nanoseconds(timeout),
		d.semaphores.must(semaphore), d.fences.must(fence), &index)
	return index, result(r)
}
