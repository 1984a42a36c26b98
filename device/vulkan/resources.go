// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"unsafe"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

type deviceMemory struct {
	handle vk.DeviceMemory
	size   uint64
}

// CreateBuffer implements device.Device.
func (d *Device) CreateBuffer(info device.BufferCreateInfo) (device.Buffer, device.Result) {
	var buffer vk.Buffer
	r := vk.CreateBuffer(d.device, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.buffers.put(buffer), device.Success
}

// DestroyBuffer implements device.Device.
func (d *Device) DestroyBuffer(b device.Buffer) {
	if buffer, ok := d.buffers.take(b); ok {
		vk.DestroyBuffer(d.device, buffer, nil)
	}
}

// BufferMemoryRequirements implements device.Device.
func (d *Device) BufferMemoryRequirements(b device.Buffer) device.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, d.buffers.must(b), &req)
	req.Deref()
	return device.MemoryRequirements{Size: uint64(req.Size), Alignment: uint64(req.Alignment), MemoryTypeBits: req.MemoryTypeBits}
}

// BindBufferMemory implements device.Device.
func (d *Device) BindBufferMemory(b device.Buffer, m device.Memory, offset uint64) device.Result {
	mem, ok := d.memories.get(m)
	if !ok {
		return device.ErrorMemoryMapFailed
	}
	return result(vk.BindBufferMemory(d.device, d.buffers.must(b), mem.handle, vk.DeviceSize(offset)))
}

// CreateImage implements device.Device. Images are optimally tiled 2D
// images starting in the undefined layout.
func (d *Device) CreateImage(info device.ImageCreateInfo) (device.Image, device.Result) {
	var image vk.Image
	r := vk.CreateImage(d.device, &vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vk.Format(info.Format),
		Extent:        extent3D(info.Extent),
		MipLevels:     info.MipLevels,
		ArrayLayers:   info.Layers,
		Samples:       vk.SampleCountFlagBits(info.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &image)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.images.put(image), device.Success
}

// DestroyImage implements device.Device.
func (d *Device) DestroyImage(i device.Image) {
	if image, ok := d.images.take(i); ok {
		vk.DestroyImage(d.device, image, nil)
	}
}

// ImageMemoryRequirements implements device.Device.
func (d *Device) ImageMemoryRequirements(i device.Image) device.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, d.images.must(i), &req)
	req.Deref()
	return device.MemoryRequirements{Size: uint64(req.Size), Alignment: uint64(req.Alignment), MemoryTypeBits: req.MemoryTypeBits}
}

// BindImageMemory implements device.Device.
func (d *Device) BindImageMemory(i device.Image, m device.Memory, offset uint64) device.Result {
	mem, ok := d.memories.get(m)
	if !ok {
		return device.ErrorMemoryMapFailed
	}
	return result(vk.BindImageMemory(d.device, d.images.must(i), mem.handle, vk.DeviceSize(offset)))
}

// CreateImageView implements device.Device.
func (d *Device) CreateImageView(info device.ImageViewCreateInfo) (device.ImageView, device.Result) {
	var view vk.ImageView
	r := vk.CreateImageView(d.device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.images.must(info.Image),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: subresourceRange(info.SubresourceRange),
	}, nil, &view)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.views.put(view), device.Success
}

// DestroyImageView implements device.Device.
func (d *Device) DestroyImageView(v device.ImageView) {
	if view, ok := d.views.take(v); ok {
		vk.DestroyImageView(d.device, view, nil)
	}
}

// AllocateMemory implements device.Device.
func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (device.Memory, device.Result) {
	var memory vk.DeviceMemory
	r := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &memory)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.memories.put(&deviceMemory{handle: memory, size: size}), device.Success
}

// FreeMemory implements device.Device.
func (d *Device) FreeMemory(m device.Memory) {
	if mem, ok := d.memories.take(m); ok {
		vk.FreeMemory(d.device, mem.handle, nil)
	}
}

// MapMemory implements device.Device. The returned slice aliases the
// mapping and is only valid until UnmapMemory.
func (d *Device) MapMemory(m device.Memory, offset, size uint64) ([]byte, device.Result) {
	mem, ok := d.memories.get(m)
	if !ok || offset+size > mem.size {
		return nil, device.ErrorMemoryMapFailed
	}
	var mapped unsafe.Pointer
	r := vk.MapMemory(d.device, mem.handle, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &mapped)
	if r != vk.Success {
		return nil, result(r)
	}
	return unsafe.Slice((*byte)(mapped), size), device.Success
}

// UnmapMemory implements device.Device.
func (d *Device) UnmapMemory(m device.Memory) {
	if mem, ok := d.memories.get(m); ok {
		vk.UnmapMemory(d.device, mem.handle)
	}
}

// CreateRenderPass implements device.Device. The render pass has one
// graphics subpass writing every attachment as a colour attachment.
func (d *Device) CreateRenderPass(info device.RenderPassCreateInfo) (device.RenderPass, device.Result) {
	attachments := make([]vk.AttachmentDescription, len(info.Attachments))
	refs := make([]vk.AttachmentReference, len(info.Attachments))
	for n, a := range info.Attachments {
		attachments[n] = vk.AttachmentDescription{
			Format:         vk.Format(a.Format),
			Samples:        vk.SampleCountFlagBits(a.Samples),
			LoadOp:         vk.AttachmentLoadOp(a.LoadOp),
			StoreOp:        vk.AttachmentStoreOp(a.StoreOp),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayout(a.InitialLayout),
			FinalLayout:    vk.ImageLayout(a.FinalLayout),
		}
		refs[n] = vk.AttachmentReference{
			Attachment: uint32(n),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(refs)),
		PColorAttachments:    refs,
	}

	var pass vk.RenderPass
	r := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &pass)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.renderPasses.put(pass), device.Success
}

// DestroyRenderPass implements device.Device.
func (d *Device) DestroyRenderPass(p device.RenderPass) {
	if pass, ok := d.renderPasses.take(p); ok {
		vk.DestroyRenderPass(d.device, pass, nil)
	}
}

// CreateFramebuffer implements device.Device.
func (d *Device) CreateFramebuffer(info device.FramebufferCreateInfo) (device.Framebuffer, device.Result) {
	views := make([]vk.ImageView, len(info.Attachments))
	for n, v := range info.Attachments {
		views[n] = d.views.must(v)
	}
	var fb vk.Framebuffer
	r := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.must(info.RenderPass),
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}, nil, &fb)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.framebuffers.put(fb), device.Success
}

// DestroyFramebuffer implements device.Device.
func (d *Device) DestroyFramebuffer(f device.Framebuffer) {
	if fb, ok := d.framebuffers.take(f); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

// CreatePipelineCache implements device.Device. Initial data the driver
// does not recognise is ignored by the driver.
func (d *Device) CreatePipelineCache(initial []byte) (device.PipelineCache, device.Result) {
	info := pipelineCacheInfo(initial)
	var cache vk.PipelineCache
	if r := vk.CreatePipelineCache(d.device, &info, nil, &cache); r != vk.Success {
		return 0, result(r)
	}
	return d.pipelineCache.put(cache), device.Success
}

func pipelineCacheInfo(initial []byte) vk.PipelineCacheCreateInfo {
	info := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if len(initial) > 0 {
		info.InitialDataSize = uint64(len(initial))
		info.PInitialData = unsafe.Pointer(&initial[0])
	}
	return info
}

// PipelineCacheData implements device.Device.
func (d *Device) PipelineCacheData(c device.PipelineCache) ([]byte, device.Result) {
	cache := d.pipelineCache.must(c)
	var size uint64
	if r := vk.GetPipelineCacheData(d.device, cache, &size, nil); r != vk.Success {
		return nil, result(r)
	}
	if size == 0 {
		return nil, device.Success
	}
	data := make([]byte, size)
	r := result(vk.GetPipelineCacheData(d.device, cache, &size, unsafe.Pointer(&data[0])))
	if r.Failed() {
		return nil, r
	}
	return data[:size], r
}

// DestroyPipelineCache implements device.Device.
func (d *Device) DestroyPipelineCache(c device.PipelineCache) {
	if cache, ok := d.pipelineCache.take(c); ok {
		vk.DestroyPipelineCache(d.device, cache, nil)
	}
}
