// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"sync"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

// commandPool remembers its buffers, destroying the pool frees them.
type commandPool struct {
	handle vk.CommandPool

	mu      sync.Mutex
	buffers map[device.CommandBuffer]struct{}
}

// CreateCommandPool implements device.Device.
func (d *Device) CreateCommandPool(family uint32, flags device.CommandPoolCreateFlags) (device.CommandPool, device.Result) {
	var pool vk.CommandPool
	r := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: family,
		Flags:            vk.CommandPoolCreateFlags(flags),
	}, nil, &pool)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.pools.put(&commandPool{handle: pool, buffers: make(map[device.CommandBuffer]struct{})}), device.Success
}

// DestroyCommandPool implements device.Device.
func (d *Device) DestroyCommandPool(p device.CommandPool) {
	pool, ok := d.pools.take(p)
	if !ok {
		return
	}
	pool.mu.Lock()
	for cb := range pool.buffers {
		d.cmdBuffers.take(cb)
	}
	pool.mu.Unlock()
	vk.DestroyCommandPool(d.device, pool.handle, nil)
}

// AllocateCommandBuffers implements device.Device.
func (d *Device) AllocateCommandBuffers(p device.CommandPool, level device.CommandBufferLevel, count int) ([]device.CommandBuffer, device.Result) {
	pool, ok := d.pools.get(p)
	if !ok {
		return nil, device.ErrorInitializationFailed
	}
	native := make([]vk.CommandBuffer, count)
	r := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.handle,
		Level:              vk.CommandBufferLevel(level),
		CommandBufferCount: uint32(count),
	}, native)
	if r != vk.Success {
		return nil, result(r)
	}
	buffers := make([]device.CommandBuffer, count)
	pool.mu.Lock()
	defer pool.mu.Unlock()
	for n, cb := range native {
		buffers[n] = d.cmdBuffers.put(cb)
		pool.buffers[buffers[n]] = struct{}{}
	}
	return buffers, device.Success
}

// FreeCommandBuffers implements device.Device.
func (d *Device) FreeCommandBuffers(p device.CommandPool, buffers []device.CommandBuffer) {
	pool, ok := d.pools.get(p)
	if !ok || len(buffers) == 0 {
		return
	}
	native := make([]vk.CommandBuffer, 0, len(buffers))
	pool.mu.Lock()
	for _, cb := range buffers {
		if h, ok := d.cmdBuffers.take(cb); ok {
			native = append(native, h)
			delete(pool.buffers, cb)
		}
	}
	pool.mu.Unlock()
	vk.FreeCommandBuffers(d.device, pool.handle, uint32(len(native)), native)
}

// ResetCommandBuffer implements device.Device.
func (d *Device) ResetCommandBuffer(cb device.CommandBuffer, release bool) device.Result {
	var flags vk.CommandBufferResetFlags
	if release {
		flags = vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit)
	}
	return result(vk.ResetCommandBuffer(d.cmdBuffers.must(cb), flags))
}

// BeginCommandBuffer implements device.Device.
func (d *Device) BeginCommandBuffer(cb device.CommandBuffer, info device.BeginInfo) device.Result {
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(info.Flags),
	}
	if info.Inheritance != nil {
		begin.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:       vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass:  d.renderPasses.must(info.Inheritance.RenderPass),
			Subpass:     info.Inheritance.Subpass,
			Framebuffer: d.framebuffers.must(info.Inheritance.Framebuffer),
		}}
	}
	return result(vk.BeginCommandBuffer(d.cmdBuffers.must(cb), &begin))
}

// EndCommandBuffer implements device.Device.
func (d *Device) EndCommandBuffer(cb device.CommandBuffer) device.Result {
	return result(vk.EndCommandBuffer(d.cmdBuffers.must(cb)))
}

// CmdPipelineBarrier implements device.Device.
func (d *Device) CmdPipelineBarrier(cb device.CommandBuffer, src, dst device.PipelineStageFlags, buffers []device.BufferMemoryBarrier, images []device.ImageMemoryBarrier) {
	bufferBarriers := make([]vk.BufferMemoryBarrier, len(buffers))
	for n, b := range buffers {
		bufferBarriers[n] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(b.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(b.DstAccessMask),
			SrcQueueFamilyIndex: b.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: b.DstQueueFamilyIndex,
			Buffer:              d.buffers.must(b.Buffer),
			Offset:              vk.DeviceSize(b.Offset),
			Size:                vk.DeviceSize(b.Size),
		}
	}
	imageBarriers := make([]vk.ImageMemoryBarrier, len(images))
	for n, i := range images {
		imageBarriers[n] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(i.SrcAccessMask),
			DstAccessMask:       vk.AccessFlags(i.DstAccessMask),
			OldLayout:           vk.ImageLayout(i.OldLayout),
			NewLayout:           vk.ImageLayout(i.NewLayout),
			SrcQueueFamilyIndex: i.SrcQueueFamilyIndex,
			DstQueueFamilyIndex: i.DstQueueFamilyIndex,
			Image:               d.images.must(i.Image),
			SubresourceRange:    subresourceRange(i.SubresourceRange),
		}
	}
	vk.CmdPipelineBarrier(d.cmdBuffers.must(cb),
		vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}

// CmdCopyBuffer implements device.Device.
func (d *Device) CmdCopyBuffer(cb device.CommandBuffer, src, dst device.Buffer, regions []device.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for n, r := range regions {
		copies[n] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(d.cmdBuffers.must(cb), d.buffers.must(src), d.buffers.must(dst), uint32(len(copies)), copies)
}

// CmdCopyBufferToImage implements device.Device.
func (d *Device) CmdCopyBufferToImage(cb device.CommandBuffer, src device.Buffer, dst device.Image, layout device.ImageLayout, regions []device.BufferImageCopy) {
	copies := make([]vk.BufferImageCopy, len(regions))
	for n, r := range regions {
		copies[n] = vk.BufferImageCopy{
			BufferOffset:      vk.DeviceSize(r.BufferOffset),
			BufferRowLength:   r.BufferRowLength,
			BufferImageHeight: r.BufferImageHeight,
			ImageSubresource:  subresourceLayers(r.ImageSubresource),
			ImageOffset:       offset3D(r.ImageOffset),
			ImageExtent:       extent3D(r.ImageExtent),
		}
	}
	vk.CmdCopyBufferToImage(d.cmdBuffers.must(cb), d.buffers.must(src), d.images.must(dst),
		vk.ImageLayout(layout), uint32(len(copies)), copies)
}

// CmdBlitImage implements device.Device.
func (d *Device) CmdBlitImage(cb device.CommandBuffer, src device.Image, srcLayout device.ImageLayout, dst device.Image, dstLayout device.ImageLayout, regions []device.ImageBlit, filter device.Filter) {
	blits := make([]vk.ImageBlit, len(regions))
	for n, r := range regions {
		blits[n] = vk.ImageBlit{
			SrcSubresource: subresourceLayers(r.SrcSubresource),
			SrcOffsets:     [2]vk.Offset3D{offset3D(r.SrcOffsets[0]), offset3D(r.SrcOffsets[1])},
			DstSubresource: subresourceLayers(r.DstSubresource),
			DstOffsets:     [2]vk.Offset3D{offset3D(r.DstOffsets[0]), offset3D(r.DstOffsets[1])},
		}
	}
	vk.CmdBlitImage(d.cmdBuffers.must(cb),
		d.images.must(src), vk.ImageLayout(srcLayout),
		d.images.must(dst), vk.ImageLayout(dstLayout),
		uint32(len(blits)), blits, vk.Filter(filter))
}

// CmdExecuteCommands implements device.Device.
func (d *Device) CmdExecuteCommands(cb device.CommandBuffer, secondaries []device.CommandBuffer) {
	native := make([]vk.CommandBuffer, len(secondaries))
	for n, s := range secondaries {
		native[n] = d.cmdBuffers.must(s)
	}
	vk.CmdExecuteCommands(d.cmdBuffers.must(cb), uint32(len(native)), native)
}

// CmdBeginRenderPass implements device.Device.
func (d *Device) CmdBeginRenderPass(cb device.CommandBuffer, begin device.RenderPassBegin) {
	clearValues := make([]vk.ClearValue, len(begin.ClearColors))
	for n, c := range begin.ClearColors {
		clearValues[n].SetColor(c[:])
	}
	vk.CmdBeginRenderPass(d.cmdBuffers.must(cb), &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPasses.must(begin.RenderPass),
		Framebuffer: d.framebuffers.must(begin.Framebuffer),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent2D(begin.Extent),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContents(begin.Contents))
}

// CmdEndRenderPass implements device.Device.
func (d *Device) CmdEndRenderPass(cb device.CommandBuffer) {
	vk.CmdEndRenderPass(d.cmdBuffers.must(cb))
}
