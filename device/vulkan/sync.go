// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"time"
	"unsafe"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

// CreateSemaphore implements device.Device.
func (d *Device) CreateSemaphore() (device.Semaphore, device.Result) {
	var sem vk.Semaphore
	r := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &sem)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.semaphores.put(sem), device.Success
}

// CreateTimelineSemaphore implements device.Device.
func (d *Device) CreateTimelineSemaphore(initial uint64) (device.Semaphore, device.Result) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  initial,
	}
	typeRef, allocs := typeInfo.PassRef()
	defer allocs.Free()

	var sem vk.Semaphore
	r := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(typeRef),
	}, nil, &sem)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.semaphores.put(sem), device.Success
}

// DestroySemaphore implements device.Device.
func (d *Device) DestroySemaphore(s device.Semaphore) {
	if sem, ok := d.semaphores.take(s); ok {
		vk.DestroySemaphore(d.device, sem, nil)
	}
}

// SemaphoreCounterValue implements device.Device.
func (d *Device) SemaphoreCounterValue(s device.Semaphore) (uint64, device.Result) {
	value, r := d.timeline.value(d.device, d.semaphores.must(s))
	return value, result(r)
}

// WaitSemaphores implements device.Device. It waits for every semaphore
// to reach its value.
func (d *Device) WaitSemaphores(semaphores []device.Semaphore, values []uint64, timeout time.Duration) device.Result {
	sems := make([]vk.Semaphore, len(semaphores))
	for n, s := range semaphores {
		sems[n] = d.semaphores.must(s)
	}
	return result(d.timeline.wait(d.device, sems, values, nanoseconds(timeout)))
}

// SignalSemaphore implements device.Device.
func (d *Device) SignalSemaphore(s device.Semaphore, value uint64) device.Result {
	return result(d.timeline.signal(d.device, d.semaphores.must(s), value))
}

// CreateFence implements device.Device.
func (d *Device) CreateFence(signaled bool) (device.Fence, device.Result) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	r := vk.CreateFence(d.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &fence)
	if r != vk.Success {
		return 0, result(r)
	}
	return d.fences.put(fence), device.Success
}

// DestroyFence implements device.Device.
func (d *Device) DestroyFence(f device.Fence) {
	if fence, ok := d.fences.take(f); ok {
		vk.DestroyFence(d.device, fence, nil)
	}
}

func (d *Device) nativeFences(fences []device.Fence) []vk.Fence {
	out := make([]vk.Fence, len(fences))
	for n, f := range fences {
		out[n] = d.fences.must(f)
	}
	return out
}

// WaitForFences implements device.Device.
func (d *Device) WaitForFences(fences []device.Fence, all bool, timeout time.Duration) device.Result {
	r := vk.WaitForFences(d.device, uint32(len(fences)), d.nativeFences(fences), bool32(all), nanoseconds(timeout))
	return result(r)
}

// ResetFences implements device.Device.
func (d *Device) ResetFences(fences []device.Fence) device.Result {
	return result(vk.ResetFences(d.device, uint32(len(fences)), d.nativeFences(fences)))
}

// FenceStatus implements device.Device.
func (d *Device) FenceStatus(f device.Fence) device.Result {
	return result(vk.GetFenceStatus(d.device, d.fences.must(f)))
}

// QueueSubmit implements device.Device. Submissions carrying values are
// chained with a timeline semaphore submit description.
func (d *Device) QueueSubmit(queue device.Queue, submits []device.Submit, fence device.Fence) device.Result {
	infos := make([]vk.SubmitInfo, len(submits))
	for n, s := range submits {
		waits := make([]vk.Semaphore, len(s.WaitSemaphores))
		for i, w := range s.WaitSemaphores {
			waits[i] = d.semaphores.must(w)
		}
		stages := make([]vk.PipelineStageFlags, len(s.WaitStages))
		for i, st := range s.WaitStages {
			stages[i] = vk.PipelineStageFlags(st)
		}
		signals := make([]vk.Semaphore, len(s.SignalSemaphores))
		for i, sig := range s.SignalSemaphores {
			signals[i] = d.semaphores.must(sig)
		}
		buffers := make([]vk.CommandBuffer, len(s.CommandBuffers))
		for i, cb := range s.CommandBuffers {
			buffers[i] = d.cmdBuffers.must(cb)
		}
		infos[n] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waits)),
			PWaitSemaphores:      waits,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(buffers)),
			PCommandBuffers:      buffers,
			SignalSemaphoreCount: uint32(len(signals)),
			PSignalSemaphores:    signals,
		}
		if s.WaitValues == nil && s.SignalValues == nil {
			continue
		}
		chain := vk.TimelineSemaphoreSubmitInfo{
			SType:                     vk.StructureTypeTimelineSemaphoreSubmitInfo,
			WaitSemaphoreValueCount:   uint32(len(s.WaitValues)),
			PWaitSemaphoreValues:      s.WaitValues,
			SignalSemaphoreValueCount: uint32(len(s.SignalValues)),
			PSignalSemaphoreValues:    s.SignalValues,
		}
		ref, allocs := chain.PassRef()
		defer allocs.Free()
		infos[n].PNext = unsafe.Pointer(ref)
	}
	r := vk.QueueSubmit(d.queues.must(queue), uint32(len(infos)), infos, d.fences.must(fence))
	return result(r)
}

// QueuePresent implements device.Device.
func (d *Device) QueuePresent(queue device.Queue, present device.Present) device.Result {
	waits := make([]vk.Semaphore, len(present.WaitSemaphores))
	for n, w := range present.WaitSemaphores {
		waits[n] = d.semaphores.must(w)
	}
	swapchains := make([]vk.Swapchain, len(present.Swapchains))
	for n, s := range present.Swapchains {
		if sc, ok := d.swapchains.get(s); ok {
			swapchains[n] = sc.handle
		}
	}
	r := vk.QueuePresent(d.queues.must(queue), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     uint32(len(swapchains)),
		PSwapchains:        swapchains,
		PImageIndices:      present.ImageIndices,
	})
	return result(r)
}
