// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

// DeviceConfiguration selects and configures the logical device.
type DeviceConfiguration struct {
	// PhysicalDevice indexes Instance.PhysicalDevicesInfo.
	PhysicalDevice int
	Extensions     []string

	// QueuesPerFamily caps the queues created per family, every
	// queue of the family when zero.
	QueuesPerFamily uint32
}

// Device implements device.Device on a Vulkan logical device. Native
// objects live in arenas and are handed out as opaque handles.
type Device struct {
	physical vk.PhysicalDevice
	device   vk.Device
	surface  vk.Surface
	timeline *timeline

	info     device.PhysicalDeviceInfo
	limits   device.Limits
	memory   device.MemoryProperties
	families []device.QueueFamily

	queueMu    sync.Mutex
	queueIndex map[[2]uint32]device.Queue

	queues        *arena[device.Queue, vk.Queue]
	semaphores    *arena[device.Semaphore, vk.Semaphore]
	fences        *arena[device.Fence, vk.Fence]
	pools         *arena[device.CommandPool, *commandPool]
	cmdBuffers    *arena[device.CommandBuffer, vk.CommandBuffer]
	buffers       *arena[device.Buffer, vk.Buffer]
	images        *arena[device.Image, vk.Image]
	views         *arena[device.ImageView, vk.ImageView]
	memories      *arena[device.Memory, *deviceMemory]
	renderPasses  *arena[device.RenderPass, vk.RenderPass]
	framebuffers  *arena[device.Framebuffer, vk.Framebuffer]
	swapchains    *arena[device.Swapchain, *swapchain]
	pipelineCache *arena[device.PipelineCache, vk.PipelineCache]
}

var _ device.Device = (*Device)(nil)

// NewDevice creates a logical device on the selected physical device,
// with every queue family and the timeline semaphore feature enabled.
// With a surface set, a graphics queue family able to present to it
// is required.
func (i *Instance) NewDevice(cfg DeviceConfiguration) (*Device, error) {
	if cfg.PhysicalDevice < 0 || cfg.PhysicalDevice >= len(i.devices) {
		return nil, fmt.Errorf("vulkan.NewDevice(): physical device %d of %d", cfg.PhysicalDevice, len(i.devices))
	}
	pd := i.devices[cfg.PhysicalDevice]
	info := physicalDeviceInfo(pd)
	if info.APIVersion < vk.MakeVersion(1, 2, 0) {
		return nil, fmt.Errorf("vulkan.NewDevice(): %s supports Vulkan %d.%d, 1.2 is required",
			info.Name, info.APIVersion>>22, (info.APIVersion>>12)&0x3ff)
	}

	d := &Device{
		physical:      pd,
		surface:       i.Surface(),
		info:          info,
		queueIndex:    make(map[[2]uint32]device.Queue),
		queues:        newArena[device.Queue, vk.Queue](),
		semaphores:    newArena[device.Semaphore, vk.Semaphore](),
		fences:        newArena[device.Fence, vk.Fence](),
		pools:         newArena[device.CommandPool, *commandPool](),
		cmdBuffers:    newArena[device.CommandBuffer, vk.CommandBuffer](),
		buffers:       newArena[device.Buffer, vk.Buffer](),
		images:        newArena[device.Image, vk.Image](),
		views:         newArena[device.ImageView, vk.ImageView](),
		memories:      newArena[device.Memory, *deviceMemory](),
		renderPasses:  newArena[device.RenderPass, vk.RenderPass](),
		framebuffers:  newArena[device.Framebuffer, vk.Framebuffer](),
		swapchains:    newArena[device.Swapchain, *swapchain](),
		pipelineCache: newArena[device.PipelineCache, vk.PipelineCache](),
	}
	if err := d.queryFamilies(cfg.QueuesPerFamily); err != nil {
		return nil, err
	}
	d.queryProperties()

	extensions := cfg.Extensions
	if d.surface != vk.NullSurface {
		extensions = append(extensions, vk.KhrSwapchainExtensionName)
	}
	extensions = safeStrings(extensions)

	queueInfos := make([]vk.DeviceQueueCreateInfo, len(d.families))
	for n, f := range d.families {
		priorities := make([]float32, f.Count)
		for p := range priorities {
			priorities[p] = 1
		}
		queueInfos[n] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f.Index,
			QueueCount:       f.Count,
			PQueuePriorities: priorities,
		}
	}

	features := vk.PhysicalDeviceVulkan12Features{
		SType:             vk.StructureTypePhysicalDeviceVulkan12Features,
		TimelineSemaphore: vk.True,
	}
	featuresRef, allocs := features.PassRef()
	defer allocs.Free()

	var dev vk.Device
	r := vk.CreateDevice(pd, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   unsafe.Pointer(featuresRef),
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}, nil, &dev)
	if err := check("vk.CreateDevice", r); err != nil {
		return nil, err
	}
	tl, err := loadTimeline(dev)
	if err != nil {
		vk.DestroyDevice(dev, nil)
		return nil, err
	}
	d.device, d.timeline = dev, tl
	return d, nil
}

func (d *Device) queryFamilies(perFamily uint32) error {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &count, nil)
	if count == 0 {
		return errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queue families on GPU")
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physical, &count, props)

	var graphics, present bool
	for n := uint32(0); n < count; n++ {
		props[n].Deref()
		f := device.QueueFamily{
			Index: n,
			Flags: device.QueueFlags(props[n].QueueFlags),
			Count: props[n].QueueCount,
		}
		if perFamily != 0 && f.Count > perFamily {
			f.Count = perFamily
		}
		if d.surface != vk.NullSurface {
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(d.physical, n, d.surface, &supported)
			f.Present = supported.B()
		}
		if f.Flags&device.QueueGraphics != 0 {
			graphics = true
			present = present || f.Present
		}
		d.families = append(d.families, f)
	}
	if !graphics {
		return errors.New("vulkan.NewDevice(): could not find a queue family with graphics capabilities")
	}
	if d.surface != vk.NullSurface && !present {
		return errors.New("vulkan.NewDevice(): could not find a graphics queue family with present capabilities")
	}
	return nil
}

func (d *Device) queryProperties() {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical, &props)
	props.Deref()
	props.Limits.Deref()
	d.limits = device.Limits{
		FramebufferColorSampleCounts: device.SampleCountFlags(props.Limits.FramebufferColorSampleCounts),
		FramebufferDepthSampleCounts: device.SampleCountFlags(props.Limits.FramebufferDepthSampleCounts),
		MaxImageDimension2D:          props.Limits.MaxImageDimension2D,
	}

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &memory)
	memory.Deref()
	for t := uint32(0); t < memory.MemoryTypeCount; t++ {
		memory.MemoryTypes[t].Deref()
		d.memory.Types = append(d.memory.Types, device.MemoryType{
			PropertyFlags: device.MemoryPropertyFlags(memory.MemoryTypes[t].PropertyFlags),
			HeapIndex:     memory.MemoryTypes[t].HeapIndex,
		})
	}
	for h := uint32(0); h < memory.MemoryHeapCount; h++ {
		memory.MemoryHeaps[h].Deref()
		d.memory.HeapSizes = append(d.memory.HeapSizes, uint64(memory.MemoryHeaps[h].Size))
	}
}

// Handle returns the native logical device.
func (d *Device) Handle() vk.Device {
	return d.device
}

// Info implements device.Device.
func (d *Device) Info() device.PhysicalDeviceInfo {
	return d.info
}

// Limits implements device.Device.
func (d *Device) Limits() device.Limits {
	return d.limits
}

// MemoryProperties implements device.Device.
func (d *Device) MemoryProperties() device.MemoryProperties {
	return d.memory
}

// QueueFamilies implements device.Device.
func (d *Device) QueueFamilies() []device.QueueFamily {
	return append([]device.QueueFamily(nil), d.families...)
}

// GetQueue implements device.Device. The same queue always maps to the
// same handle.
func (d *Device) GetQueue(family, index uint32) (device.Queue, device.Result) {
	if int(family) >= len(d.families) || index >= d.families[family].Count {
		return 0, device.ErrorInitializationFailed
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	key := [2]uint32{family, index}
	if h, ok := d.queueIndex[key]; ok {
		return h, device.Success
	}
	var queue vk.Queue
	vk.GetDeviceQueue(d.device, family, index, &queue)
	h := d.queues.put(queue)
	d.queueIndex[key] = h
	return h, device.Success
}

// QueueWaitIdle implements device.Device.
func (d *Device) QueueWaitIdle(queue device.Queue) device.Result {
	return result(vk.QueueWaitIdle(d.queues.must(queue)))
}

// WaitIdle implements device.Device.
func (d *Device) WaitIdle() device.Result {
	return result(vk.DeviceWaitIdle(d.device))
}

// Live returns the number of live objects. Queues are not counted,
// swapchain images are.
func (d *Device) Live() int {
	return d.semaphores.len() + d.fences.len() + d.pools.len() + d.cmdBuffers.len() +
		d.buffers.len() + d.images.len() + d.views.len() + d.memories.len() +
		d.renderPasses.len() + d.framebuffers.len() + d.swapchains.len() + d.pipelineCache.len()
}

// Destroy implements device.Device.
func (d *Device) Destroy() {
	if d.device == nil {
		return
	}
	vk.DeviceWaitIdle(d.device)
	vk.DestroyDevice(d.device, nil)
	d.device = nil
	d.timeline.free()
}
