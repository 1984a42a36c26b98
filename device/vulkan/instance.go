// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vulkan implements device.Device over the Vulkan API. It needs
// a Vulkan 1.2 driver, timeline semaphores are part of the core
// feature set used by the renderer.
package vulkan

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

// InstanceConfiguration describes the instance to create.
type InstanceConfiguration struct {
	ApplicationName string
	Extensions      []string
	Layers          []string
	DebugMode       bool
}

// Instance is a Vulkan instance and the physical devices it found.
type Instance struct {
	cfg      InstanceConfiguration
	instance vk.Instance
	surface  vk.Surface
	devices  []vk.PhysicalDevice
}

// NewInstance loads Vulkan through procAddr, the loader entry point
// handed out by the windowing library, and creates an instance. A nil
// procAddr uses the system loader.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfiguration) (*Instance, error) {
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "vkframe"
	}
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, errors.New("vk.SetDefaultGetInstanceProcAddr(): " + err.Error())
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}
	if err := vk.Init(); err != nil {
		return nil, errors.New("vk.Init(): " + err.Error())
	}

	extensions := safeStrings(cfg.Extensions)
	layers := safeStrings(cfg.Layers)
	var instance vk.Instance
	r := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         vk.MakeVersion(1, 2, 0),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(cfg.ApplicationName),
			PEngineName:        "vkframe\x00",
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)
	if err := check("vk.CreateInstance", r); err != nil {
		return nil, err
	}
	vk.InitInstance(instance)

	devices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vulkan.enumerateDevices(): %w", err)
	}
	return &Instance{cfg: cfg, instance: instance, devices: devices}, nil
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var count uint32
	if err := check("vk.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vk.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, devices)); err != nil {
		return nil, err
	}
	return devices[:count], nil
}

// Handle returns the native instance, for windowing libraries creating
// a surface.
func (i *Instance) Handle() vk.Instance {
	return i.instance
}

// SetSurface hands the instance a surface created by the windowing
// library. Devices created afterwards present to it.
func (i *Instance) SetSurface(surface unsafe.Pointer) {
	i.surface = vk.SurfaceFromPointer(uintptr(surface))
}

// Surface returns the surface set with SetSurface, or the null surface.
func (i *Instance) Surface() vk.Surface {
	if i.surface == nil {
		return vk.NullSurface
	}
	return i.surface
}

// Extensions returns the enabled instance extensions.
func (i *Instance) Extensions() []string {
	return i.cfg.Extensions
}

// PhysicalDevicesInfo describes every physical device of the instance.
// Devices whose extensions or layers cannot be enumerated are marked
// Invalid.
func (i *Instance) PhysicalDevicesInfo() []device.PhysicalDeviceInfo {
	infos := make([]device.PhysicalDeviceInfo, len(i.devices))
	for n, pd := range i.devices {
		infos[n] = physicalDeviceInfo(pd)
	}
	return infos
}

func physicalDeviceInfo(pd vk.PhysicalDevice) device.PhysicalDeviceInfo {
	var info device.PhysicalDeviceInfo

	var numExtensions uint32
	if vk.EnumerateDeviceExtensionProperties(pd, "", &numExtensions, nil) != vk.Success {
		info.Invalid = true
	}
	extensions := make([]vk.ExtensionProperties, numExtensions)
	if vk.EnumerateDeviceExtensionProperties(pd, "", &numExtensions, extensions) != vk.Success {
		info.Invalid = true
	}
	for _, ext := range extensions {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	var numLayers uint32
	if vk.EnumerateDeviceLayerProperties(pd, &numLayers, nil) != vk.Success {
		info.Invalid = true
	}
	layers := make([]vk.LayerProperties, numLayers)
	if vk.EnumerateDeviceLayerProperties(pd, &numLayers, layers) != vk.Success {
		info.Invalid = true
	}
	for _, layer := range layers {
		layer.Deref()
		info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
	}

	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()
	for h := uint32(0); h < memory.MemoryHeapCount; h++ {
		memory.MemoryHeaps[h].Deref()
		info.Memory += uint64(memory.MemoryHeaps[h].Size)
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(pd, &props)
	props.Deref()
	info.ID = int(props.DeviceID)
	info.VendorID = int(props.VendorID)
	info.DriverVersion = int(props.DriverVersion)
	info.APIVersion = props.ApiVersion
	info.Name = vk.ToString(props.DeviceName[:])
	copy(info.PipelineCacheUUID[:], props.PipelineCacheUUID[:])
	return info
}

// Destroy destroys the surface and the instance. Every device created
// from the instance must be destroyed first.
func (i *Instance) Destroy() {
	if i.instance == nil {
		return
	}
	if i.surface != nil && i.surface != vk.NullSurface {
		vk.DestroySurface(i.instance, i.surface, nil)
		i.surface = vk.NullSurface
	}
	i.devices = nil
	vk.DestroyInstance(i.instance, nil)
	i.instance = nil
}
