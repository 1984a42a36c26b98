// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

/*
#cgo CFLAGS: -DVK_NO_PROTOTYPES
#include <stdlib.h>
#include <vulkan/vulkan.h>

// Resolved by github.com/goki/vulkan once the instance is loaded.
extern PFN_vkGetDeviceProcAddr vgo_vkGetDeviceProcAddr;

typedef struct {
	PFN_vkGetSemaphoreCounterValue getValue;
	PFN_vkWaitSemaphores wait;
	PFN_vkSignalSemaphore signal;
} vkframe_timeline;

static PFN_vkVoidFunction vkframe_load(VkDevice device, const char* core, const char* khr) {
	PFN_vkVoidFunction fn = vgo_vkGetDeviceProcAddr(device, core);
	if (fn == NULL) {
		fn = vgo_vkGetDeviceProcAddr(device, khr);
	}
	return fn;
}

static int vkframe_loadTimeline(VkDevice device, vkframe_timeline* t) {
	if (vgo_vkGetDeviceProcAddr == NULL) {
		return 0;
	}
	t->getValue = (PFN_vkGetSemaphoreCounterValue)vkframe_load(device, "vkGetSemaphoreCounterValue", "vkGetSemaphoreCounterValueKHR");
	t->wait = (PFN_vkWaitSemaphores)vkframe_load(device, "vkWaitSemaphores", "vkWaitSemaphoresKHR");
	t->signal = (PFN_vkSignalSemaphore)vkframe_load(device, "vkSignalSemaphore", "vkSignalSemaphoreKHR");
	return t->getValue != NULL && t->wait != NULL && t->signal != NULL;
}

static VkResult vkframe_getSemaphoreValue(vkframe_timeline* t, VkDevice device, VkSemaphore sem, uint64_t* value) {
	return t->getValue(device, sem, value);
}

static VkResult vkframe_waitSemaphores(vkframe_timeline* t, VkDevice device, uint32_t count,
		const VkSemaphore* sems, const uint64_t* values, uint64_t timeout) {
	VkSemaphoreWaitInfo info = {0};
	info.sType = VK_STRUCTURE_TYPE_SEMAPHORE_WAIT_INFO;
	info.semaphoreCount = count;
	info.pSemaphores = sems;
	info.pValues = values;
	return t->wait(device, &info, timeout);
}

static VkResult vkframe_signalSemaphore(vkframe_timeline* t, VkDevice device, VkSemaphore sem, uint64_t value) {
	VkSemaphoreSignalInfo info = {0};
	info.sType = VK_STRUCTURE_TYPE_SEMAPHORE_SIGNAL_INFO;
	info.semaphore = sem;
	info.value = value;
	return t->signal(device, &info);
}
*/
import "C"

import (
	"errors"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// timeline holds the host side timeline semaphore entry points, which
// the vk package declares types for but does not load.
type timeline struct {
	fns *C.vkframe_timeline
}

func loadTimeline(dev vk.Device) (*timeline, error) {
	fns := (*C.vkframe_timeline)(C.calloc(1, C.size_t(unsafe.Sizeof(C.vkframe_timeline{}))))
	if C.vkframe_loadTimeline(nativeDevice(dev), fns) == 0 {
		C.free(unsafe.Pointer(fns))
		return nil, errors.New("vk.GetDeviceProcAddr(): timeline semaphore entry points are missing")
	}
	return &timeline{fns: fns}, nil
}

func (t *timeline) free() {
	if t == nil || t.fns == nil {
		return
	}
	C.free(unsafe.Pointer(t.fns))
	t.fns = nil
}

func nativeDevice(dev vk.Device) C.VkDevice {
	return *(*C.VkDevice)(unsafe.Pointer(&dev))
}

func nativeSemaphore(sem vk.Semaphore) C.VkSemaphore {
	return *(*C.VkSemaphore)(unsafe.Pointer(&sem))
}

func (t *timeline) value(dev vk.Device, sem vk.Semaphore) (uint64, vk.Result) {
	var value C.uint64_t
	r := C.vkframe_getSemaphoreValue(t.fns, nativeDevice(dev), nativeSemaphore(sem), &value)
	return uint64(value), vk.Result(r)
}

func (t *timeline) wait(dev vk.Device, sems []vk.Semaphore, values []uint64, timeout uint64) vk.Result {
	if len(sems) == 0 {
		return vk.Success
	}
	var (
		sem   C.VkSemaphore
		value C.uint64_t
	)
	n := C.size_t(len(sems))
	csems := (*C.VkSemaphore)(C.malloc(n * C.size_t(unsafe.Sizeof(sem))))
	defer C.free(unsafe.Pointer(csems))
	cvalues := (*C.uint64_t)(C.malloc(n * C.size_t(unsafe.Sizeof(value))))
	defer C.free(unsafe.Pointer(cvalues))

	semSlice := unsafe.Slice(csems, len(sems))
	valueSlice := unsafe.Slice(cvalues, len(sems))
	for i, s := range sems {
		semSlice[i] = nativeSemaphore(s)
		valueSlice[i] = C.uint64_t(values[i])
	}
	r := C.vkframe_waitSemaphores(t.fns, nativeDevice(dev), C.uint32_t(len(sems)), csems, cvalues, C.uint64_t(timeout))
	return vk.Result(r)
}

func (t *timeline) signal(dev vk.Device, sem vk.Semaphore, value uint64) vk.Result {
	r := C.vkframe_signalSemaphore(t.fns, nativeDevice(dev), nativeSemaphore(sem), C.uint64_t(value))
	return vk.Result(r)
}
