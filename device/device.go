// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device is the boundary to the native graphics API. Native
// objects are referred to by opaque handles, and every call that can
// fail returns the native Result. The vulkan subpackage implements
// Device on a real GPU, devicetest implements it in memory.
package device

import "time"

// Native handles. The zero value of each is the null handle.
type (
	Queue         uint64
	Semaphore     uint64
	Fence         uint64
	CommandPool   uint64
	CommandBuffer uint64
	Buffer        uint64
	Image         uint64
	ImageView     uint64
	Memory        uint64
	RenderPass    uint64
	Framebuffer   uint64
	Swapchain     uint64
	PipelineCache uint64
)

// WaitForever is the timeout meaning no timeout.
const WaitForever = time.Duration(1<<63 - 1)

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID                int
	VendorID          int
	DriverVersion     int
	APIVersion        uint32
	Name              string
	Invalid           bool
	Extensions        []string
	Layers            []string
	Memory            uint64
	PipelineCacheUUID [16]byte
}

// Limits are the device limits relevant to this package.
type Limits struct {
	FramebufferColorSampleCounts SampleCountFlags
	FramebufferDepthSampleCounts SampleCountFlags
	MaxImageDimension2D          uint32
}

// MemoryType is one entry of the device memory type table.
type MemoryType struct {
	PropertyFlags MemoryPropertyFlags
	HeapIndex     uint32
}

// MemoryProperties is the device memory type table.
type MemoryProperties struct {
	Types     []MemoryType
	HeapSizes []uint64
}

// MemoryRequirements are the allocation requirements of a resource.
type MemoryRequirements struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
}

// QueueFamily describes one queue family of the device.
type QueueFamily struct {
	Index   uint32
	Flags   QueueFlags
	Count   uint32
	Present bool
}

// Extent2D is a width and height in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Extent3D is a width, height and depth in texels.
type Extent3D struct {
	Width  uint32
	Height uint32
	Depth  uint32
}

// Offset3D is a texel offset.
type Offset3D struct {
	X, Y, Z int32
}

// Submit is one queue submission. WaitValues and SignalValues, when
// not nil, hold one value per semaphore in the same position; the
// values of binary semaphores are ignored.
type Submit struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStageFlags
	WaitValues       []uint64
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
	SignalValues     []uint64
}

// Present is one present operation over one or more swapchains.
type Present struct {
	WaitSemaphores []Semaphore
	Swapchains     []Swapchain
	ImageIndices   []uint32
}

// Inheritance is the state a secondary command buffer inherits.
type Inheritance struct {
	RenderPass  RenderPass
	Subpass     uint32
	Framebuffer Framebuffer
}

// BeginInfo is passed when a command buffer starts recording.
// Inheritance is only read for secondary command buffers.
type BeginInfo struct {
	Flags       CommandBufferUsageFlags
	Inheritance *Inheritance
}

// ImageSubresourceRange selects mip levels and array layers of an image.
type ImageSubresourceRange struct {
	AspectMask     ImageAspectFlags
	BaseMipLevel   uint32
	LevelCount     uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// ImageSubresourceLayers selects one mip level of a set of layers.
type ImageSubresourceLayers struct {
	AspectMask     ImageAspectFlags
	MipLevel       uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// ImageMemoryBarrier is one image entry of a pipeline barrier.
type ImageMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	OldLayout           ImageLayout
	NewLayout           ImageLayout
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Image               Image
	SubresourceRange    ImageSubresourceRange
}

// BufferMemoryBarrier is one buffer entry of a pipeline barrier.
type BufferMemoryBarrier struct {
	SrcAccessMask       AccessFlags
	DstAccessMask       AccessFlags
	SrcQueueFamilyIndex uint32
	DstQueueFamilyIndex uint32
	Buffer              Buffer
	Offset              uint64
	Size                uint64
}

// BufferCopy is one region of a buffer to buffer copy.
type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// BufferImageCopy is one region of a buffer to image copy.
type BufferImageCopy struct {
	BufferOffset      uint64
	BufferRowLength   uint32
	BufferImageHeight uint32
	ImageSubresource  ImageSubresourceLayers
	ImageOffset       Offset3D
	ImageExtent       Extent3D
}

// ImageBlit is one region of an image blit.
type ImageBlit struct {
	SrcSubresource ImageSubresourceLayers
	SrcOffsets     [2]Offset3D
	DstSubresource ImageSubresourceLayers
	DstOffsets     [2]Offset3D
}

// ClearColor is a floating point colour clear value.
type ClearColor [4]float32

// RenderPassBegin is passed when a render pass instance begins.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColors []ClearColor
	Contents    SubpassContents
}

// BufferCreateInfo describes a new buffer.
type BufferCreateInfo struct {
	Size  uint64
	Usage BufferUsageFlags
}

// ImageCreateInfo describes a new 2D image.
type ImageCreateInfo struct {
	Format    Format
	Extent    Extent3D
	MipLevels uint32
	Layers    uint32
	Samples   SampleCountFlags
	Usage     ImageUsageFlags
}

// ImageViewCreateInfo describes a new 2D image view.
type ImageViewCreateInfo struct {
	Image            Image
	Format           Format
	SubresourceRange ImageSubresourceRange
}

// AttachmentDescription describes one render pass attachment.
type AttachmentDescription struct {
	Format        Format
	Samples       SampleCountFlags
	LoadOp        AttachmentLoadOp
	StoreOp       AttachmentStoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

// RenderPassCreateInfo describes a single subpass render pass whose
// attachments are all colour attachments.
type RenderPassCreateInfo struct {
	Attachments []AttachmentDescription
}

// FramebufferCreateInfo describes a new framebuffer.
type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

// SwapchainCreateInfo describes a new swapchain on the surface the
// device was created for.
type SwapchainCreateInfo struct {
	MinImageCount uint32
	Extent        Extent2D
	Old           Swapchain
}

// SwapchainProperties are the format and extent a swapchain was
// actually created with.
type SwapchainProperties struct {
	Format Format
	Extent Extent2D
}

// Device is a logical rendering device.
type Device interface {
	Info() PhysicalDeviceInfo
	Limits() Limits
	MemoryProperties() MemoryProperties
	QueueFamilies() []QueueFamily

	GetQueue(family, index uint32) (Queue, Result)
	QueueSubmit(queue Queue, submits []Submit, fence Fence) Result
	QueuePresent(queue Queue, present Present) Result
	QueueWaitIdle(queue Queue) Result
	WaitIdle() Result

	CreateSemaphore() (Semaphore, Result)
	CreateTimelineSemaphore(initial uint64) (Semaphore, Result)
	DestroySemaphore(Semaphore)
	SemaphoreCounterValue(Semaphore) (uint64, Result)
	WaitSemaphores(semaphores []Semaphore, values []uint64, timeout time.Duration) Result
	SignalSemaphore(semaphore Semaphore, value uint64) Result

	CreateFence(signaled bool) (Fence, Result)
	DestroyFence(Fence)
	WaitForFences(fences []Fence, all bool, timeout time.Duration) Result
	ResetFences(fences []Fence) Result
	FenceStatus(Fence) Result

	CreateCommandPool(family uint32, flags CommandPoolCreateFlags) (CommandPool, Result)
	DestroyCommandPool(CommandPool)
	AllocateCommandBuffers(pool CommandPool, level CommandBufferLevel, count int) ([]CommandBuffer, Result)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	ResetCommandBuffer(buffer CommandBuffer, release bool) Result
	BeginCommandBuffer(buffer CommandBuffer, info BeginInfo) Result
	EndCommandBuffer(buffer CommandBuffer) Result

	CmdPipelineBarrier(buffer CommandBuffer, src, dst PipelineStageFlags, buffers []BufferMemoryBarrier, images []ImageMemoryBarrier)
	CmdCopyBuffer(buffer CommandBuffer, src, dst Buffer, regions []BufferCopy)
	CmdCopyBufferToImage(buffer CommandBuffer, src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	CmdBlitImage(buffer CommandBuffer, src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, regions []ImageBlit, filter Filter)
	CmdExecuteCommands(buffer CommandBuffer, secondaries []CommandBuffer)
	CmdBeginRenderPass(buffer CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(buffer CommandBuffer)

	CreateBuffer(info BufferCreateInfo) (Buffer, Result)
	DestroyBuffer(Buffer)
	BufferMemoryRequirements(Buffer) MemoryRequirements
	BindBufferMemory(buffer Buffer, memory Memory, offset uint64) Result

	CreateImage(info ImageCreateInfo) (Image, Result)
	DestroyImage(Image)
	ImageMemoryRequirements(Image) MemoryRequirements
	BindImageMemory(image Image, memory Memory, offset uint64) Result
	CreateImageView(info ImageViewCreateInfo) (ImageView, Result)
	DestroyImageView(ImageView)

	AllocateMemory(size uint64, typeIndex uint32) (Memory, Result)
	FreeMemory(Memory)
	MapMemory(memory Memory, offset, size uint64) ([]byte, Result)
	UnmapMemory(Memory)

	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, Result)
	DestroyRenderPass(RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, Result)
	DestroyFramebuffer(Framebuffer)

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, SwapchainProperties, Result)
	DestroySwapchain(Swapchain)
	SwapchainImages(Swapchain) ([]Image, Result)
	AcquireNextImage(swapchain Swapchain, timeout time.Duration, semaphore Semaphore, fence Fence) (uint32, Result)

	CreatePipelineCache(initial []byte) (PipelineCache, Result)
	PipelineCacheData(PipelineCache) ([]byte, Result)
	DestroyPipelineCache(PipelineCache)

	// Destroy destroys the logical device. Every object created
	// through it must have been destroyed first.
	Destroy()
}
