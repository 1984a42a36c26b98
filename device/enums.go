// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import "fmt"

// ImageLayout is an image memory layout. Values match VkImageLayout.
type ImageLayout uint32

// Image layouts
const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPreinitialized                ImageLayout = 8
	ImageLayoutPresentSrc                    ImageLayout = 1000001002

	// ImageLayoutIgnored is never passed to the native API. A barrier
	// targeting it keeps the current layout and only changes access.
	ImageLayoutIgnored ImageLayout = 0x7FFFFFFF
)

// ImageLayouts lists every real layout, in declaration order.
var ImageLayouts = []ImageLayout{
	ImageLayoutUndefined,
	ImageLayoutGeneral,
	ImageLayoutColorAttachmentOptimal,
	ImageLayoutDepthStencilAttachmentOptimal,
	ImageLayoutDepthStencilReadOnlyOptimal,
	ImageLayoutShaderReadOnlyOptimal,
	ImageLayoutTransferSrcOptimal,
	ImageLayoutTransferDstOptimal,
	ImageLayoutPreinitialized,
	ImageLayoutPresentSrc,
}

func (l ImageLayout) String() string {
	switch l {
	case ImageLayoutUndefined:
		return "Undefined"
	case ImageLayoutGeneral:
		return "General"
	case ImageLayoutColorAttachmentOptimal:
		return "ColorAttachmentOptimal"
	case ImageLayoutDepthStencilAttachmentOptimal:
		return "DepthStencilAttachmentOptimal"
	case ImageLayoutDepthStencilReadOnlyOptimal:
		return "DepthStencilReadOnlyOptimal"
	case ImageLayoutShaderReadOnlyOptimal:
		return "ShaderReadOnlyOptimal"
	case ImageLayoutTransferSrcOptimal:
		return "TransferSrcOptimal"
	case ImageLayoutTransferDstOptimal:
		return "TransferDstOptimal"
	case ImageLayoutPreinitialized:
		return "Preinitialized"
	case ImageLayoutPresentSrc:
		return "PresentSrc"
	case ImageLayoutIgnored:
		return "Ignored"
	}
	return fmt.Sprintf("ImageLayout(%d)", uint32(l))
}

// AccessFlags is a memory access mask. Values match VkAccessFlagBits.
type AccessFlags uint32

// Access bits
const (
	AccessIndirectCommandRead         AccessFlags = 0x00000001
	AccessIndexRead                   AccessFlags = 0x00000002
	AccessVertexAttributeRead         AccessFlags = 0x00000004
	AccessUniformRead                 AccessFlags = 0x00000008
	AccessInputAttachmentRead         AccessFlags = 0x00000010
	AccessShaderRead                  AccessFlags = 0x00000020
	AccessShaderWrite                 AccessFlags = 0x00000040
	AccessColorAttachmentRead         AccessFlags = 0x00000080
	AccessColorAttachmentWrite        AccessFlags = 0x00000100
	AccessDepthStencilAttachmentRead  AccessFlags = 0x00000200
	AccessDepthStencilAttachmentWrite AccessFlags = 0x00000400
	AccessTransferRead                AccessFlags = 0x00000800
	AccessTransferWrite               AccessFlags = 0x00001000
	AccessHostRead                    AccessFlags = 0x00002000
	AccessHostWrite                   AccessFlags = 0x00004000
	AccessMemoryRead                  AccessFlags = 0x00008000
	AccessMemoryWrite                 AccessFlags = 0x00010000
)

// PipelineStageFlags is a pipeline stage mask. Values match
// VkPipelineStageFlagBits.
type PipelineStageFlags uint32

// Pipeline stage bits
const (
	PipelineStageTopOfPipe                    PipelineStageFlags = 0x00000001
	PipelineStageDrawIndirect                 PipelineStageFlags = 0x00000002
	PipelineStageVertexInput                  PipelineStageFlags = 0x00000004
	PipelineStageVertexShader                 PipelineStageFlags = 0x00000008
	PipelineStageTessellationControlShader    PipelineStageFlags = 0x00000010
	PipelineStageTessellationEvaluationShader PipelineStageFlags = 0x00000020
	PipelineStageGeometryShader               PipelineStageFlags = 0x00000040
	PipelineStageFragmentShader               PipelineStageFlags = 0x00000080
	PipelineStageEarlyFragmentTests           PipelineStageFlags = 0x00000100
	PipelineStageLateFragmentTests            PipelineStageFlags = 0x00000200
	PipelineStageColorAttachmentOutput        PipelineStageFlags = 0x00000400
	PipelineStageComputeShader                PipelineStageFlags = 0x00000800
	PipelineStageTransfer                     PipelineStageFlags = 0x00001000
	PipelineStageBottomOfPipe                 PipelineStageFlags = 0x00002000
	PipelineStageHost                         PipelineStageFlags = 0x00004000
	PipelineStageAllGraphics                  PipelineStageFlags = 0x00008000
	PipelineStageAllCommands                  PipelineStageFlags = 0x00010000
)

// ImageAspectFlags selects the aspects of an image. Values match
// VkImageAspectFlagBits.
type ImageAspectFlags uint32

// Aspect bits
const (
	ImageAspectColor   ImageAspectFlags = 0x1
	ImageAspectDepth   ImageAspectFlags = 0x2
	ImageAspectStencil ImageAspectFlags = 0x4
)

// QueueFlags describes the capabilities of a queue family.
type QueueFlags uint32

// Queue capability bits
const (
	QueueGraphics      QueueFlags = 0x1
	QueueCompute       QueueFlags = 0x2
	QueueTransfer      QueueFlags = 0x4
	QueueSparseBinding QueueFlags = 0x8
)

// QueueFamilyIgnored marks a barrier without a queue ownership transfer.
const QueueFamilyIgnored = ^uint32(0)

// CommandBufferLevel is either primary or secondary.
type CommandBufferLevel uint32

// Command buffer levels
const (
	CommandBufferLevelPrimary   CommandBufferLevel = 0
	CommandBufferLevelSecondary CommandBufferLevel = 1
)

func (l CommandBufferLevel) String() string {
	if l == CommandBufferLevelSecondary {
		return "secondary"
	}
	return "primary"
}

// CommandBufferUsageFlags are passed when recording begins.
type CommandBufferUsageFlags uint32

// Command buffer usage bits
const (
	CommandBufferUsageOneTimeSubmit      CommandBufferUsageFlags = 0x1
	CommandBufferUsageRenderPassContinue CommandBufferUsageFlags = 0x2
	CommandBufferUsageSimultaneousUse    CommandBufferUsageFlags = 0x4
)

// CommandPoolCreateFlags are passed when a command pool is created.
type CommandPoolCreateFlags uint32

// Command pool bits
const (
	CommandPoolCreateTransient          CommandPoolCreateFlags = 0x1
	CommandPoolCreateResetCommandBuffer CommandPoolCreateFlags = 0x2
)

// MemoryPropertyFlags describes a memory type.
type MemoryPropertyFlags uint32

// Memory property bits
const (
	MemoryPropertyDeviceLocal  MemoryPropertyFlags = 0x1
	MemoryPropertyHostVisible  MemoryPropertyFlags = 0x2
	MemoryPropertyHostCoherent MemoryPropertyFlags = 0x4
	MemoryPropertyHostCached   MemoryPropertyFlags = 0x8
)

// BufferUsageFlags describes how a buffer is used.
type BufferUsageFlags uint32

// Buffer usage bits
const (
	BufferUsageTransferSrc   BufferUsageFlags = 0x1
	BufferUsageTransferDst   BufferUsageFlags = 0x2
	BufferUsageUniformBuffer BufferUsageFlags = 0x10
	BufferUsageStorageBuffer BufferUsageFlags = 0x20
	BufferUsageIndexBuffer   BufferUsageFlags = 0x40
	BufferUsageVertexBuffer  BufferUsageFlags = 0x80
)

// ImageUsageFlags describes how an image is used.
type ImageUsageFlags uint32

// Image usage bits
const (
	ImageUsageTransferSrc            ImageUsageFlags = 0x1
	ImageUsageTransferDst            ImageUsageFlags = 0x2
	ImageUsageSampled                ImageUsageFlags = 0x4
	ImageUsageStorage                ImageUsageFlags = 0x8
	ImageUsageColorAttachment        ImageUsageFlags = 0x10
	ImageUsageDepthStencilAttachment ImageUsageFlags = 0x20
)

// Format is a texel format. Only the formats used here are named.
type Format uint32

// Formats
const (
	FormatUndefined     Format = 0
	FormatR8G8B8A8Unorm Format = 37
	FormatR8G8B8A8Srgb  Format = 43
	FormatB8G8R8A8Unorm Format = 44
	FormatB8G8R8A8Srgb  Format = 50
	FormatD16Unorm      Format = 124
	FormatD32Sfloat     Format = 126
)

// SampleCountFlags is a set of sample counts.
type SampleCountFlags uint32

// Sample counts
const (
	SampleCount1  SampleCountFlags = 0x01
	SampleCount2  SampleCountFlags = 0x02
	SampleCount4  SampleCountFlags = 0x04
	SampleCount8  SampleCountFlags = 0x08
	SampleCount16 SampleCountFlags = 0x10
	SampleCount32 SampleCountFlags = 0x20
	SampleCount64 SampleCountFlags = 0x40
)

// Filter is a blit or sampler filter.
type Filter uint32

// Filters
const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

// AttachmentLoadOp tells a render pass what to do with an attachment
// when it begins.
type AttachmentLoadOp uint32

// Load ops
const (
	AttachmentLoadOpLoad     AttachmentLoadOp = 0
	AttachmentLoadOpClear    AttachmentLoadOp = 1
	AttachmentLoadOpDontCare AttachmentLoadOp = 2
)

// AttachmentStoreOp tells a render pass what to do with an attachment
// when it ends.
type AttachmentStoreOp uint32

// Store ops
const (
	AttachmentStoreOpStore    AttachmentStoreOp = 0
	AttachmentStoreOpDontCare AttachmentStoreOp = 1
)

// SubpassContents selects whether a subpass is recorded inline or
// through secondary command buffers.
type SubpassContents uint32

// Subpass contents
const (
	SubpassContentsInline                  SubpassContents = 0
	SubpassContentsSecondaryCommandBuffers SubpassContents = 1
)
