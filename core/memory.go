// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"

	"github.com/devblok/vkframe/device"
)

// MemoryAllocator allocates device memory. It makes one allocation per
// request.
type MemoryAllocator struct {
	dev   device.Device
	props device.MemoryProperties
}

// NewMemoryAllocator creates an allocator for dev.
func NewMemoryAllocator(dev device.Device) *MemoryAllocator {
	return &MemoryAllocator{dev: dev, props: dev.MemoryProperties()}
}

// FindMemoryType returns the index of the first memory type allowed by
// filter that has every one of properties.
func (a *MemoryAllocator) FindMemoryType(filter uint32, properties device.MemoryPropertyFlags) (uint32, error) {
	for i, t := range a.props.Types {
		if filter&(1<<uint(i)) != 0 && t.PropertyFlags&properties == properties {
			return uint32(i), nil
		}
	}
	return 0, fmt.Errorf("core.FindMemoryType(%#x, %#x): %w", filter, properties, ErrNoMemoryType)
}

// Malloc allocates memory satisfying req with properties.
func (a *MemoryAllocator) Malloc(req device.MemoryRequirements, properties device.MemoryPropertyFlags) (*Memory, error) {
	index, err := a.FindMemoryType(req.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	handle, r := a.dev.AllocateMemory(req.Size, index)
	if err := device.Check("vk.AllocateMemory", r); err != nil {
		return nil, err
	}
	return &Memory{dev: a.dev, handle: handle, size: req.Size, properties: a.props.Types[index].PropertyFlags}, nil
}

// Memory is a device memory allocation.
type Memory struct {
	dev        device.Device
	handle     device.Memory
	size       uint64
	properties device.MemoryPropertyFlags
}

// Handle returns the native memory.
func (m *Memory) Handle() device.Memory {
	return m.handle
}

// Size returns the allocation size.
func (m *Memory) Size() uint64 {
	return m.size
}

// Write copies data into the memory at offset. The memory must be host
// visible.
func (m *Memory) Write(offset uint64, data []byte) error {
	if m.properties&device.MemoryPropertyHostVisible == 0 {
		return fmt.Errorf("core.Memory.Write(): memory is not host visible: %w", ErrUnsupported)
	}
	if offset+uint64(len(data)) > m.size {
		return fmt.Errorf("core.Memory.Write(%d, %d bytes): %w", offset, len(data), ErrInvalidRange)
	}
	mapped, r := m.dev.MapMemory(m.handle, offset, uint64(len(data)))
	if err := device.Check("vk.MapMemory", r); err != nil {
		return err
	}
	copy(mapped, data)
	m.dev.UnmapMemory(m.handle)
	return nil
}

// Release frees the memory.
func (m *Memory) Release() {
	if m == nil || m.handle == 0 {
		return
	}
	m.dev.FreeMemory(m.handle)
	m.handle = 0
}

// Buffer is a buffer bound to its own memory.
type Buffer struct {
	noCopy noCopy

	dev    *Device
	id     ID
	handle device.Buffer
	size   uint64
	memory *Memory
}

// NewBuffer creates a buffer of size bytes for usage, backed by memory
// with properties.
func (d *Device) NewBuffer(size uint64, usage device.BufferUsageFlags, properties device.MemoryPropertyFlags) (*Buffer, error) {
	handle, r := d.native.CreateBuffer(device.BufferCreateInfo{Size: size, Usage: usage})
	if err := device.Check("vk.CreateBuffer", r); err != nil {
		return nil, err
	}
	memory, err := d.memory.Malloc(d.native.BufferMemoryRequirements(handle), properties)
	if err != nil {
		d.native.DestroyBuffer(handle)
		return nil, err
	}
	if err := device.Check("vk.BindBufferMemory", d.native.BindBufferMemory(handle, memory.handle, 0)); err != nil {
		d.native.DestroyBuffer(handle)
		memory.Release()
		return nil, err
	}
	return &Buffer{dev: d, id: d.NextID(), handle: handle, size: size, memory: memory}, nil
}

// NewStagingBuffer creates a host visible transfer source holding data.
func (d *Device) NewStagingBuffer(data []byte) (*Buffer, error) {
	b, err := d.NewBuffer(uint64(len(data)), device.BufferUsageTransferSrc,
		device.MemoryPropertyHostVisible|device.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	if err := b.Write(0, data); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// ID returns the object ID.
func (b *Buffer) ID() ID {
	return b.id
}

// Handle returns the native buffer.
func (b *Buffer) Handle() device.Buffer {
	return b.handle
}

// Size returns the size the buffer was created with.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Memory returns the memory backing the buffer.
func (b *Buffer) Memory() *Memory {
	return b.memory
}

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("core.Buffer.Write(%d, %d bytes): %w", offset, len(data), ErrInvalidRange)
	}
	return b.memory.Write(offset, data)
}

// Destroy destroys the buffer and frees its memory.
func (b *Buffer) Destroy() {
	if b == nil || b.handle == 0 {
		return
	}
	b.dev.native.DestroyBuffer(b.handle)
	b.memory.Release()
	b.handle = 0
}
