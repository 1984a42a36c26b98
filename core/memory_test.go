// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"errors"
	"testing"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	qt "github.com/frankban/quicktest"
)

func TestStagingBuffer(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	data := []byte("staged pixels")
	b, err := dev.NewStagingBuffer(data)
	c.Assert(err, qt.IsNil)
	c.Assert(b.Size(), qt.Equals, uint64(len(data)))
	c.Assert(b.Memory().Size(), qt.Equals, uint64(256))

	mem := native.BoundMemory(uint64(b.Handle()))
	c.Assert(mem, qt.Equals, b.Memory().Handle())
	c.Assert(native.MemoryData(mem)[:len(data)], qt.DeepEquals, data)

	c.Assert(b.Write(7, []byte("bytes!")), qt.IsNil)
	c.Assert(string(native.MemoryData(mem)[:len(data)]), qt.Equals, "staged bytes!")

	err = b.Write(10, []byte("toolong"))
	c.Assert(errors.Is(err, core.ErrInvalidRange), qt.Equals, true)

	b.Destroy()
	b.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func TestDeviceLocalWrite(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	b, err := dev.NewBuffer(64, device.BufferUsageTransferDst, device.MemoryPropertyDeviceLocal)
	c.Assert(err, qt.IsNil)
	err = b.Write(0, []byte{1})
	c.Assert(errors.Is(err, core.ErrUnsupported), qt.Equals, true)

	b.Destroy()
	assertClean(c, native)
	assertReleased(c, native)
}

func TestMallocNoMemoryType(t *testing.T) {
	c := qt.New(t)
	dev, _ := newDevice(c)

	// only type 1 is allowed and it is not device local
	_, err := dev.Memory().Malloc(device.MemoryRequirements{Size: 256, MemoryTypeBits: 0x2}, device.MemoryPropertyDeviceLocal)
	c.Assert(errors.Is(err, core.ErrNoMemoryType), qt.Equals, true)
}

func TestResourceCreateFailures(t *testing.T) {
	for _, op := range []string{"CreateBuffer", "AllocateMemory", "BindBufferMemory"} {
		t.Run("buffer/"+op, func(t *testing.T) {
			c := qt.New(t)
			dev, native := newDevice(c)
			native.Fail(op, device.ErrorOutOfDeviceMemory)
			_, err := dev.NewBuffer(64, device.BufferUsageTransferSrc, device.MemoryPropertyHostVisible)
			c.Assert(err, qt.ErrorMatches, `vk\.\w+\(\): ErrorOutOfDeviceMemory`)
			assertClean(c, native)
			assertReleased(c, native)
		})
	}
	for _, op := range []string{"CreateImage", "AllocateMemory", "BindImageMemory"} {
		t.Run("image/"+op, func(t *testing.T) {
			c := qt.New(t)
			dev, native := newDevice(c)
			native.Fail(op, device.ErrorOutOfDeviceMemory)
			_, err := dev.NewImage(core.ImageConfig{
				Format: device.FormatR8G8B8A8Unorm,
				Extent: device.Extent2D{Width: 8, Height: 8},
				Usage:  device.ImageUsageSampled,
			})
			c.Assert(err, qt.ErrorMatches, `vk\.\w+\(\): ErrorOutOfDeviceMemory`)
			assertClean(c, native)
			assertReleased(c, native)
		})
	}
}
