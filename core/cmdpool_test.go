// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"

	"github.com/devblok/vkframe/core"
	"github.com/devblok/vkframe/device"
	qt "github.com/frankban/quicktest"
)

const (
	primary   = device.CommandBufferLevelPrimary
	secondary = device.CommandBufferLevelSecondary
)

func TestCmdPoolCheckout(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 2, MaxSecondaryBuffers: 3})
	c.Assert(err, qt.IsNil)
	c.Assert(pool.Capacity(primary), qt.Equals, 2)
	c.Assert(pool.Capacity(secondary), qt.Equals, 3)
	c.Assert(pool.Available(primary), qt.Equals, 2)
	c.Assert(native.Live()["command buffer"], qt.Equals, 5)

	p0, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)
	p1, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)
	c.Assert(p0.Handle(), qt.Not(qt.Equals), p1.Handle())
	c.Assert(p0.State(), qt.Equals, core.CmdBufferInitial)
	c.Assert(p0.Level(), qt.Equals, primary)
	c.Assert(pool.Available(primary), qt.Equals, 0)
	c.Assert(pool.CheckedOut(primary), qt.Equals, 2)

	_, err = pool.NewPrimary()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `core.CmdPool.checkout\(\): no free primary buffers, 2 of 2 checked out`)

	s0, err := pool.NewSecondary()
	c.Assert(err, qt.IsNil)
	c.Assert(s0.Level(), qt.Equals, secondary)
	c.Assert(pool.Available(secondary), qt.Equals, 2)

	h := p0.Handle()
	c.Assert(pool.Return(p0), qt.IsNil)
	c.Assert(p0.State(), qt.Equals, core.CmdBufferEmpty)
	c.Assert(p0.Handle(), qt.Equals, device.CommandBuffer(0))
	c.Assert(native.Resets(h), qt.Equals, 1)
	c.Assert(pool.Available(primary), qt.Equals, 1)

	// the returned buffer is handed out again
	p2, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)
	c.Assert(p2.Handle(), qt.Equals, h)

	c.Assert(p1.Release(), qt.IsNil)
	c.Assert(p2.Release(), qt.IsNil)
	c.Assert(s0.Release(), qt.IsNil)
	c.Assert(pool.CheckedOut(primary), qt.Equals, 0)
	c.Assert(pool.Destroy(), qt.IsNil)
	c.Assert(pool.Destroy(), qt.IsNil)
	assertClean(c, native)
	assertReleased(c, native)
}

func TestCmdPoolReturnErrors(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	pool, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.IsNil)
	other, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.IsNil)

	cmd, err := pool.NewPrimary()
	c.Assert(err, qt.IsNil)

	err = other.Return(cmd)
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(cmd.State(), qt.Equals, core.CmdBufferInitial)

	err = pool.Destroy()
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(pool.Return(cmd), qt.IsNil)
	err = pool.Return(cmd)
	c.Assert(isInvariant(err), qt.Equals, true)
	err = cmd.Release()
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(pool.Destroy(), qt.IsNil)
	_, err = pool.NewPrimary()
	c.Assert(isInvariant(err), qt.Equals, true)
	_, err = pool.NewSecondary()
	c.Assert(isInvariant(err), qt.Equals, true)

	c.Assert(other.Destroy(), qt.IsNil)
	assertClean(c, native)
	assertReleased(c, native)
}

func TestCmdPoolConfigErrors(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	_, err := dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: -1})
	c.Assert(isInvariant(err), qt.Equals, true)

	native.Fail("CreateCommandPool", device.ErrorOutOfHostMemory)
	_, err = dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 1})
	c.Assert(err, qt.ErrorMatches, `vk.CreateCommandPool\(\): ErrorOutOfHostMemory`)

	// the secondary allocation fails after the primary one succeeded
	native.Fail("AllocateCommandBuffers", device.Success)
	native.Fail("AllocateCommandBuffers", device.ErrorOutOfDeviceMemory)
	_, err = dev.NewCmdPool(core.CmdPoolConfig{MaxPrimaryBuffers: 2, MaxSecondaryBuffers: 2})
	c.Assert(err, qt.ErrorMatches, `vk.AllocateCommandBuffers\(\): ErrorOutOfDeviceMemory`)

	assertClean(c, native)
	assertReleased(c, native)
}

func TestCmdPoolEmptyQuota(t *testing.T) {
	c := qt.New(t)
	dev, native := newDevice(c)

	pool, err := dev.NewCmdPool(core.CmdPoolConfig{Family: 1, MaxPrimaryBuffers: 1, Transient: true})
	c.Assert(err, qt.IsNil)
	c.Assert(pool.Family(), qt.Equals, uint32(1))
	c.Assert(pool.Capacity(secondary), qt.Equals, 0)
	_, err = pool.NewSecondary()
	c.Assert(isInvariant(err), qt.Equals, true)
	c.Assert(pool.Destroy(), qt.IsNil)
	assertReleased(c, native)
}
