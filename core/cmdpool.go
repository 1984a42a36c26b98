// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/devblok/vkframe/device"
	"github.com/sirupsen/logrus"
)

// CmdPool owns a native command pool and every command buffer allocated
// from it. Buffers are allocated up front and checked out with NewPrimary
// and NewSecondary, then given back with Return or CmdBuffer.Release.
// A CmdPool is not safe for concurrent use.
type CmdPool struct {
	noCopy noCopy

	dev    *Device
	id     ID
	handle device.CommandPool
	cfg    CmdPoolConfig
	max    [2]int
	free   [2][]device.CommandBuffer
	out    [2]map[device.CommandBuffer]struct{}
}

// NewCmdPool creates a pool for queue family cfg.Family and allocates
// both of its buffer quotas.
func (d *Device) NewCmdPool(cfg CmdPoolConfig) (*CmdPool, error) {
	if cfg.MaxPrimaryBuffers < 0 || cfg.MaxSecondaryBuffers < 0 {
		return nil, d.invariant("core.NewCmdPool", "negative buffer quota %d/%d", cfg.MaxPrimaryBuffers, cfg.MaxSecondaryBuffers)
	}
	flags := device.CommandPoolCreateResetCommandBuffer
	if cfg.Transient {
		flags |= device.CommandPoolCreateTransient
	}
	handle, r := d.native.CreateCommandPool(cfg.Family, flags)
	if err := device.Check("vk.CreateCommandPool", r); err != nil {
		return nil, err
	}
	p := &CmdPool{
		dev:    d,
		id:     d.NextID(),
		handle: handle,
		cfg:    cfg,
		max:    [2]int{cfg.MaxPrimaryBuffers, cfg.MaxSecondaryBuffers},
	}
	for _, level := range []device.CommandBufferLevel{device.CommandBufferLevelPrimary, device.CommandBufferLevelSecondary} {
		p.out[level] = make(map[device.CommandBuffer]struct{}, p.max[level])
		if p.max[level] == 0 {
			continue
		}
		buffers, r := d.native.AllocateCommandBuffers(handle, level, p.max[level])
		if err := device.Check("vk.AllocateCommandBuffers", r); err != nil {
			p.destroy()
			return nil, err
		}
		p.free[level] = buffers
	}
	d.log.WithFields(logrus.Fields{
		"id":        p.id,
		"kind":      "command pool",
		"family":    cfg.Family,
		"primary":   cfg.MaxPrimaryBuffers,
		"secondary": cfg.MaxSecondaryBuffers,
	}).Debug("created")
	return p, nil
}

// Handle returns the native command pool.
func (p *CmdPool) Handle() device.CommandPool {
	return p.handle
}

// Family returns the queue family buffers of the pool are submitted to.
func (p *CmdPool) Family() uint32 {
	return p.cfg.Family
}

// Available returns the number of free buffers of level.
func (p *CmdPool) Available(level device.CommandBufferLevel) int {
	return len(p.free[level])
}

// CheckedOut returns the number of buffers of level that are in use.
func (p *CmdPool) CheckedOut(level device.CommandBufferLevel) int {
	return len(p.out[level])
}

// Capacity returns the configured number of buffers of level.
func (p *CmdPool) Capacity(level device.CommandBufferLevel) int {
	return p.max[level]
}

// NewPrimary checks out a primary command buffer.
func (p *CmdPool) NewPrimary() (*PrimaryCmdBuffer, error) {
	h, err := p.checkout(device.CommandBufferLevelPrimary)
	if err != nil {
		return nil, err
	}
	return &PrimaryCmdBuffer{cmdBuffer: newCmdBuffer(p, h, device.CommandBufferLevelPrimary)}, nil
}

// NewSecondary checks out a secondary command buffer.
func (p *CmdPool) NewSecondary() (*SecondaryCmdBuffer, error) {
	h, err := p.checkout(device.CommandBufferLevelSecondary)
	if err != nil {
		return nil, err
	}
	return &SecondaryCmdBuffer{cmdBuffer: newCmdBuffer(p, h, device.CommandBufferLevelSecondary)}, nil
}

// Return gives cb back to the pool. The buffer is reset and cb is left
// empty.
func (p *CmdPool) Return(cb CmdBuffer) error {
	c := cb.base()
	if c.state == CmdBufferEmpty {
		return p.dev.invariant("core.CmdPool.Return", "%s buffer is empty", c.level)
	}
	if c.pool != p {
		return p.dev.invariant("core.CmdPool.Return", "%s buffer %d belongs to another pool", c.level, c.handle)
	}
	err := p.giveBack(c.level, c.handle)
	c.clear()
	return err
}

func (p *CmdPool) checkout(level device.CommandBufferLevel) (device.CommandBuffer, error) {
	if p.handle == 0 {
		return 0, p.dev.invariant("core.CmdPool.checkout", "pool %d is destroyed", p.id)
	}
	n := len(p.free[level])
	if n == 0 {
		return 0, p.dev.invariant("core.CmdPool.checkout", "no free %s buffers, %d of %d checked out", level, len(p.out[level]), p.max[level])
	}
	h := p.free[level][n-1]
	p.free[level] = p.free[level][:n-1]
	p.out[level][h] = struct{}{}
	return h, nil
}

func (p *CmdPool) giveBack(level device.CommandBufferLevel, h device.CommandBuffer) error {
	if _, ok := p.out[level][h]; !ok {
		return p.dev.invariant("core.CmdPool.giveBack", "%s buffer %d is not checked out from pool %d", level, h, p.id)
	}
	if len(p.free[level])+1 > p.max[level] {
		return p.dev.invariant("core.CmdPool.giveBack", "pool %d already holds %d %s buffers", p.id, p.max[level], level)
	}
	delete(p.out[level], h)
	p.free[level] = append(p.free[level], h)
	return device.Check("vk.ResetCommandBuffer", p.dev.native.ResetCommandBuffer(h, true))
}

// Destroy frees every buffer and the native pool. All checked out
// buffers must have been returned.
func (p *CmdPool) Destroy() error {
	if p == nil || p.handle == 0 {
		return nil
	}
	if debugChecks {
		for _, level := range []device.CommandBufferLevel{device.CommandBufferLevelPrimary, device.CommandBufferLevelSecondary} {
			if len(p.free[level]) != p.max[level] {
				return p.dev.invariant("core.CmdPool.Destroy", "%d %s buffers of pool %d are checked out", len(p.out[level]), level, p.id)
			}
		}
	}
	p.destroy()
	return nil
}

func (p *CmdPool) destroy() {
	for level, free := range p.free {
		if len(free) > 0 {
			p.dev.native.FreeCommandBuffers(p.handle, free)
		}
		p.free[level] = nil
	}
	p.dev.native.DestroyCommandPool(p.handle)
	p.handle = 0
}
