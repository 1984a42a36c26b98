// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/devblok/vkframe/device"
	"github.com/devblok/vkframe/utility/kar"
)

// PipelineCacheKey returns the name the pipeline cache of the device
// described by info is stored under in an archive. Caches are only
// valid for the device that created them.
func PipelineCacheKey(info device.PhysicalDeviceInfo) string {
	return "pipelinecache/" + hex.EncodeToString(info.PipelineCacheUUID[:])
}

// PipelineCache is a native pipeline cache.
type PipelineCache struct {
	dev    *Device
	handle device.PipelineCache
}

// NewPipelineCache creates a pipeline cache seeded with initial, which
// may be empty.
func (d *Device) NewPipelineCache(initial []byte) (*PipelineCache, error) {
	handle, r := d.native.CreatePipelineCache(initial)
	if err := device.Check("vk.CreatePipelineCache", r); err != nil {
		return nil, err
	}
	return &PipelineCache{dev: d, handle: handle}, nil
}

// LoadPipelineCache creates a pipeline cache seeded from the entry of
// this device in ar. A missing entry gives an empty cache.
func (d *Device) LoadPipelineCache(ar *kar.Archive) (*PipelineCache, error) {
	key := PipelineCacheKey(d.native.Info())
	data, err := ar.ReadAll(key)
	switch {
	case errors.Is(err, kar.ErrFileNotFound):
		d.log.WithField("key", key).Debug("no stored pipeline cache")
		data = nil
	case err != nil:
		return nil, err
	}
	return d.NewPipelineCache(data)
}

// Handle returns the native pipeline cache.
func (c *PipelineCache) Handle() device.PipelineCache {
	return c.handle
}

// Data returns the contents of the cache.
func (c *PipelineCache) Data() ([]byte, error) {
	data, r := c.dev.native.PipelineCacheData(c.handle)
	if err := device.Check("vk.GetPipelineCacheData", r); err != nil {
		return nil, err
	}
	return data, nil
}

// Save adds the contents of the cache to b.
func (c *PipelineCache) Save(b *kar.Builder) error {
	data, err := c.Data()
	if err != nil {
		return err
	}
	return b.Add(PipelineCacheKey(c.dev.native.Info()), bytes.NewReader(data))
}

// Destroy destroys the cache.
func (c *PipelineCache) Destroy() {
	if c == nil || c.handle == 0 {
		return
	}
	c.dev.native.DestroyPipelineCache(c.handle)
	c.handle = 0
}
