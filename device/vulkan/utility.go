// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"fmt"
	"strings"
	"time"

	"github.com/devblok/vkframe/device"
	vk "github.com/goki/vulkan"
)

// safeString null-terminates s for the C side.
func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	out := make([]string, len(sgs))
	for i, s := range sgs {
		out[i] = safeString(s)
	}
	return out
}

// result maps a native result to the boundary type, the codes are the
// same numbers.
func result(r vk.Result) device.Result {
	return device.Result(r)
}

func check(op string, r vk.Result) error {
	return device.Check(op, result(r))
}

// nanoseconds converts a timeout, device.WaitForever and negative
// durations included, to the native representation.
func nanoseconds(timeout time.Duration) uint64 {
	if timeout == device.WaitForever {
		return vk.MaxUint64
	}
	if timeout < 0 {
		return 0
	}
	return uint64(timeout)
}

func bool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func extent2D(e device.Extent2D) vk.Extent2D {
	return vk.Extent2D{Width: e.Width, Height: e.Height}
}

func extent3D(e device.Extent3D) vk.Extent3D {
	return vk.Extent3D{Width: e.Width, Height: e.Height, Depth: e.Depth}
}

func offset3D(o device.Offset3D) vk.Offset3D {
	return vk.Offset3D{X: o.X, Y: o.Y, Z: o.Z}
}

func subresourceRange(r device.ImageSubresourceRange) vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     vk.ImageAspectFlags(r.AspectMask),
		BaseMipLevel:   r.BaseMipLevel,
		LevelCount:     r.LevelCount,
		BaseArrayLayer: r.BaseArrayLayer,
		LayerCount:     r.LayerCount,
	}
}

func subresourceLayers(l device.ImageSubresourceLayers) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(l.AspectMask),
		MipLevel:       l.MipLevel,
		BaseArrayLayer: l.BaseArrayLayer,
		LayerCount:     l.LayerCount,
	}
}
