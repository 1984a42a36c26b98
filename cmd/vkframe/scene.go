// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"image"
	"image/color"
	"math"
	"time"

	"github.com/devblok/vkframe/device"
	glm "github.com/go-gl/mathgl/mgl32"
)

// scene is what the demo draws: a clear colour pulsing between two
// colours and a procedural texture uploaded on the first frame.
type scene struct {
	from, to glm.Vec4
	period   time.Duration
}

var defaultScene = scene{
	from:   glm.Vec4{0.05, 0.05, 0.15, 1},
	to:     glm.Vec4{0.15, 0.35, 0.55, 1},
	period: 4 * time.Second,
}

// clearColor returns the clear colour elapsed into the animation.
func (s scene) clearColor(elapsed time.Duration) device.ClearColor {
	if s.period <= 0 {
		return device.ClearColor(s.from)
	}
	phase := float64(elapsed%s.period) / float64(s.period)
	t := float32(0.5 - 0.5*math.Cos(2*math.Pi*phase))
	return device.ClearColor(lerp(s.from, s.to, t))
}

func lerp(a, b glm.Vec4, t float32) glm.Vec4 {
	t = glm.Clamp(t, 0, 1)
	return a.Mul(1 - t).Add(b.Mul(t))
}

// checkerboard draws a size x size board of cells x cells squares,
// shaded from the top left corner to the bottom right one.
func checkerboard(size, cells int, a, b glm.Vec4) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	if cells <= 0 {
		cells = 1
	}
	cell := size / cells
	if cell == 0 {
		cell = 1
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			shade := lerp(a, b, float32(x+y)/float32(2*size))
			if (x/cell+y/cell)%2 == 1 {
				shade = shade.Mul(0.5)
				shade[3] = 1
			}
			img.SetRGBA(x, y, rgba(shade))
		}
	}
	return img
}

func rgba(v glm.Vec4) color.RGBA {
	c := func(f float32) uint8 {
		return uint8(glm.Clamp(f, 0, 1)*255 + 0.5)
	}
	return color.RGBA{R: c(v[0]), G: c(v[1]), B: c(v[2]), A: c(v[3])}
}
