// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"image"
	"image/draw"
)

// GetPixels transforms a given image into right arrangement of pixels
// by drawing the decoded image onto a controlled RGBA canvas
func GetPixels(img image.Image, rowPitch int) []uint8 {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if rowPitch > 4*b.Dx() {
		// only padded rows are applied, tightly
		// packed rows are what optimal images expect
		canvas = &image.RGBA{
			Pix:    make([]uint8, rowPitch*b.Dy()),
			Stride: rowPitch,
			Rect:   canvas.Rect,
		}
	}
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	return canvas.Pix
}
