package rimage

import (
	"image"

	"golang.org/x/image/draw"
)

// MakeGray converts any image to 8-bit grayscale with its origin at (0, 0).
func MakeGray(pic image.Image) *image.Gray {
	if g, ok := pic.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(result, result.Bounds(), pic, b.Min, draw.Src)
	return result
}
