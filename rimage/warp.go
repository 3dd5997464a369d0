package rimage

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/projmap/utils"
)

// WarpImage warps img by the 3x3 perspective transform m, which maps source pixel
// coordinates to output pixel coordinates. Every output pixel is inverse mapped into the
// source and sampled bilinearly; pixels that land outside the source are opaque black.
// A singular m yields an all black image.
func WarpImage(img image.Image, m mat.Matrix, size image.Point) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	fillOpaqueBlack(out)

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return out
	}
	src := toRGBA(img)
	srcSize := src.Bounds().Size()

	utils.ParallelForEachPixel(size, func(x, y int) {
		fx, fy := float64(x), float64(y)
		w := inv.At(2, 0)*fx + inv.At(2, 1)*fy + inv.At(2, 2)
		if w == 0 {
			return
		}
		sx := (inv.At(0, 0)*fx + inv.At(0, 1)*fy + inv.At(0, 2)) / w
		sy := (inv.At(1, 0)*fx + inv.At(1, 1)*fy + inv.At(1, 2)) / w
		if c, ok := sampleBilinear(src, srcSize, sx, sy); ok {
			out.SetRGBA(x, y, c)
		}
	})
	return out
}

// sampleBilinear interpolates src at a fractional position. Positions more than half a
// pixel outside the sampled grid are rejected.
func sampleBilinear(src *image.RGBA, size image.Point, x, y float64) (color.RGBA, bool) {
	if math.IsNaN(x) || math.IsNaN(y) ||
		x < -0.5 || y < -0.5 || x > float64(size.X)-0.5 || y > float64(size.Y)-0.5 {
		return color.RGBA{}, false
	}
	x = math.Max(0, math.Min(x, float64(size.X-1)))
	y = math.Max(0, math.Min(y, float64(size.Y-1)))

	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, size.X-1), min(y0+1, size.Y-1)
	dx, dy := x-float64(x0), y-float64(y0)

	p00 := src.Pix[src.PixOffset(x0, y0):]
	p10 := src.Pix[src.PixOffset(x1, y0):]
	p01 := src.Pix[src.PixOffset(x0, y1):]
	p11 := src.Pix[src.PixOffset(x1, y1):]

	var res [4]uint8
	for i := 0; i < 4; i++ {
		top := float64(p00[i])*(1-dx) + float64(p10[i])*dx
		bottom := float64(p01[i])*(1-dx) + float64(p11[i])*dx
		res[i] = clampUint8(top*(1-dy) + bottom*dy)
	}
	return color.RGBA{R: res[0], G: res[1], B: res[2], A: res[3]}, true
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

func fillOpaqueBlack(img *image.RGBA) {
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
