package structuredlight

import (
	"image"
	"image/color"
)

// Visualize renders the map as an RGB image at camera resolution. Red holds the projector x and green
// the projector y, each scaled to [0, 255] by the projector size; unmapped pixels are black.
func Visualize(m *CorrespondenceMap, projWidth, projHeight int) *image.RGBA {
	out := image.NewRGBA(m.Bounds())
	for cy := 0; cy < m.height; cy++ {
		for cx := 0; cx < m.width; cx++ {
			c := color.RGBA{A: 255}
			if px, py, ok := m.At(cx, cy); ok {
				c.R = scaleToByte(px, projWidth)
				c.G = scaleToByte(py, projHeight)
			}
			out.SetRGBA(cx, cy, c)
		}
	}
	return out
}

func scaleToByte(v, size int) uint8 {
	if size <= 0 {
		return 0
	}
	scaled := float32(v) / float32(size) * 255
	if scaled >= 255 {
		return 255
	}
	return uint8(scaled)
}
