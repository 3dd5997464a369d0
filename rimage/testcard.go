package rimage

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

// TestCard renders a calibration card: a grid with labelled cells, a centered circle, and
// a horizontal brightness ramp along the bottom. Projecting it through a calibrated
// projector makes misalignment and blending seams easy to spot.
func TestCard(width, height, cells int) image.Image {
	if cells < 1 {
		cells = 1
	}
	dc := gg.NewContext(width, height)
	dc.SetRGB(0.1, 0.1, 0.1)
	dc.Clear()

	w, h := float64(width), float64(height)
	rampHeight := h / 8
	grad := gg.NewLinearGradient(0, 0, w, 0)
	grad.AddColorStop(0, image.Black)
	grad.AddColorStop(1, image.White)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, h-rampHeight, w, rampHeight)
	dc.Fill()

	cellW, cellH := w/float64(cells), (h-rampHeight)/float64(cells)
	dc.SetRGB(0.9, 0.9, 0.9)
	dc.SetLineWidth(1)
	for i := 0; i <= cells; i++ {
		dc.DrawLine(float64(i)*cellW, 0, float64(i)*cellW, h-rampHeight)
		dc.DrawLine(0, float64(i)*cellH, w, float64(i)*cellH)
	}
	dc.Stroke()

	for row := 0; row < cells; row++ {
		for col := 0; col < cells; col++ {
			dc.DrawStringAnchored(
				fmt.Sprintf("%c%d", 'A'+rune(row%26), col),
				(float64(col)+0.5)*cellW, (float64(row)+0.5)*cellH, 0.5, 0.5)
		}
	}

	dc.SetRGB(0.9, 0.2, 0.2)
	dc.SetLineWidth(3)
	dc.DrawCircle(w/2, (h-rampHeight)/2, min(w, h-rampHeight)/3)
	dc.Stroke()

	return dc.Image()
}
