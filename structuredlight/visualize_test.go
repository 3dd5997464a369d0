package structuredlight

import (
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestVisualize(t *testing.T) {
	m := NewCorrespondenceMap(3, 2)
	m.Set(0, 0, 0, 0)
	m.Set(1, 0, 50, 25)
	m.Set(2, 1, 99, 99)

	img := Visualize(m, 100, 50)
	test.That(t, img.Bounds(), test.ShouldResemble, m.Bounds())
	test.That(t, img.RGBAAt(0, 0), test.ShouldResemble, color.RGBA{0, 0, 0, 255})
	test.That(t, img.RGBAAt(1, 0), test.ShouldResemble, color.RGBA{127, 127, 0, 255})
	test.That(t, img.RGBAAt(2, 1), test.ShouldResemble, color.RGBA{252, 255, 0, 255})
	test.That(t, img.RGBAAt(0, 1), test.ShouldResemble, color.RGBA{0, 0, 0, 255})
}
