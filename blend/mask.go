package blend

import (
	"image"

	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/projmap/utils"
)

// ApplyContribution scales every color channel of img by the contribution at the same pixel, in place.
// img must be the contribution map's size. With cfg.Linearize the product is taken in linear light and
// encoded back to sRGB; otherwise the 8-bit values are scaled directly.
func ApplyContribution(img *image.RGBA, c *ContributionMap, cfg Config) error {
	size := img.Bounds().Size()
	if size != c.Bounds().Size() {
		return utils.NewConfigurationMismatchError("image is %v but the contribution map is %v", size, c.Bounds().Size())
	}
	origin := img.Bounds().Min
	utils.ParallelForEachPixel(size, func(x, y int) {
		w := float64(c.At(x, y))
		i := img.PixOffset(origin.X+x, origin.Y+y)
		for ch := 0; ch < 3; ch++ {
			img.Pix[i+ch] = scaleChannel(img.Pix[i+ch], w, cfg.Linearize)
		}
	})
	return nil
}

func scaleChannel(v uint8, w float64, linearize bool) uint8 {
	if w >= 1 {
		return v
	}
	if w <= 0 {
		return 0
	}
	if !linearize {
		return uint8(float64(v)*w + 0.5)
	}
	l := linearCurve[v] * w
	r, _, _ := colorful.LinearRgb(l, l, l).Clamped().RGB255()
	return r
}
