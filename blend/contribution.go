// Package blend computes how much each projector of an overlapping group should contribute to every
// camera pixel.
package blend

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"go.viam.com/projmap/structuredlight"
	"go.viam.com/projmap/utils"
)

// ContributionMap is a per camera pixel weight in [0, 1] for one projector.
type ContributionMap struct {
	width, height int
	data          []float32
}

// NewContributionMap returns an all zero map.
func NewContributionMap(width, height int) *ContributionMap {
	return &ContributionMap{width: width, height: height, data: make([]float32, width*height)}
}

// Bounds is the camera rectangle the map covers.
func (c *ContributionMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.width, c.height)
}

// At returns the weight at camera pixel (x, y); outside the map it is 0.
func (c *ContributionMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return 0
	}
	return c.data[y*c.width+x]
}

// Set stores the weight at camera pixel (x, y).
func (c *ContributionMap) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return
	}
	c.data[y*c.width+x] = v
}

// ToGray16 renders the map as a 16-bit image, 1 being white. Each weight is off by at most
// 1/131070 after a round trip.
func (c *ContributionMap) ToGray16() *image.Gray16 {
	out := image.NewGray16(c.Bounds())
	for i, v := range c.data {
		out.SetGray16(i%c.width, i/c.width, color.Gray16{Y: uint16(math.Round(float64(min(max(v, 0), 1)) * 0xffff))})
	}
	return out
}

// FromImage rebuilds a map from an image written by ToGray16. Other images are read as 16-bit gray.
func FromImage(img image.Image) *ContributionMap {
	b := img.Bounds()
	c := NewContributionMap(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			c.data[y*c.width+x] = float32(float64(g.Y) / 0xffff)
		}
	}
	return c
}

// Member is one projector's inputs to the computation: its correspondence and the camera frame
// captured while it projected full white.
type Member struct {
	Correspondence *structuredlight.CorrespondenceMap
	White          *image.Gray
}

// Config tunes the weighting.
type Config struct {
	// Linearize converts white frame intensities from sRGB to linear light before weighting.
	Linearize bool `json:"linearize" yaml:"linearize"`
}

// ComputeContributions weights every projector that covers a camera pixel by its share of the total
// white frame brightness seen there. Weights at covered pixels sum to 1; pixels nobody covers, or
// where every contributor is dark, are 0 for all.
func ComputeContributions(ctx context.Context, members []Member, cfg Config) ([]*ContributionMap, error) {
	if len(members) == 0 {
		return nil, utils.NewInsufficientDataError("contribution needs at least one projector")
	}
	size, err := checkMembers(members)
	if err != nil {
		return nil, err
	}

	brightness := identityCurve
	if cfg.Linearize {
		brightness = linearCurve
	}

	out := make([]*ContributionMap, len(members))
	for i := range out {
		out[i] = NewContributionMap(size.X, size.Y)
	}
	utils.ParallelForEachPixel(size, func(x, y int) {
		var sum float64
		for _, m := range members {
			if m.Correspondence.Mapped(x, y) {
				sum += brightness[whiteAt(m.White, x, y)]
			}
		}
		if sum == 0 {
			return
		}
		for i, m := range members {
			if m.Correspondence.Mapped(x, y) {
				out[i].Set(x, y, float32(brightness[whiteAt(m.White, x, y)]/sum))
			}
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkMembers(members []Member) (image.Point, error) {
	var size image.Point
	for i, m := range members {
		if m.Correspondence == nil {
			return image.Point{}, utils.NewConfigurationMismatchError("projector %d has no correspondence", i)
		}
		if m.White == nil {
			return image.Point{}, utils.NewConfigurationMismatchError("projector %d has no white frame", i)
		}
		mSize := m.Correspondence.Bounds().Size()
		if i == 0 {
			size = mSize
		} else if mSize != size {
			return image.Point{}, utils.NewConfigurationMismatchError(
				"projector %d correspondence is %v but projector 0 is %v", i, mSize, size)
		}
		if wSize := m.White.Bounds().Size(); wSize != size {
			return image.Point{}, utils.NewConfigurationMismatchError(
				"projector %d white frame is %v but the camera is %v", i, wSize, size)
		}
	}
	return size, nil
}

func whiteAt(g *image.Gray, x, y int) uint8 {
	return g.Pix[g.PixOffset(g.Rect.Min.X+x, g.Rect.Min.Y+y)]
}

var identityCurve, linearCurve [256]float64

func init() {
	for i := range identityCurve {
		v := float64(i) / 255
		identityCurve[i] = float64(i)
		r, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
		linearCurve[i] = r
	}
}
