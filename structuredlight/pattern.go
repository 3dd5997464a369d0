// Package structuredlight generates Gray code patterns and decodes captured frames of them into a dense
// camera to projector correspondence.
package structuredlight

import (
	"image"
	"math/bits"

	"github.com/pkg/errors"
)

// PatternOption configures a GrayCodePattern.
type PatternOption func(*GrayCodePattern)

// WithComplementaryPatterns emits every bit plane followed by its inverse. Bits are then decoded by
// comparing each pair instead of comparing against the black/white midpoint, which tolerates uneven
// surface reflectance better at the cost of twice the captures.
func WithComplementaryPatterns() PatternOption {
	return func(p *GrayCodePattern) {
		p.complementary = true
	}
}

// GrayCodePattern describes the binary reflected Gray code patterns for one projector resolution.
// Column bit planes come first, then row bit planes, each most significant bit first, followed by an
// all-black and an all-white frame.
type GrayCodePattern struct {
	width, height    int
	colBits, rowBits int
	complementary    bool
}

// NewGrayCodePattern returns the pattern set for a width x height projector.
func NewGrayCodePattern(width, height int, opts ...PatternOption) (*GrayCodePattern, error) {
	if width < 1 || height < 1 {
		return nil, errors.Errorf("pattern size must be positive, got %dx%d", width, height)
	}
	p := &GrayCodePattern{
		width:   width,
		height:  height,
		colBits: bitsFor(width),
		rowBits: bitsFor(height),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// bitsFor returns ceil(log2(n)), at least 1.
func bitsFor(n int) int {
	return max(1, bits.Len(uint(n-1)))
}

// Width is the projector width the patterns are generated for.
func (p *GrayCodePattern) Width() int { return p.width }

// Height is the projector height the patterns are generated for.
func (p *GrayCodePattern) Height() int { return p.height }

// NumColumnBits is the number of column bit planes.
func (p *GrayCodePattern) NumColumnBits() int { return p.colBits }

// NumRowBits is the number of row bit planes.
func (p *GrayCodePattern) NumRowBits() int { return p.rowBits }

// Complementary reports whether every bit plane is followed by its inverse.
func (p *GrayCodePattern) Complementary() bool { return p.complementary }

func (p *GrayCodePattern) framesPerBit() int {
	if p.complementary {
		return 2
	}
	return 1
}

// NumImages is the number of pattern images, black and white frames included.
func (p *GrayCodePattern) NumImages() int {
	return (p.colBits+p.rowBits)*p.framesPerBit() + 2
}

// BlackIndex is the index of the all-black frame.
func (p *GrayCodePattern) BlackIndex() int { return p.NumImages() - 2 }

// WhiteIndex is the index of the all-white frame.
func (p *GrayCodePattern) WhiteIndex() int { return p.NumImages() - 1 }

// Generate renders every pattern image in capture order. The output is deterministic.
func (p *GrayCodePattern) Generate() []*image.Gray {
	out := make([]*image.Gray, 0, p.NumImages())
	for k := 0; k < p.colBits; k++ {
		shift := p.colBits - 1 - k
		out = append(out, p.planes(func(x, y int) bool { return grayCode(x)>>shift&1 == 1 })...)
	}
	for k := 0; k < p.rowBits; k++ {
		shift := p.rowBits - 1 - k
		out = append(out, p.planes(func(x, y int) bool { return grayCode(y)>>shift&1 == 1 })...)
	}
	out = append(out, p.solid(0), p.solid(255))
	return out
}

func (p *GrayCodePattern) planes(lit func(x, y int) bool) []*image.Gray {
	plane := image.NewGray(image.Rect(0, 0, p.width, p.height))
	for y := 0; y < p.height; y++ {
		row := plane.Pix[y*plane.Stride:]
		for x := 0; x < p.width; x++ {
			if lit(x, y) {
				row[x] = 255
			}
		}
	}
	if !p.complementary {
		return []*image.Gray{plane}
	}
	inverse := image.NewGray(plane.Rect)
	for i, v := range plane.Pix {
		inverse.Pix[i] = 255 - v
	}
	return []*image.Gray{plane, inverse}
}

func (p *GrayCodePattern) solid(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.width, p.height))
	if v != 0 {
		for i := range img.Pix {
			img.Pix[i] = v
		}
	}
	return img
}

func grayCode(v int) int {
	return v ^ (v >> 1)
}

func grayToBinary(g int) int {
	for shift := g >> 1; shift != 0; shift >>= 1 {
		g ^= shift
	}
	return g
}
