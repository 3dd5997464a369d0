package structuredlight

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"

	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/utils"
)

// upscaledCaptures simulates a camera that sees every projector pixel as a factor x factor block.
func upscaledCaptures(p *GrayCodePattern, factor int) []*image.Gray {
	var out []*image.Gray
	for _, img := range p.Generate() {
		b := img.Bounds()
		frame := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
		for y := 0; y < frame.Rect.Dy(); y++ {
			for x := 0; x < frame.Rect.Dx(); x++ {
				frame.Pix[y*frame.Stride+x] = img.Pix[(y/factor)*img.Stride+x/factor]
			}
		}
		out = append(out, frame)
	}
	return out
}

func newTestDecoder(t *testing.T, p *GrayCodePattern, cfg DecoderConfig) *Decoder {
	t.Helper()
	d, err := NewDecoder(p, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return d
}

func TestDecodeIdentity(t *testing.T) {
	for _, opts := range [][]PatternOption{nil, {WithComplementaryPatterns()}} {
		p, err := NewGrayCodePattern(4, 4, opts...)
		test.That(t, err, test.ShouldBeNil)

		m, stats, err := newTestDecoder(t, p, DecoderConfig{}).Decode(context.Background(), p.Generate())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, stats, test.ShouldResemble, DecodeStats{PixelCount: 16, MappedPixelCount: 16})
		test.That(t, stats.MappedPercent(), test.ShouldEqual, 100.0)
		test.That(t, m.Len(), test.ShouldEqual, 16)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				px, py, ok := m.At(x, y)
				test.That(t, ok, test.ShouldBeTrue)
				test.That(t, px, test.ShouldEqual, x)
				test.That(t, py, test.ShouldEqual, y)
			}
		}
	}
}

func TestDecodeUpscaledCamera(t *testing.T) {
	p, err := NewGrayCodePattern(10, 6)
	test.That(t, err, test.ShouldBeNil)
	frames := upscaledCaptures(p, 3)

	logger, logs := logging.NewObservedTestLogger(t)
	d, err := NewDecoder(p, DecoderConfig{CameraResolution: image.Point{30, 18}}, logger)
	test.That(t, err, test.ShouldBeNil)
	m, stats, err := d.Decode(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.MappedPixelCount, test.ShouldEqual, 30*18)
	px, py, ok := m.At(29, 17)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, px, test.ShouldEqual, 9)
	test.That(t, py, test.ShouldEqual, 5)

	entries := logs.FilterMessage("decoded correspondences").All()
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, entries[0].ContextMap()["success_pct"], test.ShouldEqual, 100.0)
}

func TestDecodeThresholdFailure(t *testing.T) {
	p, err := NewGrayCodePattern(4, 4)
	test.That(t, err, test.ShouldBeNil)
	frames := p.Generate()
	// camera pixel (1, 2) never gets brighter than the black frame by more than the threshold
	frames[p.WhiteIndex()].SetGray(1, 2, frames[p.BlackIndex()].GrayAt(1, 2))
	frames[p.BlackIndex()].Pix[frames[p.BlackIndex()].PixOffset(3, 3)] = 250

	m, stats, err := newTestDecoder(t, p, DecoderConfig{}).Decode(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.ThresholdFailCount, test.ShouldEqual, 2)
	// with almost no contrast both codes also come out ambiguous
	test.That(t, stats.ProjectionFailCount, test.ShouldEqual, 2)
	test.That(t, stats.MappedPixelCount, test.ShouldEqual, 14)
	test.That(t, m.Mapped(1, 2), test.ShouldBeFalse)
	test.That(t, m.Mapped(3, 3), test.ShouldBeFalse)
	test.That(t, m.Len(), test.ShouldEqual, 14)
}

func TestDecodeCountsFailuresIndependently(t *testing.T) {
	p, err := NewGrayCodePattern(4, 4)
	test.That(t, err, test.ShouldBeNil)
	frames := p.Generate()
	// (1, 2) is dark in every frame: too little contrast and no readable code
	for _, f := range frames {
		f.SetGray(1, 2, color.Gray{})
	}
	// (0, 0) has too little contrast but every sample of its all-zero code is still readable
	frames[p.WhiteIndex()].SetGray(0, 0, color.Gray{Y: 10})

	m, stats, err := newTestDecoder(t, p, DecoderConfig{}).Decode(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats, test.ShouldResemble, DecodeStats{
		PixelCount:          16,
		ThresholdFailCount:  2,
		ProjectionFailCount: 1,
		MappedPixelCount:    14,
	})
	test.That(t, m.Mapped(1, 2), test.ShouldBeFalse)
	test.That(t, m.Mapped(0, 0), test.ShouldBeFalse)
	test.That(t, m.Len(), test.ShouldEqual, 14)
}

func TestDecodeProjectionFailure(t *testing.T) {
	// 5 columns need 3 bits, so codes for columns 5..7 exist but are off the projector
	p, err := NewGrayCodePattern(5, 2)
	test.That(t, err, test.ShouldBeNil)
	frames := p.Generate()
	// gray code 100 decodes to column 7
	frames[0].Pix[0], frames[1].Pix[0], frames[2].Pix[0] = 255, 0, 0
	// a sample at the black/white midpoint is ambiguous
	frames[1].Pix[frames[1].PixOffset(2, 1)] = 128

	m, stats, err := newTestDecoder(t, p, DecoderConfig{}).Decode(context.Background(), frames)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.ProjectionFailCount, test.ShouldEqual, 2)
	test.That(t, stats.ThresholdFailCount, test.ShouldEqual, 0)
	test.That(t, m.Mapped(0, 0), test.ShouldBeFalse)
	test.That(t, m.Mapped(2, 1), test.ShouldBeFalse)
	test.That(t, m.Len(), test.ShouldEqual, 8)
	test.That(t, stats.ProjectionFailPercent(), test.ShouldEqual, 20.0)
}

func TestDecodeErrors(t *testing.T) {
	p, err := NewGrayCodePattern(4, 4)
	test.That(t, err, test.ShouldBeNil)
	frames := p.Generate()
	d := newTestDecoder(t, p, DecoderConfig{})

	_, _, err = d.Decode(context.Background(), frames[:3])
	test.That(t, errors.Is(err, utils.ErrNotInitialized), test.ShouldBeTrue)

	_, _, err = d.Decode(context.Background(), nil)
	test.That(t, errors.Is(err, utils.ErrNotInitialized), test.ShouldBeTrue)

	_, _, err = newTestDecoder(t, nil, DecoderConfig{}).Decode(context.Background(), frames)
	test.That(t, errors.Is(err, utils.ErrNotInitialized), test.ShouldBeTrue)

	_, _, err = d.Decode(context.Background(), append(frames, frames[0]))
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	withNil := append([]*image.Gray{}, frames...)
	withNil[2] = nil
	_, _, err = d.Decode(context.Background(), withNil)
	test.That(t, errors.Is(err, utils.ErrNotInitialized), test.ShouldBeTrue)

	mixed := append([]*image.Gray{}, frames...)
	mixed[1] = image.NewGray(image.Rect(0, 0, 5, 4))
	_, _, err = d.Decode(context.Background(), mixed)
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, _, err = newTestDecoder(t, p, DecoderConfig{CameraResolution: image.Point{8, 8}}).Decode(context.Background(), frames)
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, err = NewDecoder(p, DecoderConfig{BlackThreshold: 300}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeCanceled(t *testing.T) {
	p, err := NewGrayCodePattern(4, 4)
	test.That(t, err, test.ShouldBeNil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = newTestDecoder(t, p, DecoderConfig{}).Decode(ctx, p.Generate())
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
