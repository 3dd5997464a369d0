package structuredlight

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/utils"
)

// Default decoding thresholds, in 8-bit intensity levels.
const (
	DefaultBlackThreshold = 10
	DefaultWhiteThreshold = 5
)

// DecoderConfig tunes how captured frames are decoded. Zero thresholds take the defaults.
type DecoderConfig struct {
	// BlackThreshold is the minimum white minus black difference for a camera pixel to be trusted.
	BlackThreshold int `json:"black_threshold" yaml:"black_threshold"`
	// WhiteThreshold is the minimum distance of a bit sample from its reference for the bit to count.
	WhiteThreshold int `json:"white_threshold" yaml:"white_threshold"`
	// CameraResolution, when set, is the frame size every capture must have.
	CameraResolution image.Point `json:"-" yaml:"-"`
}

// Validate ensures all parts of the config are valid.
func (cfg DecoderConfig) Validate(path string) error {
	if cfg.BlackThreshold < 0 || cfg.BlackThreshold > 255 {
		return errors.Errorf("%s: black_threshold must be in [0, 255]", path)
	}
	if cfg.WhiteThreshold < 0 || cfg.WhiteThreshold > 255 {
		return errors.Errorf("%s: white_threshold must be in [0, 255]", path)
	}
	if cfg.CameraResolution.X < 0 || cfg.CameraResolution.Y < 0 {
		return errors.Errorf("%s: camera resolution must not be negative", path)
	}
	return nil
}

func (cfg DecoderConfig) withDefaults() DecoderConfig {
	if cfg.BlackThreshold == 0 {
		cfg.BlackThreshold = DefaultBlackThreshold
	}
	if cfg.WhiteThreshold == 0 {
		cfg.WhiteThreshold = DefaultWhiteThreshold
	}
	return cfg
}

// DecodeStats counts what happened to every camera pixel during one decode pass.
type DecodeStats struct {
	PixelCount          int `json:"pixel_count"`
	ThresholdFailCount  int `json:"threshold_fail_count"`
	ProjectionFailCount int `json:"projection_fail_count"`
	MappedPixelCount    int `json:"mapped_pixel_count"`
}

func (s DecodeStats) percent(n int) float64 {
	if s.PixelCount == 0 {
		return 0
	}
	return 100 * float64(n) / float64(s.PixelCount)
}

// ThresholdFailPercent is the share of pixels too dark to be trusted.
func (s DecodeStats) ThresholdFailPercent() float64 { return s.percent(s.ThresholdFailCount) }

// ProjectionFailPercent is the share of trusted pixels whose code could not be decoded.
func (s DecodeStats) ProjectionFailPercent() float64 { return s.percent(s.ProjectionFailCount) }

// MappedPercent is the share of pixels that received a correspondence.
func (s DecodeStats) MappedPercent() float64 { return s.percent(s.MappedPixelCount) }

func (s *DecodeStats) add(o DecodeStats) {
	s.ThresholdFailCount += o.ThresholdFailCount
	s.ProjectionFailCount += o.ProjectionFailCount
	s.MappedPixelCount += o.MappedPixelCount
}

// Decoder turns captured frames of a GrayCodePattern into a CorrespondenceMap.
type Decoder struct {
	pattern *GrayCodePattern
	cfg     DecoderConfig
	logger  logging.Logger
}

// NewDecoder returns a decoder for frames captured while projecting pattern.
func NewDecoder(pattern *GrayCodePattern, cfg DecoderConfig, logger logging.Logger) (*Decoder, error) {
	if err := cfg.Validate("decoder"); err != nil {
		return nil, err
	}
	return &Decoder{pattern: pattern, cfg: cfg.withDefaults(), logger: logger}, nil
}

// Decode decodes one frame per pattern image, in pattern order. The shadow mask and the code are checked
// independently for every pixel; each failure is counted and a pixel is mapped only when both pass.
func (d *Decoder) Decode(ctx context.Context, frames []*image.Gray) (*CorrespondenceMap, DecodeStats, error) {
	size, err := d.checkFrames(frames)
	if err != nil {
		return nil, DecodeStats{}, err
	}

	p := d.pattern
	black, white := frames[p.BlackIndex()], frames[p.WhiteIndex()]
	out := NewCorrespondenceMap(size.X, size.Y)
	stats := DecodeStats{PixelCount: size.X * size.Y}
	var statsMu sync.Mutex

	err = utils.GroupWorkParallel(
		ctx,
		size.Y,
		nil,
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			var local DecodeStats
			bitSamples := make([]uint8, len(frames))
			return func(memberNum, y int) {
					for x := 0; x < size.X; x++ {
						w, b := grayAt(white, x, y), grayAt(black, x, y)
						lit := int(w)-int(b) > d.cfg.BlackThreshold
						if !lit {
							local.ThresholdFailCount++
						}
						// the code is read even for shadowed pixels so both failure counts are reported
						for i := 0; i < p.BlackIndex(); i++ {
							bitSamples[i] = grayAt(frames[i], x, y)
						}
						px, py, ok := d.decodePixel(bitSamples, b, w)
						if !ok {
							local.ProjectionFailCount++
						}
						if !lit || !ok {
							continue
						}
						out.setUncounted(x, y, px, py)
						local.MappedPixelCount++
					}
				}, func() {
					statsMu.Lock()
					stats.add(local)
					statsMu.Unlock()
				}
		},
	)
	if err != nil {
		return nil, DecodeStats{}, err
	}
	out.recount()

	d.logger.Infow("decoded correspondences",
		"pixels", stats.PixelCount,
		"threshold_fail_pct", stats.ThresholdFailPercent(),
		"no_mapping_pct", stats.ProjectionFailPercent(),
		"success_pct", stats.MappedPercent(),
	)
	return out, stats, nil
}

func (d *Decoder) checkFrames(frames []*image.Gray) (image.Point, error) {
	if d.pattern == nil {
		return image.Point{}, utils.NewNotInitializedError("decoder has no pattern")
	}
	need := d.pattern.NumImages()
	if len(frames) < need {
		return image.Point{}, utils.NewNotInitializedError("decode needs %d frames, got %d", need, len(frames))
	}
	if len(frames) > need {
		return image.Point{}, utils.NewConfigurationMismatchError("decode needs %d frames, got %d", need, len(frames))
	}
	for i, f := range frames {
		if f == nil {
			return image.Point{}, utils.NewNotInitializedError("frame %d was never captured", i)
		}
	}
	size := frames[0].Bounds().Size()
	for i, f := range frames {
		if f.Bounds().Size() != size {
			return image.Point{}, utils.NewConfigurationMismatchError(
				"frame %d is %v but frame 0 is %v", i, f.Bounds().Size(), size)
		}
	}
	if want := d.cfg.CameraResolution; want != (image.Point{}) && want != size {
		return image.Point{}, utils.NewConfigurationMismatchError("frames are %v but the camera is configured for %v", size, want)
	}
	return size, nil
}

// decodePixel reads the column then row code from the bit plane samples of one pixel.
func (d *Decoder) decodePixel(samples []uint8, black, white uint8) (int, int, bool) {
	p := d.pattern
	step := p.framesPerBit()
	col, ok := d.readCode(samples[:p.colBits*step], black, white)
	if !ok {
		return 0, 0, false
	}
	row, ok := d.readCode(samples[p.colBits*step:(p.colBits+p.rowBits)*step], black, white)
	if !ok {
		return 0, 0, false
	}
	x, y := grayToBinary(col), grayToBinary(row)
	if x >= p.width || y >= p.height {
		return 0, 0, false
	}
	return x, y, true
}

func (d *Decoder) readCode(samples []uint8, black, white uint8) (int, bool) {
	code := 0
	threshold := d.cfg.WhiteThreshold
	if d.pattern.complementary {
		for i := 0; i < len(samples); i += 2 {
			diff := int(samples[i]) - int(samples[i+1])
			if abs(diff) < threshold {
				return 0, false
			}
			code <<= 1
			if diff > 0 {
				code |= 1
			}
		}
		return code, true
	}
	// compare twice the sample against white+black to stay in integers
	mid2 := int(white) + int(black)
	for _, s := range samples {
		diff2 := 2*int(s) - mid2
		if abs(diff2) < 2*threshold {
			return 0, false
		}
		code <<= 1
		if diff2 > 0 {
			code |= 1
		}
	}
	return code, true
}

func grayAt(g *image.Gray, x, y int) uint8 {
	return g.Pix[g.PixOffset(g.Rect.Min.X+x, g.Rect.Min.Y+y)]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
