package structuredlight

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/projmap/rimage"
)

// DenoiseConfig sets the neighborhood radii of the denoise passes.
type DenoiseConfig struct {
	// OpenRadius is the radius of the erode then dilate pass that removes small bright specks. 0 skips it.
	OpenRadius   int `json:"open_radius" yaml:"open_radius"`
	DilateRadius int `json:"dilate_radius" yaml:"dilate_radius"`
	ErodeRadius  int `json:"erode_radius" yaml:"erode_radius"`
}

// DefaultDenoiseConfig returns a radius 1 opening, then radius 3 dilation followed by radius 2 erosion.
func DefaultDenoiseConfig() DenoiseConfig {
	return DenoiseConfig{OpenRadius: 1, DilateRadius: 3, ErodeRadius: 2}
}

// Validate ensures all parts of the config are valid.
func (cfg DenoiseConfig) Validate(path string) error {
	if cfg.OpenRadius < 0 {
		return errors.Errorf("%s: open_radius must not be negative", path)
	}
	if cfg.ErodeRadius < 0 {
		return errors.Errorf("%s: erode_radius must not be negative", path)
	}
	if cfg.DilateRadius <= cfg.ErodeRadius {
		return errors.Errorf("%s: dilate_radius (%d) must be greater than erode_radius (%d)",
			path, cfg.DilateRadius, cfg.ErodeRadius)
	}
	return nil
}

// Denoise closes small gaps and swallows isolated misdecoded pixels. The map is treated as a two
// channel image holding coordinate+1 (0 when unmapped). Each channel is first opened (eroded then
// dilated by OpenRadius), which drops specks brighter than their surroundings, then closed (dilated
// by DilateRadius, eroded by ErodeRadius), which fills holes and specks darker than their
// surroundings. Pixels are kept where both channels are non-zero. Mapped regions grow by
// DilateRadius-ErodeRadius pixels at their borders; features thinner than 2*OpenRadius+1 are lost.
func Denoise(m *CorrespondenceMap, cfg DenoiseConfig) (*CorrespondenceMap, error) {
	if err := cfg.Validate("denoise"); err != nil {
		return nil, err
	}
	if m.width == 0 || m.height == 0 {
		return m.Clone(), nil
	}

	xs, ys := m.encode()
	var err error
	if xs, err = filterChannel(xs, cfg); err != nil {
		return nil, err
	}
	if ys, err = filterChannel(ys, cfg); err != nil {
		return nil, err
	}

	out := NewCorrespondenceMap(m.width, m.height)
	for cy := 0; cy < m.height; cy++ {
		for cx := 0; cx < m.width; cx++ {
			vx, vy := xs.At(cy, cx), ys.At(cy, cx)
			if vx > 0 && vy > 0 {
				out.Set(cx, cy, int(vx)-1, int(vy)-1)
			}
		}
	}
	return out, nil
}

func filterChannel(ch *mat.Dense, cfg DenoiseConfig) (*mat.Dense, error) {
	if cfg.OpenRadius > 0 {
		eroded, err := rimage.ErodeSquare(ch, 2*cfg.OpenRadius+1)
		if err != nil {
			return nil, err
		}
		if ch, err = rimage.DilateSquare(eroded, 2*cfg.OpenRadius+1); err != nil {
			return nil, err
		}
	}
	dilated, err := rimage.DilateSquare(ch, 2*cfg.DilateRadius+1)
	if err != nil {
		return nil, err
	}
	return rimage.ErodeSquare(dilated, 2*cfg.ErodeRadius+1)
}

// encode splits the map into x and y channels of coordinate+1, 0 meaning unmapped.
func (m *CorrespondenceMap) encode() (*mat.Dense, *mat.Dense) {
	xs := mat.NewDense(m.height, m.width, nil)
	ys := mat.NewDense(m.height, m.width, nil)
	for cy := 0; cy < m.height; cy++ {
		for cx := 0; cx < m.width; cx++ {
			if px, py, ok := m.At(cx, cy); ok {
				xs.Set(cy, cx, float64(px+1))
				ys.Set(cy, cx, float64(py+1))
			}
		}
	}
	return xs, ys
}
