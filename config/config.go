// Package config defines the structures to configure a projector installation: the observing camera,
// the projectors, and how calibration captures, decodes and blends.
package config

import (
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/projmap/blend"
	"go.viam.com/projmap/rimage/transform"
	"go.viam.com/projmap/structuredlight"
)

// Config describes a whole installation.
type Config struct {
	Camera     CameraConfig                   `json:"camera" yaml:"camera"`
	Display    SourceConfig                   `json:"display" yaml:"display"`
	Capture    CaptureConfig                  `json:"capture" yaml:"capture"`
	Decoder    structuredlight.DecoderConfig  `json:"decoder" yaml:"decoder"`
	Denoise    *structuredlight.DenoiseConfig `json:"denoise,omitempty" yaml:"denoise,omitempty"`
	RANSAC     transform.RANSACConfig         `json:"ransac" yaml:"ransac"`
	Blend      blend.Config                   `json:"blend" yaml:"blend"`
	Projectors []ProjectorConfig              `json:"projectors" yaml:"projectors"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-" yaml:"-"`
}

// CameraConfig is the single observing camera. Its resolution is fixed for the whole session.
type CameraConfig struct {
	Width        int `json:"width" yaml:"width"`
	Height       int `json:"height" yaml:"height"`
	SourceConfig `json:",inline" yaml:",inline"`
}

// Resolution is the camera frame size.
func (c CameraConfig) Resolution() image.Point {
	return image.Point{c.Width, c.Height}
}

// SourceConfig names an implementation by type and carries its free-form attributes.
type SourceConfig struct {
	Type       string       `json:"type" yaml:"type"`
	Attributes AttributeMap `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// CaptureConfig controls the capture session.
type CaptureConfig struct {
	// SettleDelay is how long to wait after showing a pattern before capturing it.
	SettleDelay Duration `json:"settle_delay" yaml:"settle_delay"`
	// Retries is how many more times an empty frame is captured again before giving up.
	Retries int `json:"retries" yaml:"retries"`
	// OutputDir is where captured<id> directories are written.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// Format is the image file extension for captured frames.
	Format string `json:"format" yaml:"format"`
	// Complementary captures every bit plane together with its inverse.
	Complementary bool `json:"complementary" yaml:"complementary"`
	// Preview shows full white and waits for the display to close before capturing.
	Preview bool `json:"preview" yaml:"preview"`
}

// ProjectorConfig is one projector. ID selects the monitor it is attached to.
type ProjectorConfig struct {
	ID      int `json:"id" yaml:"id"`
	Width   int `json:"width" yaml:"width"`
	Height  int `json:"height" yaml:"height"`
	OriginX int `json:"origin_x" yaml:"origin_x"`
	OriginY int `json:"origin_y" yaml:"origin_y"`
}

// Default values filled in by Ensure.
const (
	DefaultSettleDelay   = 500 * time.Millisecond
	DefaultOutputDir     = "."
	DefaultCaptureFormat = "png"
)

// Ensure fills in defaults and ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if c.Capture.SettleDelay == 0 {
		c.Capture.SettleDelay = Duration(DefaultSettleDelay)
	}
	if c.Capture.OutputDir == "" {
		c.Capture.OutputDir = DefaultOutputDir
	}
	if c.Capture.Format == "" {
		c.Capture.Format = DefaultCaptureFormat
	}
	if c.Denoise == nil {
		d := structuredlight.DefaultDenoiseConfig()
		c.Denoise = &d
	}

	if err := c.Camera.Validate("camera"); err != nil {
		return err
	}
	if c.Display.Type == "" {
		return utils.NewConfigValidationFieldRequiredError("display", "type")
	}
	if err := c.Capture.Validate("capture"); err != nil {
		return err
	}
	if err := c.Decoder.Validate("decoder"); err != nil {
		return err
	}
	if err := c.Denoise.Validate("denoise"); err != nil {
		return err
	}
	if err := c.RANSAC.Validate("ransac"); err != nil {
		return err
	}

	if len(c.Projectors) == 0 {
		return utils.NewConfigValidationFieldRequiredError("", "projectors")
	}
	for idx := range c.Projectors {
		if err := c.Projectors[idx].Validate(fmt.Sprintf("%s.%d", "projectors", idx)); err != nil {
			return err
		}
	}
	if dups := lo.FindDuplicatesBy(c.Projectors, func(p ProjectorConfig) int { return p.ID }); len(dups) != 0 {
		return utils.NewConfigValidationError("projectors", errors.Errorf("projector id %d is not unique", dups[0].ID))
	}
	return nil
}

// DecoderConfig is the decoder configuration bound to the camera resolution.
func (c *Config) DecoderConfig() structuredlight.DecoderConfig {
	cfg := c.Decoder
	cfg.CameraResolution = c.Camera.Resolution()
	return cfg
}

// FindProjector returns the projector with the given id.
func (c *Config) FindProjector(id int) (ProjectorConfig, bool) {
	return lo.Find(c.Projectors, func(p ProjectorConfig) bool { return p.ID == id })
}

// Validate ensures all parts of the config are valid.
func (c CameraConfig) Validate(path string) error {
	if c.Width <= 0 || c.Height <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height))
	}
	if c.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (c CaptureConfig) Validate(path string) error {
	if c.SettleDelay < 0 {
		return utils.NewConfigValidationError(path, errors.New("settle_delay must not be negative"))
	}
	if c.Retries < 0 {
		return utils.NewConfigValidationError(path, errors.New("retries must not be negative"))
	}
	if !lo.Contains([]string{"png", "qoi", "tiff", "bmp", "ppm", "jpg"}, c.Format) {
		return utils.NewConfigValidationError(path, errors.Errorf("unsupported format %q", c.Format))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (p ProjectorConfig) Validate(path string) error {
	if p.ID < 0 {
		return utils.NewConfigValidationError(path, errors.New("id must not be negative"))
	}
	if p.Width <= 0 || p.Height <= 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("resolution must be positive, got %dx%d", p.Width, p.Height))
	}
	return nil
}

// Duration is a time.Duration written as a string such as "250ms" in config files.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// UnmarshalYAML accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(val)
	case int:
		*d = Duration(val)
	default:
		return errors.Errorf("invalid duration %v", v)
	}
	return nil
}
