package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/projmap/logging"
)

const jsonConfig = `{
	"camera": {"width": 640, "height": 480, "type": "image_files", "attributes": {"dir": "frames", "pattern": "*.png"}},
	"display": {"type": "image_dir", "attributes": {"dir": "out"}},
	"capture": {"settle_delay": "250ms", "retries": 2},
	"decoder": {"black_threshold": 12},
	"ransac": {"threshold": 2.5},
	"blend": {"linearize": true},
	"projectors": [
		{"id": 0, "width": 1024, "height": 768},
		{"id": 1, "width": 1024, "height": 768, "origin_x": 1024}
	]
}`

const yamlConfig = `
camera:
  width: 640
  height: 480
  type: image_files
  attributes:
    dir: frames
    nested:
      depth: 2
display:
  type: image_dir
  attributes:
    dir: out
capture:
  settle_delay: 1s
  format: qoi
denoise:
  dilate_radius: 4
  erode_radius: 1
projectors:
  - id: 3
    width: 800
    height: 600
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(content), 0o600), test.ShouldBeNil)
	return path
}

func TestReadJSON(t *testing.T) {
	path := writeConfig(t, "install.json", jsonConfig)
	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Camera.Width, test.ShouldEqual, 640)
	test.That(t, cfg.Camera.Type, test.ShouldEqual, "image_files")
	test.That(t, cfg.Camera.Attributes["dir"], test.ShouldEqual, "frames")
	test.That(t, time.Duration(cfg.Capture.SettleDelay), test.ShouldEqual, 250*time.Millisecond)
	test.That(t, cfg.Capture.Retries, test.ShouldEqual, 2)
	test.That(t, cfg.Capture.Format, test.ShouldEqual, DefaultCaptureFormat)
	test.That(t, cfg.Capture.OutputDir, test.ShouldEqual, DefaultOutputDir)
	test.That(t, cfg.Decoder.BlackThreshold, test.ShouldEqual, 12)
	test.That(t, cfg.RANSAC.Threshold, test.ShouldEqual, 2.5)
	test.That(t, cfg.Blend.Linearize, test.ShouldBeTrue)
	test.That(t, cfg.Denoise.DilateRadius, test.ShouldEqual, 3)
	test.That(t, len(cfg.Projectors), test.ShouldEqual, 2)
	test.That(t, cfg.Projectors[1].OriginX, test.ShouldEqual, 1024)

	dec := cfg.DecoderConfig()
	test.That(t, dec.CameraResolution.X, test.ShouldEqual, 640)
	test.That(t, dec.CameraResolution.Y, test.ShouldEqual, 480)

	p, ok := cfg.FindProjector(1)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.OriginX, test.ShouldEqual, 1024)
	_, ok = cfg.FindProjector(7)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestReadExpandsEnvironment(t *testing.T) {
	t.Setenv("PROJMAP_FRAMES", "/data/frames")
	content := strings.Replace(jsonConfig, `"dir": "frames"`, `"dir": "${PROJMAP_FRAMES}"`, 1)
	cfg, err := Read(writeConfig(t, "install.json", content), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Attributes["dir"], test.ShouldEqual, "/data/frames")
}

func TestReadYAML(t *testing.T) {
	cfg, err := Read(writeConfig(t, "install.yaml", yamlConfig), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Camera.Height, test.ShouldEqual, 480)
	test.That(t, time.Duration(cfg.Capture.SettleDelay), test.ShouldEqual, time.Second)
	test.That(t, cfg.Capture.Format, test.ShouldEqual, "qoi")
	test.That(t, cfg.Denoise.DilateRadius, test.ShouldEqual, 4)
	test.That(t, cfg.Projectors[0].ID, test.ShouldEqual, 3)
	nested, ok := cfg.Camera.Attributes["nested"].(map[string]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, nested["depth"], test.ShouldEqual, 2)
}

func TestEnsureErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(string) string
		errMsg string
	}{
		{"no projectors", func(s string) string {
			return strings.Replace(s, `"projectors": [`, `"unused": [`, 1)
		}, "projectors"},
		{"duplicate ids", func(s string) string {
			return strings.Replace(s, `{"id": 1,`, `{"id": 0,`, 1)
		}, "not unique"},
		{"bad camera", func(s string) string {
			return strings.Replace(s, `"width": 640`, `"width": 0`, 1)
		}, "camera"},
		{"bad format", func(s string) string {
			return strings.Replace(s, `"retries": 2`, `"retries": 2, "format": "gif"`, 1)
		}, "unsupported format"},
		{"bad threshold", func(s string) string {
			return strings.Replace(s, `"black_threshold": 12`, `"black_threshold": 400`, 1)
		}, "black_threshold"},
		{"bad delay", func(s string) string {
			return strings.Replace(s, `"250ms"`, `"soon"`, 1)
		}, "duration"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("install.json", strings.NewReader(tc.mutate(jsonConfig)), logging.NewTestLogger(t))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}
}

func TestEnsureRequiresProjectors(t *testing.T) {
	cfg := Config{
		Camera:  CameraConfig{Width: 4, Height: 4, SourceConfig: SourceConfig{Type: "image_files"}},
		Display: SourceConfig{Type: "image_dir"},
	}
	err := cfg.Ensure()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "projectors")

	cfg.Projectors = []ProjectorConfig{{ID: 0, Width: 4, Height: 4}}
	test.That(t, cfg.Ensure(), test.ShouldBeNil)
	test.That(t, time.Duration(cfg.Capture.SettleDelay), test.ShouldEqual, DefaultSettleDelay)
}

type fileAttrs struct {
	Dir     string        `json:"dir"`
	Pattern string        `json:"pattern"`
	Loop    bool          `json:"loop"`
	Delay   time.Duration `json:"delay"`
}

func TestDecodeAttributes(t *testing.T) {
	attrs, err := DecodeAttributes[fileAttrs](AttributeMap{"dir": "frames", "loop": "true", "delay": "5ms"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attrs.Dir, test.ShouldEqual, "frames")
	test.That(t, attrs.Loop, test.ShouldBeTrue)
	test.That(t, attrs.Delay, test.ShouldEqual, 5*time.Millisecond)

	_, err = DecodeAttributes[fileAttrs](AttributeMap{"dri": "frames"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "dri")

	test.That(t, AttributeMap{"dir": 1}.Has("dir"), test.ShouldBeTrue)
}
