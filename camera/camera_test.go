package camera

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/utils"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func grayAt(t *testing.T, img image.Image, x, y int) uint8 {
	t.Helper()
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

func TestRegistry(t *testing.T) {
	test.That(t, CameraTypes(), test.ShouldContain, "image_files")
	test.That(t, CameraTypes(), test.ShouldContain, "loopback")
	test.That(t, DisplayTypes(), test.ShouldContain, "image_dir")
	test.That(t, DisplayTypes(), test.ShouldContain, "loopback")

	logger := logging.NewTestLogger(t)
	cfg := &config.Config{Display: config.SourceConfig{Type: "nope"}}
	_, err := NewDisplay(context.Background(), cfg, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown display type "nope"`)

	cfg.Camera.Type = "nope"
	_, err = NewCamera(context.Background(), cfg, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, func() { RegisterCamera("loopback", nil) }, test.ShouldPanic)
	test.That(t, func() { RegisterDisplay("image_dir", nil) }, test.ShouldPanic)
}

func TestImageFilesCamera(t *testing.T) {
	dir := t.TempDir()
	for i, v := range []uint8{10, 20, 30} {
		fn := filepath.Join(dir, []string{"b.png", "a.png", "c.png"}[i])
		test.That(t, rimage.WriteImageToFile(fn, solidGray(3, 2, v)), test.ShouldBeNil)
	}
	test.That(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600), test.ShouldBeNil)

	logger := logging.NewTestLogger(t)
	cam, err := NewImageFilesCamera(ImageFilesAttributes{Dir: dir}, logger)
	test.That(t, err, test.ShouldBeNil)

	ctx := context.Background()
	for _, want := range []uint8{20, 10, 30} {
		img, err := cam.CaptureFrame(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Size(), test.ShouldResemble, image.Point{3, 2})
		test.That(t, grayAt(t, img, 1, 1), test.ShouldEqual, want)
	}
	_, err = cam.CaptureFrame(ctx)
	test.That(t, errors.Is(err, utils.ErrIOFailure), test.ShouldBeTrue)

	looping, err := NewImageFilesCamera(ImageFilesAttributes{Dir: dir, Pattern: "[ab].png", Loop: true}, logger)
	test.That(t, err, test.ShouldBeNil)
	for _, want := range []uint8{20, 10, 20} {
		img, err := looping.CaptureFrame(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, grayAt(t, img, 0, 0), test.ShouldEqual, want)
	}

	_, err = NewImageFilesCamera(ImageFilesAttributes{Dir: filepath.Join(dir, "missing")}, logger)
	test.That(t, errors.Is(err, utils.ErrIOFailure), test.ShouldBeTrue)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = cam.CaptureFrame(canceled)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}

func TestImageDirDisplay(t *testing.T) {
	dir := t.TempDir()
	d := NewImageDirDisplay(ImageDirAttributes{Dir: dir, CloseAfter: 2}, logging.NewTestLogger(t))
	ctx := context.Background()

	test.That(t, d.DisplayFullscreen(ctx, solidGray(4, 4, 255), 1), test.ShouldBeNil)
	test.That(t, d.PollShouldClose(), test.ShouldBeFalse)
	test.That(t, d.DisplayFullscreen(ctx, solidGray(4, 4, 0), 2), test.ShouldBeNil)
	test.That(t, d.PollShouldClose(), test.ShouldBeTrue)
	test.That(t, d.Shown(), test.ShouldEqual, 2)

	img, err := rimage.NewGrayFromFile(filepath.Join(dir, "display1_0000.png"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.GrayAt(3, 3).Y, test.ShouldEqual, uint8(255))
	_, err = os.Stat(filepath.Join(dir, "display2_0001.png"))
	test.That(t, err, test.ShouldBeNil)
}

func TestLoopbackScalesIntoPlacement(t *testing.T) {
	lb, err := NewLoopback(image.Point{6, 4}, LoopbackAttributes{
		Ambient:    5,
		Placements: []Placement{{Monitor: 0, X: 2, Y: 0, Width: 4, Height: 4}},
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()

	checker := image.NewGray(image.Rect(0, 0, 2, 2))
	checker.Pix = []uint8{200, 0, 0, 200}
	test.That(t, lb.DisplayFullscreen(ctx, checker, 0), test.ShouldBeNil)

	frame, err := lb.CaptureFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, frame.Bounds().Size(), test.ShouldResemble, image.Point{6, 4})
	test.That(t, grayAt(t, frame, 0, 0), test.ShouldEqual, uint8(5))
	test.That(t, grayAt(t, frame, 2, 0), test.ShouldEqual, uint8(205))
	test.That(t, grayAt(t, frame, 3, 1), test.ShouldEqual, uint8(205))
	test.That(t, grayAt(t, frame, 4, 0), test.ShouldEqual, uint8(5))
	test.That(t, grayAt(t, frame, 5, 3), test.ShouldEqual, uint8(205))
	test.That(t, lb.Captured(), test.ShouldEqual, 1)
}

func TestLoopbackSumsMonitors(t *testing.T) {
	lb, err := NewLoopback(image.Point{2, 2}, LoopbackAttributes{CloseAfter: 3}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()

	test.That(t, lb.DisplayFullscreen(ctx, solidGray(8, 8, 100), 0), test.ShouldBeNil)
	test.That(t, lb.DisplayFullscreen(ctx, solidGray(8, 8, 120), 1), test.ShouldBeNil)
	frame, err := lb.CaptureFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grayAt(t, frame, 1, 1), test.ShouldEqual, uint8(220))
	test.That(t, lb.PollShouldClose(), test.ShouldBeFalse)

	test.That(t, lb.DisplayFullscreen(ctx, solidGray(8, 8, 200), 0), test.ShouldBeNil)
	frame, err = lb.CaptureFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grayAt(t, frame, 0, 0), test.ShouldEqual, uint8(255))
	test.That(t, lb.PollShouldClose(), test.ShouldBeTrue)
}

func TestLoopbackHomographyPlacement(t *testing.T) {
	lb, err := NewLoopback(image.Point{4, 2}, LoopbackAttributes{
		Placements: []Placement{{Monitor: 3, Homography: []float64{1, 0, 1, 0, 1, 0, 0, 0, 1}}},
	}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()

	src := image.NewGray(image.Rect(0, 0, 2, 2))
	src.Pix = []uint8{50, 150, 50, 150}
	test.That(t, lb.DisplayFullscreen(ctx, src, 3), test.ShouldBeNil)
	frame, err := lb.CaptureFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grayAt(t, frame, 0, 0), test.ShouldEqual, uint8(0))
	test.That(t, grayAt(t, frame, 1, 0), test.ShouldEqual, uint8(50))
	test.That(t, grayAt(t, frame, 2, 1), test.ShouldEqual, uint8(150))
	test.That(t, grayAt(t, frame, 3, 1), test.ShouldEqual, uint8(0))
}

func TestLoopbackFromConfig(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctx := context.Background()
	cfg := &config.Config{
		Camera: config.CameraConfig{Width: 4, Height: 4, SourceConfig: config.SourceConfig{Type: "loopback"}},
		Display: config.SourceConfig{Type: "loopback", Attributes: config.AttributeMap{
			"ambient":    "3",
			"placements": []interface{}{map[string]interface{}{"monitor": 1, "width": 2, "height": 2}},
		}},
	}
	display, err := NewDisplay(ctx, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	cam, err := NewCamera(ctx, cfg, display, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cam.(*Loopback) == display.(*Loopback), test.ShouldBeTrue)

	test.That(t, display.DisplayFullscreen(ctx, solidGray(4, 4, 7), 1), test.ShouldBeNil)
	frame, err := cam.CaptureFrame(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, grayAt(t, frame, 1, 1), test.ShouldEqual, uint8(10))
	test.That(t, grayAt(t, frame, 2, 2), test.ShouldEqual, uint8(3))

	_, err = NewCamera(ctx, cfg, NewImageDirDisplay(ImageDirAttributes{}, logger), logger)
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	cfg.Display.Attributes = config.AttributeMap{"ambiant": 3}
	_, err = NewDisplay(ctx, cfg, logger)
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, err = NewLoopback(image.Point{}, LoopbackAttributes{}, logger)
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)
}
