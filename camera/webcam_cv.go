//go:build cv

package camera

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/utils"
)

func init() {
	RegisterCamera("webcam", func(
		ctx context.Context, cfg *config.Config, _ Display, logger logging.Logger,
	) (Camera, error) {
		attrs, err := config.DecodeAttributes[WebcamAttributes](cfg.Camera.Attributes)
		if err != nil {
			return nil, utils.NewConfigurationMismatchError("camera attributes: %v", err)
		}
		return NewWebcam(attrs, cfg.Camera.Resolution(), logger)
	})
}

// WebcamAttributes configures a Webcam.
type WebcamAttributes struct {
	DeviceID int `json:"device_id"`
	// DiscardFrames is how many buffered frames are read and dropped before each capture.
	DiscardFrames int `json:"discard_frames"`
}

// Webcam captures from a local video device.
type Webcam struct {
	mu     sync.Mutex
	attrs  WebcamAttributes
	size   image.Point
	webcam *gocv.VideoCapture
	img    gocv.Mat
	logger logging.Logger
}

// NewWebcam opens the video device and asks it for the configured resolution.
func NewWebcam(attrs WebcamAttributes, size image.Point, logger logging.Logger) (*Webcam, error) {
	webcam, err := gocv.OpenVideoCapture(attrs.DeviceID)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "opening video device %d", attrs.DeviceID)
	}
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(size.X))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(size.Y))
	logger.Infow("opened webcam", "device_id", attrs.DeviceID, "width", size.X, "height", size.Y)
	return &Webcam{attrs: attrs, size: size, webcam: webcam, img: gocv.NewMat(), logger: logger}, nil
}

// CaptureFrame reads one frame. Frames that are not the configured resolution are rejected.
func (we *Webcam) CaptureFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	we.mu.Lock()
	defer we.mu.Unlock()

	for i := 0; i <= we.attrs.DiscardFrames; i++ {
		if ok := we.webcam.Read(&we.img); !ok {
			return nil, utils.NewIOFailureError(nil, "cannot read video device %d", we.attrs.DeviceID)
		}
	}
	if we.img.Empty() {
		return nil, utils.NewIOFailureError(nil, "empty frame from video device %d", we.attrs.DeviceID)
	}
	img, err := we.img.ToImage()
	if err != nil {
		return nil, utils.NewIOFailureError(err, "converting frame")
	}
	if got := img.Bounds().Size(); got != we.size {
		return nil, utils.NewConfigurationMismatchError("video device %d delivers %v, configured %v", we.attrs.DeviceID, got, we.size)
	}
	return img, nil
}

// Close releases the device.
func (we *Webcam) Close() error {
	we.mu.Lock()
	defer we.mu.Unlock()
	if err := we.img.Close(); err != nil {
		return err
	}
	return we.webcam.Close()
}
