// Package inject provides camera and display doubles whose behavior is set per test.
package inject

import (
	"context"
	"image"

	"go.viam.com/projmap/camera"
)

// Camera is an injected camera.
type Camera struct {
	camera.Camera
	CaptureFrameFunc func(ctx context.Context) (image.Image, error)
}

// CaptureFrame calls the injected CaptureFrame or the real version.
func (c *Camera) CaptureFrame(ctx context.Context) (image.Image, error) {
	if c.CaptureFrameFunc == nil {
		return c.Camera.CaptureFrame(ctx)
	}
	return c.CaptureFrameFunc(ctx)
}
