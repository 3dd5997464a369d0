package inject

import (
	"context"
	"image"

	"go.viam.com/projmap/camera"
)

// Display is an injected display.
type Display struct {
	camera.Display
	DisplayFullscreenFunc func(ctx context.Context, img image.Image, monitorID int) error
	PollShouldCloseFunc   func() bool
}

// DisplayFullscreen calls the injected DisplayFullscreen or the real version.
func (d *Display) DisplayFullscreen(ctx context.Context, img image.Image, monitorID int) error {
	if d.DisplayFullscreenFunc == nil {
		return d.Display.DisplayFullscreen(ctx, img, monitorID)
	}
	return d.DisplayFullscreenFunc(ctx, img, monitorID)
}

// PollShouldClose calls the injected PollShouldClose or the real version.
func (d *Display) PollShouldClose() bool {
	if d.PollShouldCloseFunc == nil {
		return d.Display.PollShouldClose()
	}
	return d.PollShouldCloseFunc()
}
