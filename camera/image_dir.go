package camera

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/utils"
)

func init() {
	RegisterDisplay("image_dir", func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Display, error) {
		attrs, err := config.DecodeAttributes[ImageDirAttributes](cfg.Display.Attributes)
		if err != nil {
			return nil, utils.NewConfigurationMismatchError("display attributes: %v", err)
		}
		return NewImageDirDisplay(attrs, logger), nil
	})
}

// ImageDirAttributes configures an ImageDirDisplay.
type ImageDirAttributes struct {
	Dir string `json:"dir"`
	// CloseAfter makes PollShouldClose report true once this many images were shown; 0 never closes.
	CloseAfter int `json:"close_after"`
}

// ImageDirDisplay writes every displayed image to a numbered file instead of a screen, which is useful
// for headless runs and for inspecting exactly what a projector would show.
type ImageDirDisplay struct {
	mu     sync.Mutex
	attrs  ImageDirAttributes
	shown  int
	logger logging.Logger
}

// NewImageDirDisplay returns a display writing into attrs.Dir.
func NewImageDirDisplay(attrs ImageDirAttributes, logger logging.Logger) *ImageDirDisplay {
	if attrs.Dir == "" {
		attrs.Dir = "."
	}
	return &ImageDirDisplay{attrs: attrs, logger: logger}
}

// DisplayFullscreen writes img to display<monitorID>_NNNN.png.
func (d *ImageDirDisplay) DisplayFullscreen(ctx context.Context, img image.Image, monitorID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	n := d.shown
	d.shown++
	d.mu.Unlock()

	fn := filepath.Join(d.attrs.Dir, fmt.Sprintf("display%d_%04d.png", monitorID, n))
	if err := rimage.WriteImageToFile(fn, img); err != nil {
		return utils.NewIOFailureError(err, "writing %q", fn)
	}
	d.logger.Debugw("displayed", "monitor", monitorID, "file", fn)
	return nil
}

// PollShouldClose reports whether CloseAfter images were shown.
func (d *ImageDirDisplay) PollShouldClose() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attrs.CloseAfter > 0 && d.shown >= d.attrs.CloseAfter
}

// Shown is the number of images displayed so far.
func (d *ImageDirDisplay) Shown() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}
