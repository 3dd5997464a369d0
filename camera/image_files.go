package camera

import (
	"context"
	"image"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/utils"
)

func init() {
	RegisterCamera("image_files", func(
		ctx context.Context, cfg *config.Config, _ Display, logger logging.Logger,
	) (Camera, error) {
		attrs, err := config.DecodeAttributes[ImageFilesAttributes](cfg.Camera.Attributes)
		if err != nil {
			return nil, utils.NewConfigurationMismatchError("camera attributes: %v", err)
		}
		return NewImageFilesCamera(attrs, logger)
	})
}

// ImageFilesAttributes configures an ImageFilesCamera.
type ImageFilesAttributes struct {
	Dir string `json:"dir"`
	// Pattern is a glob relative to Dir; defaults to every png file.
	Pattern string `json:"pattern"`
	// Loop restarts from the first file after the last one.
	Loop bool `json:"loop"`
}

// ImageFilesCamera replays image files in lexical order, one per capture. It stands in for a real
// camera when frames were captured earlier.
type ImageFilesCamera struct {
	mu     sync.Mutex
	files  []string
	next   int
	loop   bool
	logger logging.Logger
}

// NewImageFilesCamera lists the files to replay.
func NewImageFilesCamera(attrs ImageFilesAttributes, logger logging.Logger) (*ImageFilesCamera, error) {
	pattern := attrs.Pattern
	if pattern == "" {
		pattern = "*.png"
	}
	files, err := filepath.Glob(filepath.Join(attrs.Dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "bad pattern %q", pattern)
	}
	if len(files) == 0 {
		return nil, utils.NewIOFailureError(nil, "no files match %q in %q", pattern, attrs.Dir)
	}
	sort.Strings(files)
	logger.Debugw("replaying image files", "dir", attrs.Dir, "count", len(files))
	return &ImageFilesCamera{files: files, loop: attrs.Loop, logger: logger}, nil
}

// CaptureFrame returns the next file's image.
func (c *ImageFilesCamera) CaptureFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.next >= len(c.files) {
		if !c.loop {
			c.mu.Unlock()
			return nil, utils.NewIOFailureError(nil, "all %d image files were already captured", len(c.files))
		}
		c.next = 0
	}
	fn := c.files[c.next]
	c.next++
	c.mu.Unlock()

	img, err := rimage.NewImageFromFile(fn)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "reading frame %q", fn)
	}
	return img, nil
}
