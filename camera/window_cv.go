//go:build cv

package camera

import (
	"context"
	"fmt"
	"image"
	"sync"

	goutils "go.viam.com/utils"
	"gocv.io/x/gocv"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/utils"
)

const escapeKey = 27

func init() {
	RegisterDisplay("window", func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Display, error) {
		if _, err := config.DecodeAttributes[struct{}](cfg.Display.Attributes); err != nil {
			return nil, utils.NewConfigurationMismatchError("display attributes: %v", err)
		}
		return NewWindowDisplay(cfg.Projectors, logger), nil
	})
}

// WindowDisplay shows images in one borderless fullscreen window per monitor. Each window is moved
// to its projector's desktop origin before going fullscreen.
type WindowDisplay struct {
	mu          sync.Mutex
	projectors  []config.ProjectorConfig
	windows     map[int]*gocv.Window
	shouldClose bool
	logger      logging.Logger
}

// NewWindowDisplay returns a display for the given projectors. Windows open lazily.
func NewWindowDisplay(projectors []config.ProjectorConfig, logger logging.Logger) *WindowDisplay {
	return &WindowDisplay{projectors: projectors, windows: map[int]*gocv.Window{}, logger: logger}
}

func (wd *WindowDisplay) window(monitorID int) *gocv.Window {
	if w, ok := wd.windows[monitorID]; ok {
		return w
	}
	w := gocv.NewWindow(fmt.Sprintf("projector%d", monitorID))
	for _, p := range wd.projectors {
		if p.ID == monitorID {
			w.MoveWindow(p.OriginX, p.OriginY)
		}
	}
	w.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
	wd.windows[monitorID] = w
	return w
}

// DisplayFullscreen shows img on the monitor's window.
func (wd *WindowDisplay) DisplayFullscreen(ctx context.Context, img image.Image, monitorID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return utils.NewIOFailureError(err, "converting image for monitor %d", monitorID)
	}
	defer goutils.UncheckedErrorFunc(mat.Close)

	wd.mu.Lock()
	defer wd.mu.Unlock()
	w := wd.window(monitorID)
	w.IMShow(mat)
	if w.WaitKey(1) == escapeKey {
		wd.shouldClose = true
	}
	return nil
}

// PollShouldClose pumps window events and reports whether Esc was pressed or a window was closed.
func (wd *WindowDisplay) PollShouldClose() bool {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	for _, w := range wd.windows {
		if !w.IsOpen() {
			wd.shouldClose = true
			continue
		}
		if w.WaitKey(1) == escapeKey {
			wd.shouldClose = true
		}
	}
	return wd.shouldClose
}

// Close closes every window.
func (wd *WindowDisplay) Close() error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	for id, w := range wd.windows {
		if err := w.Close(); err != nil {
			return err
		}
		delete(wd.windows, id)
	}
	return nil
}
