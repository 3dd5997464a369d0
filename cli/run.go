package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/projmap/camera"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/projector"
	"go.viam.com/projmap/rimage"
)

const (
	runPollInterval = 50 * time.Millisecond
	reloadDelay     = 200 * time.Millisecond
)

// RunAction warps the input onto every calibrated projector and keeps it shown until the display
// closes, rendering again whenever the input file is rewritten.
func RunAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := loggerFrom(c)
	group, err := projector.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	for _, p := range group {
		if err := loadCalibration(c, cfg, p); err != nil {
			return err
		}
	}
	display, err := camera.NewDisplay(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeIfCloser(display))
	}()

	r := &renderer{display: display, group: group, logger: logger}
	return r.run(c.Context, c.String(flagInput))
}

type renderer struct {
	display camera.Display
	group   []*projector.Projector
	logger  logging.Logger
}

func (r *renderer) render(ctx context.Context, path string) error {
	src, err := rimage.NewImageFromFile(path)
	if err != nil {
		return err
	}
	for _, p := range r.group {
		out, err := p.WarpContext(ctx, src)
		if err != nil {
			return err
		}
		if err := r.display.DisplayFullscreen(ctx, out, p.ID()); err != nil {
			return err
		}
	}
	r.logger.Infow("rendered", "input", path, "projectors", len(r.group))
	return nil
}

// run renders path once, then re-renders on change until the display asks to close or ctx is done.
// Rendering stays on this goroutine since window backends want a single UI thread.
func (r *renderer) run(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := r.render(ctx, path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			r.logger.Debugw("closing watcher", "error", err)
		}
	}()
	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	changed := make(chan struct{}, 1)
	debounced := debounce.New(reloadDelay)
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			debounced(func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warnw("watching input", "error", err)
		case <-changed:
			if err := r.render(ctx, path); err != nil {
				r.logger.Warnw("render failed, keeping the last frame", "input", path, "error", err)
			}
		case <-ticker.C:
			if r.display.PollShouldClose() {
				return nil
			}
		}
	}
}
