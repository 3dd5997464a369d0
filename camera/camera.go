// Package camera defines the camera and display collaborators of a calibration session and the
// implementations that can be selected from config.
package camera

import (
	"context"
	"image"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
)

// A Camera captures frames of the projection surface.
type Camera interface {
	CaptureFrame(ctx context.Context) (image.Image, error)
}

// A Display shows images fullscreen on the monitor a projector is attached to.
type Display interface {
	DisplayFullscreen(ctx context.Context, img image.Image, monitorID int) error
	// PollShouldClose reports whether the operator asked to close the display.
	PollShouldClose() bool
}

type (
	// CameraConstructor builds a camera. display is the session's display, for cameras that observe it
	// directly.
	CameraConstructor func(ctx context.Context, cfg *config.Config, display Display, logger logging.Logger) (Camera, error)
	// DisplayConstructor builds a display.
	DisplayConstructor func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Display, error)
)

var (
	registryMu sync.RWMutex
	cameras    = map[string]CameraConstructor{}
	displays   = map[string]DisplayConstructor{}
)

// RegisterCamera registers a camera type. It panics if the type is already registered.
func RegisterCamera(typeName string, constructor CameraConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := cameras[typeName]; ok {
		panic(errors.Errorf("camera type %q already registered", typeName))
	}
	cameras[typeName] = constructor
}

// RegisterDisplay registers a display type. It panics if the type is already registered.
func RegisterDisplay(typeName string, constructor DisplayConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := displays[typeName]; ok {
		panic(errors.Errorf("display type %q already registered", typeName))
	}
	displays[typeName] = constructor
}

// NewDisplay builds the display named by cfg.Display.
func NewDisplay(ctx context.Context, cfg *config.Config, logger logging.Logger) (Display, error) {
	registryMu.RLock()
	constructor, ok := displays[cfg.Display.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown display type %q (have %v)", cfg.Display.Type, DisplayTypes())
	}
	return constructor(ctx, cfg, logger.Sublogger("display"))
}

// NewCamera builds the camera named by cfg.Camera.
func NewCamera(ctx context.Context, cfg *config.Config, display Display, logger logging.Logger) (Camera, error) {
	registryMu.RLock()
	constructor, ok := cameras[cfg.Camera.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown camera type %q (have %v)", cfg.Camera.Type, CameraTypes())
	}
	return constructor(ctx, cfg, display, logger.Sublogger("camera"))
}

// CameraTypes lists the registered camera types.
func CameraTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(cameras)
}

// DisplayTypes lists the registered display types.
func DisplayTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(displays)
}

func sortedKeys[T any](m map[string]T) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
