package camera

import (
	"context"
	"image"
	"sync"

	"golang.org/x/image/draw"

	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/rimage/transform"
	"go.viam.com/projmap/utils"
)

const loopbackType = "loopback"

func init() {
	RegisterDisplay(loopbackType, func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Display, error) {
		attrs, err := config.DecodeAttributes[LoopbackAttributes](cfg.Display.Attributes)
		if err != nil {
			return nil, utils.NewConfigurationMismatchError("display attributes: %v", err)
		}
		return NewLoopback(cfg.Camera.Resolution(), attrs, logger)
	})
	RegisterCamera(loopbackType, func(
		ctx context.Context, cfg *config.Config, display Display, logger logging.Logger,
	) (Camera, error) {
		lb, ok := display.(*Loopback)
		if !ok {
			return nil, utils.NewConfigurationMismatchError("a %q camera needs a %q display, got %T", loopbackType, loopbackType, display)
		}
		return lb, nil
	})
}

// Placement puts one monitor's output into the camera frame. Rect scales the image into a camera
// rectangle with nearest neighbor sampling; Homography, when set, warps it instead.
type Placement struct {
	Monitor    int       `json:"monitor"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Homography []float64 `json:"homography"`
}

// LoopbackAttributes configures a Loopback.
type LoopbackAttributes struct {
	Placements []Placement `json:"placements"`
	// Ambient is the gray level the camera sees with every projector dark.
	Ambient uint8 `json:"ambient"`
	// CloseAfter makes PollShouldClose report true once this many images were shown; 0 never closes.
	CloseAfter int `json:"close_after"`
}

type loopbackLayer struct {
	rect image.Rectangle
	h    *transform.Homography
	img  *image.RGBA
}

// Loopback is a display and a camera at once: whatever is displayed on a monitor lands on the
// camera frame at that monitor's placement, and captures add up every monitor plus ambient light.
// Monitors without a placement fill the whole frame.
type Loopback struct {
	mu       sync.Mutex
	size     image.Point
	ambient  uint8
	closeAt  int
	shown    int
	layers   map[int]*loopbackLayer
	captured int
	logger   logging.Logger
}

// NewLoopback returns a loopback rig observing a camera frame of the given size.
func NewLoopback(size image.Point, attrs LoopbackAttributes, logger logging.Logger) (*Loopback, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, utils.NewConfigurationMismatchError("loopback camera size must be positive, got %v", size)
	}
	lb := &Loopback{
		size:    size,
		ambient: attrs.Ambient,
		closeAt: attrs.CloseAfter,
		layers:  map[int]*loopbackLayer{},
		logger:  logger,
	}
	for _, p := range attrs.Placements {
		layer := &loopbackLayer{rect: image.Rect(p.X, p.Y, p.X+p.Width, p.Y+p.Height)}
		if len(p.Homography) != 0 {
			h, err := transform.NewHomography(p.Homography)
			if err != nil {
				return nil, utils.NewConfigurationMismatchError("placement for monitor %d: %v", p.Monitor, err)
			}
			layer.h = h
		} else if layer.rect.Empty() {
			return nil, utils.NewConfigurationMismatchError("placement for monitor %d is empty", p.Monitor)
		}
		lb.layers[p.Monitor] = layer
	}
	return lb, nil
}

func (lb *Loopback) layer(monitorID int) *loopbackLayer {
	l, ok := lb.layers[monitorID]
	if !ok {
		l = &loopbackLayer{rect: image.Rectangle{Max: lb.size}}
		lb.layers[monitorID] = l
	}
	return l
}

// DisplayFullscreen places img on the camera frame at the monitor's placement.
func (lb *Loopback) DisplayFullscreen(ctx context.Context, img image.Image, monitorID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if img == nil {
		return utils.NewConfigurationMismatchError("nothing to display on monitor %d", monitorID)
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()

	l := lb.layer(monitorID)
	if l.h != nil {
		l.img = rimage.WarpImage(img, l.h.Matrix(), lb.size)
	} else {
		dst := image.NewRGBA(image.Rectangle{Max: lb.size})
		draw.NearestNeighbor.Scale(dst, l.rect, img, img.Bounds(), draw.Src, nil)
		l.img = dst
	}
	lb.shown++
	return nil
}

// PollShouldClose reports whether CloseAfter images were shown.
func (lb *Loopback) PollShouldClose() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.closeAt > 0 && lb.shown >= lb.closeAt
}

// CaptureFrame sums ambient light and every monitor's current image, saturating at white.
func (lb *Loopback) CaptureFrame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()

	frame := image.NewRGBA(image.Rectangle{Max: lb.size})
	for i := 0; i < len(frame.Pix); i += 4 {
		frame.Pix[i+0] = lb.ambient
		frame.Pix[i+1] = lb.ambient
		frame.Pix[i+2] = lb.ambient
		frame.Pix[i+3] = 0xff
	}
	for _, l := range lb.layers {
		if l.img == nil {
			continue
		}
		for i := 0; i < len(frame.Pix); i += 4 {
			frame.Pix[i+0] = addSaturating(frame.Pix[i+0], l.img.Pix[i+0])
			frame.Pix[i+1] = addSaturating(frame.Pix[i+1], l.img.Pix[i+1])
			frame.Pix[i+2] = addSaturating(frame.Pix[i+2], l.img.Pix[i+2])
		}
	}
	lb.captured++
	return frame, nil
}

// Captured is the number of frames captured so far.
func (lb *Loopback) Captured() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.captured
}

// Shown is the number of images displayed so far.
func (lb *Loopback) Shown() int {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.shown
}

func addSaturating(a, b uint8) uint8 {
	if sum := int(a) + int(b); sum < 0xff {
		return uint8(sum)
	}
	return 0xff
}
