package projector

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"go.viam.com/projmap/camera"
	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/utils"
)

// previewPollInterval is how often Preview asks the display whether to close.
const previewPollInterval = 50 * time.Millisecond

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClock replaces the wall clock used for settle delays.
func WithClock(c clock.Clock) SessionOption {
	return func(s *Session) {
		s.clock = c
	}
}

// A Session captures pattern frames through one camera while projectors show them. Capture is strictly
// sequential: one projector shows its patterns while every other projector in the group is black.
type Session struct {
	id      string
	cfg     *config.Config
	camera  camera.Camera
	display camera.Display
	clock   clock.Clock
	logger  logging.Logger
}

// NewSession returns a capture session.
func NewSession(
	cfg *config.Config,
	cam camera.Camera,
	display camera.Display,
	logger logging.Logger,
	opts ...SessionOption,
) *Session {
	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		camera:  cam,
		display: display,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Sublogger("session")
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Preview shows full white on every projector and waits until the display asks to close, so the
// operator can check framing and focus.
func (s *Session) Preview(ctx context.Context, group []*Projector) error {
	for _, p := range group {
		if err := s.display.DisplayFullscreen(ctx, solid(p.Params().Size(), 0xff), p.ID()); err != nil {
			return err
		}
	}
	s.logger.Infow("previewing, close the display to start capturing", "session", s.id)
	for !s.display.PollShouldClose() {
		if err := s.wait(ctx, previewPollInterval); err != nil {
			return err
		}
	}
	return nil
}

// CaptureGroup captures every projector's patterns in turn, keyed by projector id. On failure or
// cancellation the frames captured so far are returned along with the error.
func (s *Session) CaptureGroup(ctx context.Context, group []*Projector) (map[int][]*image.Gray, error) {
	out := make(map[int][]*image.Gray, len(group))
	if s.cfg.Capture.Preview {
		if err := s.Preview(ctx, group); err != nil {
			return out, err
		}
	}
	for _, p := range group {
		frames, err := s.CaptureProjector(ctx, p, group)
		if len(frames) != 0 {
			out[p.ID()] = frames
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// CaptureProjector shows each of p's patterns, waits for the display to settle, and captures a frame,
// with every other projector in group blanked. Frames are also written to p's capture store. On
// failure or cancellation the frames captured so far are returned along with the error.
func (s *Session) CaptureProjector(ctx context.Context, p *Projector, group []*Projector) ([]*image.Gray, error) {
	for _, other := range group {
		if other.ID() == p.ID() {
			continue
		}
		if err := s.display.DisplayFullscreen(ctx, solid(other.Params().Size(), 0), other.ID()); err != nil {
			return nil, err
		}
	}

	store := NewCaptureStore(s.cfg.Capture.OutputDir, p.ID(), s.cfg.Capture.Format, s.logger)
	patterns := p.Pattern().Generate()
	s.logger.Infow("capturing projector", "session", s.id, "projector", p.ID(), "patterns", len(patterns), "dir", store.Dir())

	frames := make([]*image.Gray, 0, len(patterns))
	for i, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			s.logger.Warnw("capture stopped", "session", s.id, "projector", p.ID(), "kept", len(frames))
			return frames, err
		}
		if err := s.display.DisplayFullscreen(ctx, pattern, p.ID()); err != nil {
			return frames, err
		}
		if err := s.wait(ctx, time.Duration(s.cfg.Capture.SettleDelay)); err != nil {
			s.logger.Warnw("capture stopped", "session", s.id, "projector", p.ID(), "kept", len(frames))
			return frames, err
		}
		frame, err := s.captureFrame(ctx, i)
		if err != nil {
			return frames, err
		}
		if err := store.SaveFrame(i, frame); err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	if err := s.display.DisplayFullscreen(ctx, solid(p.Params().Size(), 0), p.ID()); err != nil {
		return frames, err
	}
	return frames, nil
}

func (s *Session) captureFrame(ctx context.Context, index int) (*image.Gray, error) {
	want := s.cfg.Camera.Resolution()
	for attempt := 0; ; attempt++ {
		img, err := s.camera.CaptureFrame(ctx)
		if err != nil {
			return nil, err
		}
		if img != nil && !img.Bounds().Empty() {
			if got := img.Bounds().Size(); want != (image.Point{}) && got != want {
				return nil, utils.NewConfigurationMismatchError("camera delivered %v, configured %v", got, want)
			}
			return rimage.MakeGray(img), nil
		}
		if attempt >= s.cfg.Capture.Retries {
			return nil, utils.NewIOFailureError(nil, "frame %d stayed empty after %d attempts", index, attempt+1)
		}
		s.logger.Warnw("empty frame, capturing again", "session", s.id, "frame", index, "attempt", attempt+1)
	}
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func solid(size image.Point, v uint8) *image.Gray {
	img := image.NewGray(image.Rectangle{Max: size})
	if v != 0 {
		for i := range img.Pix {
			img.Pix[i] = v
		}
	}
	return img
}
