// Package projector binds a projector's patterns, correspondence, homography and contribution map, and
// drives the capture sessions that produce them.
package projector

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"go.viam.com/projmap/blend"
	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/rimage/transform"
	"go.viam.com/projmap/structuredlight"
	"go.viam.com/projmap/utils"
)

// Params identify a projector and the monitor it is attached to. They do not change once the projector
// is constructed.
type Params struct {
	ID      int
	Width   int
	Height  int
	OriginX int
	OriginY int
}

// ParamsFromConfig converts a configured projector.
func ParamsFromConfig(cfg config.ProjectorConfig) Params {
	return Params{ID: cfg.ID, Width: cfg.Width, Height: cfg.Height, OriginX: cfg.OriginX, OriginY: cfg.OriginY}
}

// Validate rejects negative ids and non-positive resolutions.
func (p Params) Validate() error {
	if p.ID < 0 {
		return utils.NewConfigurationMismatchError("projector id must not be negative, got %d", p.ID)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return utils.NewConfigurationMismatchError("projector %d resolution must be positive, got %dx%d", p.ID, p.Width, p.Height)
	}
	return nil
}

// Size is the projector resolution.
func (p Params) Size() image.Point {
	return image.Point{p.Width, p.Height}
}

// Option configures a Projector.
type Option func(*Projector)

// WithComplementaryPatterns makes the projector capture every bit plane together with its inverse.
func WithComplementaryPatterns() Option {
	return func(p *Projector) {
		p.patternOpts = append(p.patternOpts, structuredlight.WithComplementaryPatterns())
	}
}

// WithRANSACConfig sets how the homography is estimated.
func WithRANSACConfig(cfg transform.RANSACConfig) Option {
	return func(p *Projector) {
		p.ransac = cfg
	}
}

// WithBlendConfig sets how the contribution map is applied by Warp.
func WithBlendConfig(cfg blend.Config) Option {
	return func(p *Projector) {
		p.blend = cfg
	}
}

// WithCameraResolution fixes the camera frame size Warp scales its source to. Without it the size of
// the correspondence map is used.
func WithCameraResolution(size image.Point) Option {
	return func(p *Projector) {
		p.cameraSize = size
	}
}

// A Projector owns everything calibration learns about one projector. It is safe for concurrent use.
type Projector struct {
	params      Params
	patternOpts []structuredlight.PatternOption
	pattern     *structuredlight.GrayCodePattern
	ransac      transform.RANSACConfig
	blend       blend.Config
	cameraSize  image.Point
	logger      logging.Logger

	mu             sync.Mutex
	correspondence *structuredlight.CorrespondenceMap
	white          *image.Gray
	estimate       *transform.HomographyEstimate
	contribution   *blend.ContributionMap
}

// New returns a projector with its pattern set generated for its resolution.
func New(params Params, logger logging.Logger, opts ...Option) (*Projector, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := &Projector{params: params, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	pattern, err := structuredlight.NewGrayCodePattern(params.Width, params.Height, p.patternOpts...)
	if err != nil {
		return nil, err
	}
	p.pattern = pattern
	return p, nil
}

// NewFromConfig builds every configured projector.
func NewFromConfig(cfg *config.Config, logger logging.Logger) ([]*Projector, error) {
	opts := []Option{
		WithRANSACConfig(cfg.RANSAC),
		WithBlendConfig(cfg.Blend),
		WithCameraResolution(cfg.Camera.Resolution()),
	}
	if cfg.Capture.Complementary {
		opts = append(opts, WithComplementaryPatterns())
	}
	out := make([]*Projector, 0, len(cfg.Projectors))
	for _, pc := range cfg.Projectors {
		p, err := New(ParamsFromConfig(pc), logger, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ID is the projector's monitor id.
func (p *Projector) ID() int { return p.params.ID }

// Params returns the projector's parameters.
func (p *Projector) Params() Params { return p.params }

// Pattern is the projector's pattern set.
func (p *Projector) Pattern() *structuredlight.GrayCodePattern { return p.pattern }

// Correspondence is the decoded map, or nil before calibration.
func (p *Projector) Correspondence() *structuredlight.CorrespondenceMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.correspondence
}

// SetCorrespondence replaces the correspondence map and drops the cached homography.
func (p *Projector) SetCorrespondence(m *structuredlight.CorrespondenceMap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.correspondence = m
	p.estimate = nil
}

// White is the camera frame captured while this projector showed full white.
func (p *Projector) White() *image.Gray {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.white
}

// SetWhite records the full white camera frame.
func (p *Projector) SetWhite(white *image.Gray) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.white = white
}

// Contribution is the blend weight map, or nil for a projector that is not blended.
func (p *Projector) Contribution() *blend.ContributionMap {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contribution
}

// SetContribution sets the blend weight map; nil removes it.
func (p *Projector) SetContribution(c *blend.ContributionMap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contribution = c
}

// Calibrate decodes frames captured while this projector showed its patterns, optionally denoises the
// result, and keeps it together with the white frame.
func (p *Projector) Calibrate(
	ctx context.Context,
	frames []*image.Gray,
	decoderCfg structuredlight.DecoderConfig,
	denoise *structuredlight.DenoiseConfig,
) (structuredlight.DecodeStats, error) {
	decoder, err := structuredlight.NewDecoder(p.pattern, decoderCfg, p.logger)
	if err != nil {
		return structuredlight.DecodeStats{}, err
	}
	m, stats, err := decoder.Decode(ctx, frames)
	if err != nil {
		return stats, err
	}
	if denoise != nil {
		before := m.Len()
		if m, err = structuredlight.Denoise(m, *denoise); err != nil {
			return stats, err
		}
		p.logger.Debugw("denoised correspondences", "projector", p.params.ID, "before", before, "after", m.Len())
	}
	p.SetCorrespondence(m)
	p.SetWhite(frames[p.pattern.WhiteIndex()])
	return stats, nil
}

// Estimate returns the homography estimate, fitting it from the correspondence map on first use. The
// result is cached until the correspondence changes or InvalidateHomography is called.
func (p *Projector) Estimate(ctx context.Context) (*transform.HomographyEstimate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.estimate != nil {
		return p.estimate, nil
	}
	if p.correspondence == nil {
		return nil, utils.NewInsufficientDataError("projector %d has no correspondence", p.params.ID)
	}
	cam, proj := p.correspondence.Points()
	est, err := transform.EstimateHomography(ctx, cam, proj, p.ransac)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("estimated homography",
		"projector", p.params.ID,
		"inliers", est.Inliers,
		"total", est.Total,
		"iterations", est.Iterations,
		"mean_residual", est.Residuals.Mean,
		"p95_residual", est.Residuals.P95,
	)
	p.estimate = est
	return est, nil
}

// Homography returns the cached camera to projector homography, estimating it if needed.
func (p *Projector) Homography(ctx context.Context) (*transform.Homography, error) {
	est, err := p.Estimate(ctx)
	if err != nil {
		return nil, err
	}
	return est.H, nil
}

// SetEstimate installs a previously computed estimate, such as one loaded from disk.
func (p *Projector) SetEstimate(est *transform.HomographyEstimate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimate = est
}

// InvalidateHomography drops the cached homography so the next use estimates it again.
func (p *Projector) InvalidateHomography() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimate = nil
}

// Warp is WarpContext without cancellation.
func (p *Projector) Warp(src image.Image) (*image.RGBA, error) {
	return p.WarpContext(context.Background(), src)
}

// WarpContext renders src, given in camera space, into this projector's pixels. The source is scaled
// to the camera resolution if needed, masked by the contribution map if there is one, and warped
// through the homography at the projector's resolution.
func (p *Projector) WarpContext(ctx context.Context, src image.Image) (*image.RGBA, error) {
	h, err := p.Homography(ctx)
	if err != nil {
		return nil, err
	}
	contribution := p.Contribution()

	camSize := p.cameraSize
	if camSize == (image.Point{}) {
		if m := p.Correspondence(); m != nil {
			camSize = m.Bounds().Size()
		} else if contribution != nil {
			camSize = contribution.Bounds().Size()
		} else {
			camSize = src.Bounds().Size()
		}
	}
	scaled := copyToRGBA(src, camSize)
	if contribution != nil {
		if err := blend.ApplyContribution(scaled, contribution, p.blend); err != nil {
			return nil, err
		}
	}
	return rimage.WarpImage(scaled, h.Matrix(), p.params.Size()), nil
}

// copyToRGBA returns a fresh RGBA copy of img at the given size.
func copyToRGBA(img image.Image, size image.Point) *image.RGBA {
	if img.Bounds().Size() != size {
		img = imaging.Resize(img, size.X, size.Y, imaging.Linear)
	}
	out := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
