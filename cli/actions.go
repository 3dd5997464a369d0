package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/projmap/camera"
	"go.viam.com/projmap/config"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/projector"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/utils"
)

const (
	loggerKey  = "logger"
	logFileKey = "logFile"
)

func setupLogging(c *cli.Context) error {
	level := logging.INFO
	if c.Bool(flagDebug) {
		level = logging.DEBUG
	}
	logger := logging.NewLoggerTo("projmap", level, logging.NewWriterAppender(c.App.ErrWriter))
	if c.App.Metadata == nil {
		c.App.Metadata = map[string]interface{}{}
	}
	if fn := c.String(flagLogFile); fn != "" {
		fa := logging.NewFileAppender(fn)
		logger.AddAppender(fa)
		c.App.Metadata[logFileKey] = fa
	}
	c.App.Metadata[loggerKey] = logger
	return nil
}

func closeLogging(c *cli.Context) error {
	if fa, ok := c.App.Metadata[logFileKey].(*logging.FileAppender); ok {
		delete(c.App.Metadata, logFileKey)
		return fa.Close()
	}
	return nil
}

func loggerFrom(c *cli.Context) logging.Logger {
	if logger, ok := c.App.Metadata[loggerKey].(logging.Logger); ok {
		return logger
	}
	return logging.Global()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return nil, errors.Errorf("this command needs a config, pass --%s", flagConfig)
	}
	return config.Read(path, loggerFrom(c))
}

// selectProjectors builds the configured projectors and picks the ones named by --projector. group is
// every configured projector.
func selectProjectors(c *cli.Context, cfg *config.Config) (selected, group []*projector.Projector, err error) {
	group, err = projector.NewFromConfig(cfg, loggerFrom(c))
	if err != nil {
		return nil, nil, err
	}
	ids := c.IntSlice(flagProjector)
	if len(ids) == 0 {
		return group, group, nil
	}
	for _, id := range ids {
		p, ok := lo.Find(group, func(p *projector.Projector) bool { return p.ID() == id })
		if !ok {
			return nil, nil, errors.Errorf("no projector with id %d in %q", id, cfg.ConfigFilePath)
		}
		selected = append(selected, p)
	}
	return selected, group, nil
}

func storeFor(c *cli.Context, cfg *config.Config, p *projector.Projector) *projector.CaptureStore {
	return projector.NewCaptureStore(cfg.Capture.OutputDir, p.ID(), cfg.Capture.Format, loggerFrom(c))
}

// PatternsAction writes pattern images.
func PatternsAction(c *cli.Context) error {
	var params []projector.Params
	if w, h := c.Int(flagWidth), c.Int(flagHeight); w > 0 || h > 0 {
		params = append(params, projector.Params{Width: w, Height: h})
	} else {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		selected, _, err := selectProjectors(c, cfg)
		if err != nil {
			return err
		}
		params = lo.Map(selected, func(p *projector.Projector, _ int) projector.Params { return p.Params() })
	}

	var opts []projector.Option
	if c.Bool(flagComplementary) {
		opts = append(opts, projector.WithComplementaryPatterns())
	}
	for _, pp := range params {
		p, err := projector.New(pp, loggerFrom(c), opts...)
		if err != nil {
			return err
		}
		dir := filepath.Join(c.String(flagOutput), fmt.Sprintf("projector%d", pp.ID))
		for i, img := range p.Pattern().Generate() {
			if err := rimage.WriteImageToFile(filepath.Join(dir, fmt.Sprintf("pattern_%02d.png", i)), img); err != nil {
				return err
			}
		}
		printf(c.App.Writer, "wrote %d patterns for a %dx%d projector to %s", p.Pattern().NumImages(), pp.Width, pp.Height, dir)
	}
	return nil
}

// CaptureAction captures the pattern frames of the selected projectors.
func CaptureAction(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	selected, group, err := selectProjectors(c, cfg)
	if err != nil {
		return err
	}
	logger := loggerFrom(c)
	display, err := camera.NewDisplay(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, closeIfCloser(display))
	}()
	cam, err := camera.NewCamera(c.Context, cfg, display, logger)
	if err != nil {
		return err
	}
	if any(cam) != any(display) {
		defer func() {
			err = multierr.Combine(err, closeIfCloser(cam))
		}()
	}

	session := projector.NewSession(cfg, cam, display, logger)
	if cfg.Capture.Preview {
		if err := session.Preview(c.Context, group); err != nil {
			return err
		}
	}
	pr := newProgress(c.App.Writer)
	for _, p := range selected {
		if err := pr.step(fmt.Sprintf("capturing projector %d", p.ID()), func() (string, error) {
			frames, err := session.CaptureProjector(c.Context, p, group)
			if err != nil {
				return "", errors.Wrapf(err, "kept %d frames", len(frames))
			}
			return fmt.Sprintf("captured %d frames of projector %d into %s", len(frames), p.ID(), storeFor(c, cfg, p).Dir()), nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// DecodeAction decodes captured frames and writes c2p.csv and result.png per projector.
func DecodeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	selected, _, err := selectProjectors(c, cfg)
	if err != nil {
		return err
	}
	pr := newProgress(c.App.Writer)
	var rows []decodeRow
	for _, p := range selected {
		store := storeFor(c, cfg, p)
		if err := pr.step(fmt.Sprintf("decoding projector %d", p.ID()), func() (string, error) {
			frames, err := store.LoadFrames()
			if err != nil {
				return "", err
			}
			stats, err := p.Calibrate(c.Context, frames, cfg.DecoderConfig(), cfg.Denoise)
			if err != nil {
				return "", err
			}
			m := p.Correspondence()
			if err := store.SaveCorrespondence(m); err != nil {
				return "", err
			}
			if err := store.SaveResult(m, p.Params().Width, p.Params().Height); err != nil {
				return "", err
			}
			rows = append(rows, decodeRow{id: p.ID(), stats: stats, after: m.Len()})
			return fmt.Sprintf("decoded projector %d: %d correspondences", p.ID(), m.Len()), nil
		}); err != nil {
			return err
		}
	}
	printf(c.App.Writer, "%s", decodeTable(rows))
	return nil
}

// HomographyAction fits and saves each selected projector's homography.
func HomographyAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	selected, _, err := selectProjectors(c, cfg)
	if err != nil {
		return err
	}
	pr := newProgress(c.App.Writer)
	var results []projector.CalibrationResult
	for _, p := range selected {
		store := storeFor(c, cfg, p)
		if err := pr.step(fmt.Sprintf("fitting projector %d", p.ID()), func() (string, error) {
			m, err := store.LoadCorrespondence(cfg.Camera.Width, cfg.Camera.Height)
			if err != nil {
				return "", err
			}
			p.SetCorrespondence(m)
			est, err := p.Estimate(c.Context)
			if err != nil {
				return "", err
			}
			if err := store.SaveEstimate(est); err != nil {
				return "", err
			}
			if c.Bool(flagPlot) {
				if err := saveResidualPlot(filepath.Join(store.Dir(), "residuals.png"), p.ID(), est.InlierResiduals); err != nil {
					return "", err
				}
			}
			results = append(results, projector.CalibrationResult{ID: p.ID(), Estimate: est})
			return fmt.Sprintf("fit projector %d: %d of %d inliers", p.ID(), est.Inliers, est.Total), nil
		}); err != nil {
			return err
		}
	}
	printf(c.App.Writer, "%s", homographyTable(results))
	if c.Bool(flagHistogram) {
		for _, r := range results {
			printf(c.App.Writer, "projector %d reprojection error (px):", r.ID)
			if err := printResidualHistogram(c.App.Writer, r.Estimate.InlierResiduals); err != nil {
				return err
			}
		}
	}
	return nil
}

// BlendAction computes and saves the contribution maps of every configured projector.
func BlendAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	group, err := projector.NewFromConfig(cfg, loggerFrom(c))
	if err != nil {
		return err
	}
	if len(group) == 1 {
		warningf(c.App.ErrWriter, "only one projector is configured, its contribution is 1 wherever it maps")
	}
	for _, p := range group {
		store := storeFor(c, cfg, p)
		m, err := store.LoadCorrespondence(cfg.Camera.Width, cfg.Camera.Height)
		if err != nil {
			return err
		}
		p.SetCorrespondence(m)
		white, err := rimage.NewGrayFromFile(store.FramePath(p.Pattern().WhiteIndex()))
		if err != nil {
			return utils.NewIOFailureError(err, "reading the white frame of projector %d", p.ID())
		}
		p.SetWhite(white)
	}
	if err := projector.ComputeGroupContributions(c.Context, group, cfg.Blend); err != nil {
		return err
	}
	for _, p := range group {
		if err := storeFor(c, cfg, p).SaveContribution(p.Contribution()); err != nil {
			return err
		}
	}
	printf(c.App.Writer, "wrote contribution maps for %d projectors", len(group))
	return nil
}

// WarpAction warps one image into one projector's pixels.
func WarpAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	group, err := projector.NewFromConfig(cfg, loggerFrom(c))
	if err != nil {
		return err
	}
	id := c.Int(flagProjector)
	p, ok := lo.Find(group, func(p *projector.Projector) bool { return p.ID() == id })
	if !ok {
		return errors.Errorf("no projector with id %d in %q", id, cfg.ConfigFilePath)
	}
	if err := loadCalibration(c, cfg, p); err != nil {
		return err
	}
	src, err := rimage.NewImageFromFile(c.String(flagInput))
	if err != nil {
		return err
	}
	out, err := p.WarpContext(c.Context, src)
	if err != nil {
		return err
	}
	if err := rimage.WriteImageToFile(c.String(flagOutput), out); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s", c.String(flagOutput))
	return nil
}

// TestCardAction draws a test card.
func TestCardAction(c *cli.Context) error {
	w, h := c.Int(flagWidth), c.Int(flagHeight)
	if w <= 0 || h <= 0 {
		return errors.Errorf("test card size must be positive, got %dx%d", w, h)
	}
	if err := rimage.WriteImageToFile(c.String(flagOutput), rimage.TestCard(w, h, c.Int(flagCells))); err != nil {
		return err
	}
	printf(c.App.Writer, "wrote %s", c.String(flagOutput))
	return nil
}

// loadCalibration restores a projector from its capture store: the correspondence, the saved
// homography if there is one (otherwise it is fit again), and the contribution map if there is one.
func loadCalibration(c *cli.Context, cfg *config.Config, p *projector.Projector) error {
	store := storeFor(c, cfg, p)
	m, err := store.LoadCorrespondence(cfg.Camera.Width, cfg.Camera.Height)
	if err != nil {
		return err
	}
	p.SetCorrespondence(m)

	if est, err := store.LoadEstimate(); err == nil {
		p.SetEstimate(est)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	contribution, err := store.LoadContribution()
	switch {
	case err == nil:
		p.SetContribution(contribution)
	case errors.Is(err, os.ErrNotExist):
		loggerFrom(c).Debugw("no contribution map", "projector", p.ID())
	default:
		return err
	}
	return nil
}

func closeIfCloser(v interface{}) error {
	if closer, ok := v.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
