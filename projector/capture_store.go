package projector

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"go.viam.com/projmap/blend"
	"go.viam.com/projmap/logging"
	"go.viam.com/projmap/rimage"
	"go.viam.com/projmap/rimage/transform"
	"go.viam.com/projmap/structuredlight"
	"go.viam.com/projmap/utils"
)

// Artifact file names inside a capture directory.
const (
	CorrespondenceFile = "c2p.csv"
	ResultFile         = "result.png"
	HomographyFile     = "homography.json"
	ContributionFile   = "contribution.png"
)

// CaptureStore is the directory holding one projector's captured frames and derived artifacts.
type CaptureStore struct {
	dir    string
	format string
	logger logging.Logger
}

// NewCaptureStore returns the store for projector id under root, writing frames in the given image
// format (a file extension such as "png").
func NewCaptureStore(root string, id int, format string, logger logging.Logger) *CaptureStore {
	if format == "" {
		format = "png"
	}
	return &CaptureStore{
		dir:    filepath.Join(root, fmt.Sprintf("captured%d", id)),
		format: format,
		logger: logger,
	}
}

// Dir is the store's directory.
func (s *CaptureStore) Dir() string { return s.dir }

// FramePath is where frame i is kept.
func (s *CaptureStore) FramePath(i int) string {
	return filepath.Join(s.dir, fmt.Sprintf("cam_%02d.%s", i, s.format))
}

// SaveFrame writes frame i.
func (s *CaptureStore) SaveFrame(i int, img image.Image) error {
	fn := s.FramePath(i)
	if err := rimage.WriteImageToFile(fn, img); err != nil {
		return utils.NewIOFailureError(err, "writing frame %q", fn)
	}
	return nil
}

// LoadFrames reads frames in index order, stopping at the first missing index.
func (s *CaptureStore) LoadFrames() ([]*image.Gray, error) {
	var frames []*image.Gray
	for i := 0; ; i++ {
		fn := s.FramePath(i)
		if _, err := os.Stat(fn); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				break
			}
			return frames, utils.NewIOFailureError(err, "checking frame %q", fn)
		}
		img, err := rimage.NewGrayFromFile(fn)
		if err != nil {
			return frames, utils.NewIOFailureError(err, "reading frame %q", fn)
		}
		frames = append(frames, img)
	}
	s.logger.Infow("loaded captured frames", "dir", s.dir, "count", len(frames))
	return frames, nil
}

// SaveCorrespondence writes the correspondence CSV.
func (s *CaptureStore) SaveCorrespondence(m *structuredlight.CorrespondenceMap) error {
	return structuredlight.SaveCSV(filepath.Join(s.dir, CorrespondenceFile), m)
}

// LoadCorrespondence reads the correspondence CSV for a camera of the given size.
func (s *CaptureStore) LoadCorrespondence(width, height int) (*structuredlight.CorrespondenceMap, error) {
	return structuredlight.LoadCSV(filepath.Join(s.dir, CorrespondenceFile), width, height, s.logger)
}

// SaveResult writes the correspondence visualization for a projector of the given size.
func (s *CaptureStore) SaveResult(m *structuredlight.CorrespondenceMap, projWidth, projHeight int) error {
	fn := filepath.Join(s.dir, ResultFile)
	if err := rimage.WriteImageToFile(fn, structuredlight.Visualize(m, projWidth, projHeight)); err != nil {
		return utils.NewIOFailureError(err, "writing %q", fn)
	}
	return nil
}

// SaveEstimate writes the homography estimate as JSON.
func (s *CaptureStore) SaveEstimate(est *transform.HomographyEstimate) error {
	fn := filepath.Join(s.dir, HomographyFile)
	data, err := json.MarshalIndent(est, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return utils.NewIOFailureError(err, "creating %q", s.dir)
	}
	//nolint:gosec
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return utils.NewIOFailureError(err, "writing %q", fn)
	}
	return nil
}

// LoadEstimate reads a homography estimate written by SaveEstimate.
func (s *CaptureStore) LoadEstimate() (*transform.HomographyEstimate, error) {
	fn := filepath.Join(s.dir, HomographyFile)
	//nolint:gosec
	data, err := os.ReadFile(fn)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "reading %q", fn)
	}
	var est transform.HomographyEstimate
	if err := json.Unmarshal(data, &est); err != nil {
		return nil, utils.NewIOFailureError(err, "parsing %q", fn)
	}
	if est.H == nil {
		return nil, utils.NewIOFailureError(nil, "%q has no homography", fn)
	}
	return &est, nil
}

// SaveContribution writes the contribution map as a 16-bit gray image.
func (s *CaptureStore) SaveContribution(c *blend.ContributionMap) error {
	fn := filepath.Join(s.dir, ContributionFile)
	if err := rimage.WriteImageToFile(fn, c.ToGray16()); err != nil {
		return utils.NewIOFailureError(err, "writing %q", fn)
	}
	return nil
}

// LoadContribution reads a contribution map written by SaveContribution.
func (s *CaptureStore) LoadContribution() (*blend.ContributionMap, error) {
	fn := filepath.Join(s.dir, ContributionFile)
	img, err := rimage.NewImageFromFile(fn)
	if err != nil {
		return nil, utils.NewIOFailureError(err, "reading %q", fn)
	}
	return blend.FromImage(img), nil
}
