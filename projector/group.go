package projector

import (
	"context"
	"image"

	"github.com/samber/lo"

	"go.viam.com/projmap/blend"
	"go.viam.com/projmap/rimage/transform"
	"go.viam.com/projmap/structuredlight"
	"go.viam.com/projmap/utils"
)

// CalibrationConfig controls CalibrateGroup.
type CalibrationConfig struct {
	Decoder structuredlight.DecoderConfig
	// Denoise is skipped when nil.
	Denoise *structuredlight.DenoiseConfig
}

// CalibrationResult is what calibrating one projector produced.
type CalibrationResult struct {
	ID       int
	Stats    structuredlight.DecodeStats
	Estimate *transform.HomographyEstimate
}

// CalibrateGroup decodes and fits every projector's frames concurrently. frames is keyed by projector id.
// Results are in group order. The first failure cancels the others.
func CalibrateGroup(
	ctx context.Context,
	group []*Projector,
	frames map[int][]*image.Gray,
	cfg CalibrationConfig,
) ([]CalibrationResult, error) {
	results := make([]CalibrationResult, len(group))
	work := make([]utils.SimpleFunc, 0, len(group))
	for i, p := range group {
		work = append(work, func(ctx context.Context) error {
			pFrames, ok := frames[p.ID()]
			if !ok {
				return utils.NewNotInitializedError("no frames captured for projector %d", p.ID())
			}
			stats, err := p.Calibrate(ctx, pFrames, cfg.Decoder, cfg.Denoise)
			if err != nil {
				return err
			}
			est, err := p.Estimate(ctx)
			if err != nil {
				return err
			}
			results[i] = CalibrationResult{ID: p.ID(), Stats: stats, Estimate: est}
			return nil
		})
	}
	if _, err := utils.RunInParallel(ctx, work); err != nil {
		return nil, err
	}
	return results, nil
}

// ComputeGroupContributions computes the contribution map of every projector in a group sharing one
// camera view and stores it on each projector. Every projector must be calibrated.
func ComputeGroupContributions(ctx context.Context, group []*Projector, cfg blend.Config) error {
	members := lo.Map(group, func(p *Projector, _ int) blend.Member {
		return blend.Member{Correspondence: p.Correspondence(), White: p.White()}
	})
	maps, err := blend.ComputeContributions(ctx, members, cfg)
	if err != nil {
		return err
	}
	lo.ForEach(group, func(p *Projector, i int) {
		p.SetContribution(maps[i])
	})
	return nil
}
