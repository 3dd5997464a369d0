//go:build cv

package transform

import (
	"context"
	"math"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"go.viam.com/projmap/utils"
)

// EstimateHomographyCV fits the same model as EstimateHomography with OpenCV's RANSAC. It is used to
// cross-check the pure Go estimator on real captures.
func EstimateHomographyCV(ctx context.Context, cam, proj []r2.Point, cfg RANSACConfig) (*HomographyEstimate, error) {
	if len(cam) != len(proj) || len(cam) < minSamplePoints {
		return nil, utils.NewInsufficientDataError("homography needs at least %d pairs, got %d", minSamplePoints, min(len(cam), len(proj)))
	}
	if err := cfg.Validate("ransac"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	srcVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(cam))
	defer srcVec.Close()
	dstVec := gocv.NewPoint2fVectorFromPoints(toPoint2f(proj))
	defer dstVec.Close()
	src := gocv.NewMatFromPoint2fVector(srcVec, true)
	defer src.Close()
	dst := gocv.NewMatFromPoint2fVector(dstVec, true)
	defer dst.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	hMat := gocv.FindHomography(src, &dst, gocv.HomograpyMethodRANSAC, cfg.Threshold, &mask, cfg.MaxIterations, cfg.Confidence)
	defer hMat.Close()
	if hMat.Empty() {
		return nil, utils.NewInsufficientDataError("no homography consensus among %d pairs", len(cam))
	}
	vals := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			vals = append(vals, hMat.GetDoubleAt(r, c))
		}
	}
	h, err := NewHomography(vals)
	if err != nil {
		return nil, err
	}
	h, err = h.normalized()
	if err != nil {
		return nil, err
	}

	est := &HomographyEstimate{H: h, Total: len(cam)}
	thresholdSq := cfg.Threshold * cfg.Threshold
	for i := range cam {
		if d := distSq(h, cam[i], proj[i]); d < thresholdSq {
			est.InlierResiduals = append(est.InlierResiduals, math.Sqrt(d))
		}
	}
	est.Inliers = len(est.InlierResiduals)
	if est.Inliers < minSamplePoints {
		return nil, utils.NewInsufficientDataError("opencv homography kept only %d inliers", est.Inliers)
	}
	est.Residuals = summarizeResiduals(est.InlierResiduals)
	return est, nil
}

func toPoint2f(pts []r2.Point) []gocv.Point2f {
	out := make([]gocv.Point2f, len(pts))
	for i, p := range pts {
		out[i] = gocv.Point2f{X: float32(p.X), Y: float32(p.Y)}
	}
	return out
}
