package transform

import (
	"context"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/projmap/utils"
)

// Defaults for RANSACConfig.
const (
	DefaultRANSACThreshold  = 3.0
	DefaultMaxIterations    = 2000
	DefaultConfidence       = 0.995
	DefaultMaxScoringPoints = 20000

	minSamplePoints = 4
)

// RANSACConfig controls the robust homography fit. Zero values take the defaults above.
type RANSACConfig struct {
	// Threshold is the reprojection distance in projector pixels under which a pair is an inlier.
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	MaxIterations int     `json:"max_iterations" yaml:"max_iterations"`
	// Confidence drives the adaptive iteration count; sampling stops once an all-inlier sample
	// has been drawn with this probability.
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// MaxScoringPoints caps how many pairs hypotheses are scored against.
	MaxScoringPoints int `json:"max_scoring_points" yaml:"max_scoring_points"`
	// Seed fixes the sampler; 0 seeds from the clock.
	Seed int64 `json:"seed" yaml:"seed"`
}

// Validate ensures all parts of the config are valid.
func (cfg RANSACConfig) Validate(path string) error {
	if cfg.Threshold < 0 {
		return errors.Errorf("%s: threshold must not be negative", path)
	}
	if cfg.MaxIterations < 0 {
		return errors.Errorf("%s: max_iterations must not be negative", path)
	}
	if cfg.Confidence < 0 || cfg.Confidence >= 1 {
		return errors.Errorf("%s: confidence must be in [0, 1)", path)
	}
	if cfg.MaxScoringPoints < 0 {
		return errors.Errorf("%s: max_scoring_points must not be negative", path)
	}
	return nil
}

func (cfg RANSACConfig) withDefaults() RANSACConfig {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultRANSACThreshold
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Confidence == 0 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.MaxScoringPoints == 0 {
		cfg.MaxScoringPoints = DefaultMaxScoringPoints
	}
	return cfg
}

// ReprojectionStats summarizes inlier reprojection distances in projector pixels.
type ReprojectionStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// HomographyEstimate is the result of EstimateHomography.
type HomographyEstimate struct {
	H          *Homography       `json:"homography"`
	Inliers    int               `json:"inliers"`
	Total      int               `json:"total"`
	Iterations int               `json:"iterations"`
	Residuals  ReprojectionStats `json:"residuals"`
	// InlierResiduals holds the distance of every inlier, in input order.
	InlierResiduals []float64 `json:"-"`
}

// EstimateHomography robustly fits the homography mapping cam[i] to proj[i]. Random minimal samples are
// fit with the normalized DLT and scored by inlier count; the best hypothesis is refit on all of its
// inliers. Fewer than four pairs, or no consensus of at least four inliers, is ErrInsufficientData.
func EstimateHomography(ctx context.Context, cam, proj []r2.Point, cfg RANSACConfig) (*HomographyEstimate, error) {
	if len(cam) != len(proj) {
		return nil, utils.NewInsufficientDataError(
			"homography needs paired points, got %d camera and %d projector points", len(cam), len(proj))
	}
	if len(cam) < minSamplePoints {
		return nil, utils.NewInsufficientDataError("homography needs at least %d pairs, got %d", minSamplePoints, len(cam))
	}
	if err := cfg.Validate("ransac"); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	//nolint:gosec
	rng := rand.New(rand.NewSource(seed))

	scoring := scoringIndices(len(cam), cfg.MaxScoringPoints)
	thresholdSq := cfg.Threshold * cfg.Threshold

	var best *Homography
	bestCount := 0
	maxIters := cfg.MaxIterations
	iters := 0
	sampleCam := make([]r2.Point, minSamplePoints)
	sampleProj := make([]r2.Point, minSamplePoints)
	for ; iters < maxIters; iters++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pickSample(rng, scoring, cam, proj, sampleCam, sampleProj)
		if degenerateSample(sampleCam) || degenerateSample(sampleProj) {
			continue
		}
		h, err := fitDLT(sampleCam, sampleProj)
		if err != nil {
			continue
		}
		count := 0
		for _, idx := range scoring {
			if distSq(h, cam[idx], proj[idx]) < thresholdSq {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = h, count
			maxIters = min(maxIters, adaptiveIterations(float64(count)/float64(len(scoring)), cfg.Confidence))
		}
	}
	if best == nil || bestCount < minSamplePoints {
		return nil, utils.NewInsufficientDataError("no homography consensus among %d pairs", len(cam))
	}

	final := best
	inCam, inProj := inliersOf(best, cam, proj, thresholdSq)
	if len(inCam) >= minSamplePoints {
		if refined, err := fitDLT(inCam, inProj); err == nil {
			refCam, _ := inliersOf(refined, cam, proj, thresholdSq)
			if len(refCam) >= len(inCam) {
				final = refined
			}
		}
	}

	est := &HomographyEstimate{H: final, Total: len(cam), Iterations: iters}
	for i := range cam {
		if d := distSq(final, cam[i], proj[i]); d < thresholdSq {
			est.InlierResiduals = append(est.InlierResiduals, math.Sqrt(d))
		}
	}
	est.Inliers = len(est.InlierResiduals)
	if est.Inliers < minSamplePoints {
		return nil, utils.NewInsufficientDataError("homography refit kept only %d inliers", est.Inliers)
	}
	est.Residuals = summarizeResiduals(est.InlierResiduals)
	return est, nil
}

// FitHomography fits the homography to all pairs with the normalized DLT and no outlier rejection.
func FitHomography(cam, proj []r2.Point) (*Homography, error) {
	if len(cam) != len(proj) || len(cam) < minSamplePoints {
		return nil, utils.NewInsufficientDataError("homography needs at least %d pairs, got %d", minSamplePoints, min(len(cam), len(proj)))
	}
	return fitDLT(cam, proj)
}

// ComputeReprojectionStats measures how far h maps each cam point from its proj point.
func ComputeReprojectionStats(h *Homography, cam, proj []r2.Point) (ReprojectionStats, error) {
	if len(cam) != len(proj) || len(cam) == 0 {
		return ReprojectionStats{}, utils.NewInsufficientDataError("no point pairs to measure")
	}
	dists := make([]float64, len(cam))
	for i := range cam {
		dists[i] = math.Sqrt(distSq(h, cam[i], proj[i]))
	}
	return summarizeResiduals(dists), nil
}

func summarizeResiduals(dists []float64) ReprojectionStats {
	data := stats.Float64Data(dists)
	var rs ReprojectionStats
	// errors only arise for empty input, which callers rule out
	rs.Mean, _ = stats.Mean(data)
	rs.Median, _ = stats.Median(data)
	rs.P95, _ = stats.Percentile(data, 95)
	rs.Max, _ = stats.Max(data)
	return rs
}

// scoringIndices picks an evenly strided subset of at most limit indices.
func scoringIndices(n, limit int) []int {
	if n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, limit)
	for i := range idx {
		idx[i] = int(int64(i) * int64(n) / int64(limit))
	}
	return idx
}

func pickSample(rng *rand.Rand, pool []int, cam, proj, sampleCam, sampleProj []r2.Point) {
	var chosen [minSamplePoints]int
	for i := 0; i < minSamplePoints; {
		c := pool[rng.Intn(len(pool))]
		if slices.Contains(chosen[:i], c) {
			continue
		}
		chosen[i] = c
		sampleCam[i], sampleProj[i] = cam[c], proj[c]
		i++
	}
}

// degenerateSample reports whether any three of the points are (nearly) collinear.
func degenerateSample(pts []r2.Point) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			for k := j + 1; k < len(pts); k++ {
				if math.Abs(pts[j].Sub(pts[i]).Cross(pts[k].Sub(pts[i]))) < 1e-6 {
					return true
				}
			}
		}
	}
	return false
}

// adaptiveIterations is the number of samples needed to draw one all-inlier sample with the given confidence.
func adaptiveIterations(inlierRatio, confidence float64) int {
	pGood := math.Pow(inlierRatio, minSamplePoints)
	if pGood >= 1 {
		return 1
	}
	if pGood <= 0 {
		return math.MaxInt
	}
	n := math.Log(1-confidence) / math.Log(1-pGood)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(n))
}

func inliersOf(h *Homography, cam, proj []r2.Point, thresholdSq float64) ([]r2.Point, []r2.Point) {
	var inCam, inProj []r2.Point
	for i := range cam {
		if distSq(h, cam[i], proj[i]) < thresholdSq {
			inCam = append(inCam, cam[i])
			inProj = append(inProj, proj[i])
		}
	}
	return inCam, inProj
}

func distSq(h *Homography, c, p r2.Point) float64 {
	d := h.Apply(c).Sub(p)
	v := d.Dot(d)
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

// fitDLT solves for the homography with the direct linear transform on Hartley normalized points. The
// normal equations are accumulated so that memory stays constant in the number of pairs.
func fitDLT(cam, proj []r2.Point) (*Homography, error) {
	normCam, tCam, err := normalizePoints(cam)
	if err != nil {
		return nil, err
	}
	normProj, tProj, err := normalizePoints(proj)
	if err != nil {
		return nil, err
	}

	ata := make([]float64, 81)
	var rows [2][9]float64
	for i := range normCam {
		x, y := normCam[i].X, normCam[i].Y
		u, v := normProj[i].X, normProj[i].Y
		rows[0] = [9]float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u}
		rows[1] = [9]float64{0, 0, 0, -x, -y, -1, v * x, v * y, v}
		for _, row := range rows {
			for a := 0; a < 9; a++ {
				if row[a] == 0 {
					continue
				}
				for b := a; b < 9; b++ {
					ata[a*9+b] += row[a] * row[b]
				}
			}
		}
	}
	for a := 0; a < 9; a++ {
		for b := 0; b < a; b++ {
			ata[a*9+b] = ata[b*9+a]
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(9, ata), true); !ok {
		return nil, errors.New("eigen decomposition of the DLT system failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// eigenvalues are ascending so the null space estimate is the first column
	hn := mat.NewDense(3, 3, nil)
	for i := 0; i < 9; i++ {
		hn.Set(i/3, i%3, vecs.At(i, 0))
	}

	var tProjInv mat.Dense
	if err := tProjInv.Inverse(tProj); err != nil {
		return nil, errors.Wrap(err, "normalization transform is singular")
	}
	var h mat.Dense
	h.Mul(&tProjInv, hn)
	h.Mul(&h, tCam)
	return homographyFromDense(&h)
}

// normalizePoints normalizes points as described in Multiple View Geometry, Alg 4.2: centroid at the
// origin and mean distance sqrt(2).
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense, error) {
	nPoints := len(pts)
	mu := r2.Point{X: 0, Y: 0}
	for _, pt := range pts {
		mu = mu.Add(pt)
	}
	mu = mu.Mul(1. / float64(nPoints))
	d := 0.0
	for _, pt := range pts {
		d += pt.Sub(mu).Norm() / float64(nPoints)
	}
	if d == 0 {
		return nil, nil, errors.New("cannot normalize coincident points")
	}
	scale := math.Sqrt(2) / d
	T := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	pointsTransformed := make([]r2.Point, nPoints)
	for i := range pointsTransformed {
		pointsTransformed[i] = pts[i].Sub(mu).Mul(scale)
	}
	return pointsTransformed, T, nil
}
