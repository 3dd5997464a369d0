package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix (represented as a 2D array) mapping the plane seen by the camera onto the
// projector's pixel plane. Indices are [row][column].
type Homography [3][3]float64

// NewHomography creates a Homography from a slice of 9 values in row-major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	var h Homography
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("homography entry %d is not finite: %v", i, v)
		}
		h[i/3][i%3] = v
	}
	return &h, nil
}

// homographyFromDense copies a 3x3 matrix and scales it so that the bottom right entry is 1 when possible.
func homographyFromDense(m mat.Matrix) (*Homography, error) {
	vals := make([]float64, 0, 9)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			vals = append(vals, m.At(r, c))
		}
	}
	h, err := NewHomography(vals)
	if err != nil {
		return nil, err
	}
	return h.normalized()
}

func (h *Homography) normalized() (*Homography, error) {
	scale := h[2][2]
	if math.Abs(scale) < 1e-12 {
		scale = mat.Norm(h.Matrix(), 2)
	}
	if scale == 0 || math.IsNaN(scale) {
		return nil, errors.New("homography is degenerate")
	}
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r][c] = h[r][c] / scale
		}
	}
	return &out, nil
}

// At returns the value at the given row and column.
func (h *Homography) At(row, col int) float64 {
	return h[row][col]
}

// Apply maps a camera point to projector coordinates.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)
	y := h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)
	z := h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2)
	return r2.Point{X: x / z, Y: y / z}
}

// Matrix returns a copy of the homography as a gonum matrix.
func (h *Homography) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// Inverse returns the projector to camera homography.
func (h *Homography) Inverse() (*Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.Matrix()); err != nil {
		return nil, errors.Wrap(err, "homography is not invertible")
	}
	return homographyFromDense(&inv)
}

// String prints the matrix one row per line.
func (h *Homography) String() string {
	return fmt.Sprintf("%v", mat.Formatted(h.Matrix(), mat.Squeeze()))
}
