package rimage

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DilateSquare replaces every value by the maximum over a kernelSize x kernelSize square
// centered on it. Neighbors outside the matrix are ignored.
func DilateSquare(img *mat.Dense, kernelSize int) (*mat.Dense, error) {
	return squareFilter(img, kernelSize, math.Max)
}

// ErodeSquare replaces every value by the minimum over a kernelSize x kernelSize square
// centered on it. Neighbors outside the matrix are ignored.
func ErodeSquare(img *mat.Dense, kernelSize int) (*mat.Dense, error) {
	return squareFilter(img, kernelSize, math.Min)
}

// squareFilter is separable: a pass along rows then along columns gives the full square.
func squareFilter(img *mat.Dense, kernelSize int, pick func(a, b float64) float64) (*mat.Dense, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, errors.Errorf("kernel size must be odd and positive, got %d", kernelSize)
	}
	rows, cols := img.Dims()
	half := kernelSize / 2

	horizontal := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := img.At(r, c)
			for k := max(0, c-half); k <= min(cols-1, c+half); k++ {
				v = pick(v, img.At(r, k))
			}
			horizontal.Set(r, c, v)
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := horizontal.At(r, c)
			for k := max(0, r-half); k <= min(rows-1, r+half); k++ {
				v = pick(v, horizontal.At(k, c))
			}
			out.Set(r, c, v)
		}
	}
	return out, nil
}
