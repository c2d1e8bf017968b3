package ml

import (
	"errors"
	"math"
)

var errSingular = errors.New("singular matrix")

const pivotEpsilon = 1e-12

// solve returns x with a·x = b using Gaussian elimination with partial pivoting.
// a and b are passed by value and left untouched for the caller.
func solve(a [nParams][nParams]float64, b [nParams]float64) ([nParams]float64, error) {
	var x [nParams]float64

	for col := 0; col < nParams; col++ {
		pivot := col
		for row := col + 1; row < nParams; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < pivotEpsilon {
			return x, errSingular
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < nParams; row++ {
			f := a[row][col] / a[col][col]
			if f == 0 {
				continue
			}
			for k := col; k < nParams; k++ {
				a[row][k] -= f * a[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	for row := nParams - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < nParams; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}
