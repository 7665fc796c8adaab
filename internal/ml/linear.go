package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// LinearFit is an ordinary least squares line y = Intercept + Slope*x.
type LinearFit struct {
	Intercept float64
	Slope     float64
}

// FitLine fits y on x. ok is false when x has no spread, in which case the
// fit is the horizontal line through the mean of y.
func FitLine(x, y []float64) (fit LinearFit, ok bool) {
	if len(x) == 0 || len(x) != len(y) {
		return LinearFit{}, false
	}
	if stat.Variance(x, nil) == 0 || len(x) < 2 {
		return LinearFit{Intercept: stat.Mean(y, nil)}, false
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return LinearFit{Intercept: stat.Mean(y, nil)}, false
	}
	return LinearFit{Intercept: alpha, Slope: beta}, true
}

func (f LinearFit) Predict(x float64) float64 {
	return f.Intercept + f.Slope*x
}

// Mean is the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Round rounds v to the given number of decimals, half away from zero.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
