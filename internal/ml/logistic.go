package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// LogisticRegression is a binary classifier on standardized features. Fit
// minimizes the weighted log-loss plus 0.5*L2*|w|^2 with L-BFGS. With
// Balanced set, each class is weighted by n / (2 * n_class).
type LogisticRegression struct {
	MaxIter  int
	L2       float64
	Balanced bool

	weights  []float64
	bias     float64
	mean     []float64
	scale    []float64
	constant float64
	single   bool
	fitted   bool
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		MaxIter:  100,
		L2:       1.0,
		Balanced: true,
	}
}

// Fit trains on rows X with labels y in {0, 1}. A target with only one class
// does not fail: the model predicts that class with certainty and
// SingleClass reports true.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("logistic regression: %d rows and %d labels", len(X), len(y))
	}
	n, d := len(X), len(X[0])

	var positives int
	for _, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("logistic regression: label %d is not binary", label)
		}
		positives += label
	}
	m.fitted = true
	if positives == 0 || positives == n {
		m.single = true
		m.constant = 0
		if positives == n {
			m.constant = 1
		}
		return nil
	}
	m.single = false

	m.mean, m.scale = standardize(X)
	Z := make([][]float64, n)
	target := make([]float64, n)
	sampleWeight := make([]float64, n)
	for i, row := range X {
		Z[i] = m.transform(row)
		target[i] = float64(y[i])
		sampleWeight[i] = 1
		if m.Balanced {
			count := positives
			if y[i] == 0 {
				count = n - positives
			}
			sampleWeight[i] = float64(n) / (2 * float64(count))
		}
	}

	// params holds the d weights followed by the bias.
	loss := func(params []float64) float64 {
		w, b := params[:d], params[d]
		var f float64
		for i, z := range Z {
			s := floats.Dot(w, z) + b
			f += sampleWeight[i] * (softplus(s) - target[i]*s)
		}
		return f + 0.5*m.L2*floats.Dot(w, w)
	}
	grad := func(g, params []float64) {
		w, b := params[:d], params[d]
		for j := range g {
			g[j] = 0
		}
		for i, z := range Z {
			r := sampleWeight[i] * (sigmoid(floats.Dot(w, z)+b) - target[i])
			floats.AddScaled(g[:d], r, z)
			g[d] += r
		}
		floats.AddScaled(g[:d], m.L2, w)
	}

	problem := optimize.Problem{Func: loss, Grad: grad}
	settings := &optimize.Settings{
		GradientThreshold: 1e-6,
		MajorIterations:   m.MaxIter,
	}
	result, err := optimize.Minimize(problem, make([]float64, d+1), settings, &optimize.LBFGS{})
	if result == nil || len(result.X) != d+1 {
		return fmt.Errorf("logistic regression: minimize: %w", err)
	}
	// A line search that stalls near the optimum still leaves a usable point.
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("logistic regression: diverged: %v", err)
		}
	}
	m.weights = append([]float64(nil), result.X[:d]...)
	m.bias = result.X[d]
	return nil
}

// PredictProba returns P(y = 1 | x).
func (m *LogisticRegression) PredictProba(x []float64) (float64, error) {
	if !m.fitted {
		return 0, fmt.Errorf("logistic regression: not fitted")
	}
	if m.single {
		return m.constant, nil
	}
	if len(x) != len(m.weights) {
		return 0, fmt.Errorf("logistic regression: expected %d features, got %d", len(m.weights), len(x))
	}
	return sigmoid(floats.Dot(m.weights, m.transform(x)) + m.bias), nil
}

// Predict thresholds PredictProba at 0.5.
func (m *LogisticRegression) Predict(x []float64) (int, error) {
	p, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

func (m *LogisticRegression) SingleClass() bool { return m.single }

func (m *LogisticRegression) transform(x []float64) []float64 {
	z := make([]float64, len(x))
	floats.SubTo(z, x, m.mean)
	floats.Div(z, m.scale)
	return z
}

// standardize returns per-column population means and standard deviations.
// Constant columns get a scale of 1.
func standardize(X [][]float64) (mean, scale []float64) {
	d := len(X[0])
	mean = make([]float64, d)
	scale = make([]float64, d)
	col := make([]float64, len(X))
	for j := range d {
		for i, row := range X {
			col[i] = row[j]
		}
		mean[j], scale[j] = stat.PopMeanStdDev(col, nil)
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}
	return mean, scale
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1 + e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
