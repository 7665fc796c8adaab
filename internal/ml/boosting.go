package ml

import (
	"context"
	"fmt"
)

// GradientBoostingRegressor fits an additive model of shallow regression
// trees to squared-error residuals.
type GradientBoostingRegressor struct {
	Estimators   int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int

	init  float64
	trees []*regressionTree
	width int
}

func NewGradientBoostingRegressor(estimators, maxDepth int, learningRate float64) *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		Estimators:   estimators,
		MaxDepth:     maxDepth,
		LearningRate: learningRate,
		MinLeaf:      1,
	}
}

// Fit trains the ensemble. ctx is checked between estimators.
func (m *GradientBoostingRegressor) Fit(ctx context.Context, X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("gradient boosting: %d rows and %d targets", len(X), len(y))
	}
	m.width = len(X[0])
	m.init = Mean(y)
	m.trees = m.trees[:0]

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.init
	}
	residual := make([]float64, len(y))
	for e := 0; e < m.Estimators; e++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(X, residual, m.MaxDepth, m.MinLeaf)
		m.trees = append(m.trees, tree)
		for i, row := range X {
			pred[i] += m.LearningRate * tree.predict(row)
		}
	}
	return nil
}

func (m *GradientBoostingRegressor) Predict(x []float64) (float64, error) {
	if m.width == 0 {
		return 0, fmt.Errorf("gradient boosting: not fitted")
	}
	if len(x) != m.width {
		return 0, fmt.Errorf("gradient boosting: expected %d features, got %d", m.width, len(x))
	}
	out := m.init
	for _, t := range m.trees {
		out += m.LearningRate * t.predict(x)
	}
	return out, nil
}
