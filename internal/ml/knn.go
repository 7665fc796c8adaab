package ml

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// KNNClassifier votes among the K nearest training rows by Euclidean
// distance on unscaled features. Ties go to the smallest label.
type KNNClassifier struct {
	K int

	X [][]float64
	y []int
}

func NewKNNClassifier(k int) *KNNClassifier {
	return &KNNClassifier{K: k}
}

func (m *KNNClassifier) Fit(X [][]float64, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("knn: %d rows and %d labels", len(X), len(y))
	}
	if m.K < 1 {
		return fmt.Errorf("knn: k must be positive, got %d", m.K)
	}
	m.X = X
	m.y = y
	return nil
}

func (m *KNNClassifier) Predict(x []float64) (int, error) {
	if len(m.X) == 0 {
		return 0, fmt.Errorf("knn: not fitted")
	}
	idx := Nearest(len(m.X), m.K, func(i int) float64 {
		return floats.Distance(m.X[i], x, 2)
	})

	votes := make(map[int]int, len(idx))
	for _, i := range idx {
		votes[m.y[i]]++
	}
	best, bestVotes := 0, -1
	for label, v := range votes {
		if v > bestVotes || (v == bestVotes && label < best) {
			best, bestVotes = label, v
		}
	}
	return best, nil
}

// Nearest returns the indices of the k smallest distances among n candidates,
// ordered by distance. Equal distances keep index order.
func Nearest(n, k int, distance func(i int) float64) []int {
	idx := make([]int, n)
	dist := make([]float64, n)
	for i := range idx {
		idx[i] = i
		dist[i] = distance(i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dist[idx[a]] < dist[idx[b]]
	})
	if k < n {
		idx = idx[:k]
	}
	return idx
}
