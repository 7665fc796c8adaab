package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// KMeans clusters points with Lloyd's algorithm from k-means++ seeds. The run
// with the lowest inertia out of Inits restarts wins.
type KMeans struct {
	K       int
	Inits   int
	MaxIter int
	Seed    uint64
}

type KMeansResult struct {
	Labels    []int
	Centroids [][]float64
	Inertia   float64
}

func NewKMeans(k int, seed uint64) *KMeans {
	return &KMeans{K: k, Inits: 10, MaxIter: 300, Seed: seed}
}

func (m *KMeans) Fit(points [][]float64) (*KMeansResult, error) {
	if m.K < 1 || m.K > len(points) {
		return nil, fmt.Errorf("kmeans: k=%d with %d points", m.K, len(points))
	}
	rng := rand.New(rand.NewPCG(m.Seed, m.Seed^0x9e3779b97f4a7c15))

	var best *KMeansResult
	for run := 0; run < max(1, m.Inits); run++ {
		res := m.lloyd(points, m.seedCentroids(points, rng))
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

func (m *KMeans) seedCentroids(points [][]float64, rng *rand.Rand) [][]float64 {
	centroids := [][]float64{clonePoint(points[rng.IntN(len(points))])}
	dist := make([]float64, len(points))
	for len(centroids) < m.K {
		var total float64
		for i, p := range points {
			dist[i] = math.Inf(1)
			for _, c := range centroids {
				dist[i] = math.Min(dist[i], squaredDistance(p, c))
			}
			total += dist[i]
		}
		next := rng.IntN(len(points))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, clonePoint(points[next]))
	}
	return centroids
}

func (m *KMeans) lloyd(points, centroids [][]float64) *KMeansResult {
	labels := make([]int, len(points))
	dim := len(points[0])
	for iter := 0; iter < m.MaxIter; iter++ {
		changed := false
		for i, p := range points {
			if l := closest(p, centroids); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			counts[labels[i]]++
			floats.Add(sums[labels[i]], p)
		}
		for c := range centroids {
			// An empty cluster keeps its previous centroid.
			if counts[c] == 0 {
				continue
			}
			floats.ScaleTo(centroids[c], 1/float64(counts[c]), sums[c])
		}
	}

	var inertia float64
	for i, p := range points {
		inertia += squaredDistance(p, centroids[labels[i]])
	}
	return &KMeansResult{Labels: labels, Centroids: centroids, Inertia: inertia}
}

func closest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}
