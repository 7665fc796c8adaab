package ml

import "math/rand/v2"

// TrainTestSplit shuffles row indices with a seeded generator and returns
// the training and holdout partitions. The holdout never takes every row.
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nTest := int(float64(n)*testFraction + 0.5)
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return idx[nTest:], idx[:nTest]
}
