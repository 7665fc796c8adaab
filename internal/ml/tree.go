package ml

import "sort"

// regressionTree is a depth-limited CART tree minimizing squared error.
// Nodes are stored flat; leaves have feature == -1.
type regressionTree struct {
	nodes []treeNode
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

func fitTree(X [][]float64, y []float64, maxDepth, minLeaf int) *regressionTree {
	t := &regressionTree{}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.grow(X, y, idx, 0, maxDepth, minLeaf)
	return t
}

func (t *regressionTree) grow(X [][]float64, y []float64, idx []int, depth, maxDepth, minLeaf int) int {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	node := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{feature: -1, value: sum / float64(len(idx))})

	if depth >= maxDepth || len(idx) < 2*minLeaf {
		return node
	}
	feature, threshold, ok := bestSplit(X, y, idx, minLeaf)
	if !ok {
		return node
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	left := t.grow(X, y, leftIdx, depth+1, maxDepth, minLeaf)
	right := t.grow(X, y, rightIdx, depth+1, maxDepth, minLeaf)
	t.nodes[node].feature = feature
	t.nodes[node].threshold = threshold
	t.nodes[node].left = left
	t.nodes[node].right = right
	return node
}

// bestSplit scans every feature for the threshold with the largest
// reduction in squared error, using running sums over sorted values.
func bestSplit(X [][]float64, y []float64, idx []int, minLeaf int) (feature int, threshold float64, ok bool) {
	n := len(idx)
	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}
	parentSSE := totalSq - total*total/float64(n)
	bestGain := 1e-12

	sorted := make([]int, n)
	for f := range X[idx[0]] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return X[sorted[a]][f] < X[sorted[b]][f]
		})

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			v := y[sorted[k]]
			leftSum += v
			leftSq += v * v
			cur, next := X[sorted[k]][f], X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			rightSum := total - leftSum
			rightSq := totalSq - leftSq
			sse := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
			if gain := parentSSE - sse; gain > bestGain {
				bestGain = gain
				feature = f
				threshold = cur + (next-cur)/2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func (t *regressionTree) predict(x []float64) float64 {
	n := 0
	for t.nodes[n].feature >= 0 {
		if x[t.nodes[n].feature] <= t.nodes[n].threshold {
			n = t.nodes[n].left
		} else {
			n = t.nodes[n].right
		}
	}
	return t.nodes[n].value
}
