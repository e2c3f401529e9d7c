package forest

import (
	"math/rand"
	"sort"
)

// node is either a split (left/right set) or a leaf carrying class probabilities
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	proba     []float64
}

func (n *node) isLeaf() bool {
	return n.left == nil
}

// treeBuilder grows one CART tree on a bootstrap sample using Gini impurity
type treeBuilder struct {
	X               [][]float64
	y               []int // class indices
	nClasses        int
	maxFeatures     int
	maxDepth        int
	minSamplesSplit int
	rng             *rand.Rand
}

func (b *treeBuilder) build(samples []int, depth int) *node {
	counts := b.classCounts(samples)
	impurity := gini(counts, len(samples))

	if impurity == 0 ||
		len(samples) < b.minSamplesSplit ||
		(b.maxDepth > 0 && depth >= b.maxDepth) {
		return b.leaf(counts, len(samples))
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		return b.leaf(counts, len(samples))
	}

	var left, right []int
	for _, s := range samples {
		if b.X[s][feature] <= threshold {
			left = append(left, s)
		} else {
			right = append(right, s)
		}
	}

	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

func (b *treeBuilder) leaf(counts []int, total int) *node {
	proba := make([]float64, b.nClasses)
	for i, c := range counts {
		proba[i] = float64(c) / float64(total)
	}
	return &node{proba: proba}
}

func (b *treeBuilder) classCounts(samples []int) []int {
	counts := make([]int, b.nClasses)
	for _, s := range samples {
		counts[b.y[s]]++
	}
	return counts
}

// bestSplit draws features in random order and evaluates at least
// maxFeatures of them. When none of those admits a split it keeps drawing
// until one does or the features run out.
func (b *treeBuilder) bestSplit(samples []int) (int, float64, bool) {
	nFeatures := len(b.X[0])
	order := b.rng.Perm(nFeatures)

	bestScore := 0.0
	bestFeature, bestThreshold := -1, 0.0

	sorted := make([]int, len(samples))
	for visited, f := range order {
		if visited >= b.maxFeatures && bestFeature >= 0 {
			break
		}

		copy(sorted, samples)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})

		left := make([]int, b.nClasses)
		right := b.classCounts(sorted)
		n := len(sorted)

		for i := 0; i < n-1; i++ {
			cls := b.y[sorted[i]]
			left[cls]++
			right[cls]--

			cur, next := b.X[sorted[i]][f], b.X[sorted[i+1]][f]
			if cur == next {
				continue
			}

			nl, nr := i+1, n-i-1
			score := (float64(nl)*gini(left, nl) + float64(nr)*gini(right, nr)) / float64(n)
			if bestFeature < 0 || score < bestScore {
				bestScore = score
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				// adjacent floats: the midpoint may round up onto next
				if bestThreshold == next {
					bestThreshold = cur
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (n *node) predict(x []float64) []float64 {
	cur := n
	for !cur.isLeaf() {
		if x[cur.feature] <= cur.threshold {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	return cur.proba
}

func gini(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		sum += p * p
	}
	return 1 - sum
}
