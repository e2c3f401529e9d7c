// Package forest provides a small, deterministic random forest classifier
// with the supporting pieces a training pipeline needs: a seeded train/test
// split and a per-class classification report.
//
// Every random decision is drawn from a math/rand source seeded by the
// caller, so identical inputs and seeds always produce identical splits,
// trees and predictions.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

var (
	ErrEmptyInput      = errors.New("forest: empty input")
	ErrShapeMismatch   = errors.New("forest: features and labels differ in length")
	ErrNotFitted       = errors.New("forest: classifier is not fitted")
	ErrInvalidFraction = errors.New("forest: test fraction must be in (0, 1)")
)

// Split holds the row indices of each partition
type Split struct {
	Train []int
	Test  []int
}

// TrainTestSplit shuffles the row indices 0..n-1 with the given seed and
// holds out ceil(testFraction*n) rows for testing. Both partitions must end
// up non-empty.
func TrainTestSplit(n int, testFraction float64, seed int64) (*Split, error) {
	if n <= 0 {
		return nil, ErrEmptyInput
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, ErrInvalidFraction
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, fmt.Errorf("forest: with n_samples=%d and test fraction %.2f the train or test partition would be empty", n, testFraction)
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)

	return &Split{
		Test:  append([]int(nil), perm[:nTest]...),
		Train: append([]int(nil), perm[nTest:]...),
	}, nil
}

// Take selects the rows at idx from X and y
func Take(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
