package forest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separableData builds two well separated clusters: class 1 when the first
// feature is above 50.
func separableData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			X[i] = []float64{rng.Float64() * 40, rng.Float64(), 70 + rng.Float64()*10}
			y[i] = 0
		} else {
			X[i] = []float64{60 + rng.Float64()*40, rng.Float64(), 70 + rng.Float64()*10}
			y[i] = 1
		}
	}
	return X, y
}

func TestTrainTestSplit(t *testing.T) {
	split, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)

	assert.Len(t, split.Test, 3)
	assert.Len(t, split.Train, 7)

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, split.Train...), split.Test...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)
}

func TestTrainTestSplit_Rounding(t *testing.T) {
	// ceil(0.3 * 7) = 3
	split, err := TrainTestSplit(7, 0.3, 1)
	require.NoError(t, err)
	assert.Len(t, split.Test, 3)
	assert.Len(t, split.Train, 4)
}

func TestTrainTestSplit_Deterministic(t *testing.T) {
	a, err := TrainTestSplit(100, 0.3, 42)
	require.NoError(t, err)
	b, err := TrainTestSplit(100, 0.3, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := TrainTestSplit(100, 0.3, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a.Test, c.Test)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		fraction float64
	}{
		{"Empty", 0, 0.3},
		{"Single row", 1, 0.3},
		{"Zero fraction", 10, 0},
		{"Full fraction", 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TrainTestSplit(tt.n, tt.fraction, 42)
			assert.Error(t, err)
		})
	}
}

func TestClassifier_FitPredict(t *testing.T) {
	X, y := separableData(200, 3)

	clf := NewClassifier(Config{Estimators: 25, Seed: 42})
	require.NoError(t, clf.Fit(X, y))

	assert.Equal(t, []int{0, 1}, clf.Classes())
	assert.Equal(t, "RandomForestClassifier", clf.Name())

	acc, err := clf.Score(X, y)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.95)

	pred, err := clf.Predict([][]float64{{10, 0.5, 75}, {90, 0.5, 75}})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, pred)
}

func TestClassifier_Deterministic(t *testing.T) {
	X, y := separableData(120, 9)
	// add label noise so the trees actually differ between seeds
	for i := 0; i < len(y); i += 7 {
		y[i] = 1 - y[i]
	}

	predictWith := func(workers int) [][]float64 {
		clf := NewClassifier(Config{Estimators: 30, Seed: 42, Workers: workers})
		require.NoError(t, clf.Fit(X, y))
		proba, err := clf.PredictProba(X)
		require.NoError(t, err)
		return proba
	}

	first := predictWith(1)
	assert.Equal(t, first, predictWith(1))
	assert.Equal(t, first, predictWith(8))
}

func TestClassifier_SingleClass(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	y := []int{0, 0, 0}

	clf := NewClassifier(Config{Estimators: 5, Seed: 1})
	require.NoError(t, clf.Fit(X, y))

	pred, err := clf.Predict([][]float64{{100, 100}})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, pred)
}

func TestClassifier_Errors(t *testing.T) {
	clf := NewClassifier(Config{Estimators: 3})

	_, err := clf.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrNotFitted)

	assert.ErrorIs(t, clf.Fit(nil, nil), ErrEmptyInput)
	assert.ErrorIs(t, clf.Fit([][]float64{{1}}, []int{0, 1}), ErrShapeMismatch)
	assert.Error(t, clf.Fit([][]float64{{1, 2}, {1}}, []int{0, 1}))
}

func TestClassificationReport(t *testing.T) {
	yTrue := []int{0, 0, 0, 1, 1}
	yPred := []int{0, 0, 1, 1, 0}

	r, err := ClassificationReport(yTrue, yPred)
	require.NoError(t, err)
	require.Len(t, r.Classes, 2)

	c0 := r.Classes[0]
	assert.Equal(t, "0", c0.Label)
	assert.InDelta(t, 2.0/3.0, c0.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, c0.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, c0.F1, 1e-12)
	assert.Equal(t, 3, c0.Support)

	c1 := r.Classes[1]
	assert.Equal(t, "1", c1.Label)
	assert.InDelta(t, 0.5, c1.Precision, 1e-12)
	assert.InDelta(t, 0.5, c1.Recall, 1e-12)
	assert.Equal(t, 2, c1.Support)

	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, (2.0/3.0+0.5)/2, r.MacroAvg.Precision, 1e-12)
	assert.InDelta(t, (3*(2.0/3.0)+2*0.5)/5, r.WeightedAvg.Recall, 1e-12)
	assert.Equal(t, 5, r.MacroAvg.Support)
	assert.Equal(t, 5, r.Total)
}

func TestClassificationReport_ZeroDivision(t *testing.T) {
	// class 1 is never predicted: its precision is undefined and reported as 0
	r, err := ClassificationReport([]int{0, 1, 1}, []int{0, 0, 0})
	require.NoError(t, err)
	require.Len(t, r.Classes, 2)
	assert.Equal(t, 0.0, r.Classes[1].Precision)
	assert.Equal(t, 0.0, r.Classes[1].F1)
}

func TestClassificationReport_Errors(t *testing.T) {
	_, err := ClassificationReport(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = ClassificationReport([]int{1}, []int{1, 0})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTake(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}}
	y := []int{10, 11, 12}

	xs, ys := Take(X, y, []int{2, 0})
	assert.Equal(t, [][]float64{{2}, {0}}, xs)
	assert.Equal(t, []int{12, 10}, ys)
}
