package forest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Config controls how the forest is grown
type Config struct {
	Estimators      int   // number of trees
	MaxDepth        int   // 0 grows until leaves are pure
	MinSamplesSplit int   // smallest node that may be split
	MaxFeatures     int   // features drawn per split; 0 means sqrt(n_features)
	Seed            int64 // seeds bootstrap samples and feature draws
	Workers         int   // trees grown concurrently; 0 means GOMAXPROCS
}

// Classifier is a random forest of CART trees with bootstrap sampling and
// soft voting. It is safe for concurrent Predict calls once fitted.
type Classifier struct {
	cfg     Config
	classes []int
	trees   []*node
}

// NewClassifier creates an unfitted forest, filling zero config values with defaults
func NewClassifier(cfg Config) *Classifier {
	if cfg.Estimators <= 0 {
		cfg.Estimators = 100
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Classifier{cfg: cfg}
}

// Name returns the model family name reported in audit summaries
func (c *Classifier) Name() string {
	return "RandomForestClassifier"
}

// Classes returns the sorted class labels seen during Fit
func (c *Classifier) Classes() []int {
	return append([]int(nil), c.classes...)
}

// Fit grows the forest on X and y. Tree seeds are drawn up front from the
// master seed, so the result does not depend on goroutine scheduling.
func (c *Classifier) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	if len(X) != len(y) {
		return ErrShapeMismatch
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return fmt.Errorf("forest: rows have no features: %w", ErrEmptyInput)
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("forest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("forest: row %d contains a non-finite value", i)
			}
		}
	}

	classes, encoded := encodeLabels(y)

	maxFeatures := c.cfg.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}
	if maxFeatures > nFeatures {
		maxFeatures = nFeatures
	}

	master := rand.New(rand.NewSource(c.cfg.Seed))
	seeds := make([]int64, c.cfg.Estimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*node, c.cfg.Estimators)
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(c.cfg.Workers)

	for i := range trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			n := len(X)
			sample := make([]int, n)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}
			b := &treeBuilder{
				X:               X,
				y:               encoded,
				nClasses:        len(classes),
				maxFeatures:     maxFeatures,
				maxDepth:        c.cfg.MaxDepth,
				minSamplesSplit: c.cfg.MinSamplesSplit,
				rng:             rng,
			}
			trees[i] = b.build(sample, 0)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.classes = classes
	c.trees = trees
	return nil
}

// PredictProba returns the mean class probabilities over all trees,
// ordered as Classes().
func (c *Classifier) PredictProba(X [][]float64) ([][]float64, error) {
	if len(c.trees) == 0 {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, x := range X {
		acc := make([]float64, len(c.classes))
		for _, t := range c.trees {
			for k, p := range t.predict(x) {
				acc[k] += p
			}
		}
		for k := range acc {
			acc[k] /= float64(len(c.trees))
		}
		out[i] = acc
	}
	return out, nil
}

// Predict returns the most probable class per row; ties go to the smaller label
func (c *Classifier) Predict(X [][]float64) ([]int, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		best := 0
		for k := 1; k < len(p); k++ {
			if p[k] > p[best] {
				best = k
			}
		}
		out[i] = c.classes[best]
	}
	return out, nil
}

// Score returns the mean accuracy on X and y
func (c *Classifier) Score(X [][]float64, y []int) (float64, error) {
	if len(X) != len(y) {
		return 0, ErrShapeMismatch
	}
	if len(X) == 0 {
		return 0, ErrEmptyInput
	}
	pred, err := c.Predict(X)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred), nil
}

func encodeLabels(y []int) ([]int, []int) {
	seen := make(map[int]bool)
	var classes []int
	for _, v := range y {
		if !seen[v] {
			seen[v] = true
			classes = append(classes, v)
		}
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	encoded := make([]int, len(y))
	for i, v := range y {
		encoded[i] = index[v]
	}
	return classes, encoded
}
