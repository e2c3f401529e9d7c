package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdq-signal-server/internal/cache"
	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/metrics"
)

type countingSource struct {
	mu    sync.Mutex
	loads int
	err   error
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(context.Context) (*domain.RecordSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RecordSet{
		Therapies: []domain.RawTherapyInterval{{CaseID: "1", StartDate: "20200301", EndDate: "20200201"}},
	}, nil
}

// gatedSource blocks every load until release is closed. A load whose
// context ends first fails, so a passing run proves the load is detached.
type gatedSource struct {
	mu      sync.Mutex
	loads   int
	release chan struct{}
}

func (s *gatedSource) Name() string { return "gated" }

func (s *gatedSource) Load(ctx context.Context) (*domain.RecordSet, error) {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	select {
	case <-s.release:
		return &domain.RecordSet{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *gatedSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func newTestRunner(src domain.RecordSource) *Runner {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(src, domain.DefaultAnalysisConfig(), cache.New(domain.CacheConfig{}), metrics.New(), logger)
}

func TestRunner_CachesRun(t *testing.T) {
	src := &countingSource{}
	r := newTestRunner(src)
	ctx := context.Background()

	first, err := r.Current(ctx)
	require.NoError(t, err)
	second, err := r.Current(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.loads)
	assert.Equal(t, "counting", r.SourceName())
}

func TestRunner_ConcurrentCurrentLoadsOnce(t *testing.T) {
	src := &countingSource{}
	r := newTestRunner(src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Current(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, src.loads)
}

func TestRunner_Refresh(t *testing.T) {
	src := &countingSource{}
	r := newTestRunner(src)
	ctx := context.Background()

	first, err := r.Current(ctx)
	require.NoError(t, err)
	refreshed, err := r.Refresh(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID(), refreshed.RunID())
	assert.Equal(t, 2, src.loads)

	current, err := r.Current(ctx)
	require.NoError(t, err)
	assert.Same(t, refreshed, current)
}

func TestRunner_DashboardAndSection(t *testing.T) {
	r := newTestRunner(&countingSource{})
	ctx := context.Background()

	d, err := r.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.DeviationTracking.Deviations)
	assert.Equal(t, domain.RiskFailed, d.PredictiveModeling.State)

	section, err := r.Section(ctx, domain.SectionDeviationTracking)
	require.NoError(t, err)
	assert.IsType(t, domain.DeviationSection{}, section)

	_, err = r.Section(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunner_LoadError(t *testing.T) {
	src := &countingSource{err: errors.New("disk on fire")}
	r := newTestRunner(src)

	_, err := r.Current(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.ErrorIs(t, err, domain.ErrSourceLoad)

	// failures are not cached
	_, err = r.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, src.loads)
}

func TestRunner_DeadlineShorterThanRun(t *testing.T) {
	src := &gatedSource{release: make(chan struct{})}
	r := newTestRunner(src)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := r.Current(ctx)
		cancel()
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	close(src.release)
	require.Eventually(t, func() bool { return r.cache.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	a, err := r.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gated", a.Source())
	assert.Equal(t, 1, src.loadCount())
}

func TestRunner_RefreshJoinsRunInProgress(t *testing.T) {
	src := &gatedSource{release: make(chan struct{})}
	r := newTestRunner(src)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := r.Current(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(src.release)
	}()
	a, err := r.Refresh(context.Background())
	require.NoError(t, err)

	current, err := r.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, current)
	assert.Equal(t, 1, src.loadCount())
}
