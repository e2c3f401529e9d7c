// Package runner ties a record source to the analysis pipeline. It loads a
// snapshot, computes every stage and hands the same run to the HTTP and MCP
// surfaces until it expires or is refreshed.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/cache"
	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/metrics"
	"github.com/pdq-signal-server/internal/service"
)

// Runner serves analysis runs over one record source
type Runner struct {
	source  domain.RecordSource
	cfg     domain.AnalysisConfig
	cache   *cache.AnalysisCache
	metrics *metrics.Metrics
	logger  *logrus.Logger

	// guards inflight; concurrent requests share one run
	mu       sync.Mutex
	inflight *flight
}

// flight is a load and analysis in progress. a and err are set before done
// is closed.
type flight struct {
	done chan struct{}
	a    *service.Analysis
	err  error
}

// New creates a runner. m may be nil.
func New(src domain.RecordSource, cfg domain.AnalysisConfig, c *cache.AnalysisCache, m *metrics.Metrics, logger *logrus.Logger) *Runner {
	return &Runner{
		source:  src,
		cfg:     cfg,
		cache:   c,
		metrics: m,
		logger:  logger,
	}
}

// SourceName returns the name of the underlying source
func (r *Runner) SourceName() string {
	return r.source.Name()
}

// Current returns the cached run or joins the run being computed. ctx bounds
// only the wait: a caller that gives up leaves the run to finish and be
// cached for the next request.
func (r *Runner) Current(ctx context.Context) (*service.Analysis, error) {
	if a, ok := r.cache.Get(r.source.Name()); ok {
		r.observeCache(true)
		return a, nil
	}

	r.mu.Lock()
	// another request may have finished the load while we waited
	if a, ok := r.cache.Get(r.source.Name()); ok {
		r.mu.Unlock()
		r.observeCache(true)
		return a, nil
	}
	r.observeCache(false)
	f := r.startLocked(ctx)
	r.mu.Unlock()

	return r.wait(ctx, f)
}

// Refresh discards the cached run and computes a new one from a fresh load.
// A run already in progress is fresh and is joined instead.
func (r *Runner) Refresh(ctx context.Context) (*service.Analysis, error) {
	r.mu.Lock()
	r.cache.Invalidate(r.source.Name())
	f := r.startLocked(ctx)
	r.mu.Unlock()

	return r.wait(ctx, f)
}

// startLocked must be called with mu held
func (r *Runner) startLocked(ctx context.Context) *flight {
	if r.inflight != nil {
		return r.inflight
	}
	f := &flight{done: make(chan struct{})}
	r.inflight = f

	// keeps request values for logging but not its deadline
	detached := context.WithoutCancel(ctx)
	go func() {
		f.a, f.err = r.run(detached)
		r.mu.Lock()
		r.inflight = nil
		r.mu.Unlock()
		close(f.done)
	}()
	return f
}

func (r *Runner) wait(ctx context.Context, f *flight) (*service.Analysis, error) {
	select {
	case <-f.done:
		return f.a, f.err
	case <-ctx.Done():
		r.logger.WithField("source", r.source.Name()).Warn("Caller stopped waiting for analysis run")
		return nil, fmt.Errorf("waiting for analysis of %s: %w", r.source.Name(), ctx.Err())
	}
}

// Dashboard returns every section of the current run
func (r *Runner) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	a, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	return service.Summarize(a), nil
}

// Section returns one named section of the current run
func (r *Runner) Section(ctx context.Context, name string) (interface{}, error) {
	if !validSection(name) {
		return nil, fmt.Errorf("unknown section %q: %w", name, domain.ErrNotFound)
	}
	d, err := r.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	return d.Section(name)
}

// run loads the source and computes every stage, caching the result
func (r *Runner) run(ctx context.Context) (*service.Analysis, error) {
	start := time.Now()
	set, err := r.source.Load(ctx)
	if r.metrics != nil {
		r.metrics.ObserveLoad(r.source.Name(), start, set, err)
	}
	if err != nil {
		r.logger.WithError(err).WithField("source", r.source.Name()).Error("Failed to load records")
		return nil, fmt.Errorf("load %s: %w: %w", r.source.Name(), domain.ErrSourceLoad, err)
	}

	a := service.NewAnalysis(r.source.Name(), set, r.cfg, r.logger)
	if r.metrics != nil {
		a.OnStage(r.metrics.ObserveStage)
	}
	if err := a.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("analysis %s: %w", a.RunID(), err)
	}

	d := service.Summarize(a)
	if r.metrics != nil {
		r.metrics.ObserveDashboard(d)
	}
	r.cache.Put(r.source.Name(), a)

	r.logger.WithFields(logrus.Fields{
		"run_id":      a.RunID(),
		"source":      r.source.Name(),
		"deviations":  d.DeviationTracking.Deviations,
		"capa":        len(d.CapaCandidates.Candidates),
		"mismatches":  d.MismatchAnalysis.Mismatches,
		"risk_state":  d.PredictiveModeling.State,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Analysis run complete")
	return a, nil
}

func (r *Runner) observeCache(hit bool) {
	if r.metrics != nil {
		r.metrics.ObserveCache(hit)
	}
}

func validSection(name string) bool {
	for _, s := range domain.SectionNames {
		if s == name {
			return true
		}
	}
	return false
}
