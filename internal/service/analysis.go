package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pdq-signal-server/internal/domain"
)

// Analysis is one batch run over a loaded record set. Each stage is computed
// on first use and memoized, so the dashboard and the section views of a run
// always agree.
type Analysis struct {
	runID   string
	source  string
	records *domain.RecordSet
	cfg     domain.AnalysisConfig
	logger  *logrus.Logger
	risk    *RiskPipeline
	observe func(stage string, d time.Duration)

	therapiesOnce  sync.Once
	therapies      []domain.TherapyInterval
	deviationsOnce sync.Once
	deviations     domain.DeviationResult
	capaOnce       sync.Once
	capa           []domain.CapaCandidate
	mismatchOnce   sync.Once
	mismatches     domain.MismatchResult
	riskOnce       sync.Once
}

// NewAnalysis prepares a run. Nothing is computed until a stage is requested.
func NewAnalysis(source string, records *domain.RecordSet, cfg domain.AnalysisConfig, logger *logrus.Logger) *Analysis {
	if records == nil {
		records = &domain.RecordSet{}
	}
	runID := uuid.New().String()
	logger.WithFields(logrus.Fields{
		"run_id": runID,
		"source": source,
		"counts": records.Counts(),
	}).Info("Analysis run created")

	return &Analysis{
		runID:   runID,
		source:  source,
		records: records,
		cfg:     cfg,
		logger:  logger,
		risk:    NewRiskPipeline(cfg, logger),
	}
}

// OnStage registers fn to receive the duration of every computed stage.
// It must be called before any stage runs.
func (a *Analysis) OnStage(fn func(stage string, d time.Duration)) *Analysis {
	a.observe = fn
	return a
}

// RunID identifies this run in logs and responses
func (a *Analysis) RunID() string { return a.runID }

// Source names the record source the run was loaded from
func (a *Analysis) Source() string { return a.source }

// Records returns the input of the run
func (a *Analysis) Records() *domain.RecordSet { return a.records }

// Therapies returns the normalized therapy intervals
func (a *Analysis) Therapies() []domain.TherapyInterval {
	a.therapiesOnce.Do(func() {
		a.therapies = NormalizeIntervals(a.records.Therapies)
	})
	return a.therapies
}

// Deviations returns the deviation tracking result
func (a *Analysis) Deviations() domain.DeviationResult {
	a.deviationsOnce.Do(func() {
		start := time.Now()
		a.deviations = DetectDeviations(a.Therapies())
		a.stageLog("deviation_tracking", start).WithField("deviations", a.deviations.Count).Debug("Stage complete")
	})
	return a.deviations
}

// CapaCandidates returns the drug / reaction pairs at or above the threshold
func (a *Analysis) CapaCandidates() []domain.CapaCandidate {
	a.capaOnce.Do(func() {
		start := time.Now()
		a.capa = AggregateCapa(a.records.Drugs, a.records.Reactions, a.cfg.CapaThreshold)
		a.stageLog("capa_candidates", start).WithField("candidates", len(a.capa)).Debug("Stage complete")
	})
	return a.capa
}

// Mismatches returns the indication / reaction mismatch result
func (a *Analysis) Mismatches() domain.MismatchResult {
	a.mismatchOnce.Do(func() {
		start := time.Now()
		a.mismatches = DetectMismatches(a.records.Indications, a.records.Reactions, a.cfg.MismatchPreviewLimit)
		a.stageLog("mismatch_analysis", start).WithField("mismatches", a.mismatches.Count).Debug("Stage complete")
	})
	return a.mismatches
}

// RiskModel runs the risk pipeline once and returns its terminal report
func (a *Analysis) RiskModel() *domain.RiskReport {
	a.riskOnce.Do(func() {
		start := time.Now()
		report := a.risk.Run(a.records.Demographics, a.records.Outcomes)
		a.stageLog("predictive_modeling", start).WithField("state", report.State).Debug("Stage complete")
	})
	return a.risk.Report()
}

// RiskState returns the pipeline state without triggering a run
func (a *Analysis) RiskState() domain.RiskState {
	return a.risk.State()
}

// RunAll computes every stage concurrently. The stages read the same
// immutable record set and never fail; ctx only bounds the wait.
func (a *Analysis) RunAll(ctx context.Context) error {
	var g errgroup.Group
	done := make(chan struct{})

	go func() {
		defer close(done)
		g.Go(func() error { a.Deviations(); return nil })
		g.Go(func() error { a.CapaCandidates(); return nil })
		g.Go(func() error { a.Mismatches(); return nil })
		g.Go(func() error { a.RiskModel(); return nil })
		_ = g.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Analysis) stageLog(stage string, start time.Time) *logrus.Entry {
	elapsed := time.Since(start)
	if a.observe != nil {
		a.observe(stage, elapsed)
	}
	return a.logger.WithFields(logrus.Fields{
		"run_id":      a.runID,
		"stage":       stage,
		"duration_ms": elapsed.Milliseconds(),
	})
}
