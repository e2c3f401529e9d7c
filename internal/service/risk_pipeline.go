package service

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/pkg/forest"
)

// Risk model features, in column order
var RiskFeatures = []string{"age", "sex", "wt"}

// RiskTarget describes the binary target of the risk model
const RiskTarget = "ADR Seriousness: Death (1) vs Non-Death (0)"

// RiskPipeline estimates fatal vs non-fatal outcome from demographics. It runs
// at most once: the first Run moves it from NOT_RUN to TRAINED or FAILED and
// later calls return the same report.
type RiskPipeline struct {
	cfg    domain.AnalysisConfig
	logger *logrus.Logger

	mu     sync.Mutex
	state  domain.RiskState
	report *domain.RiskReport
}

// NewRiskPipeline creates a pipeline in the NOT_RUN state
func NewRiskPipeline(cfg domain.AnalysisConfig, logger *logrus.Logger) *RiskPipeline {
	return &RiskPipeline{
		cfg:    cfg,
		logger: logger,
		state:  domain.RiskNotRun,
	}
}

// State returns the current lifecycle state
func (p *RiskPipeline) State() domain.RiskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Report returns the terminal report, or nil while NOT_RUN
func (p *RiskPipeline) Report() *domain.RiskReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.report
}

// Run trains and scores the model. Every failure, including a panic inside
// the fit, is returned as a FAILED report.
func (p *RiskPipeline) Run(demographics []domain.CaseDemographics, outcomes []domain.OutcomeRecord) *domain.RiskReport {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsTerminal() {
		return p.report
	}

	start := time.Now()
	report := p.execute(demographics, outcomes)
	p.state = report.State
	p.report = report

	fields := logrus.Fields{
		"state":       report.State,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if report.State == domain.RiskTrained {
		fields["records_used"] = report.Audit.RecordsUsed
		fields["test_accuracy"] = report.Audit.TestAccuracy
		p.logger.WithFields(fields).Info("Risk model trained")
	} else {
		fields["diagnostic"] = report.Diagnostic
		p.logger.WithFields(fields).Warn("Risk model failed")
	}
	return report
}

func (p *RiskPipeline) execute(demographics []domain.CaseDemographics, outcomes []domain.OutcomeRecord) (report *domain.RiskReport) {
	defer func() {
		if r := recover(); r != nil {
			report = domain.NewFailedReport("%v", r)
		}
	}()

	X, y, joined := buildRiskDataset(demographics, outcomes)
	if len(X) == 0 {
		return domain.NewFailedReport("%v (joined %d records)", domain.ErrEmptyDataset, joined)
	}

	split, err := forest.TrainTestSplit(len(X), p.cfg.TestFraction, p.cfg.Seed)
	if err != nil {
		return domain.NewFailedReport("%v", err)
	}
	xTrain, yTrain := forest.Take(X, y, split.Train)
	xTest, yTest := forest.Take(X, y, split.Test)

	clf := forest.NewClassifier(forest.Config{
		Estimators:      p.cfg.Estimators,
		MaxDepth:        p.cfg.MaxDepth,
		MinSamplesSplit: p.cfg.MinSamplesSplit,
		Seed:            p.cfg.Seed,
	})
	if err := clf.Fit(xTrain, yTrain); err != nil {
		return domain.NewFailedReport("%v", err)
	}

	yPred, err := clf.Predict(xTest)
	if err != nil {
		return domain.NewFailedReport("%v", err)
	}
	cr, err := forest.ClassificationReport(yTest, yPred)
	if err != nil {
		return domain.NewFailedReport("%v", err)
	}

	audit := &domain.AuditSummary{
		TotalRecords: joined,
		RecordsUsed:  len(X),
		FeaturesUsed: append([]string(nil), RiskFeatures...),
		Target:       RiskTarget,
		ModelUsed:    clf.Name(),
		TestAccuracy: math.Round(cr.Accuracy*1000) / 1000,
	}
	return domain.NewTrainedReport(toClassificationReport(cr), audit)
}

// buildRiskDataset joins demographics with outcomes, encodes sex and the
// death target, and drops rows with any missing value. It also returns the
// number of joined rows before filtering.
func buildRiskDataset(demographics []domain.CaseDemographics, outcomes []domain.OutcomeRecord) ([][]float64, []int, int) {
	var X [][]float64
	var y []int
	joined := 0

	InnerJoin(demographics, outcomes,
		func(d domain.CaseDemographics) string { return d.CaseID },
		func(o domain.OutcomeRecord) string { return o.CaseID },
		func(d domain.CaseDemographics, o domain.OutcomeRecord) {
			joined++
			sex, ok := encodeSex(d.Sex)
			if !ok || d.Age == nil || d.Weight == nil {
				return
			}
			if math.IsNaN(*d.Age) || math.IsNaN(*d.Weight) {
				return
			}
			X = append(X, []float64{*d.Age, sex, *d.Weight})
			if o.IsDeath() {
				y = append(y, 1)
			} else {
				y = append(y, 0)
			}
		},
	)
	return X, y, joined
}

func encodeSex(sex string) (float64, bool) {
	switch sex {
	case domain.SexMale:
		return 0, true
	case domain.SexFemale:
		return 1, true
	default:
		return 0, false
	}
}

// toClassificationReport flattens the forest report into dashboard rows.
// The accuracy row repeats the accuracy in every metric column and carries
// the test size as support.
func toClassificationReport(r *forest.Report) *domain.ClassificationReport {
	out := &domain.ClassificationReport{Accuracy: r.Accuracy}
	for _, c := range r.Classes {
		out.Rows = append(out.Rows, toReportRow(c))
	}
	out.Rows = append(out.Rows,
		domain.ReportRow{
			Label:     forest.LabelAccuracy,
			Precision: r.Accuracy,
			Recall:    r.Accuracy,
			F1Score:   r.Accuracy,
			Support:   float64(r.Total),
		},
		toReportRow(r.MacroAvg),
		toReportRow(r.WeightedAvg),
	)
	return out
}

func toReportRow(c forest.ClassMetrics) domain.ReportRow {
	return domain.ReportRow{
		Label:     c.Label,
		Precision: c.Precision,
		Recall:    c.Recall,
		F1Score:   c.F1,
		Support:   float64(c.Support),
	}
}

// String renders a compact description for logs
func (p *RiskPipeline) String() string {
	return fmt.Sprintf("RiskPipeline(state=%s, estimators=%d, seed=%d)", p.State(), p.cfg.Estimators, p.cfg.Seed)
}
