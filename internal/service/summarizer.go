package service

import (
	"fmt"

	"github.com/pdq-signal-server/internal/domain"
)

// Section titles shown on the dashboard
const (
	TitleDeviationTracking  = "Deviation Tracking"
	TitleCapaCandidates     = "CAPA Candidates"
	TitleMismatchAnalysis   = "Mismatch Analysis"
	TitlePredictiveModeling = "Predictive Modeling"
	TitleAuditSummary       = "Audit Summary Report"
)

// Summarize packages every stage of a run into the dashboard structure. It
// triggers any stage that has not been computed yet.
func Summarize(a *Analysis) *domain.Dashboard {
	deviations := a.Deviations()
	mismatches := a.Mismatches()
	risk := a.RiskModel()

	d := &domain.Dashboard{
		RunID:  a.RunID(),
		Source: a.Source(),
		DeviationTracking: domain.DeviationSection{
			Title:      TitleDeviationTracking,
			Deviations: deviations.Count,
			Records:    deviations.Records,
		},
		CapaCandidates: domain.CapaSection{
			Title:       TitleCapaCandidates,
			Description: fmt.Sprintf("Drug-reaction combinations reported at least %d times", a.cfg.CapaThreshold),
			Candidates:  a.CapaCandidates(),
		},
		MismatchAnalysis: domain.MismatchSection{
			Title:      TitleMismatchAnalysis,
			Mismatches: mismatches.Count,
			Preview:    mismatches.Preview,
		},
		PredictiveModeling: domain.ModelingSection{
			Title:  TitlePredictiveModeling,
			State:  domain.RiskNotRun,
			Status: risk.Status(),
			Report: []domain.ReportRow{},
		},
		AuditSummary: domain.AuditSection{
			Title: TitleAuditSummary,
		},
	}

	if risk != nil {
		d.PredictiveModeling.State = risk.State
		if risk.State == domain.RiskTrained {
			d.PredictiveModeling.Report = risk.Report.Rows
			d.AuditSummary.Summary = risk.Audit
		}
	}
	return d
}
