package domain

import (
	"fmt"
)

// DeviationRecord is a therapy interval whose recorded end precedes its start
type DeviationRecord struct {
	CaseID  string `json:"case_id" yaml:"case_id"`
	CaseRef string `json:"case_ref" yaml:"case_ref"`
	Start   Date   `json:"start_date" yaml:"start_date"`
	End     Date   `json:"end_date" yaml:"end_date"`
}

// DeviationResult is the output of deviation tracking
type DeviationResult struct {
	Count   int               `json:"count" yaml:"count"`
	Records []DeviationRecord `json:"records" yaml:"records"`
}

// CapaCandidate is a drug / reaction pair reported often enough to warrant a
// corrective and preventive action review.
type CapaCandidate struct {
	DrugName      string `json:"drug_name" yaml:"drug_name"`
	PreferredTerm string `json:"preferred_term" yaml:"preferred_term"`
	Count         int    `json:"count" yaml:"count"`
}

// MismatchCase is one joined indication / reaction pair whose terms disagree
type MismatchCase struct {
	CaseID         string  `json:"case_id" yaml:"case_id"`
	IndicationTerm *string `json:"indication_term" yaml:"indication_term"`
	ReactionTerm   *string `json:"reaction_term" yaml:"reaction_term"`
}

// MismatchResult is the output of mismatch analysis. Preview holds only the
// first few mismatches in join order; Count covers all of them.
type MismatchResult struct {
	Count   int            `json:"count" yaml:"count"`
	Preview []MismatchCase `json:"preview" yaml:"preview"`
}

// RiskState represents the lifecycle state of the risk model pipeline
type RiskState string

const (
	RiskNotRun  RiskState = "NOT_RUN"
	RiskTrained RiskState = "TRAINED"
	RiskFailed  RiskState = "FAILED"
)

// IsTerminal reports whether the state can no longer change
func (s RiskState) IsTerminal() bool {
	return s == RiskTrained || s == RiskFailed
}

// ReportRow is one row of a classification report. Label is a class label,
// "accuracy", "macro avg" or "weighted avg".
type ReportRow struct {
	Label     string  `json:"label" yaml:"label"`
	Precision float64 `json:"precision" yaml:"precision"`
	Recall    float64 `json:"recall" yaml:"recall"`
	F1Score   float64 `json:"f1_score" yaml:"f1_score"`
	Support   float64 `json:"support" yaml:"support"`
}

// ClassificationReport holds per-class metrics followed by the summary rows
type ClassificationReport struct {
	Rows     []ReportRow `json:"rows" yaml:"rows"`
	Accuracy float64     `json:"accuracy" yaml:"accuracy"`
}

// Row returns the row with the given label
func (r *ClassificationReport) Row(label string) (ReportRow, bool) {
	for _, row := range r.Rows {
		if row.Label == label {
			return row, true
		}
	}
	return ReportRow{}, false
}

// AuditSummary describes what data and configuration produced a trained
// model's metrics. Field names mirror the keys shown on the dashboard.
//
// TotalRecords counts demographic/outcome join rows before rows missing age,
// weight or a known sex are dropped; RecordsUsed counts what remains. The two
// differ whenever the quarter has incomplete demographics, so a gap between
// them is the number of cases the model never saw.
type AuditSummary struct {
	TotalRecords int      `json:"Total Records" yaml:"Total Records"`
	RecordsUsed  int      `json:"Records Used in Modeling" yaml:"Records Used in Modeling"`
	FeaturesUsed []string `json:"Features Used" yaml:"Features Used"`
	Target       string   `json:"Target" yaml:"Target"`
	ModelUsed    string   `json:"Model Used" yaml:"Model Used"`
	TestAccuracy float64  `json:"Test Accuracy" yaml:"Test Accuracy"`
}

// RiskReport is the tagged result of the risk model pipeline. Exactly one of
// the Trained payload (Report, Audit) or the Failed payload (Diagnostic) is set.
type RiskReport struct {
	State      RiskState             `json:"state" yaml:"state"`
	Report     *ClassificationReport `json:"report,omitempty" yaml:"report,omitempty"`
	Audit      *AuditSummary         `json:"audit,omitempty" yaml:"audit,omitempty"`
	Diagnostic string                `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
}

// NewTrainedReport creates a report in the Trained state
func NewTrainedReport(report *ClassificationReport, audit *AuditSummary) *RiskReport {
	return &RiskReport{State: RiskTrained, Report: report, Audit: audit}
}

// NewFailedReport creates a report in the Failed state
func NewFailedReport(format string, args ...interface{}) *RiskReport {
	return &RiskReport{State: RiskFailed, Diagnostic: fmt.Sprintf(format, args...)}
}

// Status returns the human readable status line for the report
func (r *RiskReport) Status() string {
	if r == nil {
		return "Model not executed yet"
	}
	switch r.State {
	case RiskTrained:
		return "Model trained successfully"
	case RiskFailed:
		return "Model failed: " + r.Diagnostic
	default:
		return "Model not executed yet"
	}
}
