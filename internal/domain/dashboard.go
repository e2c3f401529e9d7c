package domain

import (
	"fmt"
)

// Section names of the dashboard, in display order
const (
	SectionDeviationTracking  = "deviation_tracking"
	SectionCapaCandidates     = "capa_candidates"
	SectionMismatchAnalysis   = "mismatch_analysis"
	SectionPredictiveModeling = "predictive_modeling"
	SectionAuditSummary       = "audit_summary"
)

// SectionNames lists every dashboard section in display order
var SectionNames = []string{
	SectionDeviationTracking,
	SectionCapaCandidates,
	SectionMismatchAnalysis,
	SectionPredictiveModeling,
	SectionAuditSummary,
}

// DeviationSection is the presentation structure for deviation tracking
type DeviationSection struct {
	Title      string            `json:"title" yaml:"title"`
	Deviations int               `json:"deviations_found" yaml:"deviations_found"`
	Records    []DeviationRecord `json:"records" yaml:"records"`
}

// CapaSection is the presentation structure for CAPA candidates
type CapaSection struct {
	Title       string          `json:"title" yaml:"title"`
	Description string          `json:"description" yaml:"description"`
	Candidates  []CapaCandidate `json:"candidates" yaml:"candidates"`
}

// MismatchSection is the presentation structure for mismatch analysis
type MismatchSection struct {
	Title      string         `json:"title" yaml:"title"`
	Mismatches int            `json:"mismatch_cases" yaml:"mismatch_cases"`
	Preview    []MismatchCase `json:"preview" yaml:"preview"`
}

// ModelingSection is the presentation structure for predictive modeling.
// Report is empty unless the model trained.
type ModelingSection struct {
	Title  string      `json:"title" yaml:"title"`
	State  RiskState   `json:"state" yaml:"state"`
	Status string      `json:"status" yaml:"status"`
	Report []ReportRow `json:"report" yaml:"report"`
}

// AuditSection is the presentation structure for the model audit summary.
// Summary is nil unless the model trained.
type AuditSection struct {
	Title   string        `json:"title" yaml:"title"`
	Summary *AuditSummary `json:"summary" yaml:"summary"`
}

// Dashboard packages every section of one batch run
type Dashboard struct {
	RunID              string           `json:"run_id" yaml:"run_id"`
	Source             string           `json:"source" yaml:"source"`
	DeviationTracking  DeviationSection `json:"deviation_tracking" yaml:"deviation_tracking"`
	CapaCandidates     CapaSection      `json:"capa_candidates" yaml:"capa_candidates"`
	MismatchAnalysis   MismatchSection  `json:"mismatch_analysis" yaml:"mismatch_analysis"`
	PredictiveModeling ModelingSection  `json:"predictive_modeling" yaml:"predictive_modeling"`
	AuditSummary       AuditSection     `json:"audit_summary" yaml:"audit_summary"`
}

// Section returns a single named section
func (d *Dashboard) Section(name string) (interface{}, error) {
	switch name {
	case SectionDeviationTracking:
		return d.DeviationTracking, nil
	case SectionCapaCandidates:
		return d.CapaCandidates, nil
	case SectionMismatchAnalysis:
		return d.MismatchAnalysis, nil
	case SectionPredictiveModeling:
		return d.PredictiveModeling, nil
	case SectionAuditSummary:
		return d.AuditSummary, nil
	default:
		return nil, fmt.Errorf("unknown section %q: %w", name, ErrNotFound)
	}
}
