// Package domain contains the core entities of the pharmacovigilance data-quality
// pipeline: the case records supplied by a record source, the derived findings
// produced by the detectors, and the configuration that drives them.
//
// Records follow the FAERS quarterly extract layout, where every row is keyed by
// the case's primary identifier and one case may carry many drug, reaction,
// therapy and indication rows.
package domain

import (
	"time"
)

// OutcomeDeath is the FAERS outcome code for a fatal outcome. Every other
// outcome code collapses to non-death.
const OutcomeDeath = "DE"

// Sex codes that the risk model knows how to encode.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// CaseDemographics represents one row of the demographics table
type CaseDemographics struct {
	CaseID string   `json:"case_id"`
	Age    *float64 `json:"age,omitempty"`
	Sex    string   `json:"sex"`
	Weight *float64 `json:"weight,omitempty"`
}

// DrugExposure represents one drug reported for a case
type DrugExposure struct {
	CaseID   string `json:"case_id"`
	DrugName string `json:"drug_name"`
}

// ReactionEvent represents one adverse reaction preferred term recorded for a case.
// A nil PreferredTerm means the source had no value.
type ReactionEvent struct {
	CaseID        string  `json:"case_id"`
	PreferredTerm *string `json:"preferred_term,omitempty"`
}

// IndicationRecord represents the documented reason for therapy for a case.
type IndicationRecord struct {
	CaseID         string  `json:"case_id"`
	IndicationTerm *string `json:"indication_term,omitempty"`
}

// OutcomeRecord represents one outcome code reported for a case
type OutcomeRecord struct {
	CaseID      string `json:"case_id"`
	OutcomeCode string `json:"outcome_code"`
}

// IsDeath reports whether the outcome is fatal
func (o OutcomeRecord) IsDeath() bool {
	return o.OutcomeCode == OutcomeDeath
}

// RawTherapyInterval is a therapy row as handed over by a record source,
// before its dates have been normalized.
type RawTherapyInterval struct {
	CaseID    string `json:"case_id"`
	CaseRef   string `json:"case_ref"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Date is a calendar date that may be unparseable. The zero value is the
// "unparseable" marker.
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDate returns a valid Date for the given day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

// String renders the date as YYYY-MM-DD, or the empty string when unparseable
func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format("2006-01-02")
}

// MarshalText implements encoding.TextMarshaler so that unparseable dates
// render as empty strings in JSON and YAML output.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TherapyInterval is a normalized therapy row
type TherapyInterval struct {
	CaseID  string `json:"case_id"`
	CaseRef string `json:"case_ref"`
	Start   Date   `json:"start_date"`
	End     Date   `json:"end_date"`
}

// Deviation reports whether both endpoints parsed and the end precedes the start.
// Intervals with an unparseable endpoint are never deviations.
func (t TherapyInterval) Deviation() bool {
	return t.Start.Valid && t.End.Valid && t.End.Time.Before(t.Start.Time)
}

// RecordSet is one immutable snapshot of the six case tables for a batch run.
type RecordSet struct {
	Demographics []CaseDemographics   `json:"demographics"`
	Drugs        []DrugExposure       `json:"drugs"`
	Reactions    []ReactionEvent      `json:"reactions"`
	Therapies    []RawTherapyInterval `json:"therapies"`
	Indications  []IndicationRecord   `json:"indications"`
	Outcomes     []OutcomeRecord      `json:"outcomes"`
}

// Counts returns the number of rows per table, keyed by FAERS table name
func (r *RecordSet) Counts() map[string]int {
	return map[string]int{
		"demo": len(r.Demographics),
		"drug": len(r.Drugs),
		"reac": len(r.Reactions),
		"ther": len(r.Therapies),
		"indi": len(r.Indications),
		"outc": len(r.Outcomes),
	}
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to f
func Float64Ptr(f float64) *float64 {
	return &f
}
