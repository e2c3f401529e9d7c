package ingest

import (
	"fmt"
	"io"

	"github.com/pdq-signal-server/internal/domain"
)

// RequiredColumns returns the columns a table must provide
func RequiredColumns(t Table) []string {
	return append([]string(nil), requiredColumns[t]...)
}

// readAll validates the header for t and decodes every row with fn
func readAll[T any](r *Reader, t Table, fn func(Row) T) ([]T, error) {
	if err := r.Require(requiredColumns[t]...); err != nil {
		return nil, err
	}
	var out []T
	for {
		row, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, fn(row))
	}
}

// ReadDemographics decodes a DEMO table
func ReadDemographics(r *Reader) ([]domain.CaseDemographics, error) {
	return readAll(r, TableDemo, func(row Row) domain.CaseDemographics {
		return domain.CaseDemographics{
			CaseID: row.Value("primaryid"),
			Age:    row.Float("age"),
			Sex:    row.Value("sex"),
			Weight: row.Float("wt"),
		}
	})
}

// ReadDrugs decodes a DRUG table
func ReadDrugs(r *Reader) ([]domain.DrugExposure, error) {
	return readAll(r, TableDrug, func(row Row) domain.DrugExposure {
		return domain.DrugExposure{
			CaseID:   row.Value("primaryid"),
			DrugName: row.Value("drugname"),
		}
	})
}

// ReadReactions decodes a REAC table
func ReadReactions(r *Reader) ([]domain.ReactionEvent, error) {
	return readAll(r, TableReac, func(row Row) domain.ReactionEvent {
		return domain.ReactionEvent{
			CaseID:        row.Value("primaryid"),
			PreferredTerm: row.Opt("pt"),
		}
	})
}

// ReadTherapies decodes a THER table. Dates stay raw; see service.NormalizeDate.
func ReadTherapies(r *Reader) ([]domain.RawTherapyInterval, error) {
	return readAll(r, TableTher, func(row Row) domain.RawTherapyInterval {
		return domain.RawTherapyInterval{
			CaseID:    row.Value("primaryid"),
			CaseRef:   row.Value("caseid"),
			StartDate: row.Value("start_dt"),
			EndDate:   row.Value("end_dt"),
		}
	})
}

// ReadIndications decodes an INDI table
func ReadIndications(r *Reader) ([]domain.IndicationRecord, error) {
	return readAll(r, TableIndi, func(row Row) domain.IndicationRecord {
		return domain.IndicationRecord{
			CaseID:         row.Value("primaryid"),
			IndicationTerm: row.Opt("indi_pt"),
		}
	})
}

// ReadOutcomes decodes an OUTC table
func ReadOutcomes(r *Reader) ([]domain.OutcomeRecord, error) {
	return readAll(r, TableOutc, func(row Row) domain.OutcomeRecord {
		return domain.OutcomeRecord{
			CaseID:      row.Value("primaryid"),
			OutcomeCode: row.Value("outc_cod"),
		}
	})
}

// ReadInto decodes table t from r into the matching collection of set
func ReadInto(set *domain.RecordSet, t Table, r *Reader) error {
	var err error
	switch t {
	case TableDemo:
		set.Demographics, err = ReadDemographics(r)
	case TableDrug:
		set.Drugs, err = ReadDrugs(r)
	case TableReac:
		set.Reactions, err = ReadReactions(r)
	case TableTher:
		set.Therapies, err = ReadTherapies(r)
	case TableIndi:
		set.Indications, err = ReadIndications(r)
	case TableOutc:
		set.Outcomes, err = ReadOutcomes(r)
	default:
		return fmt.Errorf("unknown FAERS table %q", t)
	}
	return err
}
