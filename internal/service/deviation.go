package service

import (
	"github.com/pdq-signal-server/internal/domain"
)

// DetectDeviations flags therapy intervals whose end precedes their start.
// Intervals with an unparseable endpoint are excluded from both the count
// and the list. Records keep the order of the input.
func DetectDeviations(intervals []domain.TherapyInterval) domain.DeviationResult {
	result := domain.DeviationResult{Records: []domain.DeviationRecord{}}
	for _, t := range intervals {
		if !t.Deviation() {
			continue
		}
		result.Records = append(result.Records, domain.DeviationRecord{
			CaseID:  t.CaseID,
			CaseRef: t.CaseRef,
			Start:   t.Start,
			End:     t.End,
		})
	}
	result.Count = len(result.Records)
	return result
}
