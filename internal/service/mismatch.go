package service

import (
	"strings"

	"github.com/pdq-signal-server/internal/domain"
)

// DetectMismatches joins indications and reactions on the case id and counts
// the pairs whose terms disagree, ignoring case. A missing term on either
// side is a mismatch. Preview holds the first previewLimit mismatches in
// join order.
func DetectMismatches(indications []domain.IndicationRecord, reactions []domain.ReactionEvent, previewLimit int) domain.MismatchResult {
	result := domain.MismatchResult{Preview: []domain.MismatchCase{}}

	InnerJoin(indications, reactions,
		func(i domain.IndicationRecord) string { return i.CaseID },
		func(r domain.ReactionEvent) string { return r.CaseID },
		func(i domain.IndicationRecord, r domain.ReactionEvent) {
			if termsMatch(i.IndicationTerm, r.PreferredTerm) {
				return
			}
			result.Count++
			if len(result.Preview) < previewLimit {
				result.Preview = append(result.Preview, domain.MismatchCase{
					CaseID:         i.CaseID,
					IndicationTerm: i.IndicationTerm,
					ReactionTerm:   r.PreferredTerm,
				})
			}
		},
	)
	return result
}

// termsMatch compares two optional terms case-insensitively. Missing terms
// never match, not even each other.
func termsMatch(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.ToLower(*a) == strings.ToLower(*b)
}
