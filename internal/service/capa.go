package service

import (
	"sort"

	"github.com/pdq-signal-server/internal/domain"
)

type drugReactionKey struct {
	drug string
	term string
}

// AggregateCapa counts joined (drug name, reaction term) pairs across all
// cases and returns the pairs reported at least threshold times, most
// frequent first. Groups are emitted in ascending (drug name, reaction term)
// order before the stable count sort, so equal counts stay in that order.
//
// Every drug row of a case is paired with every reaction row of the same
// case; a pair repeated within one case is counted once per combination.
// Rows without a drug name or preferred term are never grouped.
func AggregateCapa(drugs []domain.DrugExposure, reactions []domain.ReactionEvent, threshold int) []domain.CapaCandidate {
	counts := make(map[drugReactionKey]int)

	InnerJoin(drugs, reactions,
		func(d domain.DrugExposure) string { return d.CaseID },
		func(r domain.ReactionEvent) string { return r.CaseID },
		func(d domain.DrugExposure, r domain.ReactionEvent) {
			if r.PreferredTerm == nil || d.DrugName == "" {
				return
			}
			counts[drugReactionKey{drug: d.DrugName, term: *r.PreferredTerm}]++
		},
	)

	order := make([]drugReactionKey, 0, len(counts))
	for k := range counts {
		order = append(order, k)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].drug != order[j].drug {
			return order[i].drug < order[j].drug
		}
		return order[i].term < order[j].term
	})

	candidates := []domain.CapaCandidate{}
	for _, k := range order {
		if counts[k] < threshold {
			continue
		}
		candidates = append(candidates, domain.CapaCandidate{
			DrugName:      k.drug,
			PreferredTerm: k.term,
			Count:         counts[k],
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Count > candidates[j].Count
	})
	return candidates
}
