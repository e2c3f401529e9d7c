package service

import (
	"strings"
	"time"

	"github.com/pdq-signal-server/internal/domain"
)

// dateLayouts are tried in order. FAERS writes full dates as YYYYMMDD and
// allows month (YYYYMM) or year (YYYY) precision; the remaining layouts cover
// sources that were exported through spreadsheets or databases.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"200601",
	"2006",
}

// NormalizeDate parses a raw date field. Malformed or empty input returns the
// unparseable marker; it never fails.
func NormalizeDate(raw string) domain.Date {
	s := strings.TrimSpace(raw)
	// numeric columns exported as floats carry a trailing ".0"
	s = strings.TrimSuffix(s, ".0")
	if s == "" {
		return domain.Date{}
	}

	for _, layout := range dateLayouts {
		if len(layout) != len(s) && layout != time.RFC3339 {
			continue
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return domain.NewDate(y, m, d)
	}
	return domain.Date{}
}

// NormalizeInterval converts a raw therapy row into a TherapyInterval
func NormalizeInterval(raw domain.RawTherapyInterval) domain.TherapyInterval {
	return domain.TherapyInterval{
		CaseID:  raw.CaseID,
		CaseRef: raw.CaseRef,
		Start:   NormalizeDate(raw.StartDate),
		End:     NormalizeDate(raw.EndDate),
	}
}

// NormalizeIntervals converts every raw therapy row, preserving order
func NormalizeIntervals(raws []domain.RawTherapyInterval) []domain.TherapyInterval {
	out := make([]domain.TherapyInterval, len(raws))
	for i, raw := range raws {
		out[i] = NormalizeInterval(raw)
	}
	return out
}
