package curated

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

const (
	defaultHorizonDays    = 366
	defaultMaxOccurrences = 500
)

// expand repeats first according to an RRULE value, keeping its duration.
// Occurrences are limited to horizonDays after the first start and capped at
// maxOccurrences; the first occurrence is always part of the result and
// counts towards the rule's COUNT.
func expand(first model.Event, rule string, horizonDays, maxOccurrences int) ([]model.Event, error) {
	rule = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if rule == "" {
		return []model.Event{first}, nil
	}
	if horizonDays <= 0 {
		horizonDays = defaultHorizonDays
	}
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("rrule %q: %w", rule, err)
	}
	// DTSTART always comes from the record, never from the rule text.
	r.DTStart(first.Start)

	loc := first.Start.Location()
	starts := r.Between(first.Start, first.Start.AddDate(0, 0, horizonDays), true)
	// The record's own date is the first instance even when the rule would
	// not produce it, and it counts towards COUNT.
	if len(starts) == 0 || !starts[0].Equal(first.Start) {
		starts = append([]time.Time{first.Start}, starts...)
	}
	if count := r.OrigOptions.Count; count > 0 && len(starts) > count {
		starts = starts[:count]
	}
	if len(starts) > maxOccurrences {
		appLog.Warn("curated rrule truncated",
			"name", first.Name,
			"rrule", rule,
			"cap", maxOccurrences,
		)
		starts = starts[:maxOccurrences]
	}

	dur := first.End.Sub(first.Start)
	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		start := s.In(loc)
		out = append(out, model.Event{
			Name:        first.Name,
			Location:    first.Location,
			Description: first.Description,
			Start:       start,
			End:         start.Add(dur),
		})
	}
	return out, nil
}
