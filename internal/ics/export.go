package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	ical "github.com/arran4/golang-ical"

	"calfeed/internal/model"
)

// ExportSeries renders one series as an iCalendar document.
//
// The output only depends on the events: UIDs are content hashes and DTSTAMP
// is pinned to each event's start, so unchanged series export byte-identical.
func ExportSeries(key string, events []model.Event) string {
	cal := ical.NewCalendarFor("calfeed")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(key)

	for _, ev := range events {
		ve := cal.AddEvent(eventUID(key, ev))
		ve.SetDtStampTime(ev.Start)
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
		ve.SetSummary(ev.Name)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}

	return cal.Serialize()
}

func eventUID(key string, ev model.Event) string {
	h := sha256.New()
	for _, part := range []string{
		key,
		ev.Name,
		ev.Location,
		ev.Description,
		ev.Start.UTC().Format(time.RFC3339),
		ev.End.UTC().Format(time.RFC3339),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:12]) + "@calfeed"
}
