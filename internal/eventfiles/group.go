package eventfiles

import (
	"maps"
	"slices"
	"strings"

	"calfeed/internal/model"
)

// SeriesKey is the file stem of the series an event belongs to.
func SeriesKey(name string) string {
	return strings.ReplaceAll(name, "/", "-")
}

// Group collects events by SeriesKey, orders every series with
// model.Compare and drops full duplicates.
func Group(events []model.Event) map[string][]model.Event {
	grouped := make(map[string][]model.Event)
	for _, ev := range events {
		key := SeriesKey(ev.Name)
		grouped[key] = append(grouped[key], ev)
	}

	for key, series := range grouped {
		slices.SortFunc(series, model.Compare)
		grouped[key] = slices.CompactFunc(series, model.Equal)
	}
	return grouped
}

// SortedKeys returns the series keys in bytewise order.
func SortedKeys(grouped map[string][]model.Event) []string {
	return slices.Sorted(maps.Keys(grouped))
}
