package model

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event is one concrete occurrence as persisted in the event files.
//
// Start and End carry the fixed civil timezone the occurrence was resolved
// in; they are written with their explicit UTC offset.
type Event struct {
	Name        string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
}

// eventJSON is the on-disk shape consumed by the calendar bot.
type eventJSON struct {
	Name        string `json:"Name"`
	Location    string `json:"Location"`
	Description string `json:"Description"`
	StartTime   string `json:"StartTime"`
	EndTime     string `json:"EndTime"`
}

// MarshalJSON writes <, > and & unescaped; json.Marshal would escape them
// even when the outer encoder has HTML escaping disabled.
func (e Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(eventJSON{
		Name:        e.Name,
		Location:    e.Location,
		Description: e.Description,
		StartTime:   e.Start.Format(time.RFC3339),
		EndTime:     e.End.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := time.Parse(time.RFC3339, raw.StartTime)
	if err != nil {
		return fmt.Errorf("StartTime: %w", err)
	}
	end, err := time.Parse(time.RFC3339, raw.EndTime)
	if err != nil {
		return fmt.Errorf("EndTime: %w", err)
	}
	*e = Event{
		Name:        raw.Name,
		Location:    raw.Location,
		Description: raw.Description,
		Start:       start,
		End:         end,
	}
	return nil
}

// Compare orders events by start, end, location, description and finally
// name, which makes the order total for events that are not Equal.
func Compare(a, b Event) int {
	return cmp.Or(
		a.Start.Compare(b.Start),
		a.End.Compare(b.End),
		strings.Compare(a.Location, b.Location),
		strings.Compare(a.Description, b.Description),
		strings.Compare(a.Name, b.Name),
	)
}

// Equal reports whether all five fields match. Times are compared as instants.
func Equal(a, b Event) bool {
	return a.Name == b.Name &&
		a.Location == b.Location &&
		a.Description == b.Description &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End)
}
