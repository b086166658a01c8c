package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DefaultTimezone is the civil zone the feeds are published in.
	DefaultTimezone = "Europe/Berlin"

	icsLocalLayout   = "20060102T150405"
	clockInputLayout = "2006-01-02 15:04"
)

var (
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrNonexistentLocalTime = errors.New("local time does not exist in timezone")
)

// Resolver turns local wall-clock timestamps into absolute instants in one
// fixed timezone.
type Resolver struct {
	loc *time.Location
}

func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc}
}

// LoadResolver looks up an IANA zone name (the tz database is embedded).
func LoadResolver(name string) (*Resolver, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return NewResolver(loc), nil
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Resolve parses YYYYMMDDTHHMMSS as local civil time.
func (r *Resolver) Resolve(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	naive, err := time.Parse(icsLocalLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidTimestamp, raw, err)
	}
	return r.localize(naive)
}

// ResolveClock builds a local instant from a calendar date and an HH:MM clock.
func (r *Resolver) ResolveClock(year, month, day int, clock string) (time.Time, error) {
	raw := fmt.Sprintf("%04d-%02d-%02d %s", year, month, day, strings.TrimSpace(clock))
	naive, err := time.Parse(clockInputLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidTimestamp, raw, err)
	}
	return r.localize(naive)
}

// localize maps the wall clock of naive (read in UTC) onto r.loc.
//
// Candidates are built from the offsets in effect a day and a half before
// and after; only those that read back as the same wall clock are valid.
// No valid candidate means the clock falls into a spring-forward gap. Two
// valid candidates mean a fall-back overlap, and the earlier one is used.
func (r *Resolver) localize(naive time.Time) (time.Time, error) {
	var found []time.Time
	for _, probe := range []time.Time{naive.Add(-36 * time.Hour), naive.Add(36 * time.Hour)} {
		_, offset := probe.In(r.loc).Zone()
		candidate := naive.Add(-time.Duration(offset) * time.Second).In(r.loc)
		if !sameWallClock(candidate, naive) {
			continue
		}
		if len(found) == 1 && found[0].Equal(candidate) {
			continue
		}
		found = append(found, candidate)
	}

	switch len(found) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNonexistentLocalTime, naive.Format("2006-01-02T15:04:05"), r.loc)
	case 1:
		return found[0], nil
	default:
		if found[1].Before(found[0]) {
			return found[1], nil
		}
		return found[0], nil
	}
}

func sameWallClock(t, naive time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := naive.Date()
	h1, mi1, s1 := t.Clock()
	h2, mi2, s2 := naive.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 && h1 == h2 && mi1 == mi2 && s1 == s2
}
