// Package curated reads manually maintained events that are merged into the
// parsed feed events.
package curated

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"calfeed/internal/ics"
	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

// DefaultDescription marks curated events as unofficial for the bot users.
const DefaultDescription = "Dies ist eine zusätzliche, inoffizielle Veranstaltung: https://github.com/HAWHHCalendarBot/AdditionalEvents"

// Record is one entry of a curated events file.
type Record struct {
	Name      string `json:"name"`
	Room      string `json:"room"`
	Date      int    `json:"date"`
	Month     int    `json:"month"`
	Year      int    `json:"year"`
	StartTime string `json:"starttime"`
	EndTime   string `json:"endtime"`
	// RRule optionally repeats the entry, e.g. "FREQ=WEEKLY;COUNT=12".
	RRule string `json:"rrule,omitempty"`
}

// Syncer refreshes the directory before it is read.
type Syncer interface {
	Sync(ctx context.Context) error
}

type Config struct {
	Dir            string
	Description    string
	HorizonDays    int
	MaxOccurrences int
}

type Source struct {
	cfg      Config
	resolver *ics.Resolver
	repo     Syncer
}

// NewSource creates a curated source. repo may be nil when the directory is
// maintained by other means.
func NewSource(cfg Config, resolver *ics.Resolver, repo Syncer) *Source {
	if cfg.Description == "" {
		cfg.Description = DefaultDescription
	}
	return &Source{cfg: cfg, resolver: resolver, repo: repo}
}

// Load returns the events of every *.json file in the directory. Any broken
// file or record fails the whole load.
func (s *Source) Load(ctx context.Context) ([]model.Event, error) {
	if s.repo != nil {
		if err := s.repo.Sync(ctx); err != nil {
			return nil, fmt.Errorf("sync curated events: %w", err)
		}
	}

	files, err := s.filenames()
	if err != nil {
		return nil, fmt.Errorf("read curated event directory: %w", err)
	}
	appLog.Debug("curated event files found", "dir", s.cfg.Dir, "count", len(files))

	var events []model.Event
	for _, name := range files {
		fileEvents, err := s.loadFile(name)
		if err != nil {
			return nil, err
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

// filenames lists *.json files in lexical order.
func (s *Source) filenames() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, err
	}
	var list []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			list = append(list, e.Name())
		}
	}
	return list, nil
}

func (s *Source) loadFile(name string) ([]model.Event, error) {
	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("read curated event file %s: %w", name, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse curated event file %s: %w", name, err)
	}

	events := make([]model.Event, 0, len(records))
	for i, rec := range records {
		evs, err := s.toEvents(rec)
		if err != nil {
			return nil, fmt.Errorf("curated event file %s entry %d (%s): %w", name, i, rec.Name, err)
		}
		events = append(events, evs...)
	}
	return events, nil
}

func (s *Source) toEvents(rec Record) ([]model.Event, error) {
	start, err := s.resolver.ResolveClock(rec.Year, rec.Month, rec.Date, rec.StartTime)
	if err != nil {
		return nil, fmt.Errorf("starttime: %w", err)
	}
	end, err := s.resolver.ResolveClock(rec.Year, rec.Month, rec.Date, rec.EndTime)
	if err != nil {
		return nil, fmt.Errorf("endtime: %w", err)
	}

	first := model.Event{
		Name:        rec.Name,
		Location:    rec.Room,
		Description: s.cfg.Description,
		Start:       start,
		End:         end,
	}
	return expand(first, rec.RRule, s.cfg.HorizonDays, s.cfg.MaxOccurrences)
}
