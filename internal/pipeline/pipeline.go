// Package pipeline runs one download pass: fetch every feed, parse each blob,
// merge the curated events, persist the series and publish the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calfeed/internal/eventfiles"
	"calfeed/internal/ics"
	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

type Parser interface {
	Parse(body string) ([]model.Event, error)
}

// EventSource provides the curated events of a run.
type EventSource interface {
	Load(ctx context.Context) ([]model.Event, error)
}

type Store interface {
	EnsureDirs() error
	Save(events []model.Event) (eventfiles.SaveResult, error)
}

// Publisher versions the output directory.
type Publisher interface {
	Sync(ctx context.Context) error
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, author, message string) (bool, error)
	Push(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Options holds the per-run settings that are not collaborators.
type Options struct {
	Sources []ics.Source
	Author  string
	Message string
	Push    bool
}

// Summary describes one finished run.
type Summary struct {
	Sources       int           `json:"sources"`
	SourcesOK     int           `json:"sources_ok"`
	FailedSources []string      `json:"failed_sources"`
	ICSEvents     int           `json:"ics_events"`
	CuratedEvents int           `json:"curated_events"`
	Series        int           `json:"series"`
	Changed       []string      `json:"changed"`
	Removed       []string      `json:"removed"`
	Committed     bool          `json:"committed"`
	Duration      time.Duration `json:"duration"`
}

// Runner wires the collaborators of a run. curated and publisher may be nil.
type Runner struct {
	fetcher   Fetcher
	parser    Parser
	curated   EventSource
	store     Store
	publisher Publisher
	opts      Options
}

func NewRunner(fetcher Fetcher, parser Parser, curated EventSource, store Store, publisher Publisher, opts Options) *Runner {
	return &Runner{
		fetcher:   fetcher,
		parser:    parser,
		curated:   curated,
		store:     store,
		publisher: publisher,
		opts:      opts,
	}
}

// Run performs one pass. Feed and blob failures are skipped with a warning;
// any other failure aborts the run before or while persisting.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{Sources: len(r.opts.Sources), FailedSources: []string{}}

	if r.publisher != nil {
		if err := r.publisher.Sync(ctx); err != nil {
			return sum, fmt.Errorf("sync output repository: %w", err)
		}
	}
	// After Sync, so a fresh clone finds no directory in its way.
	if err := r.store.EnsureDirs(); err != nil {
		return sum, fmt.Errorf("prepare output: %w", err)
	}

	var events []model.Event

	results, fetchErrs := r.fetcher.FetchAll(ctx, r.opts.Sources)
	// An interrupted fetch would look like vanished series to the store.
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	for _, err := range fetchErrs {
		var fe *ics.FetchError
		if errors.As(err, &fe) {
			sum.FailedSources = append(sum.FailedSources, fe.Source.ID)
		}
	}
	for _, res := range results {
		parsed, err := r.parser.Parse(res.Text)
		if err != nil {
			appLog.Warn("feed skipped", "id", res.Source.ID, "err", err)
			sum.FailedSources = append(sum.FailedSources, res.Source.ID)
			continue
		}
		appLog.Debug("feed parsed", "id", res.Source.ID, "events", len(parsed), "from_cache", res.FromCache)
		sum.SourcesOK++
		sum.ICSEvents += len(parsed)
		events = append(events, parsed...)
	}
	appLog.Info("feeds processed", "ok", sum.SourcesOK, "total", sum.Sources, "events", sum.ICSEvents)

	if r.curated != nil {
		extra, err := r.curated.Load(ctx)
		if err != nil {
			return sum, fmt.Errorf("load curated events: %w", err)
		}
		sum.CuratedEvents = len(extra)
		events = append(events, extra...)
		appLog.Info("curated events loaded", "events", sum.CuratedEvents)
	}

	res, err := r.store.Save(events)
	sum.Series = res.Series
	sum.Changed = res.Changed
	sum.Removed = res.Removed
	if err != nil {
		if r.publisher != nil {
			if rbErr := r.publisher.Rollback(ctx); rbErr != nil {
				appLog.Error("rollback failed", rbErr)
			}
		}
		return sum, fmt.Errorf("save events: %w", err)
	}

	if r.publisher != nil {
		committed, err := r.publish(ctx)
		if err != nil {
			return sum, err
		}
		sum.Committed = committed
	}

	sum.Duration = time.Since(start)
	appLog.Info("run finished",
		"sources", sum.Sources,
		"sources_ok", sum.SourcesOK,
		"ics_events", sum.ICSEvents,
		"curated_events", sum.CuratedEvents,
		"series", sum.Series,
		"changed", len(sum.Changed),
		"removed", len(sum.Removed),
		"committed", sum.Committed,
		"duration", sum.Duration.Round(time.Millisecond),
	)
	return sum, nil
}

func (r *Runner) publish(ctx context.Context) (bool, error) {
	if err := r.publisher.Add(ctx, "."); err != nil {
		return false, fmt.Errorf("stage output: %w", err)
	}
	committed, err := r.publisher.Commit(ctx, r.opts.Author, r.opts.Message)
	if err != nil {
		return false, fmt.Errorf("commit output: %w", err)
	}
	if !committed {
		appLog.Debug("nothing to commit")
		return false, nil
	}
	if r.opts.Push {
		if err := r.publisher.Push(ctx); err != nil {
			return true, fmt.Errorf("push output: %w", err)
		}
	}
	return true, nil
}
