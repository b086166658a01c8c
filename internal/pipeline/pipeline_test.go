package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfeed/internal/eventfiles"
	"calfeed/internal/ics"
	"calfeed/internal/model"
)

type fakeFetcher struct {
	bodies map[string]string
}

func (f *fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	var results []ics.FetchResult
	var errs []error
	for _, src := range sources {
		body, ok := f.bodies[src.URL]
		if !ok {
			errs = append(errs, &ics.FetchError{Source: src, Err: errors.New("404 Not Found")})
			continue
		}
		results = append(results, ics.FetchResult{Source: src, Text: body})
	}
	return results, errs
}

type fakeCurated struct {
	events []model.Event
	err    error
}

func (f *fakeCurated) Load(context.Context) ([]model.Event, error) {
	return f.events, f.err
}

type fakePublisher struct {
	calls   []string
	dirty   bool
	syncErr error
}

func (p *fakePublisher) Sync(context.Context) error {
	p.calls = append(p.calls, "sync")
	return p.syncErr
}

func (p *fakePublisher) Add(_ context.Context, paths ...string) error {
	p.calls = append(p.calls, "add "+strings.Join(paths, " "))
	return nil
}

func (p *fakePublisher) Commit(_ context.Context, author, message string) (bool, error) {
	p.calls = append(p.calls, "commit "+message)
	return p.dirty, nil
}

func (p *fakePublisher) Push(context.Context) error {
	p.calls = append(p.calls, "push")
	return nil
}

func (p *fakePublisher) Rollback(context.Context) error {
	p.calls = append(p.calls, "rollback")
	return nil
}

const algebraFeed = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:Algebra\r\n" +
	"LOCATION:Raum 5 Stand 01-10-2020\r\n" +
	"UID:1\r\n" +
	"DTSTART;TZID=Europe/Berlin:20201205T090000\r\n" +
	"DTEND;TZID=Europe/Berlin:20201205T103000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

const brokenFeed = "BEGIN:VEVENT\n" +
	"SUMMARY:Analysis\n" +
	"LOCATION:Raum 6\n" +
	"UID:2\n" +
	"DTSTART;TZID=Europe/Berlin:20201305T090000\n" +
	"DTEND;TZID=Europe/Berlin:20201205T103000\n" +
	"END:VEVENT\n"

func newParser(t *testing.T) *ics.Parser {
	t.Helper()
	resolver, err := ics.LoadResolver(ics.DefaultTimezone)
	require.NoError(t, err)
	return ics.NewParser(resolver, nil)
}

func newStore(t *testing.T) *eventfiles.Store {
	t.Helper()
	return eventfiles.NewStore(filepath.Join(t.TempDir(), "eventfiles"), "")
}

func curatedEvent(t *testing.T) model.Event {
	t.Helper()
	resolver, err := ics.LoadResolver(ics.DefaultTimezone)
	require.NoError(t, err)
	start, err := resolver.ResolveClock(2020, 12, 8, "10:00")
	require.NoError(t, err)
	end, err := resolver.ResolveClock(2020, 12, 8, "12:00")
	require.NoError(t, err)
	return model.Event{Name: "Tutorium", Location: "Raum 1", Description: "inoffiziell", Start: start, End: end}
}

func sources() []ics.Source {
	return []ics.Source{
		{ID: "algebra", URL: "https://example.org/algebra.ics"},
		{ID: "broken", URL: "https://example.org/broken.ics"},
		{ID: "gone", URL: "https://example.org/gone.ics"},
	}
}

func TestRunSkipsFailingFeedsAndMergesCurated(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://example.org/algebra.ics": algebraFeed,
		"https://example.org/broken.ics":  brokenFeed,
	}}
	store := newStore(t)
	r := NewRunner(fetcher, newParser(t), &fakeCurated{events: []model.Event{curatedEvent(t)}}, store, nil, Options{Sources: sources()})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Sources)
	assert.Equal(t, 1, sum.SourcesOK)
	assert.ElementsMatch(t, []string{"gone", "broken"}, sum.FailedSources)
	assert.Equal(t, 1, sum.ICSEvents)
	assert.Equal(t, 1, sum.CuratedEvents)
	assert.Equal(t, 2, sum.Series)
	assert.Equal(t, []string{"Algebra", "Tutorium"}, sum.Changed)

	algebra, err := os.ReadFile(filepath.Join(store.Dir(), "Algebra.json"))
	require.NoError(t, err)
	assert.Contains(t, string(algebra), `"Location": "Raum 5"`)

	again, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.Changed)
	assert.Empty(t, again.Removed)
}

func TestRunCuratedFailureWritesNothing(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{"https://example.org/algebra.ics": algebraFeed}}
	store := newStore(t)
	r := NewRunner(fetcher, newParser(t), &fakeCurated{err: errors.New("bad file")}, store, nil, Options{Sources: sources()})

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "load curated events")

	_, statErr := os.Stat(filepath.Join(store.Dir(), eventfiles.IndexFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunPublishes(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{"https://example.org/algebra.ics": algebraFeed}}
	pub := &fakePublisher{dirty: true}
	r := NewRunner(fetcher, newParser(t), nil, newStore(t), pub, Options{Sources: sources(), Message: "update", Push: true})

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Committed)
	assert.Equal(t, []string{"sync", "add .", "commit update", "push"}, pub.calls)

	pub.calls = nil
	pub.dirty = false
	sum, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Committed)
	assert.Equal(t, []string{"sync", "add .", "commit update"}, pub.calls)
}

func TestRunRollsBackOnSaveFailure(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string]string{"https://example.org/algebra.ics": algebraFeed}}
	pub := &fakePublisher{}
	store := newStore(t)
	require.NoError(t, store.EnsureDirs())
	// A directory where the series file belongs makes the write fail.
	require.NoError(t, os.Mkdir(filepath.Join(store.Dir(), "Algebra.json"), 0o755))
	r := NewRunner(fetcher, newParser(t), nil, store, pub, Options{Sources: sources()})

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "save events")
	assert.Equal(t, []string{"sync", "rollback"}, pub.calls)
}

func TestRunStopsWhenSyncFails(t *testing.T) {
	pub := &fakePublisher{syncErr: errors.New("offline")}
	r := NewRunner(&fakeFetcher{}, newParser(t), nil, newStore(t), pub, Options{})

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "sync output repository")
}

func TestRunCancelledDoesNotSave(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newStore(t)
	r := NewRunner(&fakeFetcher{}, newParser(t), nil, store, nil, Options{Sources: sources()})

	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(store.Dir(), eventfiles.IndexFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestTracker(t *testing.T) {
	var tr Tracker
	_, ok := tr.Last()
	assert.False(t, ok)

	st := tr.Record(Summary{Series: 2}, errors.New("boom"))
	assert.Equal(t, 1, st.ConsecutiveFailures)
	assert.Equal(t, "boom", st.Error)
	st = tr.Record(Summary{}, errors.New("boom"))
	assert.Equal(t, 2, st.ConsecutiveFailures)

	st = tr.Record(Summary{Series: 3}, nil)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Empty(t, st.Error)

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Summary.Series)
	assert.False(t, last.FinishedAt.IsZero())
}

func TestTrackedRecordsRuns(t *testing.T) {
	var tr Tracker
	r := NewRunner(&fakeFetcher{}, newParser(t), nil, newStore(t), nil, Options{})
	run := tr.Tracked(r)

	st, err := run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.ConsecutiveFailures)
	_, ok := tr.Last()
	assert.True(t, ok)
}
