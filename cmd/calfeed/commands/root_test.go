package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calfeed/internal/pipeline"
)

const feedBody = "BEGIN:VCALENDAR\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:BTI1/PR1\r\n" +
	"LOCATION:Raum 7 Stand 01-10-2020\r\n" +
	"DESCRIPTION:HTM\r\n" +
	"UID:42\r\n" +
	"DTSTART;TZID=Europe/Berlin:20200605T090000\r\n" +
	"DTEND;TZID=Europe/Berlin:20200605T103000\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = "calfeed.yaml"
		logLevel = ""
	})
	err := Execute()
	return buf.String(), err
}

func TestRootCommandShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "watch")
	assert.Contains(t, out, "run")
}

func TestRootCommandRejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, "--unknown-flag", "value")
	assert.Error(t, err)
}

func TestRunCommandWritesEventFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pr1.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(feedBody))
	}))
	defer srv.Close()

	root := t.TempDir()
	out := filepath.Join(root, "eventfiles")
	cfgPath := filepath.Join(root, "calfeed.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
output_dir: `+out+`
cache_dir: `+filepath.Join(root, "cache")+`
http:
  request_delay: 1ms
  charset: UTF-8
feeds:
  - id: pr1
    url: `+srv.URL+`/pr1.ics
  - id: missing
    url: `+srv.URL+`/missing.ics
`), 0o600))

	_, err := execute(t, "run", "--config", cfgPath, "--log-level", "error")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "BTI1-PR1.json"))
	require.NoError(t, err)
	assert.Equal(t, `[
  {
    "Name": "BTI1/PR1",
    "Location": "Raum 7",
    "Description": "Dozent: HTM",
    "StartTime": "2020-06-05T09:00:00+02:00",
    "EndTime": "2020-06-05T10:30:00+02:00"
  }
]
`, string(data))

	index, err := os.ReadFile(filepath.Join(out, "all.txt"))
	require.NoError(t, err)
	assert.Equal(t, "BTI1/PR1\n", string(index))
}

func TestRunCommandFailsOnBrokenCuratedEvents(t *testing.T) {
	root := t.TempDir()
	curatedDir := filepath.Join(root, "events")
	require.NoError(t, os.MkdirAll(curatedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(curatedDir, "a.json"), []byte("{"), 0o644))

	cfgPath := filepath.Join(root, "calfeed.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
output_dir: `+filepath.Join(root, "eventfiles")+`
cache_dir: `+filepath.Join(root, "cache")+`
curated:
  dir: `+curatedDir+`
`), 0o600))

	_, err := execute(t, "run", "--config", cfgPath, "--log-level", "error")
	assert.ErrorContains(t, err, "load curated events")
}

func TestWatchJobStopsAfterTooManyFailures(t *testing.T) {
	var tr pipeline.Tracker
	failing := func(context.Context) (pipeline.Status, error) {
		return tr.Record(pipeline.Summary{}, errors.New("offline")), errors.New("offline")
	}
	fatal := make(chan error, 1)
	job := watchJob(context.Background(), failing, 3, fatal)

	for i := 0; i < 3; i++ {
		job()
	}
	assert.Len(t, fatal, 0)

	job()
	require.Len(t, fatal, 1)
	err := <-fatal
	assert.ErrorIs(t, err, errTooManyFailures)
	assert.ErrorContains(t, err, "offline")
}

func TestWatchJobIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fatal := make(chan error, 1)
	job := watchJob(ctx, func(ctx context.Context) (pipeline.Status, error) {
		return pipeline.Status{ConsecutiveFailures: 10}, ctx.Err()
	}, 3, fatal)
	job()
	assert.Len(t, fatal, 0)
}
