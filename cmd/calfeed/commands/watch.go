package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	appLog "calfeed/internal/log"
	"calfeed/internal/pipeline"
	"calfeed/internal/web"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Download on a schedule",
	Long: `Run one download pass immediately, then again on the configured
refresh schedule (cron syntax, default "@every 100m").

A failed pass is logged and retried at the next tick. When more than
max_consecutive_failures passes fail in a row the command exits non-zero.

If listen is set, a status server exposes /health, /api/status,
/api/series and /api/series/{name}.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// errTooManyFailures is wrapped by the error a watch loop ends with.
var errTooManyFailures = errors.New("too many download errors")

// watchJob turns a tracked run into a cron job and reports on fatal once
// the consecutive failure limit is exceeded.
func watchJob(ctx context.Context, run func(context.Context) (pipeline.Status, error), maxFailures int, fatal chan<- error) func() {
	return func() {
		appLog.Info("starting download")
		st, err := run(ctx)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		appLog.Error("download failed", err, "consecutive_failures", st.ConsecutiveFailures)
		if st.ConsecutiveFailures > maxFailures {
			select {
			case fatal <- fmt.Errorf("%w: %d in a row, last: %w", errTooManyFailures, st.ConsecutiveFailures, err):
			default:
			}
		}
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var tracker pipeline.Tracker
	fatal := make(chan error, 1)
	job := watchJob(ctx, tracker.Tracked(a.runner), cfg.MaxConsecutiveFailures, fatal)

	logger := appLog.CronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(cfg.RefreshCron, job); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
	}

	// serverDone stays nil without a status server so the select ignores it.
	var serverDone chan error
	if cfg.Listen != "" {
		serverDone = make(chan error, 1)
		srv := web.NewServer(cfg, a.store, &tracker)
		go func() {
			serverDone <- srv.ListenAndServe(ctx)
		}()
	}

	job()
	c.Start()
	appLog.Info("scheduler started", "refresh", cfg.RefreshCron)

	var result error
	select {
	case <-ctx.Done():
	case result = <-fatal:
	case err := <-serverDone:
		result = fmt.Errorf("status server: %w", err)
		serverDone = nil
	}

	cancel()
	<-c.Stop().Done()
	if serverDone != nil {
		if err := <-serverDone; err != nil && result == nil {
			result = fmt.Errorf("status server: %w", err)
		}
	}
	appLog.Info("calfeed exiting")
	return result
}
