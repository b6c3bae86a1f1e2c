package app

import (
	"context"
	"fmt"
	"log/slog"

	"h1b_ingest/internal/models"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own messages through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}

// Run executes a single pass when schedule is empty. Otherwise it runs a
// pass on every tick of the cron schedule until ctx is done. A tick that
// fires while the previous pass is still running is skipped.
func (a *IngestApp) Run(ctx context.Context, schedule string) (*models.PassReport, error) {
	if schedule == "" {
		return a.RunPass(ctx), nil
	}

	logger := cronLogger{log: a.log.With("component", "cron")}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	var last *models.PassReport
	if _, err := c.AddFunc(schedule, func() { last = a.RunPass(ctx) }); err != nil {
		return nil, fmt.Errorf("%w: bad schedule %q: %v", models.ErrConfiguration, schedule, err)
	}

	a.log.Info("scheduled ingestion started", "schedule", schedule, "sources", len(a.sources))
	c.Start()
	<-ctx.Done()

	a.log.Info("stopping scheduler, waiting for running pass")
	<-c.Stop().Done()
	return last, nil
}
