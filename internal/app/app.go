package app

import (
	"context"
	"errors"
	"log/slog"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/db"
	"h1b_ingest/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Writer persists normalized records into a target table.
type Writer interface {
	Write(ctx context.Context, t db.TargetTable, records []models.NormalizedRecord) (models.WriteCounts, error)
}

// RunRecorder keeps pass reports, e.g. db.MongoDB.
type RunRecorder interface {
	SaveRun(ctx context.Context, report *models.PassReport) error
}

type IngestApp struct {
	config  *config.IngestConfig
	log     *slog.Logger
	store   Writer
	history RunRecorder
	clock   clockwork.Clock
	sources []*SourcePipeline
}

type Option func(*IngestApp)

func WithHistory(h RunRecorder) Option {
	return func(a *IngestApp) { a.history = h }
}

func WithClock(c clockwork.Clock) Option {
	return func(a *IngestApp) { a.clock = c }
}

// NewIngestApp builds one pipeline per configured source. A source with a
// bad descriptor still gets a pipeline; it reports its configuration error
// when the pass runs.
func NewIngestApp(cfg *config.IngestConfig, log *slog.Logger, store Writer, opts ...Option) (*IngestApp, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}

	a := &IngestApp{
		config: cfg,
		log:    log,
		store:  store,
		clock:  clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(a)
	}

	for _, sc := range cfg.Sources {
		p := newSourcePipeline(cfg, sc, log, store)
		if p.configErr != nil {
			log.Error("source misconfigured", "source", sc.ID, "error", p.configErr)
		}
		a.sources = append(a.sources, p)
	}
	return a, nil
}

// RunPass runs every configured source once and returns the per-source
// report in configured order. Failures are isolated to their source.
func (a *IngestApp) RunPass(ctx context.Context) *models.PassReport {
	report := &models.PassReport{
		RunID:     uuid.NewString(),
		StartedAt: a.clock.Now().UTC(),
		Sources:   make([]*models.SourceReport, len(a.sources)),
	}
	log := a.log.With("run_id", report.RunID)

	if timeout := a.config.RunTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	workers := a.config.Logic.MaxConcurrentWorkers
	log.Info("starting ingestion pass", "sources", len(a.sources), "workers", workers)

	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, p := range a.sources {
		g.Go(func() error {
			report.Sources[i] = p.Run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report.Elapsed = a.clock.Since(report.StartedAt)
	a.logSummary(log, report)

	if a.history != nil {
		if err := a.history.SaveRun(context.WithoutCancel(ctx), report); err != nil {
			log.Warn("failed to save run history", "error", err)
		}
	}
	return report
}

func (a *IngestApp) logSummary(log *slog.Logger, report *models.PassReport) {
	for _, s := range report.Sources {
		attrs := []any{
			"source", s.SourceID,
			"target", s.Target,
			"state", s.State,
			"tables", s.Tables,
			"fetched", s.RowsFetched,
			"malformed", s.RowsMalformed,
			"normalized", s.RowsNormalized,
			"rejected", s.RowsRejected,
			"partial", s.PartialParses,
			"inserted", s.Written.Inserted,
			"updated", s.Written.Updated,
			"elapsed", s.Elapsed,
		}
		if s.State == models.StateFailed {
			log.Warn("source failed", append(attrs, "kind", s.ErrorKind, "error", s.Error)...)
			continue
		}
		log.Info("source done", attrs...)
	}

	fetched, normalized, rejected, written := report.Totals()
	log.Info("ingestion pass finished",
		"elapsed", report.Elapsed,
		"fetched", fetched,
		"normalized", normalized,
		"rejected", rejected,
		"inserted", written.Inserted,
		"updated", written.Updated,
		"failed", report.Failed(),
	)
}
