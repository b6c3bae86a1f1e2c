package app

import (
	"context"
	"log/slog"
	"time"

	"h1b_ingest/internal/config"
	"h1b_ingest/internal/db"
	"h1b_ingest/internal/extract"
	"h1b_ingest/internal/metrics"
	"h1b_ingest/internal/models"
	"h1b_ingest/internal/normalize"
	"h1b_ingest/internal/source"
)

const writeTimeout = 2 * time.Minute

// SourcePipeline drives one source through fetch, extract, normalize and
// write.
type SourcePipeline struct {
	desc       models.SourceDescriptor
	table      db.TargetTable
	adapter    source.Adapter
	rules      extract.Rules
	normalizer *normalize.Normalizer
	store      Writer
	log        *slog.Logger
	configErr  error
}

func newSourcePipeline(cfg *config.IngestConfig, sc config.SourceConfig, log *slog.Logger, store Writer) *SourcePipeline {
	desc := cfg.Descriptor(sc)
	p := &SourcePipeline{
		desc:  desc,
		store: store,
		log:   log.With("source", desc.ID),
		rules: extract.Rules{Rename: desc.ColumnRename, Drop: desc.DropColumns},
	}

	table, err := db.LookupTable(desc.Target)
	if err != nil {
		p.configErr = err
		return p
	}
	p.table = table
	p.normalizer = normalize.New(table.UniqueKey)

	p.adapter, p.configErr = source.New(desc, source.Options{
		Logger:        log,
		UserAgent:     cfg.Logic.UserAgent,
		Timeout:       cfg.Timeout(),
		MaxRetries:    cfg.Logic.MaxRetries,
		RespectRobots: cfg.Logic.RespectRobots,
	})
	return p
}

func (p *SourcePipeline) transition(report *models.SourceReport, state models.SourceState) {
	if report.State != state {
		p.log.Debug("state", "from", report.State, "to", state)
		report.State = state
	}
}

func (p *SourcePipeline) fail(report *models.SourceReport, err error) {
	report.State = models.StateFailed
	report.Error = err.Error()
	report.ErrorKind = models.ErrorKind(err)
}

// Run processes the source page by page. Each fetched table is written as
// one batch, so a cancelled context stops further fetching but never cuts
// a batch short.
func (p *SourcePipeline) Run(ctx context.Context) *models.SourceReport {
	start := time.Now()
	report := &models.SourceReport{SourceID: p.desc.ID, Target: p.desc.Target, State: models.StateIdle}
	defer func() {
		report.Elapsed = time.Since(start)
		p.observe(report)
	}()

	if p.configErr != nil {
		p.fail(report, p.configErr)
		return report
	}

	p.transition(report, models.StateFetching)
	for table, err := range p.adapter.Fetch(ctx) {
		if err != nil {
			p.fail(report, err)
			return report
		}
		report.Tables++
		report.RowsFetched += len(table.Rows)

		p.transition(report, models.StateExtracting)
		raws, stats := extract.Records(table, p.rules)
		report.RowsMalformed += stats.Malformed
		if stats.Malformed > 0 {
			p.log.Warn("malformed rows skipped", "origin", table.Origin, "count", stats.Malformed, "error", models.ErrMalformedRow)
		}

		p.transition(report, models.StateNormalizing)
		batch := make([]models.NormalizedRecord, 0, len(raws))
		for _, raw := range raws {
			rec, issues, err := p.normalizer.Normalize(raw)
			report.PartialParses += len(issues)
			for _, issue := range issues {
				p.log.Debug("partial parse", "origin", table.Origin, "issue", issue.String())
			}
			if err != nil {
				report.RowsRejected++
				p.log.Debug("record rejected", "origin", table.Origin, "error", err)
				continue
			}
			batch = append(batch, rec)
		}
		report.RowsNormalized += len(batch)

		p.transition(report, models.StateWriting)
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		counts, err := p.store.Write(writeCtx, p.table, batch)
		cancel()
		if err != nil {
			p.fail(report, err)
			return report
		}
		report.Written.Add(counts)
		report.RowsRejected += counts.Rejected

		p.transition(report, models.StateFetching)
	}

	report.State = models.StateDone
	return report
}

func (p *SourcePipeline) observe(report *models.SourceReport) {
	id := p.desc.ID
	metrics.SourceRunsTotal.WithLabelValues(id, string(report.State)).Inc()
	metrics.SourceDuration.WithLabelValues(id).Observe(report.Elapsed.Seconds())
	for stage, n := range map[string]int{
		"fetched":    report.RowsFetched,
		"malformed":  report.RowsMalformed,
		"normalized": report.RowsNormalized,
		"rejected":   report.RowsRejected,
		"partial":    report.PartialParses,
		"inserted":   report.Written.Inserted,
		"updated":    report.Written.Updated,
	} {
		metrics.RowsTotal.WithLabelValues(id, stage).Add(float64(n))
	}
}
