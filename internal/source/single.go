package source

import (
	"context"
	"iter"
	"log/slog"

	"h1b_ingest/internal/models"
	urlqueue "h1b_ingest/internal/url_queue"
)

// singleTable serves both plain pages and pages fetched through a
// rendering endpoint.
type singleTable struct {
	desc    models.SourceDescriptor
	log     *slog.Logger
	fetcher *fetcher
}

func (a *singleTable) target() string {
	if a.desc.Kind == models.KindRenderedHTML {
		return urlqueue.Expand(a.desc.RenderEndpoint, a.desc.Location)
	}
	return a.desc.Location
}

func (a *singleTable) Fetch(ctx context.Context) iter.Seq2[*models.RawTable, error] {
	return func(yield func(*models.RawTable, error) bool) {
		if !a.fetcher.allowed(ctx, a.desc.Location) {
			yield(nil, unavailable("%s disallowed by robots.txt", a.desc.Location))
			return
		}

		target := a.target()
		doc, err := a.fetcher.document(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			yield(nil, unavailable("%s: %v", target, err))
			return
		}

		table, found := findTable(doc, a.desc.TableSelector)
		if !found {
			selector := a.desc.TableSelector
			if selector == "" {
				selector = "table"
			}
			yield(nil, unavailable("no %q at %s", selector, a.desc.Location))
			return
		}
		table.Origin = a.desc.Location
		table.Defaults = withDefaults(a.desc.Defaults, nil)
		a.log.Debug("table fetched", "url", target, "rows", len(table.Rows))
		yield(table, nil)
	}
}
