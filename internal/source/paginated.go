package source

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"h1b_ingest/internal/models"
	urlqueue "h1b_ingest/internal/url_queue"

	"golang.org/x/time/rate"
)

type paginated struct {
	desc    models.SourceDescriptor
	log     *slog.Logger
	fetcher *fetcher
}

func politeLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Fetch requests page 1, 2, ... and stops at the first page without a
// table or without data rows, or after MaxPages pages. A failed first page
// is reported as ErrSourceUnavailable; a later failure ends pagination.
func (a *paginated) Fetch(ctx context.Context) iter.Seq2[*models.RawTable, error] {
	return func(yield func(*models.RawTable, error) bool) {
		queue, err := urlqueue.NewPageQueue(a.desc.Location, a.desc.PageParam, a.desc.MaxPages)
		if err != nil {
			yield(nil, err)
			return
		}
		if !a.fetcher.allowed(ctx, a.desc.Location) {
			yield(nil, unavailable("%s disallowed by robots.txt", a.desc.Location))
			return
		}

		limiter := politeLimiter(a.desc.RequestDelay)
		for {
			pageURL, page, ok := queue.Next()
			if !ok {
				a.log.Debug("page cap reached", "max_pages", a.desc.MaxPages)
				return
			}
			if err := limiter.Wait(ctx); err != nil {
				yield(nil, err)
				return
			}

			doc, err := a.fetcher.document(ctx, pageURL)
			if err != nil {
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
				if page == 1 {
					yield(nil, unavailable("%s: %v", pageURL, err))
					return
				}
				a.log.Warn("pagination stopped", "url", pageURL, "page", page, "error", err)
				return
			}

			table, found := findTable(doc, a.desc.TableSelector)
			if !found || len(table.Rows) == 0 {
				a.log.Debug("no more data", "url", pageURL, "page", page)
				return
			}
			table.Origin = pageURL
			table.Defaults = withDefaults(a.desc.Defaults, nil)
			a.log.Debug("page fetched", "url", pageURL, "page", page, "rows", len(table.Rows))
			if !yield(table, nil) {
				return
			}
		}
	}
}
