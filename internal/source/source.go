// Package source obtains raw tables from paginated pages, single pages and
// flat files.
package source

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"path/filepath"
	"regexp"
	"time"

	"h1b_ingest/internal/models"
	urlqueue "h1b_ingest/internal/url_queue"
)

// Adapter yields the raw tables of one source. The sequence is lazy and
// finite; ranging over it again re-issues every request. An error element
// ends the sequence.
type Adapter interface {
	Fetch(ctx context.Context) iter.Seq2[*models.RawTable, error]
}

type Options struct {
	Logger        *slog.Logger
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	RespectRobots bool
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
}

// New builds the adapter for desc. Descriptor problems are returned as
// errors wrapping models.ErrConfiguration.
func New(desc models.SourceDescriptor, opts Options) (Adapter, error) {
	opts.setDefaults()
	log := opts.Logger.With("source", desc.ID)

	if desc.Location == "" {
		return nil, fmt.Errorf("%w: source %q has no location", models.ErrConfiguration, desc.ID)
	}

	switch desc.Kind {
	case models.KindPaginatedHTML:
		if _, err := urlqueue.NewPageQueue(desc.Location, desc.PageParam, desc.MaxPages); err != nil {
			return nil, fmt.Errorf("%w: source %q: %v", models.ErrConfiguration, desc.ID, err)
		}
		return &paginated{desc: desc, log: log, fetcher: newFetcher(desc.ID, opts)}, nil
	case models.KindSingleTableHTML:
		return &singleTable{desc: desc, log: log, fetcher: newFetcher(desc.ID, opts)}, nil
	case models.KindRenderedHTML:
		if desc.RenderEndpoint == "" {
			return nil, fmt.Errorf("%w: source %q has no render_endpoint", models.ErrConfiguration, desc.ID)
		}
		return &singleTable{desc: desc, log: log, fetcher: newFetcher(desc.ID, opts)}, nil
	case models.KindFlatFile:
		if _, err := filepath.Match(desc.Location, ""); err != nil {
			return nil, fmt.Errorf("%w: source %q: bad glob %q: %v", models.ErrConfiguration, desc.ID, desc.Location, err)
		}
		patterns := make(map[string]*regexp.Regexp, len(desc.FilenameFields))
		for field, expr := range desc.FilenameFields {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%w: source %q: filename field %s: %v", models.ErrConfiguration, desc.ID, field, err)
			}
			patterns[field] = re
		}
		return &flatFile{desc: desc, log: log, filenameFields: patterns}, nil
	}
	return nil, fmt.Errorf("%w: source %q has unknown kind %q", models.ErrConfiguration, desc.ID, desc.Kind)
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrSourceUnavailable, fmt.Sprintf(format, args...))
}

func withDefaults(base map[string]string, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
