package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"h1b_ingest/internal/metrics"
	urlqueue "h1b_ingest/internal/url_queue"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly"
	"github.com/temoto/robotstxt"
)

const MaxHops = 15

var errCaptcha = errors.New("captcha detected")

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// fetcher downloads HTML documents for one source.
type fetcher struct {
	source     string
	log        *slog.Logger
	collector  *colly.Collector
	client     *http.Client
	userAgent  string
	maxRetries int
	retryBase  time.Duration
	robots     bool

	robotsOnce  sync.Once
	robotsGroup *robotstxt.Group
}

func newFetcher(source string, opts Options) *fetcher {
	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(opts.Timeout)

	return &fetcher{
		source:     source,
		log:        opts.Logger.With("source", source),
		collector:  collector,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		robots:     opts.RespectRobots,
		client: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxHops {
					return fmt.Errorf("stopped after %d redirects", MaxHops)
				}
				return nil
			},
		},
	}
}

// document fetches target, retrying transport errors, 429 and 5xx.
func (f *fetcher) document(ctx context.Context, target string) (*goquery.Document, error) {
	var doc *goquery.Document
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		d, err := f.get(target)
		if err != nil {
			var se *statusError
			if errors.Is(err, errCaptcha) || (errors.As(err, &se) && !se.retryable()) {
				return backoff.Permanent(err)
			}
			f.log.Debug("fetch failed, retrying", "url", target, "error", err)
			return err
		}
		doc = d
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.retryBase
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(max(f.maxRetries, 0))), ctx)

	if err := backoff.Retry(op, b); err != nil {
		metrics.PageFetchesTotal.WithLabelValues(f.source, "error").Inc()
		return nil, err
	}
	metrics.PageFetchesTotal.WithLabelValues(f.source, "ok").Inc()
	return doc, nil
}

func (f *fetcher) get(target string) (*goquery.Document, error) {
	c := f.collector.Clone()

	var (
		status int
		body   []byte
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Referer", "https://www.google.com/")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(target); err != nil {
		if status != 0 && !success(status) {
			return nil, &statusError{code: status}
		}
		return nil, err
	}
	if !success(status) {
		return nil, &statusError{code: status}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if doc.Find("table").Length() == 0 && looksLikeCaptcha(body) {
		return nil, errCaptcha
	}
	return doc, nil
}

// success reports whether code is any 2xx status.
func success(code int) bool {
	return code >= 200 && code < 300
}

func looksLikeCaptcha(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "captcha") || strings.Contains(lower, "security check")
}

// allowed reports whether robots.txt permits fetching target. The robots
// file is loaded once per fetcher; when it cannot be loaded everything is
// allowed.
func (f *fetcher) allowed(ctx context.Context, target string) bool {
	if !f.robots {
		return true
	}
	f.robotsOnce.Do(func() {
		f.robotsGroup = f.loadRobots(ctx, target)
	})
	if f.robotsGroup == nil {
		return true
	}
	_, path, err := urlqueue.RobotsURL(target)
	if err != nil {
		return true
	}
	return f.robotsGroup.Test(path)
}

func (f *fetcher) loadRobots(ctx context.Context, target string) *robotstxt.Group {
	robotsURL, _, err := urlqueue.RobotsURL(target)
	if err != nil {
		f.log.Warn("can't build robots.txt url", "url", target, "error", err)
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("robots.txt unavailable, ignoring", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		f.log.Warn("can't parse robots.txt", "url", robotsURL, "status", resp.StatusCode, "error", err)
		return nil
	}
	f.log.Debug("robots.txt loaded", "url", robotsURL)
	return data.FindGroup(f.userAgent)
}
