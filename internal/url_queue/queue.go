package urlqueue

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// PageQueue hands out the page URLs of one paginated report in order.
type PageQueue struct {
	base     *url.URL
	param    string
	next     int
	MaxPages int
}

func NewPageQueue(location, param string, maxPages int) (*PageQueue, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("location %q is not an absolute URL", location)
	}
	if param == "" {
		param = "P"
	}
	return &PageQueue{base: u, param: param, next: 1, MaxPages: maxPages}, nil
}

// Next returns the next page URL and its number. It reports false once
// MaxPages pages have been handed out; MaxPages <= 0 means no cap.
func (q *PageQueue) Next() (string, int, bool) {
	if q.MaxPages > 0 && q.next > q.MaxPages {
		return "", 0, false
	}
	n := q.next
	q.next++
	return PageURL(q.base, q.param, n), n, true
}

// PageURL sets param=n on base, keeping any other query parameters.
func PageURL(base *url.URL, param string, n int) string {
	u := *base
	q := u.Query()
	q.Set(param, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String()
}

// Expand replaces the {url} placeholder of a rendering endpoint template.
func Expand(template, target string) string {
	return strings.ReplaceAll(template, "{url}", url.QueryEscape(target))
}
