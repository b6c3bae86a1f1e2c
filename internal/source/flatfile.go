package source

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"h1b_ingest/internal/models"

	"golang.org/x/net/html/charset"
)

type flatFile struct {
	desc           models.SourceDescriptor
	log            *slog.Logger
	filenameFields map[string]*regexp.Regexp
}

// Fetch yields one table per file matching the location glob, in name order.
func (a *flatFile) Fetch(ctx context.Context) iter.Seq2[*models.RawTable, error] {
	return func(yield func(*models.RawTable, error) bool) {
		matches, err := filepath.Glob(a.desc.Location)
		if err != nil {
			yield(nil, unavailable("bad glob %q: %v", a.desc.Location, err))
			return
		}
		if len(matches) == 0 {
			yield(nil, unavailable("no files match %q", a.desc.Location))
			return
		}
		sort.Strings(matches)

		for _, path := range matches {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			table, err := a.readFile(path)
			if err != nil {
				yield(nil, unavailable("%s: %v", path, err))
				return
			}
			a.log.Debug("file read", "file", path, "rows", len(table.Rows))
			if !yield(table, nil) {
				return
			}
		}
	}
}

func (a *flatFile) readFile(path string) (*models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	utf8Reader, err := charset.NewReader(f, "text/csv")
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(utf8Reader)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	table := &models.RawTable{
		Origin:   path,
		Defaults: withDefaults(a.desc.Defaults, a.fileDefaults(path)),
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return table, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	table.Headers = header

	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// fileDefaults captures fields such as the fiscal year from the file name.
func (a *flatFile) fileDefaults(path string) map[string]string {
	if len(a.filenameFields) == 0 {
		return nil
	}
	base := filepath.Base(path)
	out := make(map[string]string, len(a.filenameFields))
	for field, re := range a.filenameFields {
		m := re.FindStringSubmatch(base)
		switch {
		case len(m) > 1:
			out[field] = m[1]
		case len(m) == 1:
			out[field] = m[0]
		}
	}
	return out
}
