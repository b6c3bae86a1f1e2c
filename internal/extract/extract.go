// Package extract maps parsed tables onto canonical raw records.
package extract

import (
	"strings"

	"h1b_ingest/internal/models"
)

// Rules controls header renaming and dropping for one source.
type Rules struct {
	Rename map[string]string
	Drop   []string
}

// Stats counts what happened to the rows of one table.
type Stats struct {
	Rows      int
	Extracted int
	Malformed int
}

// HeaderKey lowercases a header and replaces spaces with underscores,
// so "# of H-1B Filings" becomes "#_of_h-1b_filings".
func HeaderKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.Join(strings.Fields(h), " ")), " ", "_")
}

func (r Rules) canonical(header string) string {
	h := strings.TrimSpace(header)
	if v, ok := r.Rename[h]; ok {
		return v
	}
	if v, ok := r.Rename[HeaderKey(h)]; ok {
		return v
	}
	return h
}

func (r Rules) dropped(raw, canonical string) bool {
	for _, d := range r.Drop {
		if d == raw || d == canonical || d == HeaderKey(raw) {
			return true
		}
	}
	return false
}

// Records returns one RawRecord per well-formed data row. Rows whose cell
// count differs from the header count are skipped and counted as malformed.
func Records(table *models.RawTable, rules Rules) ([]models.RawRecord, Stats) {
	stats := Stats{Rows: len(table.Rows)}

	names := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		c := rules.canonical(h)
		if rules.dropped(strings.TrimSpace(h), c) {
			continue
		}
		names[i] = c
	}

	records := make([]models.RawRecord, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) != len(table.Headers) {
			stats.Malformed++
			continue
		}
		rec := make(models.RawRecord, len(names)+len(table.Defaults))
		for i, cell := range row {
			if names[i] == "" {
				continue
			}
			rec[names[i]] = cell
		}
		for k, v := range table.Defaults {
			if _, ok := rec[k]; !ok {
				rec[k] = v
			}
		}
		records = append(records, rec)
	}
	stats.Extracted = len(records)
	return records, stats
}
