package db

import (
	"fmt"
	"slices"
	"sort"

	"h1b_ingest/internal/models"
)

// TargetTable describes where one source's records land. Only the managed
// columns are overwritten when a key already exists.
type TargetTable struct {
	Name           string
	UniqueKey      []string
	ManagedColumns []string
}

// Columns returns the key columns followed by the managed columns.
func (t TargetTable) Columns() []string {
	return append(slices.Clone(t.UniqueKey), t.ManagedColumns...)
}

var rankingColumns = []string{"filings", "avg_salary"}

var targetTables = map[string]TargetTable{
	"h1b_visa_sponsorships": {
		Name:           "h1b_visa_sponsorships",
		UniqueKey:      []string{"rank"},
		ManagedColumns: []string{"employer", "lca_count", "avg_salary"},
	},
	"h1b_top_companies": {
		Name:           "h1b_top_companies",
		UniqueKey:      []string{"employer"},
		ManagedColumns: rankingColumns,
	},
	"h1b_highest_paid_companies": {
		Name:           "h1b_highest_paid_companies",
		UniqueKey:      []string{"employer"},
		ManagedColumns: rankingColumns,
	},
	"h1b_top_jobs": {
		Name:           "h1b_top_jobs",
		UniqueKey:      []string{"job_title"},
		ManagedColumns: rankingColumns,
	},
	"h1b_highest_paid_jobs": {
		Name:           "h1b_highest_paid_jobs",
		UniqueKey:      []string{"job_title"},
		ManagedColumns: rankingColumns,
	},
	"h1b_top_cities": {
		Name:           "h1b_top_cities",
		UniqueKey:      []string{"city"},
		ManagedColumns: rankingColumns,
	},
	"h1b_highest_paid_cities": {
		Name:           "h1b_highest_paid_cities",
		UniqueKey:      []string{"city"},
		ManagedColumns: rankingColumns,
	},
	"h1b_visa_data": {
		Name:           "h1b_visa_data",
		UniqueKey:      []string{"fiscal_year", "employer", "state", "city"},
		ManagedColumns: []string{"zip_code", "approval_status"},
	},
	"lca_disclosures": {
		Name:           "lca_disclosures",
		UniqueKey:      []string{"employer", "job_title", "city", "state", "decision_year"},
		ManagedColumns: []string{"soc_code", "case_status", "approval_status", "wage_offered", "wage_unit", "wage_annual"},
	},
}

func LookupTable(name string) (TargetTable, error) {
	t, ok := targetTables[name]
	if !ok {
		return TargetTable{}, fmt.Errorf("%w: unknown target table %q", models.ErrConfiguration, name)
	}
	return t, nil
}

func TableNames() []string {
	names := make([]string, 0, len(targetTables))
	for n := range targetTables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type columnType int

const (
	colText columnType = iota
	colInt
	colFloat
)

var columnTypes = map[string]columnType{
	"rank":          colInt,
	"lca_count":     colInt,
	"filings":       colInt,
	"fiscal_year":   colInt,
	"decision_year": colInt,
	"avg_salary":    colFloat,
	"wage_offered":  colFloat,
	"wage_annual":   colFloat,
}
