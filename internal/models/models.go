package models

import (
	"strconv"
	"time"
)

type SourceKind string

const (
	KindPaginatedHTML   SourceKind = "paginated_html"
	KindSingleTableHTML SourceKind = "single_table_html"
	KindRenderedHTML    SourceKind = "rendered_html"
	KindFlatFile        SourceKind = "flat_file"
)

func (k SourceKind) Valid() bool {
	switch k {
	case KindPaginatedHTML, KindSingleTableHTML, KindRenderedHTML, KindFlatFile:
		return true
	}
	return false
}

// SourceDescriptor is the immutable description of one external origin.
type SourceDescriptor struct {
	ID             string
	Kind           SourceKind
	Location       string
	Target         string
	ColumnRename   map[string]string
	DropColumns    []string
	MaxPages       int
	PageParam      string
	TableSelector  string
	RenderEndpoint string
	RequestDelay   time.Duration
	Defaults       map[string]string
	FilenameFields map[string]string
}

// RawTable is one parsed page or file.
type RawTable struct {
	Origin   string
	Headers  []string
	Rows     [][]string
	Defaults map[string]string
}

// RawRecord maps canonical field names to raw cell text.
type RawRecord map[string]string

type WageUnit string

const (
	WageYear WageUnit = "YEAR"
	WageHour WageUnit = "HOUR"
	WageWeek WageUnit = "WEEK"
)

type ApprovalStatus string

const (
	Approved ApprovalStatus = "Approved"
	Denied   ApprovalStatus = "Denied"
	Unknown  ApprovalStatus = "Unknown"
)

// NormalizedRecord holds typed values. Nil fields were absent from the source.
type NormalizedRecord struct {
	Rank           *int
	Employer       *string
	JobTitle       *string
	City           *string
	State          *string
	ZipCode        *string
	SocCode        *string
	LCACount       *int
	Filings        *int
	AvgSalary      *float64
	WageOffered    *float64
	WageUnit       *WageUnit
	WageAnnual     *float64
	CaseStatus     *string
	ApprovalStatus *ApprovalStatus
	FiscalYear     *int
	DecisionYear   *int
	LastUpdated    time.Time
}

// Value returns the column value for the store, or nil when unset.
func (r *NormalizedRecord) Value(column string) any {
	switch column {
	case "rank":
		return derefInt(r.Rank)
	case "employer":
		return derefString(r.Employer)
	case "job_title":
		return derefString(r.JobTitle)
	case "city":
		return derefString(r.City)
	case "state":
		return derefString(r.State)
	case "zip_code":
		return derefString(r.ZipCode)
	case "soc_code":
		return derefString(r.SocCode)
	case "lca_count":
		return derefInt(r.LCACount)
	case "filings":
		return derefInt(r.Filings)
	case "avg_salary":
		return derefFloat(r.AvgSalary)
	case "wage_offered":
		return derefFloat(r.WageOffered)
	case "wage_unit":
		if r.WageUnit == nil {
			return nil
		}
		return string(*r.WageUnit)
	case "wage_annual":
		return derefFloat(r.WageAnnual)
	case "case_status":
		return derefString(r.CaseStatus)
	case "approval_status":
		if r.ApprovalStatus == nil {
			return nil
		}
		return string(*r.ApprovalStatus)
	case "fiscal_year":
		return derefInt(r.FiscalYear)
	case "decision_year":
		return derefInt(r.DecisionYear)
	case "last_updated":
		return r.LastUpdated
	}
	return nil
}

// Raw renders the record back into canonical text fields.
func (r *NormalizedRecord) Raw() RawRecord {
	raw := RawRecord{}
	for _, f := range Fields {
		switch v := r.Value(f).(type) {
		case nil:
		case int64:
			raw[f] = strconv.FormatInt(v, 10)
		case float64:
			raw[f] = strconv.FormatFloat(v, 'f', -1, 64)
		case string:
			raw[f] = v
		}
	}
	return raw
}

// Fields lists the canonical field names a NormalizedRecord can carry.
var Fields = []string{
	"rank", "employer", "job_title", "city", "state", "zip_code", "soc_code",
	"lca_count", "filings", "avg_salary", "wage_offered", "wage_unit", "wage_annual",
	"case_status", "approval_status", "fiscal_year", "decision_year",
}

func derefInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func derefFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func derefString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

type WriteCounts struct {
	Inserted int `bson:"inserted" json:"inserted"`
	Updated  int `bson:"updated" json:"updated"`
	Rejected int `bson:"rejected" json:"rejected"`
}

func (c *WriteCounts) Add(o WriteCounts) {
	c.Inserted += o.Inserted
	c.Updated += o.Updated
	c.Rejected += o.Rejected
}

type SourceState string

const (
	StateIdle        SourceState = "idle"
	StateFetching    SourceState = "fetching"
	StateExtracting  SourceState = "extracting"
	StateNormalizing SourceState = "normalizing"
	StateWriting     SourceState = "writing"
	StateDone        SourceState = "done"
	StateFailed      SourceState = "failed"
)

type SourceReport struct {
	SourceID       string        `bson:"source_id"`
	Target         string        `bson:"target"`
	State          SourceState   `bson:"state"`
	Tables         int           `bson:"tables"`
	RowsFetched    int           `bson:"rows_fetched"`
	RowsMalformed  int           `bson:"rows_malformed"`
	RowsNormalized int           `bson:"rows_normalized"`
	RowsRejected   int           `bson:"rows_rejected"`
	PartialParses  int           `bson:"partial_parses"`
	Written        WriteCounts   `bson:"written"`
	Error          string        `bson:"error,omitempty"`
	ErrorKind      string        `bson:"error_kind,omitempty"`
	Elapsed        time.Duration `bson:"elapsed"`
}

type PassReport struct {
	RunID     string          `bson:"_id"`
	StartedAt time.Time       `bson:"started_at"`
	Elapsed   time.Duration   `bson:"elapsed"`
	Sources   []*SourceReport `bson:"sources"`
}

// Failed reports whether any source ended in the failed state.
func (p *PassReport) Failed() bool {
	for _, s := range p.Sources {
		if s.State == StateFailed {
			return true
		}
	}
	return false
}

func (p *PassReport) Totals() (fetched, normalized, rejected int, written WriteCounts) {
	for _, s := range p.Sources {
		fetched += s.RowsFetched
		normalized += s.RowsNormalized
		rejected += s.RowsRejected
		written.Add(s.Written)
	}
	return
}

// Source returns the report for id, or nil.
func (p *PassReport) Source(id string) *SourceReport {
	for _, s := range p.Sources {
		if s.SourceID == id {
			return s
		}
	}
	return nil
}
