// Package normalize turns raw text records into typed, unit-consistent ones.
package normalize

import (
	"fmt"
	"strings"

	"h1b_ingest/internal/models"
)

// Issue is a partial-parse problem that did not reject the record.
type Issue struct {
	Field  string
	Value  string
	Reason string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s=%q: %s", i.Field, i.Value, i.Reason)
}

// Normalizer normalizes records bound for one target table.
type Normalizer struct {
	key map[string]bool
	ord []string
}

func New(uniqueKey []string) *Normalizer {
	n := &Normalizer{key: make(map[string]bool, len(uniqueKey)), ord: uniqueKey}
	for _, k := range uniqueKey {
		n.key[k] = true
	}
	return n
}

// Normalize converts raw into a NormalizedRecord. A record missing a key
// field, or whose numeric key field does not parse, is rejected with an
// error wrapping models.ErrValidationRejected.
func (n *Normalizer) Normalize(raw models.RawRecord) (models.NormalizedRecord, []Issue, error) {
	var rec models.NormalizedRecord
	for _, k := range n.ord {
		if strings.TrimSpace(raw[k]) == "" {
			return rec, nil, fmt.Errorf("%w: missing key field %q", models.ErrValidationRejected, k)
		}
	}

	p := &parser{raw: raw, key: n.key}

	rec.Rank = p.count("rank")
	rec.Employer = p.text("employer", TitleCase)
	rec.JobTitle = p.text("job_title", TitleCase)
	rec.City = p.text("city", TitleCase)
	rec.State = p.text("state", upper)
	rec.ZipCode = p.text("zip_code", CollapseSpaces)
	rec.SocCode = p.text("soc_code", upper)
	rec.LCACount = p.count("lca_count")
	rec.Filings = p.count("filings")
	rec.AvgSalary = p.amount("avg_salary")
	rec.FiscalYear = p.year("fiscal_year")
	rec.DecisionYear = p.year("decision_year")
	rec.CaseStatus = p.text("case_status", caseStatus)
	p.wage(&rec)
	rec.ApprovalStatus = p.approval(rec.CaseStatus)

	if p.err != nil {
		return models.NormalizedRecord{}, p.issues, p.err
	}
	return rec, p.issues, nil
}

type parser struct {
	raw    models.RawRecord
	key    map[string]bool
	issues []Issue
	err    error
}

func (p *parser) flag(field, value, reason string) {
	p.issues = append(p.issues, Issue{Field: field, Value: value, Reason: reason})
}

func (p *parser) fail(field, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: key field %s=%q: %v", models.ErrValidationRejected, field, value, err)
	}
}

func (p *parser) lookup(field string) (string, bool) {
	v, ok := p.raw[field]
	if !ok {
		return "", false
	}
	return v, true
}

func (p *parser) text(field string, fn func(string) string) *string {
	v, ok := p.lookup(field)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	s := fn(v)
	return &s
}

func (p *parser) count(field string) *int {
	v, ok := p.lookup(field)
	if !ok {
		return nil
	}
	n, err := ParseCount(v)
	if err != nil {
		if p.key[field] {
			p.fail(field, v, err)
			return nil
		}
		p.flag(field, v, err.Error())
	}
	return &n
}

func (p *parser) amount(field string) *float64 {
	v, ok := p.lookup(field)
	if !ok {
		return nil
	}
	f, err := ParseAmount(v)
	if err != nil {
		if p.key[field] {
			p.fail(field, v, err)
			return nil
		}
		p.flag(field, v, err.Error())
	}
	return &f
}

func (p *parser) year(field string) *int {
	v, ok := p.lookup(field)
	if !ok {
		return nil
	}
	y, err := ParseYear(v)
	if err != nil {
		if p.key[field] {
			p.fail(field, v, err)
			return nil
		}
		p.flag(field, v, err.Error())
	}
	return &y
}

func (p *parser) wage(rec *models.NormalizedRecord) {
	rawUnit, hasUnit := p.lookup("wage_unit")
	hasUnit = hasUnit && strings.TrimSpace(rawUnit) != ""
	if hasUnit {
		u := models.WageUnit(canonicalUnit(rawUnit))
		rec.WageUnit = &u
	}

	rec.WageOffered = p.amount("wage_offered")
	if rec.WageOffered == nil {
		rec.WageAnnual = p.amount("wage_annual")
		return
	}

	if !hasUnit {
		p.flag("wage_unit", "", "missing unit, offered wage passed through")
		annual := *rec.WageOffered
		rec.WageAnnual = &annual
		return
	}
	annual, known := Annualize(*rec.WageOffered, string(*rec.WageUnit))
	if !known {
		p.flag("wage_unit", rawUnit, "unrecognized unit, offered wage passed through")
	}
	rec.WageAnnual = &annual
}

var approvalStatuses = map[string]models.ApprovalStatus{
	"APPROVED":  models.Approved,
	"APPROVAL":  models.Approved,
	"CERTIFIED": models.Approved,
	"ELIGIBLE":  models.Approved,
	"SELECTED":  models.Approved,
	"DENIED":    models.Denied,
	"DENIAL":    models.Denied,
	"REJECTED":  models.Denied,
	"UNKNOWN":   models.Unknown,
}

func (p *parser) approval(caseStatus *string) *models.ApprovalStatus {
	var s models.ApprovalStatus
	if v, ok := p.lookup("approval_status"); ok {
		s = approvalStatus(v)
		return &s
	}

	approvals, hasApprovals := p.lookup("initial_approvals")
	_, hasDenials := p.lookup("initial_denials")
	switch {
	case hasApprovals:
		n, err := ParseCount(approvals)
		if err != nil {
			p.flag("initial_approvals", approvals, err.Error())
		}
		s = models.Denied
		if n > 0 {
			s = models.Approved
		}
	case hasDenials:
		s = models.Denied
	case caseStatus != nil:
		switch *caseStatus {
		case "Certified":
			s = models.Approved
		case "Denied":
			s = models.Denied
		default:
			s = models.Unknown
		}
	default:
		return nil
	}
	return &s
}

func approvalStatus(v string) models.ApprovalStatus {
	if s, ok := approvalStatuses[upper(v)]; ok {
		return s
	}
	return models.Unknown
}
