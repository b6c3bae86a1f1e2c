package normalize

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AnnualHours converts an hourly wage to a yearly one.
const AnnualHours = 2080

const weeksPerYear = 52

var (
	errEmpty    = errors.New("empty value")
	errNotANum  = errors.New("non-numeric value")
	errNegative = errors.New("negative value")
	errNoYear   = errors.New("no year found")
	errAmbYear  = errors.New("ambiguous year")
)

var numberCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "")

// ParseAmount parses currency and count text such as "$149,812", "10,969"
// or "1.2K". On error the returned value is 0.
func ParseAmount(s string) (float64, error) {
	s = numberCleaner.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, errEmpty
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'k', 'K':
		mult, s = 1e3, s[:len(s)-1]
	case 'm', 'M':
		mult, s = 1e6, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotANum
	}
	v *= mult
	if v < 0 {
		return 0, errNegative
	}
	return v, nil
}

func ParseCount(s string) (int, error) {
	v, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	return int(math.Round(v)), nil
}

// Annualize returns the per-year wage and whether unit was recognized.
func Annualize(offered float64, unit string) (float64, bool) {
	switch unit {
	case "YEAR":
		return offered, true
	case "HOUR":
		return offered * AnnualHours, true
	case "WEEK":
		return offered * weeksPerYear, true
	}
	return offered, false
}

var unitAliases = map[string]string{
	"YEAR": "YEAR", "YEARLY": "YEAR", "YR": "YEAR", "ANNUAL": "YEAR", "ANNUALLY": "YEAR",
	"HOUR": "HOUR", "HOURLY": "HOUR", "HR": "HOUR",
	"WEEK": "WEEK", "WEEKLY": "WEEK", "WK": "WEEK",
}

func canonicalUnit(s string) string {
	u := upper(s)
	if v, ok := unitAliases[u]; ok {
		return v
	}
	return u
}

var (
	plainYear    = regexp.MustCompile(`^(?:FY\s*)?(\d{4})$`)
	digitRuns    = regexp.MustCompile(`\d+`)
)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"2006/1/2",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseYear extracts a four digit year from "2024", "FY 2024", dates such
// as "2024-03-15" or "3/15/2024", and labels like "FY2024 Q1". Text with
// no year, or with several different years, is an error.
func ParseYear(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, errEmpty
	}
	if m := plainYear.FindStringSubmatch(s); m != nil {
		return strconv.Atoi(m[1])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year(), nil
		}
	}

	year := ""
	for _, run := range digitRuns.FindAllString(s, -1) {
		if len(run) != 4 || (run[:2] != "19" && run[:2] != "20") {
			continue
		}
		if year != "" && run != year {
			return 0, errAmbYear
		}
		year = run
	}
	if year == "" {
		return 0, errNoYear
	}
	return strconv.Atoi(year)
}
