package normalize

import (
	"strings"
	"unicode"
)

// TitleCase upper-cases a letter that follows a non-letter and lower-cases
// every other letter, so "amazon.com services" becomes "Amazon.Com Services".
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range CollapseSpaces(s) {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CollapseSpaces trims s and folds every inner whitespace run into one space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func upper(s string) string {
	return strings.ToUpper(CollapseSpaces(s))
}

var caseStatuses = map[string]string{
	"CERTIFIED":           "Certified",
	"CERTIFIED-WITHDRAWN": "Certified-Withdrawn",
	"CERTIFIED WITHDRAWN": "Certified-Withdrawn",
	"DENIED":              "Denied",
	"WITHDRAWN":           "Withdrawn",
}

func caseStatus(s string) string {
	if v, ok := caseStatuses[upper(s)]; ok {
		return v
	}
	return "Unknown"
}
