package source

import (
	"strings"

	"h1b_ingest/internal/models"

	"github.com/PuerkitoBio/goquery"
)

// findTable parses the first table matching selector, or the first table
// in the document when selector is empty.
func findTable(doc *goquery.Document, selector string) (*models.RawTable, bool) {
	if selector == "" {
		selector = "table"
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, false
	}
	table := sel.First()
	if goquery.NodeName(table) != "table" {
		table = table.Find("table").First()
		if table.Length() == 0 {
			return nil, false
		}
	}
	return parseTable(table), true
}

// parseTable reads the first row as headers and the remaining rows as
// data. Rows of nested tables and rows without cells are ignored.
func parseTable(table *goquery.Selection) *models.RawTable {
	t := &models.RawTable{}
	headerSeen := false
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		cells := tr.ChildrenFiltered("th, td").Map(func(_ int, c *goquery.Selection) string {
			return normalizeText(c.Text())
		})
		if len(cells) == 0 {
			return
		}
		if !headerSeen {
			t.Headers = cells
			headerSeen = true
			return
		}
		t.Rows = append(t.Rows, cells)
	})
	return t
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
