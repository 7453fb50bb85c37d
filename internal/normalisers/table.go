package normalisers

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TableToMarkdown converts an HTML table to a markdown table. The first row
// is the header; later rows are padded or cut to its width. Returns "" when
// the markup holds no rows.
func TableToMarkdown(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return renderTable(doc.Selection)
}

func renderTable(table *goquery.Selection) string {
	var rows [][]string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, escapeCell(collapseSpaces(cell.Text())))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	if len(rows) == 0 {
		return ""
	}

	header := rows[0]
	var b strings.Builder
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(header)) + "\n")
	for _, row := range rows[1:] {
		for len(row) < len(header) {
			row = append(row, "")
		}
		b.WriteString("| " + strings.Join(row[:len(header)], " | ") + " |\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
