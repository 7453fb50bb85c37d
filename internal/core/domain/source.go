package domain

import (
	"strings"
	"unicode/utf8"
)

// PageSegment is the text of one source page.
type PageSegment struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// SourceDocument is the raw text read from one input folder. It is read once
// per pipeline run and never modified afterwards.
type SourceDocument struct {
	// IdentityKey is the stable key used for idempotent lookups (the folder name).
	IdentityKey string

	// Path is the folder the document was read from.
	Path string

	// FileName is the markdown file the text came from.
	FileName string

	// RawText is the full markdown text, with page markers when available.
	RawText string

	// Pages holds page-segmented text when the source provides it.
	Pages []PageSegment

	// PageCount is the number of pages in the original document, 0 if unknown.
	PageCount int
}

// IsBlank reports whether the document has no usable text.
func (d *SourceDocument) IsBlank() bool {
	return d == nil || strings.TrimSpace(d.RawText) == ""
}

// CharCount returns the number of characters (not bytes) in the raw text.
func (d *SourceDocument) CharCount() int {
	if d == nil {
		return 0
	}
	return utf8.RuneCountInString(d.RawText)
}

// Sample returns at most n characters from the start of the text.
func (d *SourceDocument) Sample(n int) string {
	if d == nil {
		return ""
	}
	return TruncateRunes(d.RawText, n)
}

// TruncateRunes cuts s to at most n characters without splitting a rune.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// ReportMetadata is the heuristic metadata inferred for a document.
type ReportMetadata struct {
	Organization string `json:"organization"`
	Year         *int   `json:"year"`
	Category     string `json:"category"`
}

// UnknownOrganization is used when no rule matches.
const UnknownOrganization = "Unknown"

// Report categories.
const (
	CategoryConsulting = "Consulting"
	CategoryPolicy     = "Policy"
	CategoryThinkTank  = "Think Tank"
	CategoryAcademic   = "Academic"
	CategoryNews       = "News"
	CategoryResearch   = "Research"
)
