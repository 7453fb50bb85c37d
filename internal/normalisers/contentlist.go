package normalisers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// Segment types that carry no document text.
var skippedSegments = map[string]bool{
	"header":      true,
	"footer":      true,
	"page_number": true,
	"image":       true,
}

var (
	latexPercent     = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\\%\$`)
	latexBarePercent = regexp.MustCompile(`\$\\%\$`)
	latexSuperscript = regexp.MustCompile(`\$\^\{(\d+)\}\$`)
	latexWrapper     = regexp.MustCompile(`\$([^$]+)\$`)
	pageMarker       = regexp.MustCompile(`<!--\s*Page\s+(\d+)\s*-->`)
)

// stringList decodes either a string or a list of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = nil
		return nil
	}
	if s != "" {
		*l = []string{s}
	}
	return nil
}

// ContentSegment is one layout block in a MinerU content list.
type ContentSegment struct {
	Type          string     `json:"type"`
	Text          string     `json:"text"`
	TextLevel     int        `json:"text_level"`
	PageIdx       int        `json:"page_idx"`
	TableCaption  stringList `json:"table_caption"`
	TableBody     string     `json:"table_body"`
	TableFootnote stringList `json:"table_footnote"`
	ListItems     stringList `json:"list_items"`
	CodeBody      string     `json:"code_body"`
	CodeCaption   stringList `json:"code_caption"`
}

// ContentList is the parsed *_content_list.json of a MinerU folder.
type ContentList []ContentSegment

// ParseContentList decodes a content list.
func ParseContentList(data []byte) (ContentList, error) {
	var list ContentList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode content list: %w", err)
	}
	return list, nil
}

// PageCount returns the number of distinct pages holding text segments.
func (l ContentList) PageCount() int {
	pages := make(map[int]struct{})
	for _, seg := range l {
		if !skippedSegments[seg.Type] {
			pages[seg.PageIdx] = struct{}{}
		}
	}
	return len(pages)
}

// Markdown renders the list as markdown with a page marker before the
// first block of every page.
func (l ContentList) Markdown() string {
	var out []string
	currentPage := -1

	for _, seg := range l {
		if skippedSegments[seg.Type] {
			continue
		}
		if seg.PageIdx != currentPage {
			currentPage = seg.PageIdx
			out = append(out, fmt.Sprintf("<!-- Page %d -->", seg.PageIdx+1))
		}

		switch seg.Type {
		case "text":
			if text := CleanLatex(seg.Text); text != "" {
				out = append(out, headingPrefix(seg.TextLevel)+text)
			}
		case "table":
			if len(seg.TableCaption) > 0 {
				out = append(out, "**"+strings.Join(seg.TableCaption, " ")+"**")
			}
			if table := TableToMarkdown(seg.TableBody); table != "" {
				out = append(out, table)
			}
			if len(seg.TableFootnote) > 0 {
				out = append(out, "*"+strings.Join(seg.TableFootnote, " ")+"*")
			}
		case "list":
			var items []string
			for _, li := range seg.ListItems {
				if item := listItem(li); item != "" {
					items = append(items, item)
				}
			}
			if len(items) > 0 {
				out = append(out, strings.Join(items, "\n"))
			}
		case "equation":
			if seg.Text != "" {
				out = append(out, "```\n"+seg.Text+"\n```")
			}
		case "code":
			if len(seg.CodeCaption) > 0 {
				out = append(out, "**"+strings.Join(seg.CodeCaption, " ")+"**")
			}
			if seg.CodeBody != "" {
				out = append(out, "```\n"+seg.CodeBody+"\n```")
			}
		}
	}
	return collapseBlankLines(strings.Join(out, "\n\n"))
}

// CleanLatex removes LaTeX artefacts left by OCR ($5\%$ becomes 5%) and
// collapses whitespace.
func CleanLatex(text string) string {
	if text == "" {
		return ""
	}
	text = latexPercent.ReplaceAllString(text, "$1%")
	text = latexBarePercent.ReplaceAllString(text, "%")
	text = latexSuperscript.ReplaceAllString(text, "[$1]")
	text = latexWrapper.ReplaceAllString(text, "$1")
	return collapseSpaces(text)
}

func headingPrefix(level int) string {
	if level <= 0 {
		return ""
	}
	return strings.Repeat("#", min(level, 6)) + " "
}

func listItem(raw string) string {
	item := CleanLatex(raw)
	if item == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(item, `\bullet`); ok {
		return "- " + strings.TrimSpace(rest)
	}
	if strings.HasPrefix(item, "-") || strings.HasPrefix(item, "*") {
		return item
	}
	return "- " + item
}

// ContentListNormaliser renders a content list JSON document as page-marked
// markdown. Invalid JSON yields "".
type ContentListNormaliser struct{}

func (n *ContentListNormaliser) Normalise(content string, mimeType string) string {
	list, err := ParseContentList([]byte(content))
	if err != nil {
		return ""
	}
	return list.Markdown()
}

func (n *ContentListNormaliser) SupportedTypes() []string {
	return []string{MIMEContentList}
}

func (n *ContentListNormaliser) Priority() int {
	return 80
}

// SplitPages cuts page-marked markdown into page segments. Text before the
// first marker joins the first page. Returns nil when there are no markers.
func SplitPages(markdown string) []domain.PageSegment {
	locs := pageMarker.FindAllStringSubmatchIndex(markdown, -1)
	if len(locs) == 0 {
		return nil
	}

	preamble := strings.TrimSpace(markdown[:locs[0][0]])
	pages := make([]domain.PageSegment, 0, len(locs))
	for i, loc := range locs {
		page, _ := strconv.Atoi(markdown[loc[2]:loc[3]])
		end := len(markdown)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		text := strings.TrimSpace(markdown[loc[1]:end])
		if i == 0 && preamble != "" {
			text = strings.TrimSpace(preamble + "\n\n" + text)
		}
		pages = append(pages, domain.PageSegment{Page: page, Text: text})
	}
	return pages
}

// CountPageMarkers returns the number of distinct pages marked in markdown.
func CountPageMarkers(markdown string) int {
	seen := make(map[int]struct{})
	for _, m := range pageMarker.FindAllStringSubmatch(markdown, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			seen[n] = struct{}{}
		}
	}
	return len(seen)
}
