package normalisers

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelector matches elements that never carry article text.
const noiseSelector = "script, style, noscript, nav, header, footer, aside, form, iframe, svg"

// HTMLNormaliser converts an HTML page (typically a news article) into
// markdown, keeping headings, paragraphs, lists, quotes and tables.
type HTMLNormaliser struct{}

func (n *HTMLNormaliser) Normalise(content string, mimeType string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	doc.Find(noiseSelector).Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var w blockWriter
	w.walk(root)
	return collapseBlankLines(strings.Join(w.blocks, "\n\n"))
}

func (n *HTMLNormaliser) SupportedTypes() []string {
	return []string{MIMEHTML, "application/xhtml+xml"}
}

func (n *HTMLNormaliser) Priority() int {
	return 50
}

type blockWriter struct {
	blocks []string
	inline []string
}

func (w *blockWriter) emit(block string) {
	w.flush()
	if block = strings.TrimSpace(block); block != "" {
		w.blocks = append(w.blocks, block)
	}
}

// flush turns loose inline text collected between blocks into a paragraph.
func (w *blockWriter) flush() {
	if len(w.inline) == 0 {
		return
	}
	text := collapseSpaces(strings.Join(w.inline, " "))
	w.inline = nil
	if text != "" {
		w.blocks = append(w.blocks, text)
	}
}

func (w *blockWriter) walk(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		switch name := goquery.NodeName(s); name {
		case "#text":
			w.inline = append(w.inline, s.Text())
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level, _ := strconv.Atoi(name[1:])
			if text := collapseSpaces(s.Text()); text != "" {
				w.emit(strings.Repeat("#", level) + " " + text)
			}
		case "p":
			w.emit(collapseSpaces(s.Text()))
		case "ul", "ol":
			w.emit(renderList(s, name == "ol"))
		case "blockquote":
			if text := collapseSpaces(s.Text()); text != "" {
				w.emit("> " + text)
			}
		case "pre":
			w.emit("```\n" + strings.Trim(s.Text(), "\n") + "\n```")
		case "table":
			w.emit(renderTable(s))
		case "br":
			w.flush()
		case "div", "section", "article", "main", "body", "figure", "span", "a", "strong", "em", "b", "i":
			if isInline(name) {
				w.inline = append(w.inline, s.Text())
				return
			}
			w.flush()
			w.walk(s)
			w.flush()
		default:
			w.inline = append(w.inline, s.Text())
		}
	})
}

func isInline(name string) bool {
	switch name {
	case "span", "a", "strong", "em", "b", "i":
		return true
	}
	return false
}

func renderList(list *goquery.Selection, ordered bool) string {
	var lines []string
	list.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		text := collapseSpaces(li.Text())
		if text == "" {
			return
		}
		marker := "- "
		if ordered {
			marker = strconv.Itoa(i+1) + ". "
		}
		lines = append(lines, marker+text)
	})
	return strings.Join(lines, "\n")
}
