package domain

import "strings"

// NewsArticle is an article submitted for briefing analysis.
type NewsArticle struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date,omitempty"`
	Content string `json:"content"`
}

// NewsSection names one section of a news briefing.
type NewsSection int

const (
	NewsSectionNone NewsSection = iota
	NewsSectionSummary
	NewsSectionSoWhat
	NewsSectionUAEImplications
	NewsSectionOpportunities
	NewsSectionRisks
	NewsSectionTalkingPoint
)

var newsSectionHeadings = map[NewsSection]string{
	NewsSectionSummary:         "SUMMARY",
	NewsSectionSoWhat:          "SO WHAT?",
	NewsSectionUAEImplications: "UAE IMPLICATIONS",
	NewsSectionOpportunities:   "OPPORTUNITIES",
	NewsSectionRisks:           "RISKS",
	NewsSectionTalkingPoint:    "MINISTERIAL TALKING POINT",
}

// NewsSections lists the briefing sections in document order.
var NewsSections = []NewsSection{
	NewsSectionSummary,
	NewsSectionSoWhat,
	NewsSectionUAEImplications,
	NewsSectionOpportunities,
	NewsSectionRisks,
	NewsSectionTalkingPoint,
}

func (s NewsSection) String() string {
	return newsSectionHeadings[s]
}

// IsList reports whether the section is rendered as bullet items.
func (s NewsSection) IsList() bool {
	return s == NewsSectionOpportunities || s == NewsSectionRisks
}

// ParseNewsSection matches a heading line (any markdown decoration, any case).
func ParseNewsSection(line string) NewsSection {
	h := strings.ToUpper(strings.TrimSpace(line))
	h = strings.Trim(h, "#*_: ")
	h = strings.TrimSpace(strings.TrimRight(h, ":"))
	if h == "" {
		return NewsSectionNone
	}
	for _, s := range NewsSections {
		heading := newsSectionHeadings[s]
		if h == heading || h == strings.TrimSuffix(heading, "?") {
			return s
		}
	}
	return NewsSectionNone
}

// NewsAnalysis is the parsed briefing for one article.
type NewsAnalysis struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	SoWhat          string   `json:"so_what"`
	UAEImplications string   `json:"uae_implications"`
	Opportunities   []string `json:"opportunities"`
	Risks           []string `json:"risks"`
	TalkingPoint    string   `json:"talking_point"`
	Model           string   `json:"model,omitempty"`
}
