package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Confidence is a closed enumeration of extraction confidence levels.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence normalises a free-form value. Unknown values map to "".
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	case ConfidenceLow:
		return ConfidenceLow
	}
	return ""
}

// UnmarshalJSON accepts any casing and drops values outside the enumeration.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*c = ParseConfidence(string(t))
	return nil
}

// Priority is a closed enumeration of recommendation priorities.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority normalises a free-form value. Unknown values map to "".
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityCritical:
		return PriorityCritical
	case PriorityHigh:
		return PriorityHigh
	case PriorityMedium:
		return PriorityMedium
	case PriorityLow:
		return PriorityLow
	}
	return ""
}

// UnmarshalJSON accepts any casing and drops values outside the enumeration.
func (p *Priority) UnmarshalJSON(data []byte) error {
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = ParsePriority(string(t))
	return nil
}

// PageRef is a page number or null. Placeholder strings such as "N/A"
// decode to null rather than failing the whole extraction.
type PageRef struct {
	Value int
	Valid bool
}

// Page returns a valid page reference.
func Page(n int) PageRef {
	return PageRef{Value: n, Valid: n > 0}
}

// Int returns the page number and whether it is set.
func (p PageRef) Int() (int, bool) {
	return p.Value, p.Valid
}

// Ptr returns the page as a pointer, nil when unset.
func (p PageRef) Ptr() *int {
	if !p.Valid {
		return nil
	}
	v := p.Value
	return &v
}

func (p PageRef) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(p.Value)), nil
}

func (p *PageRef) UnmarshalJSON(data []byte) error {
	*p = PageRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if f >= 1 && f == float64(int(f)) {
			*p = Page(int(f))
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "p."))
		s = strings.TrimSpace(strings.TrimPrefix(s, "page"))
		if n, err := strconv.Atoi(s); err == nil {
			*p = Page(n)
		}
	}
	return nil
}

// Text is a string that tolerates numbers, booleans and string lists on
// input. Lists are joined with "; ".
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
	case '[':
		var items []Text
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if it != "" {
				parts = append(parts, string(it))
			}
		}
		*t = Text(strings.Join(parts, "; "))
	case '{':
		var m map[string]Text
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*t = Text(joinSortedValues(m))
	default:
		*t = Text(string(data))
	}
	return nil
}

func (t Text) String() string { return string(t) }

// ExtractionMetadata describes the extraction itself.
type ExtractionMetadata struct {
	DocumentType         Text       `json:"document_type"`
	UAERelevance         Confidence `json:"uae_relevance"`
	ExtractionConfidence Confidence `json:"extraction_confidence"`
	Model                string     `json:"extraction_model,omitempty"`
}

// KeyFinding is one headline insight from a report.
type KeyFinding struct {
	ID           Text       `json:"id,omitempty"`
	Finding      Text       `json:"finding"`
	Evidence     Text       `json:"evidence"`
	Page         PageRef    `json:"page"`
	Significance Text       `json:"significance_uae"`
	Category     Text       `json:"category"`
	Confidence   Confidence `json:"confidence"`
}

// Statistic keeps the original wording in Text and the raw figure in Value.
type Statistic struct {
	ID             Text    `json:"id,omitempty"`
	Text           Text    `json:"stat"`
	Value          Text    `json:"value_raw"`
	MetricType     Text    `json:"metric_type"`
	Timeframe      Text    `json:"timeframe"`
	Geography      Text    `json:"geography"`
	Context        Text    `json:"context"`
	SourceInReport Text    `json:"source_in_report,omitempty"`
	Page           PageRef `json:"page"`
	Comparisons    Text    `json:"comparisons,omitempty"`
	SpeechReady    Text    `json:"speech_ready,omitempty"`
}

// Quote is a verbatim quotation.
type Quote struct {
	ID           Text       `json:"id,omitempty"`
	Text         Text       `json:"quote"`
	Speaker      Text       `json:"speaker"`
	SpeakerOrg   Text       `json:"speaker_org"`
	Context      Text       `json:"context,omitempty"`
	Page         PageRef    `json:"page"`
	UseCase      Text       `json:"use_case,omitempty"`
	Memorability Confidence `json:"memorability,omitempty"`
}

// AhaMoment is a counterintuitive insight.
type AhaMoment struct {
	ID                     Text `json:"id,omitempty"`
	Insight                Text `json:"insight"`
	ConventionalWisdom     Text `json:"conventional_wisdom"`
	WhySurprising          Text `json:"why_surprising"`
	Implications           Text `json:"implications_uae"`
	ThoughtLeadershipAngle Text `json:"thought_leadership_angle,omitempty"`
}

type Recommendation struct {
	ID               Text     `json:"id,omitempty"`
	Text             Text     `json:"recommendation"`
	Rationale        Text     `json:"rationale"`
	Audience         Text     `json:"target_audience"`
	Timeframe        Text     `json:"timeframe"`
	Priority         Priority `json:"priority"`
	UAEApplicability Text     `json:"uae_applicability,omitempty"`
	Page             PageRef  `json:"page"`
}

// DataPoint is a reusable fact the model flagged for the data bank.
type DataPoint struct {
	Type        Text       `json:"type"`
	Content     Text       `json:"content"`
	Tags        []string   `json:"tags,omitempty"`
	Reusability Confidence `json:"reusability,omitempty"`
}

type Methodology struct {
	ResearchType          Text `json:"research_type,omitempty"`
	SampleDescription     Text `json:"sample_description,omitempty"`
	GeographicScope       Text `json:"geographic_scope,omitempty"`
	TemporalScope         Text `json:"temporal_scope,omitempty"`
	DataSources           Text `json:"data_sources,omitempty"`
	PartnersSponsors      Text `json:"partners_sponsors,omitempty"`
	CredibilityAssessment Text `json:"credibility_assessment,omitempty"`
	Summary               Text `json:"summary,omitempty"`
}

// UnmarshalJSON accepts either the structured object or a plain string.
func (m *Methodology) UnmarshalJSON(data []byte) error {
	type plain Methodology
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*m = Methodology(p)
		return nil
	}
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*m = Methodology{Summary: t}
	return nil
}

// IsZero reports whether no methodology detail was extracted.
func (m Methodology) IsZero() bool {
	return m == Methodology{}
}

type Limitations struct {
	Acknowledged     Text `json:"acknowledged,omitempty"`
	Inferred         Text `json:"inferred,omitempty"`
	DataFreshness    Text `json:"data_freshness,omitempty"`
	ScopeConstraints Text `json:"scope_constraints,omitempty"`
}

// UnmarshalJSON accepts the structured object, a string, or a list of strings.
func (l *Limitations) UnmarshalJSON(data []byte) error {
	type plain Limitations
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		*l = Limitations(p)
		return nil
	}
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	*l = Limitations{Acknowledged: t}
	return nil
}

func (l Limitations) IsZero() bool {
	return l == Limitations{}
}

type Connections struct {
	RelatedTopics            []string `json:"related_topics,omitempty"`
	PotentialCrossReferences []string `json:"potential_cross_references,omitempty"`
	FollowUpQuestions        []string `json:"follow_up_questions,omitempty"`
}

// ExtractionResult is the structured intelligence extracted from one document.
// Treat it as immutable once built; re-extraction produces a new value.
type ExtractionResult struct {
	Metadata         ExtractionMetadata `json:"metadata"`
	ExecutiveSummary string             `json:"executive_summary"`
	BriefingHook     string             `json:"briefing_hook,omitempty"`
	KeyFindings      []KeyFinding       `json:"key_findings"`
	Statistics       []Statistic        `json:"statistics"`
	Quotes           []Quote            `json:"quotes"`
	AhaMoments       []AhaMoment        `json:"aha_moments"`
	Recommendations  []Recommendation   `json:"recommendations"`
	DataPoints       []DataPoint        `json:"data_points_for_bank,omitempty"`
	Methodology      Methodology        `json:"methodology"`
	Limitations      Limitations        `json:"limitations"`
	Connections      Connections        `json:"connections"`
}

// EmptyExtraction returns the degraded result used when extraction fails.
// All lists are non-nil so they serialise as [] rather than null.
func EmptyExtraction() *ExtractionResult {
	return &ExtractionResult{
		KeyFindings:     []KeyFinding{},
		Statistics:      []Statistic{},
		Quotes:          []Quote{},
		AhaMoments:      []AhaMoment{},
		Recommendations: []Recommendation{},
	}
}

// IsEmpty reports whether nothing was extracted.
func (r *ExtractionResult) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.ExecutiveSummary == "" &&
		len(r.KeyFindings) == 0 &&
		len(r.Statistics) == 0 &&
		len(r.Quotes) == 0 &&
		len(r.AhaMoments) == 0 &&
		len(r.Recommendations) == 0
}

// ItemCount returns the number of list items across the fan-out sections.
func (r *ExtractionResult) ItemCount() int {
	if r == nil {
		return 0
	}
	return len(r.KeyFindings) + len(r.Statistics) + len(r.Quotes) + len(r.AhaMoments)
}

// EnsureLists replaces nil slices with empty ones.
func (r *ExtractionResult) EnsureLists() {
	if r.KeyFindings == nil {
		r.KeyFindings = []KeyFinding{}
	}
	if r.Statistics == nil {
		r.Statistics = []Statistic{}
	}
	if r.Quotes == nil {
		r.Quotes = []Quote{}
	}
	if r.AhaMoments == nil {
		r.AhaMoments = []AhaMoment{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []Recommendation{}
	}
}

func joinSortedValues(m map[string]Text) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(string(m[k])); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}
