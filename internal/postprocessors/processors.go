package postprocessors

import (
	"strings"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// EnumNormaliser re-applies the closed enumerations. Decoding already
// normalises model output; this covers results assembled in code.
type EnumNormaliser struct{}

// Verify interface compliance
var _ driven.ExtractionProcessor = (*EnumNormaliser)(nil)

func NewEnumNormaliser() *EnumNormaliser {
	return &EnumNormaliser{}
}

func (e *EnumNormaliser) Process(r *domain.ExtractionResult, _ *domain.SourceDocument) *domain.ExtractionResult {
	r.Metadata.UAERelevance = domain.ParseConfidence(string(r.Metadata.UAERelevance))
	r.Metadata.ExtractionConfidence = domain.ParseConfidence(string(r.Metadata.ExtractionConfidence))
	for i := range r.KeyFindings {
		r.KeyFindings[i].Confidence = domain.ParseConfidence(string(r.KeyFindings[i].Confidence))
	}
	for i := range r.Quotes {
		r.Quotes[i].Memorability = domain.ParseConfidence(string(r.Quotes[i].Memorability))
	}
	for i := range r.Recommendations {
		r.Recommendations[i].Priority = domain.ParsePriority(string(r.Recommendations[i].Priority))
	}
	for i := range r.DataPoints {
		r.DataPoints[i].Reusability = domain.ParseConfidence(string(r.DataPoints[i].Reusability))
	}
	return r
}

func (e *EnumNormaliser) Name() string {
	return "enum-normaliser"
}

func (e *EnumNormaliser) Order() int {
	return 0
}

// WhitespaceTrimmer trims leading and trailing whitespace from every text
// field. Inner whitespace is kept so quotes stay verbatim.
type WhitespaceTrimmer struct{}

var _ driven.ExtractionProcessor = (*WhitespaceTrimmer)(nil)

func NewWhitespaceTrimmer() *WhitespaceTrimmer {
	return &WhitespaceTrimmer{}
}

func (w *WhitespaceTrimmer) Process(r *domain.ExtractionResult, _ *domain.SourceDocument) *domain.ExtractionResult {
	r.ExecutiveSummary = strings.TrimSpace(r.ExecutiveSummary)
	r.BriefingHook = strings.TrimSpace(r.BriefingHook)
	trim(&r.Metadata.DocumentType)

	for i := range r.KeyFindings {
		k := &r.KeyFindings[i]
		trim(&k.ID, &k.Finding, &k.Evidence, &k.Significance, &k.Category)
	}
	for i := range r.Statistics {
		s := &r.Statistics[i]
		trim(&s.ID, &s.Text, &s.Value, &s.MetricType, &s.Timeframe, &s.Geography,
			&s.Context, &s.SourceInReport, &s.Comparisons, &s.SpeechReady)
	}
	for i := range r.Quotes {
		q := &r.Quotes[i]
		trim(&q.ID, &q.Text, &q.Speaker, &q.SpeakerOrg, &q.Context, &q.UseCase)
	}
	for i := range r.AhaMoments {
		a := &r.AhaMoments[i]
		trim(&a.ID, &a.Insight, &a.ConventionalWisdom, &a.WhySurprising, &a.Implications, &a.ThoughtLeadershipAngle)
	}
	for i := range r.Recommendations {
		rec := &r.Recommendations[i]
		trim(&rec.ID, &rec.Text, &rec.Rationale, &rec.Audience, &rec.Timeframe, &rec.UAEApplicability)
	}
	for i := range r.DataPoints {
		trim(&r.DataPoints[i].Type, &r.DataPoints[i].Content)
	}

	m := &r.Methodology
	trim(&m.ResearchType, &m.SampleDescription, &m.GeographicScope, &m.TemporalScope,
		&m.DataSources, &m.PartnersSponsors, &m.CredibilityAssessment, &m.Summary)
	l := &r.Limitations
	trim(&l.Acknowledged, &l.Inferred, &l.DataFreshness, &l.ScopeConstraints)
	return r
}

func (w *WhitespaceTrimmer) Name() string {
	return "whitespace-trimmer"
}

func (w *WhitespaceTrimmer) Order() int {
	return 5
}

func trim(fields ...*domain.Text) {
	for _, f := range fields {
		*f = domain.Text(strings.TrimSpace(string(*f)))
	}
}

// Deduplicator drops repeated list items. Items compare equal when their
// main text matches ignoring case and spacing; the first one wins.
type Deduplicator struct{}

var _ driven.ExtractionProcessor = (*Deduplicator)(nil)

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

func (d *Deduplicator) Process(r *domain.ExtractionResult, _ *domain.SourceDocument) *domain.ExtractionResult {
	r.KeyFindings = dedupe(r.KeyFindings, func(k domain.KeyFinding) string { return dedupeKey(k.Finding) })
	r.Statistics = dedupe(r.Statistics, func(s domain.Statistic) string { return dedupeKey(s.Text, s.Value) })
	r.Quotes = dedupe(r.Quotes, func(q domain.Quote) string { return dedupeKey(q.Text) })
	r.AhaMoments = dedupe(r.AhaMoments, func(a domain.AhaMoment) string { return dedupeKey(a.Insight) })
	r.Recommendations = dedupe(r.Recommendations, func(rec domain.Recommendation) string { return dedupeKey(rec.Text) })
	r.DataPoints = dedupe(r.DataPoints, func(p domain.DataPoint) string { return dedupeKey(p.Content) })
	return r
}

func (d *Deduplicator) Name() string {
	return "deduplicator"
}

func (d *Deduplicator) Order() int {
	return 10
}

// dedupe keeps the first item for each key. Items with an empty key are
// always kept.
func dedupe[T any](items []T, key func(T) string) []T {
	if len(items) <= 1 {
		return items
	}
	seen := make(map[string]bool, len(items))
	out := items[:0:0]
	for _, it := range items {
		k := key(it)
		if k != "" {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		out = append(out, it)
	}
	return out
}

func dedupeKey(parts ...domain.Text) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString("\x00")
		}
		b.WriteString(strings.Join(strings.Fields(strings.ToLower(string(p))), " "))
	}
	if strings.Trim(b.String(), "\x00") == "" {
		return ""
	}
	return b.String()
}

// PageBounds clears page references beyond the document's page count.
// Nothing changes when the page count is unknown.
type PageBounds struct{}

var _ driven.ExtractionProcessor = (*PageBounds)(nil)

func NewPageBounds() *PageBounds {
	return &PageBounds{}
}

func (p *PageBounds) Process(r *domain.ExtractionResult, doc *domain.SourceDocument) *domain.ExtractionResult {
	if doc == nil || doc.PageCount <= 0 {
		return r
	}
	limit := doc.PageCount
	for i := range r.KeyFindings {
		clampPage(&r.KeyFindings[i].Page, limit)
	}
	for i := range r.Statistics {
		clampPage(&r.Statistics[i].Page, limit)
	}
	for i := range r.Quotes {
		clampPage(&r.Quotes[i].Page, limit)
	}
	for i := range r.Recommendations {
		clampPage(&r.Recommendations[i].Page, limit)
	}
	return r
}

func (p *PageBounds) Name() string {
	return "page-bounds"
}

func (p *PageBounds) Order() int {
	return 20
}

func clampPage(ref *domain.PageRef, limit int) {
	if n, ok := ref.Int(); ok && n > limit {
		*ref = domain.PageRef{}
	}
}
