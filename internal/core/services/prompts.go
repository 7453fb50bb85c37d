package services

import (
	"fmt"
	"strconv"
	"strings"
)

const extractionSystemPrompt = `You are a senior intelligence analyst preparing briefing material for a government minister.
You extract structured, verifiable intelligence from reports. You never invent data.
Statistics and quotes must use the exact wording of the document. Output a single JSON object and nothing else.`

const extractionSchema = `{
  "metadata": {"document_type": "consulting|research|policy|industry|news", "uae_relevance": "high|medium|low", "extraction_confidence": "high|medium|low"},
  "executive_summary": {"core_message": "", "key_takeaways": "", "strategic_implications": "", "briefing_hook": ""},
  "key_findings": [{"id": "F1", "finding": "", "evidence": "", "page": <number_or_null>, "significance_uae": "", "category": "trend|opportunity|risk|benchmark|framework|success_factor|warning", "confidence": "high|medium|low"}],
  "statistics": [{"id": "S1", "stat": "exact wording with units", "value_raw": "", "metric_type": "market_size|growth_rate|adoption|investment|survey|ranking|roi|jobs|performance", "timeframe": "", "geography": "", "context": "", "source_in_report": "", "page": <number_or_null>, "comparisons": "", "speech_ready": ""}],
  "quotes": [{"id": "Q1", "quote": "verbatim text", "speaker": "", "speaker_org": "", "context": "", "page": <number_or_null>, "use_case": "speech|interview|policy_justification|thought_leadership", "memorability": "high|medium|low"}],
  "aha_moments": [{"id": "A1", "insight": "", "conventional_wisdom": "", "why_surprising": "", "implications_uae": "", "thought_leadership_angle": ""}],
  "recommendations": [{"id": "R1", "recommendation": "", "rationale": "", "target_audience": "", "timeframe": "immediate|short_term|medium_term|long_term", "priority": "critical|high|medium|low", "uae_applicability": "", "page": <number_or_null>}],
  "data_points_for_bank": [{"type": "statistic|quote|finding|benchmark", "content": "", "tags": [], "reusability": "high|medium|low"}],
  "methodology": {"research_type": "", "sample_description": "", "geographic_scope": "", "temporal_scope": "", "data_sources": "", "partners_sponsors": "", "credibility_assessment": ""},
  "limitations": {"acknowledged": "", "inferred": "", "data_freshness": "", "scope_constraints": ""},
  "connections": {"related_topics": [], "potential_cross_references": [], "follow_up_questions": []}
}`

const extractionRules = `Rules:
- Every item must be traceable to the document. Use null for a page you cannot see, never a placeholder string.
- Copy statistics and quotes verbatim, including qualifiers such as "estimated", "projected" or "up to".
- Keep timeframes and geographic scope exactly as stated.
- confidence, priority, memorability and reusability use only the listed values.
- Return valid JSON: no trailing commas, no markdown fences, no commentary.`

// buildExtractionPrompt renders the user prompt for one document.
func buildExtractionPrompt(title, organization string, year *int, content, truncationNote string) string {
	var b strings.Builder
	b.WriteString("<document>\n")
	fmt.Fprintf(&b, "TITLE: %s\n", title)
	fmt.Fprintf(&b, "SOURCE: %s\n", organization)
	fmt.Fprintf(&b, "YEAR: %s\n\n", yearString(year))
	b.WriteString(content)
	b.WriteString("\n</document>\n\n")
	if truncationNote != "" {
		b.WriteString(truncationNote)
		b.WriteString("\n\n")
	}
	b.WriteString(extractionRules)
	b.WriteString("\n\nReturn exactly this JSON structure:\n")
	b.WriteString(extractionSchema)
	return b.String()
}

const auditSystemPrompt = `You are an exacting fact-checker. You compare an extraction against its source document
and report every discrepancy. You output a single JSON object and nothing else.`

const auditSchema = `{
  "validation_summary": {"status": "PASS|PASS_WITH_WARNINGS|FAIL|REJECT", "integrity_score": 0, "usability_score": 0},
  "discrepancies": [{"field_path": "statistics[0].stat", "issue_type": "HALLUCINATION|CONTEXT_LOSS|TEMPORAL_ERROR|ATTRIBUTION_ERROR|SCOPE_ERROR|UNUSABLE_FORMAT", "extracted_value": "", "source_evidence": "", "what_was_lost": "", "correction": "", "severity": "critical|major|minor"}],
  "missed_intelligence": [{"description": "", "source_quote": "", "location": "", "suggested_field": "", "importance": "critical|important|minor"}],
  "usability_issues": [""],
  "audit_summary": ""
}`

// buildAuditPrompt renders the validation prompt. extractionJSON is the
// serialised extraction under review.
func buildAuditPrompt(content, extractionJSON string) string {
	var b strings.Builder
	b.WriteString("<source_document>\n")
	b.WriteString(content)
	b.WriteString("\n</source_document>\n\n<extraction>\n")
	b.WriteString(extractionJSON)
	b.WriteString("\n</extraction>\n\n")
	b.WriteString(`Check every statistic, quote and finding against the source.
HALLUCINATION: not in the source. CONTEXT_LOSS: a qualifier was dropped. TEMPORAL_ERROR: wrong or missing timeframe.
ATTRIBUTION_ERROR: opinion presented as fact or the reverse. SCOPE_ERROR: regional presented as global or the reverse.
UNUSABLE_FORMAT: a speech-ready field that cannot be quoted as written.
List important intelligence the extraction missed.

Return exactly this JSON structure:
`)
	b.WriteString(auditSchema)
	return b.String()
}

const newsSystemPrompt = `You brief a UAE government minister on technology news. Be concise, concrete and candid.`

// buildNewsPrompt asks for a markdown briefing with fixed section headings.
func buildNewsPrompt(title, source, date, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ARTICLE: %s\nSOURCE: %s\n", title, source)
	if date != "" {
		fmt.Fprintf(&b, "DATE: %s\n", date)
	}
	b.WriteString("\n")
	b.WriteString(content)
	b.WriteString(`

Write a briefing using exactly these markdown headings in this order:
## SUMMARY
## SO WHAT?
## UAE IMPLICATIONS
## OPPORTUNITIES
## RISKS
## MINISTERIAL TALKING POINT
Use "- " bullets under OPPORTUNITIES and RISKS. Keep each prose section under 80 words.`)
	return b.String()
}

func yearString(year *int) string {
	if year == nil {
		return "Unknown"
	}
	return strconv.Itoa(*year)
}
