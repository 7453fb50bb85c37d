package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/runtime"
)

// Audit defaults.
const (
	DefaultAuditMaxChars      = 150000
	DefaultAuditMaxTokens     = 8192
	DefaultQuoteSimilarity    = 0.85
	DefaultAuditTemperature   = 0.0
	usabilityPenaltyPerIssue  = 3
	maxSourceEvidenceRunes    = 240
	quoteWindowSlackWords     = 2
	quoteAnchorWords          = 3
	maxQuoteAnchorHits        = 64
	hedgeSentenceSearchWindow = 400
)

var (
	hedgePattern         = regexp.MustCompile(`\b(estimated|projected|expected|forecasts?|could|may|up to|approximately)\b`)
	timeframeYearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// Auditor scores an extraction against its source text. Deterministic local
// checks always run; an optional completion-backed validation pass adds the
// issues a model can spot.
type Auditor struct {
	services      *runtime.Services
	metrics       driven.PipelineMetrics
	useCompletion bool
	maxChars      int
	similarity    float64
	timeout       time.Duration
	logger        *slog.Logger
}

// AuditorConfig holds dependencies for Auditor.
type AuditorConfig struct {
	Services        *runtime.Services
	Metrics         driven.PipelineMetrics
	UseCompletion   bool    // Run the model validation pass when a completion service is set
	MaxChars        int     // Source budget for the validation prompt (default: 150000)
	QuoteSimilarity float64 // Near-verbatim threshold (default: 0.85)
	Timeout         time.Duration
	Logger          *slog.Logger
}

// NewAuditor creates a new auditor.
func NewAuditor(cfg AuditorConfig) *Auditor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	a := &Auditor{
		services:      cfg.Services,
		metrics:       metrics,
		useCompletion: cfg.UseCompletion,
		maxChars:      cfg.MaxChars,
		similarity:    cfg.QuoteSimilarity,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
	if a.maxChars <= 0 {
		a.maxChars = DefaultAuditMaxChars
	}
	if a.similarity <= 0 || a.similarity > 1 {
		a.similarity = DefaultQuoteSimilarity
	}
	if a.timeout <= 0 {
		a.timeout = domain.DefaultExtractionTimeout
	}
	return a
}

// Audit compares extraction with doc. Neither argument is modified.
func (a *Auditor) Audit(ctx context.Context, doc *domain.SourceDocument, extraction *domain.ExtractionResult) *domain.AuditReport {
	report := &domain.AuditReport{
		Discrepancies: []domain.Discrepancy{},
		Missed:        []domain.MissedIntelligence{},
	}
	if extraction == nil {
		extraction = domain.EmptyExtraction()
	}

	src := newSourceIndex(doc.RawText)
	report.Discrepancies = append(report.Discrepancies, a.checkStatistics(src, extraction.Statistics)...)
	report.Discrepancies = append(report.Discrepancies, a.checkQuotes(ctx, src, extraction.Quotes)...)

	var modelUsability *int
	if a.useCompletion {
		validation, err := a.validate(ctx, doc, extraction)
		if err != nil {
			a.logger.Warn("audit validation pass failed, using local checks only",
				"identity_key", doc.IdentityKey,
				"error", err,
			)
		} else {
			report.Discrepancies = mergeDiscrepancies(report.Discrepancies, validation.discrepancies)
			report.Missed = append(report.Missed, validation.missed...)
			report.UsabilityIssues = validation.usabilityIssues
			report.Summary = validation.summary
			modelUsability = validation.usabilityScore
		}
	}

	usability := domain.MaxScore - usabilityPenaltyPerIssue*(report.CountIssues(domain.IssueUnusableFormat)+len(report.UsabilityIssues))
	if modelUsability != nil && *modelUsability < usability {
		usability = *modelUsability
	}
	report.UsabilityScore = usability
	report.Finalize()

	if report.Summary == "" {
		report.Summary = fmt.Sprintf("%d discrepancies, %d missed items", len(report.Discrepancies), len(report.Missed))
	}
	a.metrics.AuditScored(report)

	a.logger.Info("audit complete",
		"identity_key", doc.IdentityKey,
		"status", report.Status,
		"integrity_score", report.IntegrityScore,
		"usability_score", report.UsabilityScore,
		"discrepancies", len(report.Discrepancies),
	)
	return report
}

func (a *Auditor) checkStatistics(src *sourceIndex, stats []domain.Statistic) []domain.Discrepancy {
	var out []domain.Discrepancy
	for i, s := range stats {
		path := fmt.Sprintf("statistics[%d]", i)
		text := normaliseForMatch(string(s.Text))
		value := normaliseForMatch(string(s.Value))
		if text == "" && value == "" {
			continue
		}

		pos := src.find(text)
		if pos < 0 {
			pos = src.find(value)
		}
		if pos < 0 {
			out = append(out, domain.Discrepancy{
				FieldPath:      path,
				IssueType:      domain.IssueHallucination,
				ExtractedValue: firstNonEmpty(string(s.Text), string(s.Value)),
				WhatWasLost:    "statistic not found in source text",
				Severity:       domain.SeverityCritical,
			})
			continue
		}

		// Qualifiers in the sentence the statistic came from must survive
		extracted := normaliseForMatch(string(s.Text) + " " + string(s.Context) + " " + string(s.Value) + " " + string(s.Timeframe))
		sentence := src.sentenceAt(pos)
		for _, hedge := range hedgesIn(sentence) {
			if !strings.Contains(extracted, hedge) {
				out = append(out, domain.Discrepancy{
					FieldPath:      path,
					IssueType:      domain.IssueContextLoss,
					ExtractedValue: string(s.Text),
					SourceEvidence: domain.TruncateRunes(sentence, maxSourceEvidenceRunes),
					WhatWasLost:    fmt.Sprintf("qualifier %q", hedge),
					Severity:       domain.SeverityMajor,
				})
				break
			}
		}

		for _, year := range timeframeYearPattern.FindAllString(string(s.Timeframe), -1) {
			if !src.containsToken(year) {
				out = append(out, domain.Discrepancy{
					FieldPath:      path + ".timeframe",
					IssueType:      domain.IssueTemporalError,
					ExtractedValue: string(s.Timeframe),
					WhatWasLost:    fmt.Sprintf("year %s does not appear in source", year),
					Severity:       domain.SeverityMajor,
				})
				break
			}
		}
	}
	return out
}

// checkQuotes stops early when ctx is done; unchecked quotes get no
// discrepancy.
func (a *Auditor) checkQuotes(ctx context.Context, src *sourceIndex, quotes []domain.Quote) []domain.Discrepancy {
	var out []domain.Discrepancy
	for i, q := range quotes {
		if ctx.Err() != nil {
			a.logger.Warn("quote check interrupted", "checked", i, "total", len(quotes), "error", ctx.Err())
			break
		}
		text := normaliseForMatch(string(q.Text))
		if text == "" || src.find(text) >= 0 {
			continue
		}
		path := fmt.Sprintf("quotes[%d]", i)

		window, score := src.closestWindow(ctx, text, a.similarity)
		if ctx.Err() != nil {
			break
		}
		if score >= a.similarity {
			out = append(out, domain.Discrepancy{
				FieldPath:      path,
				IssueType:      domain.IssueUnusableFormat,
				ExtractedValue: string(q.Text),
				SourceEvidence: domain.TruncateRunes(window, maxSourceEvidenceRunes),
				WhatWasLost:    "quote is paraphrased, not verbatim",
				Correction:     window,
				Severity:       domain.SeverityMinor,
			})
			continue
		}
		out = append(out, domain.Discrepancy{
			FieldPath:      path,
			IssueType:      domain.IssueHallucination,
			ExtractedValue: string(q.Text),
			WhatWasLost:    "quote not found in source text",
			Severity:       domain.SeverityCritical,
		})
	}
	return out
}

type validationResult struct {
	discrepancies   []domain.Discrepancy
	missed          []domain.MissedIntelligence
	usabilityIssues []string
	summary         string
	usabilityScore  *int
}

func (a *Auditor) validate(ctx context.Context, doc *domain.SourceDocument, extraction *domain.ExtractionResult) (*validationResult, error) {
	var completion driven.CompletionService
	if a.services != nil {
		completion = a.services.CompletionService()
	}
	if completion == nil {
		return nil, fmt.Errorf("no completion service configured: %w", domain.ErrServiceUnavailable)
	}

	extractionJSON, err := json.Marshal(extraction)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extraction: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := completion.Complete(callCtx, domain.CompletionRequest{
		SystemPrompt: auditSystemPrompt,
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: buildAuditPrompt(domain.TruncateRunes(doc.RawText, a.maxChars), string(extractionJSON)),
		}},
		Temperature: DefaultAuditTemperature,
		JSONMode:    true,
		MaxTokens:   DefaultAuditMaxTokens,
		Timeout:     a.timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	a.metrics.CompletionUsage(resp.Model, resp.PromptTokens, resp.CompletionTokens)

	return parseValidation(resp.Content)
}

// parseValidation decodes the validation contract. Items with unknown issue
// types are dropped; the model's own score and status are ignored because
// they are recomputed from the items.
func parseValidation(raw string) (*validationResult, error) {
	body := extractJSONObject(stripCodeFences(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in validation response", domain.ErrExtractionParse)
	}

	var payload struct {
		Summary struct {
			UsabilityScore *int `json:"usability_score"`
		} `json:"validation_summary"`
		Discrepancies []struct {
			FieldPath      domain.Text `json:"field_path"`
			IssueType      string      `json:"issue_type"`
			ExtractedValue domain.Text `json:"extracted_value"`
			SourceEvidence domain.Text `json:"source_evidence"`
			WhatWasLost    domain.Text `json:"what_was_lost"`
			Correction     domain.Text `json:"correction"`
			Severity       string      `json:"severity"`
		} `json:"discrepancies"`
		Missed []struct {
			Description    domain.Text `json:"description"`
			SourceQuote    domain.Text `json:"source_quote"`
			Location       domain.Text `json:"location"`
			SuggestedField domain.Text `json:"suggested_field"`
			Importance     string      `json:"importance"`
		} `json:"missed_intelligence"`
		UsabilityIssues []domain.Text `json:"usability_issues"`
		AuditSummary    domain.Text   `json:"audit_summary"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionParse, err)
	}

	result := &validationResult{
		summary:        strings.TrimSpace(string(payload.AuditSummary)),
		usabilityScore: payload.Summary.UsabilityScore,
	}
	for _, d := range payload.Discrepancies {
		issue := domain.ParseIssueType(d.IssueType)
		if issue == "" || issue == domain.IssueMissingCritical || issue == domain.IssueMissingImportant {
			continue
		}
		result.discrepancies = append(result.discrepancies, domain.Discrepancy{
			FieldPath:      strings.TrimSpace(string(d.FieldPath)),
			IssueType:      issue,
			ExtractedValue: string(d.ExtractedValue),
			SourceEvidence: string(d.SourceEvidence),
			WhatWasLost:    string(d.WhatWasLost),
			Correction:     string(d.Correction),
			Severity:       parseSeverity(d.Severity),
		})
	}
	for _, m := range payload.Missed {
		result.missed = append(result.missed, domain.MissedIntelligence{
			Description:    string(m.Description),
			SourceQuote:    string(m.SourceQuote),
			Location:       string(m.Location),
			SuggestedField: string(m.SuggestedField),
			Importance:     domain.Importance(strings.ToLower(strings.TrimSpace(m.Importance))),
		})
	}
	for _, issue := range payload.UsabilityIssues {
		if s := strings.TrimSpace(string(issue)); s != "" {
			result.usabilityIssues = append(result.usabilityIssues, s)
		}
	}
	return result, nil
}

func parseSeverity(s string) domain.Severity {
	switch domain.Severity(strings.ToLower(strings.TrimSpace(s))) {
	case domain.SeverityCritical:
		return domain.SeverityCritical
	case domain.SeverityMajor:
		return domain.SeverityMajor
	default:
		return domain.SeverityMinor
	}
}

// mergeDiscrepancies appends extra after base, skipping any (field path,
// issue type) pair already present.
func mergeDiscrepancies(base, extra []domain.Discrepancy) []domain.Discrepancy {
	type key struct {
		path  string
		issue domain.IssueType
	}
	seen := make(map[key]bool, len(base)+len(extra))
	out := make([]domain.Discrepancy, 0, len(base)+len(extra))
	for _, list := range [][]domain.Discrepancy{base, extra} {
		for _, d := range list {
			k := key{d.FieldPath, d.IssueType}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, d)
		}
	}
	return out
}

// sourceIndex is the normalised source text with a word index used for
// near-verbatim quote matching.
type sourceIndex struct {
	text  string
	words []string
	first map[string][]int // word -> positions
	runes []int            // runes[i] is the rune length of words[:i]
}

func newSourceIndex(raw string) *sourceIndex {
	text := normaliseForMatch(raw)
	words := strings.Fields(text)
	first := make(map[string][]int)
	runes := make([]int, len(words)+1)
	for i, w := range words {
		first[w] = append(first[w], i)
		runes[i+1] = runes[i] + utf8.RuneCountInString(w)
	}
	return &sourceIndex{text: text, words: words, first: first, runes: runes}
}

func (s *sourceIndex) find(needle string) int {
	if needle == "" {
		return -1
	}
	return strings.Index(s.text, needle)
}

// containsToken reports whether tok occurs in the source with no letter or
// digit directly before or after it.
func (s *sourceIndex) containsToken(tok string) bool {
	if tok == "" {
		return false
	}
	for off := 0; ; {
		i := strings.Index(s.text[off:], tok)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(tok)
		before, _ := utf8.DecodeLastRuneInString(s.text[:start])
		after, _ := utf8.DecodeRuneInString(s.text[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		off = start + 1
	}
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// hedgesIn returns the hedging qualifiers in sentence. "may" next to a number
// is the month ("may 2024", "3 may") and is not a qualifier.
func hedgesIn(sentence string) []string {
	var out []string
	for _, loc := range hedgePattern.FindAllStringIndex(sentence, -1) {
		hedge := sentence[loc[0]:loc[1]]
		if hedge == "may" && isMonthMay(sentence[:loc[0]], sentence[loc[1]:]) {
			continue
		}
		out = append(out, hedge)
	}
	return out
}

func isMonthMay(before, after string) bool {
	after = strings.TrimLeft(after, " ,")
	before = strings.TrimRight(before, " ")
	startsWithDigit := after != "" && after[0] >= '0' && after[0] <= '9'
	endsWithDigit := before != "" && before[len(before)-1] >= '0' && before[len(before)-1] <= '9'
	return startsWithDigit || endsWithDigit
}

// sentenceAt returns the sentence around byte offset pos. A terminator
// only ends a sentence when followed by whitespace or the end of text, so
// decimal points such as "4.5" do not split it.
func (s *sourceIndex) sentenceAt(pos int) string {
	lo := max(0, pos-hedgeSentenceSearchWindow)
	hi := min(len(s.text), pos+hedgeSentenceSearchWindow)

	start := lo
	for i := pos - 1; i >= lo; i-- {
		if s.isSentenceEnd(i) {
			start = i + 1
			break
		}
	}
	end := hi
	for i := pos; i < hi; i++ {
		if s.isSentenceEnd(i) {
			end = i + 1
			break
		}
	}
	return strings.TrimSpace(s.text[start:end])
}

func (s *sourceIndex) isSentenceEnd(i int) bool {
	switch s.text[i] {
	case '.', '!', '?':
		return i+1 == len(s.text) || s.text[i+1] == ' '
	}
	return false
}

// closestWindow finds the source window most similar to quote, ignoring
// windows that cannot reach minScore. Candidates are anchored on the
// quote's rarest source words, with at most maxQuoteAnchorHits anchor
// occurrences per quote. It returns early with a zero score when ctx is done.
func (s *sourceIndex) closestWindow(ctx context.Context, quote string, minScore float64) (string, float64) {
	qwords := strings.Fields(quote)
	if len(qwords) == 0 || len(s.words) == 0 {
		return "", 0
	}
	n := len(qwords)
	qlen := utf8.RuneCountInString(quote)
	params := levenshtein.NewParams().MinScore(minScore)
	best, bestScore := "", 0.0

	consider := func(from, to int) {
		from = max(0, from)
		to = min(len(s.words), to)
		if from >= to {
			return
		}
		// Edit distance is at least the length difference
		wlen := s.runes[to] - s.runes[from] + (to - from - 1)
		longest := max(qlen, wlen)
		bound := 1 - float64(max(qlen-wlen, wlen-qlen))/float64(longest)
		if bound < minScore || bound <= bestScore {
			return
		}
		window := strings.Join(s.words[from:to], " ")
		if score := levenshtein.Similarity(quote, window, params); score > bestScore {
			best, bestScore = window, score
		}
	}

	budget := maxQuoteAnchorHits
	for _, j := range s.anchors(qwords) {
		for _, pos := range s.first[qwords[j]] {
			if budget == 0 {
				return best, bestScore
			}
			budget--
			if ctx.Err() != nil {
				return "", 0
			}
			start, end := pos-j, pos+n-j
			for slack := -quoteWindowSlackWords; slack <= quoteWindowSlackWords; slack++ {
				consider(start, end+slack)
				consider(start-slack, end)
			}
		}
	}
	return best, bestScore
}

// anchors returns the indexes of up to quoteAnchorWords distinct quote words
// that occur in the source, rarest first.
func (s *sourceIndex) anchors(qwords []string) []int {
	seen := make(map[string]bool, len(qwords))
	var idx []int
	for j, w := range qwords {
		if seen[w] || len(s.first[w]) == 0 {
			continue
		}
		seen[w] = true
		idx = append(idx, j)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return len(s.first[qwords[idx[a]]]) < len(s.first[qwords[idx[b]]])
	})
	if len(idx) > quoteAnchorWords {
		idx = idx[:quoteAnchorWords]
	}
	return idx
}

var matchReplacer = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'",
	"\u201c", "", "\u201d", "", `"`, "",
	"\u2013", "-", "\u2014", "-",
	"\u00a0", " ",
)

// normaliseForMatch lowercases, unifies typographic punctuation, drops
// double quotes and collapses whitespace.
func normaliseForMatch(s string) string {
	s = matchReplacer.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
