package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/runtime"
)

// Extraction defaults.
const (
	DefaultExtractionMaxChars    = 500000
	DefaultExtractionMaxTokens   = 16384
	DefaultExtractionTemperature = 0.1
)

// Extractor turns a source document into an ExtractionResult using the
// current completion service. It never fails: any completion or parse error
// degrades to the empty extraction.
type Extractor struct {
	services    *runtime.Services
	pipeline    driven.ExtractionPipeline
	metrics     driven.PipelineMetrics
	maxChars    int
	maxTokens   int
	temperature float64
	timeout     time.Duration
	logger      *slog.Logger
}

// ExtractorConfig holds dependencies for Extractor.
type ExtractorConfig struct {
	Services    *runtime.Services
	Pipeline    driven.ExtractionPipeline // Optional: post-processing
	Metrics     driven.PipelineMetrics    // Optional
	MaxChars    int                       // Content budget (default: 500000)
	MaxTokens   int                       // Output budget (default: 16384)
	Temperature float64                   // Sampling temperature (default: 0.1)
	Timeout     time.Duration             // Per-call timeout (default: 120s)
	Logger      *slog.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}

	e := &Extractor{
		services:    cfg.Services,
		pipeline:    cfg.Pipeline,
		metrics:     metrics,
		maxChars:    cfg.MaxChars,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}
	if e.maxChars <= 0 {
		e.maxChars = DefaultExtractionMaxChars
	}
	if e.maxTokens <= 0 {
		e.maxTokens = DefaultExtractionMaxTokens
	}
	if e.temperature <= 0 {
		e.temperature = DefaultExtractionTemperature
	}
	if e.timeout <= 0 {
		e.timeout = domain.DefaultExtractionTimeout
	}
	return e
}

// Extract returns the structured extraction for doc. On any failure the
// error is logged and the empty extraction is returned.
func (e *Extractor) Extract(ctx context.Context, doc *domain.SourceDocument, title, organization string, year *int) *domain.ExtractionResult {
	result, err := e.extract(ctx, doc, title, organization, year)
	if err != nil {
		e.logger.Warn("extraction failed, continuing with empty extraction",
			"identity_key", doc.IdentityKey,
			"error", err,
		)
		return domain.EmptyExtraction()
	}
	return result
}

func (e *Extractor) extract(ctx context.Context, doc *domain.SourceDocument, title, organization string, year *int) (*domain.ExtractionResult, error) {
	var completion driven.CompletionService
	if e.services != nil {
		completion = e.services.CompletionService()
	}
	if completion == nil {
		return nil, fmt.Errorf("no completion service configured: %w", domain.ErrServiceUnavailable)
	}

	// Step 1: Truncate to the character budget
	content := doc.RawText
	note := ""
	if total := doc.CharCount(); total > e.maxChars {
		content = domain.TruncateRunes(content, e.maxChars)
		note = fmt.Sprintf("[NOTE: Document truncated. Showing the first %d of %d characters. Extract only from the text shown.]", e.maxChars, total)
		e.logger.Info("truncated document for extraction",
			"identity_key", doc.IdentityKey,
			"chars", total,
			"limit", e.maxChars,
		)
	}

	// Step 2: Build the prompt
	prompt := buildExtractionPrompt(title, organization, year, content, note)

	// Step 3: Call the completion service
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := completion.Complete(callCtx, domain.CompletionRequest{
		SystemPrompt: extractionSystemPrompt,
		Messages:     []domain.Message{{Role: domain.RoleUser, Content: prompt}},
		Temperature:  e.temperature,
		JSONMode:     true,
		MaxTokens:    e.maxTokens,
		Timeout:      e.timeout,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrCompletionTimeout) {
			err = fmt.Errorf("%w: %v", domain.ErrCompletionTimeout, err)
		}
		return nil, fmt.Errorf("completion call failed: %w", err)
	}
	e.metrics.CompletionUsage(resp.Model, resp.PromptTokens, resp.CompletionTokens)

	// Steps 4-6: Strip fences, parse, flatten the summary
	result, err := ParseExtraction(resp.Content)
	if err != nil {
		return nil, err
	}
	result.Metadata.Model = resp.Model

	if e.pipeline != nil {
		result = e.pipeline.Process(result, doc)
	}

	e.logger.Info("extraction complete",
		"identity_key", doc.IdentityKey,
		"model", resp.Model,
		"findings", len(result.KeyFindings),
		"statistics", len(result.Statistics),
		"quotes", len(result.Quotes),
		"aha_moments", len(result.AhaMoments),
		"recommendations", len(result.Recommendations),
	)
	return result, nil
}

// ParseExtraction decodes a completion response into an ExtractionResult.
// Code fences and prose around the JSON object are tolerated; list items
// that are not objects are dropped individually. A response that holds no
// JSON object at all fails with domain.ErrExtractionParse.
func ParseExtraction(raw string) (*domain.ExtractionResult, error) {
	body := extractJSONObject(stripCodeFences(raw))
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", domain.ErrExtractionParse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtractionParse, err)
	}

	result := domain.EmptyExtraction()
	decodeField(fields["metadata"], &result.Metadata)
	result.ExecutiveSummary, result.BriefingHook = flattenSummary(fields["executive_summary"])
	result.KeyFindings = decodeList[domain.KeyFinding](fields["key_findings"])
	result.Statistics = decodeList[domain.Statistic](fields["statistics"])
	result.Quotes = decodeList[domain.Quote](fields["quotes"])
	result.AhaMoments = decodeList[domain.AhaMoment](fields["aha_moments"])
	result.Recommendations = decodeList[domain.Recommendation](fields["recommendations"])
	result.DataPoints = decodeList[domain.DataPoint](fields["data_points_for_bank"])
	decodeField(fields["methodology"], &result.Methodology)
	decodeField(fields["limitations"], &result.Limitations)
	decodeField(fields["connections"], &result.Connections)

	// An explicit top-level hook wins over the one nested in the summary
	var hook domain.Text
	decodeField(fields["briefing_hook"], &hook)
	if hook != "" {
		result.BriefingHook = string(hook)
	}
	return result, nil
}

// stripCodeFences removes a surrounding ``` or ```json fence.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONObject returns the span from the first '{' to the last '}'.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// flattenSummary accepts a prose summary or the structured summary object
// and returns the prose plus any briefing hook.
func flattenSummary(raw json.RawMessage) (summary, hook string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", ""
	}
	if raw[0] != '{' {
		var t domain.Text
		decodeField(raw, &t)
		return strings.TrimSpace(string(t)), ""
	}

	var obj struct {
		CoreMessage           domain.Text `json:"core_message"`
		KeyTakeaways          domain.Text `json:"key_takeaways"`
		StrategicImplications domain.Text `json:"strategic_implications"`
		BriefingHook          domain.Text `json:"briefing_hook"`
	}
	decodeField(raw, &obj)

	var parts []string
	for _, p := range []domain.Text{obj.CoreMessage, obj.KeyTakeaways, obj.StrategicImplications} {
		if s := strings.TrimSpace(string(p)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n"), strings.TrimSpace(string(obj.BriefingHook))
}

func decodeField(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}

// decodeList decodes each array element on its own so one malformed item
// does not discard its siblings.
func decodeList[T any](raw json.RawMessage) []T {
	out := []T{}
	if len(raw) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}
