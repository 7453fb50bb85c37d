package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
	"github.com/sfdxb7/oc-hub/internal/runtime"
)

func newTestServices(completion *mocks.MockCompletionService) *runtime.Services {
	s := runtime.NewServices(domain.NewRuntimeConfig("memory", domain.KnowledgeBackendRAGFlow))
	if completion != nil {
		s.SetCompletionService(completion)
	}
	return s
}

func testDoc(text string) *domain.SourceDocument {
	return &domain.SourceDocument{IdentityKey: "BCG_AI_at_Scale_2024", RawText: text}
}

const sampleExtraction = `{
  "metadata": {"document_type": "consulting", "uae_relevance": "High", "extraction_confidence": "medium"},
  "executive_summary": {
    "core_message": "AI value is concentrated in a few leaders.",
    "key_takeaways": ["Scale matters", "Talent is scarce"],
    "strategic_implications": "Invest in talent pipelines.",
    "briefing_hook": "Only 4% of companies capture most of the value."
  },
  "key_findings": [{"id": "F1", "finding": "Leaders reinvest gains", "evidence": "Survey", "page": 3, "confidence": "HIGH"}],
  "statistics": [
    {"id": "S1", "stat": "74% of companies struggle to scale AI", "value_raw": "74%", "page": "5", "timeframe": "2024"},
    "a bare string that should be dropped"
  ],
  "quotes": [{"quote": "AI is a team sport", "speaker": "Report", "page": "N/A"}],
  "aha_moments": [],
  "recommendations": [{"recommendation": "Build a data platform", "priority": "Critical"}],
  "methodology": "Survey of 1,000 executives",
  "limitations": {"acknowledged": "Self-reported data"}
}`

func TestParseExtraction_FencedEmptyFindings(t *testing.T) {
	result, err := ParseExtraction("```json\n{\"key_findings\": []}\n```")
	require.NoError(t, err)
	assert.NotNil(t, result.KeyFindings)
	assert.Empty(t, result.KeyFindings)
}

func TestParseExtraction_FullDocument(t *testing.T) {
	result, err := ParseExtraction(sampleExtraction)
	require.NoError(t, err)

	assert.Equal(t, "AI value is concentrated in a few leaders.\n\nScale matters; Talent is scarce\n\nInvest in talent pipelines.", result.ExecutiveSummary)
	assert.Equal(t, "Only 4% of companies capture most of the value.", result.BriefingHook)
	assert.Equal(t, domain.ConfidenceHigh, result.Metadata.UAERelevance)

	require.Len(t, result.KeyFindings, 1)
	assert.Equal(t, domain.ConfidenceHigh, result.KeyFindings[0].Confidence)

	require.Len(t, result.Statistics, 1, "non-object list items are dropped")
	assert.Equal(t, domain.Text("74% of companies struggle to scale AI"), result.Statistics[0].Text)
	page, ok := result.Statistics[0].Page.Int()
	assert.True(t, ok)
	assert.Equal(t, 5, page)

	require.Len(t, result.Quotes, 1)
	assert.Nil(t, result.Quotes[0].Page.Ptr(), "placeholder page becomes null")

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, domain.PriorityCritical, result.Recommendations[0].Priority)

	assert.Equal(t, domain.Text("Survey of 1,000 executives"), result.Methodology.Summary)
	assert.Equal(t, domain.Text("Self-reported data"), result.Limitations.Acknowledged)
	assert.NotNil(t, result.AhaMoments)
}

func TestParseExtraction_StringSummary(t *testing.T) {
	result, err := ParseExtraction(`{"executive_summary": "  Plain prose summary. "}`)
	require.NoError(t, err)
	assert.Equal(t, "Plain prose summary.", result.ExecutiveSummary)
	assert.Empty(t, result.BriefingHook)
}

func TestParseExtraction_ProseAroundObject(t *testing.T) {
	result, err := ParseExtraction("Here is the extraction:\n{\"quotes\": [{\"quote\": \"x\"}]}\nLet me know.")
	require.NoError(t, err)
	assert.Len(t, result.Quotes, 1)
}

func TestParseExtraction_Malformed(t *testing.T) {
	inputs := map[string]string{
		"truncated":      `{"key_findings": [{"finding": "cut off`,
		"truncated tail": `{"metadata": {"document_type": "x"}, "statistics": [`,
		"prose":          "I'm sorry, I cannot process this document.",
		"empty":          "",
		"fenced prose":   "```\nnot json at all\n```",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := ParseExtraction(input)
			assert.ErrorIs(t, err, domain.ErrExtractionParse)
		})
	}
}

func TestExtractor_MalformedResponsesDegradeToEmpty(t *testing.T) {
	inputs := []string{
		`{"key_findings": [{"finding": "cut off`,
		"Sorry, no JSON here.",
		"```json\n{broken\n```",
	}

	for _, input := range inputs {
		completion := mocks.NewMockCompletionService(input)
		extractor := NewExtractor(ExtractorConfig{Services: newTestServices(completion)})

		result := extractor.Extract(context.Background(), testDoc("# Report\nBody"), "Report", "BCG", nil)

		require.NotNil(t, result)
		assert.True(t, result.IsEmpty(), "input %q", input)
		assert.Equal(t, 1, completion.Calls())
	}
}

func TestExtractor_RequestParameters(t *testing.T) {
	completion := mocks.NewMockCompletionService(sampleExtraction)
	extractor := NewExtractor(ExtractorConfig{Services: newTestServices(completion)})
	year := 2024

	result := extractor.Extract(context.Background(), testDoc("# AI at Scale\n74% of companies struggle to scale AI"), "AI at Scale", "BCG", &year)

	require.False(t, result.IsEmpty())
	assert.Equal(t, "mock-model", result.Metadata.Model)

	reqs := completion.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.True(t, req.JSONMode)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	assert.Equal(t, DefaultExtractionMaxTokens, req.MaxTokens)
	assert.Equal(t, domain.DefaultExtractionTimeout, req.Timeout)
	assert.NotEmpty(t, req.SystemPrompt)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "TITLE: AI at Scale")
	assert.Contains(t, req.Messages[0].Content, "SOURCE: BCG")
	assert.Contains(t, req.Messages[0].Content, "YEAR: 2024")
	assert.NotContains(t, req.Messages[0].Content, "truncated")
}

func TestExtractor_TruncatesLongContent(t *testing.T) {
	completion := mocks.NewMockCompletionService(`{}`)
	extractor := NewExtractor(ExtractorConfig{Services: newTestServices(completion), MaxChars: 20})
	text := strings.Repeat("a", 20) + "SHOULD_NOT_APPEAR"

	extractor.Extract(context.Background(), testDoc(text), "T", "Unknown", nil)

	prompt := completion.Requests()[0].Messages[0].Content
	assert.Contains(t, prompt, strings.Repeat("a", 20))
	assert.NotContains(t, prompt, "SHOULD_NOT_APPEAR")
	assert.Contains(t, prompt, "Document truncated")
	assert.Contains(t, prompt, "first 20 of 37 characters")
	assert.Contains(t, prompt, "YEAR: Unknown")
}

func TestExtractor_CompletionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"provider error", errors.New("HTTP 500")},
		{"timeout", context.DeadlineExceeded},
		{"typed timeout", domain.ErrCompletionTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completion := mocks.NewMockCompletionService("")
			completion.CompleteFn = func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
				return nil, tt.err
			}
			extractor := NewExtractor(ExtractorConfig{Services: newTestServices(completion)})

			result := extractor.Extract(context.Background(), testDoc("text"), "T", "Unknown", nil)
			assert.True(t, result.IsEmpty())
		})
	}
}

func TestExtractor_TimeoutIsEnforced(t *testing.T) {
	completion := mocks.NewMockCompletionService(`{"key_findings": [{"finding": "late"}]}`)
	completion.Delay = time.Second
	extractor := NewExtractor(ExtractorConfig{Services: newTestServices(completion), Timeout: 20 * time.Millisecond})

	start := time.Now()
	result := extractor.Extract(context.Background(), testDoc("text"), "T", "Unknown", nil)

	assert.True(t, result.IsEmpty())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExtractor_NoCompletionService(t *testing.T) {
	extractor := NewExtractor(ExtractorConfig{Services: newTestServices(nil)})
	result := extractor.Extract(context.Background(), testDoc("text"), "T", "Unknown", nil)
	assert.True(t, result.IsEmpty())
}

func TestStripCodeFences(t *testing.T) {
	tests := map[string]string{
		"```json\n{}\n```": "{}",
		"```\n{}\n```":     "{}",
		"```json{}```":     "{}",
		"  {}  ":           "{}",
	}
	for in, want := range tests {
		assert.Equal(t, want, stripCodeFences(in), in)
	}
}
