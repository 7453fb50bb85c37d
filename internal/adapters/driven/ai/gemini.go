package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.CompletionService = (*GeminiCompletion)(nil)
	_ driven.EmbeddingService  = (*GeminiEmbedding)(nil)
)

const (
	defaultGeminiEmbeddingModel      = "text-embedding-004"
	defaultGeminiEmbeddingDimensions = 768
)

// geminiModelName strips an OpenRouter-style vendor prefix so the same model
// setting works against the native API ("google/gemini-2.5-flash" -> "gemini-2.5-flash").
func geminiModelName(model string) string {
	return strings.TrimPrefix(model, "google/")
}

// GeminiCompletion implements CompletionService using the native Gemini API.
type GeminiCompletion struct {
	client        *genai.Client
	model         string
	fallbackModel string
	logger        *slog.Logger
}

// NewGeminiCompletion creates a Gemini completion client.
func NewGeminiCompletion(ctx context.Context, settings domain.CompletionSettings, logger *slog.Logger) (*GeminiCompletion, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(settings.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultCompletionModel
	}
	return &GeminiCompletion{
		client:        client,
		model:         geminiModelName(model),
		fallbackModel: geminiModelName(settings.FallbackModel),
		logger:        logger,
	}, nil
}

// Complete sends the conversation to the primary model and retries once on
// the fallback model unless the call ran out of time.
func (g *GeminiCompletion) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := g.completeWith(ctx, g.model, req)
	if err != nil && ctx.Err() == nil && g.fallbackModel != "" && g.fallbackModel != g.model {
		g.logger.Warn("primary model failed, trying fallback",
			"model", g.model,
			"fallback_model", g.fallbackModel,
			"error", err,
		)
		resp, err = g.completeWith(ctx, g.fallbackModel, req)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCompletionTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func (g *GeminiCompletion) completeWith(ctx context.Context, modelName string, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidInput)
	}

	model := g.client.GenerativeModel(modelName)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	system := req.SystemPrompt
	var history []*genai.Content
	for _, m := range req.Messages[:len(req.Messages)-1] {
		switch m.Role {
		case domain.RoleSystem:
			system = strings.TrimSpace(system + "\n\n" + m.Content)
		case domain.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	chat := model.StartChat()
	chat.History = history

	last := req.Messages[len(req.Messages)-1]
	resp, err := chat.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	out := &domain.CompletionResponse{
		Content: sb.String(),
		Model:   modelName,
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Model returns the primary model name
func (g *GeminiCompletion) Model() string {
	return g.model
}

// HealthCheck fetches the primary model's metadata
func (g *GeminiCompletion) HealthCheck(ctx context.Context) error {
	if _, err := g.client.GenerativeModel(g.model).Info(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return nil
}

func (g *GeminiCompletion) Close() error {
	return g.client.Close()
}

// GeminiEmbedding implements EmbeddingService using Gemini embedding models.
type GeminiEmbedding struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedding creates a Gemini embedding client.
func NewGeminiEmbedding(ctx context.Context, settings domain.EmbeddingSettings) (*GeminiEmbedding, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(settings.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := geminiModelName(settings.Model)
	if model == "" {
		model = defaultGeminiEmbeddingModel
	}
	dimensions := settings.Dimensions
	if dimensions <= 0 {
		dimensions = defaultGeminiEmbeddingDimensions
	}
	return &GeminiEmbedding{client: client, model: model, dimensions: dimensions}, nil
}

// Embed embeds texts in one batch call, preserving input order
func (g *GeminiEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for input %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// EmbedQuery embeds a single retrieval question
func (g *GeminiEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := g.client.EmbeddingModel(g.model).EmbedContent(ctx, genai.Text(query))
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return res.Embedding.Values, nil
}

func (g *GeminiEmbedding) Dimensions() int {
	return g.dimensions
}

func (g *GeminiEmbedding) Model() string {
	return g.model
}

func (g *GeminiEmbedding) HealthCheck(ctx context.Context) error {
	_, err := g.EmbedQuery(ctx, "health check")
	return err
}

func (g *GeminiEmbedding) Close() error {
	return g.client.Close()
}
