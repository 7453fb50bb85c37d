package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// Factory creates AI services based on configuration
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a new AI service factory
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateCompletionService creates a completion service from settings.
// OpenAI uses the same chat-completions client as OpenRouter.
func (f *Factory) CreateCompletionService(settings domain.CompletionSettings) (driven.CompletionService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	logger := f.logger.With("provider", string(settings.Provider))
	switch settings.Provider {
	case domain.AIProviderOpenRouter:
		return NewOpenRouterCompletion(settings, logger)
	case domain.AIProviderOpenAI:
		if settings.BaseURL == "" {
			settings.BaseURL = defaultOpenAIBaseURL
		}
		return NewOpenRouterCompletion(settings, logger)
	case domain.AIProviderGemini:
		return NewGeminiCompletion(context.Background(), settings, logger)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}

// CreateEmbeddingService creates an embedding service from settings
func (f *Factory) CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAIEmbedding(settings)
	case domain.AIProviderGemini:
		return NewGeminiEmbedding(context.Background(), settings)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
