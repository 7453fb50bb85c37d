package runtime

import (
	"context"
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Services holds the AI services the pipeline reads at call time.
// They are constructed once at startup and may be swapped (for example
// after a health check), so callers fetch them per operation instead of
// caching them. Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	config *domain.RuntimeConfig

	// Dynamic services (can be nil)
	completion driven.CompletionService
	embedding  driven.EmbeddingService
}

// NewServices creates a new Services registry
func NewServices(config *domain.RuntimeConfig) *Services {
	return &Services{
		config: config,
	}
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// CompletionService returns the current completion service (may be nil)
func (s *Services) CompletionService() driven.CompletionService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completion
}

// EmbeddingService returns the current embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embedding
}

// SetCompletionService replaces the completion service, closing the old one.
func (s *Services) SetCompletionService(svc driven.CompletionService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completion != nil && s.completion != svc {
		_ = s.completion.Close()
	}
	s.completion = svc
	s.config.SetCompletionAvailable(svc != nil)
}

// SetEmbeddingService replaces the embedding service, closing the old one.
func (s *Services) SetEmbeddingService(svc driven.EmbeddingService) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.embedding != nil && s.embedding != svc {
		_ = s.embedding.Close()
	}
	s.embedding = svc
	s.config.SetEmbeddingAvailable(svc != nil)
}

// ValidateAndSetCompletion health-checks svc before installing it.
// A failing service is closed and the current one is kept.
func (s *Services) ValidateAndSetCompletion(ctx context.Context, svc driven.CompletionService) error {
	if svc == nil {
		s.SetCompletionService(nil)
		return nil
	}
	if err := svc.HealthCheck(ctx); err != nil {
		_ = svc.Close()
		return err
	}
	s.SetCompletionService(svc)
	return nil
}

// ValidateAndSetEmbedding health-checks svc before installing it.
func (s *Services) ValidateAndSetEmbedding(ctx context.Context, svc driven.EmbeddingService) error {
	if svc == nil {
		s.SetEmbeddingService(nil)
		return nil
	}
	if err := svc.HealthCheck(ctx); err != nil {
		_ = svc.Close()
		return err
	}
	s.SetEmbeddingService(svc)
	return nil
}

// Close shuts down all services
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completion != nil {
		_ = s.completion.Close()
		s.completion = nil
	}
	if s.embedding != nil {
		_ = s.embedding.Close()
		s.embedding = nil
	}
	s.config.SetCompletionAvailable(false)
	s.config.SetEmbeddingAvailable(false)
	return nil
}
