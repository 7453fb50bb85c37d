package driven

import (
	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// AIServiceFactory creates AI services based on configuration
type AIServiceFactory interface {
	// CreateCompletionService returns nil, nil if settings are not configured
	CreateCompletionService(settings domain.CompletionSettings) (CompletionService, error)

	// CreateEmbeddingService returns nil, nil if settings are not configured
	CreateEmbeddingService(settings domain.EmbeddingSettings) (EmbeddingService, error)
}
