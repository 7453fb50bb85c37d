package driven

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// CompletionService generates text from a prompt.
// Implementations must honour JSONMode by asking the provider for a single
// JSON object, and report deadline expiry as domain.ErrCompletionTimeout.
type CompletionService interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error)

	// Model returns the primary model name
	Model() string

	HealthCheck(ctx context.Context) error

	Close() error
}
