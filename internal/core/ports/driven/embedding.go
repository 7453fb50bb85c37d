package driven

import (
	"context"
)

// EmbeddingService generates text embeddings for the local knowledge base.
type EmbeddingService interface {
	// Embed generates embeddings for multiple texts
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a retrieval question
	EmbedQuery(ctx context.Context, query string) ([]float32, error)

	Dimensions() int

	Model() string

	HealthCheck(ctx context.Context) error

	Close() error
}
