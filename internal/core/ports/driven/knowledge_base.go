package driven

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// KnowledgeBase indexes document text for semantic retrieval.
// Ranking and chunking are entirely the backend's concern.
type KnowledgeBase interface {
	// EnsureCollection returns the ID of the named collection, creating it if needed.
	EnsureCollection(ctx context.Context, name string) (string, error)

	// UploadText stores text as a new document in the collection.
	UploadText(ctx context.Context, collectionID, name, text string) (*domain.KBDocument, error)

	// TriggerParse asks the backend to index uploaded documents. Best-effort:
	// backends that index on upload return nil.
	TriggerParse(ctx context.Context, collectionID string, documentIDs []string) error

	// Retrieve returns passages relevant to the question.
	Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error)

	HealthCheck(ctx context.Context) error
}
