package driven

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// SourceReader loads pre-OCR'd documents from storage.
type SourceReader interface {
	// Read loads the document in folder. Returns domain.ErrNotFound when no
	// parsable source file exists and domain.ErrEmptySource when it has no text.
	Read(ctx context.Context, folder string) (*domain.SourceDocument, error)

	// List returns candidate document folders under root, sorted.
	List(ctx context.Context, root string) ([]string, error)
}
