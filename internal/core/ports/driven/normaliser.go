package driven

import (
	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// Normaliser converts one source format into clean markdown.
type Normaliser interface {
	// Normalise transforms raw content into markdown.
	// The mimeType helps determine the appropriate processing.
	Normalise(content string, mimeType string) string

	// SupportedTypes returns MIME types this normaliser handles.
	// Can include wildcards like "text/*" or specific types like "text/markdown".
	SupportedTypes() []string

	// Priority returns the normaliser priority (higher = more specific).
	//   50-89:  Format-specific (content list, HTML)
	//   10-49:  Generic (markdown clean-up)
	//   1-9:    Fallback (plain text)
	Priority() int
}

// NormaliserRegistry manages content normalisers.
// When multiple normalisers match a MIME type, the highest priority one is used.
type NormaliserRegistry interface {
	// Get returns the best-matching normaliser, or nil if none is registered.
	Get(mimeType string) Normaliser

	// GetAll returns all matching normalisers, highest priority first.
	GetAll(mimeType string) []Normaliser

	Register(normaliser Normaliser)

	// List returns all registered MIME types.
	List() []string
}

// ExtractionProcessor cleans up an extraction after parsing.
// Processors form a pipeline ordered by Order().
type ExtractionProcessor interface {
	// Process returns a cleaned copy; the input is not modified.
	Process(result *domain.ExtractionResult, doc *domain.SourceDocument) *domain.ExtractionResult

	// Name returns the processor name for logging/debugging.
	Name() string

	// Order returns the processor order in the pipeline (lower = earlier).
	Order() int
}

// ExtractionPipeline chains extraction processors in order.
type ExtractionPipeline interface {
	Process(result *domain.ExtractionResult, doc *domain.SourceDocument) *domain.ExtractionResult

	// Add adds a processor. Processors are sorted by Order() before processing.
	Add(processor ExtractionProcessor)

	// List returns processor names in order.
	List() []string
}
