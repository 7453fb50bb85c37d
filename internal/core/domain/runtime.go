package domain

import "sync"

// RuntimeConfig tracks which backends are in use and which AI services are
// currently available. Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	QueueBackend     string // "redis" or "postgres"
	KnowledgeBackend KnowledgeBackend

	completionAvailable bool
	embeddingAvailable  bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(queueBackend string, kb KnowledgeBackend) *RuntimeConfig {
	return &RuntimeConfig{
		QueueBackend:     queueBackend,
		KnowledgeBackend: kb,
	}
}

// CompletionAvailable returns whether a completion service is configured
func (c *RuntimeConfig) CompletionAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.completionAvailable
}

// EmbeddingAvailable returns whether an embedding service is configured
func (c *RuntimeConfig) EmbeddingAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.embeddingAvailable
}

func (c *RuntimeConfig) SetCompletionAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completionAvailable = available
}

func (c *RuntimeConfig) SetEmbeddingAvailable(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embeddingAvailable = available
}

// CanExtract returns true if structured extraction can run.
// Without a completion service every extraction degrades to empty.
func (c *RuntimeConfig) CanExtract() bool {
	return c.CompletionAvailable()
}

// CanRetrieve returns true if the knowledge base can answer queries.
// The local backend needs embeddings; the hosted one embeds server-side.
func (c *RuntimeConfig) CanRetrieve() bool {
	if c.KnowledgeBackend == KnowledgeBackendChromem {
		return c.EmbeddingAvailable()
	}
	return c.KnowledgeBackend != ""
}
