package domain

import (
	"sync"
	"testing"
)

func TestNewRuntimeConfig(t *testing.T) {
	config := NewRuntimeConfig("postgres", KnowledgeBackendRAGFlow)

	if config.QueueBackend != "postgres" {
		t.Errorf("expected postgres, got %s", config.QueueBackend)
	}
	if config.CompletionAvailable() {
		t.Error("expected completion to be unavailable initially")
	}
	if config.EmbeddingAvailable() {
		t.Error("expected embedding to be unavailable initially")
	}
}

func TestRuntimeConfig_CanExtract(t *testing.T) {
	config := NewRuntimeConfig("redis", KnowledgeBackendRAGFlow)

	if config.CanExtract() {
		t.Error("expected extraction to be unavailable initially")
	}
	config.SetCompletionAvailable(true)
	if !config.CanExtract() {
		t.Error("expected extraction after enabling completion")
	}
	config.SetCompletionAvailable(false)
	if config.CanExtract() {
		t.Error("expected extraction disabled after clearing")
	}
}

func TestRuntimeConfig_CanRetrieve(t *testing.T) {
	tests := []struct {
		name      string
		backend   KnowledgeBackend
		embedding bool
		expected  bool
	}{
		{"ragflow without embedding", KnowledgeBackendRAGFlow, false, true},
		{"chromem without embedding", KnowledgeBackendChromem, false, false},
		{"chromem with embedding", KnowledgeBackendChromem, true, true},
		{"no backend", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewRuntimeConfig("redis", tt.backend)
			config.SetEmbeddingAvailable(tt.embedding)
			if got := config.CanRetrieve(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRuntimeConfig_ConcurrentAccess(t *testing.T) {
	config := NewRuntimeConfig("redis", KnowledgeBackendChromem)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v bool) {
			defer wg.Done()
			config.SetCompletionAvailable(v)
			config.SetEmbeddingAvailable(v)
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			_ = config.CanExtract()
			_ = config.CanRetrieve()
		}()
	}
	wg.Wait()
}
