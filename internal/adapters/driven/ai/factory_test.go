package ai

import (
	"errors"
	"testing"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

func TestFactory_CreateCompletionService(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.CompletionSettings
		wantNil  bool
		wantErr  error
		wantType string
	}{
		{
			name:    "not configured",
			wantNil: true,
		},
		{
			name:     "openrouter",
			settings: domain.CompletionSettings{Provider: domain.AIProviderOpenRouter, APIKey: "sk-or"},
			wantType: "openrouter",
		},
		{
			name:     "openai uses the chat completions client",
			settings: domain.CompletionSettings{Provider: domain.AIProviderOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini"},
			wantType: "openrouter",
		},
		{
			name:     "unknown provider",
			settings: domain.CompletionSettings{Provider: "anthropic", APIKey: "sk-ant"},
			wantErr:  domain.ErrInvalidProvider,
		},
	}

	factory := NewFactory(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := factory.CreateCompletionService(tt.settings)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if svc != nil {
					t.Error("expected nil service")
				}
				return
			}
			if _, ok := svc.(*OpenRouterCompletion); !ok && tt.wantType == "openrouter" {
				t.Errorf("service type = %T, want *OpenRouterCompletion", svc)
			}
		})
	}
}

func TestFactory_OpenAIBaseURL(t *testing.T) {
	svc, err := NewFactory(nil).CreateCompletionService(domain.CompletionSettings{
		Provider: domain.AIProviderOpenAI,
		APIKey:   "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := svc.(*OpenRouterCompletion).baseURL; got != defaultOpenAIBaseURL {
		t.Errorf("baseURL = %s, want %s", got, defaultOpenAIBaseURL)
	}
}

func TestFactory_CreateEmbeddingService(t *testing.T) {
	factory := NewFactory(nil)

	svc, err := factory.CreateEmbeddingService(domain.EmbeddingSettings{})
	if err != nil || svc != nil {
		t.Errorf("unconfigured settings = %v, %v; want nil, nil", svc, err)
	}

	svc, err = factory.CreateEmbeddingService(domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenAI,
		APIKey:   "sk-test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.Model() != defaultOpenAIEmbeddingModel {
		t.Errorf("Model() = %s, want %s", svc.Model(), defaultOpenAIEmbeddingModel)
	}

	_, err = factory.CreateEmbeddingService(domain.EmbeddingSettings{
		Provider: domain.AIProviderOpenRouter,
		APIKey:   "sk-or",
	})
	if !errors.Is(err, domain.ErrInvalidProvider) {
		t.Errorf("error = %v, want ErrInvalidProvider", err)
	}
}

func TestGeminiModelName(t *testing.T) {
	tests := map[string]string{
		"google/gemini-2.5-flash": "gemini-2.5-flash",
		"gemini-2.5-flash":        "gemini-2.5-flash",
		"":                        "",
	}
	for in, want := range tests {
		if got := geminiModelName(in); got != want {
			t.Errorf("geminiModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewGeminiCompletion_RequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiCompletion(t.Context(), domain.CompletionSettings{Provider: domain.AIProviderGemini}, nil); err == nil {
		t.Error("expected error for empty API key")
	}
}
