package domain

import "time"

// Message roles for completion requests.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn sent to a completion service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral text completion request.
type CompletionRequest struct {
	Messages     []Message
	SystemPrompt string
	Temperature  float64
	JSONMode     bool
	MaxTokens    int
	// Timeout bounds this call; zero means the caller's context only.
	Timeout time.Duration
}

// CompletionResponse is the generated text plus usage metadata.
type CompletionResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
}

// AIProvider identifies a completion or embedding backend.
type AIProvider string

const (
	AIProviderOpenRouter AIProvider = "openrouter"
	AIProviderGemini     AIProvider = "gemini"
	AIProviderOpenAI     AIProvider = "openai"
)

// Default completion settings.
const (
	DefaultCompletionModel   = "google/gemini-3-flash-preview"
	DefaultFallbackModel     = "google/gemini-2.5-flash"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	DefaultChatTimeout       = 60 * time.Second
	DefaultExtractionTimeout = 120 * time.Second
)

// CompletionSettings configures a completion service.
type CompletionSettings struct {
	Provider          AIProvider
	APIKey            string
	Model             string
	FallbackModel     string
	BaseURL           string
	RequestsPerSecond float64
	// AppName and AppURL are sent as attribution headers where supported.
	AppName string
	AppURL  string
}

// IsConfigured reports whether enough is set to build a client.
func (s CompletionSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}

// EmbeddingSettings configures an embedding service.
type EmbeddingSettings struct {
	Provider   AIProvider
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

func (s EmbeddingSettings) IsConfigured() bool {
	return s.Provider != "" && s.APIKey != ""
}
