package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Ensure OpenRouterCompletion implements CompletionService
var _ driven.CompletionService = (*OpenRouterCompletion)(nil)

// defaultMaxTokens is sent when a request leaves MaxTokens unset
const defaultMaxTokens = 4096

// OpenRouterCompletion implements CompletionService against any
// OpenAI-compatible /chat/completions endpoint. OpenRouter is the default.
// A failed HTTP call to the primary model is retried once on the fallback model.
type OpenRouterCompletion struct {
	apiKey        string
	model         string
	fallbackModel string
	baseURL       string
	appName       string
	appURL        string
	limiter       *rate.Limiter
	client        *http.Client
	logger        *slog.Logger
}

// NewOpenRouterCompletion creates a completion client from settings.
// RequestsPerSecond > 0 enables client-side rate limiting.
func NewOpenRouterCompletion(settings domain.CompletionSettings, logger *slog.Logger) (*OpenRouterCompletion, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("completion API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := settings.Model
	if model == "" {
		model = domain.DefaultCompletionModel
	}
	baseURL := strings.TrimRight(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = domain.DefaultOpenRouterBaseURL
	}

	var limiter *rate.Limiter
	if settings.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(settings.RequestsPerSecond), 1)
	}

	return &OpenRouterCompletion{
		apiKey:        settings.APIKey,
		model:         model,
		fallbackModel: settings.FallbackModel,
		baseURL:       baseURL,
		appName:       settings.AppName,
		appURL:        settings.AppURL,
		limiter:       limiter,
		// Per-call deadlines come from the request context
		client: &http.Client{},
		logger: logger,
	}, nil
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []domain.Message `json:"messages"`
	MaxTokens      int              `json:"max_tokens"`
	Temperature    float64          `json:"temperature"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// statusError is a non-2xx reply from the provider
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("completion API returned status %d: %s", e.StatusCode, e.Body)
}

// Complete sends the request to the primary model, falling back to the
// fallback model when the provider rejects the call.
func (c *OpenRouterCompletion) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := c.completeWith(ctx, c.model, req)
	var se *statusError
	if errors.As(err, &se) && c.fallbackModel != "" && c.fallbackModel != c.model {
		c.logger.Warn("primary model failed, trying fallback",
			"model", c.model,
			"fallback_model", c.fallbackModel,
			"status", se.StatusCode,
		)
		resp, err = c.completeWith(ctx, c.fallbackModel, req)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCompletionTimeout, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *OpenRouterCompletion) completeWith(ctx context.Context, model string, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	messages := make([]domain.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	c.logger.Debug("completion request", "model", model, "messages", len(messages), "json_mode", req.JSONMode)
	start := time.Now()

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("completion API returned no choices")
	}

	resp := &domain.CompletionResponse{
		Content:          out.Choices[0].Message.Content,
		Model:            out.Model,
		PromptTokens:     out.Usage.PromptTokens,
		CompletionTokens: out.Usage.CompletionTokens,
	}
	if resp.Model == "" {
		resp.Model = model
	}

	c.logger.Debug("completion response",
		"model", resp.Model,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"duration", time.Since(start),
	)
	return resp, nil
}

// Model returns the primary model name
func (c *OpenRouterCompletion) Model() string {
	return c.model
}

// HealthCheck lists the provider's models to verify the key and endpoint
func (c *OpenRouterCompletion) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: completion API returned status %d", domain.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// Close releases idle HTTP connections
func (c *OpenRouterCompletion) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *OpenRouterCompletion) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{StatusCode: resp.StatusCode, Body: domain.TruncateRunes(string(respBody), 500)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if cr, ok := out.(*chatResponse); ok && cr.Error != nil {
		return &statusError{StatusCode: resp.StatusCode, Body: cr.Error.Message}
	}
	return nil
}

func (c *OpenRouterCompletion) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.appURL != "" {
		req.Header.Set("HTTP-Referer", c.appURL)
	}
	if c.appName != "" {
		req.Header.Set("X-Title", c.appName)
	}
}
