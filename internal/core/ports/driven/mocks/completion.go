package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// MockCompletionService is a mock implementation of CompletionService for testing.
// It records every request and tracks how many calls are in flight at once.
type MockCompletionService struct {
	mu          sync.Mutex
	requests    []domain.CompletionRequest
	inFlight    int
	maxInFlight int

	// Response is returned when CompleteFn is nil
	Response string

	// Delay is slept (respecting ctx) before answering
	Delay time.Duration

	CompleteFn func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error)
	HealthFn   func() error
}

// NewMockCompletionService creates a mock answering with response.
func NewMockCompletionService(response string) *MockCompletionService {
	return &MockCompletionService{Response: response}
}

func (m *MockCompletionService) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	return &domain.CompletionResponse{
		Content:          m.Response,
		Model:            "mock-model",
		PromptTokens:     len(req.Messages),
		CompletionTokens: len(m.Response),
	}, nil
}

func (m *MockCompletionService) Model() string {
	return "mock-model"
}

func (m *MockCompletionService) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn()
	}
	return nil
}

func (m *MockCompletionService) Close() error {
	return nil
}

// Helper methods for testing

// Calls returns the number of Complete calls made.
func (m *MockCompletionService) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *MockCompletionService) Requests() []domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (m *MockCompletionService) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}
