package mocks

import (
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// MockNormaliser passes content through unless NormaliseFn is set.
type MockNormaliser struct {
	NormaliseFn func(content, mimeType string) string
	Types       []string
	Prio        int
}

func NewMockNormaliser() *MockNormaliser {
	return &MockNormaliser{Types: []string{"text/markdown", "text/html"}, Prio: 50}
}

func (m *MockNormaliser) Normalise(content, mimeType string) string {
	if m.NormaliseFn != nil {
		return m.NormaliseFn(content, mimeType)
	}
	return content
}

func (m *MockNormaliser) SupportedTypes() []string { return m.Types }

func (m *MockNormaliser) Priority() int { return m.Prio }

// MockNormaliserRegistry returns a single normaliser for every MIME type.
type MockNormaliserRegistry struct {
	mu         sync.Mutex
	normaliser driven.Normaliser

	GetFn func(mimeType string) driven.Normaliser
}

func NewMockNormaliserRegistry() *MockNormaliserRegistry {
	return &MockNormaliserRegistry{normaliser: NewMockNormaliser()}
}

func (m *MockNormaliserRegistry) Get(mimeType string) driven.Normaliser {
	if m.GetFn != nil {
		return m.GetFn(mimeType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.normaliser
}

func (m *MockNormaliserRegistry) GetAll(mimeType string) []driven.Normaliser {
	if n := m.Get(mimeType); n != nil {
		return []driven.Normaliser{n}
	}
	return nil
}

func (m *MockNormaliserRegistry) Register(n driven.Normaliser) {
	m.SetNormaliser(n)
}

func (m *MockNormaliserRegistry) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.normaliser == nil {
		return nil
	}
	return m.normaliser.SupportedTypes()
}

// SetNormaliser replaces the normaliser returned by Get.
func (m *MockNormaliserRegistry) SetNormaliser(n driven.Normaliser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normaliser = n
}
