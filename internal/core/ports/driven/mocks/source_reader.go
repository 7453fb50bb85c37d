package mocks

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// MockSourceReader serves documents from memory, keyed by folder path.
type MockSourceReader struct {
	mu    sync.Mutex
	docs  map[string]string
	reads int

	ReadFn func(folder string) (*domain.SourceDocument, error)
}

func NewMockSourceReader() *MockSourceReader {
	return &MockSourceReader{docs: make(map[string]string)}
}

// Add registers text for a folder.
func (m *MockSourceReader) Add(folder, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[folder] = text
}

func (m *MockSourceReader) Read(ctx context.Context, folder string) (*domain.SourceDocument, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()

	if m.ReadFn != nil {
		return m.ReadFn(folder)
	}

	m.mu.Lock()
	text, ok := m.docs[folder]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptySource
	}
	return &domain.SourceDocument{
		IdentityKey: filepath.Base(folder),
		Path:        folder,
		FileName:    filepath.Base(folder) + ".md",
		RawText:     text,
	}, nil
}

func (m *MockSourceReader) List(ctx context.Context, root string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for folder := range m.docs {
		if strings.HasPrefix(folder, root) {
			out = append(out, folder)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MockSourceReader) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
