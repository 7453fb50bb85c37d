package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// MockKnowledgeBase is an in-memory knowledge base for testing.
type MockKnowledgeBase struct {
	mu          sync.Mutex
	collections map[string]string // name -> id
	documents   map[string]*mockKBDoc
	uploads     int
	parses      int

	UploadFn   func(collectionID, name, text string) (*domain.KBDocument, error)
	ParseFn    func(collectionID string, ids []string) error
	RetrieveFn func(query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error)
	HealthFn   func() error
}

type mockKBDoc struct {
	doc  domain.KBDocument
	text string
}

func NewMockKnowledgeBase() *MockKnowledgeBase {
	return &MockKnowledgeBase{
		collections: make(map[string]string),
		documents:   make(map[string]*mockKBDoc),
	}
}

func (m *MockKnowledgeBase) EnsureCollection(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.collections[name]; ok {
		return id, nil
	}
	id := "col-" + name
	m.collections[name] = id
	return id, nil
}

func (m *MockKnowledgeBase) UploadText(ctx context.Context, collectionID, name, text string) (*domain.KBDocument, error) {
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()

	if m.UploadFn != nil {
		return m.UploadFn(collectionID, name, text)
	}

	doc := domain.KBDocument{ID: domain.GenerateID(), CollectionID: collectionID, Name: name}
	m.mu.Lock()
	m.documents[doc.ID] = &mockKBDoc{doc: doc, text: text}
	m.mu.Unlock()
	return &doc, nil
}

func (m *MockKnowledgeBase) TriggerParse(ctx context.Context, collectionID string, documentIDs []string) error {
	m.mu.Lock()
	m.parses++
	m.mu.Unlock()
	if m.ParseFn != nil {
		return m.ParseFn(collectionID, documentIDs)
	}
	return nil
}

// Retrieve returns every stored document containing a word of the question.
func (m *MockKnowledgeBase) Retrieve(ctx context.Context, query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error) {
	if m.RetrieveFn != nil {
		return m.RetrieveFn(query)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := make(map[string]bool, len(query.DocumentIDs))
	for _, id := range query.DocumentIDs {
		allowed[id] = true
	}

	var out []*domain.RetrievedChunk
	words := strings.Fields(strings.ToLower(query.Question))
	for id, d := range m.documents {
		if len(allowed) > 0 && !allowed[id] {
			continue
		}
		text := strings.ToLower(d.text)
		for _, w := range words {
			if strings.Contains(text, w) {
				out = append(out, &domain.RetrievedChunk{
					Content:      d.text,
					DocumentID:   id,
					DocumentName: d.doc.Name,
					Score:        1,
				})
				break
			}
		}
	}
	if query.TopK > 0 && len(out) > query.TopK {
		out = out[:query.TopK]
	}
	return out, nil
}

func (m *MockKnowledgeBase) HealthCheck(ctx context.Context) error {
	if m.HealthFn != nil {
		return m.HealthFn()
	}
	return nil
}

// Helper methods for testing

func (m *MockKnowledgeBase) Uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

func (m *MockKnowledgeBase) Parses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parses
}

// Calls returns uploads plus parse triggers.
func (m *MockKnowledgeBase) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads + m.parses
}
