package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// MockReportStore is an in-memory ReportStore for testing.
// Stored reports are copied so callers cannot mutate them in place.
type MockReportStore struct {
	mu      sync.RWMutex
	reports map[string]*domain.Report
	byKey   map[string]string

	FindFn   func(identityKey string) (*domain.Report, error)
	CreateFn func(report *domain.Report) error
	UpdateFn func(report *domain.Report) error
}

func NewMockReportStore() *MockReportStore {
	return &MockReportStore{
		reports: make(map[string]*domain.Report),
		byKey:   make(map[string]string),
	}
}

func (m *MockReportStore) FindByIdentityKey(ctx context.Context, identityKey string) (*domain.Report, error) {
	if m.FindFn != nil {
		return m.FindFn(identityKey)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[identityKey]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r := *m.reports[id]
	return &r, nil
}

func (m *MockReportStore) Create(ctx context.Context, report *domain.Report) error {
	if m.CreateFn != nil {
		return m.CreateFn(report)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[report.IdentityKey]; ok {
		return domain.ErrAlreadyExists
	}
	r := *report
	m.reports[report.ID] = &r
	m.byKey[report.IdentityKey] = report.ID
	return nil
}

func (m *MockReportStore) Update(ctx context.Context, report *domain.Report) error {
	if m.UpdateFn != nil {
		return m.UpdateFn(report)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.ID]; !ok {
		return domain.ErrNotFound
	}
	r := *report
	m.reports[report.ID] = &r
	m.byKey[report.IdentityKey] = report.ID
	return nil
}

func (m *MockReportStore) Get(ctx context.Context, id string) (*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MockReportStore) List(ctx context.Context, filter domain.ReportFilter) ([]*domain.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.Report
	for _, r := range m.reports {
		if filter.Organization != "" && r.Organization != filter.Organization {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Year != nil && (r.Year == nil || *r.Year != *filter.Year) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(filter.Query)) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityKey < out[j].IdentityKey })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Report{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockReportStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.byKey, r.IdentityKey)
	delete(m.reports, id)
	return nil
}

func (m *MockReportStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.reports), nil
}

// MockDataBankStore is an in-memory DataBankStore for testing.
type MockDataBankStore struct {
	mu    sync.Mutex
	items []*domain.DataBankItem

	AddFn func(item *domain.DataBankItem) error
}

func NewMockDataBankStore() *MockDataBankStore {
	return &MockDataBankStore{}
}

func (m *MockDataBankStore) AddItem(ctx context.Context, item *domain.DataBankItem) error {
	if m.AddFn != nil {
		if err := m.AddFn(item); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *item
	m.items = append(m.items, &cp)
	return nil
}

func (m *MockDataBankStore) ListByReport(ctx context.Context, reportID string) ([]*domain.DataBankItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DataBankItem
	for _, it := range m.items {
		if it.ReportID == reportID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockDataBankStore) DeleteByReport(ctx context.Context, reportID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.items[:0]
	removed := 0
	for _, it := range m.items {
		if it.ReportID == reportID {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	m.items = kept
	return removed, nil
}

func (m *MockDataBankStore) CountByType(ctx context.Context) (map[domain.DataBankItemType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.DataBankItemType]int)
	for _, it := range m.items {
		out[it.Type]++
	}
	return out, nil
}

// Items returns a copy of every stored item.
func (m *MockDataBankStore) Items() []*domain.DataBankItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.DataBankItem, len(m.items))
	copy(out, m.items)
	return out
}
