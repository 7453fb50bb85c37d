package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

func seedReports(t *testing.T, store *mocks.MockReportStore, databank *mocks.MockDataBankStore) *domain.Report {
	t.Helper()
	ctx := context.Background()
	year := 2024
	for _, r := range []*domain.Report{
		{ID: "r1", IdentityKey: "BCG_AI_2024", Title: "AI at Scale", Organization: "BCG", Category: "Consulting", Year: &year},
		{ID: "r2", IdentityKey: "OECD_Skills_2023", Title: "Skills Outlook", Organization: "OECD", Category: "Policy"},
		{ID: "r3", IdentityKey: "WEF_Jobs_2025", Title: "Future of Jobs", Organization: "WEF", Category: "Think Tank"},
	} {
		require.NoError(t, store.Create(ctx, r))
	}
	require.NoError(t, databank.AddItem(ctx, &domain.DataBankItem{ID: "d1", ReportID: "r1", Type: domain.DataBankStatistic, Content: "74%"}))
	require.NoError(t, databank.AddItem(ctx, &domain.DataBankItem{ID: "d2", ReportID: "r1", Type: domain.DataBankQuote, Content: "quote"}))
	require.NoError(t, databank.AddItem(ctx, &domain.DataBankItem{ID: "d3", ReportID: "r2", Type: domain.DataBankFinding, Content: "finding"}))

	r, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	return r
}

func TestReportService_GetAndCount(t *testing.T) {
	store, databank := mocks.NewMockReportStore(), mocks.NewMockDataBankStore()
	seedReports(t, store, databank)
	svc := NewReportService(store, databank, nil)

	r, err := svc.Get(context.Background(), "r2")
	require.NoError(t, err)
	assert.Equal(t, "Skills Outlook", r.Title)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	n, err := svc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReportService_List(t *testing.T) {
	store, databank := mocks.NewMockReportStore(), mocks.NewMockDataBankStore()
	seedReports(t, store, databank)
	svc := NewReportService(store, databank, nil)
	ctx := context.Background()

	all, err := svc.List(ctx, domain.ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	consulting, err := svc.List(ctx, domain.ReportFilter{Category: "Consulting"})
	require.NoError(t, err)
	require.Len(t, consulting, 1)
	assert.Equal(t, "r1", consulting[0].ID)

	page, err := svc.List(ctx, domain.ReportFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "OECD_Skills_2023", page[0].IdentityKey)

	_, err = svc.List(ctx, domain.ReportFilter{Offset: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestReportService_DeleteCascades(t *testing.T) {
	store, databank := mocks.NewMockReportStore(), mocks.NewMockDataBankStore()
	seedReports(t, store, databank)
	svc := NewReportService(store, databank, nil)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "r1"))

	_, err := store.Get(ctx, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	items, _ := databank.ListByReport(ctx, "r1")
	assert.Empty(t, items)
	others, _ := databank.ListByReport(ctx, "r2")
	assert.Len(t, others, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "r1"), domain.ErrNotFound)
}

func TestReportService_DataBank(t *testing.T) {
	store, databank := mocks.NewMockReportStore(), mocks.NewMockDataBankStore()
	seedReports(t, store, databank)
	svc := NewReportService(store, databank, nil)

	items, err := svc.DataBank(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = svc.DataBank(context.Background(), "r3")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = svc.DataBank(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
