package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

func TestRetrievalService_FiltersByReport(t *testing.T) {
	ctx := context.Background()
	kb := mocks.NewMockKnowledgeBase()
	store := mocks.NewMockReportStore()

	colID, err := kb.EnsureCollection(ctx, DefaultCollection)
	require.NoError(t, err)
	aiDoc, err := kb.UploadText(ctx, colID, "ai.md", "AI adoption in government")
	require.NoError(t, err)
	_, err = kb.UploadText(ctx, colID, "energy.md", "AI for energy grids")
	require.NoError(t, err)

	require.NoError(t, store.Create(ctx, &domain.Report{ID: "r1", IdentityKey: "ai", KnowledgeBaseDocID: &aiDoc.ID}))
	require.NoError(t, store.Create(ctx, &domain.Report{ID: "r2", IdentityKey: "no_upload"}))

	svc := NewRetrievalService(RetrievalServiceConfig{KnowledgeBase: kb, Reports: store})

	all, err := svc.Retrieve(ctx, "AI", 0, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := svc.Retrieve(ctx, "AI", 5, []string{"r1", "missing"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, aiDoc.ID, filtered[0].DocumentID)

	none, err := svc.Retrieve(ctx, "AI", 5, []string{"r2"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRetrievalService_CachesResults(t *testing.T) {
	calls := 0
	kb := mocks.NewMockKnowledgeBase()
	kb.RetrieveFn = func(query domain.RetrievalQuery) ([]*domain.RetrievedChunk, error) {
		calls++
		assert.Equal(t, domain.DefaultRetrievalTopK, query.TopK)
		assert.Equal(t, []string{"col-" + DefaultCollection}, query.CollectionIDs)
		return []*domain.RetrievedChunk{{Content: "passage"}}, nil
	}
	svc := NewRetrievalService(RetrievalServiceConfig{KnowledgeBase: kb, Reports: mocks.NewMockReportStore()})

	for i := 0; i < 3; i++ {
		chunks, err := svc.Retrieve(context.Background(), "What is sovereign AI?", 0, nil)
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	}
	assert.Equal(t, 1, calls)

	_, err := svc.Retrieve(context.Background(), "A different question", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetrievalService_Validation(t *testing.T) {
	svc := NewRetrievalService(RetrievalServiceConfig{KnowledgeBase: mocks.NewMockKnowledgeBase(), Reports: mocks.NewMockReportStore()})
	_, err := svc.Retrieve(context.Background(), "   ", 5, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	noKB := NewRetrievalService(RetrievalServiceConfig{Reports: mocks.NewMockReportStore()})
	_, err = noKB.Retrieve(context.Background(), "question", 5, nil)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}
