package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

// fakeIngestion lets a test decide the outcome of each ingestion.
type fakeIngestion struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, folder string) (*domain.IngestResult, error)
}

func (f *fakeIngestion) Ingest(ctx context.Context, folder string, opts domain.IngestOptions) (*domain.IngestResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, folder)
	f.mu.Unlock()
	return f.fn(ctx, folder)
}

func (f *fakeIngestion) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func libraryFolders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/library/McKinsey_Report_%02d_2024", i)
	}
	return out
}

func TestRunBatch_RespectsConcurrencyLimit(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.completion.Delay = 20 * time.Millisecond
	folders := libraryFolders(12)
	for _, folder := range folders {
		f.reader.Add(folder, bcgSource)
	}

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: f.orch})
	job, err := batch.RunBatch(context.Background(), domain.BatchRequest{Folders: folders, MaxConcurrency: 3})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 12, summary.Total)
	assert.Equal(t, 12, summary.Processed)
	assert.True(t, summary.Accounted())
	assert.LessOrEqual(t, f.completion.MaxInFlight(), 3)
	assert.Equal(t, 12, f.completion.Calls())
	assert.NotNil(t, summary.CompletedAt)
}

func TestRunBatch_MixedOutcomesAreAccounted(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	ctx := context.Background()

	folders := libraryFolders(6)
	for _, folder := range folders[:4] {
		f.reader.Add(folder, bcgSource)
	}
	f.reader.Add(folders[4], "  ")
	// folders[5] has no source at all

	_, err := f.orch.Ingest(ctx, folders[0], domain.IngestOptions{})
	require.NoError(t, err)

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: f.orch, MaxConcurrency: 2})
	job, err := batch.RunBatch(ctx, domain.BatchRequest{Folders: folders})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assert.True(t, summary.Accounted())

	byKey := map[string]domain.BatchFailure{}
	for _, fail := range summary.Failures {
		byKey[fail.IdentityKey] = fail
	}
	require.Len(t, byKey, 2)
	assert.Equal(t, domain.StageRead, byKey["McKinsey_Report_04_2024"].Stage)
	assert.Contains(t, byKey["McKinsey_Report_04_2024"].Message, "empty source")
	assert.Contains(t, byKey["McKinsey_Report_05_2024"].Message, "not found")
}

func TestRunBatch_FailureIsolation(t *testing.T) {
	ingestion := &fakeIngestion{fn: func(ctx context.Context, folder string) (*domain.IngestResult, error) {
		if folder == "/library/McKinsey_Report_03_2024" {
			panic("boom")
		}
		if folder == "/library/McKinsey_Report_05_2024" {
			return nil, domain.NewStageError(domain.StagePersist, domain.ErrPersistence)
		}
		return &domain.IngestResult{Status: domain.IngestStatusProcessed}, nil
	}}

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: ingestion})
	job, err := batch.RunBatch(context.Background(), domain.BatchRequest{Folders: libraryFolders(8)})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 6, summary.Processed)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 8, ingestion.Calls())
}

func TestRunBatch_BoundedFailureList(t *testing.T) {
	ingestion := &fakeIngestion{fn: func(ctx context.Context, folder string) (*domain.IngestResult, error) {
		return nil, domain.ErrNotFound
	}}

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: ingestion, MaxFailures: 3})
	job, err := batch.RunBatch(context.Background(), domain.BatchRequest{Folders: libraryFolders(10)})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 10, summary.Failed)
	assert.Len(t, summary.Failures, 3)
	assert.True(t, summary.FailuresTruncated)
}

func TestRunBatch_CancelledBeforeStart(t *testing.T) {
	ingestion := &fakeIngestion{fn: func(ctx context.Context, folder string) (*domain.IngestResult, error) {
		return &domain.IngestResult{Status: domain.IngestStatusProcessed}, nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: ingestion})
	job, err := batch.RunBatch(ctx, domain.BatchRequest{Folders: libraryFolders(4)})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 0, ingestion.Calls())
	assert.Equal(t, 4, summary.Failed)
	assert.True(t, summary.Accounted())
	for _, fail := range summary.Failures {
		assert.Equal(t, domain.ErrBatchCancelled.Error(), fail.Message)
	}
}

func TestRunBatch_CancelStopsSchedulingButFinishesInFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var docCtxErr error
	ingestion := &fakeIngestion{fn: func(docCtx context.Context, folder string) (*domain.IngestResult, error) {
		cancel()
		docCtxErr = docCtx.Err()
		return &domain.IngestResult{Status: domain.IngestStatusProcessed}, nil
	}}

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: ingestion})
	job, err := batch.RunBatch(ctx, domain.BatchRequest{Folders: libraryFolders(5), MaxConcurrency: 1})
	require.NoError(t, err)

	summary := job.Summary()
	assert.Equal(t, 1, ingestion.Calls())
	assert.NoError(t, docCtxErr, "in-flight document context is not cancelled")
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 4, summary.Failed)
	assert.True(t, summary.Accounted())
}

func TestRunLibrary_FiltersAndLimit(t *testing.T) {
	reader := mocks.NewMockSourceReader()
	for _, folder := range []string{"/lib/BCG_AI_2024", "/lib/bcg_cloud_2023", "/lib/McKinsey_AI_2024", "/lib/BCG_Energy_2022"} {
		reader.Add(folder, "text")
	}
	ingestion := &fakeIngestion{fn: func(ctx context.Context, folder string) (*domain.IngestResult, error) {
		return &domain.IngestResult{Status: domain.IngestStatusProcessed}, nil
	}}

	batch := NewBatchCoordinator(BatchCoordinatorConfig{Ingestion: ingestion, Reader: reader})
	job, err := batch.RunLibrary(context.Background(), "/lib", domain.BatchRequest{Filters: []string{"bcg"}, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 2, job.Summary().Total)
	assert.ElementsMatch(t, []string{"/lib/BCG_AI_2024", "/lib/BCG_Energy_2022"}, ingestion.calls)
}

func TestSelectFolders(t *testing.T) {
	folders := []string{"a/BCG_1", "a/WEF_2", "a/bcg_3", "a/OECD_4"}

	tests := []struct {
		name    string
		filters []string
		limit   int
		want    []string
	}{
		{"no filters", nil, 0, folders},
		{"limit only", nil, 2, []string{"a/BCG_1", "a/WEF_2"}},
		{"case-insensitive filter", []string{"BCG"}, 0, []string{"a/BCG_1", "a/bcg_3"}},
		{"any filter matches", []string{"wef", "oecd"}, 0, []string{"a/WEF_2", "a/OECD_4"}},
		{"filter and limit", []string{"bcg"}, 1, []string{"a/BCG_1"}},
		{"no match", []string{"imf"}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectFolders(folders, tt.filters, tt.limit))
		})
	}
}
