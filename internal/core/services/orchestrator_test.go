package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

const bcgSource = `# AI at Scale: Turning Pilots into Profit

Global AI investment reached $200 billion in 2023.

"AI is a team sport," said the report authors.`

const bcgExtraction = `{
  "executive_summary": "Scaling AI is a management problem.",
  "key_findings": [{"finding": "Leaders reinvest gains", "evidence": "Survey", "page": 1}],
  "statistics": [{"stat": "Global AI investment reached $200 billion in 2023", "value_raw": "$200 billion", "timeframe": "2023"}],
  "quotes": [{"quote": "AI is a team sport", "speaker": "Report authors"}],
  "aha_moments": [{"insight": "Pilots rarely fail on technology", "implications_uae": "Focus on change management"}],
  "recommendations": [{"recommendation": "Fund fewer, bigger bets", "priority": "high"}]
}`

type orchestratorFixture struct {
	reader     *mocks.MockSourceReader
	reports    *mocks.MockReportStore
	databank   *mocks.MockDataBankStore
	kb         *mocks.MockKnowledgeBase
	completion *mocks.MockCompletionService
	orch       *IngestionOrchestrator
}

func newOrchestratorFixture(t *testing.T, response string, reextract bool) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		reader:     mocks.NewMockSourceReader(),
		reports:    mocks.NewMockReportStore(),
		databank:   mocks.NewMockDataBankStore(),
		kb:         mocks.NewMockKnowledgeBase(),
		completion: mocks.NewMockCompletionService(response),
	}
	services := newTestServices(f.completion)
	f.orch = NewIngestionOrchestrator(IngestionOrchestratorConfig{
		Reader:            f.reader,
		Reports:           f.reports,
		KnowledgeBase:     f.kb,
		Extractor:         NewExtractor(ExtractorConfig{Services: services}),
		Auditor:           NewAuditor(AuditorConfig{Services: services}),
		FanOut:            NewFanOut(FanOutConfig{Store: f.databank}),
		ReextractOnReject: reextract,
	})
	f.reader.Add("/library/BCG_AI_at_Scale_2024", bcgSource)
	return f
}

func TestIngest_ProcessesNewDocument(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestStatusProcessed, result.Status)
	assert.Equal(t, "AI at Scale: Turning Pilots into Profit", result.Title)
	assert.Equal(t, 4, result.DataBankItems)
	assert.Nil(t, result.Audit)

	report, err := f.reports.Get(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, "BCG_AI_at_Scale_2024", report.IdentityKey)
	assert.Equal(t, "BCG", report.Organization)
	assert.Equal(t, "Consulting", report.Category)
	require.NotNil(t, report.Year)
	assert.Equal(t, 2024, *report.Year)
	assert.Equal(t, "Scaling AI is a management problem.", report.ExecutiveSummary)
	assert.Len(t, report.Recommendations, 1)
	assert.Equal(t, domain.ReportStatusCompleted, report.Status)
	require.NotNil(t, report.KnowledgeBaseDocID)
	assert.Empty(t, report.AuditStatus)

	assert.Equal(t, 1, f.kb.Uploads())
	assert.Equal(t, 1, f.kb.Parses())
	assert.Equal(t, 1, f.completion.Calls())
}

func TestIngest_IsIdempotent(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	ctx := context.Background()

	first, err := f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)
	callsAfterFirst := f.completion.Calls()
	uploadsAfterFirst := f.kb.Uploads()

	second, err := f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestStatusAlreadyExists, second.Status)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, f.completion.Calls(), "no completion calls on the second ingest")
	assert.Equal(t, uploadsAfterFirst, f.kb.Uploads())
}

func TestIngest_EmptySourceMakesNoCollaboratorCalls(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.reader.Add("/library/blank", "   \n\t  ")

	_, err := f.orch.Ingest(context.Background(), "/library/blank", domain.IngestOptions{})

	require.ErrorIs(t, err, domain.ErrEmptySource)
	assert.Equal(t, domain.StageRead, domain.FailedStage(err))
	assert.Equal(t, 0, f.kb.Calls())
	assert.Equal(t, 0, f.completion.Calls())
}

func TestIngest_BlankDocumentFromReader(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.reader.ReadFn = func(folder string) (*domain.SourceDocument, error) {
		return &domain.SourceDocument{IdentityKey: "x", RawText: "\n\n"}, nil
	}

	_, err := f.orch.Ingest(context.Background(), "/library/x", domain.IngestOptions{})

	require.ErrorIs(t, err, domain.ErrEmptySource)
	assert.Equal(t, 0, f.completion.Calls())
}

func TestIngest_MissingSource(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)

	_, err := f.orch.Ingest(context.Background(), "/library/nope", domain.IngestOptions{})

	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, f.completion.Calls())
}

func TestIngest_UploadFailureIsNotFatal(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.kb.UploadFn = func(collectionID, name, text string) (*domain.KBDocument, error) {
		return nil, errors.New("ragflow down")
	}

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	report, err := f.reports.Get(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Nil(t, report.KnowledgeBaseDocID)
	assert.Equal(t, 0, f.kb.Parses())
	assert.Equal(t, 1, f.completion.Calls())
}

func TestIngest_ParseTriggerFailureIsSwallowed(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.kb.ParseFn = func(collectionID string, ids []string) error {
		return errors.New("parse queue full")
	}

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	report, _ := f.reports.Get(context.Background(), result.ID)
	assert.NotNil(t, report.KnowledgeBaseDocID)
}

func TestIngest_MalformedExtractionStillPersists(t *testing.T) {
	f := newOrchestratorFixture(t, `{"key_findings": [{"finding": "trunc`, false)

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	report, _ := f.reports.Get(context.Background(), result.ID)
	assert.Empty(t, report.KeyFindings)
	assert.Empty(t, report.ExecutiveSummary)
	assert.Equal(t, 0, result.DataBankItems)
}

func TestIngest_PersistenceFailureIsFatal(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.reports.CreateFn = func(report *domain.Report) error {
		return errors.New("connection reset")
	}

	_, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})

	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, domain.StagePersist, domain.FailedStage(err))
	assert.Empty(t, f.databank.Items(), "no fan-out without a persisted report")
}

func TestIngest_FanOutFailureDoesNotChangeStatus(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	f.databank.AddFn = func(item *domain.DataBankItem) error {
		return errors.New("disk full")
	}

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.IngestStatusProcessed, result.Status)
	assert.Equal(t, 0, result.DataBankItems)
}

func TestIngest_ForcedReprocessOverwritesEverything(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	ctx := context.Background()

	first, err := f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	f.completion.Response = `{"executive_summary": "New summary.", "key_findings": [{"finding": "Only this"}]}`
	second, err := f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{ForceReprocess: true})
	require.NoError(t, err)

	assert.Equal(t, domain.IngestStatusReprocessed, second.Status)
	assert.Equal(t, first.ID, second.ID)

	report, err := f.reports.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "New summary.", report.ExecutiveSummary)
	require.Len(t, report.KeyFindings, 1)
	assert.Equal(t, domain.Text("Only this"), report.KeyFindings[0].Finding)
	assert.Empty(t, report.Statistics)
	assert.Empty(t, report.Quotes)
	assert.Empty(t, report.AhaMoments)
	assert.Empty(t, report.Recommendations)

	items, _ := f.databank.ListByReport(ctx, first.ID)
	require.Len(t, items, 1, "old data bank items are replaced")
	assert.Equal(t, "Only this", items[0].Content)

	count, _ := f.reports.Count(ctx)
	assert.Equal(t, 1, count)
}

func TestIngest_StampsReportTimestamps(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)
	ctx := context.Background()

	before := time.Now()
	first, err := f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{})
	require.NoError(t, err)

	created, err := f.reports.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.Before(before))
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	_, err = f.orch.Ingest(ctx, "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{ForceReprocess: true})
	require.NoError(t, err)

	updated, err := f.reports.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt, "creation time survives reprocessing")
	assert.False(t, updated.UpdatedAt.IsZero())
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))
}

func TestIngest_AuditRecordsSummary(t *testing.T) {
	f := newOrchestratorFixture(t, bcgExtraction, false)

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{Audit: true})
	require.NoError(t, err)

	require.NotNil(t, result.Audit)
	assert.Equal(t, domain.AuditPass, result.Audit.Status)

	report, _ := f.reports.Get(context.Background(), result.ID)
	assert.Equal(t, domain.AuditPass, report.AuditStatus)
	require.NotNil(t, report.IntegrityScore)
	assert.Equal(t, 100, *report.IntegrityScore)
}

func TestIngest_ReextractsOnReject(t *testing.T) {
	f := newOrchestratorFixture(t, "", true)
	responses := []string{
		`{"statistics": [{"stat": "AI will add $900 trillion by 2031"}]}`,
		bcgExtraction,
	}
	f.completion.CompleteFn = func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
		n := f.completion.Calls() - 1
		return &domain.CompletionResponse{Content: responses[n], Model: "mock-model"}, nil
	}

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{Audit: true})
	require.NoError(t, err)

	assert.Equal(t, 2, f.completion.Calls())
	assert.Equal(t, domain.AuditPass, result.Audit.Status)

	report, _ := f.reports.Get(context.Background(), result.ID)
	require.Len(t, report.Statistics, 1)
	assert.Equal(t, domain.Text("Global AI investment reached $200 billion in 2023"), report.Statistics[0].Text)
}

func TestIngest_KeepsFirstExtractionWhenRetryIsWorse(t *testing.T) {
	f := newOrchestratorFixture(t, "", true)
	responses := []string{
		`{"statistics": [{"stat": "AI will add $900 trillion"}]}`,
		`{"statistics": [{"stat": "made up one"}, {"stat": "made up two"}]}`,
	}
	f.completion.CompleteFn = func(ctx context.Context, req domain.CompletionRequest) (*domain.CompletionResponse, error) {
		n := f.completion.Calls() - 1
		return &domain.CompletionResponse{Content: responses[n], Model: "mock-model"}, nil
	}

	result, err := f.orch.Ingest(context.Background(), "/library/BCG_AI_at_Scale_2024", domain.IngestOptions{Audit: true})
	require.NoError(t, err)

	assert.Equal(t, domain.AuditReject, result.Audit.Status)
	assert.Equal(t, 75, result.Audit.IntegrityScore)
	report, _ := f.reports.Get(context.Background(), result.ID)
	require.Len(t, report.Statistics, 1)
}
