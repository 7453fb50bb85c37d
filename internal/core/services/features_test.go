package services

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"testing"

	"github.com/cucumber/godog"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven/mocks"
)

const singleStatExtraction = `{
  "executive_summary": "Updated view.",
  "statistics": [{"stat": "Global AI investment reached $200 billion in 2023", "value_raw": "$200 billion"}]
}`

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// scenarioState is rebuilt for every scenario.
type scenarioState struct {
	sample   string
	metadata domain.ReportMetadata
	title    string

	folder     string
	reader     *mocks.MockSourceReader
	reports    *mocks.MockReportStore
	databank   *mocks.MockDataBankStore
	kb         *mocks.MockKnowledgeBase
	completion *mocks.MockCompletionService
	orch       *IngestionOrchestrator
	result     *domain.IngestResult
}

func initializeScenario(sc *godog.ScenarioContext) {
	s := &scenarioState{}

	sc.Step(`^the document starts with "([^"]*)"$`, s.documentStartsWith)
	sc.Step(`^metadata is inferred for "([^"]*)"$`, s.inferMetadata)
	sc.Step(`^the organization is "([^"]*)"$`, s.organizationIs)
	sc.Step(`^the category is "([^"]*)"$`, s.categoryIs)
	sc.Step(`^the year is "([^"]*)"$`, s.yearIs)
	sc.Step(`^the title is "([^"]*)"$`, s.titleIs)

	sc.Step(`^a library folder "([^"]*)" containing a report$`, s.libraryFolder)
	sc.Step(`^the model returns a full extraction$`, s.modelReturns(bcgExtraction))
	sc.Step(`^the model now returns an extraction with a single statistic$`, s.modelReturns(singleStatExtraction))
	sc.Step(`^the folder has been ingested$`, s.ingest(false))
	sc.Step(`^the folder is ingested$`, s.ingest(false))
	sc.Step(`^the folder is ingested with force$`, s.ingest(true))
	sc.Step(`^the status is "([^"]*)"$`, s.statusIs)
	sc.Step(`^(\d+) reports? (?:is|are) stored$`, s.reportsStored)
	sc.Step(`^(\d+) data bank items are stored for the report$`, s.dataBankItemsStored)
	sc.Step(`^the model was called (\d+) times?$`, s.modelCalled)
	sc.Step(`^the knowledge base received (\d+) uploads?$`, s.uploads)
}

func (s *scenarioState) documentStartsWith(text string) error {
	s.sample = text
	return nil
}

func (s *scenarioState) inferMetadata(folder string) error {
	s.metadata = InferMetadata(folder, s.sample)
	s.title = ExtractTitle(s.sample, folder)
	return nil
}

func (s *scenarioState) organizationIs(want string) error {
	return expectEqual("organization", want, s.metadata.Organization)
}

func (s *scenarioState) categoryIs(want string) error {
	return expectEqual("category", want, s.metadata.Category)
}

func (s *scenarioState) yearIs(want string) error {
	got := "none"
	if s.metadata.Year != nil {
		got = strconv.Itoa(*s.metadata.Year)
	}
	return expectEqual("year", want, got)
}

func (s *scenarioState) titleIs(want string) error {
	return expectEqual("title", want, s.title)
}

func (s *scenarioState) libraryFolder(name string) error {
	s.folder = path.Join("/library", name)
	s.reader = mocks.NewMockSourceReader()
	s.reports = mocks.NewMockReportStore()
	s.databank = mocks.NewMockDataBankStore()
	s.kb = mocks.NewMockKnowledgeBase()
	s.completion = mocks.NewMockCompletionService("")
	s.reader.Add(s.folder, bcgSource)

	services := newTestServices(s.completion)
	s.orch = NewIngestionOrchestrator(IngestionOrchestratorConfig{
		Reader:        s.reader,
		Reports:       s.reports,
		KnowledgeBase: s.kb,
		Extractor:     NewExtractor(ExtractorConfig{Services: services}),
		FanOut:        NewFanOut(FanOutConfig{Store: s.databank}),
	})
	return nil
}

func (s *scenarioState) modelReturns(response string) func() error {
	return func() error {
		s.completion.Response = response
		return nil
	}
}

func (s *scenarioState) ingest(force bool) func(context.Context) error {
	return func(ctx context.Context) error {
		result, err := s.orch.Ingest(ctx, s.folder, domain.IngestOptions{ForceReprocess: force})
		if err != nil {
			return err
		}
		s.result = result
		return nil
	}
}

func (s *scenarioState) statusIs(want string) error {
	if s.result == nil {
		return fmt.Errorf("no ingestion result")
	}
	return expectEqual("status", want, string(s.result.Status))
}

func (s *scenarioState) reportsStored(ctx context.Context, want int) error {
	n, err := s.reports.Count(ctx)
	if err != nil {
		return err
	}
	return expectEqual("report count", want, n)
}

func (s *scenarioState) dataBankItemsStored(ctx context.Context, want int) error {
	items, err := s.databank.ListByReport(ctx, s.result.ID)
	if err != nil {
		return err
	}
	return expectEqual("data bank items", want, len(items))
}

func (s *scenarioState) modelCalled(want int) error {
	return expectEqual("completion calls", want, s.completion.Calls())
}

func (s *scenarioState) uploads(want int) error {
	return expectEqual("uploads", want, s.kb.Uploads())
}

func expectEqual[T comparable](what string, want, got T) error {
	if want != got {
		return fmt.Errorf("expected %s %v, got %v", what, want, got)
	}
	return nil
}
