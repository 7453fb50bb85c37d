package postprocessors

import (
	"slices"
	"sort"
	"sync"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractionPipeline = (*Pipeline)(nil)

// Pipeline implements ExtractionPipeline.
// It runs every processor over a copy of the extraction, in Order().
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.ExtractionProcessor
	sorted     bool
}

// NewPipeline creates a new extraction pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.ExtractionProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.ExtractionProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order. The input is never modified.
func (p *Pipeline) Process(result *domain.ExtractionResult, doc *domain.SourceDocument) *domain.ExtractionResult {
	if result == nil {
		return nil
	}

	processors := p.ordered()

	out := cloneExtraction(result)
	for _, proc := range processors {
		out = proc.Process(out, doc)
	}
	out.EnsureLists()
	return out
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	processors := p.ordered()
	names := make([]string, len(processors))
	for i, proc := range processors {
		names[i] = proc.Name()
	}
	return names
}

func (p *Pipeline) ordered() []driven.ExtractionProcessor {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.ExtractionProcessor, len(p.processors))
	copy(processors, p.processors)
	return processors
}

// DefaultPipeline creates a pipeline with the default processors.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Add(NewEnumNormaliser())
	p.Add(NewWhitespaceTrimmer())
	p.Add(NewDeduplicator())
	p.Add(NewPageBounds())
	return p
}

// cloneExtraction copies every list so processors can edit freely.
func cloneExtraction(r *domain.ExtractionResult) *domain.ExtractionResult {
	c := *r
	c.KeyFindings = slices.Clone(r.KeyFindings)
	c.Statistics = slices.Clone(r.Statistics)
	c.Quotes = slices.Clone(r.Quotes)
	c.AhaMoments = slices.Clone(r.AhaMoments)
	c.Recommendations = slices.Clone(r.Recommendations)
	c.DataPoints = slices.Clone(r.DataPoints)
	for i := range c.DataPoints {
		c.DataPoints[i].Tags = slices.Clone(c.DataPoints[i].Tags)
	}
	c.Connections = domain.Connections{
		RelatedTopics:            slices.Clone(r.Connections.RelatedTopics),
		PotentialCrossReferences: slices.Clone(r.Connections.PotentialCrossReferences),
		FollowUpQuestions:        slices.Clone(r.Connections.FollowUpQuestions),
	}
	return &c
}
