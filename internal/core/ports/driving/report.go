package driving

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// ReportService provides access to ingested reports
type ReportService interface {
	Get(ctx context.Context, id string) (*domain.Report, error)

	List(ctx context.Context, filter domain.ReportFilter) ([]*domain.Report, error)

	// Delete removes the report together with its data bank items
	Delete(ctx context.Context, id string) error

	// DataBank returns the atomic facts derived from a report
	DataBank(ctx context.Context, reportID string) ([]*domain.DataBankItem, error)

	Count(ctx context.Context) (int, error)
}

// RetrievalService answers questions from the knowledge base
type RetrievalService interface {
	// Retrieve returns passages for question, optionally limited to reports
	Retrieve(ctx context.Context, question string, topK int, reportIDs []string) ([]*domain.RetrievedChunk, error)
}

// NewsService produces briefings for news articles
type NewsService interface {
	Analyze(ctx context.Context, article domain.NewsArticle) (*domain.NewsAnalysis, error)
}
