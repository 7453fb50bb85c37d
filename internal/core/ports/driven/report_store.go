package driven

import (
	"context"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
)

// ReportStore persists reports. Create and Update write the whole row in a
// single statement so a report is never observed half-written.
type ReportStore interface {
	// FindByIdentityKey returns the report for the key, or domain.ErrNotFound.
	FindByIdentityKey(ctx context.Context, identityKey string) (*domain.Report, error)

	// Create inserts a new report. Returns domain.ErrAlreadyExists on key conflict.
	Create(ctx context.Context, report *domain.Report) error

	// Update replaces every column of an existing report.
	Update(ctx context.Context, report *domain.Report) error

	Get(ctx context.Context, id string) (*domain.Report, error)

	List(ctx context.Context, filter domain.ReportFilter) ([]*domain.Report, error)

	// Delete removes the report and its data bank items.
	Delete(ctx context.Context, id string) error

	Count(ctx context.Context) (int, error)
}

// DataBankStore persists atomic facts owned by reports.
type DataBankStore interface {
	AddItem(ctx context.Context, item *domain.DataBankItem) error

	ListByReport(ctx context.Context, reportID string) ([]*domain.DataBankItem, error)

	// DeleteByReport removes every item owned by the report.
	DeleteByReport(ctx context.Context, reportID string) (int, error)

	// CountByType returns item counts keyed by type.
	CountByType(ctx context.Context) (map[domain.DataBankItemType]int, error)
}
