package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ReportService = (*reportService)(nil)

// maxReportListLimit caps a single page of reports.
const maxReportListLimit = 500

type reportService struct {
	reports  driven.ReportStore
	databank driven.DataBankStore
	logger   *slog.Logger
}

// NewReportService creates a new report service.
func NewReportService(reports driven.ReportStore, databank driven.DataBankStore, logger *slog.Logger) driving.ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &reportService{reports: reports, databank: databank, logger: logger}
}

func (s *reportService) Get(ctx context.Context, id string) (*domain.Report, error) {
	if id == "" {
		return nil, fmt.Errorf("report id is required: %w", domain.ErrInvalidInput)
	}
	return s.reports.Get(ctx, id)
}

func (s *reportService) List(ctx context.Context, filter domain.ReportFilter) ([]*domain.Report, error) {
	if filter.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative: %w", domain.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = domain.DefaultReportListLimit
	}
	filter.Limit = min(filter.Limit, maxReportListLimit)
	return s.reports.List(ctx, filter)
}

// Delete removes the report's data bank items first, then the report.
func (s *reportService) Delete(ctx context.Context, id string) error {
	if _, err := s.reports.Get(ctx, id); err != nil {
		return err
	}
	removed, err := s.databank.DeleteByReport(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete data bank items: %w", err)
	}
	if err := s.reports.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	s.logger.Info("report deleted", "report_id", id, "databank_items", removed)
	return nil
}

func (s *reportService) DataBank(ctx context.Context, reportID string) ([]*domain.DataBankItem, error) {
	if _, err := s.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	items, err := s.databank.ListByReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*domain.DataBankItem{}
	}
	return items, nil
}

func (s *reportService) Count(ctx context.Context) (int, error) {
	return s.reports.Count(ctx)
}
