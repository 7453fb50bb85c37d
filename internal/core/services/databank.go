package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// FanOut writes the atomic facts of an extraction to the data bank.
// It is best-effort: a failed item is logged and counted, never returned.
type FanOut struct {
	store   driven.DataBankStore
	metrics driven.PipelineMetrics
	logger  *slog.Logger
	now     func() time.Time
}

// FanOutConfig holds dependencies for FanOut.
type FanOutConfig struct {
	Store   driven.DataBankStore
	Metrics driven.PipelineMetrics
	Logger  *slog.Logger
}

// NewFanOut creates a new data bank fan-out.
func NewFanOut(cfg FanOutConfig) *FanOut {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &FanOut{
		store:   cfg.Store,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Run emits one item per statistic, quote, aha moment and key finding.
// Elements with no content are skipped.
func (f *FanOut) Run(ctx context.Context, reportID string, extraction *domain.ExtractionResult) domain.FanOutResult {
	var result domain.FanOutResult
	if extraction == nil {
		return result
	}

	for _, item := range BuildDataBankItems(reportID, extraction) {
		if item == nil {
			result.Skipped++
			continue
		}
		item.ID = uuid.NewString()
		item.CreatedAt = f.now()

		if err := f.store.AddItem(ctx, item); err != nil {
			result.Failed++
			f.logger.Warn("failed to write data bank item",
				"report_id", reportID,
				"type", item.Type,
				"error", fmt.Errorf("%w: %v", domain.ErrFanOutItem, err),
			)
			continue
		}
		result.Written++
		f.metrics.DataBankItemWritten(item.Type)
	}

	f.logger.Debug("data bank fan-out complete",
		"report_id", reportID,
		"written", result.Written,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)
	return result
}

// Clear removes every item previously written for the report.
func (f *FanOut) Clear(ctx context.Context, reportID string) {
	n, err := f.store.DeleteByReport(ctx, reportID)
	if err != nil {
		f.logger.Warn("failed to clear data bank items", "report_id", reportID, "error", err)
		return
	}
	if n > 0 {
		f.logger.Debug("cleared data bank items", "report_id", reportID, "count", n)
	}
}

// BuildDataBankItems maps an extraction to data bank items in section order.
// A nil entry marks an element that has no content.
func BuildDataBankItems(reportID string, extraction *domain.ExtractionResult) []*domain.DataBankItem {
	var items []*domain.DataBankItem
	add := func(t domain.DataBankItemType, content, note string, page domain.PageRef, tags ...string) {
		content = strings.TrimSpace(content)
		if content == "" {
			items = append(items, nil)
			return
		}
		items = append(items, &domain.DataBankItem{
			ReportID:   reportID,
			Type:       t,
			Content:    content,
			Context:    strings.TrimSpace(note),
			SourcePage: page.Ptr(),
			Tags:       compactTags(tags),
		})
	}

	for _, s := range extraction.Statistics {
		add(domain.DataBankStatistic, firstNonEmpty(string(s.Text), string(s.Value)), string(s.Context), s.Page,
			string(s.MetricType), string(s.Geography))
	}
	for _, q := range extraction.Quotes {
		add(domain.DataBankQuote, string(q.Text), joinNonEmpty(", ", string(q.Speaker), string(q.SpeakerOrg), string(q.Context)), q.Page)
	}
	for _, a := range extraction.AhaMoments {
		add(domain.DataBankAhaMoment, string(a.Insight), string(a.Implications), domain.PageRef{})
	}
	for _, k := range extraction.KeyFindings {
		add(domain.DataBankFinding, string(k.Finding), string(k.Evidence), k.Page, string(k.Category))
	}
	return items
}

func compactTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
