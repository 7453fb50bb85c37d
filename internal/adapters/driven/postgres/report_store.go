package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ReportStore = (*ReportStore)(nil)

// psql builds statements with PostgreSQL $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// reportColumns is the column order shared by every report SELECT and scanReport
var reportColumns = []string{
	"id", "identity_key", "title", "organization", "year", "category", "page_count", "source_path",
	"executive_summary", "briefing_hook", "key_findings", "statistics", "quotes", "aha_moments",
	"recommendations", "methodology", "limitations", "connections", "extraction_metadata",
	"kb_document_id", "audit_status", "integrity_score", "status", "created_at", "updated_at",
}

// ReportStore implements driven.ReportStore using PostgreSQL.
// Extracted sections are stored as JSONB columns on the report row.
type ReportStore struct {
	db *DB
}

// NewReportStore creates a new ReportStore
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// FindByIdentityKey retrieves the report for an identity key
func (s *ReportStore) FindByIdentityKey(ctx context.Context, identityKey string) (*domain.Report, error) {
	return s.getOne(ctx, sq.Eq{"identity_key": identityKey})
}

// Get retrieves a report by ID
func (s *ReportStore) Get(ctx context.Context, id string) (*domain.Report, error) {
	return s.getOne(ctx, sq.Eq{"id": id})
}

// Create inserts a new report in a single statement
func (s *ReportStore) Create(ctx context.Context, report *domain.Report) error {
	sections, err := encodeSections(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reports (
			id, identity_key, title, organization, year, category, page_count, source_path,
			executive_summary, briefing_hook, key_findings, statistics, quotes, aha_moments,
			recommendations, methodology, limitations, connections, extraction_metadata,
			kb_document_id, audit_status, integrity_score, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25
		)
	`

	args := []any{
		report.ID, report.IdentityKey, report.Title, report.Organization, NullInt(report.Year),
		report.Category, report.PageCount, report.SourcePath, report.ExecutiveSummary, report.BriefingHook,
	}
	args = append(args, sections...)
	args = append(args,
		NullString(report.KnowledgeBaseDocID), string(report.AuditStatus), NullInt(report.IntegrityScore),
		string(report.Status), report.CreatedAt, report.UpdatedAt,
	)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Update replaces every column of an existing report in a single statement
func (s *ReportStore) Update(ctx context.Context, report *domain.Report) error {
	sections, err := encodeSections(report)
	if err != nil {
		return err
	}

	query := `
		UPDATE reports SET
			identity_key = $2, title = $3, organization = $4, year = $5, category = $6,
			page_count = $7, source_path = $8, executive_summary = $9, briefing_hook = $10,
			key_findings = $11, statistics = $12, quotes = $13, aha_moments = $14,
			recommendations = $15, methodology = $16, limitations = $17, connections = $18,
			extraction_metadata = $19, kb_document_id = $20, audit_status = $21,
			integrity_score = $22, status = $23, updated_at = $24
		WHERE id = $1
	`

	args := []any{
		report.ID, report.IdentityKey, report.Title, report.Organization, NullInt(report.Year),
		report.Category, report.PageCount, report.SourcePath, report.ExecutiveSummary, report.BriefingHook,
	}
	args = append(args, sections...)
	args = append(args,
		NullString(report.KnowledgeBaseDocID), string(report.AuditStatus), NullInt(report.IntegrityScore),
		string(report.Status), report.UpdatedAt,
	)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("update report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List retrieves reports matching the filter, newest first
func (s *ReportStore) List(ctx context.Context, filter domain.ReportFilter) ([]*domain.Report, error) {
	builder := applyReportFilter(psql.Select(reportColumns...).From("reports"), filter).
		OrderBy("created_at DESC", "id ASC")

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build report query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return reports, nil
}

// Delete removes a report and its data bank items in one transaction
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM databank_items WHERE report_id = $1`, id); err != nil {
			return fmt.Errorf("delete data bank items: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete report: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// Count returns the total number of reports
func (s *ReportStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return count, nil
}

func (s *ReportStore) getOne(ctx context.Context, where sq.Eq) (*domain.Report, error) {
	query, args, err := psql.Select(reportColumns...).From("reports").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build report query: %w", err)
	}

	report, err := scanReport(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return report, nil
}

// applyReportFilter adds a WHERE clause per set filter field.
// Query matches title, organization or executive summary case-insensitively.
func applyReportFilter(builder sq.SelectBuilder, filter domain.ReportFilter) sq.SelectBuilder {
	if filter.Organization != "" {
		builder = builder.Where(sq.ILike{"organization": filter.Organization})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.ILike{"category": filter.Category})
	}
	if filter.Year != nil {
		builder = builder.Where(sq.Eq{"year": *filter.Year})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + escapeLike(q) + "%"
		builder = builder.Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"organization": pattern},
			sq.ILike{"executive_summary": pattern},
		})
	}
	return builder
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var r domain.Report
	var year, integrity sql.NullInt64
	var kbDocID sql.NullString
	var auditStatus, status string
	var keyFindings, statistics, quotes, ahaMoments, recommendations []byte
	var methodology, limitations, connections, metadata []byte

	err := row.Scan(
		&r.ID, &r.IdentityKey, &r.Title, &r.Organization, &year, &r.Category, &r.PageCount, &r.SourcePath,
		&r.ExecutiveSummary, &r.BriefingHook, &keyFindings, &statistics, &quotes, &ahaMoments,
		&recommendations, &methodology, &limitations, &connections, &metadata,
		&kbDocID, &auditStatus, &integrity, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}

	r.Year = IntPtr(year)
	r.IntegrityScore = IntPtr(integrity)
	r.KnowledgeBaseDocID = StringPtr(kbDocID)
	r.AuditStatus = domain.AuditStatus(auditStatus)
	r.Status = domain.ReportStatus(status)

	columns := []struct {
		name string
		data []byte
		dest any
	}{
		{"key_findings", keyFindings, &r.KeyFindings},
		{"statistics", statistics, &r.Statistics},
		{"quotes", quotes, &r.Quotes},
		{"aha_moments", ahaMoments, &r.AhaMoments},
		{"recommendations", recommendations, &r.Recommendations},
		{"methodology", methodology, &r.Methodology},
		{"limitations", limitations, &r.Limitations},
		{"connections", connections, &r.Connections},
		{"extraction_metadata", metadata, &r.ExtractionMeta},
	}
	for _, c := range columns {
		if len(c.data) == 0 {
			continue
		}
		if err := json.Unmarshal(c.data, c.dest); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", c.name, err)
		}
	}
	ensureReportLists(&r)

	return &r, nil
}

// encodeSections marshals the JSONB columns in reportColumns order.
// Nil lists are stored as [] so readers never see null.
func encodeSections(r *domain.Report) ([]any, error) {
	ensureReportLists(r)
	values := []struct {
		name string
		v    any
	}{
		{"key_findings", r.KeyFindings},
		{"statistics", r.Statistics},
		{"quotes", r.Quotes},
		{"aha_moments", r.AhaMoments},
		{"recommendations", r.Recommendations},
		{"methodology", r.Methodology},
		{"limitations", r.Limitations},
		{"connections", r.Connections},
		{"extraction_metadata", r.ExtractionMeta},
	}

	out := make([]any, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v.v)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", v.name, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func ensureReportLists(r *domain.Report) {
	if r.KeyFindings == nil {
		r.KeyFindings = []domain.KeyFinding{}
	}
	if r.Statistics == nil {
		r.Statistics = []domain.Statistic{}
	}
	if r.Quotes == nil {
		r.Quotes = []domain.Quote{}
	}
	if r.AhaMoments == nil {
		r.AhaMoments = []domain.AhaMoment{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []domain.Recommendation{}
	}
}
