package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DataBankStore = (*DataBankStore)(nil)

// DataBankStore implements driven.DataBankStore using PostgreSQL
type DataBankStore struct {
	db *DB
}

// NewDataBankStore creates a new DataBankStore
func NewDataBankStore(db *DB) *DataBankStore {
	return &DataBankStore{db: db}
}

// AddItem inserts one data bank item
func (s *DataBankStore) AddItem(ctx context.Context, item *domain.DataBankItem) error {
	query := `
		INSERT INTO databank_items (id, report_id, type, content, context, source_page, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.ReportID,
		string(item.Type),
		item.Content,
		item.Context,
		NullInt(item.SourcePage),
		pq.StringArray(tags),
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert data bank item: %w", err)
	}
	return nil
}

// ListByReport retrieves the items owned by a report in write order
func (s *DataBankStore) ListByReport(ctx context.Context, reportID string) ([]*domain.DataBankItem, error) {
	query := `
		SELECT id, report_id, type, content, context, source_page, tags, created_at
		FROM databank_items
		WHERE report_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("query data bank items: %w", err)
	}
	defer rows.Close()

	var items []*domain.DataBankItem
	for rows.Next() {
		var item domain.DataBankItem
		var itemType string
		var page sql.NullInt64
		var tags pq.StringArray

		if err := rows.Scan(
			&item.ID,
			&item.ReportID,
			&itemType,
			&item.Content,
			&item.Context,
			&page,
			&tags,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan data bank item: %w", err)
		}

		item.Type = domain.DataBankItemType(itemType)
		item.SourcePage = IntPtr(page)
		if len(tags) > 0 {
			item.Tags = []string(tags)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data bank items: %w", err)
	}
	return items, nil
}

// DeleteByReport removes every item owned by a report
func (s *DataBankStore) DeleteByReport(ctx context.Context, reportID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM databank_items WHERE report_id = $1`, reportID)
	if err != nil {
		return 0, fmt.Errorf("delete data bank items: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return int(rows), nil
}

// CountByType returns item counts keyed by type
func (s *DataBankStore) CountByType(ctx context.Context) (map[domain.DataBankItemType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM databank_items GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("query data bank counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DataBankItemType]int)
	for rows.Next() {
		var itemType string
		var count int
		if err := rows.Scan(&itemType, &count); err != nil {
			return nil, fmt.Errorf("scan data bank count: %w", err)
		}
		counts[domain.DataBankItemType(itemType)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate data bank counts: %w", err)
	}
	return counts, nil
}
