package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Tsahi-Elkayam/sphinx/pkg/models"
)

// timestamps are stored fixed-width in UTC so text ordering is chronological
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// HistoryRepository is the append-only log of applied opportunities
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a history repository on db
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// AddRecord appends a record; an opportunity can be recorded only once
func (r *HistoryRepository) AddRecord(ctx context.Context, record models.ActionRecord) error {
	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO action_history (
			opportunity_id, applied_at, resource_address,
			opportunity_title, applied_iac_content
		) VALUES (?, ?, ?, ?, ?)`,
		record.OpportunityID,
		record.AppliedAt.UTC().Format(timestampLayout),
		record.ResourceAddress,
		record.OpportunityTitle,
		record.AppliedIaCContent,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("history record %s: %w", record.OpportunityID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	r.db.logger.Debugf("Recorded applied opportunity %s", record.OpportunityID)
	return nil
}

// ListRecords returns every record, newest first
func (r *HistoryRepository) ListRecords(ctx context.Context) ([]models.ActionRecord, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT opportunity_id, applied_at, resource_address, opportunity_title, applied_iac_content
		FROM action_history
		ORDER BY applied_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.ActionRecord, 0)
	for rows.Next() {
		var (
			record    models.ActionRecord
			appliedAt string
		)
		if err := rows.Scan(&record.OpportunityID, &appliedAt, &record.ResourceAddress,
			&record.OpportunityTitle, &record.AppliedIaCContent); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		record.AppliedAt, err = time.Parse(timestampLayout, appliedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid applied_at %q for %s: %w", appliedAt, record.OpportunityID, err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	return records, nil
}
