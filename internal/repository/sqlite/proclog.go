package sqlite

import (
	"context"
	"database/sql"
	"time"

	"posevault/internal/domain"
)

// ProcessingLogRepository implements domain.ProcessingLogRepository using
// SQLite. Rows are append-only; there are no update or delete operations.
type ProcessingLogRepository struct {
	db *sql.DB
}

// NewProcessingLogRepository creates a new SQLite-backed log repository.
func NewProcessingLogRepository(db *DB) *ProcessingLogRepository {
	return &ProcessingLogRepository{db: db.SqlDB}
}

func (r *ProcessingLogRepository) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	now := time.Now().UTC()

	var errorText sql.NullString
	if entry.ErrorText != "" {
		errorText = sql.NullString{String: entry.ErrorText, Valid: true}
	}
	var duration sql.NullInt64
	if entry.DurationMS > 0 {
		duration = sql.NullInt64{Int64: entry.DurationMS, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO processing_log (image_ref, status, error_text, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.ImageRef, string(entry.Status), errorText, duration, now,
	)
	if err != nil {
		return &domain.StoreError{Store: "log", Op: "append entry", Err: err}
	}

	id, err := result.LastInsertId()
	if err != nil {
		return &domain.StoreError{Store: "log", Op: "append entry", Err: err}
	}

	entry.ID = id
	entry.CreatedAt = now
	return nil
}

func (r *ProcessingLogRepository) List(ctx context.Context, offset, limit int) ([]domain.ProcessingLogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, image_ref, status, error_text, duration_ms, created_at
		 FROM processing_log ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, &domain.StoreError{Store: "log", Op: "list entries", Err: err}
	}
	defer rows.Close()

	var entries []domain.ProcessingLogEntry
	for rows.Next() {
		var entry domain.ProcessingLogEntry
		var status string
		var errorText sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.ImageRef, &status, &errorText, &duration, &entry.CreatedAt); err != nil {
			return nil, &domain.StoreError{Store: "log", Op: "scan entry", Err: err}
		}
		entry.Status = domain.LogStatus(status)
		entry.ErrorText = errorText.String
		entry.DurationMS = duration.Int64
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Store: "log", Op: "list entries", Err: err}
	}
	return entries, nil
}

func (r *ProcessingLogRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processing_log`).Scan(&count)
	if err != nil {
		return 0, &domain.StoreError{Store: "log", Op: "count entries", Err: err}
	}
	return count, nil
}
