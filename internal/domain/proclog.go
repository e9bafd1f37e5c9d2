package domain

import (
	"context"
	"time"
)

// LogStatus classifies the terminal outcome of one ingestion attempt.
type LogStatus string

const (
	StatusSuccess LogStatus = "SUCCESS"
	StatusFailed  LogStatus = "FAILED" // business outcome: no pose, unreadable image
	StatusError   LogStatus = "ERROR"  // system fault: dependency gap, crash, timeout, store failure
	StatusDeleted LogStatus = "DELETED"
)

// ProcessingLogEntry is one append-only audit row recording the outcome of
// an ingestion attempt. Failed attempts produce a log row and never a
// PoseRecord.
type ProcessingLogEntry struct {
	ID         int64
	ImageRef   string
	Status     LogStatus
	ErrorText  string // empty for SUCCESS and DELETED
	DurationMS int64  // elapsed processing time; zero when unknown
	CreatedAt  time.Time
}

// ProcessingLogRepository appends and lists audit rows. Entries are never
// updated or deleted once written.
type ProcessingLogRepository interface {
	Append(ctx context.Context, entry *ProcessingLogEntry) error
	List(ctx context.Context, offset, limit int) ([]ProcessingLogEntry, error)
	Count(ctx context.Context) (int, error)
}
