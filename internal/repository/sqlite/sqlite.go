package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"posevault/internal/domain"
	"posevault/internal/repository/sqlite/migrations"
)

// DB wraps the SQLite handle behind the structured-store repositories.
type DB struct {
	SqlDB *sql.DB
}

// New opens the structured store at the given path. WAL mode, foreign key
// enforcement, and a busy timeout are set through the DSN so they apply to
// every connection. The open itself is lazy; readiness is probed separately
// via WaitReady so a slow or missing volume does not abort startup.
func New(dbPath string) (*DB, error) {
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection avoids lock churn.
	db.SetMaxOpenConns(1)

	return &DB{SqlDB: db}, nil
}

// WaitReady pings the store up to attempts times, sleeping delay between
// tries. The last ping error is returned so the caller can choose to keep
// serving in a degraded mode instead of exiting; queries issued before the
// store recovers fail with a StoreError.
func (db *DB) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.SqlDB.PingContext(ctx); err == nil {
			return nil
		}
		slog.Warn("structured store not ready", "attempt", i, "attempts", attempts, "error", err)
		if i < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("ping database: %w", err)
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, db.SqlDB)
}

// Ping reports current connectivity; used by the health surface and the
// archive statistics probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.SqlDB.PingContext(ctx)
}

// Close releases the underlying handle.
func (db *DB) Close() error {
	return db.SqlDB.Close()
}

// Poses returns the PoseRecord repository backed by this store.
func (db *DB) Poses() domain.PoseRepository {
	return &PoseRepository{db: db.SqlDB}
}

// ProcessingLog returns the audit log repository backed by this store.
func (db *DB) ProcessingLog() domain.ProcessingLogRepository {
	return &ProcessingLogRepository{db: db.SqlDB}
}
