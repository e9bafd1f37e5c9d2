package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"posevault/internal/domain"
	"posevault/internal/repository/sqlite"
)

var _ domain.ProcessingLogRepository = (*sqlite.ProcessingLogRepository)(nil)

func TestProcessingLogRepository_Append(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewProcessingLogRepository(db)
	ctx := context.Background()

	entry := &domain.ProcessingLogEntry{
		ImageRef:   "img-1.jpg",
		Status:     domain.StatusSuccess,
		DurationMS: 42,
	}
	if err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("expected entry ID to be set after append")
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be set")
	}
}

func TestProcessingLogRepository_Append_WithError(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewProcessingLogRepository(db)
	ctx := context.Background()

	entry := &domain.ProcessingLogEntry{
		ImageRef:  "img-1.jpg",
		Status:    domain.StatusError,
		ErrorText: "pose engine exited with code 1",
	}
	if err := repo.Append(ctx, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := repo.List(ctx, 0, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Status != domain.StatusError {
		t.Fatalf("expected status %s, got %s", domain.StatusError, entries[0].Status)
	}
	if entries[0].ErrorText != "pose engine exited with code 1" {
		t.Fatalf("unexpected error text: %q", entries[0].ErrorText)
	}
}

func TestProcessingLogRepository_Append_InvalidStatus(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewProcessingLogRepository(db)

	entry := &domain.ProcessingLogEntry{ImageRef: "img.jpg", Status: "BOGUS"}
	err := repo.Append(context.Background(), entry)

	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError for invalid status, got %v", err)
	}
}

func TestProcessingLogRepository_ListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	repo := sqlite.NewProcessingLogRepository(db)
	ctx := context.Background()

	for _, ref := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		entry := &domain.ProcessingLogEntry{ImageRef: ref, Status: domain.StatusSuccess}
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("Append %s: %v", ref, err)
		}
	}

	entries, err := repo.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ImageRef != "c.jpg" || entries[2].ImageRef != "a.jpg" {
		t.Fatalf("expected newest-first order, got %s..%s", entries[0].ImageRef, entries[2].ImageRef)
	}

	page, err := repo.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 1 || page[0].ImageRef != "b.jpg" {
		t.Fatalf("expected page [b.jpg], got %+v", page)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}
