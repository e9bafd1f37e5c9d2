package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"posevault/internal/domain"
	"posevault/internal/service"
)

// seedRecord persists a pose record with a linked asset and a real file on
// disk, the way a successful ingestion leaves them.
func seedRecord(t *testing.T, s testStores, dir string) (*domain.PoseRecord, *domain.ImageAsset) {
	t.Helper()
	ctx := context.Background()

	rec := &domain.PoseRecord{
		ID:       uuid.NewString(),
		ImageRef: uuid.NewString() + ".png",
		Keypoints: []domain.Keypoint{
			{Index: 0, Name: "NOSE", X: 0.5, Y: 0.2, Visibility: 0.9},
			{Index: 1, Name: "LEFT_EYE_INNER", X: 0.52, Y: 0.18, Visibility: 0.2},
		},
		Landmarks: []domain.Keypoint{
			{Index: 0, Name: "NOSE", X: 0.5, Y: 0.2, Visibility: 0.9},
		},
		Visibility:  []float64{0.9, 0.2},
		Confidence:  0.55,
		ImageWidth:  640,
		ImageHeight: 480,
	}
	if err := s.poses.Create(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}

	path := filepath.Join(dir, rec.ImageRef)
	if err := os.WriteFile(path, []byte("image bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}

	asset := &domain.ImageAsset{
		ID:           uuid.NewString(),
		Filename:     rec.ImageRef,
		OriginalName: "dancer.png",
		ContentType:  "image/png",
		Size:         11,
		Path:         path,
		PoseRecordID: rec.ID,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return rec, asset
}

func TestPoseService_Get(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	rec, _ := seedRecord(t, s, t.TempDir())

	got, err := svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ImageRef != rec.ImageRef {
		t.Fatalf("expected %q, got %q", rec.ImageRef, got.ImageRef)
	}

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPoseService_List(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	dir := t.TempDir()
	seedRecord(t, s, dir)
	seedRecord(t, s, dir)

	records, total, err := svc.List(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || total != 2 {
		t.Fatalf("expected 2 records with total 2, got %d/%d", len(records), total)
	}
}

func TestPoseService_Image(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	rec, asset := seedRecord(t, s, t.TempDir())

	got, err := svc.Image(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if got.ID != asset.ID || got.Path != asset.Path {
		t.Fatalf("unexpected asset: %+v", got)
	}

	// Unknown pose ID resolves on the record side, not the asset side.
	if _, err := svc.Image(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPoseService_ReplaceKeypoints(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	rec, _ := seedRecord(t, s, t.TempDir())
	ctx := context.Background()

	replacement := []domain.Keypoint{
		{Index: 11, Name: "LEFT_SHOULDER", X: 0.4, Y: 0.5, Visibility: 0.8},
		{Index: 12, Name: "RIGHT_SHOULDER", X: 0.6, Y: 0.5, Visibility: 0.3},
		{Index: 23, Name: "LEFT_HIP", X: 0.45, Y: 0.7, Visibility: 0.7},
	}
	got, err := svc.ReplaceKeypoints(ctx, rec.ID, replacement)
	if err != nil {
		t.Fatalf("ReplaceKeypoints: %v", err)
	}
	if len(got.Keypoints) != 3 {
		t.Fatalf("expected 3 keypoints, got %d", len(got.Keypoints))
	}
	// The landmark subset and visibility vector are rederived.
	if len(got.Landmarks) != 2 || got.Landmarks[0].Name != "LEFT_SHOULDER" || got.Landmarks[1].Name != "LEFT_HIP" {
		t.Fatalf("unexpected landmarks: %+v", got.Landmarks)
	}
	if len(got.Visibility) != 3 || got.Visibility[1] != 0.3 {
		t.Fatalf("unexpected visibility: %v", got.Visibility)
	}
}

func TestPoseService_ReplaceKeypoints_Empty(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	rec, _ := seedRecord(t, s, t.TempDir())

	if _, err := svc.ReplaceKeypoints(context.Background(), rec.ID, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPoseService_Delete(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	rec, asset := seedRecord(t, s, t.TempDir())
	ctx := context.Background()

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// File, asset row and pose row are all gone.
	if _, err := os.Stat(asset.Path); !os.IsNotExist(err) {
		t.Fatalf("expected stored image removed, got %v", err)
	}
	if _, err := s.assets.GetByID(ctx, asset.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected asset gone, got %v", err)
	}
	if _, err := s.poses.GetByID(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}

	// And the delete was audited.
	entries, err := s.log.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != domain.StatusDeleted {
		t.Fatalf("expected one DELETED entry, got %+v", entries)
	}
	if entries[0].ImageRef != rec.ImageRef {
		t.Fatalf("expected entry for %q, got %q", rec.ImageRef, entries[0].ImageRef)
	}
}

func TestPoseService_Delete_OrphanedRecord(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)
	ctx := context.Background()

	// A record with no asset, as the dual write can leave behind.
	rec := &domain.PoseRecord{
		ID:        uuid.NewString(),
		ImageRef:  "orphan.png",
		Keypoints: []domain.Keypoint{{Index: 0, Name: "NOSE", Visibility: 0.9}},
	}
	if err := s.poses.Create(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.poses.GetByID(ctx, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected record gone, got %v", err)
	}
}

func TestPoseService_Delete_NotFound(t *testing.T) {
	s := newTestStores(t)
	svc := service.NewPoseService(s.poses, s.assets, s.log)

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
