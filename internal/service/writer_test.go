package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"posevault/internal/domain"
	"posevault/internal/repository/bolt"
	"posevault/internal/repository/sqlite"
	"posevault/internal/service"
)

type testStores struct {
	poses  domain.PoseRepository
	assets domain.AssetRepository
	log    domain.ProcessingLogRepository
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.New(filepath.Join(dir, "pose.db"))
	if err != nil {
		t.Fatalf("open pose store: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bdb, err := bolt.New(filepath.Join(dir, "assets.db"))
	if err != nil {
		t.Fatalf("open asset store: %v", err)
	}
	t.Cleanup(func() { bdb.Close() })

	return testStores{poses: db.Poses(), assets: bdb.Assets(), log: db.ProcessingLog()}
}

func sampleResult() *domain.PoseResult {
	return &domain.PoseResult{
		Keypoints: []domain.Keypoint{
			{Index: 0, Name: "NOSE", X: 0.5, Y: 0.2, Z: 0, Visibility: 0.9},
			{Index: 1, Name: "LEFT_EYE_INNER", X: 0.52, Y: 0.18, Z: 0, Visibility: 0.2},
		},
		Confidence:  0.55,
		ImageWidth:  640,
		ImageHeight: 480,
	}
}

func TestRecordWriter_Persist(t *testing.T) {
	s := newTestStores(t)
	w := service.NewRecordWriter(s.poses, s.assets, s.log)
	ctx := context.Background()

	upload := service.StoredUpload{
		Filename:     "abc.jpg",
		OriginalName: "portrait.jpg",
		ContentType:  "image/jpeg",
		Size:         1234,
		Path:         "/tmp/abc.jpg",
	}

	rec, asset, err := w.Persist(ctx, upload, sampleResult(), 87)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if rec.ID == "" || asset.ID == "" {
		t.Fatal("expected generated IDs")
	}
	if rec.ImageRef != "abc.jpg" {
		t.Fatalf("expected image ref abc.jpg, got %q", rec.ImageRef)
	}
	// The landmark subset keeps only confidently visible keypoints.
	if len(rec.Landmarks) != 1 || rec.Landmarks[0].Name != "NOSE" {
		t.Fatalf("unexpected landmarks: %+v", rec.Landmarks)
	}
	if len(rec.Visibility) != 2 {
		t.Fatalf("expected 2 visibility values, got %d", len(rec.Visibility))
	}
	if asset.PoseRecordID != rec.ID {
		t.Fatalf("asset must point at the record: %q != %q", asset.PoseRecordID, rec.ID)
	}

	// Both rows landed.
	if _, err := s.poses.GetByID(ctx, rec.ID); err != nil {
		t.Fatalf("pose row missing: %v", err)
	}
	if _, err := s.assets.GetByPoseRecordID(ctx, rec.ID); err != nil {
		t.Fatalf("asset row missing: %v", err)
	}

	// And the SUCCESS audit row with the measured duration.
	entries, err := s.log.List(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != domain.StatusSuccess {
		t.Fatalf("expected one SUCCESS entry, got %+v", entries)
	}
	if entries[0].DurationMS != 87 {
		t.Fatalf("expected duration 87ms, got %d", entries[0].DurationMS)
	}
}

func TestRecordWriter_Persist_AssetFailureKeepsRecord(t *testing.T) {
	s := newTestStores(t)
	w := service.NewRecordWriter(s.poses, failingAssets{}, s.log)
	ctx := context.Background()

	upload := service.StoredUpload{Filename: "abc.jpg", ContentType: "image/jpeg"}
	_, _, err := w.Persist(ctx, upload, sampleResult(), 10)

	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) || storeErr.Store != "asset" {
		t.Fatalf("expected asset StoreError, got %v", err)
	}

	// The pose row stays behind as the accepted orphan.
	if _, err := s.poses.GetByImageRef(ctx, "abc.jpg"); err != nil {
		t.Fatalf("expected orphaned record to remain: %v", err)
	}

	// No SUCCESS entry was written.
	count, err := s.log.Count(ctx)
	if err != nil {
		t.Fatalf("count log: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no audit rows, got %d", count)
	}
}

// failingAssets rejects every write with an asset-store failure.
type failingAssets struct{}

func (failingAssets) Create(context.Context, *domain.ImageAsset) error {
	return &domain.StoreError{Store: "asset", Op: "create asset", Err: errors.New("disk full")}
}

func (failingAssets) GetByID(context.Context, string) (*domain.ImageAsset, error) {
	return nil, domain.ErrNotFound
}

func (failingAssets) GetByPoseRecordID(context.Context, string) (*domain.ImageAsset, error) {
	return nil, domain.ErrNotFound
}

func (failingAssets) List(context.Context, int, int) ([]domain.ImageAsset, error) { return nil, nil }

func (failingAssets) Count(context.Context) (int, error) { return 0, nil }

func (failingAssets) Delete(context.Context, string) error { return domain.ErrNotFound }
