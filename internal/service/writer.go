package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"posevault/internal/domain"
)

// StoredUpload is an image already spooled into the upload directory,
// awaiting persistence.
type StoredUpload struct {
	Filename     string
	OriginalName string
	ContentType  string
	Size         int64
	Path         string
}

// RecordWriter persists one extraction outcome across both stores in fixed
// order: the PoseRecord first, then the ImageAsset pointing back at it, then
// a best-effort SUCCESS audit row. The two inserts are not a distributed
// transaction; an asset-side failure leaves an orphaned PoseRecord that
// shows up only as a missing image on the read path.
type RecordWriter struct {
	poses  domain.PoseRepository
	assets domain.AssetRepository
	log    domain.ProcessingLogRepository
}

// NewRecordWriter creates a RecordWriter over the given stores.
func NewRecordWriter(poses domain.PoseRepository, assets domain.AssetRepository, log domain.ProcessingLogRepository) *RecordWriter {
	return &RecordWriter{poses: poses, assets: assets, log: log}
}

// Persist writes the pose record, the image asset, and the audit row.
// durationMS is the elapsed processing time recorded on the audit row.
func (w *RecordWriter) Persist(ctx context.Context, upload StoredUpload, result *domain.PoseResult, durationMS int64) (*domain.PoseRecord, *domain.ImageAsset, error) {
	rec := &domain.PoseRecord{
		ID:          uuid.NewString(),
		ImageRef:    upload.Filename,
		Keypoints:   result.Keypoints,
		Landmarks:   visibleSubset(result.Keypoints),
		Visibility:  visibilityVector(result.Keypoints),
		Confidence:  result.Confidence,
		ImageWidth:  result.ImageWidth,
		ImageHeight: result.ImageHeight,
	}
	if err := w.poses.Create(ctx, rec); err != nil {
		return nil, nil, err
	}

	asset := &domain.ImageAsset{
		ID:           uuid.NewString(),
		Filename:     upload.Filename,
		OriginalName: upload.OriginalName,
		ContentType:  upload.ContentType,
		Size:         upload.Size,
		Path:         upload.Path,
		PoseRecordID: rec.ID,
	}
	if err := w.assets.Create(ctx, asset); err != nil {
		// The pose row stays behind: this is the accepted inconsistency
		// window of the unsynchronized dual write.
		return nil, nil, err
	}

	entry := &domain.ProcessingLogEntry{
		ImageRef:   upload.Filename,
		Status:     domain.StatusSuccess,
		DurationMS: durationMS,
	}
	if err := w.log.Append(ctx, entry); err != nil {
		slog.Warn("success audit row not written", "image", upload.Filename, "error", err)
	}

	return rec, asset, nil
}
