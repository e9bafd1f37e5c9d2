package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"posevault/internal/domain"
	"posevault/internal/notify"
)

// Upload is one incoming image before validation.
type Upload struct {
	OriginalName string
	ContentType  string
	Data         []byte
}

// ArchiveTrigger runs the backup that follows a successful ingestion.
type ArchiveTrigger interface {
	RunImmediate(ctx context.Context) error
}

// TaskRunner dispatches fire-and-forget side effects.
type TaskRunner interface {
	Submit(name string, fn func(ctx context.Context)) bool
}

// IngestionConfig wires an IngestionService.
type IngestionConfig struct {
	Extractor     domain.PoseExtractor
	Writer        *RecordWriter
	Log           domain.ProcessingLogRepository
	Notifier      notify.Notifier
	Archiver      ArchiveTrigger
	Tasks         TaskRunner
	Limiter       *TokenBucket
	UploadDir     string
	MaxUploadSize int64
}

// IngestionService runs one upload through validate, spool, extract and
// persist, with compensating cleanup on failure, an audit row for every
// terminal outcome, and post-success side effects that never block the
// caller.
type IngestionService struct {
	extractor domain.PoseExtractor
	writer    *RecordWriter
	log       domain.ProcessingLogRepository
	notifier  notify.Notifier
	archiver  ArchiveTrigger
	tasks     TaskRunner
	limiter   *TokenBucket
	uploadDir string
	maxSize   int64
}

// NewIngestionService creates an IngestionService.
func NewIngestionService(cfg IngestionConfig) *IngestionService {
	return &IngestionService{
		extractor: cfg.Extractor,
		writer:    cfg.Writer,
		log:       cfg.Log,
		notifier:  cfg.Notifier,
		archiver:  cfg.Archiver,
		tasks:     cfg.Tasks,
		limiter:   cfg.Limiter,
		uploadDir: cfg.UploadDir,
		maxSize:   cfg.MaxUploadSize,
	}
}

// Ingest processes a single upload end to end. clientKey identifies the
// caller for rate limiting; an empty key skips the check.
func (s *IngestionService) Ingest(ctx context.Context, clientKey string, up Upload) (*domain.PoseRecord, error) {
	if s.limiter != nil && clientKey != "" && !s.limiter.Allow(clientKey) {
		return nil, domain.ErrRateLimited
	}

	if err := s.validate(up); err != nil {
		if errors.Is(err, domain.ErrUnreadableImage) {
			s.appendLog(ctx, up.OriginalName, domain.StatusFailed, err.Error(), 0)
		}
		return nil, err
	}

	stored, err := s.spool(up)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.extractor.Extract(ctx, stored.Path)
	if err != nil {
		s.fail(ctx, stored, err, time.Since(start))
		return nil, err
	}

	rec, asset, err := s.writer.Persist(ctx, stored, result, time.Since(start).Milliseconds())
	if err != nil {
		s.fail(ctx, stored, err, time.Since(start))
		return nil, err
	}

	s.afterSuccess(rec, asset)
	return rec, nil
}

func (s *IngestionService) validate(up Upload) error {
	if len(up.Data) == 0 {
		return fmt.Errorf("%w: empty upload", domain.ErrInvalidInput)
	}
	if s.maxSize > 0 && int64(len(up.Data)) > s.maxSize {
		return fmt.Errorf("%w: image exceeds %d byte limit", domain.ErrInvalidInput, s.maxSize)
	}
	if up.ContentType != "image/jpeg" && up.ContentType != "image/png" {
		return fmt.Errorf("%w: only JPEG and PNG images are accepted", domain.ErrInvalidInput)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(up.Data)); err != nil {
		return domain.ErrUnreadableImage
	}
	return nil
}

// spool writes the upload into the upload directory under a fresh unique
// name, via a temp file and rename so no partial file is ever visible.
func (s *IngestionService) spool(up Upload) (StoredUpload, error) {
	filename := uuid.NewString() + extensionFor(up.ContentType, up.OriginalName)
	path := filepath.Join(s.uploadDir, filename)

	tmp, err := os.CreateTemp(s.uploadDir, ".upload-*")
	if err != nil {
		return StoredUpload{}, fmt.Errorf("spool upload: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(up.Data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return StoredUpload{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return StoredUpload{}, fmt.Errorf("spool upload: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return StoredUpload{}, fmt.Errorf("spool upload: %w", err)
	}

	return StoredUpload{
		Filename:     filename,
		OriginalName: up.OriginalName,
		ContentType:  up.ContentType,
		Size:         int64(len(up.Data)),
		Path:         path,
	}, nil
}

// fail cleans up after a failed attempt: the spooled file is removed unless
// a pose row already references it, and the audit row is appended. Both are
// best-effort.
func (s *IngestionService) fail(ctx context.Context, stored StoredUpload, cause error, elapsed time.Duration) {
	if !assetSideFailure(cause) {
		if err := os.Remove(stored.Path); err != nil && !os.IsNotExist(err) {
			slog.Warn("spooled upload not removed", "path", stored.Path, "error", err)
		}
	}
	s.appendLog(ctx, stored.Filename, classifyStatus(cause), cause.Error(), elapsed.Milliseconds())
}

func (s *IngestionService) appendLog(ctx context.Context, imageRef string, status domain.LogStatus, errorText string, durationMS int64) {
	entry := &domain.ProcessingLogEntry{
		ImageRef:   imageRef,
		Status:     status,
		ErrorText:  errorText,
		DurationMS: durationMS,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		slog.Warn("audit row not written", "image", imageRef, "status", status, "error", err)
	}
}

// afterSuccess dispatches the two post-ingestion side effects onto the
// background executor.
func (s *IngestionService) afterSuccess(rec *domain.PoseRecord, asset *domain.ImageAsset) {
	s.tasks.Submit("storage-notification", func(ctx context.Context) {
		msg := notify.Message{
			Subject: "New pose stored: " + rec.ImageRef,
			Body: fmt.Sprintf("Image %s was processed with %d keypoints (confidence %.2f).",
				asset.OriginalName, len(rec.Keypoints), rec.Confidence),
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			slog.Warn("storage notification failed", "image", rec.ImageRef, "error", err)
		}
	})

	s.tasks.Submit("immediate-backup", func(ctx context.Context) {
		if err := s.archiver.RunImmediate(ctx); err != nil {
			slog.Warn("immediate backup failed", "error", err)
		}
	})
}

// assetSideFailure reports whether the failure happened after the pose row
// was written. The spooled file then stays on disk for the orphaned record.
func assetSideFailure(err error) bool {
	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Store == "asset"
	}
	return errors.Is(err, domain.ErrDuplicateAsset)
}

// classifyStatus maps a failure to its audit status: FAILED for business
// outcomes of a healthy engine, ERROR for infrastructure faults.
func classifyStatus(err error) domain.LogStatus {
	var parseErr *domain.ParseError
	if errors.Is(err, domain.ErrNoPose) || errors.As(err, &parseErr) {
		return domain.StatusFailed
	}
	return domain.StatusError
}

func extensionFor(contentType, originalName string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	return strings.ToLower(filepath.Ext(originalName))
}
