package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"posevault/internal/domain"
)

// visibleThreshold separates confidently-visible keypoints for the landmark
// subset.
const visibleThreshold = 0.5

// PoseService serves the read and maintenance surface over both stores.
type PoseService struct {
	poses  domain.PoseRepository
	assets domain.AssetRepository
	log    domain.ProcessingLogRepository
}

// NewPoseService creates a PoseService.
func NewPoseService(poses domain.PoseRepository, assets domain.AssetRepository, log domain.ProcessingLogRepository) *PoseService {
	return &PoseService{poses: poses, assets: assets, log: log}
}

// Get returns one pose record by ID.
func (s *PoseService) Get(ctx context.Context, id string) (*domain.PoseRecord, error) {
	return s.poses.GetByID(ctx, id)
}

// List returns a newest-first page of pose records and the total count.
func (s *PoseService) List(ctx context.Context, offset, limit int) ([]domain.PoseRecord, int, error) {
	records, err := s.poses.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.poses.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Logs returns a newest-first page of processing log entries and the total
// count.
func (s *PoseService) Logs(ctx context.Context, offset, limit int) ([]domain.ProcessingLogEntry, int, error) {
	entries, err := s.log.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.log.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Image resolves the stored image asset behind a pose record.
func (s *PoseService) Image(ctx context.Context, poseID string) (*domain.ImageAsset, error) {
	if _, err := s.poses.GetByID(ctx, poseID); err != nil {
		return nil, err
	}
	return s.assets.GetByPoseRecordID(ctx, poseID)
}

// ReplaceKeypoints swaps the keypoint sequence of a record and rederives its
// landmark subset and visibility vector.
func (s *PoseService) ReplaceKeypoints(ctx context.Context, id string, keypoints []domain.Keypoint) (*domain.PoseRecord, error) {
	if len(keypoints) == 0 {
		return nil, fmt.Errorf("%w: keypoints must not be empty", domain.ErrInvalidInput)
	}
	if err := s.poses.ReplaceKeypoints(ctx, id, keypoints, visibleSubset(keypoints), visibilityVector(keypoints)); err != nil {
		return nil, err
	}
	return s.poses.GetByID(ctx, id)
}

// Delete removes a record and its linked asset: the physical image first,
// then the asset row, then the pose row, then a DELETED audit entry. A
// missing asset (orphaned record) does not block the delete.
func (s *PoseService) Delete(ctx context.Context, id string) error {
	rec, err := s.poses.GetByID(ctx, id)
	if err != nil {
		return err
	}

	asset, err := s.assets.GetByPoseRecordID(ctx, id)
	switch {
	case err == nil:
		if err := os.Remove(asset.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stored image: %w", err)
		}
		if err := s.assets.Delete(ctx, asset.ID); err != nil {
			return err
		}
	case errors.Is(err, domain.ErrNotFound):
		// Orphaned record: nothing to clean up on the asset side.
	default:
		return err
	}

	if err := s.poses.Delete(ctx, id); err != nil {
		return err
	}

	entry := &domain.ProcessingLogEntry{ImageRef: rec.ImageRef, Status: domain.StatusDeleted}
	if err := s.log.Append(ctx, entry); err != nil {
		slog.Warn("delete audit row not written", "image", rec.ImageRef, "error", err)
	}
	return nil
}

func visibleSubset(keypoints []domain.Keypoint) []domain.Keypoint {
	var subset []domain.Keypoint
	for _, kp := range keypoints {
		if kp.Visibility >= visibleThreshold {
			subset = append(subset, kp)
		}
	}
	return subset
}

func visibilityVector(keypoints []domain.Keypoint) []float64 {
	vis := make([]float64, len(keypoints))
	for i, kp := range keypoints {
		vis[i] = kp.Visibility
	}
	return vis
}
