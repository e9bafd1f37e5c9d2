package domain

import (
	"context"
	"time"
)

// ImageAsset holds metadata for one stored image in the blob store. Every
// asset points back at exactly one PoseRecord; the record is always written
// first, so PoseRecordID references an existing record at creation time.
type ImageAsset struct {
	ID           string
	Filename     string // stored filename under the upload directory
	OriginalName string // client-supplied filename at upload
	ContentType  string // "image/jpeg" or "image/png"
	Size         int64  // file size in bytes
	Path         string // on-disk path of the stored file
	PoseRecordID string // back-reference to the owning PoseRecord; unique
	CreatedAt    time.Time
}

// AssetRepository handles ImageAsset persistence in the blob/metadata store.
type AssetRepository interface {
	Create(ctx context.Context, asset *ImageAsset) error
	GetByID(ctx context.Context, id string) (*ImageAsset, error)
	GetByPoseRecordID(ctx context.Context, poseRecordID string) (*ImageAsset, error)
	List(ctx context.Context, offset, limit int) ([]ImageAsset, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}
