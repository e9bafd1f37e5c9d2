package domain

import (
	"context"
	"time"
)

// Keypoint is a single detected body landmark. Coordinates are normalized
// to the source image; names follow the engine's 33-landmark vocabulary
// (NOSE through RIGHT_FOOT_INDEX). The JSON shape matches the engine's
// output line so the same struct rides the process boundary and the API.
type Keypoint struct {
	Index      int     `json:"id"`
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// PoseResult is the outcome of one extraction run, before persistence.
type PoseResult struct {
	Keypoints   []Keypoint
	Confidence  float64 // mean keypoint visibility reported by the engine
	ImageWidth  int
	ImageHeight int
}

// PoseRecord is the persisted extraction result for one image.
type PoseRecord struct {
	ID          string
	ImageRef    string // stored image filename; unique across all records
	Keypoints   []Keypoint
	Landmarks   []Keypoint // confidently-visible subset, may be empty
	Visibility  []float64  // per-keypoint visibility vector, may be empty
	Confidence  float64
	ImageWidth  int
	ImageHeight int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PoseRepository handles PoseRecord persistence in the structured store.
// List and Count back the paginated, newest-first read surface.
type PoseRepository interface {
	Create(ctx context.Context, rec *PoseRecord) error
	GetByID(ctx context.Context, id string) (*PoseRecord, error)
	GetByImageRef(ctx context.Context, ref string) (*PoseRecord, error)
	List(ctx context.Context, offset, limit int) ([]PoseRecord, error)
	Count(ctx context.Context) (int, error)
	ReplaceKeypoints(ctx context.Context, id string, keypoints, landmarks []Keypoint, visibility []float64) error
	Delete(ctx context.Context, id string) error
}

// PoseExtractor produces a PoseResult from an image on disk by delegating
// to the external pose engine. Verify runs the engine's dependency
// self-check alone; Extract runs the self-check and then the extraction.
type PoseExtractor interface {
	Verify(ctx context.Context) error
	Extract(ctx context.Context, imagePath string) (*PoseResult, error)
}
