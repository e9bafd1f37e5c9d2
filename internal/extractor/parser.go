package extractor

import (
	"encoding/json"
	"strings"

	"posevault/internal/domain"
)

// resultLine is the engine's final stdout line. Progress noise may precede
// it, so Parse locates it by scanning backward.
type resultLine struct {
	Success         bool              `json:"success"`
	Error           string            `json:"error"`
	Keypoints       []domain.Keypoint `json:"keypoints"`
	KeypointsCount  int               `json:"keypoints_count"`
	Confidence      float64           `json:"confidence"`
	ImageDimensions struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image_dimensions"`
	PoseDetected bool `json:"pose_detected"`
}

// Parse extracts the single structured result from raw engine output.
// Lines are scanned from the end toward the start; the first
// brace-delimited line that decodes is the result. Output with no decodable
// line is a ParseError. A decoded result with an absent or empty keypoints
// field means the engine found no pose — a business outcome, reported as
// ErrNoPose rather than a fault.
func Parse(raw string) (*domain.PoseResult, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
			continue
		}
		var res resultLine
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		if len(res.Keypoints) == 0 {
			return nil, domain.ErrNoPose
		}
		return &domain.PoseResult{
			Keypoints:   res.Keypoints,
			Confidence:  res.Confidence,
			ImageWidth:  res.ImageDimensions.Width,
			ImageHeight: res.ImageDimensions.Height,
		}, nil
	}
	return nil, &domain.ParseError{Reason: "no result line in engine output"}
}
