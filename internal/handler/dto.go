package handler

import (
	"time"

	"github.com/dustin/go-humanize"

	"posevault/internal/backup"
	"posevault/internal/domain"
)

// PoseRecordDTO is the JSON representation of a pose record.
type PoseRecordDTO struct {
	ID          string            `json:"id"`
	ImageRef    string            `json:"imageRef"`
	Keypoints   []domain.Keypoint `json:"keypoints"`
	Landmarks   []domain.Keypoint `json:"landmarks"`
	Visibility  []float64         `json:"visibility"`
	Confidence  float64           `json:"confidence"`
	ImageWidth  int               `json:"imageWidth"`
	ImageHeight int               `json:"imageHeight"`
	CreatedAt   string            `json:"createdAt"`
	UpdatedAt   string            `json:"updatedAt"`
}

func toPoseRecordDTO(rec *domain.PoseRecord) PoseRecordDTO {
	return PoseRecordDTO{
		ID:          rec.ID,
		ImageRef:    rec.ImageRef,
		Keypoints:   rec.Keypoints,
		Landmarks:   rec.Landmarks,
		Visibility:  rec.Visibility,
		Confidence:  rec.Confidence,
		ImageWidth:  rec.ImageWidth,
		ImageHeight: rec.ImageHeight,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
	}
}

func toPoseRecordDTOs(records []domain.PoseRecord) []PoseRecordDTO {
	dtos := make([]PoseRecordDTO, len(records))
	for i := range records {
		dtos[i] = toPoseRecordDTO(&records[i])
	}
	return dtos
}

// LogEntryDTO is the JSON representation of a processing log entry.
type LogEntryDTO struct {
	ID         int64  `json:"id"`
	ImageRef   string `json:"imageRef"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}

func toLogEntryDTO(e domain.ProcessingLogEntry) LogEntryDTO {
	return LogEntryDTO{
		ID:         e.ID,
		ImageRef:   e.ImageRef,
		Status:     string(e.Status),
		Error:      e.ErrorText,
		DurationMS: e.DurationMS,
		CreatedAt:  e.CreatedAt.Format(time.RFC3339),
	}
}

func toLogEntryDTOs(entries []domain.ProcessingLogEntry) []LogEntryDTO {
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLogEntryDTO(e)
	}
	return dtos
}

// ArchiveDTO is the JSON representation of a backup archive.
type ArchiveDTO struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	SizeHuman  string `json:"sizeHuman"`
	ModifiedAt string `json:"modifiedAt"`
}

func toArchiveDTO(a backup.Archive) ArchiveDTO {
	return ArchiveDTO{
		Name:       a.Name,
		Size:       a.Size,
		SizeHuman:  humanize.Bytes(uint64(a.Size)),
		ModifiedAt: a.ModTime.Format(time.RFC3339),
	}
}

func toArchiveDTOs(archives []backup.Archive) []ArchiveDTO {
	dtos := make([]ArchiveDTO, len(archives))
	for i, a := range archives {
		dtos[i] = toArchiveDTO(a)
	}
	return dtos
}

// pageResponse is the envelope for paginated list responses.
func pageResponse(data any, total, page, perPage int) map[string]any {
	return map[string]any{
		"data":    data,
		"total":   total,
		"page":    page,
		"perPage": perPage,
	}
}
