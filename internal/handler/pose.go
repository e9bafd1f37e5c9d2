package handler

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"posevault/internal/domain"
	"posevault/internal/service"
)

// multipartMemory is the in-memory threshold for parsing uploads; larger
// bodies spill to temp files.
const multipartMemory = 8 << 20

// PoseHandler serves the ingestion and pose-record API.
type PoseHandler struct {
	ingestion *service.IngestionService
	poses     *service.PoseService
	maxUpload int64
}

// NewPoseHandler creates a PoseHandler. maxUpload bounds the accepted
// request body size; zero disables the bound.
func NewPoseHandler(ingestion *service.IngestionService, poses *service.PoseService, maxUpload int64) *PoseHandler {
	return &PoseHandler{ingestion: ingestion, poses: poses, maxUpload: maxUpload}
}

// HandleUpload ingests one image through the pose pipeline.
// POST /api/poses
func (h *PoseHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "no image file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	// Detect content type from file bytes, not the multipart header.
	up := service.Upload{
		OriginalName: header.Filename,
		ContentType:  http.DetectContentType(data),
		Data:         data,
	}

	rec, err := h.ingestion.Ingest(r.Context(), clientIP(r), up)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPoseRecordDTO(rec))
}

// HandleList returns a newest-first page of pose records.
// GET /api/poses
func (h *PoseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	records, total, err := h.poses.List(r.Context(), (page-1)*perPage, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(toPoseRecordDTOs(records), total, page, perPage))
}

// HandleGet returns a single pose record.
// GET /api/poses/{id}
func (h *PoseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.poses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoseRecordDTO(rec))
}

// HandleImage serves the stored image behind a pose record.
// GET /api/poses/{id}/image
func (h *PoseHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	asset, err := h.poses.Image(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		// The orphan window of the dual write surfaces here: record
		// present, image gone.
		if os.IsNotExist(err) {
			respondError(w, r, domain.ErrNotFound)
			return
		}
		slog.Error("open stored image", "path", asset.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeContent(w, r, asset.Filename, asset.CreatedAt, f)
}

// HandleReplaceKeypoints swaps the keypoint sequence of a record.
// PUT /api/poses/{id}/keypoints
func (h *PoseHandler) HandleReplaceKeypoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keypoints []domain.Keypoint `json:"keypoints"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "malformed JSON body")
		return
	}

	rec, err := h.poses.ReplaceKeypoints(r.Context(), r.PathValue("id"), req.Keypoints)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPoseRecordDTO(rec))
}

// HandleDelete removes a record, its asset and its stored image.
// DELETE /api/poses/{id}
func (h *PoseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.poses.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogs returns a newest-first page of processing log entries.
// GET /api/logs
func (h *PoseHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	entries, total, err := h.poses.Logs(r.Context(), (page-1)*perPage, perPage)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(toLogEntryDTOs(entries), total, page, perPage))
}

// pagination reads page/per_page query parameters with sane bounds.
func pagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 {
		perPage = min(v, 100)
	}
	return page, perPage
}
