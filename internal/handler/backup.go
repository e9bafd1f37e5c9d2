package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"posevault/internal/backup"
	"posevault/internal/domain"
	"posevault/internal/service"
)

// BackupHandler serves the backup archive API.
type BackupHandler struct {
	scheduler *backup.Scheduler
	tokens    *service.TokenService
	dir       string
}

// NewBackupHandler creates a BackupHandler serving archives from dir.
func NewBackupHandler(scheduler *backup.Scheduler, tokens *service.TokenService, dir string) *BackupHandler {
	return &BackupHandler{scheduler: scheduler, tokens: tokens, dir: dir}
}

// HandleRun triggers a backup outside the schedule and returns a signed
// download link for the fresh archive.
// POST /api/backups
func (h *BackupHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	name, err := h.scheduler.RunManual(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	token, err := h.tokens.IssueArchiveToken(name)
	if err != nil {
		slog.Error("issue download token", "archive", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	var size int64
	if info, err := os.Stat(filepath.Join(h.dir, name)); err == nil {
		size = info.Size()
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"archive":  name,
		"size":     size,
		"download": "/api/backups/" + name + "?token=" + url.QueryEscape(token),
	})
}

// HandleList enumerates archives newest-first.
// GET /api/backups
func (h *BackupHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	archives, err := backup.ListArchives(h.dir)
	if err != nil {
		slog.Error("list archives", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": toArchiveDTOs(archives)})
}

// HandleDownload streams one archive. The name must match the archive
// naming shape, which also rules out path traversal, and the token must
// have been issued for exactly this archive.
// GET /api/backups/{name}
func (h *BackupHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !backup.ValidArchiveName(name) {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid archive name")
		return
	}
	if err := h.tokens.ValidateArchiveToken(r.URL.Query().Get("token"), name); err != nil {
		respondError(w, r, err)
		return
	}

	f, err := os.Open(filepath.Join(h.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			respondError(w, r, domain.ErrNotFound)
			return
		}
		slog.Error("open archive", "archive", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("stat archive", "archive", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}
