package handler

import (
	"net/http"
)

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, poses *PoseHandler, backups *BackupHandler, health *HealthHandler) {
	mux.HandleFunc("POST /api/poses", poses.HandleUpload)
	mux.HandleFunc("GET /api/poses", poses.HandleList)
	mux.HandleFunc("GET /api/poses/{id}", poses.HandleGet)
	mux.HandleFunc("GET /api/poses/{id}/image", poses.HandleImage)
	mux.HandleFunc("PUT /api/poses/{id}/keypoints", poses.HandleReplaceKeypoints)
	mux.HandleFunc("DELETE /api/poses/{id}", poses.HandleDelete)
	mux.HandleFunc("GET /api/logs", poses.HandleLogs)

	mux.HandleFunc("POST /api/backups", backups.HandleRun)
	mux.HandleFunc("GET /api/backups", backups.HandleList)
	mux.HandleFunc("GET /api/backups/{name}", backups.HandleDownload)

	mux.HandleFunc("GET /healthz", health.HandleHealthz)
}
