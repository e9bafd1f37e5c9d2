package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"posevault/internal/backup"
	"posevault/internal/domain"
)

// writeJSON sends a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write JSON response", "error", err)
	}
}

// errorBody is the wire shape of every error response. Code is the stable
// machine-readable category; Detail carries optional diagnostics.
type errorBody struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// writeError sends a JSON error response with the given status and code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// respondError maps a service error onto the HTTP surface. Infrastructure
// failures are logged here so individual handlers don't have to.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	var (
		depErr     *domain.DependencyError
		procErr    *domain.ProcessError
		timeoutErr *domain.TimeoutError
		parseErr   *domain.ParseError
		storeErr   *domain.StoreError
		archErr    *backup.ArchiveError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "unauthorized", Code: "unauthorized"}
	case errors.Is(err, domain.ErrDuplicateImage):
		return http.StatusConflict, errorBody{Error: "image reference already exists", Code: "duplicate_image"}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: "too many uploads, retry later", Code: "rate_limited"}
	case errors.Is(err, domain.ErrNoPose):
		return http.StatusUnprocessableEntity, errorBody{Error: "no pose detected in image", Code: "no_pose"}
	case errors.Is(err, domain.ErrUnreadableImage):
		return http.StatusBadRequest, errorBody{Error: "image could not be decoded", Code: "unreadable_image"}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_input"}
	case errors.As(err, &depErr):
		return http.StatusServiceUnavailable, errorBody{Error: depErr.Error(), Code: "engine_dependency"}
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, errorBody{Error: timeoutErr.Error(), Code: "engine_timeout"}
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, errorBody{Error: "pose engine returned no usable result", Code: "engine_output"}
	case errors.As(err, &procErr):
		return http.StatusInternalServerError, errorBody{Error: "pose engine failed", Code: "engine_failure", Detail: procErr.Diagnostic}
	case errors.As(err, &storeErr):
		return http.StatusServiceUnavailable, errorBody{Error: "storage unavailable", Code: "store_unavailable"}
	case errors.As(err, &archErr):
		return http.StatusInternalServerError, errorBody{Error: "backup archive could not be built", Code: "archive_failure"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal server error", Code: "internal"}
}

// readJSON decodes the request body into the given destination.
func readJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
