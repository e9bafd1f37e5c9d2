package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"posevault/internal/domain"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// engineCacheTTL bounds how often the health endpoint re-runs the pose
// engine self-check, which spawns a child process.
const engineCacheTTL = time.Minute

// HealthHandler reports liveness and per-component status.
type HealthHandler struct {
	poseStore  Pinger
	assetStore Pinger
	engine     domain.PoseExtractor
	started    time.Time

	mu           sync.Mutex
	engineStatus string
	engineAt     time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(poseStore, assetStore Pinger, engine domain.PoseExtractor) *HealthHandler {
	return &HealthHandler{
		poseStore:  poseStore,
		assetStore: assetStore,
		engine:     engine,
		started:    time.Now(),
	}
}

// HandleHealthz reports overall and per-component health. Store pings run
// on every call; the engine self-check result is cached. An engine outage
// degrades uploads only, so it does not flip the overall status.
// GET /healthz
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components := map[string]string{
		"poseStore":  componentStatus(ctx, h.poseStore),
		"assetStore": componentStatus(ctx, h.assetStore),
		"engine":     h.engineState(ctx),
	}

	status := "ok"
	code := http.StatusOK
	if components["poseStore"] != "ok" || components["assetStore"] != "ok" {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"components": components,
	})
}

func componentStatus(ctx context.Context, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// engineState runs the engine self-check at most once per cache window.
func (h *HealthHandler) engineState(ctx context.Context) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engineStatus != "" && time.Since(h.engineAt) < engineCacheTTL {
		return h.engineStatus
	}

	if err := h.engine.Verify(ctx); err != nil {
		h.engineStatus = "error: " + err.Error()
	} else {
		h.engineStatus = "ok"
	}
	h.engineAt = time.Now()
	return h.engineStatus
}
