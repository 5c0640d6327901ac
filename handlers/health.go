package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is implemented by every store backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports store connectivity
type HealthHandler struct {
	store   Pinger
	backend string
	now     func() time.Time
}

// NewHealthHandler creates a health handler for the named store backend
func NewHealthHandler(store Pinger, backend string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Store     string    `json:"store"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// GetHealth handles GET /health
// Pings the store with a 2s budget
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Store:     h.backend,
			Database:  "disconnected",
			Timestamp: h.now(),
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Store:     h.backend,
		Database:  "connected",
		Timestamp: h.now(),
	})
}

// GetHealthz handles GET /healthz (liveness only)
func (h *HealthHandler) GetHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
