package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/models"
	"github.com/you/bustracker/repository"
)

// maxPayloadBytes caps a single location update body
const maxPayloadBytes = 64 << 10

// BusTracker defines the operations the bus endpoints need
type BusTracker interface {
	Ingest(ctx context.Context, update models.LocationUpdate) error
	Query(ctx context.Context, maxAge *time.Duration) ([]models.BusWithETA, error)
	QueryOne(ctx context.Context, busID string) (*models.BusWithETA, error)
	Routes() models.RoutePoints
}

// BusHandler handles HTTP requests for bus locations
type BusHandler struct {
	tracker BusTracker
	logger  *logrus.Logger
}

// NewBusHandler creates a new handler with the given tracker
func NewBusHandler(tracker BusTracker, logger *logrus.Logger) *BusHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BusHandler{tracker: tracker, logger: logger}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusResponse acknowledges an accepted update
type StatusResponse struct {
	Status string `json:"status"`
}

// RoutesResponse is the JSON response structure for GET /api/public/routes
type RoutesResponse struct {
	Routes models.RoutePoints `json:"routes"`
	Count  int                `json:"count"`
}

// UpdateLocation handles POST /api/driver/update-location
// Expects the API key middleware in front of it
func (h *BusHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	update, err := decodeLocationUpdate(r.Body)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayload) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid payload"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := update.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.tracker.Ingest(r.Context(), update); err != nil {
		h.logger.WithError(err).WithField("bus_id", update.BusID).Error("failed to ingest location")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Database error"})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// GetAllBuses handles GET /api/public/all-buses
// Optional recentSec keeps only buses updated within that many seconds
func (h *BusHandler) GetAllBuses(w http.ResponseWriter, r *http.Request) {
	maxAge, err := parseRecentSec(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "recentSec must be a non-negative integer",
			Details: map[string]interface{}{
				"recentSec": r.URL.Query().Get("recentSec"),
			},
		})
		return
	}

	buses, err := h.tracker.Query(r.Context(), maxAge)
	if err != nil {
		h.logger.WithError(err).Error("failed to query buses")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
		return
	}

	// Drivers report every few seconds; keep client caches shorter than that
	w.Header().Set("Cache-Control", "public, max-age=2, stale-while-revalidate=3")
	w.Header().Set("Vary", "Accept-Encoding")
	writeJSON(w, http.StatusOK, buses)
}

// GetBus handles GET /api/public/bus/{busId}
// Returns the bus regardless of how old its last report is
func (h *BusHandler) GetBus(w http.ResponseWriter, r *http.Request) {
	busID := chi.URLParam(r, "busId")

	if busID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "busId parameter is required"})
		return
	}

	bus, err := h.tracker.QueryOne(r.Context(), busID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{
				Error: "Bus not found",
				Details: map[string]interface{}{
					"busId": busID,
				},
			})
			return
		}

		h.logger.WithError(err).WithField("bus_id", busID).Error("failed to query bus")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "Database error",
			Details: map[string]interface{}{
				"internal": err.Error(),
			},
		})
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=2, stale-while-revalidate=3")
	w.Header().Set("Vary", "Accept-Encoding")
	writeJSON(w, http.StatusOK, bus)
}

// GetRoutes handles GET /api/public/routes
func (h *BusHandler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.tracker.Routes()

	// Route table is static for the process lifetime
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, RoutesResponse{Routes: routes, Count: len(routes)})
}

func decodeLocationUpdate(body io.Reader) (models.LocationUpdate, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxPayloadBytes))
	if err != nil {
		return models.LocationUpdate{}, models.ErrInvalidPayload
	}
	return models.ParseLocationUpdate(data)
}

// parseRecentSec returns nil when the parameter is absent
func parseRecentSec(r *http.Request) (*time.Duration, error) {
	raw := r.URL.Query().Get("recentSec")
	if raw == "" {
		return nil, nil
	}

	sec, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	if sec < 0 {
		return nil, errors.New("recentSec must not be negative")
	}

	maxAge := time.Duration(sec) * time.Second
	return &maxAge, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
