package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/you/bustracker/models"
)

const gtfsRealtimeVersion = "2.0"

// SnapshotSource lists buses with their ETAs
type SnapshotSource interface {
	Query(ctx context.Context, maxAge *time.Duration) ([]models.BusWithETA, error)
}

// GTFSRTHandler serves the bus snapshot as a GTFS-Realtime VehiclePositions feed
type GTFSRTHandler struct {
	source SnapshotSource
	logger *logrus.Logger
	now    func() time.Time
}

// NewGTFSRTHandler creates a new feed handler
func NewGTFSRTHandler(source SnapshotSource, logger *logrus.Logger) *GTFSRTHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GTFSRTHandler{
		source: source,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetVehiclePositions handles GET /api/public/gtfs-rt/vehicle-positions
// Protobuf by default; ?format=json renders the same message as protojson
func (h *GTFSRTHandler) GetVehiclePositions(w http.ResponseWriter, r *http.Request) {
	maxAge, err := parseRecentSec(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "recentSec must be a non-negative integer"})
		return
	}

	buses, err := h.source.Query(r.Context(), maxAge)
	if err != nil {
		h.logger.WithError(err).Error("failed to build GTFS-RT feed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Database error"})
		return
	}

	feed := BuildFeed(buses, h.now())

	if r.URL.Query().Get("format") == "json" {
		body, err := protojson.MarshalOptions{Multiline: true}.Marshal(feed)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode feed"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	body, err := proto.Marshal(feed)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode feed"})
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// BuildFeed converts a bus snapshot into a full-dataset FeedMessage.
// Speed is converted from km/h to the m/s GTFS-RT expects.
func BuildFeed(buses []models.BusWithETA, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
		Entity: make([]*gtfs.FeedEntity, 0, len(buses)),
	}

	for _, b := range buses {
		vp := &gtfs.VehiclePosition{
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(b.VehicleID),
				Label: proto.String(b.VehicleID),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(b.Latitude)),
				Longitude: proto.Float32(float32(b.Longitude)),
			},
			Timestamp: proto.Uint64(uint64(b.UpdatedAt.Unix())),
		}
		if b.RouteID != "" {
			vp.Trip = &gtfs.TripDescriptor{RouteId: proto.String(b.RouteID)}
		}
		if b.SpeedKmh != nil {
			vp.Position.Speed = proto.Float32(float32(*b.SpeedKmh / 3.6))
		}
		if b.HeadingDeg != nil {
			vp.Position.Bearing = proto.Float32(float32(*b.HeadingDeg))
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String(b.VehicleID),
			Vehicle: vp,
		})
	}

	return feed
}
