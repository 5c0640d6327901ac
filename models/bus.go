package models

import "time"

// VehicleState is the latest known state of a single bus.
// One entry per VehicleID; every ingest replaces the previous entry wholesale.
type VehicleState struct {
	// Primary identifier
	VehicleID string `db:"bus_id" json:"busId"`

	// Route assignment (may change between updates)
	RouteID string `db:"route_id" json:"routeId"`

	// Position in degrees
	Latitude  float64 `db:"last_lat" json:"lat"`
	Longitude float64 `db:"last_lng" json:"lng"`

	// Motion (nullable - nil means unknown, not zero)
	SpeedKmh   *float64 `db:"speed_kmph" json:"speed"`
	HeadingDeg *float64 `db:"heading_deg" json:"heading"`

	// Set by the store from its clock at ingest time
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers can never alias stored optional fields.
func (s VehicleState) Clone() VehicleState {
	out := s
	if s.SpeedKmh != nil {
		v := *s.SpeedKmh
		out.SpeedKmh = &v
	}
	if s.HeadingDeg != nil {
		v := *s.HeadingDeg
		out.HeadingDeg = &v
	}
	return out
}

// BusWithETA is a VehicleState paired with its display arrival estimate.
// Used by the public list and single-bus endpoints.
type BusWithETA struct {
	VehicleState
	ETA string `json:"eta"`
}
