package models

// RoutePoint is the fixed reference location used as a route's destination for ETA purposes.
type RoutePoint struct {
	Latitude  float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// RoutePoints maps route_id to its reference point.
// Read-only after startup, so it is shared without locking.
type RoutePoints map[string]RoutePoint

// Lookup returns the reference point for a route, if one is configured.
func (rp RoutePoints) Lookup(routeID string) (RoutePoint, bool) {
	if rp == nil {
		return RoutePoint{}, false
	}
	p, ok := rp[routeID]
	return p, ok
}

// Copy returns an independent copy of the table.
func (rp RoutePoints) Copy() RoutePoints {
	out := make(RoutePoints, len(rp))
	for k, v := range rp {
		out[k] = v
	}
	return out
}
