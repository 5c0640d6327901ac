// Package eta turns a bus position and its route reference point into a
// display arrival estimate.
//
// The estimate is straight-line distance over the sphere divided by the
// reported speed, or by an assumed crawl speed when the bus is idling.
package eta

import (
	"fmt"
	"math"

	"github.com/you/bustracker/models"
)

const (
	// FallbackSpeedKmh is assumed when speed is unknown or the bus is near standstill.
	FallbackSpeedKmh = 18.0

	// Reported speeds at or below this are treated as standstill.
	minMovingSpeedKmh = 1.0
)

// Display strings.
const (
	Unavailable = "N/A"
	Arriving    = "Arriving"
)

// Estimate returns the arrival estimate for state against its route's reference point.
// It never fails: an unknown route or undefined arithmetic yields "N/A".
func Estimate(state models.VehicleState, routes models.RoutePoints) string {
	point, ok := routes.Lookup(state.RouteID)
	if !ok {
		return Unavailable
	}

	distance := HaversineKm(state.Latitude, state.Longitude, point.Latitude, point.Longitude)
	return Format(Minutes(distance, state.SpeedKmh))
}

// EffectiveSpeed returns the speed used for the estimate in km/h.
func EffectiveSpeed(speedKmh *float64) float64 {
	if speedKmh != nil && *speedKmh > minMovingSpeedKmh {
		return *speedKmh
	}
	return FallbackSpeedKmh
}

// Minutes returns the rounded travel time for distanceKm at the effective speed.
func Minutes(distanceKm float64, speedKmh *float64) float64 {
	return math.Round(distanceKm / EffectiveSpeed(speedKmh) * 60)
}

// Format renders whole minutes using the display thresholds:
// <=1 is "Arriving", 2-4 is "N min", 5 and up is "N mins".
func Format(minutes float64) string {
	switch {
	case math.IsNaN(minutes) || math.IsInf(minutes, 0):
		return Unavailable
	case minutes <= 1:
		return Arriving
	case minutes < 5:
		return fmt.Sprintf("%d min", int64(minutes))
	default:
		return fmt.Sprintf("%d mins", int64(minutes))
	}
}
