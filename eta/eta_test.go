package eta

import (
	"math"
	"testing"

	"github.com/you/bustracker/models"
)

func speed(v float64) *float64 { return &v }

// kmNorth returns the latitude offset in degrees for d km along a meridian.
func kmNorth(d float64) float64 {
	return d / earthRadiusKm * 180 / math.Pi
}

var testRoutes = models.RoutePoints{
	"22": {Latitude: 19.08, Longitude: 72.87},
	"R0": {Latitude: 0, Longitude: 0},
}

func TestHaversineKm(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 19.08, 72.87, 19.08, 72.87, 0, 1e-12},
		{"five km along meridian", 0, 0, kmNorth(5), 0, 5, 1e-9},
		{"mumbai short hop", 19.0812, 72.8691, 19.08, 72.87, 0.16, 0.01},
		{"quarter meridian", 0, 0, 90, 0, math.Pi / 2 * earthRadiusKm, 1e-6},
		{"antipodes", 0, 0, 0, 180, math.Pi * earthRadiusKm, 1e-6},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := HaversineKm(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Errorf("HaversineKm() = %f, expected %f (±%g)", got, tc.want, tc.tolerance)
			}
		})
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := HaversineKm(19.0896, 72.8656, 19.0722, 72.8801)
	b := HaversineKm(19.0722, 72.8801, 19.0896, 72.8656)
	if a != b {
		t.Errorf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestEffectiveSpeed(t *testing.T) {
	tests := []struct {
		name  string
		speed *float64
		want  float64
	}{
		{"unknown", nil, FallbackSpeedKmh},
		{"stopped", speed(0), FallbackSpeedKmh},
		{"exactly one", speed(1), FallbackSpeedKmh},
		{"crawling", speed(1.01), 1.01},
		{"cruising", speed(40), 40},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EffectiveSpeed(tc.speed); got != tc.want {
				t.Errorf("EffectiveSpeed() = %f, expected %f", got, tc.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{math.NaN(), "N/A"},
		{math.Inf(1), "N/A"},
		{math.Inf(-1), "N/A"},
		{0, "Arriving"},
		{1, "Arriving"},
		{2, "2 min"},
		{4, "4 min"},
		{5, "5 mins"},
		{17, "17 mins"},
		{125, "125 mins"},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := Format(tc.minutes); got != tc.want {
				t.Errorf("Format(%v) = %q, expected %q", tc.minutes, got, tc.want)
			}
		})
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name  string
		state models.VehicleState
		want  string
	}{
		{
			name:  "near route point at speed",
			state: models.VehicleState{VehicleID: "22", RouteID: "22", Latitude: 19.0812, Longitude: 72.8691, SpeedKmh: speed(24)},
			want:  "Arriving",
		},
		{
			name:  "stationary uses fallback speed",
			state: models.VehicleState{VehicleID: "s", RouteID: "R0", Latitude: kmNorth(5), Longitude: 0, SpeedKmh: speed(0)},
			want:  "17 mins",
		},
		{
			name:  "unknown speed uses fallback speed",
			state: models.VehicleState{VehicleID: "s", RouteID: "R0", Latitude: kmNorth(5), Longitude: 0},
			want:  "17 mins",
		},
		{
			name:  "moving at 60 over 3 km",
			state: models.VehicleState{VehicleID: "m", RouteID: "R0", Latitude: kmNorth(3), Longitude: 0, SpeedKmh: speed(60)},
			want:  "3 min",
		},
		{
			name:  "unknown route",
			state: models.VehicleState{VehicleID: "x", RouteID: "nope", Latitude: 19.08, Longitude: 72.87},
			want:  "N/A",
		},
		{
			name:  "empty route",
			state: models.VehicleState{VehicleID: "x", Latitude: 19.08, Longitude: 72.87},
			want:  "N/A",
		},
		{
			name:  "non-finite position",
			state: models.VehicleState{VehicleID: "x", RouteID: "R0", Latitude: math.NaN(), Longitude: 0},
			want:  "N/A",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Estimate(tc.state, testRoutes); got != tc.want {
				t.Errorf("Estimate() = %q, expected %q", got, tc.want)
			}
		})
	}
}

func TestEstimateNilRoutes(t *testing.T) {
	s := models.VehicleState{VehicleID: "22", RouteID: "22", Latitude: 19.0812, Longitude: 72.8691}
	if got := Estimate(s, nil); got != Unavailable {
		t.Errorf("Estimate with nil table = %q, expected %q", got, Unavailable)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	s := models.VehicleState{VehicleID: "703", RouteID: "22", Latitude: 19.0896, Longitude: 72.8656, SpeedKmh: speed(12)}
	first := Estimate(s, testRoutes)
	for i := 0; i < 50; i++ {
		if got := Estimate(s, testRoutes); got != first {
			t.Fatalf("iteration %d: Estimate() = %q, expected %q", i, got, first)
		}
	}
}
