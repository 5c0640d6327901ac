package eta

import "math"

const earthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance between two points in kilometers.
// Sphere approximation; do not rely on sub-kilometer accuracy.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
