package geo

import "math"

const earthRadiusM = 6371000.0

// Located is anything with a coordinate. ok is false when the position is
// unknown; such items never fall inside a radius.
type Located interface {
	Coordinates() (lat, lon float64, ok bool)
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// WithinRadius keeps the items at most radiusM meters from (lat, lon),
// preserving input order.
func WithinRadius[T Located](items []T, lat, lon, radiusM float64) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ilat, ilon, ok := it.Coordinates()
		if !ok {
			continue
		}
		if Haversine(lat, lon, ilat, ilon) <= radiusM {
			out = append(out, it)
		}
	}
	return out
}

// ValidCoordinates reports whether lat/lon are finite and in range.
func ValidCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
