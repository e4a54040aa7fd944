package geospatial

import (
	"math"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

const (
	earthRadiusMeters = 6_371_000.0
	metersPerDegree   = 111_320.0
)

// DistanceMeters is the great-circle (haversine) distance between a and b.
func DistanceMeters(a, b domain.GeoPoint) float64 {
	phi1, phi2 := radians(a.Lat), radians(b.Lat)
	sinLat := math.Sin(radians(b.Lat-a.Lat) / 2)
	sinLon := math.Sin(radians(b.Lon-a.Lon) / 2)

	h := sinLat*sinLat + math.Cos(phi1)*math.Cos(phi2)*sinLon*sinLon
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DiagonalMeters returns the great-circle length of the box diagonal.
func DiagonalMeters(b domain.Bounds) float64 {
	return DistanceMeters(
		domain.GeoPoint{Lat: b.MinLat, Lon: b.MinLon},
		domain.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon},
	)
}

// BoundsAround returns the box of radiusMeters around p. Longitude spans
// widen with latitude; near a pole the box may leave the valid range and
// Validate rejects it.
func BoundsAround(p domain.GeoPoint, radiusMeters float64) domain.Bounds {
	dLat, dLon := degreeDeltas(p.Lat, radiusMeters)
	return domain.Bounds{
		MinLat: p.Lat - dLat,
		MinLon: p.Lon - dLon,
		MaxLat: p.Lat + dLat,
		MaxLon: p.Lon + dLon,
	}
}

// degreeDeltas converts a ground distance at latitude lat into degrees.
func degreeDeltas(lat, meters float64) (dLat, dLon float64) {
	dLat = meters / metersPerDegree
	cos := math.Cos(radians(lat))
	if cos < 1e-9 {
		return dLat, 360
	}
	return dLat, meters / (metersPerDegree * cos)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
