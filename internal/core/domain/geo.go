package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point has finite, in-range coordinates.
// The zero point (0, 0) is what a feed row with missing coordinates decodes
// to, so it is treated as absent.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return p.Lat != 0 || p.Lon != 0
}

// Bounds represents a geographic bounding box.
// MaxLat is the north edge, MinLat the south edge, MaxLon the east edge and
// MinLon the west edge. Boxes crossing the antimeridian are not supported.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Validate checks north >= south, east >= west and that every edge is a
// finite coordinate in range.
func (b Bounds) Validate() error {
	for _, v := range []float64{b.MinLat, b.MinLon, b.MaxLat, b.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBounds
		}
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
		return ErrInvalidBounds
	}
	if b.MaxLat < b.MinLat || b.MaxLon < b.MinLon {
		return ErrInvalidBounds
	}
	return nil
}
