package geospatial

import (
	"math"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

// MinSpanDegrees is the smallest span Expand will scale. Degenerate boxes
// (a single point, or a line) are widened to this before the factor applies.
const MinSpanDegrees = 0.001

// Center returns the midpoint of a bounding box.
func Center(b domain.Bounds) domain.GeoPoint {
	return domain.GeoPoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// Expand grows b symmetrically around its center by factor (1.0 = no change)
// and clamps the result to valid coordinates, so it always contains b when b
// is valid. A non-positive factor is treated as 1.
func Expand(b domain.Bounds, factor float64) domain.Bounds {
	if factor <= 0 {
		factor = 1
	}
	c := Center(b)

	latSpan := b.MaxLat - b.MinLat
	if latSpan < MinSpanDegrees {
		latSpan = MinSpanDegrees
	}
	lonSpan := b.MaxLon - b.MinLon
	if lonSpan < MinSpanDegrees {
		lonSpan = MinSpanDegrees
	}

	halfLat := latSpan * factor / 2
	halfLon := lonSpan * factor / 2
	return Clamp(domain.Bounds{
		MinLat: c.Lat - halfLat,
		MinLon: c.Lon - halfLon,
		MaxLat: c.Lat + halfLat,
		MaxLon: c.Lon + halfLon,
	})
}

// Clamp limits b to latitudes [-90, 90] and longitudes [-180, 180]. Boxes
// are not wrapped across the antimeridian.
func Clamp(b domain.Bounds) domain.Bounds {
	return domain.Bounds{
		MinLat: math.Max(b.MinLat, -90),
		MinLon: math.Max(b.MinLon, -180),
		MaxLat: math.Min(b.MaxLat, 90),
		MaxLon: math.Min(b.MaxLon, 180),
	}
}

// Contains reports whether outer fully encloses inner (edges inclusive).
func Contains(outer, inner domain.Bounds) bool {
	return outer.MaxLat >= inner.MaxLat &&
		outer.MinLat <= inner.MinLat &&
		outer.MaxLon >= inner.MaxLon &&
		outer.MinLon <= inner.MinLon
}

// PointInBox reports whether p lies inside b using half-open intervals:
// south <= lat < north and west <= lon < east.
func PointInBox(p domain.GeoPoint, b domain.Bounds) bool {
	return p.Lat >= b.MinLat && p.Lat < b.MaxLat &&
		p.Lon >= b.MinLon && p.Lon < b.MaxLon
}
