package viewsync

import (
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
)

// DefaultMaxRenderPoints caps how many markers a view receives.
const DefaultMaxRenderPoints = 1000

// BuildRenderSet selects the cached alerts to display: inside expanded,
// published at or after cutoff and matching category. At most maxCount
// alerts are returned, taken in cache iteration order.
func BuildRenderSet(cache *PointCache, expanded domain.Bounds, cutoff time.Time, category domain.Category, maxCount int) []domain.Alert {
	if maxCount <= 0 {
		return nil
	}

	out := make([]domain.Alert, 0, min(maxCount, cache.Len()))
	cache.Each(func(a domain.Alert) bool {
		if a.PublishedAt.Before(cutoff) || !category.Matches(a) || !geospatial.PointInBox(a.Location, expanded) {
			return true
		}
		out = append(out, a)
		return len(out) < maxCount
	})
	return out
}

// ToRenderPoints converts alerts to renderer markers.
func ToRenderPoints(alerts []domain.Alert) []domain.RenderPoint {
	points := make([]domain.RenderPoint, len(alerts))
	for i, a := range alerts {
		points[i] = domain.NewRenderPoint(a)
	}
	return points
}
