package viewsync

import (
	"container/ring"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
)

// DefaultCoverageCapacity is how many fetched areas a view remembers.
const DefaultCoverageCapacity = 12

type coverageEntry struct {
	bounds   domain.Bounds
	window   domain.TimeWindow
	category domain.Category
}

// CoverageTracker remembers the most recently fetched (already expanded)
// areas. It only answers "can this fetch be skipped": a miss costs an extra
// request, a wrong hit would hide data, so anything uncertain is a miss.
type CoverageTracker struct {
	size  int
	ring  *ring.Ring
	count int
}

// NewCoverageTracker holds up to n areas, dropping the oldest on overflow.
func NewCoverageTracker(n int) *CoverageTracker {
	if n <= 0 {
		n = DefaultCoverageCapacity
	}
	return &CoverageTracker{size: n, ring: ring.New(n)}
}

// Record adds an area fetched for window and category.
func (t *CoverageTracker) Record(b domain.Bounds, window domain.TimeWindow, category domain.Category) {
	if t.ring.Value == nil {
		t.count++
	}
	t.ring.Value = coverageEntry{bounds: b, window: window, category: category}
	t.ring = t.ring.Next()
}

// IsCovered reports whether a recorded area contains b and was fetched for
// a window at least as long and a category at least as broad.
func (t *CoverageTracker) IsCovered(b domain.Bounds, window domain.TimeWindow, category domain.Category) bool {
	covered := false
	t.ring.Do(func(v any) {
		if covered {
			return
		}
		e, ok := v.(coverageEntry)
		if !ok {
			return
		}
		covered = e.window.Covers(window) &&
			e.category.Covers(category) &&
			geospatial.Contains(e.bounds, b)
	})
	return covered
}

// Reset forgets every recorded area.
func (t *CoverageTracker) Reset() {
	t.ring = ring.New(t.size)
	t.count = 0
}

// Len returns the number of recorded areas.
func (t *CoverageTracker) Len() int {
	return t.count
}
