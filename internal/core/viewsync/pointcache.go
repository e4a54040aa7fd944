package viewsync

import (
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
)

// MergeStats summarises one Merge call.
type MergeStats struct {
	Evicted    int // cached entries removed as stale or out of area
	Inserted   int // new identities
	Replaced   int // identities overwritten by a newer fetch
	Malformed  int // incoming records without an id or usable coordinates
	OutOfScope int // incoming records outside the area or before the cutoff
}

// PointCache maps alert identity to the latest fetched record.
// It is not safe for concurrent use; the engine loop is its only mutator.
type PointCache struct {
	entries map[string]domain.Alert
	order   []string // insertion order, stable for a given cache state
}

// NewPointCache returns an empty cache.
func NewPointCache() *PointCache {
	return &PointCache{entries: make(map[string]domain.Alert)}
}

// Len returns the number of cached alerts.
func (c *PointCache) Len() int {
	return len(c.entries)
}

// Get returns the cached alert for id.
func (c *PointCache) Get(id string) (domain.Alert, bool) {
	a, ok := c.entries[id]
	return a, ok
}

// Each calls fn for every cached alert in insertion order until fn
// returns false.
func (c *PointCache) Each(fn func(domain.Alert) bool) {
	for _, id := range c.order {
		if !fn(c.entries[id]) {
			return
		}
	}
}

// Merge applies a fetch result. Entries published before cutoff or lying
// outside expanded are evicted first, even if an earlier fetch for a
// different area brought them in. Incoming records are then upserted by
// identity, last write wins.
func (c *PointCache) Merge(points []domain.Alert, expanded domain.Bounds, cutoff time.Time) MergeStats {
	var stats MergeStats

	kept := c.order[:0]
	for _, id := range c.order {
		a := c.entries[id]
		if !inScope(a, expanded, cutoff) {
			delete(c.entries, id)
			stats.Evicted++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept

	for _, p := range points {
		if !p.Valid() {
			stats.Malformed++
			continue
		}
		if !inScope(p, expanded, cutoff) {
			stats.OutOfScope++
			continue
		}
		if _, exists := c.entries[p.ID]; exists {
			stats.Replaced++
		} else {
			c.order = append(c.order, p.ID)
			stats.Inserted++
		}
		c.entries[p.ID] = p
	}

	return stats
}

// Clear drops every entry.
func (c *PointCache) Clear() {
	c.entries = make(map[string]domain.Alert)
	c.order = nil
}

func inScope(a domain.Alert, b domain.Bounds, cutoff time.Time) bool {
	return !a.PublishedAt.Before(cutoff) && geospatial.PointInBox(a.Location, b)
}
