package viewsync

import (
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
)

// DefaultDebounce coalesces bursts of pan and zoom events into one fetch.
const DefaultDebounce = 250 * time.Millisecond

// State is the coordinator phase.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateFetching:
		return "fetching"
	default:
		return "idle"
	}
}

// Decision is how the coordinator answered a viewport change.
type Decision int

const (
	DecisionDebounce Decision = iota
	DecisionSkipCovered
	DecisionSkipZoomIn
)

func (d Decision) String() string {
	switch d {
	case DecisionSkipCovered:
		return "coverage"
	case DecisionSkipZoomIn:
		return "zoom_in"
	default:
		return "debounce"
	}
}

// FetchPlan describes one fetch issued when the debounce timer expires.
type FetchPlan struct {
	Viewport domain.Viewport
	Expanded domain.Bounds
	Factor   float64
	Window   domain.TimeWindow
	Category domain.Category
	Cutoff   time.Time

	epoch uint64
}

// Coordinator decides when a viewport change needs a fetch. All methods
// must be called from the engine loop; the timer callback only reports
// the generation it was armed with through fire.
type Coordinator struct {
	debounce time.Duration
	coverage *CoverageTracker
	fire     func(gen uint64)

	timer    *time.Timer
	gen      uint64
	epoch    uint64
	armed    bool
	fetching bool
	pending  bool

	lastZoom  float64
	hasZoom   bool
	lastFetch *FetchPlan
}

// NewCoordinator returns an idle coordinator. fire is invoked on the timer
// goroutine when a debounce period elapses.
func NewCoordinator(debounce time.Duration, coverage *CoverageTracker, fire func(gen uint64)) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{debounce: debounce, coverage: coverage, fire: fire}
}

// State returns the current phase.
func (c *Coordinator) State() State {
	switch {
	case c.fetching:
		return StateFetching
	case c.armed:
		return StateDebouncing
	default:
		return StateIdle
	}
}

// Observe handles a viewport change for view. A skip cancels any debounce
// still pending for an earlier viewport.
func (c *Coordinator) Observe(view domain.ViewState) Decision {
	raw := view.Viewport.Bounds
	zoomedIn := c.hasZoom && view.Viewport.Zoom > c.lastZoom
	c.lastZoom, c.hasZoom = view.Viewport.Zoom, true

	if c.coverage.IsCovered(raw, view.Window, view.Category) {
		c.disarm()
		return DecisionSkipCovered
	}

	if zoomedIn && c.lastFetch != nil &&
		c.lastFetch.Window.Covers(view.Window) &&
		c.lastFetch.Category.Covers(view.Category) &&
		geospatial.Contains(c.lastFetch.Expanded, raw) {
		c.disarm()
		return DecisionSkipZoomIn
	}

	c.arm()
	return DecisionDebounce
}

// Expire handles a fired timer. It returns a plan when a fetch should
// start now. A stale generation is ignored; a timer firing while a fetch is
// in flight is remembered and reported by Complete.
func (c *Coordinator) Expire(gen uint64, view domain.ViewState, now time.Time) (FetchPlan, bool) {
	if gen != c.gen || !c.armed {
		return FetchPlan{}, false
	}
	c.armed = false

	if c.fetching {
		c.pending = true
		return FetchPlan{}, false
	}

	factor := ExpansionFactor(view.Viewport.Zoom)
	plan := FetchPlan{
		Viewport: view.Viewport,
		Expanded: geospatial.Expand(view.Viewport.Bounds, factor),
		Factor:   factor,
		Window:   view.Window,
		Category: view.Category,
		Cutoff:   view.Window.Cutoff(now),
		epoch:    c.epoch,
	}
	c.fetching = true
	return plan, true
}

// Complete ends the in-flight fetch. A successful fetch is recorded as
// coverage unless a Reset happened while it was in flight. It reports whether the current viewport has to be evaluated
// again because a debounce expired during the fetch.
func (c *Coordinator) Complete(plan FetchPlan, err error) bool {
	c.fetching = false
	if err == nil && plan.epoch == c.epoch {
		c.coverage.Record(plan.Expanded, plan.Window, plan.Category)
		c.lastFetch = &plan
	}

	again := c.pending
	c.pending = false
	return again
}

// Reset forgets coverage and the zoom-in memory. A fetch still in flight
// will not be recorded when it completes.
func (c *Coordinator) Reset() {
	c.epoch++
	c.coverage.Reset()
	c.lastFetch = nil
	c.hasZoom = false
}

// Stop cancels a pending debounce.
func (c *Coordinator) Stop() {
	c.disarm()
	c.pending = false
}

func (c *Coordinator) arm() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.armed = true
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *Coordinator) disarm() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// a timer that already fired carries the old generation
	c.gen++
	c.armed = false
}
