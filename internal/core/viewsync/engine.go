package viewsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
)

const (
	DefaultFetchLimit   = 500
	DefaultFetchTimeout = 15 * time.Second

	eventBuffer = 64
)

// ErrAlreadyRunning is returned by Run when the engine loop was started before.
var ErrAlreadyRunning = errors.New("viewsync: engine already running")

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for fetch failures and skips.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCountSource enables the advisory total count shown by renderers
// implementing ports.TotalCountRenderer.
func WithCountSource(cs ports.CountSource) Option {
	return func(e *Engine) { e.counts = cs }
}

func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

func WithFetchLimit(n int) Option {
	return func(e *Engine) { e.fetchLimit = n }
}

func WithMaxRenderPoints(n int) Option {
	return func(e *Engine) { e.maxRender = n }
}

func WithCoverageCapacity(n int) Option {
	return func(e *Engine) { e.coverageCap = n }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.fetchTimeout = d }
}

// WithClock replaces time.Now for cutoff computation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFilters sets the window and category a view starts with.
func WithFilters(w domain.TimeWindow, c domain.Category) Option {
	return func(e *Engine) {
		e.view.Window = w
		e.view.Category = c
	}
}

// Snapshot is a read-only copy of engine state taken after the last
// processed event.
type Snapshot struct {
	State      State
	View       domain.ViewState
	Expanded   domain.Bounds
	Cached     int
	Coverage   int
	Visible    []domain.RenderPoint
	Fetches    int
	Failures   int
	Skips      int
	Renders    int
	TotalCount int
	LastError  string
}

// Engine keeps one map view in sync with an alert source. Exported
// methods may be called from any goroutine; all state is owned by the
// goroutine running Run.
type Engine struct {
	source   ports.AlertSource
	counts   ports.CountSource
	renderer ports.Renderer
	log      *slog.Logger
	now      func() time.Time

	debounce     time.Duration
	fetchLimit   int
	maxRender    int
	coverageCap  int
	fetchTimeout time.Duration

	events  chan any
	done    chan struct{}
	started atomic.Bool
	snap    atomic.Pointer[Snapshot]

	// loop-owned
	view        domain.ViewState
	hasViewport bool
	expanded    domain.Bounds
	hasExpanded bool
	cache       *PointCache
	coord       *Coordinator
	visible     []domain.RenderPoint
	fetches     int
	failures    int
	skips       int
	renders     int
	total       int
	lastErr     string
}

type viewportEvent struct{ vp domain.Viewport }
type windowEvent struct{ w domain.TimeWindow }
type categoryEvent struct{ c domain.Category }
type refreshEvent struct{}
type timerEvent struct{ gen uint64 }
type countEvent struct{ total int }

type fetchEvent struct {
	plan   FetchPlan
	alerts []domain.Alert
	err    error
	took   time.Duration
}

// New builds an engine for one map view. Call Run to start it.
func New(source ports.AlertSource, renderer ports.Renderer, opts ...Option) *Engine {
	e := &Engine{
		source:       source,
		renderer:     renderer,
		log:          slog.Default(),
		now:          time.Now,
		debounce:     DefaultDebounce,
		fetchLimit:   DefaultFetchLimit,
		maxRender:    DefaultMaxRenderPoints,
		coverageCap:  DefaultCoverageCapacity,
		fetchTimeout: DefaultFetchTimeout,
		events:       make(chan any, eventBuffer),
		done:         make(chan struct{}),
		view:         domain.ViewState{Window: domain.DefaultWindow, Category: domain.CategoryAll},
		cache:        NewPointCache(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.coord = NewCoordinator(e.debounce, NewCoverageTracker(e.coverageCap), func(gen uint64) {
		e.post(timerEvent{gen: gen})
	})
	e.publish()
	return e
}

// ViewportChanged reports the bounds and zoom now visible.
func (e *Engine) ViewportChanged(b domain.Bounds, zoom float64) {
	e.post(viewportEvent{vp: domain.Viewport{Bounds: b, Zoom: zoom}})
}

// SetTimeWindow changes the recency window. Coverage is window scoped and
// is reset.
func (e *Engine) SetTimeWindow(w domain.TimeWindow) {
	e.post(windowEvent{w: w})
}

// SetCategory changes the category filter.
func (e *Engine) SetCategory(c domain.Category) {
	e.post(categoryEvent{c: c})
}

// Refresh forgets coverage so the current viewport is fetched again.
func (e *Engine) Refresh() {
	e.post(refreshEvent{})
}

// Snapshot returns the state published after the last processed event.
func (e *Engine) Snapshot() Snapshot {
	return *e.snap.Load()
}

// Run processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	defer e.coord.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handle(ctx, ev)
			e.publish()
		}
	}
}

func (e *Engine) post(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

func (e *Engine) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case viewportEvent:
		if err := ev.vp.Bounds.Validate(); err != nil {
			e.log.Warn("ignoring viewport", "error", err)
			return
		}
		e.view.Viewport = ev.vp
		e.hasViewport = true
		e.evaluate()

	case windowEvent:
		if ev.w == e.view.Window {
			return
		}
		e.view.Window = ev.w
		e.coord.Reset()
		e.render()
		e.evaluate()

	case categoryEvent:
		if ev.c == e.view.Category {
			return
		}
		e.view.Category = ev.c
		e.render()
		e.evaluate()

	case refreshEvent:
		e.coord.Reset()
		e.evaluate()

	case timerEvent:
		plan, ok := e.coord.Expire(ev.gen, e.view, e.now())
		if ok {
			e.startFetch(ctx, plan)
		}

	case fetchEvent:
		e.finishFetch(ctx, ev)

	case countEvent:
		e.total = ev.total
		if tr, ok := e.renderer.(ports.TotalCountRenderer); ok {
			tr.UpdateTotalCount(ev.total)
		}
	}
}

func (e *Engine) evaluate() {
	if !e.hasViewport {
		return
	}
	d := e.coord.Observe(e.view)
	if d != DecisionDebounce {
		e.skips++
		metrics.SyncSkips.WithLabelValues(d.String()).Inc()
		e.log.Debug("fetch skipped", "reason", d.String(), "zoom", e.view.Viewport.Zoom)
	}
}

func (e *Engine) startFetch(ctx context.Context, plan FetchPlan) {
	e.fetches++
	q := domain.AlertQuery{
		Bounds:   plan.Expanded,
		Since:    plan.Cutoff,
		Category: plan.Category,
		Limit:    e.fetchLimit,
	}
	go func() {
		start := time.Now()
		alerts, err := e.fetch(ctx, q)
		e.post(fetchEvent{plan: plan, alerts: alerts, err: err, took: time.Since(start)})
	}()
}

// fetch calls the source under the fetch timeout. It always returns once
// the timeout elapses, even if the source ignores its context.
func (e *Engine) fetch(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	ctx, span := otel.Tracer("policetracker/viewsync").Start(ctx, "viewsync.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("bounds.min_lat", q.Bounds.MinLat),
		attribute.Float64("bounds.min_lon", q.Bounds.MinLon),
		attribute.Float64("bounds.max_lat", q.Bounds.MaxLat),
		attribute.Float64("bounds.max_lon", q.Bounds.MaxLon),
		attribute.Float64("bounds.diagonal_m", geospatial.DiagonalMeters(q.Bounds)),
		attribute.String("category", string(q.Category)),
		attribute.Int("limit", q.Limit),
	)

	type result struct {
		alerts []domain.Alert
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("alert source panicked: %v", r)}
			}
		}()
		alerts, err := e.source.FetchAlerts(ctx, q)
		ch <- result{alerts: alerts, err: err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = fmt.Errorf("fetch alerts: %w", ctx.Err())
	}
	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		return nil, r.err
	}
	span.SetAttributes(attribute.Int("alerts", len(r.alerts)))
	return r.alerts, nil
}

func (e *Engine) finishFetch(ctx context.Context, ev fetchEvent) {
	again := e.coord.Complete(ev.plan, ev.err)
	metrics.SyncFetchDuration.Observe(ev.took.Seconds())

	if ev.err != nil {
		e.failures++
		e.lastErr = ev.err.Error()
		metrics.SyncFetches.WithLabelValues("error").Inc()
		e.log.Warn("alert fetch failed", "error", ev.err, "took", ev.took)
	} else {
		metrics.SyncFetches.WithLabelValues("success").Inc()
		stats := e.cache.Merge(ev.alerts, ev.plan.Expanded, ev.plan.Cutoff)
		metrics.SyncCacheEvictions.Add(float64(stats.Evicted))
		metrics.SyncMalformedDropped.Add(float64(stats.Malformed))
		if stats.Malformed > 0 {
			e.log.Debug("dropped malformed alerts", "count", stats.Malformed)
		}

		e.expanded = ev.plan.Expanded
		e.hasExpanded = true
		e.render()
		e.requestCount(ctx)
	}

	if again {
		e.evaluate()
	}
}

// render rebuilds the visible set from the cache with the current filters
// and pushes it.
func (e *Engine) render() {
	if !e.hasExpanded {
		return
	}
	alerts := BuildRenderSet(e.cache, e.expanded, e.view.Window.Cutoff(e.now()), e.view.Category, e.maxRender)
	e.visible = ToRenderPoints(alerts)
	e.renders++
	metrics.SyncRenderSetSize.Observe(float64(len(e.visible)))
	e.renderer.ReplaceVisiblePoints(e.visible)
}

func (e *Engine) requestCount(ctx context.Context) {
	if e.counts == nil {
		return
	}
	if _, ok := e.renderer.(ports.TotalCountRenderer); !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
		total, err := e.counts.CountAlerts(ctx)
		if err != nil {
			e.log.Warn("alert count failed", "error", err)
			return
		}
		e.post(countEvent{total: total})
	}()
}

func (e *Engine) publish() {
	e.snap.Store(&Snapshot{
		State:      e.coord.State(),
		View:       e.view,
		Expanded:   e.expanded,
		Cached:     e.cache.Len(),
		Coverage:   e.coord.coverage.Len(),
		Visible:    e.visible,
		Fetches:    e.fetches,
		Failures:   e.failures,
		Skips:      e.skips,
		Renders:    e.renders,
		TotalCount: e.total,
		LastError:  e.lastErr,
	})
}
