// Command replay drives a map view engine against the REST API from a
// recorded viewport trace and logs every render set it would draw.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samirrijal/policetracker/internal/adapters/apiclient"
	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/viewsync"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/logging"
	"github.com/samirrijal/policetracker/internal/pkg/validation"
)

const settlePoll = 50 * time.Millisecond

// step is one recorded user interaction. At is the offset from the start of
// the trace.
type step struct {
	At       string  `json:"at" validate:"required"`
	Type     string  `json:"type" validate:"required,oneof=viewport filter refresh"`
	North    float64 `json:"north" validate:"gte=-90,lte=90"`
	South    float64 `json:"south" validate:"gte=-90,lte=90"`
	East     float64 `json:"east" validate:"gte=-180,lte=180"`
	West     float64 `json:"west" validate:"gte=-180,lte=180"`
	Zoom     float64 `json:"zoom" validate:"gte=0,lte=24"`
	Window   string  `json:"window" validate:"omitempty,window"`
	Category *string `json:"category" validate:"omitempty,category"`
}

type logRenderer struct {
	log *slog.Logger
}

func (r logRenderer) ReplaceVisiblePoints(points []domain.RenderPoint) {
	args := []any{"count", len(points)}
	if len(points) > 0 {
		args = append(args, "first", points[0].ID, "first_place", points[0].Place)
	}
	r.log.Info("render", args...)
}

func (r logRenderer) UpdateTotalCount(total int) {
	r.log.Info("total alerts", "total", total)
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: replay <trace.json>")
	}

	cfg, err := config.Load("policetracker-replay")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup("policetracker-replay", cfg.Log.Level, cfg.Log.Format)

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("read trace: %v", err)
	}
	var trace []step
	if err := json.Unmarshal(data, &trace); err != nil {
		log.Fatalf("parse trace: %v", err)
	}
	offsets := make([]time.Duration, len(trace))
	for i, s := range trace {
		if err := validation.Struct(s); err != nil {
			log.Fatalf("trace step %d: %v", i, err)
		}
		if offsets[i], err = time.ParseDuration(s.At); err != nil {
			log.Fatalf("trace step %d: at: %v", i, err)
		}
	}

	client, err := apiclient.New(cfg.Upstream)
	if err != nil {
		log.Fatalf("api client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := logRenderer{log: logger}
	opts := []viewsync.Option{
		viewsync.WithLogger(logger),
		viewsync.WithCountSource(client),
		viewsync.WithDebounce(cfg.Sync.Debounce),
		viewsync.WithFetchLimit(cfg.Sync.FetchLimit),
		viewsync.WithMaxRenderPoints(cfg.Sync.MaxRenderPoints),
		viewsync.WithCoverageCapacity(cfg.Sync.CoverageCapacity),
		viewsync.WithFetchTimeout(cfg.Sync.FetchTimeout),
	}
	engine := viewsync.New(client, renderer, opts...)

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	start := time.Now()
	for i, s := range trace {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(start.Add(offsets[i]))):
		}
		if err := apply(engine, s); err != nil {
			slog.Warn("skipping trace step", "step", i, "error", err)
		}
	}

	waitIdle(ctx, engine, cfg.Sync.Debounce, cfg.Sync.FetchTimeout)
	stop()
	<-done

	snap := engine.Snapshot()
	slog.Info("replay finished",
		"steps", len(trace),
		"fetches", snap.Fetches,
		"failures", snap.Failures,
		"skips", snap.Skips,
		"renders", snap.Renders,
		"cached", snap.Cached,
		"visible", len(snap.Visible),
		"last_error", snap.LastError,
	)
}

// waitIdle lets the last debounce expire, then polls until the engine is
// idle or the fetch timeout has passed.
func waitIdle(ctx context.Context, engine *viewsync.Engine, debounce, fetchTimeout time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(debounce + settlePoll):
	}

	deadline := time.NewTimer(fetchTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(settlePoll)
	defer poll.Stop()
	for engine.Snapshot().State != viewsync.StateIdle {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			slog.Warn("engine still busy at end of replay", "state", engine.Snapshot().State.String())
			return
		case <-poll.C:
		}
	}
}

func apply(engine *viewsync.Engine, s step) error {
	switch s.Type {
	case "viewport":
		engine.ViewportChanged(domain.Bounds{MinLat: s.South, MinLon: s.West, MaxLat: s.North, MaxLon: s.East}, s.Zoom)
	case "filter":
		if s.Window != "" {
			w, err := domain.ParseTimeWindow(s.Window)
			if err != nil {
				return err
			}
			engine.SetTimeWindow(w)
		}
		if s.Category != nil {
			c, err := domain.ParseCategory(*s.Category)
			if err != nil {
				return err
			}
			engine.SetCategory(c)
		}
	case "refresh":
		engine.Refresh()
	default:
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	return nil
}
