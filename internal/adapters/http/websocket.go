package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/viewsync"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/validation"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// clientMessage is sent by the map client. Examples:
//
//	{"type":"viewport","bounds":{"north":29.8,"south":29.7,"east":-95.3,"west":-95.4},"zoom":13}
//	{"type":"filter","window":"7d","category":"POLICE_HIDING"}
//	{"type":"refresh"}
//
// A filter message only changes the fields it carries; "category":"" selects
// every category.
type clientMessage struct {
	Type     string         `json:"type" validate:"required,oneof=viewport filter refresh"`
	Bounds   *boundsMessage `json:"bounds" validate:"required_if=Type viewport"`
	Zoom     float64        `json:"zoom" validate:"gte=0,lte=24"`
	Window   string         `json:"window" validate:"omitempty,window"`
	Category *string        `json:"category" validate:"omitempty,category"`
}

type boundsMessage struct {
	North float64 `json:"north" validate:"gte=-90,lte=90"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
}

func (b boundsMessage) toDomain() domain.Bounds {
	return domain.Bounds{MinLat: b.South, MinLon: b.West, MaxLat: b.North, MaxLon: b.East}
}

type sessionMessage struct {
	Type     string            `json:"type"`
	Session  string            `json:"session"`
	Window   domain.TimeWindow `json:"window"`
	Category domain.Category   `json:"category"`
}

type pointsMessage struct {
	Type   string               `json:"type"`
	Count  int                  `json:"count"`
	Points []domain.RenderPoint `json:"points"`
}

type totalMessage struct {
	Type  string `json:"type"`
	Total int    `json:"total"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// wsRenderer pushes render sets and counts to one connection.
type wsRenderer struct {
	write func(v any) error
	log   *slog.Logger
}

func (r *wsRenderer) ReplaceVisiblePoints(points []domain.RenderPoint) {
	if points == nil {
		points = []domain.RenderPoint{}
	}
	if err := r.write(pointsMessage{Type: "points", Count: len(points), Points: points}); err != nil {
		r.log.Debug("ws push failed", "error", err)
	}
}

func (r *wsRenderer) UpdateTotalCount(total int) {
	if err := r.write(totalMessage{Type: "total", Total: total}); err != nil {
		r.log.Debug("ws push failed", "error", err)
	}
}

// syncOptions turns the sync configuration into engine options. Zero values
// keep the engine defaults.
func syncOptions(cfg config.SyncConfig) []viewsync.Option {
	var opts []viewsync.Option
	if cfg.Debounce > 0 {
		opts = append(opts, viewsync.WithDebounce(cfg.Debounce))
	}
	if cfg.FetchLimit > 0 {
		opts = append(opts, viewsync.WithFetchLimit(cfg.FetchLimit))
	}
	if cfg.MaxRenderPoints > 0 {
		opts = append(opts, viewsync.WithMaxRenderPoints(cfg.MaxRenderPoints))
	}
	if cfg.CoverageCapacity > 0 {
		opts = append(opts, viewsync.WithCoverageCapacity(cfg.CoverageCapacity))
	}
	if cfg.FetchTimeout > 0 {
		opts = append(opts, viewsync.WithFetchTimeout(cfg.FetchTimeout))
	}
	return opts
}

// WebSocketHandler returns a handler that runs one map view engine per
// connection. The initial filters may be given as ?window=&category= query
// parameters.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := uuid.NewString()
		log := slog.Default().With("session", id, "remote", c.RemoteAddr().String())

		var mu sync.Mutex
		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			_ = c.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			return c.WriteMessage(websocket.TextMessage, data)
		}

		window, err := domain.ParseTimeWindow(c.Query("window"))
		if err != nil {
			_ = writeJSON(errorMessage{Type: "error", Error: err.Error()})
			return
		}
		category, err := domain.ParseCategory(c.Query("category"))
		if err != nil {
			_ = writeJSON(errorMessage{Type: "error", Error: err.Error()})
			return
		}

		opts := append(syncOptions(deps.Sync),
			viewsync.WithLogger(log),
			viewsync.WithCountSource(deps.Alerts),
			viewsync.WithFilters(window, category),
		)
		engine := viewsync.New(deps.Alerts, &wsRenderer{write: writeJSON, log: log}, opts...)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("map session stopped", "error", err)
			}
		}()

		if deps.Sessions != nil {
			deps.Sessions.add(id, engine)
			defer deps.Sessions.remove(id)
		}

		log.Info("map session opened", "window", window, "category", category)
		if err := writeJSON(sessionMessage{Type: "session", Session: id, Window: window, Category: category}); err != nil {
			return
		}

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
					mu.Unlock()
					if err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m clientMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(errorMessage{Type: "error", Error: "invalid JSON"})
				continue
			}
			if err := validation.Struct(m); err != nil {
				_ = writeJSON(errorMessage{Type: "error", Error: err.Error()})
				continue
			}

			switch m.Type {
			case "viewport":
				b := m.Bounds.toDomain()
				if err := b.Validate(); err != nil {
					_ = writeJSON(errorMessage{Type: "error", Error: err.Error()})
					continue
				}
				engine.ViewportChanged(b, m.Zoom)
			case "filter":
				if m.Window != "" {
					w, _ := domain.ParseTimeWindow(m.Window)
					engine.SetTimeWindow(w)
				}
				if m.Category != nil {
					cat, _ := domain.ParseCategory(*m.Category)
					engine.SetCategory(cat)
				}
			case "refresh":
				engine.Refresh()
			}
		}

		snap := engine.Snapshot()
		log.Info("map session closed",
			"fetches", snap.Fetches,
			"failures", snap.Failures,
			"skips", snap.Skips,
			"cached", snap.Cached,
		)
	}
}
