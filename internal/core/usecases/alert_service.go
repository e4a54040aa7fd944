package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/pkg/geospatial"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
)

const (
	DefaultAlertLimit = 500
	MaxAlertLimit     = 1000

	countCacheKey = "alerts:count"
)

// AlertService handles alert queries and imports. It is the data source
// and count source of map view engines hosted by the API.
type AlertService struct {
	alerts    ports.AlertRepository
	cache     ports.CacheService
	publisher ports.EventPublisher
}

// NewAlertService creates a new AlertService. cache and publisher may be nil.
func NewAlertService(alerts ports.AlertRepository, cache ports.CacheService, publisher ports.EventPublisher) *AlertService {
	return &AlertService{alerts: alerts, cache: cache, publisher: publisher}
}

// FetchAlerts returns alerts inside q.Bounds published at or after q.Since,
// newest first.
func (s *AlertService) FetchAlerts(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
	if err := q.Bounds.Validate(); err != nil {
		return nil, err
	}
	q.Limit = clampLimit(q.Limit, DefaultAlertLimit, MaxAlertLimit)

	// Since is truncated so that sessions opened within the same minute share entries
	q.Since = q.Since.UTC().Truncate(time.Minute)
	cacheKey := fmt.Sprintf("alerts:bbox:%.4f:%.4f:%.4f:%.4f:%d:%s:%d",
		q.Bounds.MinLat, q.Bounds.MinLon, q.Bounds.MaxLat, q.Bounds.MaxLon,
		q.Since.Unix(), q.Category, q.Limit)

	var alerts []domain.Alert
	if s.getCached(ctx, cacheKey, "bbox", &alerts) {
		return alerts, nil
	}

	alerts, err := s.alerts.FindInBounds(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find alerts in bounds: %w", err)
	}

	// 30 seconds; the feed refreshes every few minutes
	s.setCached(ctx, cacheKey, alerts, 30)
	return alerts, nil
}

// CountAlerts returns the total number of stored alerts.
func (s *AlertService) CountAlerts(ctx context.Context) (int, error) {
	var n int
	if s.getCached(ctx, countCacheKey, "count", &n) {
		return n, nil
	}

	n, err := s.alerts.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	s.setCached(ctx, countCacheKey, n, 60)
	return n, nil
}

// FindNearby returns alerts within radiusMeters of a point for a window,
// closest first.
func (s *AlertService) FindNearby(ctx context.Context, lat, lon, radiusMeters float64, window domain.TimeWindow, limit int) ([]domain.Alert, error) {
	if !(domain.GeoPoint{Lat: lat, Lon: lon}).Valid() {
		return nil, fmt.Errorf("invalid coordinates %.5f,%.5f", lat, lon)
	}
	if radiusMeters <= 0 || radiusMeters > 50_000 {
		radiusMeters = 5_000
	}
	limit = clampLimit(limit, 50, 200)

	// circles crossing a pole or the antimeridian are not supported
	center := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := geospatial.BoundsAround(center, radiusMeters).Validate(); err != nil {
		return nil, err
	}

	alerts, err := s.alerts.FindNearby(ctx, lat, lon, radiusMeters, window.Cutoff(time.Now()), limit)
	if err != nil {
		return nil, fmt.Errorf("find nearby alerts: %w", err)
	}

	out := alerts[:0]
	for _, a := range alerts {
		if a.Distance == nil {
			d := geospatial.DistanceMeters(center, a.Location)
			a.Distance = &d
		}
		if *a.Distance <= radiusMeters {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListRecent returns one page of alerts published since the window cutoff
// and the total number of such alerts.
func (s *AlertService) ListRecent(ctx context.Context, window domain.TimeWindow, offset, limit int) ([]domain.Alert, int, error) {
	if offset < 0 {
		offset = 0
	}
	limit = clampLimit(limit, 50, 200)
	return s.alerts.ListRecent(ctx, window.Cutoff(time.Now()), offset, limit)
}

// GetByID returns a single alert.
func (s *AlertService) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrNotFound
	}

	cacheKey := "alerts:id:" + id
	var alert domain.Alert
	if s.getCached(ctx, cacheKey, "id", &alert) {
		return &alert, nil
	}

	a, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.setCached(ctx, cacheKey, a, 600)
	return a, nil
}

// StatsByState aggregates alerts per state for a window.
func (s *AlertService) StatsByState(ctx context.Context, window domain.TimeWindow) ([]domain.StateStats, error) {
	cacheKey := "alerts:stats:states:" + string(window)
	var stats []domain.StateStats
	if s.getCached(ctx, cacheKey, "stats", &stats) {
		return stats, nil
	}

	stats, err := s.alerts.StatsByState(ctx, window.Cutoff(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("stats by state: %w", err)
	}
	s.setCached(ctx, cacheKey, stats, 120)
	return stats, nil
}

// Import stores feed alerts and notifies running map sessions. Only police
// alerts with an id and usable coordinates are kept; the state is derived
// from the "City, ST" label when the feed does not carry one.
func (s *AlertService) Import(ctx context.Context, source string, alerts []domain.Alert) (int, error) {
	now := time.Now().UTC()
	batch := make([]domain.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Type != "" && !strings.EqualFold(a.Type, domain.AlertTypePolice) {
			continue
		}
		if !a.Valid() {
			continue
		}
		a.Type = domain.AlertTypePolice
		if a.State == "" {
			a.State = domain.StateFromCity(a.City)
		}
		if a.PublishedAt.IsZero() {
			a.PublishedAt = now
		}
		a.CreatedAt = now
		batch = append(batch, a)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := s.alerts.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert alerts: %w", err)
	}
	metrics.AlertsImported.WithLabelValues(source).Add(float64(len(batch)))

	if s.cache != nil {
		_ = s.cache.Delete(ctx, countCacheKey)
	}
	if s.publisher != nil {
		notice := ports.IngestNotice{Source: source, Inserted: len(batch)}
		if err := s.publisher.PublishAlertsIngested(ctx, notice); err != nil {
			slog.Warn("publish alerts ingested failed", "error", err)
		}
	}
	return len(batch), nil
}

func (s *AlertService) getCached(ctx context.Context, key, op string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues(op).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(op).Inc()
	return true
}

func (s *AlertService) setCached(ctx context.Context, key string, v any, ttlSeconds int) {
	if s.cache == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_ = s.cache.Set(ctx, key, data, ttlSeconds)
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
