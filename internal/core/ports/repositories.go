package ports

import (
	"context"
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

// AlertRepository persists police alerts.
type AlertRepository interface {
	UpsertBatch(ctx context.Context, alerts []domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	// FindInBounds returns alerts inside q.Bounds published at or after q.Since,
	// newest first, at most q.Limit rows.
	FindInBounds(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error)
	FindNearby(ctx context.Context, lat, lon, radiusMeters float64, since time.Time, limit int) ([]domain.Alert, error)
	ListRecent(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error)
	Count(ctx context.Context) (int, error)
	StatsByState(ctx context.Context, since time.Time) ([]domain.StateStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
