package ports

import (
	"context"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

// AlertSource is the data source a map view engine fetches from.
// Implementations may apply the category loosely; callers re-filter locally.
type AlertSource interface {
	FetchAlerts(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error)
}

// CountSource reports the total number of known alerts. Display only.
type CountSource interface {
	CountAlerts(ctx context.Context) (int, error)
}

// Renderer receives the full set of visible points. A later call supersedes
// an earlier one; no acknowledgement is expected.
type Renderer interface {
	ReplaceVisiblePoints(points []domain.RenderPoint)
}

// TotalCountRenderer is implemented by renderers that also display the
// advisory total alert count.
type TotalCountRenderer interface {
	UpdateTotalCount(total int)
}

// IngestNotice is broadcast after alerts were written or pruned.
type IngestNotice struct {
	Source   string `json:"source"`
	Inserted int    `json:"inserted"`
	Deleted  int64  `json:"deleted"`
}

// EventPublisher publishes alert lifecycle events to a message broker.
type EventPublisher interface {
	PublishAlertsIngested(ctx context.Context, notice IngestNotice) error
	PublishAlertsPruned(ctx context.Context, notice IngestNotice) error
}

// EventSubscriber subscribes to alert lifecycle events.
type EventSubscriber interface {
	SubscribeAlertChanges(ctx context.Context, handler func(ctx context.Context, notice IngestNotice) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
