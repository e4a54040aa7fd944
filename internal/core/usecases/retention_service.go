package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
)

// RetentionService deletes alerts no map window can display anymore.
type RetentionService struct {
	alerts    ports.AlertRepository
	publisher ports.EventPublisher
}

// NewRetentionService creates a new RetentionService. publisher may be nil.
func NewRetentionService(alerts ports.AlertRepository, publisher ports.EventPublisher) *RetentionService {
	return &RetentionService{alerts: alerts, publisher: publisher}
}

// Prune deletes alerts published more than maxAge ago. maxAge is never
// shorter than the widest time window.
func (s *RetentionService) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if widest := domain.Window30d.Duration(); maxAge < widest {
		maxAge = widest
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	deleted, err := s.alerts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete alerts older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.AlertsPruned.Add(float64(deleted))
	slog.Info("pruned alerts", "deleted", deleted, "cutoff", cutoff)

	if deleted > 0 && s.publisher != nil {
		if err := s.publisher.PublishAlertsPruned(ctx, ports.IngestNotice{Source: "retention", Deleted: deleted}); err != nil {
			slog.Warn("publish alerts pruned failed", "error", err)
		}
	}
	return deleted, nil
}
