package workflows

import (
	"context"
	"fmt"
	"time"
)

// Pruner deletes alerts past their retention age.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

// RetentionActivities holds the activity implementations for the retention
// workflow.
type RetentionActivities struct {
	Retention Pruner
}

// PruneAlerts deletes alerts older than maxAge and returns how many went.
func (a *RetentionActivities) PruneAlerts(ctx context.Context, maxAge time.Duration) (int64, error) {
	deleted, err := a.Retention.Prune(ctx, maxAge)
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return deleted, nil
}
