package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// RetentionWorkflowID is reused by every trigger so that at most one
// retention run is open at a time.
const RetentionWorkflowID = "alerts-retention"

// RetentionInput is the input for the retention workflow.
type RetentionInput struct {
	MaxAge time.Duration
}

// RetentionResult reports what a retention run deleted.
type RetentionResult struct {
	Deleted int64
}

// RetentionWorkflow deletes alerts older than MaxAge. Sessions are told about
// the deletion through the alerts.pruned broker subject, published by the
// activity.
func RetentionWorkflow(ctx workflow.Context, input RetentionInput) (RetentionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting retention workflow", "maxAge", input.MaxAge.String())

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var result RetentionResult
	if err := workflow.ExecuteActivity(ctx, "PruneAlerts", input.MaxAge).Get(ctx, &result.Deleted); err != nil {
		return RetentionResult{}, err
	}

	logger.Info("Retention finished", "deleted", result.Deleted)
	return result, nil
}
