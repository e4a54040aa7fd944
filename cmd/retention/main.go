package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/policetracker/internal/adapters/nats"
	"github.com/samirrijal/policetracker/internal/adapters/postgres"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/core/usecases"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/logging"
	"github.com/samirrijal/policetracker/internal/workflows"
)

func main() {
	cfg, err := config.Load("policetracker-retention")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup("policetracker-retention", cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, prunes will not be broadcast", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RetentionWorkflow)
	w.RegisterActivity(&workflows.RetentionActivities{
		Retention: usecases.NewRetentionService(postgres.NewAlertRepo(db), publisher),
	})

	// Trigger a run every interval; a run still open is joined, not duplicated
	scheduler := gocron.NewScheduler(time.UTC)
	_, err = scheduler.Every(cfg.Retention.Interval).Do(func() {
		opts := client.StartWorkflowOptions{
			ID:        workflows.RetentionWorkflowID,
			TaskQueue: cfg.Temporal.TaskQueue,
		}
		run, err := c.ExecuteWorkflow(ctx, opts, workflows.RetentionWorkflow, workflows.RetentionInput{MaxAge: cfg.Retention.MaxAge})
		if err != nil {
			slog.Error("start retention workflow failed", "error", err)
			return
		}
		slog.Info("retention workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())
	})
	if err != nil {
		log.Fatalf("schedule retention: %v", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	slog.Info("retention worker started", "task_queue", cfg.Temporal.TaskQueue, "interval", cfg.Retention.Interval.String())
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
