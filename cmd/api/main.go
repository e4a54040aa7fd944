package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/policetracker/internal/adapters/http"
	natsadapter "github.com/samirrijal/policetracker/internal/adapters/nats"
	"github.com/samirrijal/policetracker/internal/adapters/postgres"
	"github.com/samirrijal/policetracker/internal/adapters/valkey"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/core/usecases"
	"github.com/samirrijal/policetracker/internal/pkg/config"
	"github.com/samirrijal/policetracker/internal/pkg/logging"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
	"github.com/samirrijal/policetracker/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("policetracker-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup("policetracker-api", cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry init failed", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			_ = shutdownTracer(flushCtx)
		}()
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	deps := &http.Dependencies{
		Sessions: http.NewSessionHub(),
		Sync:     cfg.Sync,
		DB:       db,
	}

	// Cache
	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr, "policetracker:")
	if err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		cache = vc
		deps.Cache = vc
	}

	// NATS
	var publisher ports.EventPublisher
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
		deps.Broker = pub
	}

	deps.Alerts = usecases.NewAlertService(postgres.NewAlertRepo(db), cache, publisher)

	if doc, err := http.LoadAPIDoc(ctx, http.DefaultAPIDocPath); err != nil {
		slog.Warn("api document unavailable, /docs disabled", "error", err)
	} else {
		deps.APIDoc = doc
	}

	// Imports and retention runs refresh every attached map session
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats subscriber unavailable, sessions refresh only on viewport changes", "error", err)
	} else {
		defer sub.Close()
		if err := sub.SubscribeAlertChanges(ctx, deps.Sessions.HandleNotice); err != nil {
			slog.Warn("subscribe alert changes failed", "error", err)
		}
	}

	// Periodic pool gauges
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(15).Seconds().Do(func() {
		metrics.UpdateDBPoolMetrics(db.Stat())
	}); err != nil {
		slog.Warn("schedule pool metrics failed", "error", err)
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "PoliceTracker API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// session engines stop as app shutdown closes their connections
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped", "sessions", deps.Sessions.Len())
}
