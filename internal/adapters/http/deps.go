package http

import (
	"context"

	"github.com/samirrijal/policetracker/internal/core/usecases"
	"github.com/samirrijal/policetracker/internal/pkg/config"
)

// Pinger is a backing service the readiness probe can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Broker reports message broker connectivity.
type Broker interface {
	Healthy() bool
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Alerts   *usecases.AlertService
	Sessions *SessionHub
	Sync     config.SyncConfig
	DB       Pinger
	Cache    Pinger
	Broker   Broker
	APIDoc   *APIDoc // served under /docs when set
}
