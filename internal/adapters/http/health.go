package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readyTimeout = 3 * time.Second

// HealthHandler reports liveness, uptime and attached map sessions.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		sessions := 0
		if deps.Sessions != nil {
			sessions = deps.Sessions.Len()
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"uptime":   time.Since(startedAt).Round(time.Second).String(),
			"sessions": sessions,
		})
	}
}

// dependencyCheck probes one backing service. A nil probe means the
// service is not configured.
type dependencyCheck struct {
	name     string
	required bool
	probe    func(ctx context.Context) error
}

var errBrokerDisconnected = errors.New("disconnected")

func readinessChecks(deps *Dependencies) []dependencyCheck {
	checks := []dependencyCheck{
		{name: "database", required: true},
		{name: "nats"},
		{name: "cache"},
	}
	if deps.DB != nil {
		checks[0].probe = deps.DB.Ping
	}
	if deps.Broker != nil {
		checks[1].probe = func(context.Context) error {
			if !deps.Broker.Healthy() {
				return errBrokerDisconnected
			}
			return nil
		}
	}
	if deps.Cache != nil {
		checks[2].probe = deps.Cache.Ping
	}
	return checks
}

// ReadyHandler probes the database, broker and cache. The database is
// required; the broker and cache only fail readiness once configured.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readyTimeout)
		defer cancel()

		results := make(map[string]string)
		ready := true
		for _, chk := range readinessChecks(deps) {
			if chk.probe == nil {
				results[chk.name] = "not configured"
				ready = ready && !chk.required
				continue
			}
			switch err := chk.probe(ctx); {
			case err == nil:
				results[chk.name] = "ok"
			case errors.Is(err, errBrokerDisconnected):
				results[chk.name] = err.Error()
				ready = false
			default:
				results[chk.name] = "error: " + err.Error()
				ready = false
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": results})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": results})
	}
}
