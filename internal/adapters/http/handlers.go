package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/pkg/validation"
)

// alertsParams are the query parameters of the bounding box endpoint.
// since takes precedence over window.
type alertsParams struct {
	North    *float64 `query:"north" validate:"required,gte=-90,lte=90"`
	South    *float64 `query:"south" validate:"required,gte=-90,lte=90"`
	East     *float64 `query:"east" validate:"required,gte=-180,lte=180"`
	West     *float64 `query:"west" validate:"required,gte=-180,lte=180"`
	Window   string   `query:"window" validate:"omitempty,window"`
	Since    string   `query:"since" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Category string   `query:"category" validate:"omitempty,category"`
	Limit    int      `query:"limit" validate:"gte=0,lte=1000"`
}

type nearbyParams struct {
	Lat    *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon    *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	Radius float64  `query:"radius" validate:"gte=0,lte=50000"`
	Window string   `query:"window" validate:"omitempty,window"`
	Limit  int      `query:"limit" validate:"gte=0,lte=200"`
}

type recentParams struct {
	Window string `query:"window" validate:"omitempty,window"`
	Offset int    `query:"offset" validate:"gte=0"`
	Limit  int    `query:"limit" validate:"gte=0,lte=200"`
}

// parseQuery decodes and validates query parameters into dst.
func parseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return err
	}
	return validation.Struct(dst)
}

func parseAlertQuery(c *fiber.Ctx, now time.Time) (domain.AlertQuery, error) {
	var p alertsParams
	if err := parseQuery(c, &p); err != nil {
		return domain.AlertQuery{}, err
	}

	q := domain.AlertQuery{
		Bounds: domain.Bounds{MinLat: *p.South, MinLon: *p.West, MaxLat: *p.North, MaxLon: *p.East},
		Limit:  p.Limit,
	}
	if err := q.Bounds.Validate(); err != nil {
		return q, err
	}

	if p.Since != "" {
		since, err := time.Parse(time.RFC3339, p.Since)
		if err != nil {
			return q, err
		}
		q.Since = since.UTC()
	} else {
		window, _ := domain.ParseTimeWindow(p.Window)
		q.Since = window.Cutoff(now)
	}
	q.Category, _ = domain.ParseCategory(p.Category)
	return q, nil
}

// ListAlertsHandler returns alerts inside a bounding box, newest first.
// It is the data source that map view engines fetch from.
func ListAlertsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseAlertQuery(c, time.Now())
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		alerts, err := deps.Alerts.FetchAlerts(c.UserContext(), q)
		if err != nil {
			return errFromDomain(c, err)
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}

		c.Set("Cache-Control", "public, max-age=30")
		return c.JSON(alerts)
	}
}

// CountAlertsHandler returns the total number of stored alerts.
func CountAlertsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := deps.Alerts.CountAlerts(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"total": n})
	}
}

// RecentAlertsHandler returns one page of alerts published within a window.
func RecentAlertsHandler(deps *Dependencies) fiber.Handler {
	return recentAlerts(deps, "")
}

// Last24hAlertsHandler serves the legacy last-24h list.
func Last24hAlertsHandler(deps *Dependencies) fiber.Handler {
	return recentAlerts(deps, domain.Window24h)
}

func recentAlerts(deps *Dependencies, fixed domain.TimeWindow) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p recentParams
		if err := parseQuery(c, &p); err != nil {
			return errBadRequest(c, err.Error())
		}
		window, _ := domain.ParseTimeWindow(p.Window)
		if fixed != "" {
			window = fixed
		}
		if p.Limit == 0 {
			p.Limit = 50
		}

		alerts, total, err := deps.Alerts.ListRecent(c.UserContext(), window, p.Offset, p.Limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}

		pg := Pagination{Offset: p.Offset, Limit: p.Limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: alerts, Pagination: pg})
	}
}

// NearbyAlertsHandler returns alerts within a radius of a point.
func NearbyAlertsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p nearbyParams
		if err := parseQuery(c, &p); err != nil {
			return errBadRequest(c, err.Error())
		}
		if !(domain.GeoPoint{Lat: *p.Lat, Lon: *p.Lon}).Valid() {
			return errBadRequest(c, "lat and lon must be a valid location")
		}
		window, _ := domain.ParseTimeWindow(p.Window)

		alerts, err := deps.Alerts.FindNearby(c.UserContext(), *p.Lat, *p.Lon, p.Radius, window, p.Limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		if alerts == nil {
			alerts = []domain.Alert{}
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(alerts)
	}
}

// StateStatsHandler aggregates alerts per state for a window.
func StateStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		window, err := domain.ParseTimeWindow(c.Query("window"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		stats, err := deps.Alerts.StatsByState(c.UserContext(), window)
		if err != nil {
			return errFromDomain(c, err)
		}
		if stats == nil {
			stats = []domain.StateStats{}
		}
		return c.JSON(stats)
	}
}

// GetAlertHandler returns a single alert by its feed id.
func GetAlertHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		alert, err := deps.Alerts.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(alert)
	}
}
