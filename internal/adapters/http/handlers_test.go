package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/policetracker/internal/adapters/http"
	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/usecases"
)

// ---- Mock repository ----

type mockAlertRepo struct {
	findInBoundsFn func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error)
	findNearbyFn   func(ctx context.Context, lat, lon, radius float64, since time.Time, limit int) ([]domain.Alert, error)
	listRecentFn   func(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error)
	getByIDFn      func(ctx context.Context, id string) (*domain.Alert, error)
	countFn        func(ctx context.Context) (int, error)
	statsFn        func(ctx context.Context, since time.Time) ([]domain.StateStats, error)
}

func (m *mockAlertRepo) UpsertBatch(ctx context.Context, alerts []domain.Alert) error { return nil }
func (m *mockAlertRepo) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}
func (m *mockAlertRepo) FindInBounds(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
	if m.findInBoundsFn != nil {
		return m.findInBoundsFn(ctx, q)
	}
	return nil, nil
}
func (m *mockAlertRepo) FindNearby(ctx context.Context, lat, lon, radius float64, since time.Time, limit int) ([]domain.Alert, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, lat, lon, radius, since, limit)
	}
	return nil, nil
}
func (m *mockAlertRepo) ListRecent(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error) {
	if m.listRecentFn != nil {
		return m.listRecentFn(ctx, since, offset, limit)
	}
	return nil, 0, nil
}
func (m *mockAlertRepo) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}
func (m *mockAlertRepo) StatsByState(ctx context.Context, since time.Time) ([]domain.StateStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, since)
	}
	return nil, nil
}
func (m *mockAlertRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeBroker bool

func (f fakeBroker) Healthy() bool { return bool(f) }

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(repo *mockAlertRepo) *handler.Dependencies {
	if repo == nil {
		repo = &mockAlertRepo{}
	}
	return &handler.Dependencies{
		Alerts:   usecases.NewAlertService(repo, nil, nil),
		Sessions: handler.NewSessionHub(),
	}
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func houstonAlerts() []domain.Alert {
	now := time.Now().UTC()
	return []domain.Alert{
		{ID: "a1", Type: "POLICE", Subtype: "POLICE_HIDING", Location: domain.GeoPoint{Lat: 29.76, Lon: -95.36}, Reliability: 80, PublishedAt: now.Add(-time.Hour)},
		{ID: "a2", Type: "POLICE", Location: domain.GeoPoint{Lat: 29.77, Lon: -95.35}, Reliability: 40, PublishedAt: now.Add(-2 * time.Hour)},
	}
}

// ---- Alerts by bounding box ----

func TestListAlerts_Success(t *testing.T) {
	var got domain.AlertQuery
	deps := makeDeps(&mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			got = q
			return houstonAlerts(), nil
		},
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/alerts?north=29.9&south=29.6&east=-95.2&west=-95.5&window=7d&category=POLICE_HIDING&limit=20", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}

	var alerts []domain.Alert
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(alerts))
	}

	want := domain.Bounds{MinLat: 29.6, MinLon: -95.5, MaxLat: 29.9, MaxLon: -95.2}
	if got.Bounds != want {
		t.Errorf("bounds mapped to %+v, want %+v", got.Bounds, want)
	}
	if got.Category != domain.CategoryHiding || got.Limit != 20 {
		t.Errorf("unexpected query %+v", got)
	}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	if d := got.Since.Sub(cutoff); d < -2*time.Minute || d > 2*time.Minute {
		t.Errorf("expected 7d cutoff, got %v", got.Since)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=30" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestListAlerts_SinceOverridesWindow(t *testing.T) {
	var got domain.AlertQuery
	deps := makeDeps(&mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			got = q
			return nil, nil
		},
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/alerts?north=1&south=0.5&east=1&west=0.5&window=30d&since=2025-06-10T12:00:30Z", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	if want := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC); !got.Since.Equal(want) {
		t.Errorf("expected since %v, got %v", want, got.Since)
	}

	// empty results are an empty array, not null
	if body := strings.TrimSpace(string(readBody(t, resp.Body))); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestListAlerts_BadRequests(t *testing.T) {
	app := setupApp(makeDeps(nil))

	cases := map[string]string{
		"missing bounds":  "/v1/alerts?north=29.9&south=29.6",
		"inverted":        "/v1/alerts?north=29.6&south=29.9&east=-95.2&west=-95.5",
		"lat range":       "/v1/alerts?north=95&south=29.6&east=-95.2&west=-95.5",
		"unknown window":  "/v1/alerts?north=29.9&south=29.6&east=-95.2&west=-95.5&window=1y",
		"unknown subtype": "/v1/alerts?north=29.9&south=29.6&east=-95.2&west=-95.5&category=ACCIDENT",
		"bad since":       "/v1/alerts?north=29.9&south=29.6&east=-95.2&west=-95.5&since=yesterday",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			resp, _ := app.Test(httptest.NewRequest("GET", url, nil), -1)
			if resp.StatusCode != 400 {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			var apiErr handler.APIError
			json.NewDecoder(resp.Body).Decode(&apiErr)
			if apiErr.Code != "bad_request" {
				t.Errorf("expected bad_request, got %q", apiErr.Code)
			}
			if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
				t.Errorf("errors must not be cached, got %q", cc)
			}
		})
	}
}

func TestListAlerts_RepoError(t *testing.T) {
	deps := makeDeps(&mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			return nil, errors.New("connection reset")
		},
	})
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts?north=1&south=0.5&east=1&west=0.5", nil), -1)
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if body := string(readBody(t, resp.Body)); strings.Contains(body, "connection reset") {
		t.Errorf("internal error details leaked: %s", body)
	}
}

// ---- Count, recent, nearby, stats, by id ----

func TestCountAlerts(t *testing.T) {
	app := setupApp(makeDeps(&mockAlertRepo{
		countFn: func(ctx context.Context) (int, error) { return 1234, nil },
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/count", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Total != 1234 {
		t.Errorf("expected 1234, got %d", out.Total)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=60" {
		t.Errorf("unexpected Cache-Control %q", cc)
	}
}

func TestRecentAlerts_Pagination(t *testing.T) {
	var gotOffset, gotLimit int
	app := setupApp(makeDeps(&mockAlertRepo{
		listRecentFn: func(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error) {
			gotOffset, gotLimit = offset, limit
			return houstonAlerts(), 10, nil
		},
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/recent?window=7d&offset=2&limit=2", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotOffset != 2 || gotLimit != 2 {
		t.Errorf("expected offset 2 limit 2, got %d/%d", gotOffset, gotLimit)
	}

	var page struct {
		Data       []domain.Alert     `json:"data"`
		Pagination handler.Pagination `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&page)
	if page.Pagination.Total != 10 || len(page.Data) != 2 {
		t.Errorf("unexpected page %+v", page.Pagination)
	}

	link := resp.Header.Get("Link")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("expected %s in Link %s", rel, link)
		}
	}
	if !strings.Contains(link, "window=7d") {
		t.Errorf("expected window to be carried in Link %s", link)
	}
}

func TestLast24h_Deprecated(t *testing.T) {
	var gotSince time.Time
	app := setupApp(makeDeps(&mockAlertRepo{
		listRecentFn: func(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error) {
			gotSince = since
			return nil, 0, nil
		},
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/last24h?window=30d", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" || resp.Header.Get("Sunset") == "" {
		t.Errorf("missing deprecation headers: %v", resp.Header)
	}
	if d := time.Since(gotSince); d < 23*time.Hour || d > 25*time.Hour {
		t.Errorf("legacy list must stay on 24h, got cutoff %v ago", d)
	}
}

func TestNearbyAlerts(t *testing.T) {
	var gotRadius float64
	app := setupApp(makeDeps(&mockAlertRepo{
		findNearbyFn: func(ctx context.Context, lat, lon, radius float64, since time.Time, limit int) ([]domain.Alert, error) {
			gotRadius = radius
			return houstonAlerts()[:1], nil
		},
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/nearby?lat=29.76&lon=-95.36&radius=2000", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotRadius != 2000 {
		t.Errorf("expected radius 2000, got %v", gotRadius)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/alerts/nearby?lat=29.76", nil), -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 without lon, got %d", resp.StatusCode)
	}
}

func TestStateStats(t *testing.T) {
	app := setupApp(makeDeps(&mockAlertRepo{
		statsFn: func(ctx context.Context, since time.Time) ([]domain.StateStats, error) {
			return []domain.StateStats{{State: "TX", AlertCount: 3}, {State: "CA", AlertCount: 1}}, nil
		},
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/stats/states?window=30d", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var stats []domain.StateStats
	json.NewDecoder(resp.Body).Decode(&stats)
	if len(stats) != 2 || stats[0].State != "TX" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGetAlert(t *testing.T) {
	app := setupApp(makeDeps(&mockAlertRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Alert, error) {
			if id == "a1" {
				a := houstonAlerts()[0]
				return &a, nil
			}
			return nil, domain.ErrNotFound
		},
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/a1", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var a domain.Alert
	json.NewDecoder(resp.Body).Decode(&a)
	if a.ID != "a1" {
		t.Errorf("expected a1, got %q", a.ID)
	}

	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/alerts/missing", nil), -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAlerts_NotConfigured(t *testing.T) {
	app := setupApp(&handler.Dependencies{})

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/count", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- GraphQL ----

func TestGraphQL_Alerts(t *testing.T) {
	app := setupApp(makeDeps(&mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			return houstonAlerts(), nil
		},
		countFn: func(ctx context.Context) (int, error) { return 7, nil },
	}))

	body := `{"query":"{ alerts(north: 29.9, south: 29.6, east: -95.2, west: -95.5) { id reliability location { lat } } alertCount }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Alerts []struct {
				ID          string `json:"id"`
				Reliability int    `json:"reliability"`
				Location    struct {
					Lat float64 `json:"lat"`
				} `json:"location"`
			} `json:"alerts"`
			AlertCount int `json:"alertCount"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Errors) > 0 {
		t.Fatalf("graphql errors: %v", out.Errors)
	}
	if len(out.Data.Alerts) != 2 || out.Data.Alerts[0].ID != "a1" || out.Data.Alerts[0].Location.Lat != 29.76 {
		t.Errorf("unexpected alerts %+v", out.Data.Alerts)
	}
	if out.Data.AlertCount != 7 {
		t.Errorf("expected count 7, got %d", out.Data.AlertCount)
	}
}

func TestGraphQL_InvalidCategory(t *testing.T) {
	app := setupApp(makeDeps(nil))

	body := `{"query":"{ alerts(north: 1, south: 0.5, east: 1, west: 0.5, category: \"ACCIDENT\") { id } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)

	var out struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if len(out.Errors) == 0 || !strings.Contains(out.Errors[0].Message, "invalid category") {
		t.Errorf("expected invalid category error, got %+v", out.Errors)
	}
}

// ---- Health, readiness, headers ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps(nil))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/health", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

func TestReady_NoDB(t *testing.T) {
	app := setupApp(makeDeps(nil))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestReady_Checks(t *testing.T) {
	deps := makeDeps(nil)
	deps.DB = fakePinger{}
	deps.Cache = fakePinger{}
	deps.Broker = fakeBroker(true)

	resp, _ := setupApp(deps).Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	deps.Cache = fakePinger{err: errors.New("dial tcp: refused")}
	resp, _ = setupApp(deps).Test(httptest.NewRequest("GET", "/v1/ready", nil), -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503 with cache down, got %d", resp.StatusCode)
	}
	var out struct {
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&out)
	if !strings.HasPrefix(out.Checks["cache"], "error:") || out.Checks["database"] != "ok" {
		t.Errorf("unexpected checks %v", out.Checks)
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps(&mockAlertRepo{
		countFn: func(ctx context.Context) (int, error) { return 5, nil },
	}))

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/alerts/count", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}

	req := httptest.NewRequest("GET", "/v1/alerts/count", nil)
	req.Header.Set("If-None-Match", `"other", `+etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	app := setupApp(makeDeps(nil))

	resp, _ := app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", resp.StatusCode)
	}
}

// TestAccessLogMiddleware verifies structured access logging does not alter responses.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}

func TestRequestIDLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "rid-42")
		return c.Next()
	})
	app.Use(handler.RequestIDLogMiddleware())

	var got string
	app.Get("/test", func(c *fiber.Ctx) error {
		got = handler.RequestIDFromCtx(c.UserContext())
		if handler.LoggerFromCtx(c.UserContext()) == nil {
			t.Error("expected a logger")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	if _, err := app.Test(httptest.NewRequest("GET", "/test", nil)); err != nil {
		t.Fatal(err)
	}
	if got != "rid-42" {
		t.Errorf("expected rid-42, got %q", got)
	}
}
