package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/policetracker/internal/core/domain"
	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/core/usecases"
)

// --- Mock AlertRepository ---

type mockAlertRepo struct {
	upsertBatchFn     func(ctx context.Context, alerts []domain.Alert) error
	getByIDFn         func(ctx context.Context, id string) (*domain.Alert, error)
	findInBoundsFn    func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error)
	findNearbyFn      func(ctx context.Context, lat, lon, radius float64, since time.Time, limit int) ([]domain.Alert, error)
	listRecentFn      func(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error)
	countFn           func(ctx context.Context) (int, error)
	statsByStateFn    func(ctx context.Context, since time.Time) ([]domain.StateStats, error)
	deleteOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockAlertRepo) UpsertBatch(ctx context.Context, alerts []domain.Alert) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, alerts)
	}
	return nil
}

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
	if m.statsByStateFn != nil {
		return m.statsByStateFn(ctx, since)
	}
	return nil, nil
}

func (m *mockAlertRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

// --- In-memory cache ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishAlertsIngested(ctx context.Context, notice ports.IngestNotice) error {
	return m.Called(ctx, notice).Error(0)
}

func (m *mockPublisher) PublishAlertsPruned(ctx context.Context, notice ports.IngestNotice) error {
	return m.Called(ctx, notice).Error(0)
}

var houston = domain.Bounds{MinLat: 29.5, MinLon: -95.8, MaxLat: 30.1, MaxLon: -95.0}

// --- Tests ---

func TestAlertService_FetchAlerts_CacheAside(t *testing.T) {
	calls := 0
	repo := &mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			calls++
			return []domain.Alert{
				{ID: "a1", Type: domain.AlertTypePolice, Location: domain.GeoPoint{Lat: 29.76, Lon: -95.36}},
			}, nil
		},
	}
	svc := usecases.NewAlertService(repo, newMemCache(), nil)

	q := domain.AlertQuery{Bounds: houston, Since: time.Now().Add(-24 * time.Hour)}
	first, err := svc.FetchAlerts(context.Background(), q)
	require.NoError(t, err)
	second, err := svc.FetchAlerts(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second call is served from cache")
	assert.Equal(t, first, second)
}

func TestAlertService_FetchAlerts_ClampsLimit(t *testing.T) {
	var got []int
	repo := &mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			got = append(got, q.Limit)
			return nil, nil
		},
	}
	svc := usecases.NewAlertService(repo, nil, nil)

	for _, limit := range []int{0, 25, 5000} {
		_, err := svc.FetchAlerts(context.Background(), domain.AlertQuery{Bounds: houston, Limit: limit})
		require.NoError(t, err)
	}
	assert.Equal(t, []int{usecases.DefaultAlertLimit, 25, usecases.MaxAlertLimit}, got)
}

func TestAlertService_FetchAlerts_InvalidBounds(t *testing.T) {
	svc := usecases.NewAlertService(&mockAlertRepo{}, nil, nil)
	_, err := svc.FetchAlerts(context.Background(), domain.AlertQuery{
		Bounds: domain.Bounds{MinLat: 31, MaxLat: 30, MinLon: -95, MaxLon: -94},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBounds)
}

func TestAlertService_FetchAlerts_RepoError(t *testing.T) {
	repo := &mockAlertRepo{
		findInBoundsFn: func(ctx context.Context, q domain.AlertQuery) ([]domain.Alert, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := usecases.NewAlertService(repo, nil, nil)
	_, err := svc.FetchAlerts(context.Background(), domain.AlertQuery{Bounds: houston})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAlertService_CountAlerts(t *testing.T) {
	calls := 0
	repo := &mockAlertRepo{
		countFn: func(ctx context.Context) (int, error) {
			calls++
			return 42, nil
		},
	}
	cache := newMemCache()
	svc := usecases.NewAlertService(repo, cache, nil)

	n, err := svc.CountAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, _ = svc.CountAlerts(context.Background())
	assert.Equal(t, 1, calls)
}

func TestAlertService_Import(t *testing.T) {
	var stored []domain.Alert
	repo := &mockAlertRepo{
		upsertBatchFn: func(ctx context.Context, alerts []domain.Alert) error {
			stored = alerts
			return nil
		},
	}
	pub := &mockPublisher{}
	pub.On("PublishAlertsIngested", mock.Anything, ports.IngestNotice{Source: "dump", Inserted: 2}).Return(nil).Once()

	cache := newMemCache()
	_ = cache.Set(context.Background(), "alerts:count", []byte("7"), 60)
	svc := usecases.NewAlertService(repo, cache, pub)

	published := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	n, err := svc.Import(context.Background(), "dump", []domain.Alert{
		{ID: "1", Type: "POLICE", City: "Houston, TX", Location: domain.GeoPoint{Lat: 29.76, Lon: -95.36}, PublishedAt: published},
		{ID: "2", Type: "police", State: "CA", Location: domain.GeoPoint{Lat: 34.05, Lon: -118.24}},
		{ID: "3", Type: "JAM", Location: domain.GeoPoint{Lat: 29.76, Lon: -95.36}},
		{ID: "4", Type: "POLICE"},
		{ID: "", Type: "POLICE", Location: domain.GeoPoint{Lat: 29.76, Lon: -95.36}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, stored, 2)

	assert.Equal(t, "TX", stored[0].State)
	assert.Equal(t, published, stored[0].PublishedAt)
	assert.Equal(t, "CA", stored[1].State)
	assert.Equal(t, domain.AlertTypePolice, stored[1].Type)
	assert.False(t, stored[1].PublishedAt.IsZero())

	_, err = cache.Get(context.Background(), "alerts:count")
	assert.Error(t, err, "count cache is invalidated")
	pub.AssertExpectations(t)
}

func TestAlertService_Import_NothingValid(t *testing.T) {
	repo := &mockAlertRepo{
		upsertBatchFn: func(ctx context.Context, alerts []domain.Alert) error {
			t.Error("repo must not be called")
			return nil
		},
	}
	pub := &mockPublisher{}
	svc := usecases.NewAlertService(repo, nil, pub)

	n, err := svc.Import(context.Background(), "dump", []domain.Alert{{ID: "x", Type: "HAZARD"}})
	require.NoError(t, err)
	assert.Zero(t, n)
	pub.AssertNotCalled(t, "PublishAlertsIngested", mock.Anything, mock.Anything)
}

func TestAlertService_FindNearby(t *testing.T) {
	repo := &mockAlertRepo{
		findNearbyFn: func(ctx context.Context, lat, lon, radius float64, since time.Time, limit int) ([]domain.Alert, error) {
			assert.Equal(t, 5000.0, radius, "radius defaults when out of range")
			assert.Equal(t, 200, limit)
			assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), since, 5*time.Second)
			return []domain.Alert{
				{ID: "n1", Location: domain.GeoPoint{Lat: 29.77, Lon: -95.36}},
				{ID: "far", Location: domain.GeoPoint{Lat: 30.27, Lon: -97.74}},
			}, nil
		},
	}
	svc := usecases.NewAlertService(repo, nil, nil)

	alerts, err := svc.FindNearby(context.Background(), 29.76, -95.36, -1, domain.Window7d, 999)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "alerts outside the radius are dropped")
	assert.Equal(t, "n1", alerts[0].ID)
	require.NotNil(t, alerts[0].Distance)
	assert.InDelta(t, 1112, *alerts[0].Distance, 5)

	_, err = svc.FindNearby(context.Background(), 0, 0, 1000, domain.Window24h, 10)
	assert.Error(t, err)

	_, err = svc.FindNearby(context.Background(), 10, 179.99, 5000, domain.Window24h, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidBounds, "antimeridian circles are rejected")
}

func TestAlertService_ListRecent(t *testing.T) {
	repo := &mockAlertRepo{
		listRecentFn: func(ctx context.Context, since time.Time, offset, limit int) ([]domain.Alert, int, error) {
			assert.Equal(t, 0, offset)
			assert.Equal(t, 50, limit)
			return []domain.Alert{{ID: "r1"}}, 120, nil
		},
	}
	svc := usecases.NewAlertService(repo, nil, nil)

	alerts, total, err := svc.ListRecent(context.Background(), domain.Window24h, -5, 0)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Equal(t, 120, total)
}

func TestAlertService_GetByID(t *testing.T) {
	repo := &mockAlertRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Alert, error) {
			return &domain.Alert{ID: id, City: "Houston, TX"}, nil
		},
	}
	svc := usecases.NewAlertService(repo, newMemCache(), nil)

	a, err := svc.GetByID(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", a.ID)

	_, err = svc.GetByID(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAlertService_StatsByState(t *testing.T) {
	repo := &mockAlertRepo{
		statsByStateFn: func(ctx context.Context, since time.Time) ([]domain.StateStats, error) {
			return []domain.StateStats{{State: "TX", AlertCount: 12}}, nil
		},
	}
	svc := usecases.NewAlertService(repo, nil, nil)

	stats, err := svc.StatsByState(context.Background(), domain.Window30d)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "TX", stats[0].State)
}
