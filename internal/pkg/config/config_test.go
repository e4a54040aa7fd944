package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("policetracker-test")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "policetracker-test", cfg.Telemetry.ServiceName)
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, 12, cfg.Sync.CoverageCapacity)
	assert.Equal(t, 1000, cfg.Sync.MaxRenderPoints)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
	assert.Equal(t, "alert-retention", cfg.Temporal.TaskQueue)
	assert.EqualValues(t, 50, cfg.Database.MaxConns)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POLICETRACKER_SERVER_PORT", "9090")
	t.Setenv("POLICETRACKER_SYNC_DEBOUNCE", "400ms")
	t.Setenv("POLICETRACKER_UPSTREAM_BASE_URL", "https://alerts.example.com")

	cfg, err := Load("api")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 400*time.Millisecond, cfg.Sync.Debounce)
	assert.Equal(t, "https://alerts.example.com", cfg.Upstream.BaseURL)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POLICETRACKER_SERVER_PORT", "0")
	t.Setenv("POLICETRACKER_SYNC_FETCH_LIMIT", "0")
	t.Setenv("POLICETRACKER_RETENTION_MAX_AGE", "24h")
	t.Setenv("POLICETRACKER_RETENTION_INTERVAL", "0s")

	_, err := Load("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
	assert.Contains(t, err.Error(), "sync.fetch_limit")
	assert.Contains(t, err.Error(), "retention.max_age")
	assert.Contains(t, err.Error(), "retention.interval")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, DBName: "alerts", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/alerts?sslmode=disable", d.DSN())
}

// chdir changes the working directory for the duration of the test,
// equivalent to testing.T.Chdir (Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
