package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/config"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, config.EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "./data/leave.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.True(t, cfg.Refresh.Enabled)
	assert.Equal(t, time.Hour, cfg.Refresh.Interval)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)

	p, err := cfg.LeavePolicy()
	require.NoError(t, err)
	assert.Equal(t, "7", p.SickLeaveDays.String())
}

func TestLoadFile_Overrides(t *testing.T) {
	path := writeEnv(t, `
PORT=9090
DB_PATH=/tmp/leave-test.db
ALLOWED_ORIGINS= https://hr.example.com , ,https://admin.example.com
LOG_FORMAT=console
HTTP_READ_TIMEOUT=5s
POLICY_SICK_LEAVE_DAYS=10
POLICY_SHORT_LEAVE_MONTHLY_HOURS=4
REFRESH_ENABLED=false
REFRESH_INTERVAL=15m
`)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/tmp/leave-test.db", cfg.Database.Path)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.False(t, cfg.Refresh.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.CORS.AllowedOrigins)

	p, err := cfg.LeavePolicy()
	require.NoError(t, err)
	assert.Equal(t, "10", p.SickLeaveDays.String())
	assert.Equal(t, "4", p.ShortLeaveMonthlyHours.String())
	assert.Equal(t, "2", p.ShortLeaveRequestHours.String())
}

func TestLoadFile_EnvironmentWins(t *testing.T) {
	path := writeEnv(t, "PORT=9090\n")
	t.Setenv("PORT", "7070")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadFile_InvalidPolicy(t *testing.T) {
	tests := map[string]string{
		"not a number":          "POLICY_SICK_LEAVE_DAYS=seven\n",
		"request cap above cap": "POLICY_SHORT_LEAVE_REQUEST_HOURS=5\n",
		"bad log format":        "LOG_FORMAT=xml\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadFile(writeEnv(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_NegativeRefreshInterval(t *testing.T) {
	path := writeEnv(t, "REFRESH_INTERVAL=-5m\n")

	_, err := config.LoadFile(path)
	assert.ErrorContains(t, err, "REFRESH_INTERVAL")
}

func TestLoadFile_Postgres(t *testing.T) {
	_, err := config.LoadFile(writeEnv(t, "DB_DRIVER=postgres\n"))
	assert.ErrorContains(t, err, "DATABASE_URL")

	cfg, err := config.LoadFile(writeEnv(t, "DB_DRIVER=Postgres\nDATABASE_URL=postgres://leave@localhost/leave?sslmode=disable\n"))
	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://leave@localhost/leave?sslmode=disable", cfg.Database.URL)

	_, err = config.LoadFile(writeEnv(t, "DB_DRIVER=mysql\n"))
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestLoadFile_LogLevel(t *testing.T) {
	_, err := config.LoadFile(writeEnv(t, "LOG_LEVEL=verbose\n"))
	assert.ErrorContains(t, err, "LOG_LEVEL")

	cfg, err := config.LoadFile(writeEnv(t, "LOG_LEVEL=warn\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}
