// Package config loads server settings and leave-policy overrides from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/warp/leave-engine/leave"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	CORS     CORSConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Refresh  RefreshConfig
	Policy   PolicyConfig
}

// DatabaseConfig selects the store. Path is used by sqlite, URL by postgres.
type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// RefreshConfig controls the background balance refresh.
type RefreshConfig struct {
	Enabled  bool
	Interval time.Duration
}

// PolicyConfig holds overrides on top of leave.DefaultPolicy. Empty values
// keep the default.
type PolicyConfig struct {
	SickLeaveDays          string
	CasualLeaveDays        string
	CasualAccrualPerMonth  string
	ShortLeaveMonthlyHours string
	ShortLeaveRequestHours string
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New(), ".env")
}

// LoadFile reads settings from a specific env file; the environment still wins.
func LoadFile(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, file string) (*Config, error) {
	v.SetConfigFile(file)
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Driver: strings.ToLower(v.GetString("DB_DRIVER")),
		Path:   v.GetString("DB_PATH"),
		URL:    v.GetString("DATABASE_URL"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.HTTP = HTTPConfig{
		ReadTimeout:     parseDuration(v.GetString("HTTP_READ_TIMEOUT"), 15*time.Second),
		WriteTimeout:    parseDuration(v.GetString("HTTP_WRITE_TIMEOUT"), 15*time.Second),
		IdleTimeout:     parseDuration(v.GetString("HTTP_IDLE_TIMEOUT"), 60*time.Second),
		ShutdownTimeout: parseDuration(v.GetString("HTTP_SHUTDOWN_TIMEOUT"), 30*time.Second),
	}

	cfg.Refresh = RefreshConfig{
		Enabled:  v.GetBool("REFRESH_ENABLED"),
		Interval: parseDuration(v.GetString("REFRESH_INTERVAL"), time.Hour),
	}

	cfg.Policy = PolicyConfig{
		SickLeaveDays:          v.GetString("POLICY_SICK_LEAVE_DAYS"),
		CasualLeaveDays:        v.GetString("POLICY_CASUAL_LEAVE_DAYS"),
		CasualAccrualPerMonth:  v.GetString("POLICY_CASUAL_ACCRUAL_PER_MONTH"),
		ShortLeaveMonthlyHours: v.GetString("POLICY_SHORT_LEAVE_MONTHLY_HOURS"),
		ShortLeaveRequestHours: v.GetString("POLICY_SHORT_LEAVE_REQUEST_HOURS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "./data/leave.db")
	v.SetDefault("DATABASE_URL", "")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "15s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("HTTP_SHUTDOWN_TIMEOUT", "30s")

	v.SetDefault("REFRESH_ENABLED", true)
	v.SetDefault("REFRESH_INTERVAL", "1h")

	v.SetDefault("POLICY_SICK_LEAVE_DAYS", "")
	v.SetDefault("POLICY_CASUAL_LEAVE_DAYS", "")
	v.SetDefault("POLICY_CASUAL_ACCRUAL_PER_MONTH", "")
	v.SetDefault("POLICY_SHORT_LEAVE_MONTHLY_HOURS", "")
	v.SetDefault("POLICY_SHORT_LEAVE_REQUEST_HOURS", "")
}

// Validate checks settings that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", c.Refresh.Interval)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	_, err := c.LeavePolicy()
	return err
}

// LeavePolicy applies the overrides to leave.DefaultPolicy and validates the result.
func (c *Config) LeavePolicy() (leave.Policy, error) {
	p := leave.DefaultPolicy()
	overrides := []struct {
		key   string
		raw   string
		field *decimal.Decimal
	}{
		{"POLICY_SICK_LEAVE_DAYS", c.Policy.SickLeaveDays, &p.SickLeaveDays},
		{"POLICY_CASUAL_LEAVE_DAYS", c.Policy.CasualLeaveDays, &p.CasualLeaveDays},
		{"POLICY_CASUAL_ACCRUAL_PER_MONTH", c.Policy.CasualAccrualPerMonth, &p.CasualAccrualPerMonth},
		{"POLICY_SHORT_LEAVE_MONTHLY_HOURS", c.Policy.ShortLeaveMonthlyHours, &p.ShortLeaveMonthlyHours},
		{"POLICY_SHORT_LEAVE_REQUEST_HOURS", c.Policy.ShortLeaveRequestHours, &p.ShortLeaveRequestHours},
	}
	for _, o := range overrides {
		raw := strings.TrimSpace(o.raw)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return leave.Policy{}, fmt.Errorf("%s: %w", o.key, err)
		}
		*o.field = d
	}
	if err := p.Validate(); err != nil {
		return leave.Policy{}, fmt.Errorf("leave policy: %w", err)
	}
	return p, nil
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
