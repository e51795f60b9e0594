package config

import (
	"fmt"
	"time"

	"booktracker/internal/domain"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Lending   LendingConfig   `yaml:"lending"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"             env:"SERVER_HOST"             env-default:"0.0.0.0"`
	Port            int           `yaml:"port"             env:"SERVER_PORT"             env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"     env:"SERVER_IDLE_TIMEOUT"     env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig selects and tunes the storage backend. URL is required for the
// postgres driver only.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"            env:"DATABASE_DRIVER"            env-default:"postgres"`
	URL             string        `yaml:"url"               env:"DATABASE_URL"`
	MaxOpenConns    int           `yaml:"max_open_conns"    env:"DATABASE_MAX_OPEN_CONNS"    env-default:"25"`
	MaxIdleConns    int           `yaml:"max_idle_conns"    env:"DATABASE_MAX_IDLE_CONNS"    env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool          `yaml:"auto_migrate"      env:"DATABASE_AUTO_MIGRATE"      env-default:"false"`
}

// LendingConfig holds the loan period and the fine schedule. Amounts are in cents.
type LendingConfig struct {
	LoanPeriod       time.Duration `yaml:"loan_period"         env:"LENDING_LOAN_PERIOD"          env-default:"336h"`
	FinePerDayCents  int64         `yaml:"fine_per_day_cents"  env:"LENDING_FINE_PER_DAY_CENTS"   env-default:"25"`
	FlatLateFeeCents int64         `yaml:"flat_late_fee_cents" env:"LENDING_FLAT_LATE_FEE_CENTS"  env-default:"0"`
	MaxFineCents     int64         `yaml:"max_fine_cents"      env:"LENDING_MAX_FINE_CENTS"       env-default:"0"`
	LostItemFeeCents int64         `yaml:"lost_item_fee_cents" env:"LENDING_LOST_ITEM_FEE_CENTS"  env-default:"2000"`
}

// FinePolicy converts the schedule into the domain policy.
func (l LendingConfig) FinePolicy() domain.FinePolicy {
	return domain.FinePolicy{
		PerDay:      domain.Cents(l.FinePerDayCents),
		FlatFee:     domain.Cents(l.FlatLateFeeCents),
		Max:         domain.Cents(l.MaxFineCents),
		LostItemFee: domain.Cents(l.LostItemFeeCents),
	}
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// TelemetryConfig configures OpenTelemetry tracing. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name"  env:"OTEL_SERVICE_NAME"  env-default:"booktracker"`
	SampleRatio  float64 `yaml:"sample_ratio"  env:"OTEL_SAMPLE_RATIO"  env-default:"1.0"`
}

// RateLimitConfig limits requests per client IP. A zero rate disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"RATE_LIMIT_RPS"     env-default:"50"`
	Burst             int           `yaml:"burst"               env:"RATE_LIMIT_BURST"   env-default:"100"`
	IdleTTL           time.Duration `yaml:"idle_ttl"            env:"RATE_LIMIT_IDLE_TTL" env-default:"10m"`
}
