package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks business rules on the loaded configuration and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q (got %q)", DriverPostgres, DriverMemory, c.Database.Driver))
	}

	if c.Lending.LoanPeriod <= 0 {
		errs = append(errs, fmt.Errorf("lending.loan_period must be > 0 (got %s)", c.Lending.LoanPeriod))
	}
	for name, v := range map[string]int64{
		"fine_per_day_cents":  c.Lending.FinePerDayCents,
		"flat_late_fee_cents": c.Lending.FlatLateFeeCents,
		"max_fine_cents":      c.Lending.MaxFineCents,
		"lost_item_fee_cents": c.Lending.LostItemFeeCents,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("lending.%s must be >= 0 (got %d)", name, v))
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text (got %q)", c.Log.Format))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be in [0, 1] (got %v)", c.Telemetry.SampleRatio))
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must be >= 0 (got %v)", c.RateLimit.RequestsPerSecond))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must be >= 1 (got %d)", c.RateLimit.Burst))
	}

	return errors.Join(errs...)
}
