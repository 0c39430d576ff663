// Package config loads payflow settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"payflow/pkg/gateway"
	"payflow/pkg/journal/postgres"
	"payflow/pkg/journal/redis"
	"payflow/pkg/logging"
	"payflow/pkg/payment"
	"payflow/pkg/poller"
	"payflow/pkg/resilience"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Journal backends.
const (
	JournalMemory   = "memory"
	JournalRedis    = "redis"
	JournalPostgres = "postgres"
)

// Config is the complete payflow configuration.
type Config struct {
	Gateway    GatewayConfig
	Poll       PollConfig
	Limits     payment.Limits
	Resilience ResilienceConfig
	Journal    JournalConfig
	Logging    logging.Config

	// OpsAddress is where the operator API listens
	OpsAddress string
	// SimulatorAddress is where `payflow simulate` listens
	SimulatorAddress string
}

// GatewayConfig locates the payment service.
type GatewayConfig struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
}

// PollConfig sets the status polling cadence.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// ResilienceConfig bounds calls to the payment service.
type ResilienceConfig struct {
	CallTimeout    time.Duration
	BreakerTimeout time.Duration
}

// JournalConfig selects and configures the attempt journal.
type JournalConfig struct {
	Backend     string
	RedisAddr   string
	RedisPrefix string
	PostgresDSN string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	resilient := resilience.DefaultConfig()
	return Config{
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:8000/api/v1",
			Timeout: 30 * time.Second,
		},
		Poll: PollConfig{
			MaxAttempts: poller.DefaultMaxAttempts,
			Interval:    poller.DefaultInterval,
		},
		Limits: payment.DefaultLimits(),
		Resilience: ResilienceConfig{
			CallTimeout:    resilient.CallTimeout,
			BreakerTimeout: resilient.Breaker.OpenFor,
		},
		Journal: JournalConfig{
			Backend:     JournalMemory,
			RedisAddr:   redis.DefaultConfig().Addr,
			RedisPrefix: redis.DefaultConfig().KeyPrefix,
			PostgresDSN: postgres.DefaultConfig().DSN,
		},
		Logging:          logging.DefaultConfig(),
		OpsAddress:       ":8081",
		SimulatorAddress: ":8000",
	}
}

// Load reads the configuration from the environment. The given env files
// are loaded first, without overriding variables already set; with no
// files, ./.env is loaded when it exists. Every malformed value is
// reported.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Config{}, fmt.Errorf("config: load env file: %w", err)
		}
	}

	c := Default()
	r := &reader{}

	c.Gateway.BaseURL = r.str("PAYFLOW_GATEWAY_URL", c.Gateway.BaseURL)
	c.Gateway.BearerToken = r.str("PAYFLOW_GATEWAY_TOKEN", c.Gateway.BearerToken)
	c.Gateway.Timeout = r.duration("PAYFLOW_GATEWAY_TIMEOUT", c.Gateway.Timeout)

	c.Poll.MaxAttempts = r.positiveInt("PAYFLOW_POLL_MAX_ATTEMPTS", c.Poll.MaxAttempts)
	c.Poll.Interval = r.duration("PAYFLOW_POLL_INTERVAL", c.Poll.Interval)

	c.Limits.MinAmount = r.decimal("PAYFLOW_MIN_AMOUNT", c.Limits.MinAmount)
	c.Limits.MaxAmount = r.decimal("PAYFLOW_MAX_AMOUNT", c.Limits.MaxAmount)
	c.Limits.Currency = strings.ToUpper(r.str("PAYFLOW_CURRENCY", c.Limits.Currency))

	c.Resilience.CallTimeout = r.duration("PAYFLOW_CALL_TIMEOUT", c.Resilience.CallTimeout)
	c.Resilience.BreakerTimeout = r.duration("PAYFLOW_BREAKER_TIMEOUT", c.Resilience.BreakerTimeout)

	c.Journal.Backend = strings.ToLower(r.str("PAYFLOW_JOURNAL", c.Journal.Backend))
	c.Journal.RedisAddr = r.str("PAYFLOW_REDIS_ADDR", c.Journal.RedisAddr)
	c.Journal.RedisPrefix = r.str("PAYFLOW_REDIS_PREFIX", c.Journal.RedisPrefix)
	c.Journal.PostgresDSN = r.str("PAYFLOW_POSTGRES_DSN", c.Journal.PostgresDSN)

	c.OpsAddress = r.str("PAYFLOW_OPS_ADDR", c.OpsAddress)
	c.SimulatorAddress = r.str("PAYFLOW_SIMULATOR_ADDR", c.SimulatorAddress)

	if os.Getenv("LOG_DEV") == "true" {
		c.Logging = logging.DevelopmentConfig()
	}
	c.Logging.Level = r.str("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = r.str("LOG_FORMAT", c.Logging.Format)

	if err := errors.Join(append(r.errs, c.Validate())...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that parse but make no sense.
func (c Config) Validate() error {
	var errs []error
	if err := c.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	switch c.Journal.Backend {
	case JournalMemory, JournalRedis, JournalPostgres:
	default:
		errs = append(errs, fmt.Errorf("config: PAYFLOW_JOURNAL must be memory, redis or postgres, got %q", c.Journal.Backend))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("config: LOG_FORMAT must be json or console, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// ClientConfig returns the gateway client configuration.
func (c Config) ClientConfig() gateway.ClientConfig {
	return gateway.ClientConfig{
		BaseURL:     c.Gateway.BaseURL,
		Timeout:     c.Gateway.Timeout,
		BearerToken: c.Gateway.BearerToken,
	}
}

// PollerConfig returns the poller configuration.
func (c Config) PollerConfig() poller.Config {
	return poller.Config{
		MaxAttempts: c.Poll.MaxAttempts,
		Interval:    c.Poll.Interval,
	}
}

// ResilientConfig returns the circuit breaker configuration.
func (c Config) ResilientConfig() resilience.Config {
	return resilience.DefaultConfig().
		WithCallTimeout(c.Resilience.CallTimeout).
		WithOpenFor(c.Resilience.BreakerTimeout)
}

// RedisConfig returns the Redis journal configuration.
func (c Config) RedisConfig() redis.Config {
	rc := redis.DefaultConfig()
	rc.Addr = c.Journal.RedisAddr
	rc.KeyPrefix = c.Journal.RedisPrefix
	return rc
}

// PostgresConfig returns the Postgres journal configuration.
func (c Config) PostgresConfig() postgres.Config {
	pc := postgres.DefaultConfig()
	pc.DSN = c.Journal.PostgresDSN
	return pc
}

// reader collects parse errors while reading variables.
type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) positiveInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.errs = append(r.errs, fmt.Errorf("config: %s must be a positive integer, got %q", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Errorf("config: %s must be a positive duration, got %q", key, v))
		return def
	}
	return d
}

func (r *reader) decimal(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s must be a decimal number, got %q", key, v))
		return def
	}
	return d
}
