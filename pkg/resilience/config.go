package resilience

import (
	"time"

	"github.com/sony/gobreaker"
)

// Config configures a ResilientGateway.
type Config struct {
	// Name identifies the breaker in logs and metrics (default: "payment-service")
	Name string

	// CallTimeout bounds each call to the payment service. Zero disables it.
	CallTimeout time.Duration

	Breaker BreakerConfig
}

// BreakerConfig shapes the circuit breaker. The breaker opens after
// TripAfter consecutive failures, or once at least MinRequests calls were
// made in the current window and the failure ratio reaches TripRatio.
type BreakerConfig struct {
	// Probes is the number of calls let through while half-open (default: 1)
	Probes uint32

	// Window clears the closed-state counts periodically. Zero never clears.
	Window time.Duration

	// OpenFor is how long the breaker rejects calls before probing
	OpenFor time.Duration

	// TripAfter consecutive failures open the breaker (default: 5)
	TripAfter uint32

	// TripRatio of failed calls opens the breaker; zero disables the ratio rule
	TripRatio   float64
	MinRequests uint32
}

// DefaultConfig returns defaults suited to a payment service that answers
// within seconds. A poll runs one query every couple of seconds, so five
// consecutive failures cover roughly ten seconds of outage.
func DefaultConfig() Config {
	return Config{
		Name:        "payment-service",
		CallTimeout: 15 * time.Second,
		Breaker: BreakerConfig{
			Probes:    1,
			Window:    60 * time.Second,
			OpenFor:   30 * time.Second,
			TripAfter: 5,
		},
	}
}

// WithCallTimeout returns a copy of the config with the given call timeout.
func (c Config) WithCallTimeout(timeout time.Duration) Config {
	c.CallTimeout = timeout
	return c
}

// WithOpenFor returns a copy of the config with the given open period.
func (c Config) WithOpenFor(d time.Duration) Config {
	c.Breaker.OpenFor = d
	return c
}

func (b BreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	tripAfter := b.TripAfter
	if tripAfter == 0 {
		tripAfter = 5
	}
	if counts.ConsecutiveFailures >= tripAfter {
		return true
	}
	if b.TripRatio <= 0 || counts.Requests == 0 || counts.Requests < b.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= b.TripRatio
}

func (b BreakerConfig) settings(name string) gobreaker.Settings {
	probes := b.Probes
	if probes == 0 {
		probes = 1
	}
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: probes,
		Interval:    b.Window,
		Timeout:     b.OpenFor,
		ReadyToTrip: b.readyToTrip,
	}
}
