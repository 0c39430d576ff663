package resilience

import (
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Name != "payment-service" || config.CallTimeout != 15*time.Second {
		t.Errorf("DefaultConfig() = %+v", config)
	}
	if config.Breaker.OpenFor != 30*time.Second || config.Breaker.Probes != 1 {
		t.Errorf("Breaker = %+v", config.Breaker)
	}
}

func TestBreakerConfig_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name    string
		breaker BreakerConfig
		counts  gobreaker.Counts
		want    bool
	}{
		{"below consecutive", BreakerConfig{TripAfter: 5}, gobreaker.Counts{Requests: 4, ConsecutiveFailures: 4, TotalFailures: 4}, false},
		{"consecutive", BreakerConfig{TripAfter: 5}, gobreaker.Counts{Requests: 5, ConsecutiveFailures: 5, TotalFailures: 5}, true},
		{"zero trip after defaults to five", BreakerConfig{}, gobreaker.Counts{Requests: 5, ConsecutiveFailures: 5}, true},
		{"ratio disabled", BreakerConfig{TripAfter: 5}, gobreaker.Counts{Requests: 10, TotalFailures: 9, ConsecutiveFailures: 1}, false},
		{"ratio below minimum requests", BreakerConfig{TripAfter: 5, TripRatio: 0.5, MinRequests: 10}, gobreaker.Counts{Requests: 6, TotalFailures: 4, ConsecutiveFailures: 1}, false},
		{"ratio reached", BreakerConfig{TripAfter: 5, TripRatio: 0.5, MinRequests: 10}, gobreaker.Counts{Requests: 10, TotalFailures: 5, ConsecutiveFailures: 1}, true},
		{"ratio not reached", BreakerConfig{TripAfter: 5, TripRatio: 0.5, MinRequests: 10}, gobreaker.Counts{Requests: 10, TotalFailures: 4, ConsecutiveFailures: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.breaker.readyToTrip(tt.counts); got != tt.want {
				t.Errorf("readyToTrip(%+v) = %v, want %v", tt.counts, got, tt.want)
			}
		})
	}
}

func TestConfig_With(t *testing.T) {
	config := DefaultConfig()
	changed := config.WithCallTimeout(2 * time.Second).WithOpenFor(20 * time.Second)

	if changed.CallTimeout != 2*time.Second || changed.Breaker.OpenFor != 20*time.Second {
		t.Errorf("changed = %+v", changed)
	}
	if config.CallTimeout != 15*time.Second || config.Breaker.OpenFor != 30*time.Second {
		t.Errorf("original config changed: %+v", config)
	}
}

func TestBreakerConfig_Settings(t *testing.T) {
	settings := BreakerConfig{Window: time.Minute, OpenFor: 5 * time.Second}.settings("gw")

	if settings.Name != "gw" || settings.MaxRequests != 1 {
		t.Errorf("settings = %+v", settings)
	}
	if settings.Interval != time.Minute || settings.Timeout != 5*time.Second {
		t.Errorf("settings durations = %v / %v", settings.Interval, settings.Timeout)
	}
}
