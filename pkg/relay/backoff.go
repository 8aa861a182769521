package relay

import (
	"math"
	"time"

	"lukechampine.com/frand"
)

// Backoff parameters (spec.md §5: "reconnection uses exponential backoff
// with decorrelated jitter"). Defaults match the spec's worked example.
const (
	defaultBaseDelay    = 300 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMultiplier   = 1.6
	defaultJitter       = 0.1
	defaultMaxAttempts  = 2
	defaultCloseDelayMs = 1 * time.Second
	defaultReadyTimeout = 5 * time.Second
	defaultIdleTimeout  = 300 * time.Second
	defaultLongCooldown = 60 * time.Second
)

// BackoffPolicy carries the tunables a RelayRegistry uses to schedule
// reconnect attempts. The zero value is not usable; use NewBackoffPolicy.
type BackoffPolicy struct {
	Base         time.Duration
	Max          time.Duration
	Multiplier   float64
	Jitter       float64
	MaxAttempts  int
}

// NewBackoffPolicy returns the spec's default policy.
func NewBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:        defaultBaseDelay,
		Max:         defaultMaxDelay,
		Multiplier:  defaultMultiplier,
		Jitter:      defaultJitter,
		MaxAttempts: defaultMaxAttempts,
	}
}

// delay computes the reconnect delay for the given zero-based attempt
// number: base * multiplier^attempt, capped at Max, then perturbed by up to
// +/- jitter fraction (decorrelated jitter, not the "full jitter" variant:
// the midpoint is the capped exponential value itself).
func (p BackoffPolicy) delay(attempt int) time.Duration {
	raw := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if raw > float64(p.Max) {
		raw = float64(p.Max)
	}
	spread := (frand.Float64() - 0.5) * 2 * p.Jitter
	return time.Duration(raw * (1 + spread))
}

// exhausted reports whether attempt has used up the retry budget.
func (p BackoffPolicy) exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
