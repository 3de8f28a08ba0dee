// Package throttle implements adaptive request pacing driven by the recent
// success rate of lookups against a remote service.
//
// The Controller keeps a fixed-size window of outcomes and derives a
// recommended pause between requests: it speeds up by 10% while the window
// stays above the success threshold and slows down by 25% otherwise, always
// within [MinPause, MaxPause].
package throttle

import (
	"time"
)

// Redis keys for the published throttle snapshot.
const (
	RedisKeySuccessRate = "lrn:throttle:success_rate"
	RedisKeyPauseMillis = "lrn:throttle:pause_ms"
	RedisKeySamples     = "lrn:throttle:samples"
	RedisKeyUpdatedAt   = "lrn:throttle:updated_at"
)

// Success-rate levels used by callers to pick pacing.
const (
	// HealthyRate is the success rate at or above which the upstream is considered healthy.
	HealthyRate = 0.95

	// DegradedRate is the success rate below which inter-batch pauses are lengthened.
	DegradedRate = 0.9
)

// State is a point-in-time view of the controller.
type State struct {
	// SuccessRate is the fraction of successes in the current window (0 when empty).
	SuccessRate float64 `json:"success_rate"`

	// Pause is the current recommended pause between requests.
	Pause time.Duration `json:"pause"`

	// Samples is the number of outcomes currently held in the window.
	Samples int `json:"samples"`

	// MinPause and MaxPause are the bounds Pause is kept within.
	MinPause time.Duration `json:"min_pause"`
	MaxPause time.Duration `json:"max_pause"`

	// UpdatedAt is when this snapshot was taken.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsHealthy reports whether the window shows a healthy upstream.
// An empty window is not considered healthy.
func (s State) IsHealthy() bool {
	return s.Samples > 0 && s.SuccessRate >= HealthyRate
}

// IsDegraded reports whether the window shows a degraded upstream.
func (s State) IsDegraded() bool {
	return s.SuccessRate < DegradedRate
}
