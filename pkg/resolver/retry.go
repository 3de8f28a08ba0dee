package resolver

import (
	"context"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	lrnRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrn_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	lrnRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lrn_retry_backoff_seconds",
		Help:    "Backoff duration before retrying a lookup",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})

	lrnRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrn_retry_exhausted_total",
		Help: "Total number of lookups that exhausted all attempts by last error class",
	}, []string{"error_class"})
)

// Config holds the single-number resolution configuration.
type Config struct {
	// MaxRetries is the maximum number of attempts per number (including the first).
	MaxRetries int

	// AttemptTimeout bounds each individual request.
	AttemptTimeout time.Duration

	// InitialBackoff is the wait after the first failed attempt.
	InitialBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// MaxJitter is the upper bound of the random delay added to each backoff.
	MaxJitter time.Duration

	// MinBodyLength is the shortest trimmed body accepted as a result.
	MinBodyLength int
}

// DefaultConfig returns the default resolution configuration: five
// attempts of 10s each, waiting 2^k seconds plus up to 100ms after the
// k-th failure.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		AttemptTimeout:    10 * time.Second,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxJitter:         100 * time.Millisecond,
		MinBodyLength:     3,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
// r must be in [0, 1) and scales the jitter.
func (c Config) Backoff(attempt int, r float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt-1))
	return time.Duration(base) + time.Duration(r*float64(c.MaxJitter))
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
