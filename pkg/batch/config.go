package batch

import (
	"time"

	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
)

// Config holds orchestrator configuration.
type Config struct {
	// MajorBatchSize is the number of cache misses handled per session.
	MajorBatchSize int

	// MaxConcurrent is the requested concurrency. 1 selects strictly
	// sequential resolution with a throttle pause after every item.
	MaxConcurrent int

	// MajorPauseHealthy is the wait after a major batch while the success rate is healthy.
	MajorPauseHealthy time.Duration

	// MajorPauseDegraded is the wait after a major batch otherwise.
	MajorPauseDegraded time.Duration

	// SubBatchTimeout overrides the derived sub-batch timeout when > 0.
	SubBatchTimeout time.Duration

	// Throttle configures the controller created for each run.
	Throttle throttle.Config
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MajorBatchSize:     500,
		MaxConcurrent:      10,
		MajorPauseHealthy:  500 * time.Millisecond,
		MajorPauseDegraded: time.Second,
		Throttle:           throttle.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MajorBatchSize <= 0 {
		c.MajorBatchSize = def.MajorBatchSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.MajorPauseHealthy <= 0 {
		c.MajorPauseHealthy = def.MajorPauseHealthy
	}
	if c.MajorPauseDegraded <= 0 {
		c.MajorPauseDegraded = def.MajorPauseDegraded
	}
	if c.Throttle == (throttle.Config{}) {
		c.Throttle = def.Throttle
	}
	return c
}

// SubBatchSize returns clamp(MaxConcurrent*2, 10, 50).
func (c Config) SubBatchSize() int {
	return clampInt(c.MaxConcurrent*2, 10, 50)
}

// EffectiveConcurrency returns the session pool size and the bound on
// in-flight lookups: max(MaxConcurrent, clamp(MajorBatchSize, MaxConcurrent, MaxConcurrent*5)).
func (c Config) EffectiveConcurrency() int {
	return max(c.MaxConcurrent, clampInt(c.MajorBatchSize, c.MaxConcurrent, c.MaxConcurrent*5))
}

// SubBatchTimeoutDuration returns the aggregate timeout of one concurrent
// sub-batch: clamp(SubBatchSize*2, 10, 60) seconds unless overridden.
func (c Config) SubBatchTimeoutDuration() time.Duration {
	if c.SubBatchTimeout > 0 {
		return c.SubBatchTimeout
	}
	return time.Duration(clampInt(c.SubBatchSize()*2, 10, 60)) * time.Second
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
