package batch

import (
	"time"

	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
)

// Stats summarizes one orchestration run. Counts are per input occurrence,
// so duplicated numbers are counted once per occurrence.
type Stats struct {
	Requested   int
	CacheHits   int
	CacheMisses int
	Successes   int
	Errors      int

	// NetworkTime is the time spent resolving cache misses, excluding pacing.
	NetworkTime time.Duration

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration

	// Throttle is the final state of the run's controller; zero when every
	// number was cached.
	Throttle throttle.State
}

// Rate returns fetched numbers (cache misses) per second of wall time.
func (s Stats) Rate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.CacheMisses) / s.Elapsed.Seconds()
}

// EffectiveRate returns successful lookups per second of wall time.
func (s Stats) EffectiveRate() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Successes) / s.Elapsed.Seconds()
}

// SuccessPercent returns the share of cache misses resolved successfully.
func (s Stats) SuccessPercent() float64 {
	if s.CacheMisses == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.CacheMisses) * 100
}

// AvgRequestTime returns the mean network time per cache miss.
func (s Stats) AvgRequestTime() time.Duration {
	if s.CacheMisses == 0 {
		return 0
	}
	return s.NetworkTime / time.Duration(s.CacheMisses)
}

// Overhead returns the wall time not spent on network lookups.
func (s Stats) Overhead() time.Duration {
	if s.Elapsed < s.NetworkTime {
		return 0
	}
	return s.Elapsed - s.NetworkTime
}
