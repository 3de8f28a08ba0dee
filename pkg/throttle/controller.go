package throttle

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for adaptive throttling.
var (
	lrnThrottlePauseSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lrn_throttle_pause_seconds",
		Help: "Current recommended pause between LRN requests",
	})

	lrnThrottleSuccessRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lrn_throttle_success_rate",
		Help: "Success rate over the current throttle window",
	})

	lrnThrottleAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrn_throttle_adjustments_total",
		Help: "Total number of pause adjustments by direction",
	}, []string{"direction"})
)

// Config holds the controller configuration.
type Config struct {
	// WindowSize is the number of most recent outcomes considered.
	WindowSize int

	// MinSamples is the number of outcomes required before the pause is adjusted.
	MinSamples int

	// SuccessThreshold is the success rate at or above which the pause shrinks.
	SuccessThreshold float64

	InitialPause time.Duration
	MinPause     time.Duration
	MaxPause     time.Duration

	// SpeedUpFactor multiplies the pause while healthy (< 1).
	SpeedUpFactor float64

	// SlowDownFactor multiplies the pause while unhealthy (> 1).
	SlowDownFactor float64
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:       100,
		MinSamples:       10,
		SuccessThreshold: 0.95,
		InitialPause:     200 * time.Millisecond,
		MinPause:         50 * time.Millisecond,
		MaxPause:         1 * time.Second,
		SpeedUpFactor:    0.9,
		SlowDownFactor:   1.25,
	}
}

// Controller converts a rolling history of request outcomes into a
// recommended pause. It is safe for concurrent use; every RecordResult is
// applied atomically with the recomputation it triggers.
type Controller struct {
	mu     sync.Mutex
	config Config

	// window is a ring buffer of outcomes; next is the slot to overwrite.
	window    []bool
	next      int
	count     int
	successes int

	pause time.Duration
}

// NewController creates a controller. Zero or invalid fields fall back to DefaultConfig values.
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.SuccessThreshold <= 0 || cfg.SuccessThreshold > 1 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.MinPause <= 0 {
		cfg.MinPause = def.MinPause
	}
	if cfg.MaxPause <= 0 {
		cfg.MaxPause = def.MaxPause
	}
	if cfg.MaxPause < cfg.MinPause {
		cfg.MaxPause = cfg.MinPause
	}
	if cfg.InitialPause <= 0 {
		cfg.InitialPause = def.InitialPause
	}
	if cfg.SpeedUpFactor <= 0 || cfg.SpeedUpFactor >= 1 {
		cfg.SpeedUpFactor = def.SpeedUpFactor
	}
	if cfg.SlowDownFactor <= 1 {
		cfg.SlowDownFactor = def.SlowDownFactor
	}

	c := &Controller{
		config: cfg,
		window: make([]bool, cfg.WindowSize),
		pause:  clamp(cfg.InitialPause, cfg.MinPause, cfg.MaxPause),
	}
	lrnThrottlePauseSeconds.Set(c.pause.Seconds())
	return c
}

// RecordResult appends an outcome to the window, evicting the oldest one
// when full, and recomputes the pause.
func (c *Controller) RecordResult(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count == len(c.window) {
		if c.window[c.next] {
			c.successes--
		}
	} else {
		c.count++
	}
	c.window[c.next] = success
	if success {
		c.successes++
	}
	c.next = (c.next + 1) % len(c.window)

	c.adjust()
}

// adjust recomputes the pause. Caller must hold mu.
func (c *Controller) adjust() {
	rate := c.rate()
	lrnThrottleSuccessRate.Set(rate)

	if c.count < c.config.MinSamples {
		return
	}

	if rate >= c.config.SuccessThreshold {
		c.pause = maxDuration(c.config.MinPause, scale(c.pause, c.config.SpeedUpFactor))
		lrnThrottleAdjustmentsTotal.WithLabelValues("speed_up").Inc()
	} else {
		c.pause = minDuration(c.config.MaxPause, scale(c.pause, c.config.SlowDownFactor))
		lrnThrottleAdjustmentsTotal.WithLabelValues("slow_down").Inc()
	}
	lrnThrottlePauseSeconds.Set(c.pause.Seconds())
}

func (c *Controller) rate() float64 {
	if c.count == 0 {
		return 0
	}
	return float64(c.successes) / float64(c.count)
}

// Pause returns the current recommended pause.
func (c *Controller) Pause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pause
}

// Stats returns the success rate over the window (0 when empty) and the current pause.
func (c *Controller) Stats() (float64, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate(), c.pause
}

// Snapshot returns the full controller state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		SuccessRate: c.rate(),
		Pause:       c.pause,
		Samples:     c.count,
		MinPause:    c.config.MinPause,
		MaxPause:    c.config.MaxPause,
		UpdatedAt:   time.Now(),
	}
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return maxDuration(lo, minDuration(hi, d))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
