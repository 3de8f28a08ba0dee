package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Sternrassler/lrn-resolver/pkg/cache"
	"github.com/Sternrassler/lrn-resolver/pkg/lrn"
	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for lookup requests.
var (
	lrnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lrn_requests_total",
		Help: "Total LRN requests by outcome",
	}, []string{"status"})

	lrnRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lrn_request_duration_seconds",
		Help:    "LRN request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// Recorder receives the outcome of every finished attempt.
type Recorder interface {
	RecordResult(success bool)
}

// Resolver resolves single numbers. It is safe for concurrent use; all
// resolvers sharing a throttle.Controller feed the same outcome window.
type Resolver struct {
	config   Config
	throttle *throttle.Controller
	outcomes Recorder
	sleep    Sleeper
	random   func() float64
	logger   zerolog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithSleeper replaces the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(r *Resolver) { r.sleep = s }
}

// WithRandom replaces the jitter source. f must return values in [0, 1).
func WithRandom(f func() float64) Option {
	return func(r *Resolver) { r.random = f }
}

// WithLogger replaces the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver reporting outcomes to controller. A nil controller
// gets a private one with default settings.
func New(cfg Config, controller *throttle.Controller, opts ...Option) *Resolver {
	def := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.MinBodyLength <= 0 {
		cfg.MinBodyLength = def.MinBodyLength
	}
	if controller == nil {
		controller = throttle.NewController(throttle.DefaultConfig())
	}

	r := &Resolver{
		config:   cfg,
		throttle: controller,
		outcomes: controller,
		sleep:    SleepContext,
		random:   rand.Float64,
		logger:   log.With().Str("component", "lrn-resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config {
	return r.config
}

// Throttle returns the controller outcomes are reported to.
func (r *Resolver) Throttle() *throttle.Controller {
	return r.throttle
}

// UsingThrottle returns a copy of r bound to controller. r is unchanged.
func (r *Resolver) UsingThrottle(controller *throttle.Controller) *Resolver {
	cp := *r
	cp.throttle = controller
	cp.outcomes = controller
	return &cp
}

// ReportingTo returns a copy of r whose attempt outcomes go to rec instead
// of its controller.
func (r *Resolver) ReportingTo(rec Recorder) *Resolver {
	cp := *r
	cp.outcomes = rec
	return &cp
}

// Resolve returns the result for number. A cached result is returned
// without any request. Otherwise up to MaxRetries requests are made over
// session; the first valid answer is cached and returned. When every
// attempt fails the sentinel error result is returned and nothing is cached.
//
// Every attempt reports its outcome, except attempts cut short by
// cancellation of ctx, which the caller accounts for. A success is cached
// before it is reported.
func (r *Resolver) Resolve(ctx context.Context, session Session, number string, c *cache.Map) string {
	if cached, ok := c.Get(number); ok {
		cache.CacheHits.WithLabelValues("map").Inc()
		r.logger.Debug().Str("number", number).Msg("Cache hit")
		return cached
	}
	if c != nil {
		cache.CacheMisses.Inc()
	}

	var lastErr error
	for attempt := 1; attempt <= r.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		result, err := r.attempt(ctx, session, number, attempt)
		if err == nil {
			c.SetIfAbsent(number, result)
			r.outcomes.RecordResult(true)
			if attempt > 1 {
				r.logger.Info().
					Str("number", number).
					Int("attempt", attempt).
					Msg("Lookup succeeded after retry")
			}
			return result
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		r.outcomes.RecordResult(false)

		if attempt >= r.config.MaxRetries {
			break
		}

		class := errorClassOf(err)
		backoff := r.config.Backoff(attempt, r.random())
		lrnRetriesTotal.WithLabelValues(string(class)).Inc()
		lrnRetryBackoffSeconds.Observe(backoff.Seconds())

		r.logger.Warn().
			Err(err).
			Str("number", number).
			Int("attempt", attempt).
			Int("max_attempts", r.config.MaxRetries).
			Dur("backoff", backoff).
			Msg("Lookup failed, retrying after backoff")

		if err := r.sleep(ctx, backoff); err != nil {
			break
		}
	}

	class := errorClassOf(lastErr)
	if ctx.Err() != nil {
		r.logger.Warn().
			Str("number", number).
			Err(ctx.Err()).
			Msg("Lookup abandoned")
	} else {
		lrnRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
		r.logger.Error().
			Err(fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, r.config.MaxRetries, lastErr)).
			Str("number", number).
			Str("error_class", string(class)).
			Msg("Lookup failed")
	}

	return lrn.ErrorResult(number)
}

// ResolveOne resolves a single number over a dedicated one-connection
// session that is closed before returning.
func (r *Resolver) ResolveOne(ctx context.Context, endpoint Endpoint, number string, c *cache.Map) string {
	if cached, ok := c.Get(number); ok {
		cache.CacheHits.WithLabelValues("map").Inc()
		return cached
	}

	session, err := endpoint.Open(ctx, 1)
	if err != nil {
		r.outcomes.RecordResult(false)
		r.logger.Error().Err(err).Str("number", number).Msg("Failed to open LRN session")
		return lrn.ErrorResult(number)
	}
	defer session.Close()

	return r.Resolve(ctx, session, number, c)
}

// attempt performs one request and validates its answer.
func (r *Resolver) attempt(ctx context.Context, session Session, number string, attempt int) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.config.AttemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := session.Resolve(attemptCtx, number)
	lrnRequestDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		class := classifyTransportError(err)
		lrnRequestsTotal.WithLabelValues(string(class)).Inc()
		return "", &AttemptError{Number: number, Attempt: attempt, Class: class, Err: err}
	}

	if !resp.StatusOK {
		lrnRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return "", &AttemptError{
			Number:     number,
			Attempt:    attempt,
			Class:      ErrorClassStatus,
			StatusCode: resp.StatusCode,
			Err:        errors.New("non-success status"),
		}
	}

	body := strings.TrimSpace(resp.Body)
	if len(body) < r.config.MinBodyLength {
		lrnRequestsTotal.WithLabelValues(string(ErrorClassShortBody)).Inc()
		return "", &AttemptError{
			Number:     number,
			Attempt:    attempt,
			Class:      ErrorClassShortBody,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %q", ErrShortBody, body),
		}
	}

	lrnRequestsTotal.WithLabelValues("ok").Inc()
	return body, nil
}

func errorClassOf(err error) ErrorClass {
	var attemptErr *AttemptError
	if errors.As(err, &attemptErr) {
		return attemptErr.Class
	}
	return ErrorClassNetwork
}
