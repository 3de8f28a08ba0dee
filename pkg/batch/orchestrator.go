package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/lrn-resolver/pkg/cache"
	"github.com/Sternrassler/lrn-resolver/pkg/lrn"
	"github.com/Sternrassler/lrn-resolver/pkg/resolver"
	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/Sternrassler/lrn-resolver/pkg/batch"

// Sub-batch pacing bounds.
const (
	minSubBatchPause      = 100 * time.Millisecond
	minDegradedBatchPause = 500 * time.Millisecond
)

// Publisher receives the throttle state after every major batch.
type Publisher interface {
	Publish(ctx context.Context, state throttle.State) error
}

// Orchestrator resolves large number lists in major batches and
// sub-batches. Resolve may be called concurrently; each call owns its
// cache copy and its throttle controller.
type Orchestrator struct {
	resolver  *resolver.Resolver
	endpoint  resolver.Endpoint
	store     cache.Store
	config    Config
	sleep     resolver.Sleeper
	publisher Publisher
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the pacing sleeper.
func WithSleeper(s resolver.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

// WithPublisher publishes the throttle state after every major batch.
func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithLogger replaces the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator. A nil store keeps the cache in memory.
func NewOrchestrator(res *resolver.Resolver, endpoint resolver.Endpoint, store cache.Store, cfg Config, opts ...Option) *Orchestrator {
	if store == nil {
		store = cache.NewMemoryStore(nil)
	}

	o := &Orchestrator{
		resolver: res,
		endpoint: endpoint,
		store:    store,
		config:   cfg.withDefaults(),
		sleep:    resolver.SleepContext,
		logger:   log.With().Str("component", "lrn-batch").Logger(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Resolve returns a result for every number in numbers. Cached numbers
// are answered without any request; the rest are resolved over the
// endpoint and the cache is saved once at the end. Pacing is driven by a
// throttle controller created for this call from Config.Throttle.
//
// The error is non-nil when the cache could not be loaded (no results),
// when ctx was cancelled (complete results, unresolved numbers carry the
// error sentinel), or when the cache could not be saved (complete results).
func (o *Orchestrator) Resolve(ctx context.Context, numbers []string) (map[string]string, Stats, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger.With().Str("run_id", runID).Logger()

	ctx, span := o.tracer.Start(ctx, "batch.Resolve", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.Int("numbers", len(numbers)),
		attribute.Int("major_batch_size", o.config.MajorBatchSize),
		attribute.Int("max_concurrent", o.config.MaxConcurrent),
	))
	defer span.End()

	batchRunsTotal.Inc()
	stats := Stats{Requested: len(numbers)}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, stats, err
	}

	entries, err := o.store.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load cache: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("Failed to load LRN cache")
		return nil, stats, err
	}
	c := cache.NewMap(entries)

	results := make(map[string]string, len(numbers))
	misses := make([]string, 0, len(numbers))
	for _, number := range numbers {
		if cached, ok := c.Get(number); ok {
			results[number] = cached
			stats.CacheHits++
			continue
		}
		misses = append(misses, number)
	}
	stats.CacheMisses = len(misses)
	cache.CacheHits.WithLabelValues("batch").Add(float64(stats.CacheHits))
	batchLookupsTotal.WithLabelValues("cache_hit").Add(float64(stats.CacheHits))

	if len(misses) == 0 {
		stats.Elapsed = time.Since(start)
		o.finish(span, logger, stats)
		return results, stats, nil
	}

	logger.Info().
		Int("numbers", len(numbers)).
		Int("cache_hits", stats.CacheHits).
		Int("cache_misses", stats.CacheMisses).
		Int("sub_batch_size", o.config.SubBatchSize()).
		Int("effective_concurrency", o.config.EffectiveConcurrency()).
		Msg("Starting batch LRN lookup")

	controller := throttle.NewController(o.config.Throttle)
	res := o.resolver.UsingThrottle(controller)

	var runErr error
	size := o.config.MajorBatchSize
	for i := 0; i < len(misses); i += size {
		chunk := misses[i:min(i+size, len(misses))]

		if err := ctx.Err(); err != nil {
			runErr = err
			o.merge(results, &stats, chunk, make([]string, len(chunk)))
			continue
		}

		chunkStart := time.Now()
		out, network := o.processChunk(ctx, logger, res, i/size, chunk, c)
		stats.NetworkTime += network
		o.merge(results, &stats, chunk, out)

		if done := i + len(chunk); done < len(misses) {
			elapsed := time.Since(chunkStart)
			logger.Info().
				Int("done", done).
				Int("total", len(misses)).
				Float64("progress_pct", float64(done)/float64(len(misses))*100).
				Float64("lookups_per_sec", float64(len(chunk))/max(elapsed.Seconds(), 1e-9)).
				Msg("Batch LRN lookup progress")
		}

		state := controller.Snapshot()
		if o.publisher != nil {
			if err := o.publisher.Publish(ctx, state); err != nil {
				logger.Warn().Err(err).Msg("Failed to publish throttle state")
			}
		}

		pause := o.config.MajorPauseDegraded
		if state.IsHealthy() {
			pause = o.config.MajorPauseHealthy
		}
		_ = o.sleep(ctx, pause)
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	if err := o.store.Save(context.WithoutCancel(ctx), c.Snapshot()); err != nil {
		err = fmt.Errorf("save cache: %w", err)
		logger.Error().Err(err).Msg("Failed to save LRN cache")
		if runErr == nil {
			runErr = err
		}
	}

	stats.Elapsed = time.Since(start)
	stats.Throttle = controller.Snapshot()
	o.finish(span, logger, stats)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	return results, stats, runErr
}

// merge copies chunk results into the run results. Empty slots are
// numbers that were never resolved and become error results. A success
// for a duplicated number is never replaced by an error.
func (o *Orchestrator) merge(results map[string]string, stats *Stats, chunk, out []string) {
	for i, number := range chunk {
		result := out[i]
		if result == "" {
			result = lrn.ErrorResult(number)
		}

		if lrn.IsError(result) {
			stats.Errors++
			batchLookupsTotal.WithLabelValues("error").Inc()
			if prev, ok := results[number]; ok && !lrn.IsError(prev) {
				continue
			}
		} else {
			stats.Successes++
			batchLookupsTotal.WithLabelValues("success").Inc()
		}
		results[number] = result
	}
}

// processChunk resolves one major batch over a fresh session. Failures to
// open the session and panics mark every unresolved number of the chunk as
// failed; the session is closed on every path.
func (o *Orchestrator) processChunk(ctx context.Context, logger zerolog.Logger, res *resolver.Resolver, index int, chunk []string, c *cache.Map) (out []string, network time.Duration) {
	out = make([]string, len(chunk))
	logger = logger.With().Int("major_batch", index).Logger()

	ctx, span := o.tracer.Start(ctx, "batch.chunk", trace.WithAttributes(
		attribute.Int("index", index),
		attribute.Int("numbers", len(chunk)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("major batch panicked: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.failChunk(logger, res, chunk, out, err)
		}
	}()

	session, err := o.endpoint.Open(ctx, o.config.EffectiveConcurrency())
	if err != nil {
		err = fmt.Errorf("open session: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.failChunk(logger, res, chunk, out, err)
		return out, 0
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close LRN session")
		}
	}()

	subSize := o.config.SubBatchSize()
	for j, sub := 0, 0; j < len(chunk); j, sub = j+subSize, sub+1 {
		if ctx.Err() != nil {
			break
		}
		end := min(j+subSize, len(chunk))

		if o.config.MaxConcurrent == 1 {
			network += o.resolveSequential(ctx, res, session, chunk[j:end], out[j:end], c)
		} else {
			network += o.resolveConcurrent(ctx, logger, res, session, chunk[j:end], out[j:end], c)
		}

		state := res.Throttle().Snapshot()
		pause := max(minSubBatchPause, 2*state.Pause)
		if state.IsDegraded() {
			pause = max(minDegradedBatchPause, 2*pause)
		}

		if sub%3 == 0 {
			logger.Info().
				Float64("success_rate", state.SuccessRate).
				Dur("pause", pause).
				Msg("Adaptive throttling")
		}

		_ = o.sleep(ctx, pause)
	}

	return out, network
}

// failChunk marks every unresolved number of a chunk as failed and
// reports each as a failed outcome.
func (o *Orchestrator) failChunk(logger zerolog.Logger, res *resolver.Resolver, chunk, out []string, err error) {
	batchChunkFailuresTotal.Inc()

	failed := 0
	for i, number := range chunk {
		if out[i] != "" {
			continue
		}
		out[i] = lrn.ErrorResult(number)
		res.Throttle().RecordResult(false)
		failed++
	}

	logger.Error().
		Err(err).
		Int("failed", failed).
		Msg("Major batch failed, marking unresolved numbers as errors")
}

// resolveSequential resolves numbers one by one, pausing for the current
// throttle pause after each.
func (o *Orchestrator) resolveSequential(ctx context.Context, res *resolver.Resolver, session resolver.Session, numbers, out []string, c *cache.Map) time.Duration {
	var network time.Duration
	for i, number := range numbers {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		out[i] = res.Resolve(ctx, session, number, c)
		network += time.Since(start)

		_ = o.sleep(ctx, res.Throttle().Pause())
	}
	return network
}

// subBatch tracks the lookups of one concurrent sub-batch. Once closed,
// answers and outcomes of lookups still running are dropped, so every
// number contributes a single outcome.
type subBatch struct {
	mu        sync.Mutex
	closed    bool
	done      []bool
	succeeded []bool
	throttle  *throttle.Controller
}

// lookupRecorder forwards the outcomes of lookup i while its sub-batch is open.
type lookupRecorder struct {
	sub *subBatch
	i   int
}

func (r lookupRecorder) RecordResult(success bool) {
	r.sub.mu.Lock()
	defer r.sub.mu.Unlock()
	if r.sub.closed {
		return
	}
	if success {
		r.sub.succeeded[r.i] = true
	}
	r.sub.throttle.RecordResult(success)
}

// resolveConcurrent resolves numbers in parallel, bounded by the effective
// concurrency, and waits for all of them or the sub-batch timeout. Numbers
// still running at the timeout become error results and failed outcomes;
// their late answers and outcomes are discarded. A number whose success was
// already reported keeps its cached answer.
func (o *Orchestrator) resolveConcurrent(ctx context.Context, logger zerolog.Logger, res *resolver.Resolver, session resolver.Session, numbers, out []string, c *cache.Map) time.Duration {
	start := time.Now()
	subCtx, cancel := context.WithTimeout(ctx, o.config.SubBatchTimeoutDuration())
	defer cancel()

	sem := semaphore.NewWeighted(int64(o.config.EffectiveConcurrency()))
	sub := &subBatch{
		done:      make([]bool, len(numbers)),
		succeeded: make([]bool, len(numbers)),
		throttle:  res.Throttle(),
	}

	var wg sync.WaitGroup
	for i, number := range numbers {
		if err := sem.Acquire(subCtx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()
			defer sem.Release(1)

			rec := lookupRecorder{sub: sub, i: i}
			result := o.resolveSafely(subCtx, logger, res.ReportingTo(rec), rec, session, number, c)

			sub.mu.Lock()
			defer sub.mu.Unlock()
			if sub.closed {
				return
			}
			out[i] = result
			sub.done[i] = true
		}(i, number)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-subCtx.Done():
	}

	sub.mu.Lock()
	sub.closed = true
	unfinished := 0
	for i, number := range numbers {
		if sub.done[i] {
			continue
		}
		if sub.succeeded[i] {
			if cached, ok := c.Get(number); ok {
				out[i] = cached
				continue
			}
		}
		unfinished++
		out[i] = lrn.ErrorResult(number)
		if ctx.Err() == nil {
			sub.throttle.RecordResult(false)
		}
	}
	sub.mu.Unlock()

	if unfinished > 0 && ctx.Err() == nil {
		batchSubBatchTimeoutsTotal.Inc()
		logger.Warn().
			Int("unfinished", unfinished).
			Int("sub_batch", len(numbers)).
			Dur("timeout", o.config.SubBatchTimeoutDuration()).
			Msg("Sub-batch timed out, marking unfinished numbers as errors")
	}

	return time.Since(start)
}

// resolveSafely converts a panicking lookup into a failed one.
func (o *Orchestrator) resolveSafely(ctx context.Context, logger zerolog.Logger, res *resolver.Resolver, rec resolver.Recorder, session resolver.Session, number string, c *cache.Map) (result string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("number", number).
				Interface("panic", r).
				Msg("LRN lookup panicked")
			rec.RecordResult(false)
			result = lrn.ErrorResult(number)
		}
	}()
	return res.Resolve(ctx, session, number, c)
}

func (o *Orchestrator) finish(span trace.Span, logger zerolog.Logger, stats Stats) {
	batchDurationSeconds.Observe(stats.Elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("cache_hits", stats.CacheHits),
		attribute.Int("cache_misses", stats.CacheMisses),
		attribute.Int("successes", stats.Successes),
		attribute.Int("errors", stats.Errors),
	)

	logger.Info().
		Int("requested", stats.Requested).
		Int("cache_hits", stats.CacheHits).
		Int("cache_misses", stats.CacheMisses).
		Int("successes", stats.Successes).
		Int("errors", stats.Errors).
		Float64("success_pct", stats.SuccessPercent()).
		Dur("elapsed", stats.Elapsed).
		Dur("network_time", stats.NetworkTime).
		Dur("overhead", stats.Overhead()).
		Dur("avg_request_time", stats.AvgRequestTime()).
		Float64("rate", stats.Rate()).
		Float64("effective_rate", stats.EffectiveRate()).
		Float64("final_success_rate", stats.Throttle.SuccessRate).
		Dur("final_pause", stats.Throttle.Pause).
		Msg("Batch LRN lookup complete")
}
