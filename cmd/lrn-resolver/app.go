package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/lrn-resolver/internal/config"
	"github.com/Sternrassler/lrn-resolver/pkg/batch"
	"github.com/Sternrassler/lrn-resolver/pkg/cache"
	"github.com/Sternrassler/lrn-resolver/pkg/logging"
	"github.com/Sternrassler/lrn-resolver/pkg/resolver"
	"github.com/Sternrassler/lrn-resolver/pkg/throttle"
	"github.com/redis/go-redis/v9"
)

// throttleStateTTL bounds how long a published throttle snapshot stays visible.
const throttleStateTTL = 10 * time.Minute

// app holds the components shared by the subcommands.
type app struct {
	store        cache.Store
	ping         func(ctx context.Context) error
	endpoint     resolver.Endpoint
	resolver     *resolver.Resolver
	orchestrator *batch.Orchestrator
	closers      []func() error
}

// newApp wires the store, endpoint, resolver and orchestrator from cfg.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		a.closers = append(a.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisURL, err)
		}
	}

	switch cfg.CacheBackend {
	case config.BackendRedis:
		store := cache.NewRedisStore(redisClient, cfg.CacheRedisKey)
		a.store, a.ping = store, store.Ping
	case config.BackendPostgres:
		db, err := cache.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		store, err := cache.NewPostgresStore(db)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store, a.ping = store, store.Ping
	case config.BackendMemory:
		a.store = cache.NewMemoryStore(nil)
	default:
		a.store = cache.NewFileStore(cfg.CacheFile)
	}

	endpoint, err := resolver.NewHTTPEndpoint(cfg.HTTP())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	a.endpoint = endpoint

	// Single lookups share this controller; every batch run creates its own.
	controller := throttle.NewController(throttle.DefaultConfig())
	a.resolver = resolver.New(cfg.Resolver(), controller,
		resolver.WithLogger(logging.NewLogger(logging.ComponentResolver)))

	opts := []batch.Option{batch.WithLogger(logging.NewLogger(logging.ComponentBatch))}
	if cfg.ThrottlePublish {
		pub := throttle.NewRedisPublisher(redisClient, throttleStateTTL, logging.NewLogger(logging.ComponentBatch))
		opts = append(opts, batch.WithPublisher(pub))
	}
	a.orchestrator = batch.NewOrchestrator(a.resolver, a.endpoint, a.store, cfg.Batch(), opts...)

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
