package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisPublisher shares controller snapshots through Redis so that other
// processes and dashboards can observe the current pacing.
type RedisPublisher struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPublisher creates a publisher. A ttl of 0 keeps the keys forever.
func NewRedisPublisher(redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// Publish stores the snapshot in Redis atomically.
func (p *RedisPublisher) Publish(ctx context.Context, state State) error {
	if p == nil || p.redis == nil {
		return nil
	}

	pipe := p.redis.TxPipeline()
	pipe.Set(ctx, RedisKeySuccessRate, strconv.FormatFloat(state.SuccessRate, 'f', 4, 64), p.ttl)
	pipe.Set(ctx, RedisKeyPauseMillis, state.Pause.Milliseconds(), p.ttl)
	pipe.Set(ctx, RedisKeySamples, state.Samples, p.ttl)
	pipe.Set(ctx, RedisKeyUpdatedAt, state.UpdatedAt.Unix(), p.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}

	p.logger.Debug().
		Float64("success_rate", state.SuccessRate).
		Dur("pause", state.Pause).
		Int("samples", state.Samples).
		Msg("Throttle state published")

	return nil
}

// Load reads the last published snapshot. It returns a zero State and no
// error when nothing has been published yet.
func (p *RedisPublisher) Load(ctx context.Context) (State, error) {
	rateStr, err := p.redis.Get(ctx, RedisKeySuccessRate).Result()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get success rate: %w", err)
	}

	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return State{}, fmt.Errorf("parse success rate: %w", err)
	}

	pauseMs, err := p.redis.Get(ctx, RedisKeyPauseMillis).Int64()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get pause: %w", err)
	}

	samples, err := p.redis.Get(ctx, RedisKeySamples).Int()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get samples: %w", err)
	}

	updatedAt, err := p.redis.Get(ctx, RedisKeyUpdatedAt).Int64()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get updated at: %w", err)
	}

	return State{
		SuccessRate: rate,
		Pause:       time.Duration(pauseMs) * time.Millisecond,
		Samples:     samples,
		UpdatedAt:   time.Unix(updatedAt, 0),
	}, nil
}
