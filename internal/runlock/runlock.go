// Package runlock keeps one pipeline run per category at a time across processes.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/order-intake/internal/common"
)

// Release gives a held lock back.
type Release func(ctx context.Context) error

type Locker interface {
	// Acquire fails with an error wrapping common.ErrRunInProgress when
	// another holder has key.
	Acquire(ctx context.Context, key string) (Release, error)
}

// Noop grants every request. Used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{locker: redislock.New(rdb), ttl: ttl, prefix: "order-intake:run:", logger: logger}
}

// Connect pings addr and returns a Redis locker over it.
func Connect(ctx context.Context, cfg common.RedisConfig, logger *slog.Logger) (*Redis, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedis(rdb, cfg.LockTTL, logger), rdb, nil
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	lock, err := r.locker.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		r.logger.Warn("runlock.busy", "key", key)
		return nil, fmt.Errorf("%w: %s", common.ErrRunInProgress, key)
	}
	if err != nil {
		r.logger.Error("runlock.obtain.failed", "key", key, "error", err)
		return nil, fmt.Errorf("obtain run lock %s: %w", key, err)
	}
	r.logger.Debug("runlock.obtained", "key", key, "ttl", r.ttl.String())
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
