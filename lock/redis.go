// Package lock provides a Redis-backed inventory.Locker so heal passes for the
// same identity do not overlap across server replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/crm-inventory/inventory"
)

const (
	DefaultTTL = 30 * time.Second
	keyPrefix  = "lock:heal:"
)

// obtainer is the part of *redislock.Client the Locker uses.
type obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// Redis implements inventory.Locker with bsm/redislock.
type Redis struct {
	client obtainer
	TTL    time.Duration
	Logger *logrus.Logger

	// release is swapped in tests; nil means (*redislock.Lock).Release.
	release func(ctx context.Context, l *redislock.Lock) error
}

var _ inventory.Locker = (*Redis)(nil)

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, logger *logrus.Logger) *Redis {
	return &Redis{client: redislock.New(rdb), TTL: DefaultTTL, Logger: logger}
}

// Connect dials addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock obtains the heal lock for key without waiting. A lock held elsewhere
// returns inventory.ErrLockNotObtained.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, err := r.client.Obtain(ctx, keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain heal lock %s: %w", key, err)
	}

	return func() {
		// The heal's ctx may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.releaseLock(rctx, l); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) && r.Logger != nil {
			r.Logger.WithError(err).WithField("key", key).Warn("failed to release redis lock")
		}
	}, nil
}

func (r *Redis) releaseLock(ctx context.Context, l *redislock.Lock) error {
	if r.release != nil {
		return r.release(ctx, l)
	}
	return l.Release(ctx)
}
