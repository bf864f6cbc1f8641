package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// DefaultLockTTL is used when no TTL is configured
const DefaultLockTTL = 30 * time.Second

// RedisConfig holds connection settings for the shared lock
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisLocker shares the guard between server replicas. Held locks are
// refreshed at a third of the TTL until released.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisClient connects a go-redis client from cfg
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisLocker wraps client with redislock
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		logger: logger,
	}
}

type redisLease struct {
	key    string
	lock   *redislock.Lock
	logger *slog.Logger
	lost   atomic.Bool
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Acquire obtains the key once without retrying
func (r *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	lock, err := r.client.Obtain(ctx, key, r.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain redis lock %s: %w", key, err)
	}

	lease := &redisLease{
		key:    key,
		lock:   lock,
		logger: r.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive(r.ttl)
	return lease, nil
}

func (l *redisLease) Err() error {
	if l.lost.Load() {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

func (l *redisLease) Release() {
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		if l.lost.Load() {
			return
		}
		// Release must run even when the request context is gone
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn(fmt.Sprintf("⚠️  Failed to release lock %s: %v", l.key, err))
		}
	})
}

func (l *redisLease) keepAlive(ttl time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			err := l.lock.Refresh(ctx, ttl, nil)
			cancel()
			if !l.refreshed(err) {
				return
			}
		}
	}
}

// refreshed records the outcome of one refresh and reports whether to keep
// refreshing. Transient errors are retried on the next tick.
func (l *redisLease) refreshed(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, redislock.ErrNotObtained):
		l.lost.Store(true)
		l.logger.Error(fmt.Sprintf("❌ Lock %s expired or was taken over", l.key))
		return false
	default:
		l.logger.Warn(fmt.Sprintf("⚠️  Failed to refresh lock %s: %v", l.key, err))
		return true
	}
}
