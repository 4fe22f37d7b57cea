package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	stockapp "github.com/mallstock/backend/internal/application/stock"
	"github.com/mallstock/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "stock_lock:"

// releaseScript deletes the lock key only when it still carries our token,
// so a lease that expired and was re-acquired by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLockManager implements LockManager on Redis SETNX leases. Each lease
// carries a random token and expires after its TTL. When Redis is
// unreachable the manager degrades to process-local locking, which keeps a
// single instance correct and is logged loudly so operators notice.
type RedisLockManager struct {
	client       *redis.Client
	local        *LocalLockRegistry
	pollInterval time.Duration
	allowLocal   bool
	logger       *zap.Logger
}

// RedisLockManagerOption is a functional option for configuring the manager
type RedisLockManagerOption func(*RedisLockManager)

// WithLockLogger sets the logger for the lock manager
func WithLockLogger(logger *zap.Logger) RedisLockManagerOption {
	return func(m *RedisLockManager) {
		m.logger = logger
	}
}

// WithPollInterval sets how often a blocked caller re-attempts SETNX
func WithPollInterval(d time.Duration) RedisLockManagerOption {
	return func(m *RedisLockManager) {
		m.pollInterval = d
	}
}

// WithLocalFallback controls whether the manager degrades to process-local
// locks when Redis is unavailable. Default is true.
func WithLocalFallback(allow bool) RedisLockManagerOption {
	return func(m *RedisLockManager) {
		m.allowLocal = allow
	}
}

// NewRedisLockManager creates a lock manager on top of an existing client.
// A nil client is allowed and forces local fallback, which is useful for
// single-instance deployments without Redis.
func NewRedisLockManager(client *redis.Client, opts ...RedisLockManagerOption) *RedisLockManager {
	m := &RedisLockManager{
		client:       client,
		local:        NewLocalLockRegistry(),
		pollInterval: 50 * time.Millisecond,
		allowLocal:   true,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire obtains the lock for key, waiting up to wait for the current
// holder to release it. The lease expires on its own after ttl.
func (m *RedisLockManager) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (stockapp.Lock, error) {
	if m.client == nil {
		return m.acquireLocal(ctx, key, wait, nil)
	}

	fullKey := lockKeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := m.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return m.acquireLocal(ctx, key, wait, err)
		}
		if ok {
			return &redisLock{
				manager: m,
				key:     key,
				fullKey: fullKey,
				token:   token,
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, shared.ErrLockTimeout.WithMessage("lock wait window elapsed for key " + key)
		}

		timer := time.NewTimer(m.pollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (m *RedisLockManager) acquireLocal(ctx context.Context, key string, wait time.Duration, cause error) (stockapp.Lock, error) {
	if !m.allowLocal {
		return nil, shared.ErrPersistence.WithMessage("distributed lock backend unavailable")
	}
	m.logger.Warn("Redis unavailable, using process-local lock",
		zap.String("key", key),
		zap.Error(cause),
	)
	return m.local.Acquire(ctx, key, wait)
}

// redisLock is a held Redis lease
type redisLock struct {
	manager *RedisLockManager
	key     string
	fullKey string
	token   string
}

// Key returns the lock key
func (l *redisLock) Key() string {
	return l.key
}

// Release deletes the lease if it still belongs to this holder
func (l *redisLock) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, l.manager.client, []string{l.fullKey}, l.token).Int()
	if err != nil {
		return err
	}
	if released == 0 {
		l.manager.logger.Warn("lock lease expired before release",
			zap.String("key", l.key),
		)
	}
	return nil
}

// Ensure RedisLockManager implements LockManager
var _ stockapp.LockManager = (*RedisLockManager)(nil)
