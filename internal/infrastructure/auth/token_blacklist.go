package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist defines the interface for token blacklisting operations.
// It is used to invalidate JWT tokens before they expire (e.g., when an
// operator account is disabled).
type TokenBlacklist interface {
	// AddToBlacklist adds a token's JTI (JWT ID) to the blacklist.
	// ttl should be set to the remaining time until token expiration.
	AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error

	// IsBlacklisted checks if a token's JTI is in the blacklist
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// InvalidateOperatorTokens invalidates all tokens for an operator.
	// Tokens issued before the invalidation timestamp are rejected.
	InvalidateOperatorTokens(ctx context.Context, operatorID int64, ttl time.Duration) error

	// IsOperatorTokenInvalidated checks whether a token issued at the
	// given time has been swept by an operator-wide invalidation
	IsOperatorTokenInvalidated(ctx context.Context, operatorID int64, tokenIssuedAt time.Time) (bool, error)
}

// RedisTokenBlacklist implements TokenBlacklist using Redis
type RedisTokenBlacklist struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTokenBlacklist creates a token blacklist with an existing Redis client
func NewRedisTokenBlacklist(client *redis.Client) *RedisTokenBlacklist {
	return &RedisTokenBlacklist{
		client:    client,
		keyPrefix: "token:blacklist:",
	}
}

func (b *RedisTokenBlacklist) jtiKey(jti string) string {
	return b.keyPrefix + "jti:" + jti
}

func (b *RedisTokenBlacklist) operatorKey(operatorID int64) string {
	return b.keyPrefix + "operator:" + strconv.FormatInt(operatorID, 10)
}

// AddToBlacklist adds a token's JTI to the blacklist
func (b *RedisTokenBlacklist) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsBlacklisted checks if a token's JTI is in the blacklist
func (b *RedisTokenBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, b.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}

// InvalidateOperatorTokens stores the current timestamp under the operator
// key; any token issued before it is considered invalid
func (b *RedisTokenBlacklist) InvalidateOperatorTokens(ctx context.Context, operatorID int64, ttl time.Duration) error {
	value := strconv.FormatInt(time.Now().Unix(), 10)
	if err := b.client.Set(ctx, b.operatorKey(operatorID), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to invalidate operator tokens: %w", err)
	}
	return nil
}

// IsOperatorTokenInvalidated checks whether the operator key holds a
// timestamp at or after the token's issue time
func (b *RedisTokenBlacklist) IsOperatorTokenInvalidated(ctx context.Context, operatorID int64, tokenIssuedAt time.Time) (bool, error) {
	value, err := b.client.Get(ctx, b.operatorKey(operatorID)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to check operator token invalidation: %w", err)
	}

	invalidatedAt, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return false, fmt.Errorf("corrupt operator invalidation timestamp: %w", err)
	}

	return tokenIssuedAt.Unix() <= invalidatedAt, nil
}

// InMemoryTokenBlacklist implements TokenBlacklist in process memory.
// Intended for tests and single-instance development setups.
type InMemoryTokenBlacklist struct {
	mu            sync.RWMutex
	jtis          map[string]time.Time
	invalidations map[int64]time.Time
}

// NewInMemoryTokenBlacklist creates an in-memory token blacklist
func NewInMemoryTokenBlacklist() *InMemoryTokenBlacklist {
	return &InMemoryTokenBlacklist{
		jtis:          make(map[string]time.Time),
		invalidations: make(map[int64]time.Time),
	}
}

// AddToBlacklist adds a token's JTI to the blacklist
func (b *InMemoryTokenBlacklist) AddToBlacklist(_ context.Context, jti string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jtis[jti] = time.Now().Add(ttl)
	return nil
}

// IsBlacklisted checks if a token's JTI is in the blacklist
func (b *InMemoryTokenBlacklist) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	b.mu.RLock()
	expiry, ok := b.jtis[jti]
	b.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		b.mu.Lock()
		delete(b.jtis, jti)
		b.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// InvalidateOperatorTokens invalidates all tokens for an operator
func (b *InMemoryTokenBlacklist) InvalidateOperatorTokens(_ context.Context, operatorID int64, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidations[operatorID] = time.Now()
	return nil
}

// IsOperatorTokenInvalidated checks whether a token issued at the given
// time has been swept by an operator-wide invalidation
func (b *InMemoryTokenBlacklist) IsOperatorTokenInvalidated(_ context.Context, operatorID int64, tokenIssuedAt time.Time) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	invalidatedAt, ok := b.invalidations[operatorID]
	if !ok {
		return false, nil
	}
	return !tokenIssuedAt.After(invalidatedAt), nil
}
