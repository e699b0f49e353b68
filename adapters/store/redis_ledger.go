package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/layer-3/tessera/ports"
	"github.com/redis/go-redis/v9"
)

var _ ports.RevocationLedger = (*RedisLedger)(nil)

// RedisLedger is a Redis implementation of the RevocationLedger interface.
// Each token is a key holding its remaining lifetime as TTL, so Redis drops
// expired entries on its own.
type RedisLedger struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLedger creates a new Redis ledger
func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: "tessera:ledger:",
		now:    time.Now,
	}
}

// key returns the Redis key for token; the raw value is never stored
func (l *RedisLedger) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return l.prefix + hex.EncodeToString(sum[:])
}

// Record adds a token to the ledger with a TTL equal to its remaining lifetime.
// A token that has already expired is not recorded.
func (l *RedisLedger) Record(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	if err := l.client.Set(ctx, l.key(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	return nil
}

// Revoke removes a token from the ledger
func (l *RedisLedger) Revoke(ctx context.Context, token string) error {
	if err := l.client.Del(ctx, l.key(token)).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// Contains checks if a token is in the ledger
func (l *RedisLedger) Contains(ctx context.Context, token string) (bool, error) {
	val, err := l.client.Exists(ctx, l.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token: %w", err)
	}
	return val > 0, nil
}

// Sweep is a no-op: Redis expires ledger keys through their TTL
func (l *RedisLedger) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
