package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces ledger keys so the dedup markers never collide with
// other tenants of the same Redis instance.
const keyPrefix = "capi:chat-threshold:"

// RedisLedger implements Ledger on a Redis key-value store. Markers are
// plain string keys holding the dispatch timestamp with a TTL; reconnection
// on connection drop is handled by the client library.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
}

// Open connects to Redis at the given URL and verifies the connection before
// returning. The returned ledger owns the client and closes it on Close.
func Open(redisURL string, ttl time.Duration) (*RedisLedger, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client, ttl), nil
}

// New wraps an existing Redis client. Tests use this with miniredis.
func New(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLedger{client: client, ttl: ttl}
}

// Exists reports whether a dispatched marker is present for the pair.
func (l *RedisLedger) Exists(ctx context.Context, sessionID, experiment string) (bool, error) {
	n, err := l.client.Exists(ctx, dispatchKey(sessionID, experiment)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger existence check: %w", err)
	}
	return n > 0, nil
}

// MarkDispatched writes the dispatched marker with the configured TTL. The
// stored value is the dispatch timestamp; beyond existence it is only read
// by humans debugging the store.
func (l *RedisLedger) MarkDispatched(ctx context.Context, sessionID, experiment string, when time.Time) error {
	key := dispatchKey(sessionID, experiment)
	if err := l.client.Set(ctx, key, when.UTC().Format(time.RFC3339), l.ttl).Err(); err != nil {
		return fmt.Errorf("ledger mark %s: %w", key, err)
	}
	return nil
}

// Ping verifies the Redis connection is alive.
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ledger ping: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func dispatchKey(sessionID, experiment string) string {
	return keyPrefix + experiment + ":" + sessionID
}

var _ Ledger = (*RedisLedger)(nil)
