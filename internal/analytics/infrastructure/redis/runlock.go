package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hydromet-cloud/internal/analytics/domain/rollup"
)

const defaultLockKey = "hydromet:rollup:run-lock"

// RunLock serializes rollup runs across processes with a Redis SET NX lock.
// The TTL bounds how long a crashed holder can block the next run.
type RunLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

// LockOption configures the run lock.
type LockOption func(*RunLock)

// WithLockKey overrides the lock key.
func WithLockKey(key string) LockOption {
	return func(l *RunLock) {
		if key != "" {
			l.key = key
		}
	}
}

// WithLockTTL overrides the lock TTL.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(l *RunLock) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// NewRunLock constructs a run lock on an existing Redis client.
func NewRunLock(client *redis.Client, opts ...LockOption) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("runlock: nil redis client")
	}
	lock := &RunLock{
		client: client,
		key:    defaultLockKey,
		ttl:    10 * time.Minute,
	}
	for _, opt := range opts {
		opt(lock)
	}
	return lock, nil
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("runlock: redis connect: %w", err)
	}
	return client, nil
}

// TryAcquire takes the lock or returns rollup.ErrLockHeld.
func (l *RunLock) TryAcquire(ctx context.Context) (func(), error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("runlock: acquire: %w", err)
	}
	if !ok {
		return nil, rollup.ErrLockHeld
	}
	l.token = token
	release := func() {
		// Release only our own token; a lock that expired and was re-taken
		// by another run must not be deleted from here.
		const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
		_ = l.client.Eval(context.Background(), script, []string{l.key}, token).Err()
	}
	return release, nil
}
