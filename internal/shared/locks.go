package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another process owns the critical section.
var ErrLockHeld = errors.New("finance lock held")

// Unlock releases a previously acquired lock.
type Unlock func(ctx context.Context) error

// Locker serialises finance critical sections such as period close runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

// FinanceLockKey builds redis keys for finance critical sections.
func FinanceLockKey(tenantID, periodID int64) string {
	return fmt.Sprintf("finance:%d:period:%d:lock", tenantID, periodID)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker implements Locker with SET NX and a token-checked release.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker constructs the locker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock or returns ErrLockHeld.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis locker not initialised")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

// LocalLocker is an in-process Locker used with the memory data source.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	seq  uint64
	now  func() time.Time
}

type localHold struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker constructs the locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

// Acquire takes the lock or returns ErrLockHeld. Expired holds are reclaimed;
// a non-positive ttl never expires.
func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if hold, ok := l.held[key]; ok && (hold.expires.IsZero() || now.Before(hold.expires)) {
		return nil, ErrLockHeld
	}
	l.seq++
	hold := localHold{token: l.seq}
	if ttl > 0 {
		hold.expires = now.Add(ttl)
	}
	l.held[key] = hold
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if current, ok := l.held[key]; ok && current.token == hold.token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
