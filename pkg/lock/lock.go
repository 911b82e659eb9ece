// Package lock provides the per-(tenant, job) lease taken before every scheduled tick.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// ErrNotAcquired means another node currently holds the lease.
var ErrNotAcquired = errors.New("lease is held by another node")

// Lease is a held lock. Unlock is safe to call after the lease expired.
type Lease interface {
	Unlock(ctx context.Context) error
}

type Locker interface {
	// TryLock makes a single attempt and returns ErrNotAcquired on contention.
	TryLock(ctx context.Context, key string) (Lease, error)
}

// Key is the lease name for a tenant's job.
func Key(tenantID, jobName string) string {
	return fmt.Sprintf("eventrelay:%s:%s", tenantID, jobName)
}

type RedisLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewRedisLocker builds a redsync locker on client. expiry should exceed the
// longest expected tick; it defaults to one minute.
func NewRedisLocker(client *goredislib.Client, expiry time.Duration) *RedisLocker {
	if expiry <= 0 {
		expiry = time.Minute
	}
	pool := goredis.NewPool(client)
	return &RedisLocker{rs: redsync.New(pool), expiry: expiry}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return nil, errors.New("lock key cannot be empty")
	}

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(1),
	)
	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			return nil, ErrNotAcquired
		}
		return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	return &redisLease{mutex: mutex}, nil
}

func isContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

type redisLease struct {
	mutex *redsync.Mutex
}

func (l *redisLease) Unlock(ctx context.Context) error {
	if _, err := l.mutex.UnlockContext(ctx); err != nil && !errors.Is(err, redsync.ErrLockAlreadyExpired) {
		return fmt.Errorf("failed to release lease %s: %w", l.mutex.Name(), err)
	}
	return nil
}

// NoopLocker always grants the lease. It is used when no Redis is configured
// and a single worker process is assumed.
type NoopLocker struct{}

func (NoopLocker) TryLock(context.Context, string) (Lease, error) {
	return noopLease{}, nil
}

type noopLease struct{}

func (noopLease) Unlock(context.Context) error { return nil }
