package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 2 * time.Hour

// Lock coordinates exclusive job runs across processes.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock implements Lock using Redis SETNX + TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches. The check and
// the delete run as one script, so an expired lock taken over by another
// owner is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.CompareAndDelete(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// LockKey names the cross-process lock of one job.
func LockKey(env, job string) string {
	if env == "" {
		env = "local"
	}
	return "prospect:lock:" + env + ":" + job
}

// Guard admits one run of a job at a time. The in-process mutex covers
// overlapping triggers; the optional distributed lock covers other replicas.
type Guard struct {
	mu     sync.Mutex
	remote Lock
}

func NewGuard(remote Lock) *Guard {
	return &Guard{remote: remote}
}

// TryRun runs fn unless another run holds the guard. ran is false when skipped.
func (g *Guard) TryRun(ctx context.Context, fn func(ctx context.Context) error) (ran bool, err error) {
	if !g.mu.TryLock() {
		return false, nil
	}
	defer g.mu.Unlock()

	if g.remote != nil {
		ok, err := g.remote.Acquire(ctx)
		if err != nil {
			return false, fmt.Errorf("lock acquire: %w", err)
		}
		if !ok {
			return false, nil
		}
		defer func() {
			// release even when the job's context was canceled
			_ = g.remote.Release(context.WithoutCancel(ctx))
		}()
	}
	return true, fn(ctx)
}
