// Package lock provides a Redis-backed mutual exclusion lock for periodic jobs
// that must run on a single server replica at a time.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"mteval/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultTTL      = 30 * time.Second
	acquireTimeout  = 5 * time.Second
	renewInterval   = 10 * time.Second
	maxHoldDuration = 2 * time.Minute

	releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	renewScript   = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`
)

// DistributedLock is held by at most one process at a time
type DistributedLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
}

// RedisLock SET NX based lock with background renewal.
// A nil client degrades to single-instance mode where TryLock always succeeds.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration

	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
	stopRenew  chan struct{}
}

// NewRedisLock creates a lock on key
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLock{
		client: client,
		key:    key,
		value:  ownerToken(key),
		ttl:    ttl,
	}
}

func ownerToken(key string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", key, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", key, hex.EncodeToString(buf))
}

// TryLock attempts to take the lock without waiting for it
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	if l.client == nil {
		l.mu.Lock()
		l.held = true
		l.mu.Unlock()
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s held by another instance", l.key)
		return false, nil
	}

	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = make(chan struct{})
	stop := l.stopRenew
	l.mu.Unlock()

	go l.renew(ctx, stop)
	return true, nil
}

// Unlock releases the lock if this instance still owns it
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held && l.stopRenew == nil {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	if l.client == nil {
		return nil
	}

	released, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if released == 0 {
		logger.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

// IsHeld reports whether this instance believes it owns the lock
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RedisLock) renew(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			holding := time.Since(l.acquiredAt)
			l.mu.Unlock()
			if holding > maxHoldDuration {
				logger.WarnCtx(ctx, "lock %s held for %.0fs, no longer renewing", l.key, holding.Seconds())
				l.markLost()
				return
			}

			renewed, err := l.client.Eval(ctx, renewScript, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			if err != nil || renewed == 0 {
				logger.WarnCtx(ctx, "lock %s lost during renewal: %v", l.key, err)
				l.markLost()
				return
			}
		}
	}
}

func (l *RedisLock) markLost() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

// RunExclusive runs fn only if lock can be taken; ran is false when another instance holds it
func RunExclusive(ctx context.Context, l DistributedLock, fn func(ctx context.Context) error) (ran bool, err error) {
	if l == nil {
		return true, fn(ctx)
	}
	acquired, err := l.TryLock(ctx)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		if unlockErr := l.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			logger.WarnCtx(ctx, "%v", unlockErr)
		}
	}()
	return true, fn(ctx)
}
