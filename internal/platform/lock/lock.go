package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained indicates the lock is held elsewhere and the wait budget ran out.
var ErrNotObtained = errors.New("platform/lock: not obtained")

// Locker serialises work keyed by a string across callers.
type Locker interface {
	// Acquire blocks until the key is held or ctx ends. The returned func releases it.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DocumentKey builds the lock key for the approve, post and fanout chain of a document.
func DocumentKey(documentID string) string {
	return fmt.Sprintf("gl:document:%s:lock", documentID)
}

// RedisLocker holds locks in Redis so several service instances serialise on the same key.
// A held lock is refreshed every third of its TTL until released, so a fanout that runs
// longer than LOCK_TTL keeps it.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	wait    time.Duration
	refresh time.Duration
	logger  *slog.Logger
}

// NewRedisLocker builds a Redis backed locker.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		backoff: 50 * time.Millisecond,
		wait:    ttl,
		refresh: max(ttl/3, time.Millisecond),
		logger:  slog.Default(),
	}
}

// Acquire obtains the key, retrying linearly until the wait budget or ctx expires.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	held, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(held, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = held.Release(context.WithoutCancel(ctx))
		})
	}, nil
}

// keepAlive extends the TTL of held until stop closes or the lock is lost.
func (l *RedisLocker) keepAlive(held *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), l.refresh)
			err := held.Refresh(refreshCtx, l.ttl, nil)
			cancel()
			if err != nil {
				l.logger.Warn("document lock lost", slog.String("key", key), slog.Any("error", err))
				return
			}
		}
	}
}

// LocalLocker is an in-process keyed mutex for single instance deployments and tests.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker builds an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

// Acquire blocks until the key is free or ctx ends.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(key, s)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
