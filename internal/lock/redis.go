package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBusy is returned when the distributed lock could not be obtained
// within the retry budget.  Callers surface it as a retryable failure so
// at-least-once event delivery tries again later.
var ErrBusy = errors.New("lock: record busy")

// Redis is a distributed Locker.  Keys are namespaced with "lock:".
type Redis struct {
	locker  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	log     *zap.SugaredLogger
}

// NewRedis wraps a go-redis client.  ttl bounds how long a crashed holder
// can block others; a live holder refreshes it until unlock.  backoff paces
// retries while ctx allows.
func NewRedis(client redis.UniversalClient, ttl, backoff time.Duration, log *zap.SugaredLogger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	if log == nil {
		log = zap.S()
	}
	return &Redis{locker: redislock.New(client), ttl: ttl, backoff: backoff, log: log}
}

// Lock implements Locker.  Retries continue until ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	l, err := r.locker.Obtain(ctx, "lock:"+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.backoff),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(l, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release uses a fresh context so a cancelled request still frees
			// the key promptly instead of waiting for the TTL.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.log.Warnw("redis lock release failed", "key", key, "err", err)
			}
		})
	}, nil
}

// keepAlive extends the lease every third of the TTL until stop closes, so
// a holder stuck behind slow store calls keeps exclusive access.  A crashed
// holder stops refreshing and the key expires after one TTL.
func (r *Redis) keepAlive(l *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl / 3
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := l.Refresh(ctx, r.ttl, nil)
			cancel()
			if errors.Is(err, redislock.ErrNotObtained) {
				r.log.Warnw("redis lock lost before release", "key", key)
				return
			}
			if err != nil {
				r.log.Warnw("redis lock refresh failed", "key", key, "err", err)
			}
		}
	}
}
