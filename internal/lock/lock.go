// Package lock serialises work per key.
//
// Keyed is an in-process mutex table; Redis adds cross-instance exclusion
// through bsm/redislock.  Chain combines them so a process first queues
// locally and only then competes with other instances, keeping Redis
// traffic to one waiter per key per process.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/publicpulse/pulse/internal/metrics"
)

// Unlock releases a held lock.  It is safe to call once.
type Unlock func()

// Locker acquires an exclusive lock on key, blocking until it is held or
// ctx ends.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

//
// In-process keyed mutex
//

type slot struct {
	ch   chan struct{} // capacity 1; a token in the channel means "free"
	refs int
}

// Keyed hands out one lock per key and frees the slot once nobody holds or
// waits for it, so the table never grows with the number of ids seen.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

// NewKeyed returns an empty table.
func NewKeyed() *Keyed {
	return &Keyed{slots: make(map[string]*slot)}
}

// Lock implements Locker.
func (k *Keyed) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()

	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		s.ch <- struct{}{}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case <-s.ch:
	case <-ctx.Done():
		k.release(key, s, false)
		return nil, ctx.Err()
	}
	metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() { once.Do(func() { k.release(key, s, true) }) }, nil
}

func (k *Keyed) release(key string, s *slot, held bool) {
	if held {
		s.ch <- struct{}{}
	}
	k.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

//
// Composition
//

// Chain acquires each Locker in order and releases in reverse.
type Chain []Locker

// Lock implements Locker.
func (c Chain) Lock(ctx context.Context, key string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	for _, l := range c {
		u, err := l.Lock(ctx, key)
		if err != nil {
			for i := len(held) - 1; i >= 0; i-- {
				held[i]()
			}
			return nil, err
		}
		held = append(held, u)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}, nil
}
