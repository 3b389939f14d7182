package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestKeyedSerialisesSameKey(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "report_1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
	if k.Len() != 0 {
		t.Fatalf("slots leaked: %d", k.Len())
	}
}

func TestKeyedIndependentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	unlockA, _ := k.Lock(ctx, "a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := k.Lock(ctx, "b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
}

func TestKeyedHonoursContext(t *testing.T) {
	k := NewKeyed()
	unlock, _ := k.Lock(context.Background(), "a")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRedisLockExcludesAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	a := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, 5*time.Millisecond, nil)
	b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, 5*time.Millisecond, nil)

	unlock, err := a.Lock(context.Background(), "report_1")
	if err != nil {
		t.Fatalf("a.Lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := b.Lock(ctx, "report_1"); err == nil {
		t.Fatalf("b obtained a lock held by a")
	}

	unlock()
	unlockB, err := b.Lock(context.Background(), "report_1")
	if err != nil {
		t.Fatalf("b.Lock after release: %v", err)
	}
	unlockB()
}

func TestRedisLockOutlivesTTLWhileHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	l := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 90*time.Millisecond, 5*time.Millisecond, nil)

	unlock, err := l.Lock(context.Background(), "report_1")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// Two thirds of the lease pass, the holder refreshes in real time, then
	// two more thirds pass.  Without a refresh the key would be gone.
	mr.FastForward(60 * time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	mr.FastForward(60 * time.Millisecond)
	if !mr.Exists("lock:report_1") {
		t.Fatalf("lock expired while still held")
	}

	unlock()
	unlock()
	if mr.Exists("lock:report_1") {
		t.Fatalf("lock still present after unlock")
	}
}

func TestChainReleasesOnFailure(t *testing.T) {
	k := NewKeyed()
	failing := lockerFunc(func(context.Context, string) (Unlock, error) {
		return nil, errors.New("boom")
	})

	if _, err := (Chain{k, failing}).Lock(context.Background(), "x"); err == nil {
		t.Fatalf("expected chain failure")
	}
	if k.Len() != 0 {
		t.Fatalf("local lock not released after chain failure")
	}
}

type lockerFunc func(ctx context.Context, key string) (Unlock, error)

func (f lockerFunc) Lock(ctx context.Context, key string) (Unlock, error) { return f(ctx, key) }
