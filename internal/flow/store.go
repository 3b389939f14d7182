// internal/flow/store.go
//
// Session storage.
//
// Context
// -------
// MemoryStore keeps sessions in a sync.Map and a background evictor drops
// those idle longer than the TTL, so abandoned conversations do not pile
// up.  RedisStore (redis.go) is the multi-instance alternative.
//
// Notes
// -----
//   - Sessions are copied in and out; callers never share a *Session.
//   - Close stops the evictor.
package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/metrics"
)

// ErrNoSession is returned by Get when the id has no live session.
var ErrNoSession = errors.New("flow: no session")

// Store persists sessions between inputs.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// Defaults for MemoryStore.
const (
	IdleTTL       = 30 * time.Minute
	EvictInterval = time.Minute
)

type entry struct {
	session  Session
	lastSeen int64 // UnixNano
}

// MemoryStore is an in-process Store with idle eviction.
type MemoryStore struct {
	m       sync.Map
	idleTTL time.Duration
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
	log     *zap.SugaredLogger
	now     func() time.Time
}

// NewMemoryStore starts a store whose sessions expire after idleTTL.
func NewMemoryStore(idleTTL, evictEvery time.Duration, log *zap.SugaredLogger) *MemoryStore {
	if idleTTL <= 0 {
		idleTTL = IdleTTL
	}
	if evictEvery <= 0 {
		evictEvery = EvictInterval
	}
	if log == nil {
		log = zap.S()
	}
	s := &MemoryStore{
		idleTTL: idleTTL,
		ticker:  time.NewTicker(evictEvery),
		done:    make(chan struct{}),
		log:     log,
		now:     time.Now,
	}
	go s.evictLoop()
	return s
}

// Get implements Store.  An idle-expired session is treated as absent even
// before the evictor has run.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	v, ok := s.m.Load(id)
	if !ok {
		return Session{}, ErrNoSession
	}
	ent := v.(*entry)
	if s.now().UnixNano()-ent.lastSeen > int64(s.idleTTL) {
		s.remove(id)
		return Session{}, ErrNoSession
	}
	return ent.session, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	_, loaded := s.m.Swap(sess.ID, &entry{session: sess, lastSeen: s.now().UnixNano()})
	if !loaded {
		metrics.FlowSessions.Inc()
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.remove(id)
	return nil
}

func (s *MemoryStore) remove(id string) {
	if _, loaded := s.m.LoadAndDelete(id); loaded {
		metrics.FlowSessions.Dec()
	}
}

// Close stops the evictor.
func (s *MemoryStore) Close() {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
}

func (s *MemoryStore) evictLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.evict()
		}
	}
}

// evict removes sessions idle longer than the TTL.
func (s *MemoryStore) evict() {
	now := s.now().UnixNano()
	s.m.Range(func(key, value any) bool {
		idle := time.Duration(now - value.(*entry).lastSeen)
		if idle > s.idleTTL {
			s.remove(key.(string))
			s.log.Debugw("flow session evicted", "session", key, "idle", idle.Truncate(time.Second))
		}
		return true
	})
}
