// internal/syncer/syncer.go
//
// Record Synchronizer: the one place where the Primary Store and the
// Relational Mirror are reconciled.
//
// Context
// -------
// Five call sites write complaint state:
//
//	operator edit        PATCH /api/admin/complaints/{id}  → ApplyLocalEdit
//	status-change API    POST  /api/status                 → ChangeStatus
//	change-event ingress POST  /api/events(/pubsub)        → ApplyEvent
//	manual resync        POST  /api/sync, pulsectl pull    → Pull
//	bulk resync          pulsectl resync                   → Resync
//
// Every one of them funnels through a Synchronizer so merge rules, ordering
// tolerance, and transition detection exist exactly once.  Writes for one id
// are serialised through a lock.Locker; writes for different ids run in
// parallel.
//
// Transition detection
// --------------------
// The status before a write is the Mirror row's status (or the previous
// payload of an event when no row existed); the status after is the merged
// record's.  When they differ the Notifier is invoked, after the lock is
// released, so a slow mail server never holds a record hostage.  Because an
// operator edit updates the Mirror before the Primary Store echoes the same
// change back as an event, the echo sees no status movement and the
// submitter is told exactly once.
//
// Notes
// -----
//   - Primary Store errors are reported to callers; Mirror errors on the
//     intake hook are logged by the caller, never fatal.
//   - Deletes leave a timestamped Mirror tombstone; see ApplyEvent.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/publicpulse/pulse/internal/lock"
	"github.com/publicpulse/pulse/internal/mirror"
	"github.com/publicpulse/pulse/internal/primary"
	"github.com/publicpulse/pulse/internal/record"
)

//
// Errors
//

var (
	// ErrNotFound is returned when the id is absent from the store a call
	// reads from (Mirror for local edits, Primary Store for pulls).
	ErrNotFound = errors.New("syncer: record not found")

	// Validation errors.  IsValidation reports any of them.
	ErrMissingID             = errors.New("syncer: document id is required")
	ErrInvalidAction         = errors.New("syncer: unknown action")
	ErrInvalidStatus         = errors.New("syncer: unknown status")
	ErrInvalidPayload        = errors.New("syncer: invalid payload")
	ErrEmptyPatch            = errors.New("syncer: patch carries no fields")
	ErrTransitionNotAllowed  = errors.New("syncer: status transition not allowed")
	ErrInvalidClassification = errors.New("syncer: classification outside the catalog")
)

// IsValidation reports whether err is caused by bad caller input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingID, ErrInvalidAction, ErrInvalidStatus,
		ErrInvalidPayload, ErrEmptyPatch, ErrTransitionNotAllowed,
		ErrInvalidClassification,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

//
// Collaborators
//

// Mirror is the relational copy.  *mirror.Repository satisfies it.
// Get returns mirror.ErrNotFound for a missing row.
type Mirror interface {
	Get(ctx context.Context, id string) (record.Record, error)
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, rec record.Record) error
	Delete(ctx context.Context, id string, at time.Time) (bool, error)
	Tombstoned(ctx context.Context, id string) (deletedAt time.Time, dead bool, err error)
	ClearTombstone(ctx context.Context, id string) error
}

// Catalog lists the (service, agency) pairs operators may assign.
// *catalog.Catalog satisfies it.
type Catalog interface {
	Contains(service, agency string) bool
}

// Notifier delivers status-change messages.  *notify.Dispatcher satisfies
// it.  Dispatch reports whether a message went out.
type Notifier interface {
	Dispatch(ctx context.Context, rec record.Record, tr record.Transition) bool
}

//
// Options
//

// DeletePropagation controls what a delete event removes.
type DeletePropagation string

const (
	// DeleteMirrorOnly removes the Mirror row only.
	DeleteMirrorOnly DeletePropagation = "mirror_only"
	// DeleteBoth also removes the Primary Store document.
	DeleteBoth DeletePropagation = "both"
)

// TransitionPolicy maps a status to the statuses it may move to.  An empty
// policy allows every transition.
type TransitionPolicy map[record.Status][]record.Status

// Allows reports whether from → to is permitted.  Staying put is always
// allowed.
func (p TransitionPolicy) Allows(from, to record.Status) bool {
	if len(p) == 0 || from == to {
		return true
	}
	for _, s := range p[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Options tunes a Synchronizer.  Zero durations fall back to defaults.
type Options struct {
	DeletePropagation DeletePropagation
	Transitions       TransitionPolicy
	// Catalog bounds operator classification edits.  Nil admits only the
	// Spam sentinel.
	Catalog           Catalog
	LockTimeout       time.Duration // waiting for the per-id lock
	MirrorTimeout     time.Duration // each Mirror statement
	PrimaryTimeout    time.Duration // each Primary Store call
}

func (o Options) withDefaults() Options {
	if o.DeletePropagation == "" {
		o.DeletePropagation = DeleteMirrorOnly
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 10 * time.Second
	}
	if o.MirrorTimeout <= 0 {
		o.MirrorTimeout = 5 * time.Second
	}
	if o.PrimaryTimeout <= 0 {
		o.PrimaryTimeout = 10 * time.Second
	}
	return o
}

//
// Synchronizer
//

// Synchronizer reconciles the two stores.  It is safe for concurrent use.
type Synchronizer struct {
	mirror  Mirror
	primary primary.Store
	locks   lock.Locker
	notify  Notifier
	opts    Options
	log     *zap.SugaredLogger

	now func() time.Time
}

// New wires a Synchronizer.  locks may be nil (an in-process keyed mutex is
// used) and so may notifier (transitions are then only logged).
func New(m Mirror, p primary.Store, locks lock.Locker, notifier Notifier, opts Options, log *zap.SugaredLogger) *Synchronizer {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if log == nil {
		log = zap.S()
	}
	return &Synchronizer{
		mirror:  m,
		primary: p,
		locks:   locks,
		notify:  notifier,
		opts:    opts.withDefaults(),
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Outcome describes a completed write.
type Outcome struct {
	Record     record.Record     `json:"record"`
	Transition record.Transition `json:"transition"`
	Notified   bool              `json:"notified"`
	// Ignored is set instead of Record when the write was skipped
	// ("tombstoned", "stale").
	Ignored string `json:"ignored,omitempty"`
	// Existed is set by deletes that found a Mirror row.
	Existed bool `json:"existed,omitempty"`
}

// withLock runs fn while holding the lock for id.
func (s *Synchronizer) withLock(ctx context.Context, id string, fn func() error) error {
	lctx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	unlock, err := s.locks.Lock(lctx, id)
	cancel()
	if err != nil {
		return fmt.Errorf("lock %s: %w", id, err)
	}
	defer unlock()
	return fn()
}

// mirrorGet loads a row, translating the Mirror's not-found sentinel.
// found is false only for a missing row.
func (s *Synchronizer) mirrorGet(ctx context.Context, id string) (record.Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
	defer cancel()
	rec, err := s.mirror.Get(ctx, id)
	if errors.Is(err, mirror.ErrNotFound) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, fmt.Errorf("mirror get %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *Synchronizer) mirrorUpsert(ctx context.Context, rec record.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
	defer cancel()
	if err := s.mirror.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("mirror upsert %s: %w", rec.ID, err)
	}
	return nil
}

// dispatch notifies the submitter when tr moved.  Must be called without
// the record lock held.
func (s *Synchronizer) dispatch(ctx context.Context, out *Outcome) {
	if !out.Transition.Changed() {
		return
	}
	s.log.Infow("status transition",
		"id", out.Record.ID, "from", out.Transition.From, "to", out.Transition.To)
	if s.notify == nil {
		return
	}
	out.Notified = s.notify.Dispatch(ctx, out.Record, out.Transition)
}
