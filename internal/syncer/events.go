package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/publicpulse/pulse/internal/metrics"
	"github.com/publicpulse/pulse/internal/primary"
	"github.com/publicpulse/pulse/internal/record"
)

// Action is the kind of change a Primary Store event reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction normalises s.  An empty string means update, matching the
// webhook contract.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return ActionUpdate, nil
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Event is a change notification from the Primary Store.  New is the
// document after the change and Previous the document before it; either
// may be nil.
type Event struct {
	ID       string
	Action   Action
	New      map[string]any
	Previous map[string]any
}

// ApplyEvent mirrors a Primary Store change.  Delivery is at-least-once and
// possibly out of order, so:
//
//   - create/update for a tombstoned id is ignored unless its updated_at is
//     after the delete, in which case the tombstone is lifted and the event
//     applies like any other;
//   - update carrying an updated_at older than the row is ignored as stale;
//   - create for an existing row merges, so replays converge;
//   - delete of an absent row succeeds and still leaves a tombstone.
//
// External events always apply even when they violate the transition
// policy, since the Primary Store is authoritative.
func (s *Synchronizer) ApplyEvent(ctx context.Context, ev Event) (Outcome, error) {
	ev.ID = strings.TrimSpace(ev.ID)
	if ev.ID == "" {
		return Outcome{}, ErrMissingID
	}
	action, err := ParseAction(string(ev.Action))
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	switch action {
	case ActionDelete:
		out, err = s.applyDelete(ctx, ev.ID)
	default:
		out, err = s.applyUpsert(ctx, action, ev)
	}

	result := "applied"
	switch {
	case err != nil:
		result = "error"
	case out.Ignored != "":
		result = out.Ignored
	}
	metrics.SyncEventsTotal.WithLabelValues(string(action), result).Inc()
	if err != nil {
		return Outcome{}, err
	}

	s.dispatch(ctx, &out)
	return out, nil
}

func (s *Synchronizer) applyUpsert(ctx context.Context, action Action, ev Event) (Outcome, error) {
	var p record.Patch
	if len(ev.New) == 0 {
		// Bare notification: the document itself is read from the Primary Store.
		pctx, cancel := context.WithTimeout(ctx, s.opts.PrimaryTimeout)
		rec, err := s.primary.Get(pctx, ev.ID)
		cancel()
		if errors.Is(err, primary.ErrNotFound) {
			return Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, ev.ID)
		}
		if err != nil {
			return Outcome{}, fmt.Errorf("primary get %s: %w", ev.ID, err)
		}
		p = record.Full(rec)
	} else {
		var err error
		if p, err = record.DecodePatch(ev.New); err != nil {
			return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	var out Outcome
	err := s.withLock(ctx, ev.ID, func() error {
		mctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
		deletedAt, dead, err := s.mirror.Tombstoned(mctx, ev.ID)
		cancel()
		if err != nil {
			return fmt.Errorf("mirror tombstone %s: %w", ev.ID, err)
		}
		if dead {
			if p.UpdatedAt == nil || !p.UpdatedAt.After(deletedAt) {
				s.log.Infow("event for deleted record ignored",
					"id", ev.ID, "action", action, "deleted_at", deletedAt)
				out = Outcome{Record: record.Record{ID: ev.ID}, Ignored: "tombstoned"}
				return nil
			}
			mctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
			err := s.mirror.ClearTombstone(mctx, ev.ID)
			cancel()
			if err != nil {
				return fmt.Errorf("mirror clear tombstone %s: %w", ev.ID, err)
			}
			s.log.Infow("record revived by newer event",
				"id", ev.ID, "action", action, "deleted_at", deletedAt, "updated_at", *p.UpdatedAt)
		}

		row, found, err := s.mirrorGet(ctx, ev.ID)
		if err != nil {
			return err
		}

		var tr record.Transition
		var merged record.Record
		if found {
			if p.UpdatedAt != nil && p.UpdatedAt.Before(row.UpdatedAt) {
				s.log.Infow("stale event ignored",
					"id", ev.ID, "event_updated_at", *p.UpdatedAt, "row_updated_at", row.UpdatedAt)
				out = Outcome{Record: row, Ignored: "stale"}
				return nil
			}
			if p.Status != nil && !s.opts.Transitions.Allows(row.Status, *p.Status) {
				s.log.Warnw("external event violates transition policy",
					"id", ev.ID, "from", row.Status, "to", *p.Status)
			}
			merged = p.Apply(row)
			tr = record.Transition{From: row.Status, To: merged.Status}
		} else {
			merged = p.Apply(record.Record{ID: ev.ID}).WithDefaults()
			now := s.now()
			if merged.CreatedAt.IsZero() {
				merged.CreatedAt = now
			}
			if merged.UpdatedAt.IsZero() {
				merged.UpdatedAt = merged.CreatedAt
			}
			from := record.StatusOf(ev.Previous)
			if from == "" {
				from = record.StatusNew
			}
			tr = record.Transition{From: from, To: merged.Status}
		}

		if err := s.mirrorUpsert(ctx, merged); err != nil {
			return err
		}
		out = Outcome{Record: merged, Transition: tr}
		return nil
	})
	return out, err
}

func (s *Synchronizer) applyDelete(ctx context.Context, id string) (Outcome, error) {
	var out Outcome
	err := s.withLock(ctx, id, func() error {
		mctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
		existed, err := s.mirror.Delete(mctx, id, s.now())
		cancel()
		if err != nil {
			return fmt.Errorf("mirror delete %s: %w", id, err)
		}

		if s.opts.DeletePropagation == DeleteBoth {
			pctx, cancel := context.WithTimeout(ctx, s.opts.PrimaryTimeout)
			defer cancel()
			if err := s.primary.Delete(pctx, id); err != nil {
				return fmt.Errorf("primary delete %s: %w", id, err)
			}
		}
		out = Outcome{Record: record.Record{ID: id}, Existed: existed}
		return nil
	})
	return out, err
}
