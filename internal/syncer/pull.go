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

// Pull copies the Primary Store document for id into the Mirror.  It is an
// explicit operator action, so it clears any tombstone first.  A status
// that moved relative to the Mirror row is notified like any other
// transition; a freshly inserted row is not.
func (s *Synchronizer) Pull(ctx context.Context, id string) (Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Outcome{}, ErrMissingID
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.PrimaryTimeout)
	rec, err := s.primary.Get(pctx, id)
	cancel()
	if errors.Is(err, primary.ErrNotFound) {
		metrics.SyncEventsTotal.WithLabelValues("pull", "not_found").Inc()
		return Outcome{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		metrics.SyncEventsTotal.WithLabelValues("pull", "error").Inc()
		return Outcome{}, fmt.Errorf("primary get %s: %w", id, err)
	}

	out, _, err := s.store(ctx, rec)
	if err != nil {
		metrics.SyncEventsTotal.WithLabelValues("pull", "error").Inc()
		return Outcome{}, err
	}
	metrics.SyncEventsTotal.WithLabelValues("pull", "applied").Inc()

	s.dispatch(ctx, &out)
	return out, nil
}

// MirrorRecord is the intake hook: it stores a freshly persisted record in the
// Mirror without another Primary Store read.
func (s *Synchronizer) MirrorRecord(ctx context.Context, rec record.Record) error {
	if rec.ID == "" {
		return ErrMissingID
	}
	if _, _, err := s.store(ctx, rec); err != nil {
		metrics.SyncEventsTotal.WithLabelValues("intake", "error").Inc()
		return err
	}
	metrics.SyncEventsTotal.WithLabelValues("intake", "applied").Inc()
	return nil
}

// store upserts rec under its lock after clearing the tombstone.  created
// reports whether no row existed before.
func (s *Synchronizer) store(ctx context.Context, rec record.Record) (Outcome, bool, error) {
	var (
		out     Outcome
		created bool
	)
	err := s.withLock(ctx, rec.ID, func() error {
		mctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
		err := s.mirror.ClearTombstone(mctx, rec.ID)
		cancel()
		if err != nil {
			return fmt.Errorf("mirror clear tombstone %s: %w", rec.ID, err)
		}

		row, found, err := s.mirrorGet(ctx, rec.ID)
		if err != nil {
			return err
		}
		if err := s.mirrorUpsert(ctx, rec); err != nil {
			return err
		}

		tr := record.Transition{From: rec.Status, To: rec.Status}
		if found {
			tr.From = row.Status
		}
		out = Outcome{Record: rec, Transition: tr}
		created = !found
		return nil
	})
	return out, created, err
}

// ResyncOptions bounds a bulk resync.
type ResyncOptions struct {
	Limit int  // 0 means every document
	Force bool // overwrite rows that already exist
}

// ResyncStats counts what a bulk resync did.
type ResyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Resync walks the Primary Store and fills the Mirror.  Ids already
// mirrored are skipped unless opts.Force is set.  A failing record is
// counted and logged; the walk continues.  Bulk resync repairs state and
// does not notify submitters.
func (s *Synchronizer) Resync(ctx context.Context, opts ResyncOptions) (ResyncStats, error) {
	var st ResyncStats

	err := s.primary.Each(ctx, opts.Limit, func(rec record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !opts.Force {
			mctx, cancel := context.WithTimeout(ctx, s.opts.MirrorTimeout)
			ok, err := s.mirror.Exists(mctx, rec.ID)
			cancel()
			if err != nil {
				st.Failed++
				s.log.Warnw("resync exists check failed", "id", rec.ID, "err", err)
				return nil
			}
			if ok {
				st.Skipped++
				return nil
			}
		}

		_, created, err := s.store(ctx, rec)
		switch {
		case err != nil:
			st.Failed++
			s.log.Warnw("resync record failed", "id", rec.ID, "err", err)
		case created:
			st.Created++
		default:
			st.Updated++
		}
		return nil
	})

	metrics.SyncEventsTotal.WithLabelValues("resync", "created").Add(float64(st.Created))
	metrics.SyncEventsTotal.WithLabelValues("resync", "updated").Add(float64(st.Updated))
	metrics.SyncEventsTotal.WithLabelValues("resync", "failed").Add(float64(st.Failed))
	s.log.Infow("resync finished",
		"created", st.Created, "updated", st.Updated, "skipped", st.Skipped, "failed", st.Failed)

	if err != nil {
		return st, fmt.Errorf("resync: %w", err)
	}
	return st, nil
}
