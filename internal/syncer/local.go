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

// ApplyLocalEdit writes an operator change.  The Mirror row must exist.
// The merged row is committed to the Mirror first, then the same fields are
// pushed to the Primary Store.  A failed push restores the previous row,
// is returned, and suppresses the notification because the authoritative
// store never saw the change.
func (s *Synchronizer) ApplyLocalEdit(ctx context.Context, id string, p record.Patch) (Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Outcome{}, ErrMissingID
	}
	if p.Empty() {
		return Outcome{}, ErrEmptyPatch
	}
	if p.Status != nil && !p.Status.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	if err := s.checkClassification(p); err != nil {
		return Outcome{}, err
	}

	var out Outcome
	err := s.withLock(ctx, id, func() error {
		row, found, err := s.mirrorGet(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if p.Status != nil && !s.opts.Transitions.Allows(row.Status, *p.Status) {
			return fmt.Errorf("%w: %s → %s", ErrTransitionNotAllowed, row.Status, *p.Status)
		}

		if p.UpdatedAt == nil {
			p.UpdatedAt = record.Ptr(s.now())
		}
		merged := p.Apply(row)
		if err := s.mirrorUpsert(ctx, merged); err != nil {
			return err
		}

		pctx, cancel := context.WithTimeout(ctx, s.opts.PrimaryTimeout)
		perr := s.primary.Patch(pctx, id, p)
		cancel()
		if perr != nil {
			// The authoritative store never saw the edit; put the row back so
			// a retry still observes the original status.
			if err := s.mirrorUpsert(ctx, row); err != nil {
				s.log.Errorw("mirror restore after failed push", "id", id, "err", err)
			}
			if errors.Is(perr, primary.ErrNotFound) {
				return fmt.Errorf("primary push %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("primary push %s: %w", id, perr)
		}

		out = Outcome{
			Record:     merged,
			Transition: record.Transition{From: row.Status, To: merged.Status},
		}
		return nil
	})
	if err != nil {
		metrics.SyncEventsTotal.WithLabelValues("local_edit", "error").Inc()
		return Outcome{}, err
	}
	metrics.SyncEventsTotal.WithLabelValues("local_edit", "applied").Inc()

	s.dispatch(ctx, &out)
	return out, nil
}

// StatusChange is the payload of the status-change interface.  Empty Notes
// and Language leave the stored values untouched.
type StatusChange struct {
	ID       string
	Status   record.Status
	Notes    string
	Language string
}

// ChangeStatus moves a record to a new status through ApplyLocalEdit.
func (s *Synchronizer) ChangeStatus(ctx context.Context, c StatusChange) (Outcome, error) {
	st := record.Status(strings.ToLower(strings.TrimSpace(string(c.Status))))
	if !st.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	}

	p := record.Patch{Status: &st}
	if n := strings.TrimSpace(c.Notes); n != "" {
		p.Notes = &n
	}
	if l := strings.TrimSpace(c.Language); l != "" {
		p.Language = &l
	}
	return s.ApplyLocalEdit(ctx, c.ID, p)
}

// checkClassification keeps operator edits inside the catalog: a patch
// touching service or agency must carry both, and the pair must be listed
// or be the Spam sentinel.
func (s *Synchronizer) checkClassification(p record.Patch) error {
	if p.Service == nil && p.Agency == nil {
		return nil
	}
	if p.Service == nil || p.Agency == nil {
		return fmt.Errorf("%w: service and agency must be set together", ErrInvalidClassification)
	}
	c := record.Classification{Service: *p.Service, Agency: *p.Agency}
	if c.IsSpam() {
		return nil
	}
	if s.opts.Catalog == nil || !s.opts.Catalog.Contains(c.Service, c.Agency) {
		return fmt.Errorf("%w: (%s, %s) is not in the catalog", ErrInvalidClassification, c.Service, c.Agency)
	}
	return nil
}
