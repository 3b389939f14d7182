package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/publicpulse/pulse/internal/events"
	"github.com/publicpulse/pulse/internal/record"
	"github.com/publicpulse/pulse/internal/syncer"
)

type statusRequest struct {
	ID       string `json:"id" validate:"required"`
	Status   string `json:"status" validate:"required"`
	Notes    string `json:"notes"`
	Language string `json:"language"`
}

type statusResponse struct {
	Updated  bool          `json:"updated"`
	Notified bool          `json:"notified"`
	Record   record.Record `json:"record"`
}

// changeStatus handles POST /api/status.
func (h *handlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.deps.Sync.ChangeStatus(r.Context(), syncer.StatusChange{
		ID:       req.ID,
		Status:   record.Status(req.Status),
		Notes:    req.Notes,
		Language: req.Language,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Updated: true, Notified: out.Notified, Record: out.Record})
}

// event handles POST /api/events.
func (h *handlers) event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	ev, err := events.Decode(body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.deps.Sync.ApplyEvent(r.Context(), ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// pushEvent handles POST /api/events/pubsub.  Pub/Sub redelivers on any
// non-2xx answer, so undecodable envelopes and bad payloads are acked with
// 204 and only transient failures are returned as 500.
func (h *handlers) pushEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	ev, msgID, err := events.DecodePush(body)
	if err != nil {
		h.log.Warnw("dropping push message", "msg", msgID, "err", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if _, err := h.deps.Sync.ApplyEvent(r.Context(), ev); err != nil {
		if statusFor(err) < http.StatusInternalServerError {
			h.log.Warnw("push event rejected", "msg", msgID, "id", ev.ID, "err", err)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.log.Errorw("push event failed", "msg", msgID, "id", ev.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "retry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pullRequest struct {
	ComplaintID string `json:"complaint_id" validate:"required"`
}

// pull handles POST /api/sync.
func (h *handlers) pull(w http.ResponseWriter, r *http.Request) {
	var req pullRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.deps.Sync.Pull(r.Context(), req.ComplaintID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// editComplaint handles PATCH /api/admin/complaints/{id}.  The body uses
// the document field names; absent fields stay untouched.
func (h *handlers) editComplaint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var doc map[string]any
	if err := h.decode(w, r, &doc); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := record.DecodePatch(doc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.deps.Sync.ApplyLocalEdit(r.Context(), id, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
