package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/publicpulse/pulse/internal/flow"
	"github.com/publicpulse/pulse/internal/requestinfo"
)

// botRequest is one chat update relayed by the messenger front end.
type botRequest struct {
	UserID string `json:"user_id"`
	flow.Input
}

// botInput handles POST /api/bot/sessions/{sessionID}.
func (h *handlers) botInput(w http.ResponseWriter, r *http.Request) {
	var req botRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Language == "" {
		req.Language = requestinfo.Language(r.Context())
	}

	sessionID := chi.URLParam(r, "sessionID")
	reply, err := h.deps.Flow.Handle(r.Context(), sessionID, req.UserID, req.Input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
