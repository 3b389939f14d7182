package api

import (
	"net/http"

	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/requestinfo"
)

// submitReport handles POST /api/reports.
func (h *handlers) submitReport(w http.ResponseWriter, r *http.Request) {
	var sub intake.Submission
	if err := h.decode(w, r, &sub); err != nil {
		h.fail(w, r, err)
		return
	}
	if sub.Language == "" {
		sub.Language = requestinfo.Language(r.Context())
	}

	res, err := h.deps.Intake.Submit(r.Context(), sub)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// geocode handles GET /api/geocode?city=&street=&house=.
func (h *handlers) geocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.deps.Geocoder.Geocode(r.Context(), geocoder.Query{
		City:   q.Get("city"),
		Street: q.Get("street"),
		House:  q.Get("house"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Found {
		writeJSON(w, http.StatusNotFound, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
