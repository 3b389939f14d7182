package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/publicpulse/pulse/internal/events"
	"github.com/publicpulse/pulse/internal/geocoder"
	"github.com/publicpulse/pulse/internal/intake"
	"github.com/publicpulse/pulse/internal/syncer"
)

// errBadBody wraps every decode or validation failure of a request body.
var errBadBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into dst and, for structs, runs the validator.
func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadBody)
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			return nil // not a struct, nothing to check
		}
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// statusFor maps the error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadBody),
		errors.Is(err, events.ErrMalformed),
		intake.IsValidationError(err),
		syncer.IsValidation(err),
		errors.Is(err, geocoder.ErrCityRequired):
		return http.StatusBadRequest
	case errors.Is(err, syncer.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status.  Server errors are logged and
// answered with a generic message.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorw("request failed", "path", r.URL.Path, "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
