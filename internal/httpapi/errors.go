package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgersmith/balancebook/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// toJSON writes a JSON response with status code.
func toJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceErr maps sentinel error kinds to status codes. Storage failures
// surface with a generic message so backend error text never leaks.
func (s *Server) writeServiceErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		writeErr(w, http.StatusBadRequest, err.Error(), "invalid")
	case errors.Is(err, errs.ErrUnauthorized):
		writeErr(w, http.StatusUnauthorized, "missing or invalid credentials", "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		writeErr(w, http.StatusForbidden, "insufficient privileges", "forbidden")
	case errors.Is(err, errs.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not_found", "not_found")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	case errors.Is(err, errs.ErrCanceled):
		writeErr(w, http.StatusServiceUnavailable, "request canceled", "canceled")
	case errors.Is(err, errs.ErrStorage):
		s.log.Error("storage failure", "err", err)
		writeErr(w, http.StatusServiceUnavailable, "storage unavailable", "storage")
	default:
		s.log.Error("internal error", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
