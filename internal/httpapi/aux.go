package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
)

func (s *Server) serviceInfo(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, serviceInfoResponse{Service: "balancebook", Version: Version})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	toJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports readiness by probing the store.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ready(r.Context()); err != nil {
		s.log.Warn("readiness probe failed", "err", err)
		toJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeJSON parses a request body, mapping malformed payloads to Invalid.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is required: %w", errs.ErrInvalid)
		}
		return fmt.Errorf("malformed request body: %w", errs.ErrInvalid)
	}
	return nil
}

// urlUUID parses a uuid path parameter.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid uuid: %w", name, errs.ErrInvalid)
	}
	return id, nil
}

// queryFromURL parses the shared paging parameters from the query string.
func queryFromURL(r *http.Request) (enumerate.Query, error) {
	var q enumerate.Query
	values := r.URL.Query()
	if raw := values.Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("maxResults must be an integer: %w", errs.ErrInvalid)
		}
		q.MaxResults = n
	}
	if raw := values.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("skip must be an integer: %w", errs.ErrInvalid)
		}
		q.Skip = n
	}
	if raw := values.Get("continuationToken"); raw != "" {
		tok, err := uuid.Parse(raw)
		if err != nil {
			return q, fmt.Errorf("continuationToken is not a valid uuid: %w", errs.ErrInvalid)
		}
		q.ContinuationToken = &tok
	}
	q.Ordering = enumerate.Ordering(values.Get("ordering"))
	return q, nil
}

func timeParam(values map[string][]string, name string) (*time.Time, error) {
	raw := first(values, name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339: %w", name, errs.ErrInvalid)
	}
	return &t, nil
}

func decimalParam(values map[string][]string, name string) (*decimal.Decimal, error) {
	raw := first(values, name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not a valid decimal: %w", name, errs.ErrInvalid)
	}
	return &d, nil
}

func first(values map[string][]string, name string) string {
	if v, ok := values[name]; ok && len(v) > 0 {
		return v[0]
	}
	return ""
}
