package httpapi

import (
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/storage"
)

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	initial := decimal.Zero
	if req.InitialBalance != nil {
		initial = *req.InitialBalance
	}
	a, err := s.accounts.Create(r.Context(), req.Name, req.Notes, initial)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromURL(r)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	values := r.URL.Query()
	f := storage.AccountFilter{NameContains: values.Get("nameContains")}
	if f.CreatedFrom, err = timeParam(values, "createdFrom"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if f.CreatedTo, err = timeParam(values, "createdTo"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	page, err := s.accounts.Enumerate(r.Context(), q, f)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPageResponse(page, toAccountResponse))
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	a, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) getAccountByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	a, err := s.accounts.GetByName(r.Context(), name)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

// headAccount answers existence without a body.
func (s *Server) headAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ok, err := s.accounts.Exists(r.Context(), id)
	if err != nil {
		w.WriteHeader(statusOf(err))
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusOf mirrors writeServiceErr's mapping for body-less responses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrCanceled), errors.Is(err, errs.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
