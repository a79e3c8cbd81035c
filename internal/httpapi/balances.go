package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ledgersmith/balancebook/internal/errs"
)

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	v, err := s.balances.GetBalance(r.Context(), accountID)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toBalanceViewResponse(v))
}

// getBalanceAsOf reconstructs the committed balance at ?asOf=<RFC 3339>.
func (s *Server) getBalanceAsOf(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		s.writeServiceErr(w, fmt.Errorf("asOf is required: %w", errs.ErrInvalid))
		return
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.writeServiceErr(w, fmt.Errorf("asOf must be RFC 3339: %w", errs.ErrInvalid))
		return
	}
	b, err := s.balances.GetBalanceAsOf(r.Context(), accountID, at)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, asOfBalanceResponse{AccountID: b.AccountID, AsOf: b.AsOf, Balance: b.Amount})
}

func (s *Server) getAllBalances(w http.ResponseWriter, r *http.Request) {
	views, err := s.balances.GetAllBalances(r.Context())
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	out := make([]balanceViewResponse, len(views))
	for i, v := range views {
		out[i] = toBalanceViewResponse(v)
	}
	toJSON(w, http.StatusOK, out)
}

// commit attributes pending entries to a new balance snapshot. An absent or
// empty entryGuids list commits everything pending.
func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	var req commitRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeServiceErr(w, err)
			return
		}
	}
	v, err := s.balances.Commit(r.Context(), accountID, req.EntryGuids)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toBalanceViewResponse(v))
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	ok, err := s.balances.Verify(r.Context(), accountID)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, verifyResponse{AccountID: accountID, Valid: ok})
}
