package httpapi

import (
	"fmt"
	"net/http"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/service/entry"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// listEntries enumerates an account's entries using query-string filters.
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	q, err := queryFromURL(r)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	values := r.URL.Query()
	f := storage.EntryFilter{}
	if kinds, ok := values["kind"]; ok {
		for _, k := range kinds {
			kind, err := parseKind(k)
			if err != nil {
				s.writeServiceErr(w, err)
				return
			}
			f.Kinds = append(f.Kinds, kind)
		}
	}
	if raw := values.Get("committed"); raw != "" {
		committed := raw == "true"
		if raw != "true" && raw != "false" {
			s.writeServiceErr(w, fmt.Errorf("committed must be true or false: %w", errs.ErrInvalid))
			return
		}
		f.Committed = &committed
	}
	if f.CreatedFrom, err = timeParam(values, "createdFrom"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if f.CreatedTo, err = timeParam(values, "createdTo"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if f.AmountMin, err = decimalParam(values, "amountMin"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if f.AmountMax, err = decimalParam(values, "amountMax"); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	page, err := s.entries.Enumerate(r.Context(), accountID, q, f)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPageResponse(page, toEntryResponse))
}

// enumerateEntries is the POST variant taking the same filters in the body,
// for clients whose filters do not fit a query string.
func (s *Server) enumerateEntries(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	var req enumerateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	q := enumerate.Query{
		MaxResults:        req.MaxResults,
		Skip:              req.Skip,
		ContinuationToken: req.ContinuationToken,
		Ordering:          enumerate.Ordering(req.Ordering),
	}
	f := storage.EntryFilter{
		Committed:   req.Committed,
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
		AmountMin:   req.AmountMin,
		AmountMax:   req.AmountMax,
	}
	for _, k := range req.Kinds {
		kind, err := parseKind(k)
		if err != nil {
			s.writeServiceErr(w, err)
			return
		}
		f.Kinds = append(f.Kinds, kind)
	}
	page, err := s.entries.Enumerate(r.Context(), accountID, q, f)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPageResponse(page, toEntryResponse))
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	s.writePending(w, r, nil)
}

func (s *Server) listPendingCredits(w http.ResponseWriter, r *http.Request) {
	kind := ledger.EntryKindCredit
	s.writePending(w, r, &kind)
}

func (s *Server) listPendingDebits(w http.ResponseWriter, r *http.Request) {
	kind := ledger.EntryKindDebit
	s.writePending(w, r, &kind)
}

func (s *Server) writePending(w http.ResponseWriter, r *http.Request, kind *ledger.EntryKind) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	pending, err := s.entries.ListPending(r.Context(), accountID, kind)
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponses(pending))
}

func (s *Server) appendCredits(w http.ResponseWriter, r *http.Request) {
	s.append(w, r, ledger.EntryKindCredit)
}

func (s *Server) appendDebits(w http.ResponseWriter, r *http.Request) {
	s.append(w, r, ledger.EntryKindDebit)
}

// append handles both the single form {amount, notes} and the batch form
// {entries: [...]}. Exactly one must be present.
func (s *Server) append(w http.ResponseWriter, r *http.Request, kind ledger.EntryKind) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	var req appendRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if req.Amount != nil && len(req.Entries) > 0 {
		s.writeServiceErr(w, fmt.Errorf("amount and entries are mutually exclusive: %w", errs.ErrInvalid))
		return
	}

	if req.Amount != nil {
		var (
			e   ledger.Entry
			err error
		)
		if kind == ledger.EntryKindCredit {
			e, err = s.entries.AppendCredit(r.Context(), accountID, *req.Amount, req.Notes)
		} else {
			e, err = s.entries.AppendDebit(r.Context(), accountID, *req.Amount, req.Notes)
		}
		if err != nil {
			s.writeServiceErr(w, err)
			return
		}
		toJSON(w, http.StatusCreated, toEntryResponse(e))
		return
	}

	if len(req.Entries) == 0 {
		s.writeServiceErr(w, fmt.Errorf("amount or entries is required: %w", errs.ErrInvalid))
		return
	}
	items := make([]entry.BatchItem, len(req.Entries))
	for i, it := range req.Entries {
		items[i] = entry.BatchItem{Amount: it.Amount, Description: it.Notes}
	}
	var created []ledger.Entry
	if kind == ledger.EntryKindCredit {
		created, err = s.entries.AppendCreditBatch(r.Context(), accountID, items)
	} else {
		created, err = s.entries.AppendDebitBatch(r.Context(), accountID, items)
	}
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toEntryResponses(created))
}

func (s *Server) cancelEntry(w http.ResponseWriter, r *http.Request) {
	accountID, err := urlUUID(r, "id")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	entryID, err := urlUUID(r, "entryId")
	if err != nil {
		s.writeServiceErr(w, err)
		return
	}
	if err := s.entries.Cancel(r.Context(), accountID, entryID); err != nil {
		s.writeServiceErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseKind(raw string) (ledger.EntryKind, error) {
	switch ledger.EntryKind(raw) {
	case ledger.EntryKindCredit, ledger.EntryKindDebit, ledger.EntryKindBalance:
		return ledger.EntryKind(raw), nil
	default:
		return "", fmt.Errorf("unknown entry kind %q: %w", raw, errs.ErrInvalid)
	}
}
