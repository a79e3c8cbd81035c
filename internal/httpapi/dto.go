package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/ledger"
)

// Request payloads.

type createAccountRequest struct {
	Name           string           `json:"name"`
	Notes          string           `json:"notes"`
	InitialBalance *decimal.Decimal `json:"initialBalance"`
}

type appendRequest struct {
	Amount  *decimal.Decimal  `json:"amount"`
	Notes   string            `json:"notes"`
	Entries []appendBatchItem `json:"entries"`
}

type appendBatchItem struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes"`
}

type commitRequest struct {
	EntryGuids []uuid.UUID `json:"entryGuids"`
}

type enumerateRequest struct {
	MaxResults        int        `json:"maxResults"`
	Skip              int        `json:"skip"`
	ContinuationToken *uuid.UUID `json:"continuationToken"`
	Ordering          string     `json:"ordering"`

	Kinds       []string         `json:"kinds"`
	Committed   *bool            `json:"committed"`
	CreatedFrom *time.Time       `json:"createdFrom"`
	CreatedTo   *time.Time       `json:"createdTo"`
	AmountMin   *decimal.Decimal `json:"amountMin"`
	AmountMax   *decimal.Decimal `json:"amountMax"`
}

type createAPIKeyRequest struct {
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// Response payloads.

type serviceInfoResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
}

type accountResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type entryResponse struct {
	ID          uuid.UUID       `json:"id"`
	AccountID   uuid.UUID       `json:"accountId"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes,omitempty"`
	Replaces    *uuid.UUID      `json:"replaces,omitempty"`
	Committed   bool            `json:"committed"`
	CommittedBy *uuid.UUID      `json:"committedBy,omitempty"`
	CommittedAt *time.Time      `json:"committedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type entrySummaryResponse struct {
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
	Entries []entryResponse `json:"entries"`
}

type balanceViewResponse struct {
	AccountID            uuid.UUID            `json:"accountId"`
	AccountName          string               `json:"accountName"`
	AccountCreatedAt     time.Time            `json:"accountCreatedAt"`
	LatestBalanceEntryID *uuid.UUID           `json:"latestBalanceEntryId,omitempty"`
	BalanceTimestamp     *time.Time           `json:"balanceTimestamp,omitempty"`
	Committed            decimal.Decimal      `json:"committed"`
	Pending              decimal.Decimal      `json:"pending"`
	PendingCredits       entrySummaryResponse `json:"pendingCredits"`
	PendingDebits        entrySummaryResponse `json:"pendingDebits"`
	CommittedEntryIDs    []uuid.UUID          `json:"committedEntryIds"`
}

type asOfBalanceResponse struct {
	AccountID uuid.UUID       `json:"accountId"`
	AsOf      time.Time       `json:"asOf"`
	Balance   decimal.Decimal `json:"balance"`
}

type verifyResponse struct {
	AccountID uuid.UUID `json:"accountId"`
	Valid     bool      `json:"valid"`
}

type apiKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key,omitempty"`
	Name      string    `json:"name"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"createdAt"`
}

type pageResponse[T any] struct {
	TotalRecords      int        `json:"totalRecords"`
	Objects           []T        `json:"objects"`
	RecordsRemaining  int        `json:"recordsRemaining"`
	EndOfResults      bool       `json:"endOfResults"`
	ContinuationToken *uuid.UUID `json:"continuationToken,omitempty"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name, Notes: a.Notes, CreatedAt: a.CreatedAt}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Kind:        string(e.Kind),
		Amount:      e.Amount,
		Notes:       e.Description,
		Replaces:    e.Replaces,
		Committed:   e.Committed,
		CommittedBy: e.CommittedBy,
		CommittedAt: e.CommittedAt,
		CreatedAt:   e.CreatedAt,
	}
}

func toEntryResponses(entries []ledger.Entry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e)
	}
	return out
}

func toSummaryResponse(s ledger.EntrySummary) entrySummaryResponse {
	return entrySummaryResponse{Count: s.Count, Total: s.Total, Entries: toEntryResponses(s.Entries)}
}

func toBalanceViewResponse(v ledger.BalanceView) balanceViewResponse {
	ids := v.CommittedEntryIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return balanceViewResponse{
		AccountID:            v.AccountID,
		AccountName:          v.AccountName,
		AccountCreatedAt:     v.AccountCreatedAt,
		LatestBalanceEntryID: v.LatestBalanceEntryID,
		BalanceTimestamp:     v.BalanceTimestamp,
		Committed:            v.Committed,
		Pending:              v.Pending,
		PendingCredits:       toSummaryResponse(v.PendingCredits),
		PendingDebits:        toSummaryResponse(v.PendingDebits),
		CommittedEntryIDs:    ids,
	}
}

func toAPIKeyResponse(k ledger.APIKey, includeKey bool) apiKeyResponse {
	out := apiKeyResponse{ID: k.ID, Name: k.Name, Admin: k.Admin, CreatedAt: k.CreatedAt}
	if includeKey {
		out.Key = k.Key
	}
	return out
}

func toPageResponse[S, T any](p enumerate.Page[S], conv func(S) T) pageResponse[T] {
	objects := make([]T, len(p.Objects))
	for i, o := range p.Objects {
		objects[i] = conv(o)
	}
	return pageResponse[T]{
		TotalRecords:      p.TotalRecords,
		Objects:           objects,
		RecordsRemaining:  p.RecordsRemaining,
		EndOfResults:      p.EndOfResults,
		ContinuationToken: p.ContinuationToken,
	}
}
