package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind discriminates the three row types an account's history may hold.
type EntryKind string

const (
	// EntryKindCredit increases the pending balance when uncommitted and the
	// committed balance once attributed to a snapshot.
	EntryKindCredit EntryKind = "credit"
	// EntryKindDebit decreases balances symmetrically to credits.
	EntryKindDebit EntryKind = "debit"
	// EntryKindBalance is a snapshot of the committed balance at one instant.
	// Balance entries are created only by the commit procedure and never change.
	EntryKindBalance EntryKind = "balance"
)

// Account is a named ledger container owning entries.
// ID and CreatedAt are immutable; Name is unique across live accounts.
type Account struct {
	ID        uuid.UUID
	Name      string
	Notes     string
	CreatedAt time.Time
}

// Entry is one row in an account's history: a credit, a debit, or a balance
// snapshot. Credits and debits start pending and are either canceled
// (hard-deleted) or committed; once committed an entry is immutable.
type Entry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Kind      EntryKind
	Amount    decimal.Decimal
	// Description is optional free text supplied at append time.
	Description string
	// Replaces links a balance entry to its immediate predecessor on the same
	// account. Nil for the genesis snapshot and for credits/debits.
	Replaces *uuid.UUID
	// Committed is always true for balance entries.
	Committed bool
	// CommittedBy references the balance entry that attributed this credit or
	// debit; balance entries self-reference at creation.
	CommittedBy *uuid.UUID
	// CommittedAt is set exactly when Committed becomes true.
	CommittedAt *time.Time
	// CreatedAt is server-assigned and strictly monotonic per account.
	CreatedAt time.Time
}

// IsPending reports whether the entry is a credit or debit not yet attributed
// to a balance snapshot.
func (e Entry) IsPending() bool {
	return !e.Committed && (e.Kind == EntryKindCredit || e.Kind == EntryKindDebit)
}

// Signed returns the entry amount with the sign it contributes to a balance:
// positive for credits, negative for debits, zero otherwise.
func (e Entry) Signed() decimal.Decimal {
	switch e.Kind {
	case EntryKindCredit:
		return e.Amount
	case EntryKindDebit:
		return e.Amount.Neg()
	default:
		return decimal.Zero
	}
}

// EntrySummary aggregates a set of pending entries of one kind.
type EntrySummary struct {
	Count   int
	Total   decimal.Decimal
	Entries []Entry
}

// BalanceView is the consistent per-account snapshot returned by balance reads
// and by commit. It is computed under the account lock so the committed
// snapshot and the pending set never tear.
type BalanceView struct {
	AccountID        uuid.UUID
	AccountName      string
	AccountCreatedAt time.Time
	// LatestBalanceEntryID and BalanceTimestamp are nil until the first commit
	// (or genesis balance) exists.
	LatestBalanceEntryID *uuid.UUID
	BalanceTimestamp     *time.Time
	Committed            decimal.Decimal
	Pending              decimal.Decimal
	PendingCredits       EntrySummary
	PendingDebits        EntrySummary
	// CommittedEntryIDs are the credits/debits attributed to the latest
	// balance entry.
	CommittedEntryIDs []uuid.UUID
}

// AsOfBalance is the historical committed balance at one instant. Pending
// entries are never reflected.
type AsOfBalance struct {
	AccountID uuid.UUID
	AsOf      time.Time
	Amount    decimal.Decimal
}

// APIKey is a bearer credential resolved by the auth collaborator.
type APIKey struct {
	ID        uuid.UUID
	Key       string
	Name      string
	Admin     bool
	CreatedAt time.Time
}

// Principal is the authenticated caller identity the engine consumes.
type Principal struct {
	KeyID uuid.UUID
	Name  string
	Admin bool
}
