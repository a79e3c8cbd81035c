package ledger

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventKind names a ledger state change.
type EventKind string

const (
	EventAccountCreated   EventKind = "account_created"
	EventAccountDeleted   EventKind = "account_deleted"
	EventCreditAdded      EventKind = "credit_added"
	EventDebitAdded       EventKind = "debit_added"
	EventEntryCanceled    EventKind = "entry_canceled"
	EventEntriesCommitted EventKind = "entries_committed"
)

// Event describes one committed state change. Events are emitted only after
// the persistence transaction commits, so observers never see a rolled-back
// change.
type Event struct {
	Kind      EventKind
	AccountID uuid.UUID
	EntryIDs  []uuid.UUID
	At        time.Time
}

// Observer consumes ledger events. Implementations must not block; the
// services invoke Notify synchronously after their transaction commits.
type Observer interface {
	Notify(Event)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Notify(Event) {}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	log *slog.Logger
}

func NewLogObserver(l *slog.Logger) *LogObserver { return &LogObserver{log: l} }

func (o *LogObserver) Notify(ev Event) {
	ids := make([]string, 0, len(ev.EntryIDs))
	for _, id := range ev.EntryIDs {
		ids = append(ids, id.String())
	}
	o.log.Info("ledger event",
		"kind", string(ev.Kind),
		"account_id", ev.AccountID.String(),
		"entry_ids", ids,
		"at", ev.At,
	)
}
