package sqlite

// Package sqlite provides the embedded single-file reference backend, built on
// database/sql with the CGo-free modernc.org/sqlite driver. Amounts are stored
// as fixed-point integers scaled by 1e8 so SQL ordering and range filters stay
// exact; instants are stored as UTC microseconds.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

const schema = `
create table if not exists accounts (
    id            text primary key,
    name          text not null unique,
    notes         text not null default '',
    created_at_us integer not null
);
create table if not exists entries (
    id              text primary key,
    account_id      text not null,
    kind            text not null,
    amount_e8       integer not null,
    description     text not null default '',
    replaces        text,
    committed       integer not null default 0,
    committed_by    text,
    committed_at_us integer,
    created_at_us   integer not null
);
create index if not exists idx_entries_account_created on entries(account_id, created_at_us, id);
create index if not exists idx_entries_account_kind on entries(account_id, kind, created_at_us);
create table if not exists api_keys (
    id            text primary key,
    key           text not null unique,
    name          text not null,
    admin         integer not null default 0,
    created_at_us integer not null
);
`

// amountScale is the fixed-point scale for persisted amounts.
const amountScale = 8

// Store implements storage.Store over a single-file sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applies pragmas and bootstraps
// the schema. maxConns bounds the connection pool; sqlite serializes writers
// regardless.
func Open(ctx context.Context, path string, maxConns int) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if maxConns < 1 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close releases the underlying pool.
func (s *Store) Close() { _ = s.db.Close() }

var (
	maxE8 = decimal.NewFromInt(math.MaxInt64)
	minE8 = decimal.NewFromInt(math.MinInt64)
)

// toE8 converts an amount to the persisted fixed-point representation.
// IntPart is undefined once the scaled value leaves int64 range, so amounts
// beyond what the column can hold are rejected rather than stored corrupted.
func toE8(d decimal.Decimal) (int64, error) {
	v := d.Shift(amountScale).Round(0)
	if v.GreaterThan(maxE8) || v.LessThan(minE8) {
		return 0, fmt.Errorf("amount %s exceeds the storable range: %w", d, errs.ErrInvalid)
	}
	return v.IntPart(), nil
}

func fromE8(v int64) decimal.Decimal {
	return decimal.New(v, -amountScale)
}

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

// --- Accounts ---

func (s *Store) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.db.ExecContext(ctx, `
        insert into accounts (id, name, notes, created_at_us) values (?,?,?,?)
    `, a.ID.String(), a.Name, a.Notes, toMicros(a.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return errs.ErrConflict
	}
	return err
}

func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
        select id, name, notes, created_at_us from accounts where id = ?
    `, id.String()))
}

func (s *Store) AccountByName(ctx context.Context, name string) (ledger.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
        select id, name, notes, created_at_us from accounts where name = ?
    `, name))
}

func (s *Store) scanAccount(row *sql.Row) (ledger.Account, error) {
	var a ledger.Account
	var id string
	var createdUS int64
	err := row.Scan(&id, &a.Name, &a.Notes, &createdUS)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	a.ID, err = uuid.Parse(id)
	if err != nil {
		return ledger.Account{}, err
	}
	a.CreatedAt = fromMicros(createdUS)
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, f storage.AccountFilter) ([]ledger.Account, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.NameContains != "" {
		// instr is case-sensitive, matching name-uniqueness semantics.
		where = append(where, "instr(name, ?) > 0")
		args = append(args, f.NameContains)
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at_us >= ?")
		args = append(args, toMicros(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at_us <= ?")
		args = append(args, toMicros(*f.CreatedTo))
	}
	dir := "asc"
	if f.Ordering == enumerate.CreatedDescending || f.Ordering == enumerate.AmountDescending {
		dir = "desc"
	}
	q := fmt.Sprintf(`
        select id, name, notes, created_at_us from accounts
        where %s order by created_at_us %s, id asc
    `, strings.Join(where, " and "), dir)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		var a ledger.Account
		var id string
		var createdUS int64
		if err := rows.Scan(&id, &a.Name, &a.Notes, &createdUS); err != nil {
			return nil, err
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMicros(createdUS)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Entries ---

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntry(ctx context.Context, ex execer, e ledger.Entry) error {
	var replaces, committedBy any
	if e.Replaces != nil {
		replaces = e.Replaces.String()
	}
	if e.CommittedBy != nil {
		committedBy = e.CommittedBy.String()
	}
	var committedAt any
	if e.CommittedAt != nil {
		committedAt = toMicros(*e.CommittedAt)
	}
	amountE8, err := toE8(e.Amount)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
        insert into entries
            (id, account_id, kind, amount_e8, description, replaces, committed, committed_by, committed_at_us, created_at_us)
        values (?,?,?,?,?,?,?,?,?,?)
    `, e.ID.String(), e.AccountID.String(), string(e.Kind), amountE8, e.Description,
		replaces, e.Committed, committedBy, committedAt, toMicros(e.CreatedAt))
	return err
}

func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, s.db, e)
}

func (s *Store) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const entryCols = `id, account_id, kind, amount_e8, description, replaces, committed, committed_by, committed_at_us, created_at_us`

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	var id, accountID, kind string
	var amountE8, createdUS int64
	var replaces, committedBy sql.NullString
	var committedUS sql.NullInt64
	err := row.Scan(&id, &accountID, &kind, &amountE8, &e.Description, &replaces, &e.Committed, &committedBy, &committedUS, &createdUS)
	if err != nil {
		return ledger.Entry{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return ledger.Entry{}, err
	}
	if e.AccountID, err = uuid.Parse(accountID); err != nil {
		return ledger.Entry{}, err
	}
	e.Kind = ledger.EntryKind(kind)
	e.Amount = fromE8(amountE8)
	e.CreatedAt = fromMicros(createdUS)
	if replaces.Valid {
		u, err := uuid.Parse(replaces.String)
		if err != nil {
			return ledger.Entry{}, err
		}
		e.Replaces = &u
	}
	if committedBy.Valid {
		u, err := uuid.Parse(committedBy.String)
		if err != nil {
			return ledger.Entry{}, err
		}
		e.CommittedBy = &u
	}
	if committedUS.Valid {
		t := fromMicros(committedUS.Int64)
		e.CommittedAt = &t
	}
	return e, nil
}

func (s *Store) EntryByID(ctx context.Context, accountID, entryID uuid.UUID) (ledger.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
        select `+entryCols+` from entries where id = ? and account_id = ?
    `, entryID.String(), accountID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, err
}

func (s *Store) EntriesByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}
	rows, err := s.db.QueryContext(ctx, `
        select `+entryCols+` from entries where id in (`+placeholders+`)
    `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0, len(ids))
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, accountID uuid.UUID, f storage.EntryFilter) ([]ledger.Entry, error) {
	where := []string{"account_id = ?"}
	args := []any{accountID.String()}
	if len(f.Kinds) == 0 {
		where = append(where, "kind != ?")
		args = append(args, string(ledger.EntryKindBalance))
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Kinds)), ",")
		where = append(where, "kind in ("+placeholders+")")
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	if f.Committed != nil {
		where = append(where, "committed = ?")
		args = append(args, *f.Committed)
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at_us >= ?")
		args = append(args, toMicros(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at_us <= ?")
		args = append(args, toMicros(*f.CreatedTo))
	}
	if f.AmountMin != nil {
		v, err := toE8(*f.AmountMin)
		if err != nil {
			return nil, err
		}
		where = append(where, "amount_e8 >= ?")
		args = append(args, v)
	}
	if f.AmountMax != nil {
		v, err := toE8(*f.AmountMax)
		if err != nil {
			return nil, err
		}
		where = append(where, "amount_e8 <= ?")
		args = append(args, v)
	}
	order := "created_at_us asc, id asc"
	switch f.Ordering {
	case enumerate.CreatedDescending:
		order = "created_at_us desc, id asc"
	case enumerate.AmountAscending:
		order = "amount_e8 asc, id asc"
	case enumerate.AmountDescending:
		order = "amount_e8 desc, id asc"
	}
	q := `select ` + entryCols + ` from entries where ` + strings.Join(where, " and ") + ` order by ` + order
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) DeleteEntry(ctx context.Context, accountID, entryID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
        delete from entries where id = ? and account_id = ?
    `, entryID.String(), accountID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) LatestBalanceEntry(ctx context.Context, accountID uuid.UUID) (ledger.Entry, bool, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
        select `+entryCols+` from entries
        where account_id = ? and kind = ?
        order by created_at_us desc, id desc limit 1
    `, accountID.String(), string(ledger.EntryKindBalance)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (s *Store) BalanceEntryAsOf(ctx context.Context, accountID uuid.UUID, t time.Time) (ledger.Entry, bool, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `
        select `+entryCols+` from entries
        where account_id = ? and kind = ? and created_at_us <= ?
        order by created_at_us desc, id desc limit 1
    `, accountID.String(), string(ledger.EntryKindBalance), toMicros(t)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// --- API keys ---

func (s *Store) InsertAPIKey(ctx context.Context, k ledger.APIKey) error {
	_, err := s.db.ExecContext(ctx, `
        insert into api_keys (id, key, name, admin, created_at_us) values (?,?,?,?,?)
    `, k.ID.String(), k.Key, k.Name, k.Admin, toMicros(k.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return errs.ErrConflict
	}
	return err
}

func (s *Store) APIKeyByValue(ctx context.Context, key string) (ledger.APIKey, error) {
	return s.scanAPIKey(s.db.QueryRowContext(ctx, `
        select id, key, name, admin, created_at_us from api_keys where key = ?
    `, key))
}

func (s *Store) scanAPIKey(row *sql.Row) (ledger.APIKey, error) {
	var k ledger.APIKey
	var id string
	var createdUS int64
	err := row.Scan(&id, &k.Key, &k.Name, &k.Admin, &createdUS)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.APIKey{}, err
	}
	if k.ID, err = uuid.Parse(id); err != nil {
		return ledger.APIKey{}, err
	}
	k.CreatedAt = fromMicros(createdUS)
	return k, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]ledger.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
        select id, key, name, admin, created_at_us from api_keys order by created_at_us asc, id asc
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.APIKey, 0)
	for rows.Next() {
		var k ledger.APIKey
		var id string
		var createdUS int64
		if err := rows.Scan(&id, &k.Key, &k.Name, &k.Admin, &createdUS); err != nil {
			return nil, err
		}
		if k.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		k.CreatedAt = fromMicros(createdUS)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `delete from api_keys where id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Transactions ---

// Tx wraps a sql.Tx to satisfy storage.Tx.
type Tx struct{ tx *sql.Tx }

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, t.tx, e)
}

func (t *Tx) MarkEntriesCommitted(ctx context.Context, ids []uuid.UUID, balanceID uuid.UUID, at time.Time) error {
	for _, id := range ids {
		res, err := t.tx.ExecContext(ctx, `
            update entries set committed = 1, committed_by = ?, committed_at_us = ? where id = ?
        `, balanceID.String(), toMicros(at), id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrNotFound
		}
	}
	return nil
}

func (t *Tx) DeleteEntriesByAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `delete from entries where account_id = ?`, accountID.String())
	return err
}

func (t *Tx) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `delete from accounts where id = ?`, accountID.String())
	return err
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback()
		return errs.ErrCanceled
	}
	return t.tx.Commit()
}

func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

var _ storage.Store = (*Store)(nil)
