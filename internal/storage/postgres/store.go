package postgres

// Package postgres provides a pgx-backed storage.Store. It is intentionally
// small and explicit: mapping between domain entities and SQL rows, plus the
// statements and transactions the contract requires. Amounts travel as text on
// the wire and are persisted as numeric(38,10); instants as timestamptz.

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/shopspring/decimal"

	"github.com/ledgersmith/balancebook/internal/enumerate"
	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

const schema = `
create table if not exists accounts (
    id         uuid primary key,
    name       text not null unique,
    notes      text not null default '',
    created_at timestamptz not null
);
create table if not exists entries (
    id           uuid primary key,
    account_id   uuid not null,
    kind         text not null,
    amount       numeric(38,10) not null,
    description  text not null default '',
    replaces     uuid,
    committed    boolean not null default false,
    committed_by uuid,
    committed_at timestamptz,
    created_at   timestamptz not null
);
create index if not exists idx_entries_account_created on entries(account_id, created_at, id);
create index if not exists idx_entries_account_kind on entries(account_id, kind, created_at);
create table if not exists api_keys (
    id         uuid primary key,
    key        text not null unique,
    name       text not null,
    admin      boolean not null default false,
    created_at timestamptz not null
);
`

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string and
// bootstraps the schema. A non-nil queryLog traces every statement at DEBUG.
func Open(ctx context.Context, dsn string, maxConns int, queryLog *slog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if queryLog != nil {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   queryLogger{log: queryLog},
			LogLevel: tracelog.LogLevelDebug,
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// queryLogger adapts slog to pgx's tracelog interface.
type queryLogger struct {
	log *slog.Logger
}

func (l queryLogger) Log(ctx context.Context, _ tracelog.LogLevel, msg string, data map[string]any) {
	attrs := make([]any, 0, len(data)*2)
	for k, v := range data {
		attrs = append(attrs, k, v)
	}
	l.log.DebugContext(ctx, msg, attrs...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Accounts ---

func (s *Store) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := s.pool.Exec(ctx, `
        insert into accounts (id, name, notes, created_at) values ($1,$2,$3,$4)
    `, a.ID, a.Name, a.Notes, a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	var a ledger.Account
	err := s.pool.QueryRow(ctx, `
        select id, name, notes, created_at from accounts where id = $1
    `, id).Scan(&a.ID, &a.Name, &a.Notes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) AccountByName(ctx context.Context, name string) (ledger.Account, error) {
	var a ledger.Account
	err := s.pool.QueryRow(ctx, `
        select id, name, notes, created_at from accounts where name = $1
    `, name).Scan(&a.ID, &a.Name, &a.Notes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAccounts(ctx context.Context, f storage.AccountFilter) ([]ledger.Account, error) {
	where := []string{"true"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.NameContains != "" {
		where = append(where, "position("+arg(f.NameContains)+" in name) > 0")
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= "+arg(*f.CreatedTo))
	}
	dir := "asc"
	if f.Ordering == enumerate.CreatedDescending || f.Ordering == enumerate.AmountDescending {
		dir = "desc"
	}
	rows, err := s.pool.Query(ctx, `
        select id, name, notes, created_at from accounts
        where `+strings.Join(where, " and ")+`
        order by created_at `+dir+`, id asc
    `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		var a ledger.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Entries ---

const entryCols = `id, account_id, kind, amount::text, description, replaces, committed, committed_by, committed_at, created_at`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertEntry(ctx context.Context, ex execer, e ledger.Entry) error {
	_, err := ex.Exec(ctx, `
        insert into entries
            (id, account_id, kind, amount, description, replaces, committed, committed_by, committed_at, created_at)
        values ($1,$2,$3,$4::numeric,$5,$6,$7,$8,$9,$10)
    `, e.ID, e.AccountID, string(e.Kind), e.Amount.String(), e.Description,
		e.Replaces, e.Committed, e.CommittedBy, e.CommittedAt, e.CreatedAt)
	return err
}

func (s *Store) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, s.pool, e)
}

func (s *Store) InsertEntries(ctx context.Context, entries []ledger.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := insertEntry(ctx, tx, e); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var e ledger.Entry
	var kind, amount string
	err := row.Scan(&e.ID, &e.AccountID, &kind, &amount, &e.Description, &e.Replaces, &e.Committed, &e.CommittedBy, &e.CommittedAt, &e.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Kind = ledger.EntryKind(kind)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func (s *Store) EntryByID(ctx context.Context, accountID, entryID uuid.UUID) (ledger.Entry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
        select `+entryCols+` from entries where id = $1 and account_id = $2
    `, entryID, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, errs.ErrNotFound
	}
	return e, err
}

func (s *Store) EntriesByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
        select `+entryCols+` from entries where id = any($1)
    `, ids)
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
	args := []any{accountID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	where := []string{"account_id = $1"}
	if len(f.Kinds) == 0 {
		where = append(where, "kind != "+arg(string(ledger.EntryKindBalance)))
	} else {
		kinds := make([]string, 0, len(f.Kinds))
		for _, k := range f.Kinds {
			kinds = append(kinds, string(k))
		}
		where = append(where, "kind = any("+arg(kinds)+")")
	}
	if f.Committed != nil {
		where = append(where, "committed = "+arg(*f.Committed))
	}
	if f.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*f.CreatedFrom))
	}
	if f.CreatedTo != nil {
		where = append(where, "created_at <= "+arg(*f.CreatedTo))
	}
	if f.AmountMin != nil {
		where = append(where, "amount >= "+arg(f.AmountMin.String())+"::numeric")
	}
	if f.AmountMax != nil {
		where = append(where, "amount <= "+arg(f.AmountMax.String())+"::numeric")
	}
	order := "created_at asc, id asc"
	switch f.Ordering {
	case enumerate.CreatedDescending:
		order = "created_at desc, id asc"
	case enumerate.AmountAscending:
		order = "amount asc, id asc"
	case enumerate.AmountDescending:
		order = "amount desc, id asc"
	}
	rows, err := s.pool.Query(ctx, `
        select `+entryCols+` from entries
        where `+strings.Join(where, " and ")+`
        order by `+order+`
    `, args...)
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
	ct, err := s.pool.Exec(ctx, `
        delete from entries where id = $1 and account_id = $2
    `, entryID, accountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *Store) LatestBalanceEntry(ctx context.Context, accountID uuid.UUID) (ledger.Entry, bool, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
        select `+entryCols+` from entries
        where account_id = $1 and kind = $2
        order by created_at desc, id desc limit 1
    `, accountID, string(ledger.EntryKindBalance)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

func (s *Store) BalanceEntryAsOf(ctx context.Context, accountID uuid.UUID, t time.Time) (ledger.Entry, bool, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `
        select `+entryCols+` from entries
        where account_id = $1 and kind = $2 and created_at <= $3
        order by created_at desc, id desc limit 1
    `, accountID, string(ledger.EntryKindBalance), t))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Entry{}, false, nil
	}
	if err != nil {
		return ledger.Entry{}, false, err
	}
	return e, true, nil
}

// --- API keys ---

func (s *Store) InsertAPIKey(ctx context.Context, k ledger.APIKey) error {
	_, err := s.pool.Exec(ctx, `
        insert into api_keys (id, key, name, admin, created_at) values ($1,$2,$3,$4,$5)
    `, k.ID, k.Key, k.Name, k.Admin, k.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrConflict
	}
	return err
}

func (s *Store) APIKeyByValue(ctx context.Context, key string) (ledger.APIKey, error) {
	var k ledger.APIKey
	err := s.pool.QueryRow(ctx, `
        select id, key, name, admin, created_at from api_keys where key = $1
    `, key).Scan(&k.ID, &k.Key, &k.Name, &k.Admin, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.APIKey{}, errs.ErrNotFound
	}
	return k, err
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]ledger.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
        select id, key, name, admin, created_at from api_keys order by created_at asc, id asc
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.APIKey, 0)
	for rows.Next() {
		var k ledger.APIKey
		if err := rows.Scan(&k.ID, &k.Key, &k.Name, &k.Admin, &k.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from api_keys where id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Transactions ---

// Tx wraps a pgx.Tx to satisfy storage.Tx.
type Tx struct{ tx pgx.Tx }

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) InsertEntry(ctx context.Context, e ledger.Entry) error {
	return insertEntry(ctx, t.tx, e)
}

func (t *Tx) MarkEntriesCommitted(ctx context.Context, ids []uuid.UUID, balanceID uuid.UUID, at time.Time) error {
	ct, err := t.tx.Exec(ctx, `
        update entries set committed = true, committed_by = $1, committed_at = $2 where id = any($3)
    `, balanceID, at, ids)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != int64(len(ids)) {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteEntriesByAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `delete from entries where account_id = $1`, accountID)
	return err
}

func (t *Tx) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `delete from accounts where id = $1`, accountID)
	return err
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		_ = t.tx.Rollback(ctx)
		return errs.ErrCanceled
	}
	return t.tx.Commit(ctx)
}

func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

var _ storage.Store = (*Store)(nil)
