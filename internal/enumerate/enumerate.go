// Package enumerate implements the shared pagination and ordering policy used
// for accounts, entries and API keys. Backends return filtered rows in the
// requested order; Paginate applies skip/continuation-token windows and shapes
// the page.
package enumerate

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ledgersmith/balancebook/internal/errs"
)

// Ordering selects the sort applied before paging. Amount orderings are
// meaningful for entries only; account enumeration falls back to the
// corresponding created ordering.
type Ordering string

const (
	CreatedAscending  Ordering = "createdAscending"
	CreatedDescending Ordering = "createdDescending"
	AmountAscending   Ordering = "amountAscending"
	AmountDescending  Ordering = "amountDescending"
)

const (
	// MaxResultsLimit caps a single page.
	MaxResultsLimit = 1000
	// DefaultMaxResults applies when the caller omits maxResults.
	DefaultMaxResults = 1000
)

// Query carries the caller's paging parameters.
type Query struct {
	MaxResults int
	Skip       int
	// ContinuationToken is the id of the last row of the prior page. Mutually
	// exclusive with Skip.
	ContinuationToken *uuid.UUID
	Ordering          Ordering
}

// Normalize applies defaults and validates ranges and exclusivity.
func (q Query) Normalize() (Query, error) {
	if q.MaxResults == 0 {
		q.MaxResults = DefaultMaxResults
	}
	if q.MaxResults < 1 || q.MaxResults > MaxResultsLimit {
		return q, fmt.Errorf("maxResults must be in [1,%d]: %w", MaxResultsLimit, errs.ErrInvalid)
	}
	if q.Skip < 0 {
		return q, fmt.Errorf("skip must be >= 0: %w", errs.ErrInvalid)
	}
	if q.Skip > 0 && q.ContinuationToken != nil {
		return q, fmt.Errorf("skip and continuationToken are mutually exclusive: %w", errs.ErrInvalid)
	}
	switch q.Ordering {
	case "":
		q.Ordering = CreatedAscending
	case CreatedAscending, CreatedDescending, AmountAscending, AmountDescending:
	default:
		return q, fmt.Errorf("unknown ordering %q: %w", q.Ordering, errs.ErrInvalid)
	}
	return q, nil
}

// ForAccounts maps amount orderings onto created orderings, since accounts
// carry no amount.
func (q Query) ForAccounts() Query {
	switch q.Ordering {
	case AmountAscending:
		q.Ordering = CreatedAscending
	case AmountDescending:
		q.Ordering = CreatedDescending
	}
	return q
}

// Page is one window of an enumeration scan.
type Page[T any] struct {
	TotalRecords     int
	Objects          []T
	RecordsRemaining int
	EndOfResults     bool
	// ContinuationToken is the id of the last returned row while the scan is
	// not exhausted, nil otherwise.
	ContinuationToken *uuid.UUID
}

// Paginate windows rows (already filtered and ordered, with ties broken by id
// so tokens neither skip nor repeat rows) according to q. The id func extracts
// the row identity used for continuation tokens.
func Paginate[T any](rows []T, q Query, id func(T) uuid.UUID) (Page[T], error) {
	q, err := q.Normalize()
	if err != nil {
		return Page[T]{}, err
	}
	start := q.Skip
	if q.ContinuationToken != nil {
		start = len(rows)
		for i, row := range rows {
			if id(row) == *q.ContinuationToken {
				start = i + 1
				break
			}
		}
	}
	if start > len(rows) {
		start = len(rows)
	}
	end := start + q.MaxResults
	if end > len(rows) {
		end = len(rows)
	}
	objects := make([]T, end-start)
	copy(objects, rows[start:end])
	page := Page[T]{
		TotalRecords:     len(rows),
		Objects:          objects,
		RecordsRemaining: len(rows) - end,
	}
	page.EndOfResults = page.RecordsRemaining == 0
	if !page.EndOfResults && len(objects) > 0 {
		last := id(objects[len(objects)-1])
		page.ContinuationToken = &last
	}
	return page, nil
}
