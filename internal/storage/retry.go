package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgersmith/balancebook/internal/errs"
)

// domainErr reports whether err carries one of the sentinel kinds that must
// surface to the caller unchanged rather than be retried.
func domainErr(err error) bool {
	return errors.Is(err, errs.ErrInvalid) ||
		errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrConflict) ||
		errors.Is(err, errs.ErrUnauthorized) ||
		errors.Is(err, errs.ErrForbidden) ||
		errors.Is(err, errs.ErrCanceled)
}

// Retry runs fn, retrying exactly once on a transient storage failure. fn must
// begin a fresh transaction on each invocation. Domain errors and cancellation
// pass through; a second transient failure surfaces as ErrStorage.
func Retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || domainErr(err) {
		return err
	}
	if ctx.Err() != nil {
		return errs.ErrCanceled
	}
	if err = fn(); err == nil || domainErr(err) {
		return err
	}
	return fmt.Errorf("%v: %w", err, errs.ErrStorage)
}
