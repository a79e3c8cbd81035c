package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/balancebook/internal/errs"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetryRecoversFromOneTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRetrySecondFailureIsStorage(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return errors.New("disk full")
	})
	require.ErrorIs(t, err, errs.ErrStorage)
	require.Equal(t, 2, calls)
}

func TestRetryDomainErrorsPassThrough(t *testing.T) {
	for _, sentinel := range []error{
		errs.ErrInvalid, errs.ErrNotFound, errs.ErrConflict,
		errs.ErrUnauthorized, errs.ErrForbidden, errs.ErrCanceled,
	} {
		calls := 0
		err := Retry(context.Background(), func() error {
			calls++
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		require.Equal(t, 1, calls, "sentinel %v must not be retried", sentinel)
	}
}

func TestRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func() error {
		calls++
		cancel()
		return errors.New("interrupted")
	})
	require.ErrorIs(t, err, errs.ErrCanceled)
	require.Equal(t, 1, calls)
}
