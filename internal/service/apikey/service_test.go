package apikey

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage/memory"
)

func TestInitializeSeedsDefaultAdminKey(t *testing.T) {
	store := memory.New()
	svc := New(store, ledger.NewClock(), "bootstrap-secret")
	ctx := context.Background()

	require.NoError(t, svc.Initialize(ctx))

	p, err := svc.Authenticate(ctx, "bootstrap-secret")
	require.NoError(t, err)
	require.True(t, p.Admin)
	require.Equal(t, "default-admin", p.Name)

	// A second Initialize must not add another key.
	require.NoError(t, svc.Initialize(ctx))
	keys, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestInitializeSkipsWhenKeysExist(t *testing.T) {
	store := memory.New()
	svc := New(store, ledger.NewClock(), "bootstrap-secret")
	ctx := context.Background()

	_, err := svc.Create(ctx, "existing", false)
	require.NoError(t, err)

	require.NoError(t, svc.Initialize(ctx))
	_, err = svc.Authenticate(ctx, "bootstrap-secret")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestInitializeWithoutDefaultKey(t *testing.T) {
	store := memory.New()
	svc := New(store, ledger.NewClock(), "")
	require.NoError(t, svc.Initialize(context.Background()))
	keys, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestAuthenticate(t *testing.T) {
	store := memory.New()
	svc := New(store, ledger.NewClock(), "")
	ctx := context.Background()

	k, err := svc.Create(ctx, "reader", false)
	require.NoError(t, err)
	require.Len(t, k.Key, 64)

	p, err := svc.Authenticate(ctx, k.Key)
	require.NoError(t, err)
	require.Equal(t, k.ID, p.KeyID)
	require.False(t, p.Admin)

	_, err = svc.Authenticate(ctx, "")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestCreateRequiresName(t *testing.T) {
	svc := New(memory.New(), ledger.NewClock(), "")
	_, err := svc.Create(context.Background(), "  ", false)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestDeleteRevokesKey(t *testing.T) {
	store := memory.New()
	svc := New(store, ledger.NewClock(), "")
	ctx := context.Background()

	k, err := svc.Create(ctx, "temp", true)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, k.ID))

	_, err = svc.Authenticate(ctx, k.Key)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}
