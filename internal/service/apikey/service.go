// Package apikey implements the bearer-token collaborator: key issuance,
// lookup into a Principal, and first-run seeding of a default admin key.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ledgersmith/balancebook/internal/errs"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// Service resolves bearer tokens to principals and manages keys.
type Service interface {
	// Initialize seeds the default admin key when the key collection is empty.
	// It is an explicit start-up step; service start fails on error.
	Initialize(ctx context.Context) error
	// Authenticate resolves a bearer token. Unknown or empty tokens fail
	// Unauthorized.
	Authenticate(ctx context.Context, token string) (ledger.Principal, error)
	Create(ctx context.Context, name string, admin bool) (ledger.APIKey, error)
	List(ctx context.Context) ([]ledger.APIKey, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	store storage.Store
	clock *ledger.Clock
	// defaultAdminKey, when non-empty, bootstraps the first admin credential.
	defaultAdminKey string
}

// New constructs the key service.
func New(store storage.Store, clock *ledger.Clock, defaultAdminKey string) Service {
	return &service{store: store, clock: clock, defaultAdminKey: strings.TrimSpace(defaultAdminKey)}
}

func (s *service) Initialize(ctx context.Context) error {
	if s.defaultAdminKey == "" {
		return nil
	}
	existing, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	k := ledger.APIKey{
		ID:        uuid.New(),
		Key:       s.defaultAdminKey,
		Name:      "default-admin",
		Admin:     true,
		CreatedAt: s.clock.Now(),
	}
	err = s.store.InsertAPIKey(ctx, k)
	if errors.Is(err, errs.ErrConflict) {
		// Another instance seeded concurrently.
		return nil
	}
	return err
}

func (s *service) Authenticate(ctx context.Context, token string) (ledger.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ledger.Principal{}, errs.ErrUnauthorized
	}
	k, err := s.store.APIKeyByValue(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Principal{}, errs.ErrUnauthorized
	}
	if err != nil {
		return ledger.Principal{}, err
	}
	return ledger.Principal{KeyID: k.ID, Name: k.Name, Admin: k.Admin}, nil
}

func (s *service) Create(ctx context.Context, name string, admin bool) (ledger.APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return ledger.APIKey{}, fmt.Errorf("name is required: %w", errs.ErrInvalid)
	}
	value, err := generateKey()
	if err != nil {
		return ledger.APIKey{}, err
	}
	k := ledger.APIKey{
		ID:        uuid.New(),
		Key:       value,
		Name:      name,
		Admin:     admin,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertAPIKey(ctx, k); err != nil {
		return ledger.APIKey{}, err
	}
	return k, nil
}

func (s *service) List(ctx context.Context) ([]ledger.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.DeleteAPIKey(ctx, id)
}

func generateKey() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
