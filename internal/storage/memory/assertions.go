package memory

import "github.com/ledgersmith/balancebook/internal/storage"

// Compile-time assertion that the in-memory store satisfies the full contract.
var _ storage.Store = (*Store)(nil)
