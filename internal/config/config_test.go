package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, StoreSQLite, cfg.Store.Kind)
	require.Equal(t, "balancebook.db", cfg.Store.Path)
	require.Equal(t, 30, cfg.Store.ConnectionTimeout)
	require.Equal(t, 100, cfg.Store.MaxPoolSize)
	require.True(t, cfg.Auth.Enabled)
	require.False(t, cfg.Ledger.RejectNegativeCommit)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":9090"
store:
  kind: memory
auth:
  enabled: false
ledger:
  reject_negative_commit: true
log:
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, StoreMemory, cfg.Store.Kind)
	require.False(t, cfg.Auth.Enabled)
	require.True(t, cfg.Ledger.RejectNegativeCommit)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("BALANCEBOOK_SERVER_ADDR", ":7070")
	t.Setenv("BALANCEBOOK_STORE_KIND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.Addr)
	require.Equal(t, StoreMemory, cfg.Store.Kind)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			Store: StoreConfig{Kind: StoreMemory, ConnectionTimeout: 30, MaxPoolSize: 100},
			Log:   LogConfig{Format: "json"},
		}
	}

	cfg := base()
	cfg.Store.Kind = "redis"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Kind = StoreSQLite
	cfg.Store.Path = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.Kind = StorePostgres
	cfg.Store.DSN = ""
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.ConnectionTimeout = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Store.MaxPoolSize = 501
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Log.Format = "xml"
	require.Error(t, cfg.Validate())
}
