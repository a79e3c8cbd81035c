// Package config loads service configuration from defaults, an optional YAML
// file, and BALANCEBOOK_-prefixed environment variables, in that priority
// order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// StoreKind selects the persistence backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreSQLite   StoreKind = "sqlite"
	StorePostgres StoreKind = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Kind StoreKind `mapstructure:"kind"`
	// Path is the database file for the sqlite backend.
	Path string `mapstructure:"path"`
	// DSN is the connection string for the postgres backend.
	DSN string `mapstructure:"dsn"`
	// ConnectionTimeout bounds backend connection attempts, in seconds.
	ConnectionTimeout int  `mapstructure:"connection_timeout"`
	MaxPoolSize       int  `mapstructure:"max_pool_size"`
	LogQueries        bool `mapstructure:"log_queries"`
}

type AuthConfig struct {
	// Enabled gates bearer-token authentication. When false the service admits
	// an implicit admin principal; test and dev only.
	Enabled bool `mapstructure:"enabled"`
	// DefaultAdminKey seeds an admin API key on first run when set.
	DefaultAdminKey string `mapstructure:"default_admin_key"`
}

type LedgerConfig struct {
	// RejectNegativeCommit makes Commit fail instead of producing a negative
	// committed balance. The reference behavior permits negative balances.
	RejectNegativeCommit bool `mapstructure:"reject_negative_commit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("store.kind", string(StoreSQLite))
	v.SetDefault("store.path", "balancebook.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.connection_timeout", 30)
	v.SetDefault("store.max_pool_size", 100)
	v.SetDefault("store.log_queries", false)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.default_admin_key", "")
	v.SetDefault("ledger.reject_negative_commit", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. path may be empty, in which case only defaults and
// environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("BALANCEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and backend-specific requirements.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.kind %q", c.Store.Kind)
	}
	if c.Store.ConnectionTimeout < 1 || c.Store.ConnectionTimeout > 300 {
		return fmt.Errorf("store.connection_timeout must be in [1,300], got %d", c.Store.ConnectionTimeout)
	}
	if c.Store.MaxPoolSize < 1 || c.Store.MaxPoolSize > 500 {
		return fmt.Errorf("store.max_pool_size must be in [1,500], got %d", c.Store.MaxPoolSize)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}
