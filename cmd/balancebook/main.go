package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ledgersmith/balancebook/internal/config"
	"github.com/ledgersmith/balancebook/internal/httpapi"
	"github.com/ledgersmith/balancebook/internal/ledger"
	"github.com/ledgersmith/balancebook/internal/service/account"
	"github.com/ledgersmith/balancebook/internal/service/apikey"
	"github.com/ledgersmith/balancebook/internal/service/balance"
	"github.com/ledgersmith/balancebook/internal/service/entry"
	"github.com/ledgersmith/balancebook/internal/storage"
	"github.com/ledgersmith/balancebook/internal/storage/memory"
	pgstore "github.com/ledgersmith/balancebook/internal/storage/postgres"
	sqlstore "github.com/ledgersmith/balancebook/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Log)
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage backend unavailable", "kind", string(cfg.Store.Kind), "err", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("storage backend ready", "kind", string(cfg.Store.Kind))

	locks := ledger.NewLockTable()
	clock := ledger.NewClock()
	observer := ledger.NewLogObserver(logger)

	keys := apikey.New(store, clock, cfg.Auth.DefaultAdminKey)
	if err := keys.Initialize(ctx); err != nil {
		logger.Error("api key bootstrap failed", "err", err)
		os.Exit(1)
	}

	accounts := account.New(store, locks, clock, observer)
	entries := entry.New(store, locks, clock, observer)
	balances := balance.New(store, locks, clock, observer, logger, balance.Options{
		RejectNegativeCommit: cfg.Ledger.RejectNegativeCommit,
	})

	api := httpapi.New(accounts, entries, balances, keys, store, cfg.Auth.Enabled, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("balancebook listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
}

// openStore connects the configured backend, bounded by the connection
// timeout.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Store.ConnectionTimeout)*time.Second)
	defer cancel()

	switch cfg.Store.Kind {
	case config.StoreMemory:
		logger.Warn("memory backend holds no durable state")
		return memory.New(), nil
	case config.StoreSQLite:
		return sqlstore.Open(connectCtx, cfg.Store.Path, cfg.Store.MaxPoolSize)
	default:
		var queryLog *slog.Logger
		if cfg.Store.LogQueries {
			queryLog = logger
		}
		return pgstore.Open(connectCtx, cfg.Store.DSN, cfg.Store.MaxPoolSize, queryLog)
	}
}

func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg config.LogConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
