// Package httpapi wires the HTTP surface of the ledger service. Handlers stay
// thin and delegate every rule to the service layer.
package httpapi

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgersmith/balancebook/internal/service/account"
	"github.com/ledgersmith/balancebook/internal/service/apikey"
	"github.com/ledgersmith/balancebook/internal/service/balance"
	"github.com/ledgersmith/balancebook/internal/service/entry"
	"github.com/ledgersmith/balancebook/internal/storage"
)

// Version is reported by the service info endpoint.
const Version = "1.2.0"

// Server wires handlers and middleware using chi.
type Server struct {
	accounts account.Service
	entries  entry.Service
	balances balance.Service
	keys     apikey.Service
	store    storage.Store
	log      *slog.Logger
	// authEnabled=false admits an implicit admin principal; dev and tests only.
	authEnabled bool
	rt          *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(accounts account.Service, entries entry.Service, balances balance.Service, keys apikey.Service, store storage.Store, authEnabled bool, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(correlationHeader)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		accounts:    accounts,
		entries:     entries,
		balances:    balances,
		keys:        keys,
		store:       store,
		log:         logger,
		authEnabled: authEnabled,
		rt:          r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	// Unauthenticated surface.
	s.rt.Get("/", s.serviceInfo)
	s.rt.Head("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())

	s.rt.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		// Accounts
		r.Put("/accounts", s.createAccount)
		r.Get("/accounts", s.listAccounts)
		r.Get("/accounts/byname/{name}", s.getAccountByName)
		r.Get("/accounts/{id}", s.getAccount)
		r.Head("/accounts/{id}", s.headAccount)
		r.Delete("/accounts/{id}", s.deleteAccount)

		// Entries
		r.Get("/accounts/{id}/entries", s.listEntries)
		r.Post("/accounts/{id}/entries/enumerate", s.enumerateEntries)
		r.Get("/accounts/{id}/entries/pending", s.listPending)
		r.Get("/accounts/{id}/entries/pending/credits", s.listPendingCredits)
		r.Get("/accounts/{id}/entries/pending/debits", s.listPendingDebits)
		r.Put("/accounts/{id}/credits", s.appendCredits)
		r.Put("/accounts/{id}/debits", s.appendDebits)
		r.Delete("/accounts/{id}/entries/{entryId}", s.cancelEntry)

		// Balances
		r.Get("/accounts/{id}/balance", s.getBalance)
		r.Get("/accounts/{id}/balance/asof", s.getBalanceAsOf)
		r.Get("/balances", s.getAllBalances)
		r.Post("/accounts/{id}/commit", s.commit)
		r.Get("/accounts/{id}/verify", s.verify)

		// API keys (admin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/apikeys", s.listAPIKeys)
			r.Put("/apikeys", s.createAPIKey)
			r.Delete("/apikeys/{id}", s.deleteAPIKey)
		})
	})
}
