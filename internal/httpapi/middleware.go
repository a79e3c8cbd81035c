package httpapi

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"log/slog"

	"github.com/google/uuid"
	"github.com/ledgersmith/balancebook/internal/ledger"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// correlationHeader echoes the chi request id so every response carries a
// per-request correlation identifier.
func correlationHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := chimw.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-Id", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs basic request info at INFO and outcome on completion.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			reqID := chimw.GetReqID(r.Context())
			l.Info("request started", "req_id", reqID, "method", r.Method, "path", r.URL.Path)

			next.ServeHTTP(ww, r)

			l.Info("request complete",
				"req_id", reqID,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			)
		})
	}
}

// recoverer logs panics as ERROR and returns 500.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					reqID := chimw.GetReqID(r.Context())
					l.Error("panic", "req_id", reqID, "err", rec, "stack", string(debug.Stack()))
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func parseBearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if !strings.HasPrefix(h, "Bearer ") && !strings.HasPrefix(h, "bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[len("Bearer "):]), true
}

// authenticate resolves the bearer token into a Principal and stores it in the
// request context. With auth disabled an implicit admin principal is admitted.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authEnabled {
			p := ledger.Principal{KeyID: uuid.Nil, Name: "anonymous-admin", Admin: true}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal, p)))
			return
		}
		tok, ok := parseBearerToken(r)
		if !ok {
			writeErr(w, http.StatusUnauthorized, "missing bearer token", "unauthorized")
			return
		}
		p, err := s.keys.Authenticate(r.Context(), tok)
		if err != nil {
			s.writeServiceErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal, p)))
	})
}

// requireAdmin gates admin-only endpoints on the resolved principal.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok || !p.Admin {
			writeErr(w, http.StatusForbidden, "admin privileges required", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func principalFrom(ctx context.Context) (ledger.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(ledger.Principal)
	return p, ok
}
