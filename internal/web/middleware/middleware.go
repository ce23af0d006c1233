package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/todos/internal/database"
)

type contextKey string

// SessionContextKey is the context key for the request's database session
const SessionContextKey contextKey = "session"

// Logger records each todo API call once it has been answered. Server
// errors are logged at warn so a failing store shows up without -v.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			event := log.Debug()
			if ww.Status() >= http.StatusInternalServerError {
				event = log.Warn()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("route", routePattern(r)).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Todo API call")
		}()
		next.ServeHTTP(ww, r)
	})
}

// routePattern is the matched chi pattern such as /todos/{id}, or the raw
// path when no route matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// SessionOpener opens request-scoped database sessions
type SessionOpener interface {
	OpenSession(ctx context.Context) (*database.Session, error)
}

// Session opens a database session before the handler runs and closes it
// once the handler returns, panics included. The session is available to
// the handler through GetSession.
func Session(db SessionOpener) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := db.OpenSession(r.Context())
			if err != nil {
				log.Error().
					Err(err).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("Failed to open database session")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
				return
			}

			defer func() {
				if err := session.Close(); err != nil {
					log.Error().Err(err).Str("session_id", session.ID).Msg("Failed to close database session")
				}
			}()

			log.Trace().
				Str("session_id", session.ID).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("Session attached to request")

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession retrieves the database session from context
func GetSession(ctx context.Context) *database.Session {
	session, ok := ctx.Value(SessionContextKey).(*database.Session)
	if !ok {
		return nil
	}
	return session
}

// AllowSubnet answers 403 to callers whose connection address falls outside
// allowedNet. It runs before RealIP, so forwarded headers cannot spoof it. A
// nil allowedNet admits everyone.
func AllowSubnet(allowedNet *net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if allowedNet == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ip := remoteIP(r.RemoteAddr); ip == nil || !allowedNet.Contains(ip) {
				log.Warn().
					Str("remote_addr", r.RemoteAddr).
					Str("allowed_subnet", allowedNet.String()).
					Msg("Rejected todo API caller outside allowed subnet")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Forbidden"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// remoteIP accepts host:port or a bare address
func remoteIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}
