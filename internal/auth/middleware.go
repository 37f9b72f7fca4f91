package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/debugging-platform/internal/security"
)

// contextKey is unexported so only this package can read or write
// the session stored in a request context.
type contextKey string

const sessionKey contextKey = "session"

// SessionHeader is the alternative to an Authorization: Bearer header.
const SessionHeader = "X-Session-Token"

// SessionCookie is set on login for browser clients.
const SessionCookie = "session_token"

// SessionValidator is the part of security.Manager the middleware needs.
type SessionValidator interface {
	ValidateSession(token string) (security.Session, bool)
}

// RequireSession rejects requests without a live session token.
//
// The token is read from "Authorization: Bearer <token>", the
// X-Session-Token header or the session cookie, in that order. A successful lookup also slides the session's
// expiry forward, so every authenticated request keeps the session alive.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireSession(sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w, "valid authentication required")
				return
			}

			sess, ok := sessions.ValidateSession(token)
			if !ok {
				unauthorized(w, "session expired or invalid")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// RequireRole must run after RequireSession. It returns 403 unless the
// session carries the given role.
func RequireRole(role security.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := SessionFromContext(r.Context())
			if !ok {
				unauthorized(w, "valid authentication required")
				return
			}
			if sess.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"insufficient permissions"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess security.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext retrieves the session stored by RequireSession.
//
// Usage in handlers:
//
//	sess, ok := auth.SessionFromContext(r.Context())
//	if !ok {
//	    // route is not behind RequireSession
//	}
func SessionFromContext(ctx context.Context) (security.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(security.Session)
	return sess, ok && sess.Owner != ""
}

// TokenFromRequest extracts the raw session token, or "" if none was sent.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := strings.TrimSpace(r.Header.Get(SessionHeader)); token != "" {
		return token
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
