package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/ratelimit"
)

// RateLimit applies the per-minute request ceiling.
//
// The caller is identified by session owner when the route is behind
// RequireSession, otherwise by client IP, so login and register are
// limited per address and everything else per student. An admitted
// request gets X-RateLimit-Remaining; a denied one is answered here with
// 429 and Retry-After and never reaches the handler.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Check(actorKey(r), ratelimit.ClassRequest)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				retryAfter := limiter.RetryAfter(decision)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": apperror.RateLimited(retryAfter).Message,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// actorKey is "user:<owner>" for authenticated requests and "ip:<addr>" otherwise.
func actorKey(r *http.Request) string {
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		return "user:" + sess.Owner
	}
	return "ip:" + clientIP(r)
}

// clientIP strips the port from RemoteAddr. chi's RealIP middleware runs
// first, so proxy headers are already applied.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
