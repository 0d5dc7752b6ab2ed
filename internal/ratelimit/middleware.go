package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/auth"
	"github.com/workless-ai/docscan/internal/model"
)

// ClientKey derives the bucket key for a request. Authenticated subject id
// takes precedence over network address; behind a proxy the first hop of
// X-Forwarded-For identifies the client.
func ClientKey(r *http.Request) string {
	if sub, ok := auth.SubjectFromContext(r.Context()); ok {
		return "user:" + sub
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return "ip:" + first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

// Middleware applies the limiter to every request except the exempt paths
// (health and introspection routes). Rate-limit headers are set on all
// non-exempt responses; denials get a Retry-After equal to the period.
func Middleware(l *Limiter, exempt map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientKey(r)
			d := l.Admit(key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Capacity()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				zap.L().Warn("rate limit exceeded", zap.String("client", key))
				retryAfter := int(l.Period().Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(model.ErrorResponse{ //nolint:errcheck
					Error: "Rate limit exceeded",
					Message: fmt.Sprintf("Too many requests. Limit: %d per %d seconds",
						l.Capacity(), retryAfter),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
