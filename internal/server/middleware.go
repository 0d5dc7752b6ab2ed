package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/auth"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id assigned by requestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID assigns a UUID to each request and reports it plus the handler
// wall time in response headers. Headers are immutable once the response
// status goes out, so the timing header is stamped on the first write, not
// after the handler returns.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		w.Header().Set("X-Request-ID", id)

		tw := &timedWriter{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(tw, r.WithContext(ctx))
		// Handlers that never write still get the header; net/http sends
		// the implicit 200 after the handler returns.
		tw.stamp()
	})
}

// timedWriter stamps X-Process-Time just before the response headers are
// flushed.
type timedWriter struct {
	http.ResponseWriter
	start   time.Time
	stamped bool
}

func (t *timedWriter) stamp() {
	if t.stamped {
		return
	}
	t.stamped = true
	t.Header().Set("X-Process-Time", fmt.Sprintf("%.4f", time.Since(t.start).Seconds()))
}

func (t *timedWriter) WriteHeader(status int) {
	t.stamp()
	t.ResponseWriter.WriteHeader(status)
}

func (t *timedWriter) Write(b []byte) (int, error) {
	t.stamp()
	return t.ResponseWriter.Write(b)
}

// securityHeaders sets the standard hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; "+
				"img-src 'self' data: https:; font-src 'self' data:; connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// bearerAuth verifies an Authorization bearer credential when present and
// stores the subject in the context. Auth is optional: no credential passes
// through, but a present-and-invalid one is rejected with 401.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, r, http.StatusUnauthorized, "Unauthorized", "invalid authorization header")
			return
		}

		subject, err := s.verifier.Verify(token)
		if err != nil {
			zap.L().Warn("auth: token rejected", zap.Error(err))
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeError(w, r, http.StatusUnauthorized, "Unauthorized", "invalid authentication credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), subject)))
	})
}

// recoverer converts panics into a generic 500 tagged with the request id,
// without leaking internal detail.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Error("unhandled panic",
					zap.Any("panic", rec),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody(r,
					"Internal server error",
					"an unexpected error occurred, please try again later"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
