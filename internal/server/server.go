// Package server wires the HTTP surface: routing, CORS, security headers,
// request ids, optional bearer auth, and the rate-limit gate in front of
// the processing pipeline.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/workless-ai/docscan/internal/auth"
	"github.com/workless-ai/docscan/internal/blob"
	"github.com/workless-ai/docscan/internal/pipeline"
	"github.com/workless-ai/docscan/internal/ratelimit"
)

// Options configures the server.
type Options struct {
	CORSOrigins []string
	MaxFileSize int64
}

// Server holds the HTTP handler graph.
type Server struct {
	router      chi.Router
	pipeline    *pipeline.Pipeline
	blobs       blob.Store
	verifier    auth.Verifier
	maxFileSize int64
}

// New assembles the router. Health is exempt from rate limiting; everything
// else passes through the token bucket after auth extraction, so
// authenticated clients are keyed by subject rather than address.
func New(p *pipeline.Pipeline, blobs blob.Store, verifier auth.Verifier, limiter *ratelimit.Limiter, opts Options) *Server {
	s := &Server{
		pipeline:    p,
		blobs:       blobs,
		verifier:    verifier,
		maxFileSize: opts.MaxFileSize,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Process-Time", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	}))
	r.Use(s.bearerAuth)
	r.Use(ratelimit.Middleware(limiter, map[string]bool{"/health": true}))

	r.Get("/health", s.handleHealth)
	r.Post("/process-document", s.handleProcessDocument)
	r.Get("/uploads/{filename}", s.handleUpload)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
