package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/auth"
	"github.com/workless-ai/docscan/internal/blob"
	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/pipeline"
)

const (
	serviceName = "docscan"
	version     = "1.0.0"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": version,
	})
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	// Cap the body well above the validation limit; the pipeline reports
	// oversize files as a 400, the cap only guards the parser itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxFileSize+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid request", "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid request", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid request", "failed to read file")
		return
	}

	subject, _ := auth.SubjectFromContext(r.Context())

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	resp, fail := s.pipeline.Process(r.Context(), pipeline.Request{
		UserID:          r.FormValue("user_id"),
		VerifiedSubject: subject,
		FileName:        header.Filename,
		ContentType:     header.Header.Get("Content-Type"),
		Data:            data,
		BaseURL:         scheme + "://" + r.Host,
	})
	if fail != nil {
		if fail.Err != nil {
			zap.L().Error("pipeline failure",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("user_id", r.FormValue("user_id")),
				zap.Error(fail.Err),
			)
		}
		s.writeError(w, r, fail.Status(), fail.Label(), fail.Message)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")

	rc, err := s.blobs.Open(name)
	if eris.Is(err, blob.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "Not found", "file not found")
		return
	}
	if err != nil {
		zap.L().Error("blob open failed", zap.String("file", name), zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "Internal server error", "failed to read file")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", blob.ContentTypeFor(name))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc) //nolint:errcheck
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func errorBody(r *http.Request, label, message string) model.ErrorResponse {
	return model.ErrorResponse{
		Error:     label,
		Message:   message,
		RequestID: RequestIDFromContext(r.Context()),
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, label, message string) {
	writeJSON(w, status, errorBody(r, label, message))
}
