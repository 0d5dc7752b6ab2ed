// Package pipeline orchestrates one document-processing request: input
// validation, identity check, quota gate, lifecycle tracking, blob
// persistence, provider invocation, normalization, and bookkeeping.
//
// Failures split two ways. Terminal failures (bad input, identity mismatch,
// quota, provider errors) stop the request and surface a typed Failure.
// Bookkeeping failures (quota commit, lifecycle tracking) are fail-open:
// logged and absorbed, never surfaced to the caller.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/blob"
	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/normalize"
	"github.com/workless-ai/docscan/internal/quota"
	"github.com/workless-ai/docscan/internal/scan"
	"github.com/workless-ai/docscan/pkg/anthropic"
)

// FailureKind classifies terminal pipeline failures.
type FailureKind int

const (
	FailValidation FailureKind = iota
	FailAuthMismatch
	FailQuotaExceeded
	FailProvider
	FailInternal
)

// Failure is a terminal pipeline outcome with an HTTP-mappable kind and a
// caller-safe message. Err holds the internal cause for logging only.
type Failure struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

// Status maps the failure kind to an HTTP status code.
func (f *Failure) Status() int {
	switch f.Kind {
	case FailValidation:
		return 400
	case FailAuthMismatch:
		return 403
	case FailQuotaExceeded:
		return 429
	default:
		return 500
	}
}

// Label is the short error name used in the response payload.
func (f *Failure) Label() string {
	switch f.Kind {
	case FailValidation:
		return "Invalid request"
	case FailAuthMismatch:
		return "Forbidden"
	case FailQuotaExceeded:
		return "Quota exceeded"
	case FailProvider:
		return "Processing failed"
	default:
		return "Internal server error"
	}
}

// Request carries one document-processing request through the pipeline.
// VerifiedSubject is empty when no credential was presented.
type Request struct {
	UserID          string
	VerifiedSubject string
	FileName        string
	ContentType     string
	Data            []byte
	BaseURL         string
}

// Config holds the pipeline's validation limits.
type Config struct {
	MaxFileSize  int64
	AllowedTypes []string
}

// Pipeline sequences a document-processing request end to end.
type Pipeline struct {
	provider     anthropic.Provider
	blobs        blob.Store
	quota        *quota.Gate
	tracker      *scan.Tracker
	maxFileSize  int64
	allowedTypes map[string]bool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New builds a Pipeline from its collaborators.
func New(provider anthropic.Provider, blobs blob.Store, gate *quota.Gate, tracker *scan.Tracker, cfg Config) *Pipeline {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = true
	}
	return &Pipeline{
		provider:     provider,
		blobs:        blobs,
		quota:        gate,
		tracker:      tracker,
		maxFileSize:  cfg.MaxFileSize,
		allowedTypes: allowed,
		nowFunc:      time.Now,
	}
}

// Process runs the full sequence for one request. Rate limiting happens
// before this, at the transport boundary.
func (p *Pipeline) Process(ctx context.Context, req Request) (*model.ProcessResponse, *Failure) {
	// 1. Input validation. Size is checked after the bytes are read;
	// oversize input is rejected outright, never partially processed.
	if req.UserID == "" {
		return nil, &Failure{Kind: FailValidation, Message: "user_id is required"}
	}
	if !p.allowedTypes[req.ContentType] {
		return nil, &Failure{
			Kind:    FailValidation,
			Message: fmt.Sprintf("invalid file type %q", req.ContentType),
		}
	}
	if int64(len(req.Data)) > p.maxFileSize {
		return nil, &Failure{
			Kind:    FailValidation,
			Message: fmt.Sprintf("file size exceeds maximum of %d MB", p.maxFileSize/(1024*1024)),
		}
	}

	// 2. Identity check: a verified credential must match the declared
	// subject.
	if req.VerifiedSubject != "" && req.VerifiedSubject != req.UserID {
		return nil, &Failure{Kind: FailAuthMismatch, Message: "user ID mismatch"}
	}

	// 3. Quota gate, read-only. The snapshot is committed only after a
	// successful scan.
	allowed, snapshot := p.quota.CheckAndReserve(ctx, req.UserID)
	if !allowed {
		return nil, &Failure{
			Kind:    FailQuotaExceeded,
			Message: "daily scan limit reached, upgrade to Pro for unlimited scans",
		}
	}

	// 4. Lifecycle start; a nil record means untracked mode.
	rec := p.tracker.Start(ctx, req.UserID, req.FileName, int64(len(req.Data)))

	// 5. Persist the raw bytes.
	ref, err := p.blobs.Save(req.Data, req.FileName)
	if err != nil {
		p.tracker.Finish(ctx, rec, model.ScanStatusFailed, nil)
		return nil, &Failure{Kind: FailInternal, Message: "failed to store file", Err: err}
	}

	// 6. Provider invocation — the single long-latency step. No locks are
	// held across it. Failure is terminal: the scan is marked failed and
	// quota stats are not committed.
	start := p.nowFunc()
	raw, err := p.provider.Analyze(ctx, req.Data, req.ContentType)
	if err != nil {
		p.tracker.Finish(ctx, rec, model.ScanStatusFailed, nil)
		return nil, &Failure{Kind: FailProvider, Message: "document processing failed", Err: err}
	}
	elapsed := math.Round(p.nowFunc().Sub(start).Seconds()*100) / 100

	// 7. Normalize — structurally always succeeds.
	result := normalize.Normalize(raw, elapsed)

	// 8. Finalize lifecycle with summary metadata.
	p.tracker.Finish(ctx, rec, model.ScanStatusCompleted, map[string]any{
		"confidence_score": result.Confidence,
		"fields_extracted": len(result.Fields),
	})

	// 9. Commit quota stats, best-effort.
	p.quota.Commit(ctx, req.UserID, snapshot)

	zap.L().Info("document processed",
		zap.String("user_id", req.UserID),
		zap.Int("fields_extracted", len(result.Fields)),
		zap.Float64("confidence_score", result.Confidence),
		zap.Float64("processing_time", result.ElapsedSeconds),
	)

	// 10. Assemble the response.
	return &model.ProcessResponse{
		OriginalImageURL:  req.BaseURL + ref,
		RefinedData:       result.Fields,
		AIExplanation:     result.Explanation,
		FormattingChanges: result.Changes,
		ConfidenceScore:   result.Confidence,
		ProcessingTime:    result.ElapsedSeconds,
	}, nil
}
