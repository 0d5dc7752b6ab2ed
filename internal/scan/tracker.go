// Package scan tracks the lifecycle of one document-processing attempt:
// processing, then exactly one transition to completed or failed. Tracking
// is best-effort; if the record store is down the pipeline continues
// untracked.
package scan

import (
	"context"

	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/store"
)

// Tracker records scan state transitions in the store.
type Tracker struct {
	store store.Store
}

// NewTracker creates a Tracker over the given record store.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// Start creates a scan record in state processing. Returns nil on store
// failure; a nil record puts the request in untracked mode and is never
// fatal.
func (t *Tracker) Start(ctx context.Context, userID, fileName string, fileSize int64) *model.ScanRecord {
	rec, err := t.store.CreateScan(ctx, userID, fileName, fileSize)
	if err != nil {
		zap.L().Error("scan: failed to create record, continuing untracked",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	return rec
}

// Finish transitions the record to completed (with summary metadata) or
// failed (metadata ignored). A nil record is a no-op success. Records must
// be finished at most once; re-finishing is a caller error.
func (t *Tracker) Finish(ctx context.Context, rec *model.ScanRecord, status model.ScanStatus, metadata map[string]any) bool {
	if rec == nil {
		return true
	}
	if status == model.ScanStatusFailed {
		metadata = nil
	}

	if err := t.store.UpdateScanStatus(ctx, rec.ID, status, metadata); err != nil {
		zap.L().Error("scan: failed to finalize record",
			zap.String("scan_id", rec.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return false
	}
	rec.Status = status
	return true
}
