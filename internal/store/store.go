// Package store persists user quota records and scan records. Two backends
// are provided (SQLite and Postgres) plus a no-op store used when no record
// store is configured — callers never branch on "store present"; the pipeline
// always holds a Store and the no-op variant simply tracks nothing.
package store

import (
	"context"

	"github.com/workless-ai/docscan/internal/model"
)

// Store defines the persistence interface for the processing pipeline.
type Store interface {
	// User quota. GetUserQuota returns (nil, nil) when no record exists.
	GetUserQuota(ctx context.Context, userID string) (*model.UserQuotaRecord, error)
	UpsertUserQuota(ctx context.Context, rec model.UserQuotaRecord) error

	// Scans. CreateScan returns the record in state processing.
	CreateScan(ctx context.Context, userID, fileName string, fileSize int64) (*model.ScanRecord, error)
	UpdateScanStatus(ctx context.Context, scanID string, status model.ScanStatus, metadata map[string]any) error
	GetScan(ctx context.Context, scanID string) (*model.ScanRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Noop is a Store that tracks nothing. Reads report absence, writes succeed
// without effect. Used when store.driver is "none".
type Noop struct{}

func (Noop) GetUserQuota(context.Context, string) (*model.UserQuotaRecord, error) {
	return nil, nil
}

func (Noop) UpsertUserQuota(context.Context, model.UserQuotaRecord) error { return nil }

func (Noop) CreateScan(context.Context, string, string, int64) (*model.ScanRecord, error) {
	return nil, nil
}

func (Noop) UpdateScanStatus(context.Context, string, model.ScanStatus, map[string]any) error {
	return nil
}

func (Noop) GetScan(context.Context, string) (*model.ScanRecord, error) { return nil, nil }

func (Noop) Migrate(context.Context) error { return nil }

func (Noop) Close() error { return nil }
