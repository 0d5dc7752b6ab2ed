package model

import "time"

// ScanStatus is the lifecycle state of a document scan attempt.
type ScanStatus string

const (
	ScanStatusProcessing ScanStatus = "processing"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

// ScanRecord is the durable record of one document-processing attempt.
// It is created in state processing and finalized exactly once as either
// completed or failed.
type ScanRecord struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	FileName  string         `json:"file_name"`
	FileSize  int64          `json:"file_size"`
	Status    ScanStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SubscriptionTier governs the daily quota policy.
type SubscriptionTier string

const (
	TierBasic SubscriptionTier = "basic"
	TierPro   SubscriptionTier = "pro"
)

// UserQuotaRecord tracks per-user scan usage. LastScanDate holds a UTC
// calendar date in ISO format (YYYY-MM-DD); a mismatch with today means the
// daily counter has rolled over.
type UserQuotaRecord struct {
	UserID       string           `json:"user_id"`
	Tier         SubscriptionTier `json:"subscription_tier"`
	ScansToday   int              `json:"scans_today"`
	TotalScans   int              `json:"total_scans"`
	LastScanDate string           `json:"last_scan_date"`
}
