package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/workless-ai/docscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	file_size  INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'processing',
	metadata   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users_metadata (
	user_id        TEXT PRIMARY KEY,
	subscription_tier TEXT NOT NULL DEFAULT 'basic',
	scans_today    INTEGER NOT NULL DEFAULT 0,
	total_scans    INTEGER NOT NULL DEFAULT 0,
	last_scan_date TEXT
);

CREATE INDEX IF NOT EXISTS idx_scans_user_id ON scans(user_id);
CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetUserQuota(ctx context.Context, userID string) (*model.UserQuotaRecord, error) {
	var rec model.UserQuotaRecord
	var lastScanDate sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, subscription_tier, scans_today, total_scans, last_scan_date
		 FROM users_metadata WHERE user_id = ?`, userID,
	).Scan(&rec.UserID, &rec.Tier, &rec.ScansToday, &rec.TotalScans, &lastScanDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get user quota %s", userID)
	}
	rec.LastScanDate = lastScanDate.String
	return &rec, nil
}

func (s *SQLiteStore) UpsertUserQuota(ctx context.Context, rec model.UserQuotaRecord) error {
	tier := rec.Tier
	if tier == "" {
		tier = model.TierBasic
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users_metadata (user_id, subscription_tier, scans_today, total_scans, last_scan_date)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			scans_today = excluded.scans_today,
			total_scans = excluded.total_scans,
			last_scan_date = excluded.last_scan_date`,
		rec.UserID, string(tier), rec.ScansToday, rec.TotalScans, rec.LastScanDate,
	)
	return eris.Wrapf(err, "sqlite: upsert user quota %s", rec.UserID)
}

func (s *SQLiteStore) CreateScan(ctx context.Context, userID, fileName string, fileSize int64) (*model.ScanRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, user_id, file_name, file_size, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, userID, fileName, fileSize, string(model.ScanStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert scan")
	}

	return &model.ScanRecord{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		FileSize:  fileSize,
		Status:    model.ScanStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateScanStatus(ctx context.Context, scanID string, status model.ScanStatus, metadata map[string]any) error {
	var metaJSON sql.NullString
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal scan metadata")
		}
		metaJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = ?, metadata = COALESCE(?, metadata), updated_at = ? WHERE id = ?`,
		string(status), metaJSON, time.Now().UTC(), scanID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update scan status %s", scanID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: scan %s not found", scanID)
	}
	return nil
}

func (s *SQLiteStore) GetScan(ctx context.Context, scanID string) (*model.ScanRecord, error) {
	var rec model.ScanRecord
	var metaJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, file_size, status, metadata, created_at, updated_at
		 FROM scans WHERE id = ?`, scanID,
	).Scan(&rec.ID, &rec.UserID, &rec.FileName, &rec.FileSize, &rec.Status, &metaJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get scan %s", scanID)
	}
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scan metadata")
		}
	}
	return &rec, nil
}
