package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/workless-ai/docscan/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"get_user_quota":     `SELECT user_id, subscription_tier, scans_today, total_scans, last_scan_date FROM users_metadata WHERE user_id = $1`,
	"upsert_user_quota":  `INSERT INTO users_metadata (user_id, subscription_tier, scans_today, total_scans, last_scan_date) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id) DO UPDATE SET scans_today = EXCLUDED.scans_today, total_scans = EXCLUDED.total_scans, last_scan_date = EXCLUDED.last_scan_date`,
	"insert_scan":        `INSERT INTO scans (id, user_id, file_name, file_size, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"update_scan_status": `UPDATE scans SET status = $1, metadata = COALESCE($2, metadata), updated_at = $3 WHERE id = $4`,
	"get_scan":           `SELECT id, user_id, file_name, file_size, status, metadata, created_at, updated_at FROM scans WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id    TEXT NOT NULL,
	file_name  TEXT NOT NULL,
	file_size  BIGINT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'processing',
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetUserQuota(ctx context.Context, userID string) (*model.UserQuotaRecord, error) {
	var rec model.UserQuotaRecord
	var lastScanDate *string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, subscription_tier, scans_today, total_scans, last_scan_date FROM users_metadata WHERE user_id = $1`,
		userID,
	).Scan(&rec.UserID, &rec.Tier, &rec.ScansToday, &rec.TotalScans, &lastScanDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get user quota %s", userID)
	}
	if lastScanDate != nil {
		rec.LastScanDate = *lastScanDate
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertUserQuota(ctx context.Context, rec model.UserQuotaRecord) error {
	tier := rec.Tier
	if tier == "" {
		tier = model.TierBasic
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users_metadata (user_id, subscription_tier, scans_today, total_scans, last_scan_date) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (user_id) DO UPDATE SET scans_today = EXCLUDED.scans_today, total_scans = EXCLUDED.total_scans, last_scan_date = EXCLUDED.last_scan_date`,
		rec.UserID, string(tier), rec.ScansToday, rec.TotalScans, rec.LastScanDate,
	)
	return eris.Wrapf(err, "postgres: upsert user quota %s", rec.UserID)
}

func (s *PostgresStore) CreateScan(ctx context.Context, userID, fileName string, fileSize int64) (*model.ScanRecord, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO scans (id, user_id, file_name, file_size, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, fileName, fileSize, string(model.ScanStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert scan")
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

func (s *PostgresStore) UpdateScanStatus(ctx context.Context, scanID string, status model.ScanStatus, metadata map[string]any) error {
	var metaJSON []byte
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal scan metadata")
		}
		metaJSON = b
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scans SET status = $1, metadata = COALESCE($2, metadata), updated_at = $3 WHERE id = $4`,
		string(status), metaJSON, time.Now().UTC(), scanID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update scan status %s", scanID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: scan %s not found", scanID)
	}
	return nil
}

func (s *PostgresStore) GetScan(ctx context.Context, scanID string) (*model.ScanRecord, error) {
	var rec model.ScanRecord
	var metaJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, file_name, file_size, status, metadata, created_at, updated_at FROM scans WHERE id = $1`,
		scanID,
	).Scan(&rec.ID, &rec.UserID, &rec.FileName, &rec.FileSize, &rec.Status, &metaJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get scan %s", scanID)
	}
	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scan metadata")
		}
	}
	return &rec, nil
}
