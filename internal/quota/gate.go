// Package quota enforces the per-user daily scan quota. The check is
// advisory and read-only; the commit happens only after the pipeline knows
// the outcome. Both directions fail open: quota bookkeeping being
// unavailable never blocks a request.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/store"
)

// Gate checks and updates per-user daily scan quotas.
type Gate struct {
	store           store.Store
	basicDailyLimit int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewGate creates a Gate over the given record store.
func NewGate(st store.Store, basicDailyLimit int) *Gate {
	return &Gate{
		store:           st,
		basicDailyLimit: basicDailyLimit,
		nowFunc:         time.Now,
	}
}

func (g *Gate) today() string {
	return g.nowFunc().UTC().Format("2006-01-02")
}

// CheckAndReserve reports whether the user may scan today and returns the
// quota snapshot used for the later Commit. Absence of a quota record, or a
// store failure, is permissive. The check does not mutate storage, so two
// concurrent requests from one user can both pass before either commits;
// that window is a documented gap, not a guarantee.
func (g *Gate) CheckAndReserve(ctx context.Context, userID string) (bool, *model.UserQuotaRecord) {
	rec, err := g.store.GetUserQuota(ctx, userID)
	if err != nil {
		zap.L().Warn("quota: check failed, allowing request",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return true, nil
	}
	if rec == nil {
		return true, nil
	}

	if rec.Tier == model.TierBasic {
		// A stale last-scan date means the daily counter has rolled over.
		if rec.LastScanDate == g.today() && rec.ScansToday >= g.basicDailyLimit {
			return false, rec
		}
	}

	return true, rec
}

// Commit records one completed scan against the snapshot taken at check
// time. On a calendar-date rollover the daily counter restarts at 1.
// Failures are logged and reported but never fail the request.
func (g *Gate) Commit(ctx context.Context, userID string, snapshot *model.UserQuotaRecord) bool {
	today := g.today()

	rec := model.UserQuotaRecord{
		UserID:       userID,
		ScansToday:   1,
		TotalScans:   1,
		LastScanDate: today,
	}
	if snapshot != nil {
		rec.Tier = snapshot.Tier
		rec.TotalScans = snapshot.TotalScans + 1
		if snapshot.LastScanDate == today {
			rec.ScansToday = snapshot.ScansToday + 1
		}
	}

	if err := g.store.UpsertUserQuota(ctx, rec); err != nil {
		zap.L().Error("quota: commit failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	return true
}
