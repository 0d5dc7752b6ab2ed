package quota

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/store"
)

// fakeStore lets tests control quota reads and capture the commit write.
type fakeStore struct {
	store.Noop
	rec       *model.UserQuotaRecord
	getErr    error
	upsertErr error
	upserted  *model.UserQuotaRecord
}

func (f *fakeStore) GetUserQuota(_ context.Context, _ string) (*model.UserQuotaRecord, error) {
	return f.rec, f.getErr
}

func (f *fakeStore) UpsertUserQuota(_ context.Context, rec model.UserQuotaRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = &rec
	return nil
}

const today = "2026-08-28"

func newTestGate(fs *fakeStore) *Gate {
	g := NewGate(fs, 3)
	g.nowFunc = func() time.Time {
		return time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	}
	return g
}

func TestGate_NoRecordIsPermissive(t *testing.T) {
	g := newTestGate(&fakeStore{})

	allowed, snapshot := g.CheckAndReserve(context.Background(), "u1")
	assert.True(t, allowed)
	assert.Nil(t, snapshot)
}

func TestGate_StoreErrorFailsOpen(t *testing.T) {
	g := newTestGate(&fakeStore{getErr: eris.New("connection refused")})

	allowed, snapshot := g.CheckAndReserve(context.Background(), "u1")
	assert.True(t, allowed)
	assert.Nil(t, snapshot)
}

func TestGate_BasicTierLimit(t *testing.T) {
	tests := []struct {
		name       string
		scansToday int
		want       bool
	}{
		{"under limit", 2, true},
		{"at limit", 3, false},
		{"over limit", 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(&fakeStore{rec: &model.UserQuotaRecord{
				UserID:       "u1",
				Tier:         model.TierBasic,
				ScansToday:   tt.scansToday,
				LastScanDate: today,
			}})

			allowed, snapshot := g.CheckAndReserve(context.Background(), "u1")
			assert.Equal(t, tt.want, allowed)
			require.NotNil(t, snapshot)
		})
	}
}

func TestGate_ProTierIsUnlimited(t *testing.T) {
	g := newTestGate(&fakeStore{rec: &model.UserQuotaRecord{
		UserID:       "u1",
		Tier:         model.TierPro,
		ScansToday:   500,
		LastScanDate: today,
	}})

	allowed, _ := g.CheckAndReserve(context.Background(), "u1")
	assert.True(t, allowed)
}

func TestGate_StaleDateAllowsBasicOverLimit(t *testing.T) {
	g := newTestGate(&fakeStore{rec: &model.UserQuotaRecord{
		UserID:       "u1",
		Tier:         model.TierBasic,
		ScansToday:   3,
		LastScanDate: "2026-08-27",
	}})

	allowed, _ := g.CheckAndReserve(context.Background(), "u1")
	assert.True(t, allowed)
}

func TestGate_CommitIncrementsSameDay(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGate(fs)

	ok := g.Commit(context.Background(), "u1", &model.UserQuotaRecord{
		UserID:       "u1",
		Tier:         model.TierBasic,
		ScansToday:   2,
		TotalScans:   10,
		LastScanDate: today,
	})
	require.True(t, ok)
	require.NotNil(t, fs.upserted)
	assert.Equal(t, 3, fs.upserted.ScansToday)
	assert.Equal(t, 11, fs.upserted.TotalScans)
	assert.Equal(t, today, fs.upserted.LastScanDate)
}

func TestGate_CommitResetsOnRollover(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGate(fs)

	ok := g.Commit(context.Background(), "u1", &model.UserQuotaRecord{
		UserID:       "u1",
		Tier:         model.TierBasic,
		ScansToday:   3,
		TotalScans:   10,
		LastScanDate: "2026-08-27",
	})
	require.True(t, ok)
	require.NotNil(t, fs.upserted)
	// Daily counter restarts at exactly 1, not previous+1.
	assert.Equal(t, 1, fs.upserted.ScansToday)
	assert.Equal(t, 11, fs.upserted.TotalScans)
}

func TestGate_CommitWithoutSnapshotStartsAtOne(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGate(fs)

	ok := g.Commit(context.Background(), "u1", nil)
	require.True(t, ok)
	require.NotNil(t, fs.upserted)
	assert.Equal(t, 1, fs.upserted.ScansToday)
	assert.Equal(t, 1, fs.upserted.TotalScans)
}

func TestGate_CommitFailureIsReportedNotFatal(t *testing.T) {
	fs := &fakeStore{upsertErr: eris.New("write failed")}
	g := newTestGate(fs)

	assert.False(t, g.Commit(context.Background(), "u1", nil))
}
