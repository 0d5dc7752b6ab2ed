package pipeline

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workless-ai/docscan/internal/blob"
	"github.com/workless-ai/docscan/internal/model"
	"github.com/workless-ai/docscan/internal/quota"
	"github.com/workless-ai/docscan/internal/scan"
	"github.com/workless-ai/docscan/internal/store"
)

// memStore records quota and scan writes so tests can assert on the
// bookkeeping side effects of a pipeline run.
type memStore struct {
	store.Noop
	quotaRec *model.UserQuotaRecord
	scans    map[string]*model.ScanRecord
	upserts  []model.UserQuotaRecord
}

func newMemStore() *memStore {
	return &memStore{scans: make(map[string]*model.ScanRecord)}
}

func (m *memStore) GetUserQuota(_ context.Context, _ string) (*model.UserQuotaRecord, error) {
	return m.quotaRec, nil
}

func (m *memStore) UpsertUserQuota(_ context.Context, rec model.UserQuotaRecord) error {
	m.upserts = append(m.upserts, rec)
	return nil
}

func (m *memStore) CreateScan(_ context.Context, userID, fileName string, fileSize int64) (*model.ScanRecord, error) {
	rec := &model.ScanRecord{
		ID:       "scan-1",
		UserID:   userID,
		FileName: fileName,
		FileSize: fileSize,
		Status:   model.ScanStatusProcessing,
	}
	m.scans[rec.ID] = rec
	return rec, nil
}

func (m *memStore) UpdateScanStatus(_ context.Context, scanID string, status model.ScanStatus, metadata map[string]any) error {
	rec, ok := m.scans[scanID]
	if !ok {
		return eris.Errorf("scan %s not found", scanID)
	}
	rec.Status = status
	if metadata != nil {
		rec.Metadata = metadata
	}
	return nil
}

type fakeProvider struct {
	raw   string
	err   error
	calls int
}

func (f *fakeProvider) Analyze(_ context.Context, _ []byte, _ string) (string, error) {
	f.calls++
	return f.raw, f.err
}

type brokenBlobs struct{}

func (brokenBlobs) Save([]byte, string) (string, error) { return "", eris.New("disk full") }
func (brokenBlobs) Open(string) (io.ReadCloser, error)  { return nil, blob.ErrNotFound }

func testConfig() Config {
	return Config{
		MaxFileSize:  10 * 1024 * 1024,
		AllowedTypes: []string{"image/jpeg", "image/png", "application/pdf"},
	}
}

func newTestPipeline(t *testing.T, ms *memStore, provider *fakeProvider) *Pipeline {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	return New(provider, blobs, quota.NewGate(ms, 3), scan.NewTracker(ms), testConfig())
}

func baseRequest() Request {
	return Request{
		UserID:      "u1",
		FileName:    "invoice.png",
		ContentType: "image/png",
		Data:        []byte("fake png bytes"),
		BaseURL:     "http://localhost:8000",
	}
}

const providerJSON = `{"fields":[{"field":"Name","value":"John","confidence":90},{"field":"Total","value":"42.50","confidence":80}],"explanation":"extracted two fields","formatting_changes":[{"type":"formatting","message":"normalized date"}],"overall_confidence":99}`

func TestProcess_Success(t *testing.T) {
	ms := newMemStore()
	provider := &fakeProvider{raw: providerJSON}
	p := newTestPipeline(t, ms, provider)

	resp, fail := p.Process(context.Background(), baseRequest())
	require.Nil(t, fail)
	require.NotNil(t, resp)

	assert.Equal(t, 1, provider.calls)
	require.Len(t, resp.RefinedData, 2)
	assert.Equal(t, "John", resp.RefinedData[0].Value)
	// Mean of per-field confidences, not the model's own overall figure.
	assert.Equal(t, 85.0, resp.ConfidenceScore)
	assert.Equal(t, "extracted two fields", resp.AIExplanation)
	require.Len(t, resp.FormattingChanges, 1)
	assert.True(t, strings.HasPrefix(resp.OriginalImageURL, "http://localhost:8000/uploads/"))

	// Scan finished as completed with summary metadata.
	rec := ms.scans["scan-1"]
	require.NotNil(t, rec)
	assert.Equal(t, model.ScanStatusCompleted, rec.Status)
	assert.Equal(t, 2, rec.Metadata["fields_extracted"])

	// Quota committed exactly once.
	require.Len(t, ms.upserts, 1)
	assert.Equal(t, 1, ms.upserts[0].ScansToday)
	assert.Equal(t, 1, ms.upserts[0].TotalScans)
}

func TestProcess_ProviderFailure(t *testing.T) {
	ms := newMemStore()
	provider := &fakeProvider{err: eris.New("upstream timeout")}
	p := newTestPipeline(t, ms, provider)

	resp, fail := p.Process(context.Background(), baseRequest())
	assert.Nil(t, resp)
	require.NotNil(t, fail)
	assert.Equal(t, FailProvider, fail.Kind)
	assert.Equal(t, http.StatusInternalServerError, fail.Status())
	assert.Equal(t, "Processing failed", fail.Label())

	// Scan is finalized as failed and quota is untouched.
	rec := ms.scans["scan-1"]
	require.NotNil(t, rec)
	assert.Equal(t, model.ScanStatusFailed, rec.Status)
	assert.Empty(t, ms.upserts)
}

func TestProcess_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing user id", func(r *Request) { r.UserID = "" }},
		{"disallowed type", func(r *Request) { r.ContentType = "text/plain" }},
		{"oversize payload", func(r *Request) { r.Data = make([]byte, 10*1024*1024+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := newMemStore()
			provider := &fakeProvider{raw: providerJSON}
			p := newTestPipeline(t, ms, provider)

			req := baseRequest()
			tt.mutate(&req)

			resp, fail := p.Process(context.Background(), req)
			assert.Nil(t, resp)
			require.NotNil(t, fail)
			assert.Equal(t, FailValidation, fail.Kind)
			assert.Equal(t, http.StatusBadRequest, fail.Status())
			assert.Zero(t, provider.calls)
			assert.Empty(t, ms.scans)
		})
	}
}

func TestProcess_IdentityMismatch(t *testing.T) {
	ms := newMemStore()
	p := newTestPipeline(t, ms, &fakeProvider{raw: providerJSON})

	req := baseRequest()
	req.VerifiedSubject = "someone-else"

	resp, fail := p.Process(context.Background(), req)
	assert.Nil(t, resp)
	require.NotNil(t, fail)
	assert.Equal(t, FailAuthMismatch, fail.Kind)
	assert.Equal(t, http.StatusForbidden, fail.Status())
}

func TestProcess_MatchingSubjectPasses(t *testing.T) {
	ms := newMemStore()
	p := newTestPipeline(t, ms, &fakeProvider{raw: providerJSON})

	req := baseRequest()
	req.VerifiedSubject = req.UserID

	_, fail := p.Process(context.Background(), req)
	assert.Nil(t, fail)
}

func TestProcess_QuotaExceeded(t *testing.T) {
	ms := newMemStore()
	ms.quotaRec = &model.UserQuotaRecord{
		UserID:       "u1",
		Tier:         model.TierBasic,
		ScansToday:   3,
		LastScanDate: time.Now().UTC().Format("2006-01-02"),
	}
	provider := &fakeProvider{raw: providerJSON}
	p := newTestPipeline(t, ms, provider)

	resp, fail := p.Process(context.Background(), baseRequest())
	assert.Nil(t, resp)
	require.NotNil(t, fail)
	assert.Equal(t, FailQuotaExceeded, fail.Kind)
	assert.Equal(t, http.StatusTooManyRequests, fail.Status())
	assert.Zero(t, provider.calls)
}

func TestProcess_BlobFailureFinalizesScan(t *testing.T) {
	ms := newMemStore()
	provider := &fakeProvider{raw: providerJSON}
	p := New(provider, brokenBlobs{}, quota.NewGate(ms, 3), scan.NewTracker(ms), testConfig())

	resp, fail := p.Process(context.Background(), baseRequest())
	assert.Nil(t, resp)
	require.NotNil(t, fail)
	assert.Equal(t, FailInternal, fail.Kind)

	rec := ms.scans["scan-1"]
	require.NotNil(t, rec)
	assert.Equal(t, model.ScanStatusFailed, rec.Status)
	assert.Zero(t, provider.calls)
	assert.Empty(t, ms.upserts)
}
