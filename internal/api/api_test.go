package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/repoanalyzer/internal/config"
	"github.com/kraklabs/repoanalyzer/internal/model"
	"github.com/kraklabs/repoanalyzer/internal/queue"
	"github.com/kraklabs/repoanalyzer/internal/store"
)

// fakeRecord is an in-memory store.Record used to exercise the HTTP surface
// without a Postgres instance, the way the queue package's own tests
// exercise the queue against miniredis instead of a real Redis server.
type fakeRecord struct {
	mu        sync.Mutex
	records   map[string]model.AnalysisRecord
	trees     map[string]model.FileTreeArtifact
	createErr error
}

func newFakeRecord() *fakeRecord {
	return &fakeRecord{records: map[string]model.AnalysisRecord{}, trees: map[string]model.FileTreeArtifact{}}
}

func (f *fakeRecord) Create(ctx context.Context, rec model.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.records[rec.ID]; exists {
		return fmt.Errorf("duplicate id")
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeRecord) FindByID(ctx context.Context, id string) (*model.AnalysisRecord, *model.FileTreeArtifact, []model.ParsedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, nil, nil, fmt.Errorf("not found")
	}
	var tree *model.FileTreeArtifact
	if t, ok := f.trees[id]; ok {
		tree = &t
	}
	return &rec, tree, nil, nil
}

func (f *fakeRecord) UpdateStatus(ctx context.Context, id string, status model.Status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	rec.Status = status
	rec.Error = errMsg
	f.records[id] = rec
	return nil
}

func (f *fakeRecord) UpdateCommitSha(ctx context.Context, id, sha string) error { return nil }

func (f *fakeRecord) List(ctx context.Context, filter store.ListFilter) (store.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AnalysisRecord
	for _, rec := range f.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	return store.ListResult{Analyses: out, Total: len(out)}, nil
}

func (f *fakeRecord) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return fmt.Errorf("not found")
	}
	delete(f.records, id)
	delete(f.trees, id)
	return nil
}

func (f *fakeRecord) SaveFileTree(ctx context.Context, analysisID string, artifact model.FileTreeArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trees[analysisID] = artifact
	return nil
}

func (f *fakeRecord) SaveParsedFiles(ctx context.Context, analysisID string, files []model.ParsedFile) error {
	return nil
}

func (f *fakeRecord) Ping(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, recs *fakeRecord) *Server {
	t.Helper()
	mr := miniredis.RunT(t)
	q := queue.New(mr.Addr(), "", nil)
	t.Cleanup(func() { q.Close() })

	cfg := &config.Config{
		Server:    config.Server{Port: 0, APIVersion: "v1", Env: "test"},
		RateLimit: config.RateLimit{WindowMS: 60000, MaxRequests: 1000},
		CORS:      config.CORS{Origin: "*"},
	}
	return New(cfg, recs, q, nil)
}

func TestHandleAnalyzeValidatesURL(t *testing.T) {
	s := newTestServer(t, newFakeRecord())
	body, _ := json.Marshal(analyzeRequest{RepositoryURL: "not a url"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyzeEnqueuesJob(t *testing.T) {
	recs := newFakeRecord()
	s := newTestServer(t, recs)

	body, _ := json.Marshal(analyzeRequest{RepositoryURL: "https://github.com/octocat/hello-world"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp analyzeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "queued", resp.Status)
	require.NotEmpty(t, resp.AnalysisID)

	status, err := s.queue.Status(context.Background(), resp.AnalysisID)
	require.NoError(t, err)
	require.Equal(t, queue.StatePending, status.State)
}

func TestHandleStatusUnknownIDReturns404(t *testing.T) {
	s := newTestServer(t, newFakeRecord())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/does-not-exist/status", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleTreeReturns404BeforeCompletion(t *testing.T) {
	recs := newFakeRecord()
	rec := model.AnalysisRecord{ID: "abc", Status: model.StatusProcessing, CreatedAt: time.Now()}
	require.NoError(t, recs.Create(context.Background(), rec))

	s := newTestServer(t, recs)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/abc/tree", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleTreeReturnsArtifactAfterCompletion(t *testing.T) {
	recs := newFakeRecord()
	rec := model.AnalysisRecord{ID: "abc", Status: model.StatusCompleted, CreatedAt: time.Now()}
	require.NoError(t, recs.Create(context.Background(), rec))
	require.NoError(t, recs.SaveFileTree(context.Background(), "abc", model.FileTreeArtifact{
		AnalysisID: "abc",
		Root:       &model.Node{Kind: model.NodeDir, Name: "root"},
		Statistics: model.FileTreeStatistics{TotalFiles: 3},
	}))

	s := newTestServer(t, recs)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analysis/abc/tree", nil)
	w := httptest.NewRecorder()

	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp treeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Statistics.TotalFiles)
}

func TestAuthRejectsMissingAPIKey(t *testing.T) {
	recs := newFakeRecord()
	mr := miniredis.RunT(t)
	q := queue.New(mr.Addr(), "", nil)
	t.Cleanup(func() { q.Close() })

	cfg := &config.Config{
		Server:    config.Server{APIVersion: "v1", Env: "test"},
		RateLimit: config.RateLimit{WindowMS: 60000, MaxRequests: 1000},
		CORS:      config.CORS{Origin: "*"},
		Auth:      config.Auth{APIKey: "secret"},
	}
	s := New(cfg, recs, q, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)
	req2.Header.Set("x-api-key", "secret")
	w2 := httptest.NewRecorder()
	s.router.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusOK, w2.Code)
}

func TestStrictRateLimitOnAnalyze(t *testing.T) {
	recs := newFakeRecord()
	mr := miniredis.RunT(t)
	q := queue.New(mr.Addr(), "", nil)
	t.Cleanup(func() { q.Close() })

	cfg := &config.Config{
		Server:    config.Server{APIVersion: "v1", Env: "test"},
		RateLimit: config.RateLimit{WindowMS: 60000, MaxRequests: 1000},
		CORS:      config.CORS{Origin: "*"},
	}
	s := New(cfg, recs, q, nil)

	for i := 0; i < strictAnalyzeRequests; i++ {
		body, _ := json.Marshal(analyzeRequest{RepositoryURL: fmt.Sprintf("https://github.com/octocat/repo%d", i)})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, "request %d should succeed", i)
	}

	body, _ := json.Marshal(analyzeRequest{RepositoryURL: "https://github.com/octocat/repoN"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHealthAndPing(t *testing.T) {
	s := newTestServer(t, newFakeRecord())

	healthReq := httptest.NewRequest(http.MethodGet, "/health", nil)
	healthW := httptest.NewRecorder()
	s.router.ServeHTTP(healthW, healthReq)
	require.Equal(t, http.StatusOK, healthW.Code)

	var health healthResponse
	require.NoError(t, json.Unmarshal(healthW.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.False(t, health.Timestamp.IsZero())
	require.True(t, health.Services["database"])
	require.True(t, health.Services["redis"])
	require.True(t, health.Services["queue"])

	pingReq := httptest.NewRequest(http.MethodGet, "/ping", nil)
	pingW := httptest.NewRecorder()
	s.router.ServeHTTP(pingW, pingReq)
	require.Equal(t, http.StatusOK, pingW.Code)

	var ping pingResponse
	require.NoError(t, json.Unmarshal(pingW.Body.Bytes(), &ping))
	require.Equal(t, "pong", ping.Message)
	require.False(t, ping.Timestamp.IsZero())
}

func TestHealthReturnsServiceUnavailableWhenRedisDown(t *testing.T) {
	recs := newFakeRecord()
	mr := miniredis.RunT(t)
	q := queue.New(mr.Addr(), "", nil)
	mr.Close()

	cfg := &config.Config{
		Server:    config.Server{APIVersion: "v1", Env: "test"},
		RateLimit: config.RateLimit{WindowMS: 60000, MaxRequests: 1000},
		CORS:      config.CORS{Origin: "*"},
	}
	s := New(cfg, recs, q, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	require.False(t, health.Services["redis"])
}
