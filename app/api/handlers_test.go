package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/source"
)

type fakeStateRepo struct {
	states     map[string]*database.SourceState
	forcePoll  []string
	forceSweep []string
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[string]*database.SourceState)}
}

func (r *fakeStateRepo) LoadState(sourceName string) (*database.SourceState, error) {
	if s, ok := r.states[sourceName]; ok {
		return s, nil
	}
	s := &database.SourceState{SourceName: sourceName}
	r.states[sourceName] = s
	return s, nil
}

func (r *fakeStateRepo) RecordPublished(sourceName string, item database.TrackedItem, mark time.Time) error {
	return nil
}

func (r *fakeStateRepo) MarkPolled(sourceName string, at time.Time) error    { return nil }
func (r *fakeStateRepo) MarkRefreshed(sourceName string, at time.Time) error { return nil }

func (r *fakeStateRepo) SetForcePoll(sourceName string, v bool) error {
	r.forcePoll = append(r.forcePoll, sourceName)
	return nil
}

func (r *fakeStateRepo) SetForceSweep(sourceName string, v bool) error {
	r.forceSweep = append(r.forceSweep, sourceName)
	return nil
}

func (r *fakeStateRepo) ListTrackedItems(sourceName string) ([]database.TrackedItem, error) {
	return nil, nil
}

func (r *fakeStateRepo) RemoveTrackedItem(sourceName, remoteID string) error { return nil }
func (r *fakeStateRepo) GetSourceCount() (int, error)                        { return len(r.states), nil }
func (r *fakeStateRepo) GetTrackedItemCount() (int, error)                   { return 0, nil }

func newTestServer(t *testing.T, repo database.StateRepository) http.Handler {
	t.Helper()

	dir := t.TempDir()
	body := `
url: https://example.com/feed.xml
settings:
  enabled: true
  poll_interval: 3600
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.yml"), []byte(body), 0o644))

	cache := source.NewConfigCache(dir)
	require.NoError(t, cache.Run())

	return NewServer(NewHandler(cache, repo), "secret-key")
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t, newFakeStateRepo())

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["loaded_configurations"])
}

func TestGetStats(t *testing.T) {
	server := newTestServer(t, newFakeStateRepo())

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["enabled_sources"])
	assert.EqualValues(t, 0, body["tracked_items"])
}

func TestAPIRequiresKey(t *testing.T) {
	server := newTestServer(t, newFakeStateRepo())

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest("GET", "/api/sources", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sources", nil)
	req.Header.Set("X-API-Key", "wrong")
	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPIAcceptsBearerToken(t *testing.T) {
	server := newTestServer(t, newFakeStateRepo())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sources", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIListSources(t *testing.T) {
	repo := newFakeStateRepo()
	repo.states["news"] = &database.SourceState{
		SourceName: "news",
		LastPollAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	server := newTestServer(t, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sources", nil)
	req.Header.Set("X-API-Key", "secret-key")
	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sources []map[string]any `json:"sources"`
		Total   int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, "news", body.Sources[0]["name"])
	assert.Equal(t, "2026-08-01T12:00:00Z", body.Sources[0]["last_poll_at"])
	assert.Nil(t, body.Sources[0]["last_refresh_at"], "never-run timestamps serialize as null")
}

func TestAPIGetSourceDetails_UnknownSource(t *testing.T) {
	server := newTestServer(t, newFakeStateRepo())

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/sources/ghost", nil)
	req.Header.Set("X-API-Key", "secret-key")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPIForcePoll(t *testing.T) {
	repo := newFakeStateRepo()
	server := newTestServer(t, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sources/news/poll", nil)
	req.Header.Set("X-API-Key", "secret-key")
	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"news"}, repo.forcePoll)
	assert.Empty(t, repo.forceSweep)
}

func TestAPIForceSweep(t *testing.T) {
	repo := newFakeStateRepo()
	server := newTestServer(t, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sources/news/sweep", nil)
	req.Header.Set("X-API-Key", "secret-key")
	server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"news"}, repo.forceSweep)
}

func TestAPIForcePoll_UnknownSource(t *testing.T) {
	repo := newFakeStateRepo()
	server := newTestServer(t, repo)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/sources/ghost/poll", nil)
	req.Header.Set("X-API-Key", "secret-key")
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, repo.forcePoll)
}
