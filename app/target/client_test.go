package target

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/publish"
	"github.com/rss-stash/rss-stash/app/session"
)

func TestPublish_SendsBookmarkAndReturnsRemoteID(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/bookmarks", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "100", "location": "/read/100"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "token-123", "test-agent", 5)

	entry := ingest.Entry{
		SourceName:  "news",
		URL:         "https://example.com/article",
		Title:       "Article",
		PublishedAt: time.Now().UTC(),
		Content:     "<p>body</p>",
	}

	remoteID, err := client.Publish(context.Background(), entry, []string{"news"}, "folder-1")
	require.NoError(t, err)

	assert.Equal(t, "100", remoteID)
	assert.Equal(t, "Bearer token-123", gotAuth)
	assert.Equal(t, "https://example.com/article", gotBody["url"])
	assert.Equal(t, "folder-1", gotBody["folder_id"])
}

func TestResolveFolder_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"folders": []any{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	_, err := client.ResolveFolder(context.Background(), "News")
	assert.ErrorIs(t, err, publish.ErrFolderNotFound)
}

func TestResolveFolder_MatchesByName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "News", r.URL.Query().Get("name"))
		json.NewEncoder(w).Encode(map[string]any{"folders": []map[string]string{
			{"id": "f-2", "name": "Newsletters"},
			{"id": "f-1", "name": "News"},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	id, err := client.ResolveFolder(context.Background(), "News")
	require.NoError(t, err)
	assert.Equal(t, "f-1", id)
}

func TestCreateFolder_ConflictMapsToErrFolderExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"exists"}`, http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	_, err := client.CreateFolder(context.Background(), "News")
	assert.ErrorIs(t, err, publish.ErrFolderExists)
}

func TestStatus_ReturnsDeletedIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"100", "101"}, body["ids"])
		json.NewEncoder(w).Encode(map[string][]string{"deleted": {"101"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	deleted, err := client.Status(context.Background(), []string{"100", "101"})
	require.NoError(t, err)
	assert.Equal(t, []string{"101"}, deleted)
}

func TestDelete_CallsBookmarkEndpoint(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	require.NoError(t, client.Delete(context.Background(), "100"))
	assert.Equal(t, "DELETE", gotMethod)
	assert.Equal(t, "/api/bookmarks/100", gotPath)
}

func TestRefresh_PostsCookies(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/session/refresh", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	err := client.Refresh(context.Background(), []session.Cookie{{Name: "sid", Value: "abc"}})
	require.NoError(t, err)

	cookies := gotBody["cookies"].([]any)
	require.Len(t, cookies, 1)
}

func TestDoJSON_ErrorStatusSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "t", "test-agent", 5)

	_, err := client.Publish(context.Background(), ingest.Entry{URL: "https://x"}, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
