// Package target implements the read-later service client. It is the one
// concrete implementation of the publish, refresh, and sync contracts; the
// pipeline and sweeper only ever see the interfaces.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/publish"
	"github.com/rss-stash/rss-stash/app/session"
	"github.com/rss-stash/rss-stash/app/sweep"
)

var _ publish.PublishTarget = (*Client)(nil)
var _ publish.RefreshTarget = (*Client)(nil)
var _ sweep.SyncTarget = (*Client)(nil)

type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

func NewClient(baseURL, token, userAgent string, timeoutSeconds int) *Client {
	return &Client{
		baseURL:   baseURL,
		token:     token,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
	}
}

type bookmarkRequest struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Content  string   `json:"content,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	FolderID string   `json:"folder_id,omitempty"`
}

type bookmarkResponse struct {
	ID       string `json:"id"`
	Location string `json:"location,omitempty"`
}

// Publish stores one entry as a bookmark and returns its remote identifier.
func (c *Client) Publish(ctx context.Context, entry ingest.Entry, tags []string, folderID string) (string, error) {
	payload := bookmarkRequest{
		URL:      entry.URL,
		Title:    entry.Title,
		Content:  entry.Content,
		Tags:     tags,
		FolderID: folderID,
	}

	var resp bookmarkResponse
	if err := c.doJSON(ctx, "POST", "/api/bookmarks", payload, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("destination returned no bookmark id")
	}

	return resp.ID, nil
}

type folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type folderListResponse struct {
	Folders []folder `json:"folders"`
}

func (c *Client) ResolveFolder(ctx context.Context, name string) (string, error) {
	var resp folderListResponse
	path := "/api/folders?name=" + url.QueryEscape(name)
	if err := c.doJSON(ctx, "GET", path, nil, &resp); err != nil {
		return "", err
	}

	for _, f := range resp.Folders {
		if f.Name == name {
			return f.ID, nil
		}
	}

	return "", publish.ErrFolderNotFound
}

func (c *Client) CreateFolder(ctx context.Context, name string) (string, error) {
	var resp folder
	err := c.doJSON(ctx, "POST", "/api/folders", map[string]string{"name": name}, &resp)
	if err != nil {
		var httpErr *httpError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusConflict {
			return "", publish.ErrFolderExists
		}
		return "", err
	}

	return resp.ID, nil
}

// Refresh propagates the current session cookies to the destination's
// fetch-side cookie cache.
func (c *Client) Refresh(ctx context.Context, cookies []session.Cookie) error {
	return c.doJSON(ctx, "POST", "/api/session/refresh", map[string]any{"cookies": cookies}, nil)
}

type statusResponse struct {
	Deleted []string `json:"deleted"`
}

// Status reports which of the given remote ids the destination has deleted.
func (c *Client) Status(ctx context.Context, remoteIDs []string) ([]string, error) {
	var resp statusResponse
	if err := c.doJSON(ctx, "POST", "/api/bookmarks/status", map[string][]string{"ids": remoteIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Deleted, nil
}

func (c *Client) Delete(ctx context.Context, remoteID string) error {
	return c.doJSON(ctx, "DELETE", "/api/bookmarks/"+url.PathEscape(remoteID), nil, nil)
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Body)
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call destination: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
