package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rss-stash/rss-stash/app/source"
)

// APIAuthenticator logs in by posting credentials as JSON to the site's
// login endpoint and capturing the Set-Cookie response headers.
type APIAuthenticator struct {
	userAgent string
	timeout   time.Duration
}

func NewAPIAuthenticator(userAgent string, timeoutSeconds int) *APIAuthenticator {
	return &APIAuthenticator{
		userAgent: userAgent,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
}

func (a *APIAuthenticator) Login(ctx context.Context, login *source.ConfigLogin) ([]Cookie, error) {
	payload, err := json.Marshal(map[string]string{
		login.UsernameField: login.Username,
		login.PasswordField: login.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	client := &http.Client{Timeout: a.timeout}

	req, err := http.NewRequestWithContext(ctx, "POST", login.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call login endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error from login endpoint: %d %s", resp.StatusCode, resp.Status)
	}

	cookies := FromHTTPCookies(resp.Cookies())
	if len(cookies) == 0 {
		return nil, fmt.Errorf("login succeeded but no cookies were captured")
	}

	return cookies, nil
}
