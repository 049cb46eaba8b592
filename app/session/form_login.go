package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/rss-stash/rss-stash/app/source"
)

// FormAuthenticator logs in by fetching the site's login page, locating the
// form that carries the password field, and submitting it with hidden
// inputs (CSRF tokens and friends) preserved. Cookies are captured from a
// jar scoped to the single login; the client is discarded afterwards.
type FormAuthenticator struct {
	userAgent string
	timeout   time.Duration
}

func NewFormAuthenticator(userAgent string, timeoutSeconds int) *FormAuthenticator {
	return &FormAuthenticator{
		userAgent: userAgent,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
	}
}

func (a *FormAuthenticator) Login(ctx context.Context, login *source.ConfigLogin) ([]Cookie, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	client := &http.Client{Jar: jar, Timeout: a.timeout}

	loginURL, err := url.Parse(login.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid login URL: %w", err)
	}

	action, fields, err := a.fetchLoginForm(ctx, client, login)
	if err != nil {
		return nil, err
	}

	fields.Set(login.UsernameField, login.Username)
	fields.Set(login.PasswordField, login.Password)

	actionURL, err := loginURL.Parse(action)
	if err != nil {
		return nil, fmt.Errorf("invalid form action %q: %w", action, err)
	}

	if err := a.submitLoginForm(ctx, client, actionURL.String(), fields); err != nil {
		return nil, err
	}

	cookies := FromHTTPCookies(jar.Cookies(actionURL))
	if len(cookies) == 0 {
		return nil, fmt.Errorf("login succeeded but no cookies were captured")
	}

	return cookies, nil
}

// fetchLoginForm returns the form action and all pre-filled input values of
// the form containing the configured password field.
func (a *FormAuthenticator) fetchLoginForm(ctx context.Context, client *http.Client, login *source.ConfigLogin) (string, url.Values, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", login.URL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("HTTP error fetching login page: %d %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse login page: %w", err)
	}

	form := doc.Find(fmt.Sprintf("form:has(input[name=%q])", login.PasswordField)).First()
	if form.Length() == 0 {
		// Fall back to the first form with any password input
		form = doc.Find("form:has(input[type=password])").First()
	}
	if form.Length() == 0 {
		return "", nil, fmt.Errorf("no login form found on %s", login.URL)
	}

	fields := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := input.Attr("value")
		fields.Set(name, value)
	})

	action, _ := form.Attr("action")
	if action == "" {
		action = login.URL
	}

	return action, fields, nil
}

func (a *FormAuthenticator) submitLoginForm(ctx context.Context, client *http.Client, actionURL string, fields url.Values) error {
	req, err := http.NewRequestWithContext(ctx, "POST", actionURL, strings.NewReader(fields.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("HTTP error submitting login form: %d %s", resp.StatusCode, resp.Status)
	}

	return nil
}
