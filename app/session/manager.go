package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/rss-stash/rss-stash/app/source"
)

// Manager decides per source whether a fresh login is required and keeps
// the shared cookie cache up to date. Sources without a login section
// bypass session management entirely.
type Manager struct {
	store       CookieStore
	userAgent   string
	authFactory func(login *source.ConfigLogin, userAgent string, timeoutSeconds int) (Authenticator, error)
}

func NewManager(store CookieStore, userAgent string) *Manager {
	return &Manager{
		store:       store,
		userAgent:   userAgent,
		authFactory: NewAuthenticator,
	}
}

// EnsureSession returns a usable cookie set for the source, re-authenticating
// when the cached session is missing, expired, incomplete, would lapse before
// nextNeeded (the earliest upcoming poll or refresh time, a planning
// lookahead only), or when forced by the one-shot override.
//
// A login failure never touches the cached entry: if stale cookies exist the
// source degrades to reusing them, otherwise an AuthError is returned and the
// source's poll and refresh are skipped for the cycle.
func (m *Manager) EnsureSession(ctx context.Context, cfg *source.Config, forced bool, nextNeeded time.Time) ([]Cookie, error) {
	if cfg.Login == nil {
		return nil, nil
	}

	cacheKey := cfg.CacheKey()
	now := time.Now().UTC()

	cached, capturedAt, err := m.store.GetCookies(cacheKey)
	if err != nil {
		return nil, &AuthError{Source: cfg.Name, Err: err}
	}

	reason := m.loginReason(cfg, cached, forced, now, nextNeeded)
	if reason == "" {
		return cached, nil
	}

	slog.Info("Session login required", "source", cfg.Name, "reason", reason, "cached_at", capturedAt)

	cookies, err := m.login(ctx, cfg)
	if err != nil {
		if len(cached) > 0 {
			slog.Warn("Login failed, reusing stale session cookies", "source", cfg.Name, "error", err)
			return cached, nil
		}
		return nil, &AuthError{Source: cfg.Name, Err: err}
	}

	if err := m.store.ReplaceCookies(cacheKey, cookies, now); err != nil {
		return nil, err
	}

	slog.Info("Session established", "source", cfg.Name, "cookies", len(cookies))

	return cookies, nil
}

// loginReason returns a non-empty explanation when a fresh login is needed.
func (m *Manager) loginReason(cfg *source.Config, cached []Cookie, forced bool, now, nextNeeded time.Time) string {
	if forced {
		return "forced"
	}
	if len(cached) == 0 {
		return "no cached session"
	}

	required := m.requiredCookies(cfg, cached)

	byName := make(map[string]Cookie, len(cached))
	for _, c := range cached {
		byName[c.Name] = c
	}

	var earliestExpiry time.Time
	for _, name := range required {
		c, ok := byName[name]
		if !ok {
			return "required cookie " + name + " missing"
		}
		if c.Expired(now) {
			return "required cookie " + name + " expired"
		}
		if !c.Expires.IsZero() && (earliestExpiry.IsZero() || c.Expires.Before(earliestExpiry)) {
			earliestExpiry = c.Expires
		}
	}

	// Re-login pre-emptively if the session lapses before it is next needed.
	if !earliestExpiry.IsZero() && !nextNeeded.IsZero() && !earliestExpiry.After(nextNeeded) {
		return "session expires before next use"
	}

	return ""
}

// requiredCookies is the site's declared required set, or every captured
// cookie name when none is declared.
func (m *Manager) requiredCookies(cfg *source.Config, cached []Cookie) []string {
	if len(cfg.Login.RequiredCookies) > 0 {
		return cfg.Login.RequiredCookies
	}
	names := make([]string, 0, len(cached))
	for _, c := range cached {
		names = append(names, c.Name)
	}
	return names
}

func (m *Manager) login(ctx context.Context, cfg *source.Config) ([]Cookie, error) {
	authenticator, err := m.authFactory(cfg.Login, m.userAgent, cfg.Settings.Timeout)
	if err != nil {
		return nil, err
	}
	return authenticator.Login(ctx, cfg.Login)
}
