package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rss-stash/rss-stash/app/session"
)

var _ CookieRepository = (*CookieRepo)(nil)
var _ session.CookieStore = (*CookieRepo)(nil)

// CookieRepo handles database operations for the shared cookie cache
type CookieRepo struct {
	db *DB
}

func NewCookieRepo(db *DB) *CookieRepo {
	return &CookieRepo{db: db}
}

// GetCookies returns the cached cookie set for a cache key, or nil and a
// zero capture time when no entry exists.
func (r *CookieRepo) GetCookies(cacheKey string) ([]session.Cookie, time.Time, error) {
	var raw string
	var capturedAt sql.NullString

	err := r.db.QueryRow(`
		SELECT cookies, captured_at
		FROM cookie_cache
		WHERE cache_key = ?
	`, cacheKey).Scan(&raw, &capturedAt)

	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to get cached cookies: %w", err)
	}

	var cookies []session.Cookie
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode cached cookies: %w", err)
	}

	captured, err := timeFromSQL(capturedAt)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode cookie capture time: %w", err)
	}

	return cookies, captured, nil
}

// ReplaceCookies atomically replaces the cached cookie set as a unit.
// Cookie sets from different logins are never merged.
func (r *CookieRepo) ReplaceCookies(cacheKey string, cookies []session.Cookie, capturedAt time.Time) error {
	raw, err := json.Marshal(cookies)
	if err != nil {
		return &PersistenceError{Op: "replace cookies", Err: err}
	}

	_, err = r.db.Exec(`
		INSERT INTO cookie_cache (cache_key, cookies, captured_at)
		VALUES (?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			cookies = excluded.cookies,
			captured_at = excluded.captured_at
	`, cacheKey, string(raw), capturedAt.UTC().Format(time.RFC3339))

	if err != nil {
		return &PersistenceError{Op: "replace cookies", Err: err}
	}

	return nil
}
