package session

import (
	"fmt"
	"net/http"
	"time"
)

// Cookie is one captured authentication cookie. Expires is zero when the
// site did not declare an expiry (session cookie).
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// FromHTTPCookies converts cookies captured from an http.CookieJar or a
// Set-Cookie response header into the persisted representation.
func FromHTTPCookies(cookies []*http.Cookie) []Cookie {
	converted := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		converted = append(converted, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return converted
}

// CookieStore persists captured cookie sets keyed by session cache key.
// A cookie set is always replaced as a unit; partial sets are never merged.
type CookieStore interface {
	GetCookies(cacheKey string) ([]Cookie, time.Time, error)
	ReplaceCookies(cacheKey string, cookies []Cookie, capturedAt time.Time) error
}

// AuthError marks a failed or incomplete login. The source's poll and
// refresh are skipped for the cycle; previously cached cookies stay usable.
type AuthError struct {
	Source string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for source %q: %v", e.Source, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
