package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rss-stash/rss-stash/app/session"
)

func TestGetCookies_NoEntryReturnsNil(t *testing.T) {
	repo := NewCookieRepo(newTestDB(t))

	cookies, capturedAt, err := repo.GetCookies("https://example.com/login|reader")
	require.NoError(t, err)

	assert.Nil(t, cookies)
	assert.True(t, capturedAt.IsZero())
}

func TestReplaceCookies_RoundTrip(t *testing.T) {
	repo := NewCookieRepo(newTestDB(t))

	key := "https://example.com/login|reader"
	capturedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cookies := []session.Cookie{
		{Name: "sessionid", Value: "abc123", Domain: "example.com", Path: "/", Expires: capturedAt.Add(24 * time.Hour), Secure: true, HTTPOnly: true},
		{Name: "csrftoken", Value: "xyz", Domain: "example.com", Path: "/"},
	}

	require.NoError(t, repo.ReplaceCookies(key, cookies, capturedAt))

	got, gotCaptured, err := repo.GetCookies(key)
	require.NoError(t, err)

	assert.Equal(t, capturedAt, gotCaptured)
	require.Len(t, got, 2)
	assert.Equal(t, "sessionid", got[0].Name)
	assert.Equal(t, "abc123", got[0].Value)
	assert.True(t, got[0].Expires.Equal(capturedAt.Add(24*time.Hour)))
	assert.True(t, got[0].HTTPOnly)
	assert.True(t, got[1].Expires.IsZero(), "session cookies carry no expiry")
}

func TestReplaceCookies_ReplacesAsUnit(t *testing.T) {
	repo := NewCookieRepo(newTestDB(t))

	key := "https://example.com/login|reader"
	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, repo.ReplaceCookies(key, []session.Cookie{
		{Name: "sessionid", Value: "old"},
		{Name: "legacy", Value: "stale"},
	}, first))

	require.NoError(t, repo.ReplaceCookies(key, []session.Cookie{
		{Name: "sessionid", Value: "new"},
	}, second))

	got, gotCaptured, err := repo.GetCookies(key)
	require.NoError(t, err)

	require.Len(t, got, 1, "old cookies must not survive a replacement")
	assert.Equal(t, "new", got[0].Value)
	assert.Equal(t, second, gotCaptured)
}

func TestCookieCacheKeysAreIndependent(t *testing.T) {
	repo := NewCookieRepo(newTestDB(t))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.ReplaceCookies("site-a|user", []session.Cookie{{Name: "sid", Value: "a"}}, at))
	require.NoError(t, repo.ReplaceCookies("site-b|user", []session.Cookie{{Name: "sid", Value: "b"}}, at))

	gotA, _, err := repo.GetCookies("site-a|user")
	require.NoError(t, err)
	gotB, _, err := repo.GetCookies("site-b|user")
	require.NoError(t, err)

	assert.Equal(t, "a", gotA[0].Value)
	assert.Equal(t, "b", gotB[0].Value)
}
