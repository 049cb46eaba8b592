package database

import (
	"time"

	"github.com/rss-stash/rss-stash/app/session"
)

// StateRepository persists one SourceState record per configured source.
// Every write is durable before the call returns. Writes for a given source
// are serialized by the single-connection sqlite pool.
type StateRepository interface {
	// LoadState returns the state for a source, creating a zero-valued
	// record on first reference.
	LoadState(sourceName string) (*SourceState, error)

	// RecordPublished durably tracks a published remote item and advances
	// the high-water mark in one transaction. The mark never regresses.
	RecordPublished(sourceName string, item TrackedItem, mark time.Time) error

	// MarkPolled records a successful poll and clears the one-shot
	// force_poll flag in the same statement.
	MarkPolled(sourceName string, at time.Time) error
	MarkRefreshed(sourceName string, at time.Time) error

	SetForcePoll(sourceName string, v bool) error
	SetForceSweep(sourceName string, v bool) error

	ListTrackedItems(sourceName string) ([]TrackedItem, error)
	RemoveTrackedItem(sourceName, remoteID string) error

	GetSourceCount() (int, error)
	GetTrackedItemCount() (int, error)
}

// CookieRepository is the persistent cookie cache shared across sources by
// cache key. It satisfies session.CookieStore.
type CookieRepository interface {
	GetCookies(cacheKey string) ([]session.Cookie, time.Time, error)
	ReplaceCookies(cacheKey string, cookies []session.Cookie, capturedAt time.Time) error
}
