package database

import (
	"database/sql"
	"fmt"
	"time"
)

// SourceState is the persisted record for one configured source. A zero
// timestamp means "never"; it is stored as NULL and forces the initial run
// of the corresponding operation.
type SourceState struct {
	SourceName    string
	HighWaterMark time.Time
	LastPollAt    time.Time
	LastRefreshAt time.Time
	ForcePoll     bool
	ForceSweep    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TrackedItem is the local memory of one entry published to the read-later
// target and not yet purged or deleted remotely.
type TrackedItem struct {
	RemoteID         string
	URL              string
	Title            string
	Folder           string
	EntryPublishedAt time.Time
	PublishedAt      time.Time // when the publish call succeeded; drives retention
}

// PersistenceError marks a failed state write. It is the only error class
// allowed to stop the orchestrator loop: a silently dropped state update
// risks reprocessing or divergence from the remote system.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Timestamps are serialized as RFC3339 UTC text; absence is NULL, never an
// empty string.

func timeToSQL(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func timeFromSQL(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s.String, err)
	}
	return t.UTC(), nil
}
