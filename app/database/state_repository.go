package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ StateRepository = (*StateRepo)(nil)

// StateRepo handles database operations for source states and tracked items
type StateRepo struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// LoadState retrieves the state for a source, creating a zero-valued record
// on first reference. Tracked items are loaded separately via
// ListTrackedItems; the state row itself stays small.
func (r *StateRepo) LoadState(sourceName string) (*SourceState, error) {
	state, err := r.getState(sourceName)
	if err != nil {
		return nil, err
	}
	if state != nil {
		return state, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.db.Exec(`
		INSERT INTO source_states (source_name, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (source_name) DO NOTHING
	`, sourceName, now, now)
	if err != nil {
		return nil, &PersistenceError{Op: "create state", Err: err}
	}

	state, err = r.getState(sourceName)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, &PersistenceError{Op: "create state", Err: fmt.Errorf("state row missing after insert for %q", sourceName)}
	}
	return state, nil
}

func (r *StateRepo) getState(sourceName string) (*SourceState, error) {
	var state SourceState
	var hwm, lastPoll, lastRefresh, createdAt, updatedAt sql.NullString

	err := r.db.QueryRow(`
		SELECT source_name, high_water_mark, last_poll_at, last_refresh_at,
		       force_poll, force_sweep, created_at, updated_at
		FROM source_states
		WHERE source_name = ?
	`, sourceName).Scan(
		&state.SourceName, &hwm, &lastPoll, &lastRefresh,
		&state.ForcePoll, &state.ForceSweep, &createdAt, &updatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source state: %w", err)
	}

	for _, field := range []struct {
		dst *time.Time
		src sql.NullString
	}{
		{&state.HighWaterMark, hwm},
		{&state.LastPollAt, lastPoll},
		{&state.LastRefreshAt, lastRefresh},
		{&state.CreatedAt, createdAt},
		{&state.UpdatedAt, updatedAt},
	} {
		t, err := timeFromSQL(field.src)
		if err != nil {
			return nil, fmt.Errorf("failed to decode source state: %w", err)
		}
		*field.dst = t
	}

	return &state, nil
}

// RecordPublished inserts the tracked item and advances the high-water mark
// in one transaction, so a crash can never leave the mark ahead of the
// tracked record. The mark is monotonic: an older entry timestamp leaves it
// untouched.
func (r *StateRepo) RecordPublished(sourceName string, item TrackedItem, mark time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "record published", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO tracked_items (source_name, remote_id, url, title, folder, entry_published_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_name, remote_id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			folder = excluded.folder,
			entry_published_at = excluded.entry_published_at,
			published_at = excluded.published_at
	`, sourceName, item.RemoteID, item.URL, item.Title, item.Folder,
		timeToSQL(item.EntryPublishedAt), timeToSQL(item.PublishedAt))
	if err != nil {
		return &PersistenceError{Op: "record published", Err: err}
	}

	var current sql.NullString
	err = tx.QueryRow(`SELECT high_water_mark FROM source_states WHERE source_name = ?`, sourceName).Scan(&current)
	if err != nil {
		return &PersistenceError{Op: "record published", Err: err}
	}

	currentMark, err := timeFromSQL(current)
	if err != nil {
		return &PersistenceError{Op: "record published", Err: err}
	}

	if mark.After(currentMark) {
		_, err = tx.Exec(`
			UPDATE source_states
			SET high_water_mark = ?, updated_at = ?
			WHERE source_name = ?
		`, timeToSQL(mark), time.Now().UTC().Format(time.RFC3339), sourceName)
		if err != nil {
			return &PersistenceError{Op: "record published", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "record published", Err: err}
	}

	return nil
}

func (r *StateRepo) MarkPolled(sourceName string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE source_states
		SET last_poll_at = ?, force_poll = 0, updated_at = ?
		WHERE source_name = ?
	`, timeToSQL(at), time.Now().UTC().Format(time.RFC3339), sourceName)

	if err != nil {
		return &PersistenceError{Op: "mark polled", Err: err}
	}

	return nil
}

func (r *StateRepo) MarkRefreshed(sourceName string, at time.Time) error {
	_, err := r.db.Exec(`
		UPDATE source_states
		SET last_refresh_at = ?, updated_at = ?
		WHERE source_name = ?
	`, timeToSQL(at), time.Now().UTC().Format(time.RFC3339), sourceName)

	if err != nil {
		return &PersistenceError{Op: "mark refreshed", Err: err}
	}

	return nil
}

func (r *StateRepo) SetForcePoll(sourceName string, v bool) error {
	_, err := r.db.Exec(`
		UPDATE source_states
		SET force_poll = ?, updated_at = ?
		WHERE source_name = ?
	`, v, time.Now().UTC().Format(time.RFC3339), sourceName)

	if err != nil {
		return &PersistenceError{Op: "set force poll", Err: err}
	}

	return nil
}

func (r *StateRepo) SetForceSweep(sourceName string, v bool) error {
	_, err := r.db.Exec(`
		UPDATE source_states
		SET force_sweep = ?, updated_at = ?
		WHERE source_name = ?
	`, v, time.Now().UTC().Format(time.RFC3339), sourceName)

	if err != nil {
		return &PersistenceError{Op: "set force sweep", Err: err}
	}

	return nil
}

func (r *StateRepo) ListTrackedItems(sourceName string) ([]TrackedItem, error) {
	rows, err := r.db.Query(`
		SELECT remote_id, url, title, folder, entry_published_at, published_at
		FROM tracked_items
		WHERE source_name = ?
		ORDER BY published_at
	`, sourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked items: %w", err)
	}
	defer rows.Close()

	var items []TrackedItem
	for rows.Next() {
		var item TrackedItem
		var entryPublished, published sql.NullString

		err := rows.Scan(&item.RemoteID, &item.URL, &item.Title, &item.Folder, &entryPublished, &published)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked item row: %w", err)
		}

		if item.EntryPublishedAt, err = timeFromSQL(entryPublished); err != nil {
			return nil, fmt.Errorf("failed to decode tracked item: %w", err)
		}
		if item.PublishedAt, err = timeFromSQL(published); err != nil {
			return nil, fmt.Errorf("failed to decode tracked item: %w", err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked item rows: %w", err)
	}

	return items, nil
}

func (r *StateRepo) RemoveTrackedItem(sourceName, remoteID string) error {
	_, err := r.db.Exec(`
		DELETE FROM tracked_items
		WHERE source_name = ? AND remote_id = ?
	`, sourceName, remoteID)

	if err != nil {
		return &PersistenceError{Op: "remove tracked item", Err: err}
	}

	return nil
}

func (r *StateRepo) GetSourceCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM source_states").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get source count: %w", err)
	}
	return count, nil
}

func (r *StateRepo) GetTrackedItemCount() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM tracked_items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get tracked item count: %w", err)
	}
	return count, nil
}
