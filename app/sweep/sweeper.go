package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/source"
)

// SyncTarget is the destination's reconciliation surface: bulk status for
// detecting remote deletions and per-item delete for retention purges.
type SyncTarget interface {
	Status(ctx context.Context, remoteIDs []string) (deleted []string, err error)
	Delete(ctx context.Context, remoteID string) error
}

// SyncError marks a sweep-level failure (status lookup or state listing).
// The remaining sweep steps for the source are aborted and the one-shot
// flag stays set so the next cycle retries. Individual delete failures are
// not sweep-level: they are logged and the item stays tracked for a future
// sweep.
type SyncError struct {
	Source string
	Err    error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sweep failed for source %q: %v", e.Source, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Sweeper reconciles locally tracked remote items against the destination
// and purges items older than the source's retention window. Runs only when
// the source's one-shot sweep flag is set.
type Sweeper struct {
	target SyncTarget
	states database.StateRepository
}

func NewSweeper(target SyncTarget, states database.StateRepository) *Sweeper {
	return &Sweeper{
		target: target,
		states: states,
	}
}

// Sweep runs the sync pass then the retention pass for one source. The
// returned error is a SyncError for sweep-level failures or a
// PersistenceError for failed state writes; nil means the sweep completed
// (individual delete failures included).
func (s *Sweeper) Sweep(ctx context.Context, cfg *source.Config) error {
	items, err := s.states.ListTrackedItems(cfg.Name)
	if err != nil {
		return &SyncError{Source: cfg.Name, Err: err}
	}

	if len(items) == 0 {
		slog.Debug("Nothing tracked, sweep is a no-op", "source", cfg.Name)
		return nil
	}

	remaining, err := s.syncDeletions(ctx, cfg, items)
	if err != nil {
		return err
	}

	return s.purgeAged(ctx, cfg, remaining)
}

// syncDeletions asks the destination which tracked ids it has deleted and
// drops them locally. The remote already considers them gone, so no further
// remote call is made.
func (s *Sweeper) syncDeletions(ctx context.Context, cfg *source.Config, items []database.TrackedItem) ([]database.TrackedItem, error) {
	remoteIDs := make([]string, 0, len(items))
	for _, item := range items {
		remoteIDs = append(remoteIDs, item.RemoteID)
	}

	deleted, err := s.target.Status(ctx, remoteIDs)
	if err != nil {
		return nil, &SyncError{Source: cfg.Name, Err: fmt.Errorf("status lookup failed: %w", err)}
	}

	deletedSet := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		deletedSet[id] = true
	}

	remaining := items[:0]
	for _, item := range items {
		if !deletedSet[item.RemoteID] {
			remaining = append(remaining, item)
			continue
		}
		if err := s.states.RemoveTrackedItem(cfg.Name, item.RemoteID); err != nil {
			return nil, err
		}
		slog.Debug("Tracked item deleted remotely, dropped locally", "source", cfg.Name, "remote_id", item.RemoteID)
	}

	if len(deleted) > 0 {
		slog.Info("Sync removed remotely deleted items", "source", cfg.Name, "count", len(deleted))
	}

	return remaining, nil
}

// purgeAged deletes items whose publish timestamp is strictly older than
// the retention window. An item exactly at the boundary is kept. A failed
// delete stays tracked for a future sweep; there is no retry within the
// same sweep.
func (s *Sweeper) purgeAged(ctx context.Context, cfg *source.Config, items []database.TrackedItem) error {
	window := cfg.RetentionWindow()
	if window <= 0 {
		return nil
	}

	cutoff := time.Now().UTC().Add(-window)
	purgedCount := 0
	failedCount := 0

	for _, item := range items {
		// Finish the current item before honoring cancellation.
		if ctx.Err() != nil {
			slog.Info("Sweep interrupted by shutdown", "source", cfg.Name, "purged", purgedCount)
			return nil
		}

		if !item.PublishedAt.Before(cutoff) {
			continue
		}

		if err := s.target.Delete(ctx, item.RemoteID); err != nil {
			slog.Warn("Retention delete failed, keeping item tracked", "source", cfg.Name, "remote_id", item.RemoteID, "error", err)
			failedCount++
			continue
		}

		if err := s.states.RemoveTrackedItem(cfg.Name, item.RemoteID); err != nil {
			return err
		}
		purgedCount++
	}

	if purgedCount > 0 || failedCount > 0 {
		slog.Info("Retention purge finished", "source", cfg.Name, "purged", purgedCount, "failed", failedCount)
	}

	return nil
}
