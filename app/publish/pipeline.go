package publish

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"

	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/ingest"
)

// Pipeline publishes one cycle's merged batch to the read-later target in
// global chronological order. Each successful publish durably records the
// remote identifier and advances the source's high-water mark before the
// next entry, so a crash mid-batch loses at most the entries not yet
// reached and never regresses a mark.
type Pipeline struct {
	target PublishTarget
	states database.StateRepository
}

func NewPipeline(target PublishTarget, states database.StateRepository) *Pipeline {
	return &Pipeline{
		target: target,
		states: states,
	}
}

// PublishBatch publishes all entries in published_at ascending order. A
// failed entry is skipped without aborting the batch. The returned error is
// non-nil only for state persistence failures, which must stop the loop.
func (p *Pipeline) PublishBatch(ctx context.Context, entries []ingest.Entry) (Report, error) {
	var report Report

	if len(entries) == 0 {
		return report, nil
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].PublishedAt.Before(entries[b].PublishedAt)
	})

	folderIDs := make(map[string]string)

	for _, entry := range entries {
		// Honor cancellation between entries, never mid-entry.
		if ctx.Err() != nil {
			slog.Info("Publish batch interrupted by shutdown", "published", report.Published, "remaining", len(entries)-report.Published-report.Failed)
			return report, nil
		}

		folderID, err := p.resolveFolder(ctx, entry.Destination.Folder, folderIDs)
		if err != nil {
			publishErr := &PublishError{Source: entry.SourceName, URL: entry.URL, Err: err}
			slog.Error("Entry skipped", "source", entry.SourceName, "url", entry.URL, "error", publishErr)
			report.Failed++
			continue
		}

		tags := computeTags(entry)

		remoteID, err := p.target.Publish(ctx, entry, tags, folderID)
		if err != nil {
			publishErr := &PublishError{Source: entry.SourceName, URL: entry.URL, Err: err}
			slog.Error("Entry skipped", "source", entry.SourceName, "url", entry.URL, "error", publishErr)
			report.Failed++
			continue
		}

		item := database.TrackedItem{
			RemoteID:         remoteID,
			URL:              entry.URL,
			Title:            entry.Title,
			Folder:           entry.Destination.Folder,
			EntryPublishedAt: entry.PublishedAt,
			PublishedAt:      time.Now().UTC(),
		}

		if err := p.states.RecordPublished(entry.SourceName, item, entry.PublishedAt); err != nil {
			return report, err
		}

		report.Published++
		slog.Debug("Entry published", "source", entry.SourceName, "url", entry.URL, "remote_id", remoteID)
	}

	slog.Info("Batch published", "published", report.Published, "failed", report.Failed)

	return report, nil
}

// resolveFolder looks a destination folder up by name, creating it when
// absent. A "folder already exists" conflict from the destination is
// treated as success and resolved to the existing folder. Results are
// memoized for the batch.
func (p *Pipeline) resolveFolder(ctx context.Context, name string, memo map[string]string) (string, error) {
	if name == "" {
		return "", nil
	}
	if id, ok := memo[name]; ok {
		return id, nil
	}

	id, err := p.target.ResolveFolder(ctx, name)
	if errors.Is(err, ErrFolderNotFound) {
		id, err = p.target.CreateFolder(ctx, name)
		if errors.Is(err, ErrFolderExists) {
			id, err = p.target.ResolveFolder(ctx, name)
		}
	}
	if err != nil {
		return "", err
	}

	memo[name] = id
	return id, nil
}

// computeTags is the union of the destination's explicit tags, the fixed
// default tag when enabled, and the entry's feed categories when enabled.
func computeTags(entry ingest.Entry) []string {
	tags := make([]string, 0, len(entry.Destination.Tags)+len(entry.Categories)+1)
	tags = append(tags, entry.Destination.Tags...)

	if entry.Destination.DefaultTag {
		tags = append(tags, DefaultTag)
	}
	if entry.Destination.IncludeCategories {
		tags = append(tags, entry.Categories...)
	}

	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(norm.NFC.String(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}

	return lo.Uniq(normalized)
}
