package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/source"
)

type fakeTarget struct {
	folders       map[string]string
	created       int
	publishOrder  []string
	publishedTags map[string][]string
	failURLs      map[string]bool
	nextID        int
	conflictOnce  bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		folders:       make(map[string]string),
		publishedTags: make(map[string][]string),
		failURLs:      make(map[string]bool),
	}
}

func (f *fakeTarget) Publish(ctx context.Context, entry ingest.Entry, tags []string, folderID string) (string, error) {
	if f.failURLs[entry.URL] {
		return "", errors.New("destination rejected entry")
	}
	f.nextID++
	id := fmt.Sprintf("%d", f.nextID+99)
	f.publishOrder = append(f.publishOrder, entry.URL)
	f.publishedTags[entry.URL] = tags
	return id, nil
}

func (f *fakeTarget) ResolveFolder(ctx context.Context, name string) (string, error) {
	if id, ok := f.folders[name]; ok {
		return id, nil
	}
	return "", ErrFolderNotFound
}

func (f *fakeTarget) CreateFolder(ctx context.Context, name string) (string, error) {
	if f.conflictOnce {
		f.conflictOnce = false
		f.folders[name] = fmt.Sprintf("folder-%d", len(f.folders)+1)
		return "", ErrFolderExists
	}
	f.created++
	id := fmt.Sprintf("folder-%d", len(f.folders)+1)
	f.folders[name] = id
	return id, nil
}

type fakeStateRepo struct {
	tracked map[string][]database.TrackedItem
	marks   map[string]time.Time
	failing bool
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{
		tracked: make(map[string][]database.TrackedItem),
		marks:   make(map[string]time.Time),
	}
}

func (r *fakeStateRepo) LoadState(sourceName string) (*database.SourceState, error) {
	return &database.SourceState{SourceName: sourceName, HighWaterMark: r.marks[sourceName]}, nil
}

func (r *fakeStateRepo) RecordPublished(sourceName string, item database.TrackedItem, mark time.Time) error {
	if r.failing {
		return &database.PersistenceError{Op: "record published", Err: errors.New("disk full")}
	}
	r.tracked[sourceName] = append(r.tracked[sourceName], item)
	if mark.After(r.marks[sourceName]) {
		r.marks[sourceName] = mark
	}
	return nil
}

func (r *fakeStateRepo) MarkPolled(sourceName string, at time.Time) error    { return nil }
func (r *fakeStateRepo) MarkRefreshed(sourceName string, at time.Time) error { return nil }
func (r *fakeStateRepo) SetForcePoll(sourceName string, v bool) error        { return nil }
func (r *fakeStateRepo) SetForceSweep(sourceName string, v bool) error       { return nil }

func (r *fakeStateRepo) ListTrackedItems(sourceName string) ([]database.TrackedItem, error) {
	return r.tracked[sourceName], nil
}

func (r *fakeStateRepo) RemoveTrackedItem(sourceName, remoteID string) error { return nil }
func (r *fakeStateRepo) GetSourceCount() (int, error)                        { return len(r.marks), nil }
func (r *fakeStateRepo) GetTrackedItemCount() (int, error)                   { return 0, nil }

func entryAt(sourceName, url string, publishedAt time.Time) ingest.Entry {
	return ingest.Entry{
		SourceName:  sourceName,
		URL:         url,
		Title:       url,
		PublishedAt: publishedAt,
		Destination: source.ConfigDestination{Folder: "News"},
	}
}

func TestPublishBatch_GlobalChronologicalOrder(t *testing.T) {
	target := newFakeTarget()
	states := newFakeStateRepo()
	pipeline := NewPipeline(target, states)

	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	// Interleaved timestamps across two sources, appended out of order.
	entries := []ingest.Entry{
		entryAt("alpha", "https://a.example/3", base.Add(3*time.Hour)),
		entryAt("beta", "https://b.example/2", base.Add(2*time.Hour)),
		entryAt("alpha", "https://a.example/1", base.Add(1*time.Hour)),
		entryAt("beta", "https://b.example/4", base.Add(4*time.Hour)),
	}

	_, err := pipeline.PublishBatch(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://a.example/1",
		"https://b.example/2",
		"https://a.example/3",
		"https://b.example/4",
	}, target.publishOrder)
}

func TestPublishBatch_FailedEntrySkippedWithoutAdvancingMark(t *testing.T) {
	target := newFakeTarget()
	states := newFakeStateRepo()
	pipeline := NewPipeline(target, states)

	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

	entryA := entryAt("news", "https://example.com/a", base)
	entryB := entryAt("news", "https://example.com/b", base.Add(time.Hour))
	target.failURLs[entryB.URL] = true

	report, err := pipeline.PublishBatch(context.Background(), []ingest.Entry{entryA, entryB})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Failed)

	// Only A's remote id is tracked and the mark stops at A's timestamp.
	require.Len(t, states.tracked["news"], 1)
	assert.Equal(t, "100", states.tracked["news"][0].RemoteID)
	assert.True(t, states.marks["news"].Equal(entryA.PublishedAt),
		"mark should be A's published_at, got %v", states.marks["news"])
}

func TestPublishBatch_FolderCreatedOnceAcrossBatch(t *testing.T) {
	target := newFakeTarget()
	states := newFakeStateRepo()
	pipeline := NewPipeline(target, states)

	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	entries := []ingest.Entry{
		entryAt("alpha", "https://a.example/1", base),
		entryAt("beta", "https://b.example/2", base.Add(time.Hour)),
	}

	_, err := pipeline.PublishBatch(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, target.created, "one folder creation for repeated folder names")
}

func TestPublishBatch_FolderConflictResolvesExisting(t *testing.T) {
	target := newFakeTarget()
	target.conflictOnce = true
	states := newFakeStateRepo()
	pipeline := NewPipeline(target, states)

	entries := []ingest.Entry{entryAt("alpha", "https://a.example/1", time.Now().UTC())}

	report, err := pipeline.PublishBatch(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published, "a folder-exists conflict is success, not failure")
	assert.Equal(t, 0, target.created)
}

func TestPublishBatch_TagComputation(t *testing.T) {
	target := newFakeTarget()
	states := newFakeStateRepo()
	pipeline := NewPipeline(target, states)

	entry := ingest.Entry{
		SourceName:  "news",
		URL:         "https://example.com/a",
		PublishedAt: time.Now().UTC(),
		Categories:  []string{"tech", "news"},
		Destination: source.ConfigDestination{
			Tags:              []string{"news", "daily"},
			DefaultTag:        true,
			IncludeCategories: true,
		},
	}

	_, err := pipeline.PublishBatch(context.Background(), []ingest.Entry{entry})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"news", "daily", DefaultTag, "tech"}, target.publishedTags[entry.URL])
}

func TestPublishBatch_PersistenceFailureAbortsBatch(t *testing.T) {
	target := newFakeTarget()
	states := newFakeStateRepo()
	states.failing = true
	pipeline := NewPipeline(target, states)

	entries := []ingest.Entry{entryAt("news", "https://example.com/a", time.Now().UTC())}

	_, err := pipeline.PublishBatch(context.Background(), entries)
	require.Error(t, err)

	var persistErr *database.PersistenceError
	assert.ErrorAs(t, err, &persistErr)
}
