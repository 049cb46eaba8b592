package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/session"
)

// DefaultTag is applied to published entries when the destination enables it.
const DefaultTag = "rss-stash"

// ErrFolderNotFound is returned by ResolveFolder when no folder has the
// requested name.
var ErrFolderNotFound = errors.New("folder not found")

// ErrFolderExists is returned by CreateFolder when the destination already
// has a folder with that name. The pipeline treats it as success and looks
// the existing folder up.
var ErrFolderExists = errors.New("folder already exists")

// PublishTarget is the read-later destination the pipeline writes to.
type PublishTarget interface {
	Publish(ctx context.Context, entry ingest.Entry, tags []string, folderID string) (remoteID string, err error)
	ResolveFolder(ctx context.Context, name string) (folderID string, err error)
	CreateFolder(ctx context.Context, name string) (folderID string, err error)
}

// RefreshTarget propagates the current session cookies to the downstream
// cache on the refresh cadence.
type RefreshTarget interface {
	Refresh(ctx context.Context, cookies []session.Cookie) error
}

// PublishError marks a failed publish of a single entry. The entry is
// skipped without advancing the source's high-water mark; the rest of the
// batch continues.
type PublishError struct {
	Source string
	URL    string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed for entry %q (source %s): %v", e.URL, e.Source, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Report summarizes one batch publish.
type Report struct {
	Published int
	Failed    int
}
