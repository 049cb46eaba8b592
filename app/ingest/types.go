package ingest

import (
	"fmt"
	"time"

	"github.com/rss-stash/rss-stash/app/source"
)

// Entry is one newly discovered feed item awaiting publication. Entries are
// transient: created here, consumed by the publish pipeline within the same
// cycle, never persisted.
type Entry struct {
	SourceName  string
	URL         string
	Title       string
	PublishedAt time.Time
	Categories  []string
	Content     string
	Destination source.ConfigDestination
}

// FetchError marks a failed feed or content fetch. The source is skipped
// for the cycle; other sources are unaffected.
type FetchError struct {
	Source string
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for source %q (%s): %v", e.Source, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
