package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"

	"github.com/rss-stash/rss-stash/app/session"
	"github.com/rss-stash/rss-stash/app/source"
)

// Ingestor fetches a source's feed, keeps entries newer than the high-water
// mark, and optionally pulls full article content through the authenticated
// session for paywalled sources.
type Ingestor struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

func NewIngestor(httpClient *http.Client, userAgent string) *Ingestor {
	return &Ingestor{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

// FetchNewEntries returns the entries published strictly after highWaterMark,
// oldest first as the feed delivers them. The cookie set is used for the feed
// document only when the source asks for an authenticated feed fetch, and for
// article content only when it asks for authenticated content.
func (i *Ingestor) FetchNewEntries(ctx context.Context, cfg *source.Config, cookies []session.Cookie, highWaterMark time.Time) ([]Entry, error) {
	feedCookies := []session.Cookie(nil)
	if cfg.Settings.AuthFeed && len(cookies) > 0 {
		feedCookies = cookies
	}

	data, err := i.fetch(ctx, cfg.URL, feedCookies, cfg.Settings.Timeout)
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, URL: cfg.URL, Err: err}
	}

	feed, err := i.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FetchError{Source: cfg.Name, URL: cfg.URL, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	var entries []Entry
	droppedCount := 0

	for _, item := range feed.Items {
		publishedAt := itemTimestamp(item)
		if publishedAt.IsZero() {
			slog.Warn("Feed item has no usable timestamp, skipping", "source", cfg.Name, "link", item.Link)
			continue
		}
		if !publishedAt.After(highWaterMark) {
			continue
		}

		entry := Entry{
			SourceName:  cfg.Name,
			URL:         item.Link,
			Title:       item.Title,
			PublishedAt: publishedAt.UTC(),
			Categories:  mergeCategories(feed.Categories, item.Categories),
			Content:     itemContent(item),
			Destination: cfg.Destination,
		}

		if cfg.Settings.AuthContent {
			content, err := i.fetchContent(ctx, cfg, item.Link, cookies)
			if err != nil {
				if cfg.Settings.Protected {
					slog.Warn("Protected content fetch failed, dropping entry", "source", cfg.Name, "link", item.Link, "error", err)
					droppedCount++
					continue
				}
				slog.Warn("Content fetch failed, publishing with feed content", "source", cfg.Name, "link", item.Link, "error", err)
			} else {
				entry.Content = content
			}
		}

		entries = append(entries, entry)
	}

	slog.Debug("Feed ingested",
		"source", cfg.Name,
		"total", len(feed.Items),
		"new", len(entries),
		"dropped", droppedCount)

	return entries, nil
}

// fetchContent pulls the article HTML through the authenticated channel and
// extracts the readable body.
func (i *Ingestor) fetchContent(ctx context.Context, cfg *source.Config, link string, cookies []session.Cookie) (string, error) {
	if link == "" {
		return "", fmt.Errorf("entry has no link")
	}

	data, err := i.fetch(ctx, link, cookies, cfg.Settings.Timeout)
	if err != nil {
		return "", err
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid entry link: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", fmt.Errorf("no content extracted from article HTML")
	}

	return article.Content, nil
}

func (i *Ingestor) fetch(ctx context.Context, fetchURL string, cookies []session.Cookie, timeoutSeconds int) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", i.userAgent)
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// itemTimestamp prefers the published date and falls back to the updated
// date; zero means the feed gave neither.
func itemTimestamp(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// mergeCategories unions feed-level and entry-level taxonomy terms,
// NFC-normalized and deduplicated.
func mergeCategories(feedCategories, itemCategories []string) []string {
	merged := make([]string, 0, len(feedCategories)+len(itemCategories))
	for _, c := range append(append([]string{}, feedCategories...), itemCategories...) {
		c = strings.TrimSpace(norm.NFC.String(c))
		if c != "" {
			merged = append(merged, c)
		}
	}
	return lo.Uniq(merged)
}
