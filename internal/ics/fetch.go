package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "gameweek/internal/log"
)

// MaxFeedSize bounds a single downloaded calendar.
const MaxFeedSize = 4 << 20

// Feed is a subscribed calendar whose events are imported for a server.
// An empty ServerID makes the imported events global.
type Feed struct {
	ID       string
	URL      string
	ServerID string
}

// Download is the body of one feed, fresh or replayed from disk.
type Download struct {
	Feed      Feed
	Body      []byte
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads feeds with conditional requests and keeps the last good
// body per URL under cacheDir, so a flaky upstream never empties a server.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "gameweek-feeds")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch returns the current body of feed. Network failures and non-OK
// statuses fall back to the cached body when one exists.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Download, error) {
	if feed.URL == "" {
		return Download{}, fmt.Errorf("feed %q: empty url", feed.ID)
	}
	dir := filepath.Join(f.cacheDir, cacheKey(feed.URL))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Download{}, fmt.Errorf("feed cache dir: %w", err)
	}

	meta := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))
	fallback := func(reason error) (Download, error) {
		if len(cached) == 0 {
			return Download{}, reason
		}
		appLog.Error("feed fetch failed, using cached body", reason, "feed", feed.ID, "url", redactURL(feed.URL))
		return Download{Feed: feed, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return Download{}, err
	}
	req.Header.Set("Accept", "text/calendar")
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "feed", feed.ID, "url", redactURL(feed.URL))
	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFeedSize+1))
		if err != nil {
			return fallback(err)
		}
		if len(body) > MaxFeedSize {
			return fallback(fmt.Errorf("feed larger than %d bytes", MaxFeedSize))
		}
		// Captive portals and error pages answer 200 too; keep the last
		// good calendar instead of caching them.
		if !isCalendar(body) {
			return fallback(fmt.Errorf("response is not an iCalendar document (%s)", resp.Header.Get("Content-Type")))
		}
		meta = cacheMeta{
			URL:          feed.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := saveCache(dir, meta, body); err != nil {
			appLog.Error("feed cache save failed", err, "feed", feed.ID)
		}
		appLog.Info("feed fetched", "feed", feed.ID, "bytes", len(body))
		return Download{Feed: feed, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return Download{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("feed not modified", "feed", feed.ID)
		return Download{Feed: feed, Body: cached, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

func cacheKey(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:8])
}

func loadMeta(dir string) cacheMeta {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}
	}
	return meta
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never references a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; private calendar URLs carry
// their secret in the path or query.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
