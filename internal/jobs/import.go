// Package jobs runs the periodic maintenance work: feed imports and
// session pruning.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gameweek/internal/ics"
	appLog "gameweek/internal/log"
	"gameweek/internal/model"
)

// EventStore is the part of the store an import writes to.
type EventStore interface {
	GetServer(id string) (model.Server, error)
	UpsertSourceEvent(ev model.Event) (model.Event, bool, error)
	DeleteSourceEvents(source string, keep map[string]bool) (int, error)
}

// ImportResult summarizes one applied import.
type ImportResult struct {
	Source    string `json:"source"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Removed   int    `json:"removed"`
	Skipped   int    `json:"skipped"`
	FromCache bool   `json:"from_cache,omitempty"`
}

func (r ImportResult) Changed() bool {
	return r.Created+r.Updated+r.Removed > 0
}

// Importer keeps the events of each feed in step with its upstream
// calendar. Events owned by a source are matched on their UID; rows whose
// UID vanished from the feed are deleted.
//
// Imports of the same source are serialized, whether they come from the
// scheduler, the admin API or an upload.
type Importer struct {
	store    EventStore
	fetcher  *ics.Fetcher
	feeds    []ics.Feed
	onChange func()

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewImporter(store EventStore, fetcher *ics.Fetcher, feeds []ics.Feed, onChange func()) *Importer {
	if onChange == nil {
		onChange = func() {}
	}
	return &Importer{
		store:    store,
		fetcher:  fetcher,
		feeds:    feeds,
		onChange: onChange,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockSource blocks until no other import of source is running and
// returns the matching unlock.
func (im *Importer) lockSource(source string) func() {
	im.mu.Lock()
	l, ok := im.locks[source]
	if !ok {
		l = &sync.Mutex{}
		im.locks[source] = l
	}
	im.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Feeds returns the configured feeds.
func (im *Importer) Feeds() []ics.Feed {
	return im.feeds
}

// Apply replaces the events owned by source with events. serverID, when
// set, binds every imported event to that server.
func (im *Importer) Apply(source, serverID string, events []model.Event) (ImportResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return ImportResult{}, &model.ValidationError{Field: "source", Reason: "is required"}
	}
	defer im.lockSource(source)()
	return im.apply(source, serverID, events)
}

func (im *Importer) apply(source, serverID string, events []model.Event) (ImportResult, error) {
	res := ImportResult{Source: source}
	if serverID != "" {
		if _, err := im.store.GetServer(serverID); err != nil {
			return res, fmt.Errorf("import %s: server %s: %w", source, serverID, err)
		}
	}

	keep := make(map[string]bool, len(events))
	for _, ev := range events {
		ev.Source = source
		ev.ServerID = serverID
		_, created, err := im.store.UpsertSourceEvent(ev)
		if err != nil {
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				appLog.Warn("import: event rejected", "source", source, "uid", ev.SourceUID, "reason", verr.Error())
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("import %s: %w", source, err)
		}
		keep[ev.SourceUID] = true
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	removed, err := im.store.DeleteSourceEvents(source, keep)
	if err != nil {
		return res, fmt.Errorf("import %s: pruning: %w", source, err)
	}
	res.Removed = removed

	if res.Changed() {
		im.onChange()
	}
	appLog.Info("import applied", "source", source, "created", res.Created, "updated", res.Updated, "removed", res.Removed, "skipped", res.Skipped)
	return res, nil
}

// ImportFeed downloads, parses and applies one feed.
func (im *Importer) ImportFeed(ctx context.Context, feed ics.Feed) (ImportResult, error) {
	defer im.lockSource(feed.ID)()

	dl, err := im.fetcher.Fetch(ctx, feed)
	if err != nil {
		return ImportResult{Source: feed.ID}, fmt.Errorf("fetch %s: %w", feed.ID, err)
	}
	events, err := ics.Parse(feed.ID, dl.Body)
	if err != nil {
		return ImportResult{Source: feed.ID}, fmt.Errorf("parse %s: %w", feed.ID, err)
	}
	res, err := im.apply(feed.ID, feed.ServerID, events)
	res.FromCache = dl.FromCache
	return res, err
}

// ImportAll imports every feed. A failing feed does not stop the others;
// the failures are joined into the returned error.
func (im *Importer) ImportAll(ctx context.Context) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(im.feeds))
	var errs []error
	for _, feed := range im.feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := im.ImportFeed(ctx, feed)
		if err != nil {
			appLog.Error("feed import failed", err, "feed", feed.ID)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}
