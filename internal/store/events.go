package store

import (
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"gameweek/internal/model"
)

// sortEvents orders relative events by week, day and name, followed by
// date-pinned events in date order.
func sortEvents(evs []model.Event) {
	sort.Slice(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.IsAbsolute() != b.IsAbsolute() {
			return !a.IsAbsolute()
		}
		if a.IsAbsolute() {
			if !a.Start.Equal(b.Start) {
				return a.Start.Before(b.Start)
			}
		} else {
			if a.Week != b.Week {
				return a.Week < b.Week
			}
			if a.Day != b.Day {
				return a.Day < b.Day
			}
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

func (s *Store) listEvents(keep func(model.Event) bool) ([]model.Event, error) {
	out := make([]model.Event, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketEvents), func(ev model.Event) error {
			if keep == nil || keep(ev) {
				out = append(out, ev)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortEvents(out)
	return out, nil
}

func (s *Store) ListEvents() ([]model.Event, error) {
	return s.listEvents(nil)
}

// ListEventsForServer returns events shown for serverID: its own plus the
// ones not bound to any server.
func (s *Store) ListEventsForServer(serverID string) ([]model.Event, error) {
	return s.listEvents(func(ev model.Event) bool {
		return ev.AppliesTo(serverID)
	})
}

func (s *Store) GetEvent(id string) (model.Event, error) {
	var ev model.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketEvents), id, &ev)
	})
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", id, err)
	}
	return ev, nil
}

// CreateEvent validates and stores a new event. A ServerID, when given,
// must name an existing server.
func (s *Store) CreateEvent(ev model.Event) (model.Event, error) {
	ev.Normalize()
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	ev.ID = s.newID()
	ev.CreatedAt = s.now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		if ev.ServerID != "" && tx.Bucket(bucketServers).Get([]byte(ev.ServerID)) == nil {
			return fmt.Errorf("server %s: %w", ev.ServerID, ErrNotFound)
		}
		return putJSON(tx.Bucket(bucketEvents), ev.ID, ev)
	})
	if err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *Store) DeleteEvent(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("event %s: %w", id, err)
	}
	return nil
}

// UpsertSourceEvent stores an event owned by a feed. An existing row with
// the same Source and SourceUID is replaced in place and keeps its id.
// The returned bool is true when a new row was created.
func (s *Store) UpsertSourceEvent(ev model.Event) (model.Event, bool, error) {
	if ev.Source == "" || ev.SourceUID == "" {
		return model.Event{}, false, &model.ValidationError{Field: "source", Reason: "source and uid are required"}
	}
	ev.Normalize()
	if err := ev.Validate(); err != nil {
		return model.Event{}, false, err
	}

	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		var existing *model.Event
		err := each(b, func(old model.Event) error {
			if old.Source == ev.Source && old.SourceUID == ev.SourceUID {
				o := old
				existing = &o
			}
			return nil
		})
		if err != nil {
			return err
		}
		if existing != nil {
			ev.ID = existing.ID
			ev.CreatedAt = existing.CreatedAt
		} else {
			ev.ID = s.newID()
			ev.CreatedAt = s.now().UTC()
			created = true
		}
		return putJSON(b, ev.ID, ev)
	})
	if err != nil {
		return model.Event{}, false, err
	}
	return ev, created, nil
}

// DeleteSourceEvents removes rows owned by source whose uid is not in keep.
// It returns how many rows were deleted.
func (s *Store) DeleteSourceEvents(source string, keep map[string]bool) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		var doomed []string
		err := each(b, func(ev model.Event) error {
			if ev.Source == source && !keep[ev.SourceUID] {
				doomed = append(doomed, ev.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range doomed {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	return removed, err
}
