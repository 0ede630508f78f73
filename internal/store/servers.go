package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"gameweek/internal/model"
)

func (s *Store) ListServers() ([]model.Server, error) {
	out := make([]model.Server, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketServers), func(srv model.Server) error {
			out = append(out, srv)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetServer(id string) (model.Server, error) {
	var srv model.Server
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketServers), id, &srv)
	})
	if err != nil {
		return model.Server{}, fmt.Errorf("server %s: %w", id, err)
	}
	return srv, nil
}

// CreateServer assigns an id and creation time and stores srv.
func (s *Store) CreateServer(srv model.Server) (model.Server, error) {
	srv.Name = strings.TrimSpace(srv.Name)
	if err := srv.Validate(); err != nil {
		return model.Server{}, err
	}
	srv.ID = s.newID()
	srv.CreatedAt = s.now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketServers), srv.ID, srv)
	})
	if err != nil {
		return model.Server{}, err
	}
	return srv, nil
}

// ServerUpdate carries the fields an admin may change. Nil means unchanged.
type ServerUpdate struct {
	Name      *string
	StartDate *time.Time
}

func (s *Store) UpdateServer(id string, upd ServerUpdate) (model.Server, error) {
	var srv model.Server
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		if err := getJSON(b, id, &srv); err != nil {
			return err
		}
		if upd.Name != nil {
			srv.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.StartDate != nil {
			srv.StartDate = *upd.StartDate
		}
		if err := srv.Validate(); err != nil {
			return err
		}
		return putJSON(b, id, srv)
	})
	if err != nil {
		return model.Server{}, fmt.Errorf("server %s: %w", id, err)
	}
	return srv, nil
}

// DeleteServer removes the server and every event bound to it.
func (s *Store) DeleteServer(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketServers)
		if b.Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}

		eb := tx.Bucket(bucketEvents)
		var doomed []string
		err := each(eb, func(ev model.Event) error {
			if ev.ServerID == id {
				doomed = append(doomed, ev.ID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, evID := range doomed {
			if err := eb.Delete([]byte(evID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("server %s: %w", id, err)
	}
	return nil
}
