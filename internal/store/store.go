// Package store persists servers, events, profiles and sessions in a single
// bbolt file. Every record is stored as JSON under its id.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

const DefaultFile = "gameweek.bdb"

var (
	bucketServers       = []byte("servers")
	bucketEvents        = []byte("events")
	bucketProfiles      = []byte("profiles")
	bucketProfileEmails = []byte("profile_emails")
	bucketSessions      = []byte("sessions")

	allBuckets = [][]byte{bucketServers, bucketEvents, bucketProfiles, bucketProfileEmails, bucketSessions}
)

// Store is a bbolt-backed repository. It is safe for concurrent use.
type Store struct {
	db   *bolt.DB
	path string

	now   func() time.Time
	newID func() string
}

// Open opens (creating if needed) the database file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("could not create data dir %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("could not open db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("unable to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{
		db:    db,
		path:  path,
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not marshal object: %w", err)
	}
	if err := b.Put([]byte(key), raw); err != nil {
		return fmt.Errorf("could not store encoded object: %w", err)
	}
	return nil
}

func getJSON(b *bolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("could not decode %s: %w", key, err)
	}
	return nil
}

// each decodes every value in b into a fresh T and hands it to fn.
func each[T any](b *bolt.Bucket, fn func(T) error) error {
	return b.ForEach(func(k, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("could not decode %s: %w", k, err)
		}
		return fn(v)
	})
}
