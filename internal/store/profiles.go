package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"gameweek/internal/model"
)

// NormalizeEmail is the lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateProfile stores p under a fresh id. Emails are unique.
func (s *Store) CreateProfile(p model.Profile) (model.Profile, error) {
	p.Email = NormalizeEmail(p.Email)
	if p.Email == "" {
		return model.Profile{}, &model.ValidationError{Field: "email", Reason: "must not be empty"}
	}
	p.ID = s.newID()
	p.CreatedAt = s.now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketProfileEmails)
		if idx.Get([]byte(p.Email)) != nil {
			return fmt.Errorf("profile %s: %w", p.Email, ErrExists)
		}
		if err := idx.Put([]byte(p.Email), []byte(p.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketProfiles), p.ID, p)
	})
	if err != nil {
		return model.Profile{}, err
	}
	return p, nil
}

func (s *Store) GetProfile(id string) (model.Profile, error) {
	var p model.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketProfiles), id, &p)
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) GetProfileByEmail(email string) (model.Profile, error) {
	email = NormalizeEmail(email)
	var p model.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketProfileEmails).Get([]byte(email))
		if id == nil {
			return ErrNotFound
		}
		return getJSON(tx.Bucket(bucketProfiles), string(id), &p)
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", email, err)
	}
	return p, nil
}

func (s *Store) ListProfiles() ([]model.Profile, error) {
	out := make([]model.Profile, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return each(tx.Bucket(bucketProfiles), func(p model.Profile) error {
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// SetAdmin flips the is_admin flag of the profile with the given email.
func (s *Store) SetAdmin(email string, admin bool) (model.Profile, error) {
	email = NormalizeEmail(email)
	var p model.Profile
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketProfileEmails).Get([]byte(email))
		if id == nil {
			return ErrNotFound
		}
		b := tx.Bucket(bucketProfiles)
		if err := getJSON(b, string(id), &p); err != nil {
			return err
		}
		p.IsAdmin = admin
		return putJSON(b, p.ID, p)
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", email, err)
	}
	return p, nil
}

// SetPassword replaces the stored password hash.
func (s *Store) SetPassword(email, hash string) error {
	email = NormalizeEmail(email)
	err := s.db.Update(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketProfileEmails).Get([]byte(email))
		if id == nil {
			return ErrNotFound
		}
		b := tx.Bucket(bucketProfiles)
		var p model.Profile
		if err := getJSON(b, string(id), &p); err != nil {
			return err
		}
		p.PasswordHash = hash
		return putJSON(b, p.ID, p)
	})
	if err != nil {
		return fmt.Errorf("profile %s: %w", email, err)
	}
	return nil
}

func (s *Store) PutSession(sess model.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSessions), sess.Token, sess)
	})
}

func (s *Store) GetSession(token string) (model.Session, error) {
	var sess model.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketSessions), token, &sess)
	})
	if err != nil {
		return model.Session{}, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).Delete([]byte(token))
	})
}

// PruneSessions deletes every session expired at now and returns the count.
func (s *Store) PruneSessions(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var doomed []string
		err := each(b, func(sess model.Session) error {
			if sess.Expired(now) {
				doomed = append(doomed, sess.Token)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, tok := range doomed {
			if err := b.Delete([]byte(tok)); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	return removed, err
}
