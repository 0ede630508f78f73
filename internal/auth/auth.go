// Package auth implements password sign-in for admin profiles and the
// session tokens issued afterwards.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	appLog "gameweek/internal/log"
	"gameweek/internal/model"
	"gameweek/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAdmin           = errors.New("profile does not have admin rights")
	ErrSessionExpired     = errors.New("session expired or unknown")
)

const DefaultSessionTTL = 24 * time.Hour

// MinPasswordLength applies to newly set passwords only.
const MinPasswordLength = 8

// MaxPasswordLength is the bcrypt input limit, in bytes.
const MaxPasswordLength = 72

// Repository is the subset of the store used for authentication.
type Repository interface {
	CreateProfile(model.Profile) (model.Profile, error)
	GetProfile(id string) (model.Profile, error)
	GetProfileByEmail(email string) (model.Profile, error)
	SetPassword(email, hash string) error
	PutSession(model.Session) error
	GetSession(token string) (model.Session, error)
	DeleteSession(token string) error
	PruneSessions(now time.Time) (int, error)
}

type Service struct {
	repo Repository
	ttl  time.Duration
	cost int

	now      func() time.Time
	newToken func() string
}

func NewService(repo Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		repo:     repo,
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", &model.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if len(password) > MaxPasswordLength {
		return "", &model.ValidationError{Field: "password", Reason: fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)}
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// Register creates a profile with a bcrypt-hashed password.
func (s *Service) Register(email, password string, admin bool) (model.Profile, error) {
	h, err := s.hash(password)
	if err != nil {
		return model.Profile{}, err
	}
	return s.repo.CreateProfile(model.Profile{Email: email, PasswordHash: h, IsAdmin: admin})
}

func (s *Service) ChangePassword(email, password string) error {
	h, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(email, h)
}

// Verify checks the credentials and returns the matching profile,
// regardless of its admin flag.
func (s *Service) Verify(email, password string) (model.Profile, error) {
	p, err := s.repo.GetProfileByEmail(email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Profile{}, ErrInvalidCredentials
		}
		return model.Profile{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return model.Profile{}, ErrInvalidCredentials
	}
	return p, nil
}

// SignIn verifies the credentials, requires the admin flag and issues a
// session token.
func (s *Service) SignIn(email, password string) (model.Session, model.Profile, error) {
	p, err := s.Verify(email, password)
	if err != nil {
		appLog.Info("auth: sign-in rejected", "email", store.NormalizeEmail(email))
		return model.Session{}, model.Profile{}, err
	}
	if !p.IsAdmin {
		appLog.Info("auth: sign-in without admin flag", "profile", p.ID)
		return model.Session{}, model.Profile{}, ErrNotAdmin
	}

	sess := model.Session{
		Token:     s.newToken(),
		ProfileID: p.ID,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.repo.PutSession(sess); err != nil {
		return model.Session{}, model.Profile{}, fmt.Errorf("storing session: %w", err)
	}
	appLog.Info("auth: admin signed in", "profile", p.ID)
	return sess, p, nil
}

// Authenticate resolves a session token into its admin profile.
func (s *Service) Authenticate(token string) (model.Profile, error) {
	if token == "" {
		return model.Profile{}, ErrSessionExpired
	}
	sess, err := s.repo.GetSession(token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Profile{}, ErrSessionExpired
		}
		return model.Profile{}, err
	}
	if sess.Expired(s.now()) {
		_ = s.repo.DeleteSession(token)
		return model.Profile{}, ErrSessionExpired
	}
	p, err := s.repo.GetProfile(sess.ProfileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Profile{}, ErrSessionExpired
		}
		return model.Profile{}, err
	}
	// Revoking the flag takes effect on existing sessions too.
	if !p.IsAdmin {
		return model.Profile{}, ErrNotAdmin
	}
	return p, nil
}

func (s *Service) SignOut(token string) error {
	if token == "" {
		return nil
	}
	return s.repo.DeleteSession(token)
}

func (s *Service) Prune() (int, error) {
	return s.repo.PruneSessions(s.now())
}
