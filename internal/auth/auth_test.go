package auth

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gameweek/internal/model"
	"gameweek/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), store.DefaultFile))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, time.Hour)
	svc.cost = bcrypt.MinCost
	return svc, st
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Register("admin@example.com", "correct horse", true); err != nil {
		t.Fatalf("Register admin: %v", err)
	}
	if _, err := svc.Register("player@example.com", "battery staple", false); err != nil {
		t.Fatalf("Register player: %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"admin", "admin@example.com", "correct horse", nil},
		{"email case ignored", "ADMIN@example.com", "correct horse", nil},
		{"wrong password", "admin@example.com", "nope nope", ErrInvalidCredentials},
		{"unknown email", "ghost@example.com", "correct horse", ErrInvalidCredentials},
		{"not admin", "player@example.com", "battery staple", ErrNotAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, p, err := svc.SignIn(tt.email, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SignIn err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignIn: %v", err)
			}
			if sess.Token == "" || sess.ProfileID != p.ID {
				t.Errorf("bad session %+v for profile %s", sess, p.ID)
			}
		})
	}
}

func TestRegisterPasswordLength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"too short", "short", false},
		{"minimum", strings.Repeat("a", MinPasswordLength), true},
		{"maximum", strings.Repeat("b", MaxPasswordLength), true},
		{"over bcrypt limit", strings.Repeat("c", MaxPasswordLength+1), false},
	}

	svc, _ := newTestService(t)
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := fmt.Sprintf("user%d@example.com", i)
			_, err := svc.Register(email, tt.password, true)
			if tt.valid {
				if err != nil {
					t.Fatalf("Register: %v", err)
				}
				return
			}
			var verr *model.ValidationError
			if !errors.As(err, &verr) || verr.Field != "password" {
				t.Errorf("Register(%d bytes) err = %v, want password validation error", len(tt.password), err)
			}
		})
	}

	if err := svc.ChangePassword("user1@example.com", strings.Repeat("d", 100)); err == nil {
		t.Error("ChangePassword accepted a password over the bcrypt limit")
	}
}

func TestAuthenticate(t *testing.T) {
	svc, st := newTestService(t)
	svc.Register("admin@example.com", "correct horse", true)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sess, _, err := svc.SignIn("admin@example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	if _, err := svc.Authenticate(sess.Token); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := svc.Authenticate(""); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("empty token err = %v", err)
	}
	if _, err := svc.Authenticate("bogus"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("unknown token err = %v", err)
	}

	st.SetAdmin("admin@example.com", false)
	if _, err := svc.Authenticate(sess.Token); !errors.Is(err, ErrNotAdmin) {
		t.Errorf("revoked admin err = %v, want ErrNotAdmin", err)
	}
	st.SetAdmin("admin@example.com", true)

	now = now.Add(2 * time.Hour)
	if _, err := svc.Authenticate(sess.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("expired session err = %v", err)
	}
	if _, err := st.GetSession(sess.Token); !errors.Is(err, store.ErrNotFound) {
		t.Error("expired session should be deleted on use")
	}
}

func TestSignOutAndPrune(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Register("admin@example.com", "correct horse", true)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	a, _, _ := svc.SignIn("admin@example.com", "correct horse")
	svc.SignIn("admin@example.com", "correct horse")

	if err := svc.SignOut(a.Token); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if _, err := svc.Authenticate(a.Token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("signed-out token err = %v", err)
	}

	now = now.Add(3 * time.Hour)
	n, err := svc.Prune()
	if err != nil || n != 1 {
		t.Errorf("Prune = %d, %v; want 1", n, err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Register("admin@example.com", "correct horse", true)

	if err := svc.ChangePassword("admin@example.com", "new password!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Verify("admin@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Error("old password should no longer work")
	}
	if _, err := svc.Verify("admin@example.com", "new password!"); err != nil {
		t.Errorf("new password: %v", err)
	}
}
