package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"gameweek/internal/auth"
	appLog "gameweek/internal/log"
	"gameweek/internal/model"
)

// SessionCookie carries the session token issued at login.
const SessionCookie = "gameweek_session"

type ctxKey int

const profileKey ctxKey = iota

// profileDTO never exposes the password hash.
type profileDTO struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

func toProfileDTO(p model.Profile) profileDTO {
	return profileDTO{ID: p.ID, Email: p.Email, IsAdmin: p.IsAdmin}
}

func profileFrom(ctx context.Context) (model.Profile, bool) {
	p, ok := ctx.Value(profileKey).(model.Profile)
	return p, ok
}

// requestToken returns the session token from the bearer header or the
// session cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// requireAdmin admits requests carrying a valid admin session, or HTTP
// Basic credentials of an admin profile.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			p   model.Profile
			err error
		)
		if email, password, ok := r.BasicAuth(); ok {
			p, err = s.auth.Verify(email, password)
			if err == nil && !p.IsAdmin {
				err = auth.ErrNotAdmin
			}
		} else {
			p, err = s.auth.Authenticate(requestToken(r))
		}
		if err != nil {
			appLog.Debug("admin access denied", "path", r.URL.Path, "reason", err.Error())
			if _, _, basic := r.BasicAuth(); basic {
				w.Header().Set("WWW-Authenticate", `Basic realm="gameweek", charset="UTF-8"`)
			}
			writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), profileKey, p)))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Profile   profileDTO `json:"profile"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sess, p, err := s.auth.SignIn(req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: sess.Token, ExpiresAt: sess.ExpiresAt, Profile: toProfileDTO(p)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(requestToken(r)); err != nil {
		writeErr(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := profileFrom(r.Context())
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}
