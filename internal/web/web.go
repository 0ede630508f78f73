package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gameweek/internal/auth"
	"gameweek/internal/config"
	"gameweek/internal/jobs"
	appLog "gameweek/internal/log"
	"gameweek/internal/model"
	"gameweek/internal/schedule"
	"gameweek/internal/store"
)

// Server serves the public week viewer and the admin API.
type Server struct {
	cfg      *config.Config
	loc      *time.Location
	store    *store.Store
	auth     *auth.Service
	importer *jobs.Importer
	router   chi.Router

	now func() time.Time

	// Week views are cached briefly; every write bumps the generation so
	// stale entries are never served after a change.
	weekMu     sync.RWMutex
	weekCache  map[weekKey]weekEntry
	generation uint64
}

// embeddedStatic holds the viewer page.
//
//go:embed all:static
var embeddedStatic embed.FS

// Deps are the collaborators a Server needs. Importer may be nil, which
// disables importing configured feeds over the API.
type Deps struct {
	Config   *config.Config
	Location *time.Location
	Store    *store.Store
	Auth     *auth.Service
	Importer *jobs.Importer
}

func NewServer(d Deps) *Server {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		cfg:       d.Config,
		loc:       loc,
		store:     d.Store,
		auth:      d.Auth,
		importer:  d.Importer,
		now:       time.Now,
		weekCache: make(map[weekKey]weekEntry),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/servers", s.handleListServers)
		r.Get("/servers/{id}", s.handleGetServer)
		r.Get("/events", s.handleListEvents)
		r.Get("/calendar/{id}", s.handleCalendar)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/auth/me", s.handleMe)
			r.Post("/servers", s.handleCreateServer)
			r.Put("/servers/{id}", s.handleUpdateServer)
			r.Delete("/servers/{id}", s.handleDeleteServer)
			r.Post("/events", s.handleCreateEvent)
			r.Delete("/events/{id}", s.handleDeleteEvent)
			r.Post("/events/import", s.handleImport)
		})

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotFound, "no such endpoint")
		})
	})

	r.Get("/calendar/{id}.ics", s.handleExport)
	r.Handle("/*", s.staticFileServer())
	return r
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartServer(ctx context.Context, listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "viewer not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

func (s *Server) scheduleOptions() schedule.Options {
	maxRows := schedule.DefaultMaxRows
	if s.cfg != nil && s.cfg.MaxRows > 0 {
		maxRows = s.cfg.MaxRows
	}
	return schedule.Options{Now: s.now(), Location: s.loc, MaxRows: maxRows}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start).String(),
		)
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &model.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps domain errors onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrNoStartDate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrNotAdmin):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
