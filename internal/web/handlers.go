package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"gameweek/internal/ics"
	appLog "gameweek/internal/log"
	"gameweek/internal/model"
	"gameweek/internal/schedule"
	"gameweek/internal/store"
)

func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.store.ListServers()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, servers)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.store.GetServer(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

type serverRequest struct {
	Name      *string `json:"name"`
	StartDate *string `json:"start_date"`
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	srv := model.Server{}
	if req.Name != nil {
		srv.Name = *req.Name
	}
	if req.StartDate != nil {
		d, err := model.ParseDate(*req.StartDate)
		if err != nil {
			writeErr(w, err)
			return
		}
		srv.StartDate = d
	}
	created, err := s.store.CreateServer(srv)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Invalidate()
	appLog.Info("server created", "id", created.ID, "name", created.Name)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateServer renames a server or sets its start date. An empty
// start_date clears it.
func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	var req serverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	upd := store.ServerUpdate{Name: req.Name}
	if req.StartDate != nil {
		d, err := model.ParseDate(*req.StartDate)
		if err != nil {
			writeErr(w, err)
			return
		}
		upd.StartDate = &d
	}
	srv, err := s.store.UpdateServer(chi.URLParam(r, "id"), upd)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Invalidate()
	appLog.Info("server updated", "id", srv.ID, "start_date", model.FormatDate(srv.StartDate))
	writeJSON(w, http.StatusOK, srv)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteServer(id); err != nil {
		writeErr(w, err)
		return
	}
	s.Invalidate()
	appLog.Info("server deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents lists all events, or with ?server= the events shown on
// that server.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []model.Event
		err    error
	)
	if id := r.URL.Query().Get("server"); id != "" {
		if _, err = s.store.GetServer(id); err != nil {
			writeErr(w, err)
			return
		}
		events, err = s.store.ListEventsForServer(id)
	} else {
		events, err = s.store.ListEvents()
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type eventRequest struct {
	Name        string `json:"name"`
	Reward      string `json:"reward"`
	Week        int    `json:"week"`
	Day         int    `json:"day"`
	Days        int    `json:"days"`
	RepeatWeeks int    `json:"repeat_weeks"`
	ServerID    string `json:"server_id"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func (req eventRequest) toEvent() (model.Event, error) {
	ev := model.Event{
		Name:        req.Name,
		Reward:      req.Reward,
		Week:        req.Week,
		Day:         req.Day,
		Days:        req.Days,
		RepeatWeeks: req.RepeatWeeks,
		ServerID:    strings.TrimSpace(req.ServerID),
	}
	var err error
	if ev.Start, err = model.ParseDate(req.Start); err != nil {
		return ev, err
	}
	if ev.End, err = model.ParseDate(req.End); err != nil {
		return ev, err
	}
	if ev.IsAbsolute() && req.Days == 0 && !ev.End.IsZero() {
		ev.Days = schedule.DaysBetween(ev.Start, ev.End) + 1
	}
	return ev, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeErr(w, err)
		return
	}
	created, err := s.store.CreateEvent(ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.Invalidate()
	appLog.Info("event created", "id", created.ID, "name", created.Name, "week", created.Week)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteEvent(id); err != nil {
		writeErr(w, err)
		return
	}
	s.Invalidate()
	appLog.Info("event deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleImport either re-imports a configured feed (?feed=ID) or applies an
// uploaded ICS body as source ?source= (default "upload"), optionally bound
// to ?server=.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if feedID := q.Get("feed"); feedID != "" {
		if s.importer == nil {
			writeErr(w, fmt.Errorf("feed %s: %w", feedID, store.ErrNotFound))
			return
		}
		for _, f := range s.importer.Feeds() {
			if f.ID != feedID {
				continue
			}
			res, err := s.importer.ImportFeed(r.Context(), f)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeErr(w, fmt.Errorf("feed %s: %w", feedID, store.ErrNotFound))
		return
	}

	if s.importer == nil {
		writeError(w, http.StatusServiceUnavailable, "import not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, ics.MaxFeedSize))
	if err != nil {
		writeErr(w, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	source := q.Get("source")
	if source == "" {
		source = "upload"
	}
	events, err := ics.Parse(source, bytes.TrimSpace(body))
	if err != nil {
		writeErr(w, &model.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	res, err := s.importer.Apply(source, q.Get("server"), events)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCalendar returns a laid-out server week. Without parameters it is
// the current week; ?week=N selects week number N (1-based) and ?offset=K
// moves K weeks from the current one.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	srv, err := s.store.GetServer(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !srv.HasStart() {
		writeErr(w, schedule.ErrNoStartDate)
		return
	}

	opts := s.scheduleOptions()
	current := schedule.CurrentIndex(srv, opts)
	index := current
	q := r.URL.Query()
	if n := parseIntDefault(q.Get("week"), 0); n > 0 {
		index = n - 1
	} else if k := parseIntDefault(q.Get("offset"), 0); k != 0 {
		index = current + k
	}
	if index < 0 {
		index = 0
	}

	key := weekKey{serverID: srv.ID, index: index, current: current}
	if resp, ok := s.cachedWeek(key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	gen := s.cacheGeneration()

	events, err := s.store.ListEventsForServer(srv.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	week, err := schedule.BuildWeek(srv, events, index, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp := calendarResponse{
		ServerID:      srv.ID,
		ServerName:    srv.Name,
		StartDate:     srv.StartDate,
		CurrentNumber: current + 1,
		Timezone:      s.loc.String(),
		Week:          week,
	}
	s.storeWeek(key, gen, resp)
	writeJSON(w, http.StatusOK, resp)
}

// handleExport serves the server's upcoming weeks as an ICS feed.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	srv, err := s.store.GetServer(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	events, err := s.store.ListEventsForServer(srv.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	weeks := 0
	if s.cfg != nil {
		weeks = s.cfg.ExportWeeks
	}
	occs, err := schedule.Upcoming(srv, events, weeks, s.scheduleOptions())
	if err != nil {
		writeErr(w, err)
		return
	}

	var buf bytes.Buffer
	if err := ics.Export(&buf, srv, occs, s.now()); err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.ics"`, srv.ID))
	_, _ = w.Write(buf.Bytes())
}
