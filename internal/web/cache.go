package web

import (
	"time"

	"gameweek/internal/schedule"
)

const weekCacheTTL = 30 * time.Second

// weekKey includes the current index so a cached view never outlives a
// week rollover with a stale Current flag.
type weekKey struct {
	serverID string
	index    int
	current  int
}

type weekEntry struct {
	resp       calendarResponse
	generation uint64
	updatedAt  time.Time
}

func (s *Server) cachedWeek(k weekKey) (calendarResponse, bool) {
	s.weekMu.RLock()
	defer s.weekMu.RUnlock()
	e, ok := s.weekCache[k]
	if !ok || e.generation != s.generation || s.now().Sub(e.updatedAt) >= weekCacheTTL {
		return calendarResponse{}, false
	}
	return e.resp, true
}

// storeWeek caches resp unless a write happened since gen was read.
func (s *Server) storeWeek(k weekKey, gen uint64, resp calendarResponse) {
	s.weekMu.Lock()
	defer s.weekMu.Unlock()
	if gen != s.generation {
		return
	}
	s.weekCache[k] = weekEntry{resp: resp, generation: gen, updatedAt: s.now()}
}

func (s *Server) cacheGeneration() uint64 {
	s.weekMu.RLock()
	defer s.weekMu.RUnlock()
	return s.generation
}

// Invalidate drops every cached week view. It is called after each write
// and after feed imports.
func (s *Server) Invalidate() {
	s.weekMu.Lock()
	s.generation++
	s.weekCache = make(map[weekKey]weekEntry)
	s.weekMu.Unlock()
}

// calendarResponse is the JSON shape of GET /api/calendar/{id}.
type calendarResponse struct {
	ServerID      string        `json:"server_id"`
	ServerName    string        `json:"server_name"`
	StartDate     time.Time     `json:"start_date"`
	CurrentNumber int           `json:"current_number"`
	Timezone      string        `json:"timezone"`
	Week          schedule.Week `json:"week"`
}
