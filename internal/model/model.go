package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// DaysPerWeek is the length of one in-game event week.
const DaysPerWeek = 7

// Server is a game server. Event weeks are counted from its StartDate.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// StartDate is a calendar date (midnight UTC). Zero means "not set yet".
	StartDate time.Time `json:"start_date"`

	CreatedAt time.Time `json:"created_at"`
}

// HasStart reports whether the server start date has been configured.
func (s Server) HasStart() bool {
	return !s.StartDate.IsZero()
}

// Event is a recurring in-week event.
//
// Relative events are placed by Week/Day against each server's start date.
// Events with absolute Start/End dates (typically imported from an ICS feed)
// ignore Week/Day and sit on the same dates for every server.
type Event struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Reward string `json:"reward"`

	// Week is 1-based: week 1 begins on the server start date.
	Week int `json:"week"`
	// Day is the offset in days into Week, 0..6.
	Day int `json:"day"`
	// Days is the number of calendar days the event lasts.
	Days int `json:"days"`
	// RepeatWeeks re-runs the event every N weeks after its first week.
	// Zero means the event happens once.
	RepeatWeeks int `json:"repeat_weeks"`

	// ServerID limits the event to a single server; empty means all servers.
	ServerID string `json:"server_id,omitempty"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Source and SourceUID identify rows owned by a feed import.
	Source    string `json:"source,omitempty"`
	SourceUID string `json:"source_uid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsAbsolute reports whether the event is pinned to calendar dates.
func (e Event) IsAbsolute() bool {
	return !e.Start.IsZero()
}

// AppliesTo reports whether the event is shown for the given server.
func (e Event) AppliesTo(serverID string) bool {
	return e.ServerID == "" || e.ServerID == serverID
}

// Normalize trims text fields and fills defaults.
func (e *Event) Normalize() {
	e.Name = strings.TrimSpace(e.Name)
	e.Reward = strings.TrimSpace(e.Reward)
	if e.Days <= 0 {
		e.Days = 1
	}
	if e.IsAbsolute() && e.End.IsZero() {
		e.End = e.Start
	}
}

// Profile is a login identity. Only profiles with IsAdmin may change data.
type Profile struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is an issued login token.
type Session struct {
	Token     string    `json:"token"`
	ProfileID string    `json:"profile_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ValidationError reports a rejected field value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (s Server) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "must not be empty")
	}
	return nil
}

func (e Event) Validate() error {
	if e.Name == "" {
		return invalid("name", "must not be empty")
	}
	if e.IsAbsolute() {
		if e.End.Before(e.Start) {
			return invalid("end", "before start")
		}
	} else if e.Week < 1 {
		return invalid("week", "must be 1 or greater")
	}
	if e.Day < 0 || e.Day >= DaysPerWeek {
		return invalid("day", "must be between 0 and 6")
	}
	if e.Days < 1 {
		return invalid("days", "must be 1 or greater")
	}
	if e.RepeatWeeks < 0 {
		return invalid("repeat_weeks", "must not be negative")
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date into midnight UTC. An empty string
// yields the zero time, meaning "not set".
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	// Accept full timestamps as well; only the date part is kept.
	if len(s) > len(DateLayout) && s[len(DateLayout)] == 'T' {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("date", fmt.Sprintf("%q is not YYYY-MM-DD", s))
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
