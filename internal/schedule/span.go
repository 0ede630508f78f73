// Package schedule holds the calendar arithmetic behind the week view:
// server-relative week numbering, event occurrence resolution and the
// greedy row layout used to draw overlapping events.
package schedule

import "time"

// DateOf truncates t to its calendar date, expressed as midnight UTC.
// The year/month/day are taken from t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now as seen in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now.In(loc))
}

// DaysBetween returns b - a in whole calendar days.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// AddDays shifts a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return DateOf(d).AddDate(0, 0, n)
}

// InRange reports whether day lies within [start, end], compared by date.
func InRange(day, start, end time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(start)) && !d.After(DateOf(end))
}

// Span is an inclusive range of calendar dates.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewSpan(start time.Time, days int) Span {
	if days < 1 {
		days = 1
	}
	s := DateOf(start)
	return Span{Start: s, End: AddDays(s, days-1)}
}

// Days is the number of calendar days covered.
func (s Span) Days() int {
	return DaysBetween(s.Start, s.End) + 1
}

func (s Span) Contains(day time.Time) bool {
	return InRange(day, s.Start, s.End)
}

// Overlaps reports whether the two spans share at least one day.
func (s Span) Overlaps(o Span) bool {
	return !s.End.Before(o.Start) && !o.End.Before(s.Start)
}

// Clip returns the part of s inside window, and false when they are disjoint.
func (s Span) Clip(window Span) (Span, bool) {
	if !s.Overlaps(window) {
		return Span{}, false
	}
	out := s
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	return out, true
}
