package schedule

import (
	"sort"

	"github.com/teambition/rrule-go"

	appLog "gameweek/internal/log"
	"gameweek/internal/model"
)

// Occurrence is one concrete run of an event on a server's calendar.
type Occurrence struct {
	Event model.Event
	Span  Span
}

// FirstSpan resolves where the first run of ev falls for server.
// Relative events need a server start date; ok is false without one.
func FirstSpan(ev model.Event, server model.Server) (Span, bool) {
	days := ev.Days
	if days < 1 {
		days = 1
	}
	if ev.IsAbsolute() {
		end := ev.End
		if end.IsZero() {
			end = ev.Start
		}
		return Span{Start: DateOf(ev.Start), End: DateOf(end)}, true
	}
	if !server.HasStart() || ev.Week < 1 {
		return Span{}, false
	}
	first := AddDays(server.StartDate, model.DaysPerWeek*(ev.Week-1)+ev.Day)
	return NewSpan(first, days), true
}

// Occurrences lists every run of ev for server that touches window.
// Repeating events are expanded with a WEEKLY rrule whose interval is
// ev.RepeatWeeks, anchored on the first run.
func Occurrences(ev model.Event, server model.Server, window Span) []Span {
	if !ev.AppliesTo(server.ID) {
		return nil
	}
	base, ok := FirstSpan(ev, server)
	if !ok {
		return nil
	}
	if ev.RepeatWeeks <= 0 {
		if base.Overlaps(window) {
			return []Span{base}
		}
		return nil
	}

	length := base.Days()
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     rrule.WEEKLY,
		Interval: ev.RepeatWeeks,
		Dtstart:  base.Start,
	})
	if err != nil {
		appLog.Error("schedule: failed to build repeat rule", err, "event", ev.ID, "repeat_weeks", ev.RepeatWeeks)
		if base.Overlaps(window) {
			return []Span{base}
		}
		return nil
	}

	// A run that starts before the window can still reach into it.
	after := AddDays(window.Start, -(length - 1))
	starts := r.Between(after, window.End, true)

	out := make([]Span, 0, len(starts))
	for _, st := range starts {
		sp := NewSpan(st, length)
		if sp.Overlaps(window) {
			out = append(out, sp)
		}
	}
	return out
}

// Collect resolves all events for server within window, ordered by start
// date and then event name.
func Collect(events []model.Event, server model.Server, window Span) []Occurrence {
	out := make([]Occurrence, 0)
	for _, ev := range events {
		for _, sp := range Occurrences(ev, server, window) {
			out = append(out, Occurrence{Event: ev, Span: sp})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Span.Start.Equal(out[j].Span.Start) {
			return out[i].Span.Start.Before(out[j].Span.Start)
		}
		return out[i].Event.Name < out[j].Event.Name
	})
	return out
}
