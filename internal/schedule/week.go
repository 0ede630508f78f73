package schedule

import (
	"errors"
	"time"

	"gameweek/internal/model"
)

// ErrNoStartDate is returned when a week is requested for a server whose
// start date has not been set.
var ErrNoStartDate = errors.New("server has no start date")

// WeekIndex returns the number of whole weeks between the server start date
// and now's date in loc. Dates before the start count as week index 0.
func WeekIndex(start, now time.Time, loc *time.Location) int {
	d := DaysBetween(start, Today(now, loc))
	if d < 0 {
		return 0
	}
	return d / model.DaysPerWeek
}

// WeekStart returns the first date of the week with the given 0-based index.
func WeekStart(start time.Time, index int) time.Time {
	return AddDays(start, model.DaysPerWeek*index)
}

// CurrentWeekStart returns the first date of the server week containing now.
func CurrentWeekStart(start, now time.Time, loc *time.Location) time.Time {
	return WeekStart(start, WeekIndex(start, now, loc))
}

// WeekDates returns the seven consecutive dates beginning at weekStart.
func WeekDates(weekStart time.Time) []time.Time {
	out := make([]time.Time, model.DaysPerWeek)
	for i := range out {
		out[i] = AddDays(weekStart, i)
	}
	return out
}

// Day is one column of the week grid with every event active on it.
type Day struct {
	Date   time.Time     `json:"date"`
	Events []model.Event `json:"events"`
}

// Week is a laid-out server week.
type Week struct {
	ServerID string `json:"server_id"`
	// Number is 1-based: week 1 starts on the server start date.
	Number  int  `json:"number"`
	Current bool `json:"current"`

	// ISO week of the first day, for cross-referencing real calendars.
	ISOYear int `json:"iso_year"`
	ISOWeek int `json:"iso_week"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Days     []Day         `json:"days"`
	Rows     [][]Placement `json:"rows"`
	Overflow []Placement   `json:"overflow"`
}

// Options control how a week is computed.
type Options struct {
	Now      time.Time
	Location *time.Location
	MaxRows  int
}

func (o Options) normalized() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	return o
}

// CurrentIndex is WeekIndex for the options' clock and location.
func CurrentIndex(server model.Server, opts Options) int {
	opts = opts.normalized()
	return WeekIndex(server.StartDate, opts.Now, opts.Location)
}

// BuildWeek computes the week with 0-based index for server: the day grid
// and the events packed into at most opts.MaxRows rows.
func BuildWeek(server model.Server, events []model.Event, index int, opts Options) (Week, error) {
	if !server.HasStart() {
		return Week{}, ErrNoStartDate
	}
	opts = opts.normalized()
	if index < 0 {
		index = 0
	}

	start := WeekStart(server.StartDate, index)
	window := NewSpan(start, model.DaysPerWeek)
	isoYear, isoWeek := start.ISOWeek()

	w := Week{
		ServerID: server.ID,
		Number:   index + 1,
		Current:  index == WeekIndex(server.StartDate, opts.Now, opts.Location),
		ISOYear:  isoYear,
		ISOWeek:  isoWeek,
		Start:    window.Start,
		End:      window.End,
		Days:     make([]Day, 0, model.DaysPerWeek),
		Rows:     [][]Placement{},
		Overflow: []Placement{},
	}

	occs := Collect(events, server, window)

	for _, date := range WeekDates(start) {
		d := Day{Date: date, Events: []model.Event{}}
		for _, o := range occs {
			if o.Span.Contains(date) {
				d.Events = append(d.Events, o.Event)
			}
		}
		w.Days = append(w.Days, d)
	}

	placements := make([]Placement, 0, len(occs))
	for _, o := range occs {
		clipped, ok := o.Span.Clip(window)
		if !ok {
			continue
		}
		placements = append(placements, Placement{
			Event:           o.Event,
			Span:            o.Span,
			FirstCol:        DaysBetween(start, clipped.Start),
			LastCol:         DaysBetween(start, clipped.End),
			ContinuesBefore: o.Span.Start.Before(window.Start),
			ContinuesAfter:  o.Span.End.After(window.End),
		})
	}

	rows, overflow := Pack(placements, opts.MaxRows)
	if rows != nil {
		w.Rows = rows
	}
	if overflow != nil {
		w.Overflow = overflow
	}
	return w, nil
}

// Upcoming lists occurrences from the current server week through the
// following weeks-1 weeks. It is used for calendar exports.
func Upcoming(server model.Server, events []model.Event, weeks int, opts Options) ([]Occurrence, error) {
	if !server.HasStart() {
		return nil, ErrNoStartDate
	}
	opts = opts.normalized()
	if weeks <= 0 {
		weeks = 1
	}
	start := CurrentWeekStart(server.StartDate, opts.Now, opts.Location)
	window := NewSpan(start, model.DaysPerWeek*weeks)
	return Collect(events, server, window), nil
}
