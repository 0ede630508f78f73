package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "gameweek/internal/log"
	"gameweek/internal/model"
	"gameweek/internal/schedule"
)

// PropertyReward carries an event's reward text in exported and imported
// calendars. DESCRIPTION is used as a fallback on import.
const PropertyReward = ical.ComponentProperty("X-REWARD")

// Parse reads an ICS payload into date-pinned events owned by source.
// Each VEVENT becomes one event; a WEEKLY RRULE becomes RepeatWeeks.
// Broken VEVENTs are logged and skipped.
func Parse(source string, body []byte) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if !isCalendar(body) {
		return nil, errors.New("not an iCalendar document")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", source)
		return nil, err
	}

	out := make([]model.Event, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(source, ve)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "source", source, "reason", perr.Error())
			continue
		}
		out = append(out, ev)
	}

	appLog.Info("ics parse completed", "source", source, "event_count", len(out))
	return out, nil
}

func isCalendar(body []byte) bool {
	return bytes.Contains(body, []byte("BEGIN:VCALENDAR"))
}

func parseVEvent(source string, ve *ical.VEvent) (model.Event, error) {
	ev := model.Event{Source: source, Days: 1}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.SourceUID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Name = unescape(p.Value)
	}
	if ev.Name == "" {
		return ev, errors.New("missing SUMMARY")
	}
	if p := ve.GetProperty(PropertyReward); p != nil {
		ev.Reward = unescape(p.Value)
	} else if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Reward = unescape(p.Value)
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	allDay := isDateValue(dtStart)

	start, err := ve.GetStartAt()
	if err != nil {
		if start, err = parseICSTime(dtStart.Value); err != nil {
			return ev, err
		}
	}
	end := start
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if e, err := ve.GetEndAt(); err == nil {
			end = e
		} else if e, err := parseICSTime(dtEnd.Value); err == nil {
			end = e
		}
	}

	ev.Start = schedule.DateOf(start)
	switch {
	case !end.After(start):
		ev.End = ev.Start
	case allDay:
		// All-day DTEND is exclusive.
		ev.End = schedule.AddDays(schedule.DateOf(end), -1)
	default:
		ev.End = schedule.DateOf(end.Add(-time.Nanosecond))
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}
	ev.Days = schedule.DaysBetween(ev.Start, ev.End) + 1

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RepeatWeeks = repeatWeeks(p.Value)
	}
	return ev, nil
}

// repeatWeeks maps a WEEKLY RRULE to its interval. Other frequencies
// cannot be expressed as a week cadence and are dropped.
func repeatWeeks(raw string) int {
	opt, err := rrule.StrToROption(raw)
	if err != nil {
		appLog.Warn("ics: unparsable RRULE ignored", "rrule", raw)
		return 0
	}
	if opt.Freq != rrule.WEEKLY {
		appLog.Warn("ics: non-weekly RRULE ignored", "rrule", raw)
		return 0
	}
	if opt.Interval < 1 {
		return 1
	}
	return opt.Interval
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseICSTime handles basic DATE / DATE-TIME / UTC values when the library
// helpers reject a property.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	return time.ParseInLocation("20060102", v, time.UTC)
}

var unescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)

func unescape(s string) string {
	return strings.TrimSpace(unescaper.Replace(s))
}
