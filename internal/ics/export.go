// Package ics converts between server week schedules and iCalendar feeds:
// exporting a server's upcoming events, and importing events from a
// subscribed feed.
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"gameweek/internal/model"
	"gameweek/internal/schedule"
)

const productID = "-//gameweek//event weeks//EN"

// Export writes a VCALENDAR with one all-day VEVENT per occurrence.
func Export(w io.Writer, server model.Server, occs []schedule.Occurrence, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(server.Name)
	cal.SetXWRCalDesc(fmt.Sprintf("Event weeks for %s", server.Name))
	cal.SetRefreshInterval("PT1H")
	cal.SetXPublishedTTL("PT1H")

	for _, o := range occs {
		uid := fmt.Sprintf("%s-%s@gameweek", o.Event.ID, o.Span.Start.Format("20060102"))
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetSummary(o.Event.Name)
		if o.Event.Reward != "" {
			ve.SetDescription(o.Event.Reward)
			ve.SetProperty(PropertyReward, o.Event.Reward)
		}
		ve.SetAllDayStartAt(o.Span.Start)
		// DTEND is exclusive for all-day events.
		ve.SetAllDayEndAt(schedule.AddDays(o.Span.End, 1))
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("writing calendar: %w", err)
	}
	return nil
}
