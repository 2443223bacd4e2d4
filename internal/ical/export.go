package ical

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	ics "github.com/arran4/golang-ical"
	log "github.com/sirupsen/logrus"
)

const productID = "-//calendaragent//EN"

// Export writes events as a VCALENDAR. Tombstoned events are exported as
// cancelled so subscribers drop them.
func Export(w io.Writer, name string, events []storage.Event, now time.Time) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		uid := e.ID
		if e.ExternalID != nil {
			uid = *e.ExternalID
		}
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now)
		ve.SetModifiedAt(e.LastSynced)
		ve.SetSummary(e.Title)
		if e.Description != "" {
			ve.SetDescription(e.Description)
		}
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if allDay(e) {
			ve.SetAllDayStartAt(e.Start)
			ve.SetAllDayEndAt(e.End)
		} else {
			ve.SetStartAt(e.Start)
			ve.SetEndAt(e.End)
		}
		if e.IsDeleted {
			ve.SetStatus(ics.ObjectStatusCancelled)
		} else {
			ve.SetStatus(ics.ObjectStatusConfirmed)
		}
		if e.IsRecurring {
			if err := addRules(ve, e); err != nil {
				log.WithField("event", e.ID).Warnf("recurrence not exported: %v", err)
			}
		}
	}
	return cal.SerializeTo(w)
}

func addRules(ve *ics.VEvent, e storage.Event) error {
	p, err := recurrence.Decode(storage.StringValue(e.RecurrencePattern))
	if err != nil {
		return err
	}
	lines, err := p.ProviderRules(e.Start)
	if err != nil {
		return err
	}
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("malformed rule %q", line)
		}
		switch name {
		case "RRULE":
			ve.AddRrule(value)
		case "EXDATE":
			ve.AddExdate(value)
		}
	}
	return nil
}

// allDay reports whether e spans whole local days.
func allDay(e storage.Event) bool {
	midnight := func(t time.Time) bool {
		return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	}
	return e.End.After(e.Start) && midnight(e.Start) && midnight(e.End)
}
