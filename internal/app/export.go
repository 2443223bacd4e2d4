package app

import (
	"context"
	"io"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/ical"
	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
)

// Occurrences lists the starts of event id within [from, to]. A single event
// yields its own start when it overlaps the range.
func (a *App) Occurrences(ctx context.Context, id string, from, to time.Time) ([]time.Time, error) {
	e, err := a.Storage.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.IsRecurring {
		if util.Overlaps(e.Start, e.End, from, to) {
			return []time.Time{e.Start}, nil
		}
		return []time.Time{}, nil
	}
	p, err := recurrence.Decode(storage.StringValue(e.RecurrencePattern))
	if err != nil {
		return nil, err
	}
	return recurrence.Expand(p, e.Start.In(a.config.Location), recurrence.ExpandOptions{
		From:     from,
		To:       to,
		Holidays: a.Holidays,
	})
}

// ExportICS writes the events of calendarID, tombstones included, as
// iCalendar. An empty calendarID exports all live events in the default
// sync window.
func (a *App) ExportICS(ctx context.Context, w io.Writer, calendarID string) error {
	var (
		events []storage.Event
		name   string
		err    error
	)
	if calendarID == "" {
		now := a.now()
		events, err = a.Storage.ListEvents(ctx, now.AddDate(0, -6, 0), now.AddDate(1, 0, 0))
	} else {
		events, err = a.Storage.ListByCalendar(ctx, calendarID, true)
		name = calendarID
		if c, cerr := a.Storage.GetCalendar(ctx, calendarID); cerr == nil && c.Summary != "" {
			name = c.Summary
		}
	}
	if err != nil {
		return err
	}
	return ical.Export(w, name, events, a.now())
}
