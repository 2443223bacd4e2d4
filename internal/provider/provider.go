package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found at provider")
	ErrEventNotFound    = errors.New("event not found at provider")
	ErrNotAuthorized    = errors.New("provider client is not authorized")
)

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// EventTime is a provider start/end: either a precise DateTime (RFC3339,
// optionally zoned by TimeZone) or an all-day Date (YYYY-MM-DD).
type EventTime struct {
	DateTime string
	Date     string
	TimeZone string
}

type Attendee struct {
	Name  string
	Email string
}

type Event struct {
	ExternalID  string
	Title       string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
	// Recurrence holds RRULE/EXDATE lines of a series master.
	Recurrence []string
	Status     string
	Attendees  []Attendee
}

type CalendarInfo struct {
	ID              string
	Summary         string
	Description     string
	TimeZone        string
	BackgroundColor string
	ForegroundColor string
	AccessRole      string
	Primary         bool
}

type Page struct {
	Events        []Event
	NextPageToken string
	NextSyncToken string
}

// Client is the remote calendar provider.
type Client interface {
	GetCalendar(ctx context.Context, calendarID string) (CalendarInfo, error)
	AddCalendar(ctx context.Context, calendarID string) (CalendarInfo, error)
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
	ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (Page, error)
	CreateEvent(ctx context.Context, calendarID string, e Event) (Event, error)
	UpdateEvent(ctx context.Context, calendarID string, e Event) (Event, error)
	DeleteEvent(ctx context.Context, calendarID, externalID string) error
}

// ListAll follows page tokens until the window is exhausted. The sync token
// of the last page is returned.
func ListAll(ctx context.Context, c Client, calendarID, timeMin, timeMax string) ([]Event, string, error) {
	var (
		events    []Event
		pageToken string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		page, err := c.ListEvents(ctx, calendarID, timeMin, timeMax, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list events of %s: %w", calendarID, err)
		}
		events = append(events, page.Events...)
		if page.NextPageToken == "" {
			return events, page.NextSyncToken, nil
		}
		pageToken = page.NextPageToken
	}
}
