package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateEventID     = errors.New("event with same ID exists")
	ErrDuplicateExternalID  = errors.New("event with same external ID exists")
	ErrNotFoundEvent        = errors.New("event not found")
	ErrNotFoundCalendar     = errors.New("calendar not found")
	ErrNotFoundSyncState    = errors.New("sync state not found")
	ErrIncorrectStartDate   = errors.New("date should be a first day of requested period")
	ErrIncorrectEventTime   = errors.New("incorrect event time")
	ErrEmptyTitle           = errors.New("event title is empty")
	ErrInconsistentPattern  = errors.New("recurring flag does not match recurrence pattern")
	ErrEmptyParticipantMail = errors.New("participant email is empty")
)

// Repository is the persistence contract for events, calendars,
// participants and sync cursors.
type Repository interface {
	FindByExternalID(ctx context.Context, externalID string) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	ListByCalendar(ctx context.Context, calendarID string, includeDeleted bool) ([]Event, error)
	// ListEvents returns live events starting in [from, to) ordered by start.
	ListEvents(ctx context.Context, from, to time.Time) ([]Event, error)
	InsertEvent(ctx context.Context, e *Event) error
	UpdateEvent(ctx context.Context, e Event) error
	SoftDeleteEvent(ctx context.Context, id string, at time.Time) error

	UpsertCalendar(ctx context.Context, c Calendar) error
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	ListCalendars(ctx context.Context) ([]Calendar, error)
	// DeleteCalendar removes the calendar and tombstones its events.
	DeleteCalendar(ctx context.Context, id string, at time.Time) error

	UpsertParticipant(ctx context.Context, p *Participant) error
	SetEventParticipants(ctx context.Context, eventID string, participantIDs []string) error
	ListParticipants(ctx context.Context, eventID string) ([]Participant, error)

	GetSyncState(ctx context.Context, calendarID string) (SyncState, error)
	SaveSyncState(ctx context.Context, s SyncState) error
}

// Storage is a Repository with a lifecycle and transactions. Inside
// WithSession only the passed Repository may be used; changes become visible
// when fn returns nil and are discarded otherwise.
type Storage interface {
	Repository
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	WithSession(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
