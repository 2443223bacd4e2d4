package storage

import (
	"fmt"
	"time"
)

const (
	SourceGoogle = "google"
	SourceLocal  = "local"
)

type Event struct {
	ID                string    `db:"id" json:"id"`
	ExternalID        *string   `db:"external_id" json:"externalId,omitempty"`
	Title             string    `db:"title" json:"title"`
	Description       string    `db:"description" json:"description"`
	Location          string    `db:"location" json:"location"`
	Start             time.Time `db:"start_time" json:"start"`
	End               time.Time `db:"end_time" json:"end"`
	CalendarID        *string   `db:"calendar_id" json:"calendarId,omitempty"`
	Source            string    `db:"source" json:"source"`
	IsRecurring       bool      `db:"is_recurring" json:"isRecurring"`
	RecurrencePattern *string   `db:"recurrence_pattern" json:"recurrencePattern,omitempty"`
	LastSynced        time.Time `db:"last_synced" json:"lastSynced"`
	IsDeleted         bool      `db:"is_deleted" json:"isDeleted"`
}

func (e Event) Validate() error {
	if e.Title == "" {
		return ErrEmptyTitle
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("end %s before start %s: %w", e.End, e.Start, ErrIncorrectEventTime)
	}
	hasPattern := e.RecurrencePattern != nil && *e.RecurrencePattern != ""
	if e.IsRecurring != hasPattern {
		return ErrInconsistentPattern
	}
	return nil
}

// Clone copies e including the values behind its pointer fields.
func (e Event) Clone() Event {
	e.ExternalID = cloneString(e.ExternalID)
	e.CalendarID = cloneString(e.CalendarID)
	e.RecurrencePattern = cloneString(e.RecurrencePattern)
	return e
}

// SameContent reports whether the fields owned by the remote provider match.
func (e Event) SameContent(o Event) bool {
	return e.Title == o.Title &&
		e.Description == o.Description &&
		e.Location == o.Location &&
		e.Start.Equal(o.Start) &&
		e.End.Equal(o.End) &&
		e.IsRecurring == o.IsRecurring &&
		StringValue(e.RecurrencePattern) == StringValue(o.RecurrencePattern) &&
		e.IsDeleted == o.IsDeleted
}

type Calendar struct {
	ID              string    `db:"id" json:"id"`
	Summary         string    `db:"summary" json:"summary"`
	Description     string    `db:"description" json:"description"`
	TimeZone        string    `db:"time_zone" json:"timeZone"`
	BackgroundColor string    `db:"background_color" json:"backgroundColor"`
	ForegroundColor string    `db:"foreground_color" json:"foregroundColor"`
	AccessRole      string    `db:"access_role" json:"accessRole"`
	IsPrimary       bool      `db:"is_primary" json:"isPrimary"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

type Participant struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

type SyncState struct {
	CalendarID     string     `db:"calendar_id" json:"calendarId"`
	LastSyncToken  *string    `db:"last_sync_token" json:"lastSyncToken,omitempty"`
	LastSynced     *time.Time `db:"last_synced" json:"lastSynced,omitempty"`
	FullSyncNeeded bool       `db:"full_sync_needed" json:"fullSyncNeeded"`
}

// NewSyncState is the state of a calendar that was never synced.
func NewSyncState(calendarID string) SyncState {
	return SyncState{CalendarID: calendarID, FullSyncNeeded: true}
}

func StringPtr(s string) *string {
	return &s
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
