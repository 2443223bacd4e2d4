package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type passResult struct {
	inserted  int
	updated   int
	unchanged int
	deleted   int
	errors    []string
}

// pass holds the state of one calendar pass inside its transaction.
type pass struct {
	r          *Reconciler
	repo       storage.Repository
	calendarID string
	window     Window
	now        time.Time
	existing   map[string]storage.Event
	seen       map[string]struct{}
	result     passResult
}

func (r *Reconciler) newPass(ctx context.Context, repo storage.Repository, calendarID string, w Window) (*pass, error) {
	rows, err := repo.ListByCalendar(ctx, calendarID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored events: %w", err)
	}
	existing := make(map[string]storage.Event, len(rows))
	for _, row := range rows {
		if row.ExternalID != nil {
			existing[*row.ExternalID] = row
		}
	}
	return &pass{
		r:          r,
		repo:       repo,
		calendarID: calendarID,
		window:     w,
		now:        r.now(),
		existing:   existing,
		seen:       make(map[string]struct{}),
	}, nil
}

func (p *pass) recordError(rec provider.Event, err error) {
	msg := fmt.Sprintf("event %q: %v", rec.ExternalID, err)
	log.WithField("calendar", p.calendarID).Warn(msg)
	p.result.errors = append(p.result.errors, msg)
}

// apply upserts every remote record. A malformed record is skipped and
// recorded, leaving its stored row untouched. Repository errors abort the
// pass.
func (p *pass) apply(ctx context.Context, remote []provider.Event) error {
	for _, rec := range remote {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.ExternalID != "" {
			if _, dup := p.seen[rec.ExternalID]; dup {
				continue
			}
			// A record present in the snapshot is never tombstoned, even
			// when it cannot be mapped.
			p.seen[rec.ExternalID] = struct{}{}
		}

		event, err := p.toLocal(rec)
		if err != nil {
			p.recordError(rec, err)
			continue
		}

		stored, ok := p.existing[rec.ExternalID]
		if !ok {
			other, err := p.repo.FindByExternalID(ctx, rec.ExternalID)
			switch {
			case err == nil:
				p.recordError(rec, fmt.Errorf("%w %s", ErrForeignEvent, storage.StringValue(other.CalendarID)))
				continue
			case !errors.Is(err, storage.ErrNotFoundEvent):
				return err
			}
			event.ID = uuid.New().String()
			if err := p.repo.InsertEvent(ctx, &event); err != nil {
				return fmt.Errorf("failed to insert %s: %w", rec.ExternalID, err)
			}
			p.result.inserted++
		} else {
			event.ID = stored.ID
			if stored.SameContent(event) {
				p.result.unchanged++
			} else {
				p.result.updated++
			}
			if err := p.repo.UpdateEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to update %s: %w", rec.ExternalID, err)
			}
		}

		if err := p.syncAttendees(ctx, event.ID, rec.Attendees); err != nil {
			return err
		}
	}
	return nil
}

// tombstoneMissing soft deletes live rows in the window that the provider no
// longer returns.
func (p *pass) tombstoneMissing(ctx context.Context) error {
	for externalID, row := range p.existing {
		if _, ok := p.seen[externalID]; ok || row.IsDeleted {
			continue
		}
		if !util.Overlaps(row.Start, row.End, p.window.Start, p.window.End) {
			continue
		}
		if err := p.repo.SoftDeleteEvent(ctx, row.ID, p.now); err != nil {
			return fmt.Errorf("failed to tombstone %s: %w", externalID, err)
		}
		p.result.deleted++
	}
	return nil
}

func (p *pass) saveCalendar(ctx context.Context, info provider.CalendarInfo, syncToken string) error {
	if err := p.repo.UpsertCalendar(ctx, storage.Calendar{
		ID:              p.calendarID,
		Summary:         info.Summary,
		Description:     info.Description,
		TimeZone:        info.TimeZone,
		BackgroundColor: info.BackgroundColor,
		ForegroundColor: info.ForegroundColor,
		AccessRole:      info.AccessRole,
		IsPrimary:       info.Primary,
		UpdatedAt:       p.now,
	}); err != nil {
		return fmt.Errorf("failed to save calendar: %w", err)
	}

	state, err := p.repo.GetSyncState(ctx, p.calendarID)
	if err != nil && !errors.Is(err, storage.ErrNotFoundSyncState) {
		return err
	}
	now := p.now
	state.LastSynced = &now
	state.FullSyncNeeded = false
	if syncToken != "" {
		state.LastSyncToken = &syncToken
	}
	return p.repo.SaveSyncState(ctx, state)
}

func (p *pass) syncAttendees(ctx context.Context, eventID string, attendees []provider.Attendee) error {
	if len(attendees) == 0 {
		return nil
	}
	ids := make([]string, 0, len(attendees))
	for _, a := range attendees {
		participant := storage.Participant{Name: a.Name, Email: a.Email}
		if err := p.repo.UpsertParticipant(ctx, &participant); err != nil {
			if errors.Is(err, storage.ErrEmptyParticipantMail) {
				continue
			}
			return fmt.Errorf("failed to save participant %s: %w", a.Email, err)
		}
		ids = append(ids, participant.ID)
	}
	return p.repo.SetEventParticipants(ctx, eventID, ids)
}

// toLocal maps a remote record to a row. All-day dates are anchored to local
// midnight; a missing end means a zero length event, or one day when all-day.
func (p *pass) toLocal(rec provider.Event) (storage.Event, error) {
	if rec.ExternalID == "" {
		return storage.Event{}, ErrMissingExternalID
	}
	start, allDay, err := p.r.times.ParseEventTime(rec.Start.DateTime, rec.Start.Date, rec.Start.TimeZone)
	if err != nil {
		return storage.Event{}, fmt.Errorf("start: %w", err)
	}
	end, _, err := p.r.times.ParseEventTime(rec.End.DateTime, rec.End.Date, rec.End.TimeZone)
	switch {
	case errors.Is(err, temporal.ErrMissingTime):
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	case err != nil:
		return storage.Event{}, fmt.Errorf("end: %w", err)
	}
	start, end = temporal.Repair(start, end)

	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = untitled
	}
	event := storage.Event{
		ExternalID:  storage.StringPtr(rec.ExternalID),
		Title:       title,
		Description: rec.Description,
		Location:    rec.Location,
		Start:       start,
		End:         end,
		CalendarID:  storage.StringPtr(p.calendarID),
		Source:      storage.SourceGoogle,
		LastSynced:  p.now,
	}

	pattern, err := recurrence.FromProviderRules(rec.Recurrence, p.r.times.Location())
	if err != nil {
		return storage.Event{}, fmt.Errorf("recurrence: %w", err)
	}
	if pattern != nil {
		encoded, err := pattern.Encode()
		if err != nil {
			return storage.Event{}, fmt.Errorf("recurrence: %w", err)
		}
		event.IsRecurring = true
		event.RecurrencePattern = &encoded
	}
	return event, nil
}
