package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/intent"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrMissingTitle    = errors.New("event title is missing")
	ErrEventNotMatched = errors.New("no matching event found")
	ErrAmbiguousEvent  = errors.New("more than one event matches")
)

const displayLayout = "Mon Jan 2 15:04 MST"

// HandleCommand dispatches a parsed command by its intent. Cancel and update
// commands address the single live event whose title matches on the day of
// the command's start time.
func (a *App) HandleCommand(ctx context.Context, cmd intent.Command) Response {
	switch cmd.Intent.String() {
	case temporal.IntentSchedule:
		return a.ScheduleEvent(ctx, cmd)
	case temporal.IntentCancel:
		e, err := a.matchEvent(ctx, cmd)
		if err != nil {
			return failure(err)
		}
		return a.CancelEvent(ctx, e.ID)
	case temporal.IntentUpdate:
		e, err := a.matchEvent(ctx, cmd)
		if err != nil {
			return failure(err)
		}
		update := cmd
		update.Event.Title = ""
		return a.UpdateEvent(ctx, e.ID, update)
	default:
		w := a.NormalizeTemporal(cmd.TemporalGuess())
		events, err := a.ListEvents(ctx, w.Start, w.End)
		if err != nil {
			return failure(err)
		}
		return Response{
			Success: true,
			Message: fmt.Sprintf("%d event(s) between %s and %s", len(events), w.Start.Format(displayLayout), w.End.Format(displayLayout)),
			Events:  events,
			Window:  &w,
		}
	}
}

func (a *App) matchEvent(ctx context.Context, cmd intent.Command) (storage.Event, error) {
	w := a.Times.Normalize(temporal.Guess{
		Intent:    temporal.IntentQuery,
		StartTime: cmd.StartTime.String(),
		Text:      cmd.Text,
	}, a.now())
	from := util.TruncateToDay(w.Start)
	to := from.AddDate(0, 0, 1)
	if w.End.After(to) {
		to = w.End
	}
	events, err := a.Storage.ListEvents(ctx, from, to)
	if err != nil {
		return storage.Event{}, err
	}
	needle := strings.ToLower(cmd.Event.Title.String())
	var found []storage.Event
	for _, e := range events {
		if needle == "" || strings.Contains(strings.ToLower(e.Title), needle) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return storage.Event{}, fmt.Errorf("%w: %q", ErrEventNotMatched, cmd.Event.Title.String())
	case 1:
		return found[0], nil
	default:
		return storage.Event{}, fmt.Errorf("%w: %q", ErrAmbiguousEvent, cmd.Event.Title.String())
	}
}

// ScheduleEvent creates the event at the provider, when one is configured,
// and stores it locally.
func (a *App) ScheduleEvent(ctx context.Context, cmd intent.Command) Response {
	participants := cmd.ParticipantList()
	title := intent.NormalizeTitle(cmd.Event.Title.String(), cmd.Event.Type.String(), len(participants))
	if title == "" {
		return failure(ErrMissingTitle)
	}

	g := cmd.TemporalGuess()
	g.Intent = temporal.IntentSchedule
	w := a.NormalizeTemporal(g)
	pattern := a.NormalizeRecurrence(cmd.RecurrenceGuess())
	start, end := w.Start, w.End
	if pattern != nil {
		first, ok, err := recurrence.FirstOccurrence(pattern, start, a.Holidays)
		switch {
		case recurrence.Unsupported(err):
			log.WithField("frequency", pattern.Frequency).Warnf("recurrence kept without a rule: %v", err)
		case err != nil:
			return failure(fmt.Errorf("invalid recurrence: %w", err))
		case ok && !first.Equal(start):
			end = first.Add(end.Sub(start))
			start = first
		}
	}

	e := storage.Event{
		ID:          uuid.New().String(),
		Title:       title,
		Description: cmd.Event.Description.String(),
		Location:    cmd.Location.String(),
		Start:       start,
		End:         end,
		CalendarID:  storage.StringPtr(a.config.DefaultCalendar),
		Source:      storage.SourceLocal,
		LastSynced:  a.now(),
	}
	if pattern != nil {
		encoded, err := pattern.Encode()
		if err != nil {
			return failure(err)
		}
		e.IsRecurring = true
		e.RecurrencePattern = &encoded
	}

	if a.Provider != nil {
		remote, err := a.toRemote(e, pattern, participants)
		if err != nil {
			return failure(err)
		}
		created, err := a.Provider.CreateEvent(ctx, a.config.DefaultCalendar, remote)
		if err != nil {
			return failure(fmt.Errorf("failed to create event at provider: %w", err))
		}
		e.ExternalID = storage.StringPtr(created.ExternalID)
		e.Source = storage.SourceGoogle
	}

	err := a.Storage.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.InsertEvent(ctx, &e); err != nil {
			return err
		}
		return a.saveParticipants(ctx, repo, e.ID, participants)
	})
	if err != nil {
		return failure(fmt.Errorf("failed to store event: %w", err))
	}
	log.WithField("event", e.ID).WithField("start", e.Start).Info("event scheduled")
	a.notify(ctx, rabbit.EventNotification(rabbit.KindScheduled, e, a.now()))

	msg := fmt.Sprintf("Scheduled %q for %s", e.Title, e.Start.Format(displayLayout))
	if w.Defaulted {
		msg += " (time not understood, defaulted to today)"
	}
	return Response{Success: true, Message: msg, Event: &e, Window: &w, Pattern: pattern}
}

// UpdateEvent applies the fields present in cmd to the stored event and
// pushes the result to the provider.
func (a *App) UpdateEvent(ctx context.Context, id string, cmd intent.Command) Response {
	e, err := a.Storage.GetEvent(ctx, id)
	if err != nil {
		return failure(err)
	}
	if e.IsDeleted {
		return failure(fmt.Errorf("event %s: %w", id, storage.ErrNotFoundEvent))
	}

	participants := cmd.ParticipantList()
	if t := cmd.Event.Title.String(); t != "" {
		e.Title = intent.NormalizeTitle(t, cmd.Event.Type.String(), len(participants))
	}
	if d := cmd.Event.Description.String(); d != "" {
		e.Description = d
	}
	if l := cmd.Location.String(); l != "" {
		e.Location = l
	}
	var w *temporal.Window
	if cmd.StartTime.String() != "" {
		g := cmd.TemporalGuess()
		g.Intent = temporal.IntentUpdate
		nw := a.NormalizeTemporal(g)
		if !nw.Defaulted {
			e.Start, e.End = nw.Start, nw.End
			w = &nw
		}
	}
	pattern := a.NormalizeRecurrence(cmd.RecurrenceGuess())
	if pattern == nil && e.IsRecurring {
		if pattern, err = recurrence.Decode(storage.StringValue(e.RecurrencePattern)); err != nil {
			return failure(err)
		}
	}
	if pattern != nil {
		encoded, err := pattern.Encode()
		if err != nil {
			return failure(err)
		}
		e.IsRecurring = true
		e.RecurrencePattern = &encoded
	}
	e.LastSynced = a.now()

	if a.Provider != nil && e.ExternalID != nil {
		remote, err := a.toRemote(e, pattern, participants)
		if err != nil {
			return failure(err)
		}
		remote.ExternalID = *e.ExternalID
		if _, err := a.Provider.UpdateEvent(ctx, storage.StringValue(e.CalendarID), remote); err != nil {
			return failure(fmt.Errorf("failed to update event at provider: %w", err))
		}
	}

	err = a.Storage.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := repo.UpdateEvent(ctx, e); err != nil {
			return err
		}
		if len(participants) == 0 {
			return nil
		}
		return a.saveParticipants(ctx, repo, e.ID, participants)
	})
	if err != nil {
		return failure(fmt.Errorf("failed to store event: %w", err))
	}
	a.notify(ctx, rabbit.EventNotification(rabbit.KindUpdated, e, a.now()))
	return Response{Success: true, Message: fmt.Sprintf("Updated %q", e.Title), Event: &e, Window: w, Pattern: pattern}
}

// CancelEvent deletes the event at the provider and tombstones it locally.
// An event already gone at the provider is still tombstoned.
func (a *App) CancelEvent(ctx context.Context, id string) Response {
	e, err := a.Storage.GetEvent(ctx, id)
	if err != nil {
		return failure(err)
	}
	if e.IsDeleted {
		return Response{Success: true, Message: fmt.Sprintf("%q is already cancelled", e.Title), Event: &e}
	}
	if a.Provider != nil && e.ExternalID != nil {
		err := a.Provider.DeleteEvent(ctx, storage.StringValue(e.CalendarID), *e.ExternalID)
		if err != nil && !errors.Is(err, provider.ErrEventNotFound) {
			return failure(fmt.Errorf("failed to delete event at provider: %w", err))
		}
	}
	now := a.now()
	if err := a.Storage.SoftDeleteEvent(ctx, id, now); err != nil {
		return failure(err)
	}
	e.IsDeleted = true
	e.LastSynced = now
	a.notify(ctx, rabbit.EventNotification(rabbit.KindCancelled, e, now))
	return Response{Success: true, Message: fmt.Sprintf("Cancelled %q", e.Title), Event: &e}
}

func (a *App) toRemote(e storage.Event, pattern *recurrence.Pattern, participants []string) (provider.Event, error) {
	tz := a.config.Location.String()
	remote := provider.Event{
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Start:       provider.EventTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: tz},
		End:         provider.EventTime{DateTime: e.End.Format(time.RFC3339), TimeZone: tz},
	}
	if pattern != nil {
		rules, err := pattern.ProviderRules(e.Start)
		switch {
		case recurrence.Unsupported(err):
			log.WithField("event", e.ID).Warnf("recurrence not sent to provider: %v", err)
		case err != nil:
			return provider.Event{}, fmt.Errorf("invalid recurrence: %w", err)
		default:
			remote.Recurrence = rules
		}
	}
	for _, p := range participants {
		if strings.Contains(p, "@") {
			remote.Attendees = append(remote.Attendees, provider.Attendee{Email: p})
		}
	}
	return remote, nil
}

// saveParticipants links participants given by email. Bare names have no
// identity and are skipped.
func (a *App) saveParticipants(ctx context.Context, repo storage.Repository, eventID string, participants []string) error {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		if !strings.Contains(p, "@") {
			continue
		}
		participant := storage.Participant{Email: p}
		if err := repo.UpsertParticipant(ctx, &participant); err != nil {
			return err
		}
		ids = append(ids, participant.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return repo.SetEventParticipants(ctx, eventID, ids)
}
