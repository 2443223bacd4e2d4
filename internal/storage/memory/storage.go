package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/google/uuid"
)

// Storage keeps everything in maps. Sessions work on a copy of the state
// that replaces the live one on success.
type Storage struct {
	mu sync.RWMutex
	st *state
}

func New() *Storage {
	return &Storage{st: newState()}
}

func (s *Storage) Connect(_ context.Context) error {
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	return nil
}

func (s *Storage) WithSession(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	if err := fn(ctx, working); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session aborted: %w", err)
	}
	s.st = working
	return nil
}

func (s *Storage) read(fn func(st *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func (s *Storage) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func (s *Storage) FindByExternalID(ctx context.Context, externalID string) (e storage.Event, err error) {
	s.read(func(st *state) { e, err = st.FindByExternalID(ctx, externalID) })
	return e, err
}

func (s *Storage) GetEvent(ctx context.Context, id string) (e storage.Event, err error) {
	s.read(func(st *state) { e, err = st.GetEvent(ctx, id) })
	return e, err
}

func (s *Storage) ListByCalendar(ctx context.Context, calendarID string, includeDeleted bool) (events []storage.Event, err error) {
	s.read(func(st *state) { events, err = st.ListByCalendar(ctx, calendarID, includeDeleted) })
	return events, err
}

func (s *Storage) ListEvents(ctx context.Context, from, to time.Time) (events []storage.Event, err error) {
	s.read(func(st *state) { events, err = st.ListEvents(ctx, from, to) })
	return events, err
}

func (s *Storage) InsertEvent(ctx context.Context, e *storage.Event) error {
	return s.write(func(st *state) error { return st.InsertEvent(ctx, e) })
}

func (s *Storage) UpdateEvent(ctx context.Context, e storage.Event) error {
	return s.write(func(st *state) error { return st.UpdateEvent(ctx, e) })
}

func (s *Storage) SoftDeleteEvent(ctx context.Context, id string, at time.Time) error {
	return s.write(func(st *state) error { return st.SoftDeleteEvent(ctx, id, at) })
}

func (s *Storage) UpsertCalendar(ctx context.Context, c storage.Calendar) error {
	return s.write(func(st *state) error { return st.UpsertCalendar(ctx, c) })
}

func (s *Storage) GetCalendar(ctx context.Context, id string) (c storage.Calendar, err error) {
	s.read(func(st *state) { c, err = st.GetCalendar(ctx, id) })
	return c, err
}

func (s *Storage) ListCalendars(ctx context.Context) (list []storage.Calendar, err error) {
	s.read(func(st *state) { list, err = st.ListCalendars(ctx) })
	return list, err
}

func (s *Storage) DeleteCalendar(ctx context.Context, id string, at time.Time) error {
	return s.write(func(st *state) error { return st.DeleteCalendar(ctx, id, at) })
}

func (s *Storage) UpsertParticipant(ctx context.Context, p *storage.Participant) error {
	return s.write(func(st *state) error { return st.UpsertParticipant(ctx, p) })
}

func (s *Storage) SetEventParticipants(ctx context.Context, eventID string, participantIDs []string) error {
	return s.write(func(st *state) error { return st.SetEventParticipants(ctx, eventID, participantIDs) })
}

func (s *Storage) ListParticipants(ctx context.Context, eventID string) (list []storage.Participant, err error) {
	s.read(func(st *state) { list, err = st.ListParticipants(ctx, eventID) })
	return list, err
}

func (s *Storage) GetSyncState(ctx context.Context, calendarID string) (ss storage.SyncState, err error) {
	s.read(func(st *state) { ss, err = st.GetSyncState(ctx, calendarID) })
	return ss, err
}

func (s *Storage) SaveSyncState(ctx context.Context, ss storage.SyncState) error {
	return s.write(func(st *state) error { return st.SaveSyncState(ctx, ss) })
}

type state struct {
	events            map[string]storage.Event
	byExternalID      map[string]string
	calendars         map[string]storage.Calendar
	participants      map[string]storage.Participant
	participantByMail map[string]string
	eventParticipants map[string][]string
	syncStates        map[string]storage.SyncState
}

func newState() *state {
	return &state{
		events:            make(map[string]storage.Event),
		byExternalID:      make(map[string]string),
		calendars:         make(map[string]storage.Calendar),
		participants:      make(map[string]storage.Participant),
		participantByMail: make(map[string]string),
		eventParticipants: make(map[string][]string),
		syncStates:        make(map[string]storage.SyncState),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.events {
		c.events[k] = v.Clone()
	}
	for k, v := range st.byExternalID {
		c.byExternalID[k] = v
	}
	for k, v := range st.calendars {
		c.calendars[k] = v
	}
	for k, v := range st.participants {
		c.participants[k] = v
	}
	for k, v := range st.participantByMail {
		c.participantByMail[k] = v
	}
	for k, v := range st.eventParticipants {
		c.eventParticipants[k] = append([]string(nil), v...)
	}
	for k, v := range st.syncStates {
		v.LastSyncToken = copyPtr(v.LastSyncToken)
		v.LastSynced = copyPtr(v.LastSynced)
		c.syncStates[k] = v
	}
	return c
}

func (st *state) FindByExternalID(_ context.Context, externalID string) (storage.Event, error) {
	id, ok := st.byExternalID[externalID]
	if !ok {
		return storage.Event{}, fmt.Errorf("external id %q: %w", externalID, storage.ErrNotFoundEvent)
	}
	return st.events[id].Clone(), nil
}

func (st *state) GetEvent(_ context.Context, id string) (storage.Event, error) {
	e, ok := st.events[id]
	if !ok {
		return storage.Event{}, fmt.Errorf("id %q: %w", id, storage.ErrNotFoundEvent)
	}
	return e.Clone(), nil
}

func (st *state) ListByCalendar(_ context.Context, calendarID string, includeDeleted bool) ([]storage.Event, error) {
	events := make([]storage.Event, 0)
	for _, e := range st.events {
		if storage.StringValue(e.CalendarID) != calendarID || (e.IsDeleted && !includeDeleted) {
			continue
		}
		events = append(events, e.Clone())
	}
	sortByStart(events)
	return events, nil
}

// Select live events in range [from:to).
func (st *state) ListEvents(_ context.Context, from, to time.Time) ([]storage.Event, error) {
	events := make([]storage.Event, 0)
	for _, e := range st.events {
		if e.IsDeleted {
			continue
		}
		if !e.Start.Before(from) && e.Start.Before(to) {
			events = append(events, e.Clone())
		}
	}
	sortByStart(events)
	return events, nil
}

func (st *state) InsertEvent(_ context.Context, e *storage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, ok := st.events[e.ID]; ok {
		return fmt.Errorf("duplicate ID %q: %w", e.ID, storage.ErrDuplicateEventID)
	}
	if e.ExternalID != nil {
		if _, ok := st.byExternalID[*e.ExternalID]; ok {
			return fmt.Errorf("duplicate external ID %q: %w", *e.ExternalID, storage.ErrDuplicateExternalID)
		}
		st.byExternalID[*e.ExternalID] = e.ID
	}
	st.events[e.ID] = e.Clone()
	return nil
}

func (st *state) UpdateEvent(_ context.Context, e storage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	old, ok := st.events[e.ID]
	if !ok {
		return fmt.Errorf("failed to update event with id %q: %w", e.ID, storage.ErrNotFoundEvent)
	}
	if e.ExternalID != nil {
		if owner, ok := st.byExternalID[*e.ExternalID]; ok && owner != e.ID {
			return fmt.Errorf("duplicate external ID %q: %w", *e.ExternalID, storage.ErrDuplicateExternalID)
		}
	}
	if old.ExternalID != nil {
		delete(st.byExternalID, *old.ExternalID)
	}
	if e.ExternalID != nil {
		st.byExternalID[*e.ExternalID] = e.ID
	}
	st.events[e.ID] = e.Clone()
	return nil
}

func (st *state) SoftDeleteEvent(_ context.Context, id string, at time.Time) error {
	e, ok := st.events[id]
	if !ok {
		return fmt.Errorf("failed to remove event with id %q: %w", id, storage.ErrNotFoundEvent)
	}
	e.IsDeleted = true
	e.LastSynced = at
	st.events[id] = e
	return nil
}

func (st *state) UpsertCalendar(_ context.Context, c storage.Calendar) error {
	st.calendars[c.ID] = c
	return nil
}

func (st *state) GetCalendar(_ context.Context, id string) (storage.Calendar, error) {
	c, ok := st.calendars[id]
	if !ok {
		return storage.Calendar{}, fmt.Errorf("calendar %q: %w", id, storage.ErrNotFoundCalendar)
	}
	return c, nil
}

func (st *state) ListCalendars(_ context.Context) ([]storage.Calendar, error) {
	list := make([]storage.Calendar, 0, len(st.calendars))
	for _, c := range st.calendars {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsPrimary != list[j].IsPrimary {
			return list[i].IsPrimary
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (st *state) DeleteCalendar(ctx context.Context, id string, at time.Time) error {
	if _, ok := st.calendars[id]; !ok {
		return fmt.Errorf("calendar %q: %w", id, storage.ErrNotFoundCalendar)
	}
	delete(st.calendars, id)
	delete(st.syncStates, id)
	for eid, e := range st.events {
		if storage.StringValue(e.CalendarID) == id && !e.IsDeleted {
			if err := st.SoftDeleteEvent(ctx, eid, at); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *state) UpsertParticipant(_ context.Context, p *storage.Participant) error {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return storage.ErrEmptyParticipantMail
	}
	p.Email = email
	if id, ok := st.participantByMail[email]; ok {
		p.ID = id
		if p.Name == "" {
			p.Name = st.participants[id].Name
		}
		st.participants[id] = *p
		return nil
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	st.participants[p.ID] = *p
	st.participantByMail[email] = p.ID
	return nil
}

func (st *state) SetEventParticipants(_ context.Context, eventID string, participantIDs []string) error {
	if _, ok := st.events[eventID]; !ok {
		return fmt.Errorf("event %q: %w", eventID, storage.ErrNotFoundEvent)
	}
	seen := make(map[string]struct{}, len(participantIDs))
	ids := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	st.eventParticipants[eventID] = ids
	return nil
}

func (st *state) ListParticipants(_ context.Context, eventID string) ([]storage.Participant, error) {
	list := make([]storage.Participant, 0)
	for _, id := range st.eventParticipants[eventID] {
		if p, ok := st.participants[id]; ok {
			list = append(list, p)
		}
	}
	return list, nil
}

func (st *state) GetSyncState(_ context.Context, calendarID string) (storage.SyncState, error) {
	ss, ok := st.syncStates[calendarID]
	if !ok {
		return storage.NewSyncState(calendarID), fmt.Errorf("calendar %q: %w", calendarID, storage.ErrNotFoundSyncState)
	}
	return ss, nil
}

func (st *state) SaveSyncState(_ context.Context, ss storage.SyncState) error {
	st.syncStates[ss.CalendarID] = ss
	return nil
}

func sortByStart(events []storage.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
