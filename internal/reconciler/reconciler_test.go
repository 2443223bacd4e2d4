package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/locker"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	memoryprovider "github.com/LinkovichChomofski/calendaragent/internal/provider/memory"
	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	memorystorage "github.com/LinkovichChomofski/calendaragent/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

var (
	la, _ = time.LoadLocation("America/Los_Angeles")
	now   = time.Date(2025, 2, 17, 9, 0, 0, 0, la)
)

func timed(id, title, start, end string) provider.Event {
	return provider.Event{
		ExternalID: id,
		Title:      title,
		Start:      provider.EventTime{DateTime: start},
		End:        provider.EventTime{DateTime: end},
		Status:     provider.StatusConfirmed,
	}
}

type fixture struct {
	storage *memorystorage.Storage
	client  *memoryprovider.Client
	rec     *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memorystorage.New()
	c := memoryprovider.New()
	c.AddKnownCalendar(provider.CalendarInfo{ID: "primary", Summary: "Me", TimeZone: "America/Los_Angeles", Primary: true}, true)
	r := New(s, c, locker.NewMemory(), Config{Location: la})
	r.SetClock(func() time.Time { return now })
	return &fixture{storage: s, client: c, rec: r}
}

func (f *fixture) byExternalID(t *testing.T, id string) storage.Event {
	t.Helper()
	e, err := f.storage.FindByExternalID(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestSyncCalendar(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then idempotent resync", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "Standup", "2025-02-18T09:00:00-08:00", "2025-02-18T09:15:00-08:00"))
		f.client.Put("primary", timed("2", "Review", "2025-02-19T14:00:00-08:00", "2025-02-19T15:00:00-08:00"))
		f.client.SyncToken = "sync-1"

		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success, res.Errors)
		require.Equal(t, StateCompleted, res.State)
		require.NotEmpty(t, res.PassID)
		require.Equal(t, 2, res.Inserted)
		require.Equal(t, 0, res.Updated)
		require.Equal(t, 0, res.Deleted)
		require.Empty(t, res.Errors)

		first := f.byExternalID(t, "1")
		require.Equal(t, storage.SourceGoogle, first.Source)
		require.Equal(t, "primary", storage.StringValue(first.CalendarID))
		require.True(t, time.Date(2025, 2, 18, 9, 0, 0, 0, la).Equal(first.Start))

		later := now.Add(time.Hour)
		f.rec.SetClock(func() time.Time { return later })
		res = f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success)
		require.Equal(t, 0, res.Inserted)
		require.Equal(t, 0, res.Updated)
		require.Equal(t, 2, res.Unchanged)
		require.Equal(t, 0, res.Deleted)

		again := f.byExternalID(t, "1")
		require.Equal(t, first.ID, again.ID)
		require.True(t, later.Equal(again.LastSynced))

		cal, err := f.storage.GetCalendar(ctx, "primary")
		require.NoError(t, err)
		require.True(t, cal.IsPrimary)
		state, err := f.storage.GetSyncState(ctx, "primary")
		require.NoError(t, err)
		require.False(t, state.FullSyncNeeded)
		require.Equal(t, "sync-1", storage.StringValue(state.LastSyncToken))
		require.True(t, later.Equal(*state.LastSynced))
	})

	t.Run("absent record is tombstoned", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		f.client.Put("primary", timed("2", "B", "2025-02-19T09:00:00-08:00", "2025-02-19T10:00:00-08:00"))
		require.True(t, f.rec.SyncCalendar(ctx, "primary", nil).Success)
		a := f.byExternalID(t, "1")

		f.client.Remove("primary", "2")
		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success)
		require.Equal(t, 1, res.Deleted)
		require.Equal(t, 1, res.Unchanged)
		require.Equal(t, 0, res.Updated)

		require.True(t, f.byExternalID(t, "2").IsDeleted)
		after := f.byExternalID(t, "1")
		require.False(t, after.IsDeleted)
		require.True(t, a.SameContent(after))

		live, err := f.storage.ListEvents(ctx, now.AddDate(0, 0, -1), now.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, live, 1)

		t.Run("reappearing record is revived", func(t *testing.T) {
			f.client.Put("primary", timed("2", "B moved", "2025-02-20T09:00:00-08:00", "2025-02-20T10:00:00-08:00"))
			res := f.rec.SyncCalendar(ctx, "primary", nil)
			require.True(t, res.Success)
			require.Equal(t, 1, res.Updated)
			require.Equal(t, 0, res.Inserted)
			b := f.byExternalID(t, "2")
			require.False(t, b.IsDeleted)
			require.Equal(t, "B moved", b.Title)
		})
	})

	t.Run("rows outside window are kept", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("old", "Old", "2024-01-10T09:00:00-08:00", "2024-01-10T10:00:00-08:00"))
		wide := Window{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, la), End: time.Date(2026, 1, 1, 0, 0, 0, 0, la)}
		require.True(t, f.rec.SyncCalendar(ctx, "primary", &wide).Success)

		f.client.Remove("primary", "old")
		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success)
		require.Equal(t, 0, res.Deleted)
		require.False(t, f.byExternalID(t, "old").IsDeleted)
	})

	t.Run("remote change overwrites local row", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		require.True(t, f.rec.SyncCalendar(ctx, "primary", nil).Success)

		changed := timed("1", "A renamed", "2025-02-18T11:00:00-08:00", "2025-02-18T12:00:00-08:00")
		changed.Location = "Room 1"
		f.client.Put("primary", changed)
		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.Equal(t, 1, res.Updated)

		e := f.byExternalID(t, "1")
		require.Equal(t, "A renamed", e.Title)
		require.Equal(t, "Room 1", e.Location)
		require.True(t, time.Date(2025, 2, 18, 11, 0, 0, 0, la).Equal(e.Start))
	})

	t.Run("malformed record is skipped", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "Good", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		bad := timed("2", "Bad", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00")
		bad.End = provider.EventTime{DateTime: "tomorrow-ish"}
		f.client.Put("primary", bad)
		rule := timed("3", "Bad rule", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00")
		rule.Recurrence = []string{"RRULE:FREQ=SOMETIMES"}
		f.client.Put("primary", rule)

		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success)
		require.Equal(t, 1, res.Inserted)
		require.Len(t, res.Errors, 2)
		_, err := f.storage.FindByExternalID(ctx, "2")
		require.ErrorIs(t, err, storage.ErrNotFoundEvent)

		broken := timed("1", "Good renamed", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00")
		broken.End = provider.EventTime{DateTime: "not-a-time"}
		f.client.Put("primary", broken)
		res = f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success)
		require.Equal(t, 0, res.Deleted)
		require.Len(t, res.Errors, 3)

		kept := f.byExternalID(t, "1")
		require.False(t, kept.IsDeleted)
		require.Equal(t, "Good", kept.Title)
	})

	t.Run("all-day and recurring records", func(t *testing.T) {
		f := newFixture(t)
		offsite := provider.Event{
			ExternalID: "allday",
			Title:      "Offsite",
			Start:      provider.EventTime{Date: "2025-02-20"},
			End:        provider.EventTime{Date: "2025-02-21"},
		}
		f.client.Put("primary", offsite)
		weekly := timed("series", "  ", "2025-02-17T10:00:00-08:00", "2025-02-17T10:30:00-08:00")
		weekly.Recurrence = []string{"RRULE:FREQ=WEEKLY;BYDAY=MO", "EXDATE;TZID=America/Los_Angeles:20250224T100000"}
		weekly.Attendees = []provider.Attendee{{Name: "John", Email: "john@example.com"}, {Name: "Ann", Email: "ann@example.com"}}
		f.client.Put("primary", weekly)

		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.True(t, res.Success, res.Errors)
		require.Equal(t, 2, res.Inserted)

		day := f.byExternalID(t, "allday")
		require.True(t, time.Date(2025, 2, 20, 0, 0, 0, 0, la).Equal(day.Start))
		require.True(t, time.Date(2025, 2, 21, 0, 0, 0, 0, la).Equal(day.End))
		require.False(t, day.IsRecurring)

		series := f.byExternalID(t, "series")
		require.Equal(t, "Untitled", series.Title)
		require.True(t, series.IsRecurring)
		p, err := recurrence.Decode(storage.StringValue(series.RecurrencePattern))
		require.NoError(t, err)
		require.Equal(t, recurrence.Weekly, p.Frequency)
		require.Equal(t, []string{"MO"}, p.Days)
		require.Len(t, p.Exceptions, 1)

		ps, err := f.storage.ListParticipants(ctx, series.ID)
		require.NoError(t, err)
		require.Len(t, ps, 2)
	})

	t.Run("unresolvable calendar has no effect", func(t *testing.T) {
		f := newFixture(t)
		res := f.rec.SyncCalendar(ctx, "stranger@example.com", nil)
		require.False(t, res.Success)
		require.Equal(t, StateFailed, res.State)
		require.Len(t, res.Errors, 1)
		require.Contains(t, res.Errors[0], "stranger@example.com")

		_, err := f.storage.GetCalendar(ctx, "stranger@example.com")
		require.ErrorIs(t, err, storage.ErrNotFoundCalendar)
		_, err = f.storage.GetSyncState(ctx, "stranger@example.com")
		require.ErrorIs(t, err, storage.ErrNotFoundSyncState)
	})

	t.Run("calendar is registered when missing from listing", func(t *testing.T) {
		f := newFixture(t)
		f.client.AddKnownCalendar(provider.CalendarInfo{ID: "team@example.com", Summary: "Team"}, false)
		f.client.Put("team@example.com", timed("t1", "Planning", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))

		res := f.rec.SyncCalendar(ctx, "team@example.com", nil)
		require.True(t, res.Success, res.Errors)
		require.Equal(t, 1, res.Inserted)
		cal, err := f.storage.GetCalendar(ctx, "team@example.com")
		require.NoError(t, err)
		require.Equal(t, "Team", cal.Summary)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		f.client.ListErr = errors.New("quota exceeded")
		res := f.rec.SyncCalendar(ctx, "primary", nil)
		require.False(t, res.Success)
		require.Equal(t, 0, res.Inserted)
		require.Contains(t, res.Errors[0], "quota exceeded")
	})

	t.Run("commit failure rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.client.Put("primary", timed("1", "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		failing := &failingCommit{Storage: f.storage, err: errors.New("serialization failure")}
		r := New(failing, f.client, nil, Config{Location: la})
		r.SetClock(func() time.Time { return now })

		res := r.SyncCalendar(ctx, "primary", nil)
		require.False(t, res.Success)
		require.Equal(t, 0, res.Inserted)
		require.Contains(t, res.Errors[0], "serialization failure")
		_, err := f.storage.FindByExternalID(ctx, "1")
		require.ErrorIs(t, err, storage.ErrNotFoundEvent)
	})

	t.Run("cancelled mid-fetch commits nothing", func(t *testing.T) {
		f := newFixture(t)
		for _, id := range []string{"1", "2", "3"} {
			f.client.Put("primary", timed(id, "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
		}
		f.client.PageSize = 1
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		r := New(f.storage, &cancellingClient{Client: f.client, cancel: cancel}, nil, Config{Location: la})
		r.SetClock(func() time.Time { return now })

		res := r.SyncCalendar(cctx, "primary", nil)
		require.False(t, res.Success)
		require.Equal(t, StateFailed, res.State)
		list, err := f.storage.ListByCalendar(ctx, "primary", true)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.AddKnownCalendar(provider.CalendarInfo{ID: "work"}, true)
	f.client.Put("primary", timed("1", "A", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
	f.client.Put("work", timed("2", "B", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00"))
	f.rec.config.Workers = 2

	results := f.rec.SyncAll(ctx, []string{"primary", "missing", "work"}, nil)
	require.Len(t, results, 3)
	require.Equal(t, "primary", results[0].CalendarID)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.True(t, results[2].Success)
	require.Equal(t, 1, results[2].Inserted)
}

func TestForeignEventIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.AddKnownCalendar(provider.CalendarInfo{ID: "work"}, true)
	shared := timed("shared", "Invite", "2025-02-18T09:00:00-08:00", "2025-02-18T10:00:00-08:00")
	f.client.Put("primary", shared)
	f.client.Put("work", shared)

	require.True(t, f.rec.SyncCalendar(ctx, "primary", nil).Success)
	res := f.rec.SyncCalendar(ctx, "work", nil)
	require.True(t, res.Success)
	require.Equal(t, 0, res.Inserted)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "primary", storage.StringValue(f.byExternalID(t, "shared").CalendarID))
}

type failingCommit struct {
	*memorystorage.Storage
	err error
}

func (s *failingCommit) WithSession(ctx context.Context, fn func(ctx context.Context, repo storage.Repository) error) error {
	return s.Storage.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		if err := fn(ctx, repo); err != nil {
			return err
		}
		return s.err
	})
}

type cancellingClient struct {
	*memoryprovider.Client
	cancel context.CancelFunc
}

func (c *cancellingClient) ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (provider.Page, error) {
	page, err := c.Client.ListEvents(ctx, calendarID, timeMin, timeMax, pageToken)
	c.cancel()
	return page, err
}
