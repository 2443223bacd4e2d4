package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/holiday"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/rabbit"
	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
	log "github.com/sirupsen/logrus"
)

var ErrNoProvider = errors.New("no calendar provider configured")

// Notifier receives sync results and event changes.
type Notifier interface {
	Notify(ctx context.Context, n rabbit.Notification) error
}

type Config struct {
	Location        *time.Location
	DefaultCalendar string
	// Calendars are synced by SyncAll when no ids are given.
	Calendars []string
}

// Response is the outcome of a user facing operation. Callers branch on
// Success; Message is meant for humans.
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Event   *storage.Event      `json:"event,omitempty"`
	Events  []storage.Event     `json:"events,omitempty"`
	Window  *temporal.Window    `json:"window,omitempty"`
	Pattern *recurrence.Pattern `json:"pattern,omitempty"`
	Errors  []string            `json:"errors,omitempty"`
	Err     error               `json:"-"`
}

func failure(err error) Response {
	return Response{Success: false, Message: err.Error(), Errors: []string{err.Error()}, Err: err}
}

type App struct {
	Storage     storage.Storage
	Provider    provider.Client
	Reconciler  *reconciler.Reconciler
	Holidays    *holiday.Calendar
	Times       *temporal.Normalizer
	Recurrences *recurrence.Normalizer
	notifier    Notifier
	config      Config
	now         func() time.Time
}

// New wires the application. client may be nil, then only local operations
// are available.
func New(s storage.Storage, client provider.Client, rec *reconciler.Reconciler, config Config) *App {
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.DefaultCalendar == "" {
		config.DefaultCalendar = "primary"
	}
	return &App{
		Storage:     s,
		Provider:    client,
		Reconciler:  rec,
		Holidays:    holiday.New(config.Location),
		Times:       temporal.New(config.Location),
		Recurrences: recurrence.NewNormalizer(config.Location),
		config:      config,
		now:         time.Now,
	}
}

func (a *App) SetNotifier(n Notifier) {
	a.notifier = n
}

func (a *App) SetClock(now func() time.Time) {
	a.now = now
	if a.Reconciler != nil {
		a.Reconciler.SetClock(now)
	}
}

func (a *App) Location() *time.Location {
	return a.config.Location
}

func (a *App) notify(ctx context.Context, n rabbit.Notification) {
	if a.notifier == nil {
		return
	}
	if err := a.notifier.Notify(ctx, n); err != nil {
		log.WithField("kind", n.Kind).Warnf("failed to send notification: %v", err)
	}
}

func (a *App) SyncCalendar(ctx context.Context, calendarID string, window *reconciler.Window) reconciler.Result {
	if a.Reconciler == nil {
		return reconciler.Result{CalendarID: calendarID, State: reconciler.StateFailed, Errors: []string{ErrNoProvider.Error()}}
	}
	if calendarID == "" {
		calendarID = a.config.DefaultCalendar
	}
	res := a.Reconciler.SyncCalendar(ctx, calendarID, window)
	a.notify(ctx, rabbit.SyncNotification(res, a.now()))
	return res
}

// SyncAll syncs the given calendars, or the configured ones, or every stored
// calendar, in that order of preference.
func (a *App) SyncAll(ctx context.Context, calendarIDs []string) ([]reconciler.Result, error) {
	if a.Reconciler == nil {
		return nil, ErrNoProvider
	}
	if len(calendarIDs) == 0 {
		calendarIDs = a.config.Calendars
	}
	if len(calendarIDs) == 0 {
		cals, err := a.Storage.ListCalendars(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range cals {
			calendarIDs = append(calendarIDs, c.ID)
		}
	}
	if len(calendarIDs) == 0 {
		calendarIDs = []string{a.config.DefaultCalendar}
	}
	results := a.Reconciler.SyncAll(ctx, calendarIDs, nil)
	for _, res := range results {
		a.notify(ctx, rabbit.SyncNotification(res, a.now()))
	}
	return results, nil
}

// DiscoverCalendars stores every calendar the provider lists.
func (a *App) DiscoverCalendars(ctx context.Context) ([]storage.Calendar, error) {
	if a.Provider == nil {
		return nil, ErrNoProvider
	}
	infos, err := a.Provider.ListCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider calendars: %w", err)
	}
	now := a.now()
	cals := make([]storage.Calendar, 0, len(infos))
	err = a.Storage.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		for _, info := range infos {
			c := storage.Calendar{
				ID:              info.ID,
				Summary:         info.Summary,
				Description:     info.Description,
				TimeZone:        info.TimeZone,
				BackgroundColor: info.BackgroundColor,
				ForegroundColor: info.ForegroundColor,
				AccessRole:      info.AccessRole,
				IsPrimary:       info.Primary,
				UpdatedAt:       now,
			}
			if err := repo.UpsertCalendar(ctx, c); err != nil {
				return err
			}
			cals = append(cals, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cals, nil
}

func (a *App) NormalizeTemporal(g temporal.Guess) temporal.Window {
	return a.Times.Normalize(g, a.now())
}

func (a *App) NormalizeRecurrence(g *recurrence.Guess) *recurrence.Pattern {
	return a.Recurrences.Normalize(g)
}

func (a *App) IsHoliday(date time.Time) (bool, string) {
	name, ok := a.Holidays.HolidayName(date)
	return ok, name
}

func (a *App) IsBusinessDay(date time.Time) bool {
	return a.Holidays.IsBusinessDay(date)
}

func (a *App) NextBusinessDay(date time.Time) time.Time {
	return a.Holidays.NextBusinessDay(date)
}

func (a *App) HolidaysBetween(start, end time.Time) []holiday.Holiday {
	return a.Holidays.HolidaysBetween(start, end)
}

func (a *App) ListEvents(ctx context.Context, from, to time.Time) ([]storage.Event, error) {
	from, to = temporal.Repair(from, to)
	return a.Storage.ListEvents(ctx, from, to)
}

func (a *App) GetEventsForDay(ctx context.Context, date time.Time) ([]storage.Event, error) {
	startTime := util.TruncateToDay(date.In(a.config.Location))
	return a.Storage.ListEvents(ctx, startTime, startTime.AddDate(0, 0, 1))
}

func (a *App) GetEventsForWeek(ctx context.Context, startDate time.Time) ([]storage.Event, error) {
	startTime := util.TruncateToDay(startDate.In(a.config.Location))
	if startTime.Weekday() != time.Monday {
		return nil, storage.ErrIncorrectStartDate
	}
	return a.Storage.ListEvents(ctx, startTime, startTime.AddDate(0, 0, 7))
}

func (a *App) GetEventsForMonth(ctx context.Context, startDate time.Time) ([]storage.Event, error) {
	startTime := util.TruncateToDay(startDate.In(a.config.Location))
	if startTime.Day() != 1 {
		return nil, storage.ErrIncorrectStartDate
	}
	return a.Storage.ListEvents(ctx, startTime, startTime.AddDate(0, 1, 0))
}
