package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/locker"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
	"github.com/LinkovichChomofski/calendaragent/internal/worker"
	log "github.com/sirupsen/logrus"
)

var (
	ErrCalendarUnresolvable = errors.New("calendar is not accessible at provider")
	ErrMissingExternalID    = errors.New("remote event has no id")
	ErrForeignEvent         = errors.New("remote event is stored under another calendar")
)

type State string

const (
	StateIdle            State = "Idle"
	StateResolveCalendar State = "ResolveCalendarAccess"
	StateFetchRemote     State = "FetchRemoteWindow"
	StateMapExisting     State = "PerExistingEventMap"
	StateApplyDiff       State = "ApplyDiff"
	StateCommit          State = "CommitAndAdvanceCursor"
	StateCompleted       State = "Completed"
	StateFailed          State = "Failed"
)

const (
	defaultPastHorizon   = 180 * 24 * time.Hour
	defaultFutureHorizon = 365 * 24 * time.Hour
	untitled             = "Untitled"
	lockPrefix           = "calendar-sync:"
)

type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Config struct {
	PastHorizon   time.Duration
	FutureHorizon time.Duration
	// Workers bounds how many calendars SyncAll processes at once.
	Workers int
	// MaxFailures stops SyncAll from starting new passes after this many
	// failed ones. Zero means no limit.
	MaxFailures int
	Location    *time.Location
}

// Result describes one pass over one calendar. Counts reflect committed
// changes only.
type Result struct {
	PassID     string   `json:"passId"`
	CalendarID string   `json:"calendarId"`
	State      State    `json:"state"`
	Success    bool     `json:"success"`
	Inserted   int      `json:"inserted"`
	Updated    int      `json:"updated"`
	Unchanged  int      `json:"unchanged"`
	Deleted    int      `json:"deleted"`
	Errors     []string `json:"errors"`
}

type Reconciler struct {
	storage storage.Storage
	client  provider.Client
	locker  locker.Locker
	times   *temporal.Normalizer
	config  Config
	now     func() time.Time
}

func New(s storage.Storage, client provider.Client, l locker.Locker, config Config) *Reconciler {
	if config.PastHorizon <= 0 {
		config.PastHorizon = defaultPastHorizon
	}
	if config.FutureHorizon <= 0 {
		config.FutureHorizon = defaultFutureHorizon
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if l == nil {
		l = locker.NewMemory()
	}
	return &Reconciler{
		storage: s,
		client:  client,
		locker:  l,
		times:   temporal.New(config.Location),
		config:  config,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// DefaultWindow is the bounded sync horizon around now.
func (r *Reconciler) DefaultWindow() Window {
	now := r.now()
	return Window{Start: now.Add(-r.config.PastHorizon), End: now.Add(r.config.FutureHorizon)}
}

// SyncCalendar runs one full-window pass. A nil window means the default
// horizon. Failures are reported in the result, never returned.
func (r *Reconciler) SyncCalendar(ctx context.Context, calendarID string, window *Window) Result {
	res := Result{PassID: util.NewPassID(), CalendarID: calendarID, State: StateIdle, Errors: []string{}}
	logger := log.WithField("pass", res.PassID).WithField("calendar", calendarID)

	fail := func(err error) Result {
		logger.WithField("state", res.State).Errorf("sync failed: %v", err)
		res.Errors = append(res.Errors, err.Error())
		res.State = StateFailed
		return res
	}

	unlock, err := r.locker.Lock(ctx, lockPrefix+calendarID)
	if err != nil {
		return fail(fmt.Errorf("failed to lock calendar: %w", err))
	}
	defer unlock()

	res.State = StateResolveCalendar
	info, err := r.resolveCalendar(ctx, calendarID)
	if err != nil {
		return fail(err)
	}

	w := r.DefaultWindow()
	if window != nil {
		w = *window
	}
	w.Start, w.End = temporal.Repair(w.Start, w.End)

	res.State = StateFetchRemote
	remote, syncToken, err := provider.ListAll(ctx, r.client, calendarID, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	if err != nil {
		return fail(err)
	}
	logger.WithField("events", len(remote)).Debug("remote window fetched")

	var pass passResult
	err = r.storage.WithSession(ctx, func(ctx context.Context, repo storage.Repository) error {
		pass = passResult{}
		res.State = StateMapExisting
		p, err := r.newPass(ctx, repo, calendarID, w)
		if err != nil {
			return err
		}

		res.State = StateApplyDiff
		if err := p.apply(ctx, remote); err != nil {
			return err
		}
		if err := p.tombstoneMissing(ctx); err != nil {
			return err
		}

		res.State = StateCommit
		if err := p.saveCalendar(ctx, info, syncToken); err != nil {
			return err
		}
		pass = p.result
		return ctx.Err()
	})
	if err != nil {
		return fail(fmt.Errorf("sync transaction rolled back: %w", err))
	}

	res.Inserted = pass.inserted
	res.Updated = pass.updated
	res.Unchanged = pass.unchanged
	res.Deleted = pass.deleted
	res.Errors = append(res.Errors, pass.errors...)
	res.State = StateCompleted
	res.Success = true
	logger.WithField("inserted", res.Inserted).
		WithField("updated", res.Updated).
		WithField("unchanged", res.Unchanged).
		WithField("deleted", res.Deleted).
		WithField("errors", len(res.Errors)).
		Info("sync completed")
	return res
}

// SyncAll runs one pass per calendar, each in its own transaction. Results
// keep the order of calendarIDs.
func (r *Reconciler) SyncAll(ctx context.Context, calendarIDs []string, window *Window) []Result {
	results := make([]Result, len(calendarIDs))
	tasks := make([]worker.Task, 0, len(calendarIDs))
	for i, id := range calendarIDs {
		i, id := i, id
		results[i] = Result{CalendarID: id, State: StateIdle, Errors: []string{"not started"}}
		tasks = append(tasks, func() error {
			results[i] = r.SyncCalendar(ctx, id, window)
			if !results[i].Success {
				return errors.New(results[i].CalendarID)
			}
			return nil
		})
	}
	if err := worker.Run(tasks, r.config.Workers, r.config.MaxFailures); err != nil {
		log.WithField("calendars", len(calendarIDs)).Warnf("sync stopped early: %v", err)
	}
	return results
}

func (r *Reconciler) resolveCalendar(ctx context.Context, calendarID string) (provider.CalendarInfo, error) {
	info, err := r.client.GetCalendar(ctx, calendarID)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, provider.ErrCalendarNotFound) {
		return provider.CalendarInfo{}, fmt.Errorf("failed to get calendar %s: %w", calendarID, err)
	}
	info, err = r.client.AddCalendar(ctx, calendarID)
	if err != nil {
		return provider.CalendarInfo{}, fmt.Errorf("%w: %s: %v", ErrCalendarUnresolvable, calendarID, err)
	}
	log.WithField("calendar", calendarID).Info("calendar registered at provider")
	return info, nil
}
