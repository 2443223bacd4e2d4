package internalhttp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/app"
	"github.com/LinkovichChomofski/calendaragent/internal/intent"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	"github.com/LinkovichChomofski/calendaragent/internal/storage"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	"github.com/labstack/echo/v4"
)

var ErrBadRequest = errors.New("bad request")

const (
	dateLayout  = "2006-01-02"
	contentICal = "text/calendar; charset=utf-8"

	// maxHolidayRange bounds /holidays queries.
	maxHolidayRange = 10 * 366 * 24 * time.Hour
)

type handlers struct {
	app *app.App
}

func newHandlers(a *app.App) *handlers {
	return &handlers{app: a}
}

func (h *handlers) setup(e *echo.Echo) {
	e.GET("/health", h.health)

	v1 := e.Group("/api/v1")
	v1.POST("/sync", h.syncAll)
	v1.GET("/calendars", h.listCalendars)
	v1.POST("/calendars/discover", h.discoverCalendars)
	v1.POST("/calendars/:id/sync", h.syncCalendar)
	v1.GET("/calendars/:id/export.ics", h.exportCalendar)
	v1.GET("/export.ics", h.exportCalendar)

	v1.GET("/events", h.listEvents)
	v1.POST("/events", h.scheduleEvent)
	v1.PUT("/events/:id", h.updateEvent)
	v1.DELETE("/events/:id", h.cancelEvent)
	v1.GET("/events/:id/occurrences", h.occurrences)
	v1.GET("/events/day/:date", h.eventsForDay)
	v1.GET("/events/week/:date", h.eventsForWeek)
	v1.GET("/events/month/:date", h.eventsForMonth)

	v1.POST("/commands", h.command)
	v1.POST("/normalize", h.normalize)
	v1.GET("/holidays", h.holidays)
	v1.GET("/business-days/:date", h.businessDay)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, storage.ErrNotFoundEvent),
		errors.Is(err, storage.ErrNotFoundCalendar),
		errors.Is(err, provider.ErrEventNotFound),
		errors.Is(err, provider.ErrCalendarNotFound),
		errors.Is(err, app.ErrEventNotMatched):
		return http.StatusNotFound
	case errors.Is(err, app.ErrAmbiguousEvent):
		return http.StatusConflict
	case errors.Is(err, app.ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, app.ErrMissingTitle),
		errors.Is(err, intent.ErrInvalidCommand),
		errors.Is(err, storage.ErrIncorrectStartDate),
		errors.Is(err, storage.ErrIncorrectEventTime),
		errors.Is(err, temporal.ErrUnparseableTime):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	return c.JSON(statusFor(err), app.Response{Message: err.Error(), Errors: []string{err.Error()}})
}

func respond(c echo.Context, okStatus int, res app.Response) error {
	if res.Success {
		return c.JSON(okStatus, res)
	}
	status := statusFor(res.Err)
	if status == http.StatusOK {
		status = http.StatusInternalServerError
	}
	return c.JSON(status, res)
}

func (h *handlers) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) parseTime(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrBadRequest, name)
	}
	t, err := h.app.Times.ParseInstant(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrBadRequest, name, err)
	}
	return t, nil
}

func (h *handlers) parseRange(c echo.Context) (time.Time, time.Time, error) {
	from, err := h.parseTime("from", c.QueryParam("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := h.parseTime("to", c.QueryParam("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (h *handlers) parseCommand(c echo.Context) (intent.Command, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return intent.Command{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return intent.Empty(), nil
	}
	return intent.Parse(body, c.QueryParam("text"))
}

type windowRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (h *handlers) syncCalendar(c echo.Context) error {
	var req windowRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	var window *reconciler.Window
	if req.Start != "" || req.End != "" {
		start, err := h.parseTime("start", req.Start)
		if err != nil {
			return fail(c, err)
		}
		end, err := h.parseTime("end", req.End)
		if err != nil {
			return fail(c, err)
		}
		window = &reconciler.Window{Start: start, End: end}
	}
	res := h.app.SyncCalendar(c.Request().Context(), c.Param("id"), window)
	if !res.Success {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *handlers) syncAll(c echo.Context) error {
	var req struct {
		Calendars []string `json:"calendars"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, fmt.Errorf("%w: %v", ErrBadRequest, err))
	}
	results, err := h.app.SyncAll(c.Request().Context(), req.Calendars)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (h *handlers) listCalendars(c echo.Context) error {
	cals, err := h.app.Storage.ListCalendars(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"calendars": cals})
}

func (h *handlers) discoverCalendars(c echo.Context) error {
	cals, err := h.app.DiscoverCalendars(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"calendars": cals})
}

func (h *handlers) exportCalendar(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.app.ExportICS(c.Request().Context(), &buf, c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.Blob(http.StatusOK, contentICal, buf.Bytes())
}

func (h *handlers) listEvents(c echo.Context) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return fail(c, err)
	}
	events, err := h.app.ListEvents(c.Request().Context(), from, to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, app.Response{Success: true, Events: events})
}

func (h *handlers) eventsFor(c echo.Context, list func(time.Time) ([]storage.Event, error)) error {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), h.app.Location())
	if err != nil {
		return fail(c, fmt.Errorf("%w: date must be %s", ErrBadRequest, dateLayout))
	}
	events, err := list(date)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, app.Response{Success: true, Events: events})
}

func (h *handlers) eventsForDay(c echo.Context) error {
	return h.eventsFor(c, func(t time.Time) ([]storage.Event, error) {
		return h.app.GetEventsForDay(c.Request().Context(), t)
	})
}

func (h *handlers) eventsForWeek(c echo.Context) error {
	return h.eventsFor(c, func(t time.Time) ([]storage.Event, error) {
		return h.app.GetEventsForWeek(c.Request().Context(), t)
	})
}

func (h *handlers) eventsForMonth(c echo.Context) error {
	return h.eventsFor(c, func(t time.Time) ([]storage.Event, error) {
		return h.app.GetEventsForMonth(c.Request().Context(), t)
	})
}

func (h *handlers) occurrences(c echo.Context) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return fail(c, err)
	}
	occ, err := h.app.Occurrences(c.Request().Context(), c.Param("id"), from, to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"occurrences": occ})
}

func (h *handlers) scheduleEvent(c echo.Context) error {
	cmd, err := h.parseCommand(c)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, h.app.ScheduleEvent(c.Request().Context(), cmd))
}

func (h *handlers) updateEvent(c echo.Context) error {
	cmd, err := h.parseCommand(c)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, h.app.UpdateEvent(c.Request().Context(), c.Param("id"), cmd))
}

func (h *handlers) cancelEvent(c echo.Context) error {
	return respond(c, http.StatusOK, h.app.CancelEvent(c.Request().Context(), c.Param("id")))
}

func (h *handlers) command(c echo.Context) error {
	cmd, err := h.parseCommand(c)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, h.app.HandleCommand(c.Request().Context(), cmd))
}

func (h *handlers) normalize(c echo.Context) error {
	cmd, err := h.parseCommand(c)
	if err != nil {
		return fail(c, err)
	}
	w := h.app.NormalizeTemporal(cmd.TemporalGuess())
	return c.JSON(http.StatusOK, app.Response{
		Success: true,
		Window:  &w,
		Pattern: h.app.NormalizeRecurrence(cmd.RecurrenceGuess()),
	})
}

func (h *handlers) holidays(c echo.Context) error {
	from, to, err := h.parseRange(c)
	if err != nil {
		return fail(c, err)
	}
	if to.Sub(from) > maxHolidayRange {
		return fail(c, fmt.Errorf("%w: holiday range is limited to 10 years", ErrBadRequest))
	}
	return c.JSON(http.StatusOK, map[string]any{"holidays": h.app.HolidaysBetween(from, to)})
}

type businessDayResponse struct {
	Date            string `json:"date"`
	BusinessDay     bool   `json:"businessDay"`
	Holiday         bool   `json:"holiday"`
	Name            string `json:"name,omitempty"`
	NextBusinessDay string `json:"nextBusinessDay"`
}

func (h *handlers) businessDay(c echo.Context) error {
	date, err := time.ParseInLocation(dateLayout, c.Param("date"), h.app.Location())
	if err != nil {
		return fail(c, fmt.Errorf("%w: date must be %s", ErrBadRequest, dateLayout))
	}
	holiday, name := h.app.IsHoliday(date)
	return c.JSON(http.StatusOK, businessDayResponse{
		Date:            date.Format(dateLayout),
		BusinessDay:     h.app.IsBusinessDay(date),
		Holiday:         holiday,
		Name:            name,
		NextBusinessDay: h.app.NextBusinessDay(date).Format(dateLayout),
	})
}
