package internalhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/app"
	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	memoryprovider "github.com/LinkovichChomofski/calendaragent/internal/provider/memory"
	"github.com/LinkovichChomofski/calendaragent/internal/reconciler"
	memorystorage "github.com/LinkovichChomofski/calendaragent/internal/storage/memory"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*echo.Echo, *memoryprovider.Client) {
	t.Helper()
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	now := time.Date(2025, 2, 17, 9, 0, 0, 0, la)

	s := memorystorage.New()
	c := memoryprovider.New()
	c.AddKnownCalendar(provider.CalendarInfo{ID: "primary", Summary: "Me", Primary: true}, true)
	rec := reconciler.New(s, c, nil, reconciler.Config{Location: la})
	a := app.New(s, c, rec, app.Config{Location: la})
	a.SetClock(func() time.Time { return now })
	return NewRouter(a), c
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) app.Response {
	t.Helper()
	var res app.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestEventLifecycle(t *testing.T) {
	e, c := newTestRouter(t)

	rec := do(e, http.MethodPost, "/api/v1/events?text=review+tomorrow", `{
		"event": {"title": "design review", "type": "meeting"},
		"start_time": "2025-02-18T15:00:00",
		"participants": ["ann@example.com", "bob@example.com"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	require.True(t, created.Success)
	require.Equal(t, "Review: Design Review", created.Event.Title)
	id := created.Event.ID

	remote, _, err := provider.ListAll(context.Background(), c, "primary", "", "")
	require.NoError(t, err)
	require.Len(t, remote, 1)

	rec = do(e, http.MethodGet, "/api/v1/events/day/2025-02-18", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec).Events, 1)

	rec = do(e, http.MethodGet, "/api/v1/events?from=2025-02-01&to=2025-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode(t, rec).Events, 1)

	rec = do(e, http.MethodPut, "/api/v1/events/"+id, `{"location": "Room 7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Room 7", decode(t, rec).Event.Location)

	rec = do(e, http.MethodGet, "/api/v1/events/"+id+"/occurrences?from=2025-02-18&to=2025-02-19", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "2025-02-18T15:00:00-08:00")

	rec = do(e, http.MethodGet, "/api/v1/calendars/primary/export.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, contentICal, rec.Header().Get(echo.HeaderContentType))
	require.Contains(t, rec.Body.String(), "SUMMARY:Review: Design Review")

	rec = do(e, http.MethodDelete, "/api/v1/events/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode(t, rec).Event.IsDeleted)

	rec = do(e, http.MethodDelete, "/api/v1/events/unknown", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncRoutes(t *testing.T) {
	e, c := newTestRouter(t)
	c.Put("primary", provider.Event{
		ExternalID: "r1",
		Title:      "Offsite",
		Start:      provider.EventTime{Date: "2025-03-03"},
		End:        provider.EventTime{Date: "2025-03-04"},
	})

	rec := do(e, http.MethodPost, "/api/v1/calendars/primary/sync", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res reconciler.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.Equal(t, 1, res.Inserted)

	rec = do(e, http.MethodPost, "/api/v1/calendars/primary/sync", `{"start": "2025-03-01", "end": "bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/calendars/missing/sync", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(e, http.MethodPost, "/api/v1/sync", `{"calendars": ["primary"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var all struct {
		Results []reconciler.Result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Results, 1)
	require.Equal(t, 1, all.Results[0].Unchanged)

	rec = do(e, http.MethodPost, "/api/v1/calendars/discover", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(e, http.MethodGet, "/api/v1/calendars", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"summary":"Me"`)
}

func TestQueryRoutes(t *testing.T) {
	e, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		want   string
	}{
		{name: "health", method: http.MethodGet, target: "/health", status: http.StatusOK, want: `"ok"`},
		{name: "week not monday", method: http.MethodGet, target: "/api/v1/events/week/2025-02-18", status: http.StatusBadRequest},
		{name: "week", method: http.MethodGet, target: "/api/v1/events/week/2025-02-17", status: http.StatusOK},
		{name: "month not first", method: http.MethodGet, target: "/api/v1/events/month/2025-02-17", status: http.StatusBadRequest},
		{name: "bad date", method: http.MethodGet, target: "/api/v1/events/day/17-02-2025", status: http.StatusBadRequest},
		{name: "range missing", method: http.MethodGet, target: "/api/v1/events?from=2025-02-01", status: http.StatusBadRequest},
		{
			name: "holidays", method: http.MethodGet, target: "/api/v1/holidays?from=2025-07-01&to=2025-07-31",
			status: http.StatusOK, want: "Independence Day",
		},
		{
			name: "holidays range too wide", method: http.MethodGet, target: "/api/v1/holidays?from=1000-01-01&to=9000-01-01",
			status: http.StatusBadRequest,
		},
		{
			name: "business day", method: http.MethodGet, target: "/api/v1/business-days/2025-07-04",
			status: http.StatusOK, want: `"nextBusinessDay":"2025-07-07"`,
		},
		{
			name: "normalize", method: http.MethodPost, target: "/api/v1/normalize",
			body:   `{"start_time": "2025-02-20T09:00:00", "recurrence": {"frequency": "daily", "weekdays": true}}`,
			status: http.StatusOK, want: `"frequency":"DAILY"`,
		},
		{name: "invalid command", method: http.MethodPost, target: "/api/v1/commands", body: `{"intent": [}`, status: http.StatusBadRequest},
		{
			name: "query command", method: http.MethodPost, target: "/api/v1/commands",
			body: `{"intent": "query", "start_time": "2025-02-18"}`, status: http.StatusOK,
		},
		{
			name: "cancel unmatched", method: http.MethodPost, target: "/api/v1/commands",
			body: `{"intent": "cancel", "event": {"title": "dinner"}}`, status: http.StatusNotFound,
		},
		{
			name: "schedule without title", method: http.MethodPost, target: "/api/v1/events",
			body: `{"start_time": "2025-02-18T10:00:00"}`, status: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(e, tc.method, tc.target, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.want != "" {
				require.Contains(t, rec.Body.String(), tc.want)
			}
		})
	}
}

func TestGetIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	ip, err := getIP(req)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", ip)

	req.RemoteAddr = "garbage"
	_, err = getIP(req)
	require.Error(t, err)
}
