package memoryprovider

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	"github.com/LinkovichChomofski/calendaragent/internal/util"
	"github.com/google/uuid"
)

// Client is an in-process provider used for local runs and tests. Events
// overlapping the window are returned in start order.
type Client struct {
	mu        sync.Mutex
	calendars map[string]provider.CalendarInfo
	events    map[string]map[string]provider.Event
	// Known calendars that are not yet in the calendar list. AddCalendar
	// succeeds only for these.
	subscribable map[string]provider.CalendarInfo

	PageSize int
	// Err, when set, is returned by every call.
	Err error
	// ListErr is returned by ListEvents once the given page index is reached.
	ListErr     error
	ListErrPage int
	SyncToken   string
}

func New() *Client {
	return &Client{
		calendars:    make(map[string]provider.CalendarInfo),
		events:       make(map[string]map[string]provider.Event),
		subscribable: make(map[string]provider.CalendarInfo),
	}
}

func (c *Client) AddKnownCalendar(info provider.CalendarInfo, listed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if listed {
		c.calendars[info.ID] = info
		return
	}
	c.subscribable[info.ID] = info
}

func (c *Client) Put(calendarID string, e provider.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.events[calendarID] == nil {
		c.events[calendarID] = make(map[string]provider.Event)
	}
	c.events[calendarID][e.ExternalID] = e
}

func (c *Client) Remove(calendarID, externalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.events[calendarID], externalID)
}

func (c *Client) GetCalendar(_ context.Context, calendarID string) (provider.CalendarInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return provider.CalendarInfo{}, c.Err
	}
	info, ok := c.calendars[calendarID]
	if !ok {
		return provider.CalendarInfo{}, provider.ErrCalendarNotFound
	}
	return info, nil
}

func (c *Client) AddCalendar(_ context.Context, calendarID string) (provider.CalendarInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return provider.CalendarInfo{}, c.Err
	}
	info, ok := c.subscribable[calendarID]
	if !ok {
		return provider.CalendarInfo{}, provider.ErrCalendarNotFound
	}
	delete(c.subscribable, calendarID)
	c.calendars[calendarID] = info
	return info, nil
}

func (c *Client) ListCalendars(_ context.Context) ([]provider.CalendarInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	list := make([]provider.CalendarInfo, 0, len(c.calendars))
	for _, info := range c.calendars {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (c *Client) ListEvents(_ context.Context, calendarID, timeMin, timeMax, pageToken string) (provider.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return provider.Page{}, c.Err
	}
	if _, ok := c.calendars[calendarID]; !ok {
		return provider.Page{}, provider.ErrCalendarNotFound
	}

	offset := 0
	if pageToken != "" {
		var err error
		if offset, err = strconv.Atoi(pageToken); err != nil {
			return provider.Page{}, err
		}
	}
	size := c.PageSize
	if size <= 0 {
		size = 250
	}
	if c.ListErr != nil && offset/size >= c.ListErrPage {
		return provider.Page{}, c.ListErr
	}

	from, _ := time.Parse(time.RFC3339, timeMin)
	to, _ := time.Parse(time.RFC3339, timeMax)
	var matched []provider.Event
	for _, e := range c.events[calendarID] {
		start, end := timeOf(e.Start), timeOf(e.End)
		if from.IsZero() || to.IsZero() || start.IsZero() || end.IsZero() || util.Overlaps(start, end, from, to) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		si, sj := timeOf(matched[i].Start), timeOf(matched[j].Start)
		if si.Equal(sj) {
			return matched[i].ExternalID < matched[j].ExternalID
		}
		return si.Before(sj)
	})

	page := provider.Page{}
	if offset < len(matched) {
		end := offset + size
		if end > len(matched) {
			end = len(matched)
		}
		page.Events = matched[offset:end]
		if end < len(matched) {
			page.NextPageToken = strconv.Itoa(end)
		}
	}
	if page.NextPageToken == "" {
		page.NextSyncToken = c.SyncToken
	}
	return page, nil
}

func (c *Client) CreateEvent(_ context.Context, calendarID string, e provider.Event) (provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return provider.Event{}, c.Err
	}
	if _, ok := c.calendars[calendarID]; !ok {
		return provider.Event{}, provider.ErrCalendarNotFound
	}
	e.ExternalID = uuid.New().String()
	if e.Status == "" {
		e.Status = provider.StatusConfirmed
	}
	if c.events[calendarID] == nil {
		c.events[calendarID] = make(map[string]provider.Event)
	}
	c.events[calendarID][e.ExternalID] = e
	return e, nil
}

func (c *Client) UpdateEvent(_ context.Context, calendarID string, e provider.Event) (provider.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return provider.Event{}, c.Err
	}
	if _, ok := c.events[calendarID][e.ExternalID]; !ok {
		return provider.Event{}, provider.ErrEventNotFound
	}
	c.events[calendarID][e.ExternalID] = e
	return e, nil
}

func (c *Client) DeleteEvent(_ context.Context, calendarID, externalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if _, ok := c.events[calendarID][externalID]; !ok {
		return provider.ErrEventNotFound
	}
	delete(c.events[calendarID], externalID)
	return nil
}

func timeOf(et provider.EventTime) time.Time {
	if et.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, et.DateTime)
		return t
	}
	t, _ := time.Parse("2006-01-02", et.Date)
	return t
}
