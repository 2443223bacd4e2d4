package googleprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/LinkovichChomofski/calendaragent/internal/provider"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	maxResults          = 2500
	defaultBackground   = "#9fe1e7"
	defaultForeground   = "#000000"
	serviceAccountType  = "service_account"
	orderByStartTime    = "startTime"
	tokenFilePermission = 0o600
)

var ErrNoCredentials = errors.New("credentials file is not set")

type Config struct {
	CredentialsFile string
	TokenFile       string
	// SingleEvents expands recurring series into instances.
	SingleEvents bool
}

type Client struct {
	service      *calendar.Service
	oauth        *oauth2.Config
	tokenFile    string
	singleEvents bool
}

// New authorizes with a service account key or with an OAuth client plus a
// stored token. An OAuth client without a token yields an unauthorized
// Client; use AuthURL and Exchange to obtain one.
func New(ctx context.Context, config Config) (*Client, error) {
	if config.CredentialsFile == "" {
		return nil, ErrNoCredentials
	}
	data, err := os.ReadFile(config.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	c := &Client{tokenFile: config.TokenFile, singleEvents: config.SingleEvents}

	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &kind); err == nil && kind.Type == serviceAccountType {
		jwt, err := google.JWTConfigFromJSON(data, calendar.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse service account key: %w", err)
		}
		return c, c.connect(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	}

	c.oauth, err = google.ConfigFromJSON(data, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client credentials: %w", err)
	}
	tok, err := tokenFromFile(config.TokenFile)
	if err != nil {
		log.WithField("tokenFile", config.TokenFile).Warnf("no stored token, authorization required: %v", err)
		return c, nil
	}
	return c, c.connect(ctx, option.WithHTTPClient(c.oauth.Client(ctx, tok)))
}

// NewWithOptions builds a Client on top of explicit client options.
func NewWithOptions(ctx context.Context, singleEvents bool, opts ...option.ClientOption) (*Client, error) {
	c := &Client{singleEvents: singleEvents}
	return c, c.connect(ctx, opts...)
}

func (c *Client) connect(ctx context.Context, opts ...option.ClientOption) error {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}
	c.service = service
	return nil
}

func (c *Client) IsAuthorized() bool {
	return c.service != nil
}

func (c *Client) AuthURL() string {
	if c.oauth == nil {
		return ""
	}
	return c.oauth.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token, stores it in the token
// file and authorizes the client.
func (c *Client) Exchange(ctx context.Context, code string) error {
	if c.oauth == nil {
		return ErrNoCredentials
	}
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange code: %w", err)
	}
	if err := saveToken(c.tokenFile, tok); err != nil {
		log.WithField("tokenFile", c.tokenFile).Warnf("failed to store token: %v", err)
	}
	return c.connect(ctx, option.WithHTTPClient(c.oauth.Client(ctx, tok)))
}

func (c *Client) GetCalendar(ctx context.Context, calendarID string) (provider.CalendarInfo, error) {
	if !c.IsAuthorized() {
		return provider.CalendarInfo{}, provider.ErrNotAuthorized
	}
	entry, err := c.service.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return provider.CalendarInfo{}, mapError(err, provider.ErrCalendarNotFound)
	}
	return toCalendarInfo(entry), nil
}

func (c *Client) AddCalendar(ctx context.Context, calendarID string) (provider.CalendarInfo, error) {
	if !c.IsAuthorized() {
		return provider.CalendarInfo{}, provider.ErrNotAuthorized
	}
	entry, err := c.service.CalendarList.Insert(&calendar.CalendarListEntry{
		Id:              calendarID,
		BackgroundColor: defaultBackground,
		ForegroundColor: defaultForeground,
	}).ColorRgbFormat(true).Context(ctx).Do()
	if err != nil {
		return provider.CalendarInfo{}, mapError(err, provider.ErrCalendarNotFound)
	}
	return toCalendarInfo(entry), nil
}

func (c *Client) ListCalendars(ctx context.Context) ([]provider.CalendarInfo, error) {
	if !c.IsAuthorized() {
		return nil, provider.ErrNotAuthorized
	}
	var (
		list      []provider.CalendarInfo
		pageToken string
	)
	for {
		call := c.service.CalendarList.List().Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list calendars: %w", err)
		}
		for _, entry := range res.Items {
			list = append(list, toCalendarInfo(entry))
		}
		if res.NextPageToken == "" {
			return list, nil
		}
		pageToken = res.NextPageToken
	}
}

func (c *Client) ListEvents(ctx context.Context, calendarID, timeMin, timeMax, pageToken string) (provider.Page, error) {
	if !c.IsAuthorized() {
		return provider.Page{}, provider.ErrNotAuthorized
	}
	call := c.service.Events.List(calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(c.singleEvents).
		ShowDeleted(false).
		MaxResults(maxResults).
		Context(ctx)
	if c.singleEvents {
		call = call.OrderBy(orderByStartTime)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return provider.Page{}, mapError(err, provider.ErrCalendarNotFound)
	}

	page := provider.Page{NextPageToken: res.NextPageToken, NextSyncToken: res.NextSyncToken}
	for _, item := range res.Items {
		if item.Status == provider.StatusCancelled {
			continue
		}
		page.Events = append(page.Events, fromGoogle(item))
	}
	return page, nil
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, e provider.Event) (provider.Event, error) {
	if !c.IsAuthorized() {
		return provider.Event{}, provider.ErrNotAuthorized
	}
	created, err := c.service.Events.Insert(calendarID, toGoogle(e)).Context(ctx).Do()
	if err != nil {
		return provider.Event{}, mapError(err, provider.ErrCalendarNotFound)
	}
	return fromGoogle(created), nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID string, e provider.Event) (provider.Event, error) {
	if !c.IsAuthorized() {
		return provider.Event{}, provider.ErrNotAuthorized
	}
	updated, err := c.service.Events.Update(calendarID, e.ExternalID, toGoogle(e)).Context(ctx).Do()
	if err != nil {
		return provider.Event{}, mapError(err, provider.ErrEventNotFound)
	}
	return fromGoogle(updated), nil
}

func (c *Client) DeleteEvent(ctx context.Context, calendarID, externalID string) error {
	if !c.IsAuthorized() {
		return provider.ErrNotAuthorized
	}
	err := c.service.Events.Delete(calendarID, externalID).Context(ctx).Do()
	if err != nil {
		return mapError(err, provider.ErrEventNotFound)
	}
	return nil
}

func mapError(err error, notFound error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && (gErr.Code == http.StatusNotFound || gErr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %s", notFound, gErr.Message)
	}
	return err
}

func toCalendarInfo(entry *calendar.CalendarListEntry) provider.CalendarInfo {
	return provider.CalendarInfo{
		ID:              entry.Id,
		Summary:         entry.Summary,
		Description:     entry.Description,
		TimeZone:        entry.TimeZone,
		BackgroundColor: entry.BackgroundColor,
		ForegroundColor: entry.ForegroundColor,
		AccessRole:      entry.AccessRole,
		Primary:         entry.Primary,
	}
}

func fromGoogle(item *calendar.Event) provider.Event {
	e := provider.Event{
		ExternalID:  item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Recurrence:  item.Recurrence,
		Status:      item.Status,
	}
	if item.Start != nil {
		e.Start = provider.EventTime{DateTime: item.Start.DateTime, Date: item.Start.Date, TimeZone: item.Start.TimeZone}
	}
	if item.End != nil {
		e.End = provider.EventTime{DateTime: item.End.DateTime, Date: item.End.Date, TimeZone: item.End.TimeZone}
	}
	for _, a := range item.Attendees {
		if a == nil || a.Email == "" {
			continue
		}
		e.Attendees = append(e.Attendees, provider.Attendee{Name: a.DisplayName, Email: a.Email})
	}
	return e
}

func toGoogle(e provider.Event) *calendar.Event {
	item := &calendar.Event{
		Id:          e.ExternalID,
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
		Recurrence:  e.Recurrence,
		Start:       &calendar.EventDateTime{DateTime: e.Start.DateTime, Date: e.Start.Date, TimeZone: e.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: e.End.DateTime, Date: e.End.Date, TimeZone: e.End.TimeZone},
	}
	for _, a := range e.Attendees {
		item.Attendees = append(item.Attendees, &calendar.EventAttendee{Email: a.Email, DisplayName: a.Name})
	}
	return item
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, tokenFilePermission)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
