package temporal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/util"
	log "github.com/sirupsen/logrus"
)

var (
	ErrUnparseableTime = errors.New("unparseable time")
	ErrMissingTime     = errors.New("neither date-time nor date present")
)

const (
	IntentSchedule = "SCHEDULE"
	IntentCancel   = "CANCEL"
	IntentQuery    = "QUERY"
	IntentUpdate   = "UPDATE"

	EventTypeMeeting = "MEETING"

	meetingDuration = 60 * time.Minute
	otherDuration   = 30 * time.Minute
)

var tomorrowMarker = regexp.MustCompile(`(?i)\b(tomorrow|tmrw|tmr)\b`)

// Guess is the loosely-typed time description produced by the language model.
// Every field is optional.
type Guess struct {
	Intent    string
	EventType string
	StartTime string
	EndTime   string
	Duration  string
	Text      string
}

type Window struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Defaulted bool      `json:"defaulted"`
}

type Normalizer struct {
	loc *time.Location
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Normalize turns g into a zone-aware window with Start <= End. Unparseable
// start or end times never produce an error: the whole day of now is
// returned instead with Defaulted set.
func (n *Normalizer) Normalize(g Guess, now time.Time) Window {
	now = now.In(n.loc)
	today := util.TruncateToDay(now)

	start := today
	if s := strings.TrimSpace(g.StartTime); s != "" {
		t, err := n.ParseInstant(s)
		if err != nil {
			return n.fallback(today, g, err)
		}
		start = t
	}
	start, shift := n.rebasePastYear(start, now, g.Text)

	var end time.Time
	switch {
	case strings.TrimSpace(g.EndTime) != "":
		t, err := n.ParseInstant(strings.TrimSpace(g.EndTime))
		if err != nil {
			return n.fallback(today, g, err)
		}
		end = t.AddDate(0, 0, shift)
	case strings.EqualFold(g.Intent, IntentQuery):
		end = start.AddDate(0, 0, 1)
	default:
		end = start.Add(n.duration(g))
	}

	start, end = Repair(start, end)
	return Window{Start: start, End: end}
}

func (n *Normalizer) fallback(today time.Time, g Guess, err error) Window {
	log.WithField("start", g.StartTime).WithField("end", g.EndTime).
		Warnf("failed to normalize time, using the whole day: %v", err)
	return Window{Start: today, End: today.AddDate(0, 0, 1), Defaulted: true}
}

func (n *Normalizer) duration(g Guess) time.Duration {
	if d, ok := ParseDuration(g.Duration); ok {
		return d
	}
	if strings.EqualFold(g.EventType, EventTypeMeeting) {
		return meetingDuration
	}
	return otherDuration
}

// rebasePastYear moves a start from a past year onto today, or tomorrow when
// the text says so, keeping its time of day. It returns the day shift applied.
func (n *Normalizer) rebasePastYear(start, now time.Time, text string) (time.Time, int) {
	if start.Year() >= now.Year() {
		return start, 0
	}
	target := now
	if tomorrowMarker.MatchString(text) {
		target = now.AddDate(0, 0, 1)
	}
	rebased := time.Date(target.Year(), target.Month(), target.Day(),
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), n.loc)
	log.WithField("parsed", start).WithField("rebased", rebased).Debug("past year start rebased")
	return rebased, util.DaysBetween(start, rebased)
}

// Repair swaps an inverted range.
func Repair(start, end time.Time) (time.Time, time.Time) {
	if start.After(end) {
		return end, start
	}
	return start, end
}

var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseInstant parses an ISO-8601 style instant. Instants with an offset are
// converted into the normalizer zone, naive ones take it as is.
func (n *Normalizer) ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(n.loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrUnparseableTime)
}

// ParseEventTime converts a provider start/end value. A date-only value is an
// all-day marker anchored to local midnight.
func (n *Normalizer) ParseEventTime(dateTime, date, timeZone string) (time.Time, bool, error) {
	switch {
	case dateTime != "":
		if t, err := time.Parse(time.RFC3339, dateTime); err == nil {
			return t.In(n.loc), false, nil
		}
		loc := n.loc
		if timeZone != "" {
			if l, err := time.LoadLocation(timeZone); err == nil {
				loc = l
			}
		}
		for _, layout := range naiveLayouts[:4] {
			if t, err := time.ParseInLocation(layout, dateTime, loc); err == nil {
				return t.In(n.loc), false, nil
			}
		}
		return time.Time{}, false, fmt.Errorf("date-time %q: %w", dateTime, ErrUnparseableTime)
	case date != "":
		t, err := time.ParseInLocation("2006-01-02", date, n.loc)
		if err != nil {
			return time.Time{}, true, fmt.Errorf("date %q: %w", date, ErrUnparseableTime)
		}
		return t, true, nil
	default:
		return time.Time{}, false, ErrMissingTime
	}
}
