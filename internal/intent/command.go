package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/LinkovichChomofski/calendaragent/internal/recurrence"
	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
)

var ErrInvalidCommand = errors.New("invalid command")

const (
	TypeOther     = "OTHER"
	CategoryOther = "OTHER"
)

// FlexString accepts any JSON scalar. null becomes the empty string.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("%w: expected scalar, got %s", ErrInvalidCommand, b)
	default:
		*f = FlexString(b)
	}
	return nil
}

func (f FlexString) String() string {
	return strings.TrimSpace(string(f))
}

// FlexBool accepts booleans, "true"/"false" strings and null.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := strconv.ParseBool(s.String())
	*f = FlexBool(err == nil && v)
	return nil
}

type Event struct {
	Title       FlexString `json:"title"`
	Type        FlexString `json:"type"`
	Category    FlexString `json:"category"`
	Description FlexString `json:"description"`
}

type Recurrence struct {
	Frequency    FlexString   `json:"frequency"`
	Interval     FlexString   `json:"interval"`
	Days         []FlexString `json:"days"`
	Weekdays     FlexBool     `json:"weekdays"`
	MonthDay     FlexString   `json:"monthDay"`
	WeekNumber   FlexString   `json:"weekNumber"`
	Until        FlexString   `json:"until"`
	Count        FlexString   `json:"count"`
	Exceptions   []FlexString `json:"exceptions"`
	SkipHolidays FlexBool     `json:"skip_holidays"`
	SkipWeekends FlexBool     `json:"skip_weekends"`
}

// Command is the structured reading of a natural language request as
// returned by the language model. Nothing in it is trusted.
type Command struct {
	Intent       FlexString   `json:"intent"`
	Event        Event        `json:"event"`
	StartTime    FlexString   `json:"start_time"`
	EndTime      FlexString   `json:"end_time"`
	Duration     FlexString   `json:"duration"`
	Participants []FlexString `json:"participants"`
	Location     FlexString   `json:"location"`
	Recurrence   *Recurrence  `json:"recurrence"`
	// Text is the original request.
	Text string `json:"-"`
}

// Empty is the command used when nothing could be understood.
func Empty() Command {
	return Command{
		Intent: temporal.IntentQuery,
		Event:  Event{Type: TypeOther, Category: CategoryOther},
	}
}

// Parse decodes a model reply. Markdown code fences around the JSON are
// tolerated.
func Parse(data []byte, text string) (Command, error) {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("```")) {
		data = bytes.TrimPrefix(data, []byte("```json"))
		data = bytes.TrimPrefix(data, []byte("```"))
		data = bytes.TrimSuffix(bytes.TrimSpace(data), []byte("```"))
	}
	c := Empty()
	if err := json.Unmarshal(data, &c); err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	c.Intent = FlexString(strings.ToUpper(c.Intent.String()))
	if c.Intent == "" {
		c.Intent = temporal.IntentQuery
	}
	c.Event.Type = FlexString(strings.ToUpper(c.Event.Type.String()))
	if c.Event.Type == "" {
		c.Event.Type = TypeOther
	}
	c.Text = text
	return c, nil
}

func (c Command) ParticipantList() []string {
	list := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if s := p.String(); s != "" {
			list = append(list, s)
		}
	}
	return list
}

func (c Command) TemporalGuess() temporal.Guess {
	return temporal.Guess{
		Intent:    c.Intent.String(),
		EventType: c.Event.Type.String(),
		StartTime: c.StartTime.String(),
		EndTime:   c.EndTime.String(),
		Duration:  c.Duration.String(),
		Text:      c.Text,
	}
}

// RecurrenceGuess returns nil when the command carries no recurrence.
func (c Command) RecurrenceGuess() *recurrence.Guess {
	if c.Recurrence == nil {
		return nil
	}
	r := c.Recurrence
	return &recurrence.Guess{
		Frequency:    r.Frequency.String(),
		Interval:     r.Interval.String(),
		Days:         nonEmpty(r.Days),
		Weekdays:     bool(r.Weekdays),
		MonthDay:     r.MonthDay.String(),
		WeekNumber:   r.WeekNumber.String(),
		Until:        r.Until.String(),
		Count:        r.Count.String(),
		Exceptions:   nonEmpty(r.Exceptions),
		SkipHolidays: bool(r.SkipHolidays),
		SkipWeekends: bool(r.SkipWeekends),
	}
}

func nonEmpty(in []FlexString) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
