// Package recurrence holds the canonical recurrence pattern, the normalizer
// that builds it from language-model guesses and its bridge to RFC 5545 rules.
package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LinkovichChomofski/calendaragent/internal/temporal"
	log "github.com/sirupsen/logrus"
)

var ErrEmptyPattern = errors.New("empty recurrence pattern")

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

func (f Frequency) Known() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

var workWeek = []string{"MON", "TUE", "WED", "THU", "FRI"}

// Pattern is the canonical recurrence value stored with recurring events.
type Pattern struct {
	Frequency    Frequency   `json:"frequency"`
	Interval     int         `json:"interval"`
	Days         []string    `json:"days,omitempty"`
	MonthDay     *int        `json:"monthDay,omitempty"`
	WeekNumber   *int        `json:"weekNumber,omitempty"`
	Until        *time.Time  `json:"until"`
	Count        *int        `json:"count"`
	Exceptions   []time.Time `json:"exceptions"`
	SkipHolidays bool        `json:"skipHolidays,omitempty"`
	SkipWeekends bool        `json:"skipWeekends,omitempty"`
}

// Guess is the raw recurrence description. Numbers arrive as text since the
// language model is free to send them in any shape.
type Guess struct {
	Frequency    string
	Interval     string
	Days         []string
	Weekdays     bool
	MonthDay     string
	WeekNumber   string
	Until        string
	Count        string
	Exceptions   []string
	SkipHolidays bool
	SkipWeekends bool
}

type Normalizer struct {
	times *temporal.Normalizer
}

func NewNormalizer(loc *time.Location) *Normalizer {
	return &Normalizer{times: temporal.New(loc)}
}

// Normalize returns nil when there is no recurrence. Field level parse
// failures drop only the affected field.
func (n *Normalizer) Normalize(g *Guess) *Pattern {
	if g == nil || strings.TrimSpace(g.Frequency) == "" {
		return nil
	}

	p := &Pattern{
		Frequency:    Frequency(strings.ToUpper(strings.TrimSpace(g.Frequency))),
		Interval:     1,
		Exceptions:   []time.Time{},
		SkipHolidays: g.SkipHolidays,
		SkipWeekends: g.SkipWeekends,
	}
	if v, ok := parseInt(g.Interval); ok && v >= 1 {
		p.Interval = v
	}

	switch p.Frequency {
	case Weekly:
		p.Days = upperDays(g.Days)
	case Daily:
		if g.Weekdays {
			p.Days = append([]string(nil), workWeek...)
		} else {
			p.Days = upperDays(g.Days)
		}
	case Monthly:
		if v, ok := parseInt(g.MonthDay); ok {
			v = clamp(v, 1, 31)
			p.MonthDay = &v
		}
		if v, ok := parseInt(g.WeekNumber); ok {
			v = clamp(v, 1, 5)
			p.WeekNumber = &v
			p.Days = upperDays(g.Days)
		}
	}

	if s := strings.TrimSpace(g.Until); s != "" {
		if t, err := n.times.ParseInstant(s); err == nil {
			p.Until = &t
		} else {
			log.WithField("until", s).Warnf("dropping recurrence until: %v", err)
		}
	}
	if s := strings.TrimSpace(g.Count); s != "" {
		if v, ok := parseInt(s); ok && v > 0 {
			p.Count = &v
		} else {
			log.WithField("count", s).Warn("dropping recurrence count")
		}
	}
	for _, e := range g.Exceptions {
		t, err := n.times.ParseInstant(e)
		if err != nil {
			log.WithField("exception", e).Warnf("dropping recurrence exception: %v", err)
			continue
		}
		p.Exceptions = append(p.Exceptions, t)
	}
	return p
}

// Encode serializes p for the recurrence_pattern column.
func (p *Pattern) Encode() (string, error) {
	if p == nil {
		return "", ErrEmptyPattern
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode recurrence: %w", err)
	}
	return string(data), nil
}

func Decode(s string) (*Pattern, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyPattern
	}
	p := &Pattern{}
	if err := json.Unmarshal([]byte(s), p); err != nil {
		return nil, fmt.Errorf("failed to decode recurrence: %w", err)
	}
	if p.Interval < 1 {
		p.Interval = 1
	}
	return p, nil
}

func upperDays(days []string) []string {
	if len(days) == 0 {
		return nil
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		if d = strings.ToUpper(strings.TrimSpace(d)); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
