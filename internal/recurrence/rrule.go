package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var (
	ErrUnsupportedFrequency = errors.New("unsupported recurrence frequency")
	ErrUnknownWeekday       = errors.New("unknown weekday")
)

// Unsupported reports whether err means p has no rule form: an unknown
// frequency or weekday. Such patterns are kept as metadata only.
func Unsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedFrequency) || errors.Is(err, ErrUnknownWeekday)
}

const exdateLayout = "20060102T150405Z"

var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO, "MON": rrule.MO, "MONDAY": rrule.MO,
	"TU": rrule.TU, "TUE": rrule.TU, "TUESDAY": rrule.TU,
	"WE": rrule.WE, "WED": rrule.WE, "WEDNESDAY": rrule.WE,
	"TH": rrule.TH, "THU": rrule.TH, "THURSDAY": rrule.TH,
	"FR": rrule.FR, "FRI": rrule.FR, "FRIDAY": rrule.FR,
	"SA": rrule.SA, "SAT": rrule.SA, "SATURDAY": rrule.SA,
	"SU": rrule.SU, "SUN": rrule.SU, "SUNDAY": rrule.SU,
}

// dayTags indexes rrule weekday numbers, Monday first.
var dayTags = []string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

var frequencies = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

// ROption converts p into rrule options anchored at dtstart. For MONTHLY
// patterns carrying both weekNumber+days and monthDay, the weekday form wins.
func (p *Pattern) ROption(dtstart time.Time) (rrule.ROption, error) {
	freq, ok := frequencies[p.Frequency]
	if !ok {
		return rrule.ROption{}, fmt.Errorf("%q: %w", p.Frequency, ErrUnsupportedFrequency)
	}
	opt := rrule.ROption{
		Freq:     freq,
		Dtstart:  dtstart,
		Interval: p.Interval,
	}
	if opt.Interval < 1 {
		opt.Interval = 1
	}
	if p.Until != nil {
		opt.Until = *p.Until
	}
	if p.Count != nil {
		opt.Count = *p.Count
	}

	days := make([]rrule.Weekday, 0, len(p.Days))
	for _, d := range p.Days {
		wd, ok := weekdays[strings.ToUpper(d)]
		if !ok {
			return rrule.ROption{}, fmt.Errorf("%q: %w", d, ErrUnknownWeekday)
		}
		days = append(days, wd)
	}

	switch {
	case p.Frequency == Monthly && p.WeekNumber != nil && len(days) > 0:
		for i := range days {
			days[i] = days[i].Nth(*p.WeekNumber)
		}
		opt.Byweekday = days
	case p.Frequency == Monthly && p.MonthDay != nil:
		opt.Bymonthday = []int{*p.MonthDay}
	case len(days) > 0:
		opt.Byweekday = days
	}
	return opt, nil
}

func (p *Pattern) RRule(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := p.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule: %w", err)
	}
	return r, nil
}

// ProviderRules renders p as RRULE and EXDATE lines for the remote calendar.
func (p *Pattern) ProviderRules(dtstart time.Time) ([]string, error) {
	opt, err := p.ROption(dtstart)
	if err != nil {
		return nil, err
	}
	lines := []string{"RRULE:" + opt.RRuleString()}
	if len(p.Exceptions) > 0 {
		dates := make([]string, 0, len(p.Exceptions))
		for _, e := range p.Exceptions {
			dates = append(dates, e.UTC().Format(exdateLayout))
		}
		lines = append(lines, "EXDATE:"+strings.Join(dates, ","))
	}
	return lines, nil
}

// FromProviderRules builds a pattern from RRULE/EXDATE lines. It returns nil
// when the lines carry no RRULE.
func FromProviderRules(lines []string, loc *time.Location) (*Pattern, error) {
	var p *Pattern
	var exceptions []time.Time
	for _, line := range lines {
		name, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		params := strings.Split(name, ";")
		switch strings.ToUpper(params[0]) {
		case "RRULE":
			opt, err := rrule.StrToROptionInLocation(value, loc)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %q: %w", line, err)
			}
			p = fromROption(opt, loc)
		case "EXDATE":
			exLoc := loc
			for _, param := range params[1:] {
				if k, v, ok := strings.Cut(param, "="); ok && strings.EqualFold(k, "TZID") {
					if l, err := time.LoadLocation(v); err == nil {
						exLoc = l
					}
				}
			}
			for _, v := range strings.Split(value, ",") {
				t, err := parseExdate(strings.TrimSpace(v), exLoc)
				if err != nil {
					return nil, fmt.Errorf("failed to parse %q: %w", line, err)
				}
				exceptions = append(exceptions, t.In(loc))
			}
		}
	}
	if p == nil {
		return nil, nil
	}
	sort.Slice(exceptions, func(i, j int) bool { return exceptions[i].Before(exceptions[j]) })
	p.Exceptions = append(p.Exceptions, exceptions...)
	return p, nil
}

func fromROption(opt *rrule.ROption, loc *time.Location) *Pattern {
	p := &Pattern{Interval: opt.Interval, Exceptions: []time.Time{}}
	for f, rf := range frequencies {
		if rf == opt.Freq {
			p.Frequency = f
		}
	}
	if p.Frequency == "" {
		p.Frequency = Frequency(fmt.Sprint(opt.Freq))
	}
	if p.Interval < 1 {
		p.Interval = 1
	}
	if !opt.Until.IsZero() {
		u := opt.Until.In(loc)
		p.Until = &u
	}
	if opt.Count > 0 {
		c := opt.Count
		p.Count = &c
	}
	if len(opt.Bymonthday) > 0 && opt.Bymonthday[0] > 0 {
		md := clamp(opt.Bymonthday[0], 1, 31)
		p.MonthDay = &md
	}
	for i := range opt.Byweekday {
		wd := opt.Byweekday[i]
		p.Days = append(p.Days, dayTags[wd.Day()])
		if n := wd.N(); n > 0 && p.WeekNumber == nil {
			n = clamp(n, 1, 5)
			p.WeekNumber = &n
		}
	}
	return p
}

func parseExdate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(exdateLayout, v); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("20060102T150405", v, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation("20060102", v, loc)
}
