package recurrence

import (
	"errors"
	"time"
)

var ErrNoHolidayCalendar = errors.New("holiday calendar required to skip holidays")

const defaultMaxOccurrences = 1000

type HolidayChecker interface {
	IsHoliday(t time.Time) bool
}

type ExpandOptions struct {
	From     time.Time
	To       time.Time
	Holidays HolidayChecker
	// Max caps the number of returned occurrences, 0 means the default cap.
	Max int
}

// Expand lists occurrence starts of p in [From, To]. Exceptions match by
// civil date in dtstart's location; skip flags drop weekend and holiday
// occurrences rather than moving them. A frequency without a rule expands to
// nothing.
func Expand(p *Pattern, dtstart time.Time, opts ExpandOptions) ([]time.Time, error) {
	if p == nil {
		return nil, ErrEmptyPattern
	}
	if !p.Frequency.Known() {
		return []time.Time{}, nil
	}
	if p.SkipHolidays && opts.Holidays == nil {
		return nil, ErrNoHolidayCalendar
	}
	r, err := p.RRule(dtstart)
	if err != nil {
		return nil, err
	}
	limit := opts.Max
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	loc := dtstart.Location()
	excluded := make(map[[3]int]struct{}, len(p.Exceptions))
	for _, e := range p.Exceptions {
		excluded[dateKey(e.In(loc))] = struct{}{}
	}

	out := make([]time.Time, 0)
	for _, occ := range r.Between(opts.From, opts.To, true) {
		if _, ok := excluded[dateKey(occ.In(loc))]; ok {
			continue
		}
		if p.SkipWeekends && isWeekend(occ.In(loc)) {
			continue
		}
		if p.SkipHolidays && opts.Holidays.IsHoliday(occ) {
			continue
		}
		out = append(out, occ)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FirstOccurrence returns the first occurrence at or after dtstart within a
// year, honouring exceptions and skip flags.
func FirstOccurrence(p *Pattern, dtstart time.Time, holidays HolidayChecker) (time.Time, bool, error) {
	occ, err := Expand(p, dtstart, ExpandOptions{
		From:     dtstart,
		To:       dtstart.AddDate(1, 0, 0),
		Holidays: holidays,
		Max:      1,
	})
	if err != nil || len(occ) == 0 {
		return time.Time{}, false, err
	}
	return occ[0], true, nil
}

func dateKey(t time.Time) [3]int {
	return [3]int{t.Year(), int(t.Month()), t.Day()}
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
