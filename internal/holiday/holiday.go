// Package holiday answers holiday and business-day questions for US federal
// holidays plus a fixed set of popular observances.
package holiday

import (
	"sync"
	"time"
)

type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func civil(t time.Time) civilDate {
	return civilDate{t.Year(), t.Month(), t.Day()}
}

// maxCachedYears bounds the per-year table cache; it is dropped when full.
const maxCachedYears = 16

// Calendar evaluates dates in a fixed location. Safe for concurrent use.
type Calendar struct {
	loc   *time.Location
	mu    sync.Mutex
	years map[int]map[civilDate]string
}

func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc, years: make(map[int]map[civilDate]string)}
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.HolidayName(t)
	return ok
}

// HolidayName returns the holiday falling on t's civil date. Federal
// holidays win over observances sharing the same date.
func (c *Calendar) HolidayName(t time.Time) (string, bool) {
	d := civil(t.In(c.loc))
	name, ok := c.table(d.year)[d]
	return name, ok
}

// HolidaysBetween scans [start, end] day by day and returns the holidays in date order.
func (c *Calendar) HolidaysBetween(start, end time.Time) []Holiday {
	from := c.midnight(start)
	to := c.midnight(end)
	result := make([]Holiday, 0)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if name, ok := c.HolidayName(d); ok {
			result = append(result, Holiday{Date: d, Name: name})
		}
	}
	return result
}

func (c *Calendar) IsBusinessDay(t time.Time) bool {
	t = t.In(c.loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// NextBusinessDay returns the first business day strictly after t, keeping t's time of day.
func (c *Calendar) NextBusinessDay(t time.Time) time.Time {
	next := t.In(c.loc).AddDate(0, 0, 1)
	for !c.IsBusinessDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (c *Calendar) midnight(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

func (c *Calendar) table(year int) map[civilDate]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.years[year]; ok {
		return t
	}
	t := buildYear(year)
	if len(c.years) >= maxCachedYears {
		c.years = make(map[int]map[civilDate]string, maxCachedYears)
	}
	c.years[year] = t
	return t
}

func buildYear(year int) map[civilDate]string {
	days := make(map[civilDate]string)
	federal := func(d civilDate, name string) {
		days[d] = name
		if obs, ok := observed(d); ok && obs.year == year {
			if _, taken := days[obs]; !taken {
				days[obs] = name + " (observed)"
			}
		}
	}

	federal(civilDate{year, time.January, 1}, "New Year's Day")
	federal(nthWeekday(year, time.January, time.Monday, 3), "Martin Luther King Jr. Day")
	federal(nthWeekday(year, time.February, time.Monday, 3), "Washington's Birthday")
	federal(lastWeekday(year, time.May, time.Monday), "Memorial Day")
	if year >= 2021 {
		federal(civilDate{year, time.June, 19}, "Juneteenth National Independence Day")
	}
	federal(civilDate{year, time.July, 4}, "Independence Day")
	federal(nthWeekday(year, time.September, time.Monday, 1), "Labor Day")
	federal(nthWeekday(year, time.October, time.Monday, 2), "Columbus Day")
	federal(civilDate{year, time.November, 11}, "Veterans Day")
	federal(nthWeekday(year, time.November, time.Thursday, 4), "Thanksgiving Day")
	federal(civilDate{year, time.December, 25}, "Christmas Day")

	// Next year's New Year's Day may be observed on Dec 31.
	if obs, ok := observed(civilDate{year + 1, time.January, 1}); ok && obs.year == year {
		days[obs] = "New Year's Day (observed)"
	}

	blackFriday := addDays(nthWeekday(year, time.November, time.Thursday, 4), 1)
	observances := []struct {
		date civilDate
		name string
	}{
		{civilDate{year, time.February, 14}, "Valentine's Day"},
		{civilDate{year, time.October, 31}, "Halloween"},
		{blackFriday, "Black Friday"},
		{addDays(blackFriday, 3), "Cyber Monday"},
		{civilDate{year, time.December, 24}, "Christmas Eve"},
		{civilDate{year, time.December, 31}, "New Year's Eve"},
	}
	for _, o := range observances {
		if _, ok := days[o.date]; !ok {
			days[o.date] = o.name
		}
	}
	return days
}

// observed moves a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(d civilDate) (civilDate, bool) {
	switch toTime(d).Weekday() {
	case time.Saturday:
		return addDays(d, -1), true
	case time.Sunday:
		return addDays(d, 1), true
	default:
		return civilDate{}, false
	}
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int) civilDate {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, 1)
	}
	return civil(t.AddDate(0, 0, 7*(n-1)))
}

func lastWeekday(year int, month time.Month, wd time.Weekday) civilDate {
	t := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for t.Weekday() != wd {
		t = t.AddDate(0, 0, -1)
	}
	return civil(t)
}

func addDays(d civilDate, n int) civilDate {
	return civil(toTime(d).AddDate(0, 0, n))
}

func toTime(d civilDate) time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}
