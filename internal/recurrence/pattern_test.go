package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func TestNormalize(t *testing.T) {
	loc := losAngeles(t)
	n := NewNormalizer(loc)

	t.Run("weekly monday", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "weekly", Days: []string{"monday"}})
		require.NotNil(t, p)
		require.Equal(t, Weekly, p.Frequency)
		require.Equal(t, 1, p.Interval)
		require.Equal(t, []string{"MONDAY"}, p.Days)
		require.Nil(t, p.Until)
		require.Nil(t, p.Count)
		require.Empty(t, p.Exceptions)
	})

	t.Run("absent", func(t *testing.T) {
		require.Nil(t, n.Normalize(nil))
		require.Nil(t, n.Normalize(&Guess{Frequency: "  "}))
	})

	t.Run("unknown frequency passes through", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "fortnightly", Days: []string{"mon"}})
		require.Equal(t, Frequency("FORTNIGHTLY"), p.Frequency)
		require.False(t, p.Frequency.Known())
		require.Nil(t, p.Days)
	})

	t.Run("weekday daily", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "daily", Weekdays: true})
		require.Equal(t, []string{"MON", "TUE", "WED", "THU", "FRI"}, p.Days)

		p = n.Normalize(&Guess{Frequency: "weekly", Weekdays: true})
		require.Nil(t, p.Days)
	})

	t.Run("interval", func(t *testing.T) {
		require.Equal(t, 2, n.Normalize(&Guess{Frequency: "WEEKLY", Interval: "2"}).Interval)
		require.Equal(t, 3, n.Normalize(&Guess{Frequency: "WEEKLY", Interval: "3.0"}).Interval)
		require.Equal(t, 1, n.Normalize(&Guess{Frequency: "WEEKLY", Interval: "0"}).Interval)
		require.Equal(t, 1, n.Normalize(&Guess{Frequency: "WEEKLY", Interval: "every other"}).Interval)
	})

	t.Run("monthly clamps", func(t *testing.T) {
		tests := []struct {
			monthDay, weekNumber string
			wantDay, wantWeek    int
		}{
			{"40", "9", 31, 5},
			{"-3", "0", 1, 1},
			{"15", "2", 15, 2},
		}
		for _, tt := range tests {
			p := n.Normalize(&Guess{
				Frequency:  "monthly",
				MonthDay:   tt.monthDay,
				WeekNumber: tt.weekNumber,
				Days:       []string{"tu"},
			})
			require.Equal(t, Monthly, p.Frequency)
			require.Equal(t, tt.wantDay, *p.MonthDay)
			require.Equal(t, tt.wantWeek, *p.WeekNumber)
			require.Equal(t, []string{"TU"}, p.Days)
		}
	})

	t.Run("monthly day only", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "MONTHLY", MonthDay: "15", Days: []string{"mo"}})
		require.Equal(t, 15, *p.MonthDay)
		require.Nil(t, p.WeekNumber)
		require.Nil(t, p.Days)
	})

	t.Run("limits", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "daily", Until: "2025-12-31T00:00:00", Count: "5"})
		require.True(t, p.Until.Equal(time.Date(2025, 12, 31, 0, 0, 0, 0, loc)))
		require.Equal(t, loc, p.Until.Location())
		require.Equal(t, 5, *p.Count)

		p = n.Normalize(&Guess{Frequency: "daily", Until: "end of year", Count: "a few"})
		require.NotNil(t, p)
		require.Nil(t, p.Until)
		require.Nil(t, p.Count)

		p = n.Normalize(&Guess{Frequency: "daily", Count: "-2"})
		require.Nil(t, p.Count)
	})

	t.Run("exceptions", func(t *testing.T) {
		p := n.Normalize(&Guess{
			Frequency:  "weekly",
			Exceptions: []string{"2025-12-25", "not a date", "2026-01-01T09:00:00Z"},
		})
		require.Len(t, p.Exceptions, 2)
		require.True(t, p.Exceptions[0].Equal(time.Date(2025, 12, 25, 0, 0, 0, 0, loc)))
		require.True(t, p.Exceptions[1].Equal(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)))
	})

	t.Run("skip flags", func(t *testing.T) {
		p := n.Normalize(&Guess{Frequency: "weekly", SkipHolidays: true, SkipWeekends: true})
		require.True(t, p.SkipHolidays)
		require.True(t, p.SkipWeekends)
	})
}

func TestEncodeDecode(t *testing.T) {
	loc := losAngeles(t)
	n := NewNormalizer(loc)
	p := n.Normalize(&Guess{Frequency: "monthly", WeekNumber: "1", Days: []string{"monday"}, Count: "3"})

	s, err := p.Encode()
	require.NoError(t, err)
	require.Contains(t, s, `"weekNumber":1`)
	require.Contains(t, s, `"frequency":"MONTHLY"`)

	decoded, err := Decode(s)
	require.NoError(t, err)
	require.Equal(t, p.Frequency, decoded.Frequency)
	require.Equal(t, p.Days, decoded.Days)
	require.Equal(t, *p.WeekNumber, *decoded.WeekNumber)
	require.Equal(t, *p.Count, *decoded.Count)

	_, err = Decode("")
	require.ErrorIs(t, err, ErrEmptyPattern)
	_, err = Decode("{broken")
	require.Error(t, err)

	var nilPattern *Pattern
	_, err = nilPattern.Encode()
	require.ErrorIs(t, err, ErrEmptyPattern)
}
