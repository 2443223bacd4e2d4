package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTruncateToDay(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	d := time.Date(2025, 2, 17, 9, 30, 12, 5, loc)
	require.Equal(t, time.Date(2025, 2, 17, 0, 0, 0, 0, loc), TruncateToDay(d))
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		a, b time.Time
		days int
	}{
		{time.Date(2025, 2, 17, 23, 0, 0, 0, time.UTC), time.Date(2025, 2, 18, 1, 0, 0, 0, time.UTC), 1},
		{time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), -2},
	}
	for _, tt := range tests {
		require.Equal(t, tt.days, DaysBetween(tt.a, tt.b))
	}
}

func TestOverlaps(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.True(t, Overlaps(base, base.Add(time.Hour), base.Add(30*time.Minute), base.Add(2*time.Hour)))
	require.False(t, Overlaps(base, base.Add(time.Hour), base.Add(time.Hour), base.Add(2*time.Hour)))
	require.False(t, Overlaps(base.Add(2*time.Hour), base.Add(3*time.Hour), base, base.Add(2*time.Hour)))
	require.True(t, Overlaps(base, base, base, base.Add(time.Hour)))
	require.False(t, Overlaps(base, base, base.Add(-time.Hour), base))
	require.False(t, Overlaps(base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour)))
	require.True(t, SameDay(base, base.Add(23*time.Hour), time.UTC))
}

func TestNewPassID(t *testing.T) {
	a, b := NewPassID(), NewPassID()
	require.Len(t, a, 10)
	require.NotEqual(t, a, b)
}
