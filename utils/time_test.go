package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalDate(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	t.Run("UTCEveningIsNextSeoulDay", func(t *testing.T) {
		// 2025-03-10 16:30 UTC is 2025-03-11 01:30 in Seoul
		ts := time.Date(2025, 3, 10, 16, 30, 0, 0, time.UTC)
		date := LocalDate(ts, seoul)
		assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("UTCMorningIsSameSeoulDay", func(t *testing.T) {
		// 2025-03-10 08:00 UTC is 2025-03-10 17:00 in Seoul
		ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
		date := LocalDate(ts, seoul)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), date)
	})

	t.Run("UTCZoneIsIdentityForDate", func(t *testing.T) {
		ts := time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC)
		date := LocalDate(ts, time.UTC)
		assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), date)
	})
}

func TestLocalDayBounds(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	date := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	start, end := LocalDayBounds(date, seoul)

	// Seoul is UTC+9 year round
	assert.Equal(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC), end)
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestLocalDateRoundTripsThroughBounds(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	start, end := LocalDayBounds(date, seoul)

	// Every instant inside the bounds maps back to the same local date
	assert.Equal(t, date, LocalDate(start, seoul))
	assert.Equal(t, date, LocalDate(end.Add(-time.Second), seoul))
	assert.NotEqual(t, date, LocalDate(end, seoul))
}
