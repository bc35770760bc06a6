package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	c, err := ParseClockTime("12:15")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 12, Minute: 15}, c)
	assert.Equal(t, "12:15", c.String())

	c, err = ParseClockTime("08:30")
	require.NoError(t, err)
	assert.Equal(t, "08:30", c.String())

	for _, bad := range []string{"", "noon", "25:00", "12:60", "12.15"} {
		_, err := ParseClockTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedule_ThresholdUsesLocalDay(t *testing.T) {
	s := testSchedule()

	// 02:00 UTC is 11:00 in Tokyo on the same date.
	now := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	assert.True(t, s.Threshold(now).Equal(at(12, 15)))

	// 16:00 UTC is already the next day in Tokyo.
	late := time.Date(2026, 10, 15, 16, 0, 0, 0, time.UTC)
	assert.True(t, s.Threshold(late).Equal(time.Date(2026, 10, 16, 12, 15, 0, 0, testLoc)))
}

func TestSchedule_Started(t *testing.T) {
	s := testSchedule()

	assert.False(t, s.Started(at(12, 14)))
	assert.True(t, s.Started(at(12, 15)))
	assert.True(t, s.Started(at(17, 0)))
}

func TestSchedule_Accepting(t *testing.T) {
	s := testSchedule()

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before window", at(8, 29), false},
		{"window opens", at(8, 30), true},
		{"mid morning", at(10, 0), true},
		{"last minute", at(12, 30).Add(59 * time.Second), true},
		{"window closed", at(12, 31), false},
		{"evening", at(18, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Accepting(tt.now))
		})
	}
}

func TestSchedule_Token(t *testing.T) {
	s := testSchedule()

	assert.Equal(t, "2026-10-15", s.TokenFor(at(9, 0)))
	assert.True(t, s.ValidToken("2026-10-15", at(9, 0)))
	assert.False(t, s.ValidToken("2026-10-14", at(9, 0)))
	assert.False(t, s.ValidToken("", at(9, 0)))

	// Token follows the configured zone, not UTC.
	utcEvening := time.Date(2026, 10, 15, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-10-16", s.TokenFor(utcEvening))
}

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	require.NotNil(t, s.Location)
	assert.Equal(t, ClockTime{Hour: 12, Minute: 15}, s.DailyStart)
	assert.Equal(t, ClockTime{Hour: 8, Minute: 30}, s.AcceptFrom)
	assert.Equal(t, ClockTime{Hour: 12, Minute: 30}, s.AcceptUntil)
}
