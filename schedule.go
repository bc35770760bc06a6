package main

import (
	"fmt"
	"time"
)

const tokenLayout = "2006-01-02"

// ClockTime is a wall-clock time of day, minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

// Schedule holds the daily rules of the microwave: when the first user may
// start, when registration is open and what today's access token is.
type Schedule struct {
	Location    *time.Location
	DailyStart  ClockTime
	AcceptFrom  ClockTime
	AcceptUntil ClockTime
}

func DefaultSchedule() Schedule {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.FixedZone("JST", 9*60*60)
	}
	return Schedule{
		Location:    loc,
		DailyStart:  ClockTime{Hour: 12, Minute: 15},
		AcceptFrom:  ClockTime{Hour: 8, Minute: 30},
		AcceptUntil: ClockTime{Hour: 12, Minute: 30},
	}
}

func (s Schedule) local(now time.Time) time.Time {
	if s.Location == nil {
		return now
	}
	return now.In(s.Location)
}

// Threshold returns the daily start time on the same local day as now.
func (s Schedule) Threshold(now time.Time) time.Time {
	l := s.local(now)
	return time.Date(l.Year(), l.Month(), l.Day(), s.DailyStart.Hour, s.DailyStart.Minute, 0, 0, l.Location())
}

// Started reports whether the daily threshold has been reached.
func (s Schedule) Started(now time.Time) bool {
	return !now.Before(s.Threshold(now))
}

// Accepting reports whether now falls inside the registration window. Both
// ends are inclusive at minute precision, so 12:30:59 still accepts.
func (s Schedule) Accepting(now time.Time) bool {
	l := s.local(now)
	m := l.Hour()*60 + l.Minute()
	return m >= s.AcceptFrom.minutes() && m <= s.AcceptUntil.minutes()
}

// Day is the local calendar date of now, also used as the registration token.
func (s Schedule) Day(now time.Time) string {
	return s.local(now).Format(tokenLayout)
}

func (s Schedule) TokenFor(now time.Time) string {
	return s.Day(now)
}

// ValidToken compares token against today's date string. This is a weak
// gate: anyone who knows the date format can guess it.
func (s Schedule) ValidToken(token string, now time.Time) bool {
	return token != "" && token == s.TokenFor(now)
}
