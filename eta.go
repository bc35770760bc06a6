package main

import (
	"time"
)

// Remaining is how much of the current reservation's slot is left, floored at
// zero. A start time in the future (first user waiting for the daily
// threshold) yields more than the full slot.
func Remaining(now time.Time, current *Reservation) time.Duration {
	if current == nil {
		return 0
	}
	elapsed := time.Duration(0)
	if current.StartTime != nil {
		elapsed = now.Sub(*current.StartTime)
	}
	left := current.total() - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// queueStart is when the first waiting reservation can begin: once the current
// one drains, or with nobody using, now but never before the daily threshold.
func queueStart(now time.Time, sched Schedule, current *Reservation) time.Time {
	if current != nil {
		return now.Add(Remaining(now, current))
	}
	if threshold := sched.Threshold(now); now.Before(threshold) {
		return threshold
	}
	return now
}

// EstimateStart returns the expected start time of the waiting reservation at
// the given 1-based position.
func EstimateStart(now time.Time, sched Schedule, current *Reservation, waiting []Reservation, position int) (time.Time, error) {
	if position < 1 {
		return time.Time{}, ErrInvalidPosition.WithMessagef("position %d", position)
	}

	at := queueStart(now, sched, current)
	for i := 0; i < position-1 && i < len(waiting); i++ {
		at = at.Add(waiting[i].total())
	}
	return at, nil
}

// estimateAll computes every waiting entry's ETA in one pass.
func estimateAll(now time.Time, sched Schedule, current *Reservation, waiting []Reservation) []WaitingEntry {
	entries := make([]WaitingEntry, 0, len(waiting))
	if len(waiting) == 0 {
		return entries
	}

	at := queueStart(now, sched, current)
	for i, r := range waiting {
		entries = append(entries, WaitingEntry{
			Reservation:    r,
			Position:       i + 1,
			EstimatedStart: at,
		})
		at = at.Add(r.total())
	}
	return entries
}

func currentStatus(now time.Time, current *Reservation) *CurrentStatus {
	if current == nil {
		return nil
	}
	left := Remaining(now, current)
	return &CurrentStatus{
		Reservation:      current,
		RemainingSeconds: int(left / time.Second),
		EndsAt:           now.Add(left),
	}
}
