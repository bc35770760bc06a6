package main

import (
	"time"
)

type ReservationStatus string

const (
	StatusWaiting   ReservationStatus = "waiting"
	StatusUsing     ReservationStatus = "using"
	StatusCompleted ReservationStatus = "completed"
)

// BufferMinutes is added to every requested duration for cleanup between users.
const BufferMinutes = 1

// AllowedDurations are the usage lengths, in minutes, a user can pick.
var AllowedDurations = []int{1, 3, 5}

type Reservation struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Duration      int               `json:"duration"`       // minutes requested
	TotalDuration int               `json:"total_duration"` // duration + buffer
	CreatedAt     time.Time         `json:"created_at"`
	StartTime     *time.Time        `json:"start_time,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	Status        ReservationStatus `json:"status"`
}

func (r *Reservation) total() time.Duration {
	return time.Duration(r.TotalDuration) * time.Minute
}

// CurrentStatus is what the display board shows for the reservation in use.
type CurrentStatus struct {
	*Reservation
	RemainingSeconds int       `json:"remaining_seconds"`
	EndsAt           time.Time `json:"ends_at"`
}

type WaitingEntry struct {
	Reservation
	Position       int       `json:"position"`
	EstimatedStart time.Time `json:"estimated_start"`
}

type Board struct {
	Current      *CurrentStatus `json:"current"`
	Waiting      []WaitingEntry `json:"waiting"`
	WaitingCount int            `json:"waiting_count"`
	Started      bool           `json:"started"`
}

type PositionInfo struct {
	ID             string            `json:"id"`
	Status         ReservationStatus `json:"status"`
	Position       int               `json:"position"`
	EstimatedStart *time.Time        `json:"estimated_start,omitempty"`
}

type Estimate struct {
	Position       int       `json:"position"`
	EstimatedStart time.Time `json:"estimated_start"`
}

type RegistrationLink struct {
	Token     string `json:"token"`
	URL       string `json:"url"`
	Accepting bool   `json:"accepting"`
}

type EventType string

const (
	EventAdded     EventType = "added"
	EventPromoted  EventType = "promoted"
	EventCompleted EventType = "completed"
	EventCleared   EventType = "cleared"
	EventReset     EventType = "reset"
)

// QueueEvent is sent to every observer after a mutation has been persisted.
type QueueEvent struct {
	Type          EventType `json:"type"`
	ReservationID string    `json:"reservation_id,omitempty"`
	At            time.Time `json:"at"`
}
