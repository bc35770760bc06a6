package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "microwave"
	MaxNameLength    = 50

	// The first-promotion marker outlives its day so a promotion shortly
	// after midnight cannot race its expiry.
	startedMarkerTTL = 48 * time.Hour

	// claimTTL bounds how long a promotion may sit between claiming the
	// current slot and saving the record.
	claimTTL = 30 * time.Second
)

// PromoteScheduler arranges for PromoteNext to run shortly, off the caller's
// request path.
type PromoteScheduler interface {
	SchedulePromote(ctx context.Context) error
}

type QueueService struct {
	redis    *redis.Client
	prefix   string
	schedule Schedule
	notifier Observer
	promoter PromoteScheduler
	now      func() time.Time
}

type QueueOption func(*QueueService)

func WithKeyPrefix(prefix string) QueueOption {
	return func(qs *QueueService) { qs.prefix = prefix }
}

func WithNotifier(o Observer) QueueOption {
	return func(qs *QueueService) { qs.notifier = o }
}

func WithPromoter(p PromoteScheduler) QueueOption {
	return func(qs *QueueService) { qs.promoter = p }
}

func WithClock(now func() time.Time) QueueOption {
	return func(qs *QueueService) { qs.now = now }
}

func NewQueueService(redis *redis.Client, schedule Schedule, opts ...QueueOption) *QueueService {
	qs := &QueueService{
		redis:    redis,
		prefix:   DefaultKeyPrefix,
		schedule: schedule,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(qs)
	}
	return qs
}

func (qs *QueueService) Schedule() Schedule {
	return qs.schedule
}

func (qs *QueueService) Now() time.Time {
	return qs.now()
}

func (qs *QueueService) listKey() string {
	return fmt.Sprintf("%s:reservations", qs.prefix)
}

func (qs *QueueService) recordKey(id string) string {
	return fmt.Sprintf("%s:reservation:%s", qs.prefix, id)
}

func (qs *QueueService) currentKey() string {
	return fmt.Sprintf("%s:current", qs.prefix)
}

func (qs *QueueService) startedKey(day string) string {
	return fmt.Sprintf("%s:started:%s", qs.prefix, day)
}

func validateReservation(name string, duration int) error {
	if name == "" {
		return ErrNameInvalid.WithMessage("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameInvalid.WithMessagef("name longer than %d characters", MaxNameLength)
	}
	if !slices.Contains(AllowedDurations, duration) {
		return ErrDurationInvalid.WithMessagef("duration %d not in %v", duration, AllowedDurations)
	}
	return nil
}

// Add appends a new waiting reservation to the end of the queue.
func (qs *QueueService) Add(ctx context.Context, name string, duration int) (*Reservation, error) {
	name = strings.TrimSpace(name)
	if err := validateReservation(name, duration); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate reservation id: %w", err)
	}

	r := &Reservation{
		ID:            id.String(),
		Name:          name,
		Duration:      duration,
		TotalDuration: duration + BufferMinutes,
		CreatedAt:     qs.now(),
		Status:        StatusWaiting,
	}

	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	pipe := qs.redis.TxPipeline()
	pipe.Set(ctx, qs.recordKey(r.ID), data, 0)
	pipe.RPush(ctx, qs.listKey(), r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to add reservation: %w", err)
	}

	slog.Info("Reservation added", "id", r.ID, "duration", r.Duration)
	qs.notify(ctx, EventAdded, r.ID)
	return r, nil
}

func (qs *QueueService) Get(ctx context.Context, id string) (*Reservation, error) {
	data, err := qs.redis.Get(ctx, qs.recordKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrReservationNotFound.WithMessagef("reservation %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %s: %w", id, err)
	}

	var r Reservation
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to decode reservation %s: %w", id, err)
	}
	return &r, nil
}

// List returns every reservation in insertion order.
func (qs *QueueService) List(ctx context.Context) ([]Reservation, error) {
	ids, err := qs.redis.LRange(ctx, qs.listKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = qs.recordKey(id)
	}

	values, err := qs.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}

	reservations := make([]Reservation, 0, len(values))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			slog.Warn("Reservation record missing", "id", ids[i])
			continue
		}
		var r Reservation
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			slog.Error("Failed to unmarshal reservation", "id", ids[i], "error", err)
			continue
		}
		reservations = append(reservations, r)
	}
	return reservations, nil
}

// snapshot splits the queue into the reservation in use and the ordered
// waiting list.
func (qs *QueueService) snapshot(ctx context.Context) (*Reservation, []Reservation, error) {
	all, err := qs.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	var current *Reservation
	waiting := make([]Reservation, 0, len(all))
	for i := range all {
		switch all[i].Status {
		case StatusUsing:
			if current == nil {
				current = &all[i]
			}
		case StatusWaiting:
			waiting = append(waiting, all[i])
		}
	}
	return current, waiting, nil
}

func (qs *QueueService) Current(ctx context.Context) (*Reservation, error) {
	current, _, err := qs.snapshot(ctx)
	return current, err
}

func (qs *QueueService) Waiting(ctx context.Context) ([]Reservation, error) {
	_, waiting, err := qs.snapshot(ctx)
	return waiting, err
}

func (qs *QueueService) WaitingCount(ctx context.Context) (int, error) {
	waiting, err := qs.Waiting(ctx)
	return len(waiting), err
}

// PromoteNext moves the earliest waiting reservation to using. It returns nil
// without error when someone is already using the microwave or nobody waits.
func (qs *QueueService) PromoteNext(ctx context.Context) (*Reservation, error) {
	current, waiting, err := qs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if current != nil || len(waiting) == 0 {
		return nil, nil
	}
	next := waiting[0]

	claimed, err := qs.redis.SetNX(ctx, qs.currentKey(), next.ID, claimTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim current slot: %w", err)
	}
	if !claimed {
		qs.releaseStaleClaim(ctx)
		return nil, nil
	}

	// The snapshot may predate another promoter that has since started and
	// finished this reservation; only a record still waiting may move on.
	fresh, err := qs.Get(ctx, next.ID)
	if err != nil {
		qs.redis.Del(ctx, qs.currentKey())
		return nil, err
	}
	if fresh.Status != StatusWaiting {
		qs.redis.Del(ctx, qs.currentKey())
		return nil, nil
	}
	next = *fresh

	now := qs.now()
	day := qs.schedule.Day(now)
	startedBefore, err := qs.redis.Exists(ctx, qs.startedKey(day)).Result()
	if err != nil {
		qs.redis.Del(ctx, qs.currentKey())
		return nil, fmt.Errorf("failed to read first start marker: %w", err)
	}
	start := now
	if threshold := qs.schedule.Threshold(now); startedBefore == 0 && now.Before(threshold) {
		start = threshold
	}

	next.Status = StatusUsing
	next.StartTime = &start
	if err := qs.save(ctx, &next); err != nil {
		qs.redis.Del(ctx, qs.currentKey())
		return nil, err
	}

	// The marker is written only once the promotion is stored, so a failed
	// first promotion is retried as the first one.
	if err := qs.redis.SetNX(ctx, qs.startedKey(day), next.ID, startedMarkerTTL).Err(); err != nil {
		slog.Warn("Failed to mark first start", "id", next.ID, "error", err)
	}
	if err := qs.redis.Persist(ctx, qs.currentKey()).Err(); err != nil {
		slog.Warn("Failed to persist current claim", "id", next.ID, "error", err)
	}

	slog.Info("Reservation promoted", "id", next.ID, "startTime", start)
	qs.notify(ctx, EventPromoted, next.ID)
	return &next, nil
}

// releaseStaleClaim drops a current-slot claim whose holder is gone or
// already completed. A waiting holder is a promotion still in flight; if that
// promotion died, the claim expires on its own after claimTTL.
func (qs *QueueService) releaseStaleClaim(ctx context.Context) {
	holder, err := qs.redis.Get(ctx, qs.currentKey()).Result()
	if err != nil {
		return
	}
	r, err := qs.Get(ctx, holder)
	switch {
	case errors.Is(err, ErrReservationNotFound):
	case err != nil:
		return
	case r.Status != StatusCompleted:
		return
	}
	slog.Warn("Releasing stale current claim", "id", holder)
	qs.redis.Del(ctx, qs.currentKey())
}

// AutoAdvance promotes the next reservation once the daily threshold passed.
func (qs *QueueService) AutoAdvance(ctx context.Context) (*Reservation, error) {
	if !qs.schedule.Started(qs.now()) {
		return nil, nil
	}
	return qs.PromoteNext(ctx)
}

// Complete marks the reservation in use as completed and schedules the next
// promotion without waiting for it.
func (qs *QueueService) Complete(ctx context.Context, id string) (*Reservation, error) {
	r, err := qs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusUsing {
		return nil, ErrInvalidTransition.WithMessagef("reservation %s is %s", id, r.Status)
	}

	now := qs.now()
	r.Status = StatusCompleted
	r.CompletedAt = &now

	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	pipe := qs.redis.TxPipeline()
	pipe.Set(ctx, qs.recordKey(r.ID), data, 0)
	pipe.Del(ctx, qs.currentKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to complete reservation: %w", err)
	}

	slog.Info("Reservation completed", "id", r.ID)
	qs.notify(ctx, EventCompleted, r.ID)

	if qs.promoter != nil {
		if err := qs.promoter.SchedulePromote(ctx); err != nil {
			slog.Error("qs.promoter.SchedulePromote()", "error", err)
		}
	}
	return r, nil
}

// CompleteCurrent completes whatever is in use; nil when nothing is.
func (qs *QueueService) CompleteCurrent(ctx context.Context) (*Reservation, error) {
	current, err := qs.Current(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	return qs.Complete(ctx, current.ID)
}

// Position reports where a reservation stands: its 1-based place among the
// waiting reservations with an ETA, or 0 once it is using or completed.
func (qs *QueueService) Position(ctx context.Context, id string) (*PositionInfo, error) {
	r, err := qs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	info := &PositionInfo{ID: r.ID, Status: r.Status}
	if r.Status != StatusWaiting {
		return info, nil
	}

	current, waiting, err := qs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(waiting, func(w Reservation) bool { return w.ID == id })
	if idx < 0 {
		return info, nil
	}

	info.Position = idx + 1
	eta, err := EstimateStart(qs.now(), qs.schedule, current, waiting, info.Position)
	if err != nil {
		return nil, err
	}
	info.EstimatedStart = &eta
	return info, nil
}

func (qs *QueueService) Estimate(ctx context.Context, position int) (*Estimate, error) {
	current, waiting, err := qs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	eta, err := EstimateStart(qs.now(), qs.schedule, current, waiting, position)
	if err != nil {
		return nil, err
	}
	return &Estimate{Position: position, EstimatedStart: eta}, nil
}

func (qs *QueueService) CurrentStatus(ctx context.Context) (*CurrentStatus, error) {
	current, err := qs.Current(ctx)
	if err != nil {
		return nil, err
	}
	return currentStatus(qs.now(), current), nil
}

// Board is everything the display page renders in one read.
func (qs *QueueService) Board(ctx context.Context) (*Board, error) {
	current, waiting, err := qs.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := qs.now()
	return &Board{
		Current:      currentStatus(now, current),
		Waiting:      estimateAll(now, qs.schedule, current, waiting),
		WaitingCount: len(waiting),
		Started:      qs.schedule.Started(now),
	}, nil
}

func (qs *QueueService) save(ctx context.Context, r *Reservation) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := qs.redis.Set(ctx, qs.recordKey(r.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save reservation %s: %w", r.ID, err)
	}
	return nil
}

func (qs *QueueService) notify(ctx context.Context, t EventType, id string) {
	if qs.notifier == nil {
		return
	}
	qs.notifier.Notify(ctx, QueueEvent{Type: t, ReservationID: id, At: qs.now()})
}
