package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypePromoteNext    = "queue:promote"
	TypeAutoAdvance    = "queue:advance"
	TypeClearCompleted = "queue:clear_completed"
	TypeRelayEvent     = "notify:relay"
)

const taskMaxRetry = 3

// TaskEnqueuer is the part of *asynq.Client the queue needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Task payloads
type RelayEventPayload struct {
	Event QueueEvent `json:"event"`
}

// taskPromoter schedules a delayed promote task after a completion.
type taskPromoter struct {
	client TaskEnqueuer
	delay  time.Duration
}

func NewTaskPromoter(client TaskEnqueuer, delay time.Duration) PromoteScheduler {
	return &taskPromoter{client: client, delay: delay}
}

func (p *taskPromoter) SchedulePromote(ctx context.Context) error {
	task := asynq.NewTask(TypePromoteNext, nil)
	if _, err := p.client.EnqueueContext(ctx, task, asynq.ProcessIn(p.delay), asynq.MaxRetry(taskMaxRetry), asynq.Queue("critical")); err != nil {
		return fmt.Errorf("enqueue %s: %w", TypePromoteNext, err)
	}
	return nil
}

// RealtimeRelay is an observer that hands queue events to a background task
// for publishing over PubNub.
type RealtimeRelay struct {
	client TaskEnqueuer
}

func NewRealtimeRelay(client TaskEnqueuer) *RealtimeRelay {
	return &RealtimeRelay{client: client}
}

func (r *RealtimeRelay) Notify(ctx context.Context, event QueueEvent) {
	payloadByte, err := json.Marshal(RelayEventPayload{Event: event})
	if err != nil {
		slog.Error("json.Marshal(RelayEventPayload)", "error", err)
		return
	}
	task := asynq.NewTask(TypeRelayEvent, payloadByte)
	if _, err := r.client.EnqueueContext(ctx, task, asynq.MaxRetry(taskMaxRetry)); err != nil {
		slog.Error("enqueue relay event", "type", event.Type, "error", err)
	}
}

// Task handlers
func (h *Handlers) HandlePromoteNext(ctx context.Context, t *asynq.Task) error {
	r, err := h.queueService.PromoteNext(ctx)
	if err != nil {
		return err
	}
	if r != nil {
		slog.Info("HandlePromoteNext", "id", r.ID)
	}
	return nil
}

func (h *Handlers) HandleAutoAdvance(ctx context.Context, t *asynq.Task) error {
	_, err := h.queueService.AutoAdvance(ctx)
	return err
}

func (h *Handlers) HandleClearCompleted(ctx context.Context, t *asynq.Task) error {
	removed, err := h.queueService.ClearCompleted(ctx)
	if err != nil {
		return err
	}
	slog.Info("HandleClearCompleted", "removed", removed)
	return nil
}

func (h *Handlers) HandleRelayEvent(ctx context.Context, t *asynq.Task) error {
	var payload RelayEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal relay payload: %v: %w", err, asynq.SkipRetry)
	}
	if h.pubNub == nil {
		return nil
	}

	if _, err := h.pubNub.Publish(ctx, h.cfg.PubNubChannel, payload.Event); err != nil {
		return fmt.Errorf("h.pubNub.Publish(channel: %v): %w", h.cfg.PubNubChannel, err)
	}
	return nil
}
