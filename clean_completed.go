package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const resetMaxAttempts = 5

// ClearCompleted removes completed reservations and leaves waiting and using
// ones in place. Entries are removed one by one from the ordered list so a
// reservation added concurrently is never dropped.
func (qs *QueueService) ClearCompleted(ctx context.Context) (int, error) {
	all, err := qs.List(ctx)
	if err != nil {
		return 0, err
	}

	var completed []string
	for _, r := range all {
		if r.Status == StatusCompleted {
			completed = append(completed, r.ID)
		}
	}

	if len(completed) == 0 {
		return 0, nil // Nothing to clean
	}

	pipe := qs.redis.TxPipeline()
	for _, id := range completed {
		pipe.LRem(ctx, qs.listKey(), 0, id)
		pipe.Del(ctx, qs.recordKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear completed reservations: %w", err)
	}

	slog.Info("Completed reservations cleared", "removed", len(completed))
	qs.notify(ctx, EventCleared, "")
	return len(completed), nil
}

// Reset drops every reservation, the current claim and today's first-start
// marker. The list is watched so a reservation added mid-reset is either
// removed with the rest or the reset is retried.
func (qs *QueueService) Reset(ctx context.Context) error {
	var removed int
	reset := func(tx *redis.Tx) error {
		ids, err := tx.LRange(ctx, qs.listKey(), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to get reservation ids: %w", err)
		}

		keys := []string{
			qs.listKey(),
			qs.currentKey(),
			qs.startedKey(qs.schedule.Day(qs.now())),
		}
		for _, id := range ids {
			keys = append(keys, qs.recordKey(id))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		removed = len(ids)
		return err
	}

	var err error
	for attempt := 0; attempt < resetMaxAttempts; attempt++ {
		err = qs.redis.Watch(ctx, reset, qs.listKey())
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to reset queue: %w", err)
	}

	slog.Info("Queue reset", "reservationsRemoved", removed)
	qs.notify(ctx, EventReset, "")
	return nil
}
