package main

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueService_ClearCompleted(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	removed, err := f.qs.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	a := f.add(t, "Aiko", 1)
	f.add(t, "Ben", 3)
	f.add(t, "Chika", 5)

	_, err = f.qs.PromoteNext(ctx)
	require.NoError(t, err)
	_, err = f.qs.Complete(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.qs.PromoteNext(ctx)
	require.NoError(t, err)

	removed, err = f.qs.ClearCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, f.mr.Exists("test:reservation:"+a.ID))

	all, err := f.qs.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Ben", all[0].Name)
	assert.Equal(t, StatusUsing, all[0].Status)
	assert.Equal(t, "Chika", all[1].Name)
	assert.Equal(t, StatusWaiting, all[1].Status)

	types := f.observer.Types()
	assert.Equal(t, EventCleared, types[len(types)-1])
}

func TestQueueService_Reset(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	f.add(t, "Aiko", 1)
	f.add(t, "Ben", 3)
	_, err := f.qs.PromoteNext(ctx)
	require.NoError(t, err)

	require.NoError(t, f.qs.Reset(ctx))

	count, err := f.qs.WaitingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	current, err := f.qs.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Empty(t, f.mr.Keys())

	types := f.observer.Types()
	assert.Equal(t, EventReset, types[len(types)-1])

	// The day starts over: the next first promotion waits for the threshold.
	f.add(t, "Chika", 5)
	r, err := f.qs.PromoteNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.StartTime.Equal(at(12, 15)))
}

func TestQueueService_ResetRetriesWhenQueueChanges(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	other := f.otherService(t)

	f.add(t, "Aiko", 1)

	added := false
	f.client.AddHook(commandHook{before: func(ctx context.Context, cmd redis.Cmder) error {
		if added || !isCommand(cmd, "lrange", "test:reservations") {
			return nil
		}
		added = true
		_, err := other.Add(ctx, "Ben", 3)
		require.NoError(t, err)
		return nil
	}})

	require.NoError(t, f.qs.Reset(ctx))
	assert.True(t, added)
	assert.Empty(t, f.mr.Keys(), "a reservation added mid-reset must not leave a record behind")
}

func TestQueueService_ResetEmpty(t *testing.T) {
	f := newQueueFixture(t)

	require.NoError(t, f.qs.Reset(context.Background()))
	assert.Equal(t, []EventType{EventReset}, f.observer.Types())
}
