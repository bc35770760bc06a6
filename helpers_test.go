package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testLoc = time.FixedZone("JST", 9*60*60)

func testSchedule() Schedule {
	return Schedule{
		Location:    testLoc,
		DailyStart:  ClockTime{Hour: 12, Minute: 15},
		AcceptFrom:  ClockTime{Hour: 8, Minute: 30},
		AcceptUntil: ClockTime{Hour: 12, Minute: 30},
	}
}

// at is a wall-clock time on the fixed test day.
func at(hour, minute int) time.Time {
	return time.Date(2026, 10, 15, hour, minute, 0, 0, testLoc)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []QueueEvent
}

func (o *recordingObserver) Notify(_ context.Context, event QueueEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	types := make([]EventType, len(o.events))
	for i, e := range o.events {
		types[i] = e.Type
	}
	return types
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) TaskTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]string, len(f.tasks))
	for i, t := range f.tasks {
		types[i] = t.Type()
	}
	return types
}

type fakePubnub struct {
	mu        sync.Mutex
	channels  []string
	published []any
	err       error
}

func (p *fakePubnub) Publish(_ context.Context, channel string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.channels = append(p.channels, channel)
	p.published = append(p.published, payload)
	return "17600000000000000", nil
}

func (p *fakePubnub) GenGrantToken(_ context.Context, channel string) (string, error) {
	return "grant-" + channel, p.err
}

type queueFixture struct {
	qs       *QueueService
	mr       *miniredis.Miniredis
	client   *redis.Client
	clock    *fakeClock
	observer *recordingObserver
	enqueuer *fakeEnqueuer
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &queueFixture{
		mr:       mr,
		client:   client,
		clock:    &fakeClock{t: at(11, 0)},
		observer: &recordingObserver{},
		enqueuer: &fakeEnqueuer{},
	}
	f.qs = NewQueueService(client, testSchedule(),
		WithKeyPrefix("test"),
		WithClock(f.clock.Now),
		WithNotifier(f.observer),
		WithPromoter(NewTaskPromoter(f.enqueuer, time.Second)),
	)
	return f
}

func (f *queueFixture) add(t *testing.T, name string, duration int) *Reservation {
	t.Helper()
	r, err := f.qs.Add(context.Background(), name, duration)
	require.NoError(t, err)
	return r
}

// commandHook runs before on every command sent by the client it is added to.
// A non-nil error from before fails the command without reaching Redis.
type commandHook struct {
	before func(ctx context.Context, cmd redis.Cmder) error
}

func (h commandHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h commandHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if err := h.before(ctx, cmd); err != nil {
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h commandHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// isCommand reports whether cmd is name acting on key.
func isCommand(cmd redis.Cmder, name, key string) bool {
	args := cmd.Args()
	return cmd.Name() == name && len(args) > 1 && args[1] == key
}

// otherService is a second QueueService on the fixture's Redis, standing in
// for another tab or worker.
func (f *queueFixture) otherService(t *testing.T) *QueueService {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewQueueService(client, testSchedule(), WithKeyPrefix("test"), WithClock(f.clock.Now))
}
