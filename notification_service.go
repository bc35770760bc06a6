package main

import (
	"context"
	"log/slog"
	"sync"
)

// Observer is told about every persisted queue mutation.
type Observer interface {
	Notify(ctx context.Context, event QueueEvent)
}

type ObserverFunc func(ctx context.Context, event QueueEvent)

func (f ObserverFunc) Notify(ctx context.Context, event QueueEvent) {
	f(ctx, event)
}

// NotificationService fans a queue event out to all registered observers, in
// registration order, on the caller's goroutine.
type NotificationService struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewNotificationService(observers ...Observer) *NotificationService {
	return &NotificationService{observers: observers}
}

func (ns *NotificationService) Register(o Observer) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.observers = append(ns.observers, o)
}

func (ns *NotificationService) Notify(ctx context.Context, event QueueEvent) {
	ns.mu.RLock()
	observers := make([]Observer, len(ns.observers))
	copy(observers, ns.observers)
	ns.mu.RUnlock()

	for _, o := range observers {
		o.Notify(ctx, event)
	}
}

const subscriberBuffer = 16

// Broadcaster is the in-process channel every open view subscribes to. A slow
// subscriber loses events rather than blocking the queue; views re-read the
// queue on each event so a dropped one is caught up by the next.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[chan QueueEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[chan QueueEvent]struct{})}
}

// Subscribe returns a channel of events and a function that unsubscribes and
// closes it.
func (b *Broadcaster) Subscribe() (<-chan QueueEvent, func()) {
	ch := make(chan QueueEvent, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(_ context.Context, event QueueEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			slog.Warn("Broadcast subscriber full, dropping event", "type", event.Type)
		}
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
