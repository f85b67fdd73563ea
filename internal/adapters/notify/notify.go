// Package notify delivers best-effort session events to connected clients.
// Delivery is fire-and-forget and never blocks core logic.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/pkg/metrics"
)

// defaultSubscriberBuffer bounds each subscriber channel; a full buffer
// drops the event rather than blocking the sender.
const defaultSubscriberBuffer = 64

// Notifier is the notification port consumed by the coordinator.
type Notifier interface {
	Broadcast(ctx context.Context, e model.Event)
}

// ensure Broadcaster satisfies Notifier.
var _ Notifier = (*Broadcaster)(nil)

type subscriber struct {
	id uint64
	ch chan model.Event
}

// Broadcaster implements Notifier with in-process, session-scoped fan-out.
type Broadcaster struct {
	mu         sync.RWMutex
	nextID     uint64
	subs       map[uuid.UUID][]*subscriber
	bufferSize int
}

// NewBroadcaster creates a broadcaster with configuration options.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[uuid.UUID][]*subscriber),
		bufferSize: defaultSubscriberBuffer,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe registers a listener for one session's events. The returned
// cancel function drops the subscription and closes the channel.
func (b *Broadcaster) Subscribe(sessionID uuid.UUID) (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan model.Event, b.bufferSize)}
	b.subs[sessionID] = append(b.subs[sessionID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		list := b.subs[sessionID]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[sessionID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				break
			}
		}
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}
	return sub.ch, cancel
}

// Broadcast fans an event out to the session's subscribers. Slow subscribers
// lose events instead of slowing the engine down.
func (b *Broadcaster) Broadcast(ctx context.Context, e model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[e.SessionID] {
		select {
		case sub.ch <- e:
		default:
			metrics.RecordNotificationDropped()
		}
	}
}
