// Package bus carries fire-and-forget outbound sends from the router to the
// sender worker, plus a fan-out stream of system events for observers.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sipeed/cardbot/pkg/cards"
)

// DefaultBuffer is the outbound queue size used when none is configured.
const DefaultBuffer = 100

const tapBuffer = 64

// Subscriber is a named tap on a message stream. Multiple subscribers can
// independently consume the same published messages (fan-out).
type Subscriber struct {
	Name string
	ch   chan interface{}
}

type MessageBus struct {
	outbound  chan cards.SendRequest
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	dropped   atomic.Int64

	outboundSubs []*Subscriber
	systemSubs   []*Subscriber
}

// NewMessageBus creates a bus whose outbound queue holds buffer requests.
func NewMessageBus(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MessageBus{outbound: make(chan cards.SendRequest, buffer)}
}

// --- Fan-out subscriptions ---

// SubscribeOutboundTap creates a named subscriber that receives an
// OutboundTap for every published send. Slow consumers drop.
func (mb *MessageBus) SubscribeOutboundTap(name string) <-chan interface{} {
	return mb.subscribe(&mb.outboundSubs, name)
}

// SubscribeSystem creates a named subscriber for system events.
func (mb *MessageBus) SubscribeSystem(name string) <-chan interface{} {
	return mb.subscribe(&mb.systemSubs, name)
}

func (mb *MessageBus) subscribe(subs *[]*Subscriber, name string) <-chan interface{} {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan interface{}, tapBuffer)}
	if mb.closed {
		close(sub.ch)
		return sub.ch
	}
	*subs = append(*subs, sub)
	return sub.ch
}

// PublishSystem publishes a system event to all system subscribers.
func (mb *MessageBus) PublishSystem(event SystemEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	fanOut(mb.systemSubs, event)
}

func fanOut(subs []*Subscriber, v interface{}) {
	for _, sub := range subs {
		select {
		case sub.ch <- v:
		default: // drop if slow
		}
	}
}

// --- Outbound queue ---

// PublishOutbound enqueues a send without ever blocking the caller. When the
// queue is full the oldest pending request is dropped. Returns false once
// the bus is closed.
func (mb *MessageBus) PublishOutbound(req cards.SendRequest) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	droppedOld := false
	select {
	case mb.outbound <- req:
	default:
		select {
		case <-mb.outbound:
			droppedOld = true
			mb.dropped.Add(1)
		default:
		}
		select {
		case mb.outbound <- req:
		default:
			// Lost the race to another publisher; this request is the one dropped.
			mb.dropped.Add(1)
		}
	}
	fanOut(mb.outboundSubs, OutboundTap{Request: req, DroppedOld: droppedOld})
	return true
}

// ConsumeOutbound blocks until a send is queued, the bus closes, or ctx ends.
func (mb *MessageBus) ConsumeOutbound(ctx context.Context) (cards.SendRequest, bool) {
	select {
	case req, ok := <-mb.outbound:
		return req, ok
	case <-ctx.Done():
		return cards.SendRequest{}, false
	}
}

// Pending returns the number of queued sends.
func (mb *MessageBus) Pending() int { return len(mb.outbound) }

// Dropped returns how many sends were discarded because the queue was full.
func (mb *MessageBus) Dropped() int64 { return mb.dropped.Load() }

// Close stops accepting sends and closes every subscriber channel. Sends
// already queued can still be drained with ConsumeOutbound.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		defer mb.mu.Unlock()
		mb.closed = true
		for _, sub := range mb.outboundSubs {
			close(sub.ch)
		}
		for _, sub := range mb.systemSubs {
			close(sub.ch)
		}
		close(mb.outbound)
	})
}
