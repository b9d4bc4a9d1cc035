// Package events implements the in-process event bus (C9): a
// multi-producer, multi-consumer publish/subscribe hub with per-component
// FIFO delivery, plus the webhook fan-out that mirrors bus traffic to
// outbound URLs without ever blocking a publisher on a slow consumer.
package events

import (
	"sync"

	"github.com/embedops/mediacore/internal/models"
)

// Filter selects which event kinds a subscription receives. A nil or empty
// Filter receives everything.
type Filter map[models.EventKind]bool

func (f Filter) allows(kind models.EventKind) bool {
	if len(f) == 0 {
		return true
	}
	return f[kind]
}

// Subscription is a live handle returned by Bus.Subscribe. Events matching
// the subscription's filter arrive on C in FIFO order per publishing
// component; the subscriber MUST drain C promptly — see Bus.Publish for the
// backpressure policy applied when it doesn't.
type Subscription struct {
	C      <-chan models.Event
	id     uint64
	bus    *Bus
	filter Filter
}

// Unsubscribe removes the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// subscriberQueueDepth bounds how many undelivered events one slow
// subscriber may accumulate before the bus starts dropping non-critical
// events for it. State-change events (anything other than a tally/heartbeat
// style update) are never dropped — see isDroppable.
const subscriberQueueDepth = 64

type subscriber struct {
	id     uint64
	ch     chan models.Event
	filter Filter
	done   chan struct{}
}

// Bus is the process-wide event hub. One instance is a singleton consumed
// by every other actor; publishers never block on subscriber delivery.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber

	webhooks *WebhookDispatcher // nil if no webhook delivery configured
}

// New returns an empty Bus. Call SetWebhookDispatcher to wire outbound
// delivery; it is optional — a bus with none simply serves in-process
// subscribers (e.g. the WebSocket push channel).
func New() *Bus {
	return &Bus{
		subs: make(map[uint64]*subscriber),
	}
}

// SetWebhookDispatcher wires outbound webhook fan-out. Must be called before
// the first Publish to avoid a racy late subscription; callers construct the
// bus and dispatcher together at startup.
func (b *Bus) SetWebhookDispatcher(d *WebhookDispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.webhooks = d
}

// Subscribe registers a new subscriber with the given filter. The returned
// Subscription's channel is closed when Unsubscribe is called.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:     id,
		ch:     make(chan models.Event, subscriberQueueDepth),
		filter: filter,
		done:   make(chan struct{}),
	}
	b.subs[id] = sub

	return &Subscription{C: sub.ch, id: id, bus: b, filter: filter}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.done)
		close(sub.ch)
	}
}

// isDroppable reports whether kind may be dropped from a slow subscriber's
// queue rather than superseding it. Tally updates are idempotent snapshots —
// a later one fully supersedes an earlier one — so they're the only variant
// eligible for drop-oldest backpressure.
func isDroppable(kind models.EventKind) bool {
	return kind == models.EventTallyChanged
}

// Publish fans out evt to every matching subscriber and to the webhook
// dispatcher, without blocking on any of them. Per-component ordering is
// preserved by serializing publish calls under the bus mutex — a publisher
// with a slow-moving single goroutine naturally sees its own events
// delivered FIFO, as required by §4.9; the mutex hold is released before any
// channel send can block.
func (b *Bus) Publish(evt models.Event) {
	b.mu.Lock()
	subsSnapshot := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subsSnapshot = append(subsSnapshot, sub)
	}
	webhooks := b.webhooks
	b.mu.Unlock()

	for _, sub := range subsSnapshot {
		if !sub.filter.allows(evt.Kind) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			if isDroppable(evt.Kind) {
				// Drop the event for this one slow subscriber; a fresher
				// tally will arrive and supersede it. Never block the
				// publisher.
				continue
			}
			// A non-droppable event met a full queue: spawn a bounded
			// best-effort delivery rather than stall the publisher or
			// silently lose a state-change event. Unsubscribe may close the
			// channel while this is in flight; recover turns that race into
			// a silent no-op instead of a crash.
			go func(sub *subscriber, evt models.Event) {
				defer func() { recover() }()
				select {
				case sub.ch <- evt:
				case <-sub.done:
				}
			}(sub, evt)
		}
	}

	if webhooks != nil {
		webhooks.Enqueue(evt)
	}
}
