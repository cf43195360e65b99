package broadcast

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/neuroshield/neuroshield/observability"
)

// Subscriber receives events from the broadcaster's dispatch loop. Delivery
// is synchronous within the loop; a slow subscriber delays later events, a
// panicking one is isolated and logged.
type Subscriber interface {
	HandleEvent(Event)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(Event)

func (f SubscriberFunc) HandleEvent(e Event) { f(e) }

// Subscription is the handle returned by the Subscribe methods. Cancelling an
// already-cancelled or foreign subscription is a no-op.
type Subscription struct {
	id    uint64
	scope string // "global", "type", "device"
	key   string
}

// Broadcaster decouples event producers from consumers. Emit never blocks;
// one background loop drains the queue, archives each event into a bounded
// history, and fans it out to global, type and device subscribers.
type Broadcaster struct {
	queue      chan Event
	maxHistory int

	mu       sync.RWMutex
	global   map[uint64]Subscriber
	byType   map[EventType]map[uint64]Subscriber
	byDevice map[string]map[uint64]Subscriber
	history  []Event

	nextID atomic.Uint64
	stop   context.CancelFunc
	done   chan struct{}
}

// NewBroadcaster creates a bus with the given queue and history capacities.
// Zero values select the defaults (256 queued events, 100 history entries).
func NewBroadcaster(queueSize, maxHistory int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxHistory <= 0 {
		maxHistory = 100
	}
	return &Broadcaster{
		queue:      make(chan Event, queueSize),
		maxHistory: maxHistory,
		global:     make(map[uint64]Subscriber),
		byType:     make(map[EventType]map[uint64]Subscriber),
		byDevice:   make(map[string]map[uint64]Subscriber),
	}
}

// Start launches the dispatch loop.
func (b *Broadcaster) Start(ctx context.Context) {
	ctx, b.stop = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.dispatchLoop(ctx)
	log.Printf("event broadcaster started")
}

// Stop halts the dispatch loop. Queued events are abandoned.
func (b *Broadcaster) Stop() {
	if b.stop != nil {
		b.stop()
		<-b.done
	}
	log.Printf("event broadcaster stopped")
}

// Emit queues an event for broadcast and returns immediately. When the
// delivery queue is full the event is dropped and counted, never blocking
// the producer.
func (b *Broadcaster) Emit(t EventType, payload map[string]any, device string, priority EventPriority) {
	ev := NewEvent(t, payload, device, priority)
	select {
	case b.queue <- ev:
		observability.EventsEmitted.WithLabelValues(string(t)).Inc()
	default:
		observability.EventsDropped.WithLabelValues(string(t)).Inc()
		log.Printf("event dropped, delivery queue full: %s", ev.ID)
	}
}

// SubscribeGlobal registers a subscriber for every event.
func (b *Broadcaster) SubscribeGlobal(s Subscriber) *Subscription {
	sub := &Subscription{id: b.nextID.Add(1), scope: "global"}
	b.mu.Lock()
	b.global[sub.id] = s
	b.mu.Unlock()
	return sub
}

// SubscribeToType registers a subscriber for one event type.
func (b *Broadcaster) SubscribeToType(t EventType, s Subscriber) *Subscription {
	sub := &Subscription{id: b.nextID.Add(1), scope: "type", key: string(t)}
	b.mu.Lock()
	if b.byType[t] == nil {
		b.byType[t] = make(map[uint64]Subscriber)
	}
	b.byType[t][sub.id] = s
	b.mu.Unlock()
	return sub
}

// SubscribeToDevice registers a subscriber for events scoped to one device.
func (b *Broadcaster) SubscribeToDevice(device string, s Subscriber) *Subscription {
	sub := &Subscription{id: b.nextID.Add(1), scope: "device", key: device}
	b.mu.Lock()
	if b.byDevice[device] == nil {
		b.byDevice[device] = make(map[uint64]Subscriber)
	}
	b.byDevice[device][sub.id] = s
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. Safe to call any number of times, with
// nil, or with a subscription this broadcaster never issued.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch sub.scope {
	case "global":
		delete(b.global, sub.id)
	case "type":
		if m := b.byType[EventType(sub.key)]; m != nil {
			delete(m, sub.id)
		}
	case "device":
		if m := b.byDevice[sub.key]; m != nil {
			delete(m, sub.id)
		}
	}
}

// GetRecent returns up to limit of the most recent events, filtered by type
// and device after slicing. The history is a best-effort replay aid, so the
// result may hold fewer matches than exist further back.
func (b *Broadcaster) GetRecent(limit int, typeFilter EventType, deviceFilter string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.history
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		if deviceFilter != "" && e.Device != deviceFilter {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (b *Broadcaster) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.deliver(ev)
		}
	}
}

// deliver archives the event and invokes every interested subscriber before
// the loop moves to the next event.
func (b *Broadcaster) deliver(ev Event) {
	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHistory {
		b.history = b.history[1:]
	}
	b.mu.Unlock()

	b.mu.RLock()
	targets := make([]deliveryTarget, 0, len(b.global))
	for _, s := range b.global {
		targets = append(targets, deliveryTarget{"global", s})
	}
	for _, s := range b.byType[ev.Type] {
		targets = append(targets, deliveryTarget{"type", s})
	}
	if ev.Device != "" {
		for _, s := range b.byDevice[ev.Device] {
			targets = append(targets, deliveryTarget{"device", s})
		}
	}
	b.mu.RUnlock()

	for _, t := range targets {
		b.safeDeliver(t, ev)
	}
}

type deliveryTarget struct {
	scope string
	sub   Subscriber
}

// safeDeliver isolates one subscriber's failure from the rest of the round.
func (b *Broadcaster) safeDeliver(t deliveryTarget, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.SubscriberErrors.WithLabelValues(t.scope).Inc()
			log.Printf("subscriber panic during %s delivery of %s: %v", t.scope, ev.ID, r)
		}
	}()
	t.sub.HandleEvent(ev)
}

// Convenience emitters for the common event shapes.

// EmitPredictionUpdate publishes a model prediction for a device.
func (b *Broadcaster) EmitPredictionUpdate(device string, prediction map[string]any) {
	b.Emit(EventPredictionUpdate, prediction, device, PriorityMedium)
}

// EmitSystemAlert publishes an operator-facing alert, optionally device-scoped.
func (b *Broadcaster) EmitSystemAlert(message, alertType, device string) {
	b.Emit(EventSystemAlert, map[string]any{
		"message":    message,
		"alert_type": alertType,
	}, device, PriorityMedium)
}

// EmitCongestionDetected publishes a high-priority congestion signal.
func (b *Broadcaster) EmitCongestionDetected(device string, probability float64, details map[string]any) {
	b.Emit(EventCongestionDetected, map[string]any{
		"congestion_probability": probability,
		"details":                details,
	}, device, PriorityHigh)
}

// EmitAnomalyDetected publishes a high-priority anomaly signal.
func (b *Broadcaster) EmitAnomalyDetected(device string, score float64, details map[string]any) {
	b.Emit(EventAnomalyDetected, map[string]any{
		"anomaly_score": score,
		"details":       details,
	}, device, PriorityHigh)
}

// EmitMetricsUpdate publishes a system-wide metrics snapshot.
func (b *Broadcaster) EmitMetricsUpdate(metrics map[string]any) {
	b.Emit(EventMetricsUpdate, metrics, "", PriorityMedium)
}

// EmitActionExecuted publishes an action lifecycle notification.
func (b *Broadcaster) EmitActionExecuted(device, action string, result map[string]any) {
	b.Emit(EventActionExecuted, map[string]any{
		"action": action,
		"result": result,
	}, device, PriorityMedium)
}
