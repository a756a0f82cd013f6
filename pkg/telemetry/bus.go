// Package telemetry implements the in-process event dispatch bus (component
// I of the specification): transitions, effect lifecycle, broadcasts and
// store I/O all funnel through here. Grounded on fluxor's observer pattern
// (pkg/statemachine/observer.go's ChainObserver/EventBusObserver) adapted
// from a single state-machine's observer list into a process-wide bus with
// a fixed, spec-defined event vocabulary (§6.3).
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/fluxorio/fsmruntime/pkg/corelog"
)

// EventType is one of the fixed §6.3 telemetry event names.
type EventType string

const (
	EventTransition        EventType = "fsm.transition"
	EventStoreAppend        EventType = "fsm.event_store.append"
	EventBroadcast          EventType = "fsm.broadcast"
	EventEffectStarted      EventType = "fsm.effect.started"
	EventEffectCompleted    EventType = "fsm.effect.completed"
	EventEffectFailed       EventType = "fsm.effect.failed"
	EventEffectCancelled    EventType = "fsm.effect.cancelled"
)

// Event is a single telemetry emission.
type Event struct {
	Type         EventType
	Measurements map[string]interface{}
	Metadata     map[string]interface{}
	Timestamp    time.Time
}

// Handler observes emitted events. Handlers must not block significantly;
// the bus invokes them synchronously but recovers from panics so one bad
// handler cannot take down a transition or effect execution.
type Handler func(Event)

// Bus is the process-wide telemetry dispatcher.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   corelog.Logger
	metrics  *Metrics
}

// NewBus creates a telemetry bus with an attached Prometheus-backed metrics
// registry (see metrics.go).
func NewBus(logger corelog.Logger) *Bus {
	if logger == nil {
		logger = corelog.NewDefaultLogger()
	}
	b := &Bus{logger: logger, metrics: NewMetrics()}
	b.Subscribe(b.metrics.observe)
	return b
}

// Subscribe registers a handler invoked on every emitted event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Metrics returns the bus's aggregate counters, reachable by Manager's
// get_metrics operation (§6.1).
func (b *Bus) Metrics() *Metrics {
	return b.metrics
}

// Emit dispatches an event to every subscribed handler. Handler panics are
// caught and logged at error level; they never propagate to the caller
// (matching §4.2.4's isolation discipline applied to the whole bus).
func (b *Bus) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.invoke(h, e)
	}
}

func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("telemetry handler panicked: %v", r)
		}
	}()
	h(e)
}

// TransitionEvent builds a §6.3 [:fsm, :transition] event.
func TransitionEvent(instanceID, tenantID, kindName, from, to, event string, durationUs int64) Event {
	return Event{
		Type:         EventTransition,
		Measurements: map[string]interface{}{"duration_us": durationUs},
		Metadata: map[string]interface{}{
			"kind": kindName, "from": from, "to": to, "event": event,
			"instance_id": instanceID, "tenant_id": tenantID,
		},
	}
}

// StoreAppendEvent builds a §6.3 [:fsm, :event_store, :append] event.
func StoreAppendEvent(recordType, instanceID, tenantID string, bytes int) Event {
	return Event{
		Type:         EventStoreAppend,
		Measurements: map[string]interface{}{"bytes": bytes},
		Metadata: map[string]interface{}{
			"type": recordType, "instance_id": instanceID, "tenant_id": tenantID,
		},
	}
}

// BroadcastEvent builds a §6.3 [:fsm, :broadcast] event.
func BroadcastEvent(eventType, tenantID string, count int) Event {
	return Event{
		Type:         EventBroadcast,
		Measurements: map[string]interface{}{"count": count},
		Metadata:     map[string]interface{}{"event_type": eventType, "tenant_id": tenantID},
	}
}

// EffectEvent builds an effect lifecycle event (§4.3.6); durationUs is only
// meaningful (and non-zero) on terminal states.
func EffectEvent(kind EventType, executionID, effectKind string, durationUs int64) Event {
	m := map[string]interface{}{}
	if durationUs > 0 {
		m["duration_us"] = durationUs
	}
	return Event{
		Type:         kind,
		Measurements: m,
		Metadata: map[string]interface{}{
			"execution_id": executionID, "effect_kind": effectKind,
		},
	}
}

func (e Event) String() string {
	return fmt.Sprintf("%s measurements=%v metadata=%v", e.Type, e.Measurements, e.Metadata)
}
