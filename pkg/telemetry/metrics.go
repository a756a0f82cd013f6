package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks aggregate counters, both as plain in-memory snapshots
// (returned by Snapshot, used by Manager.GetMetrics) and as Prometheus
// collectors registered against a private registry (so concurrent test
// instances never collide on the global default registry, per fluxor's
// pattern of injecting dependencies rather than relying on singletons).
type Metrics struct {
	registry *prometheus.Registry

	transitions      *prometheus.CounterVec
	broadcasts       *prometheus.CounterVec
	effectOutcomes   *prometheus.CounterVec
	effectDurationUs *prometheus.HistogramVec

	mu              sync.Mutex
	effectSuccess   map[string]int64
	effectFailure   map[string]int64
	effectCancelled map[string]int64
}

// NewMetrics creates a fresh, independently-registered metrics collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_transitions_total",
		Help: "Total number of completed FSM transitions.",
	}, []string{"tenant_id", "kind"})

	broadcasts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_broadcasts_delivered_total",
		Help: "Total number of broadcast deliveries.",
	}, []string{"tenant_id", "event_type"})

	effectOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fsm_effect_outcomes_total",
		Help: "Effect executions by kind and terminal status.",
	}, []string{"effect_kind", "status"})

	effectDurationUs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fsm_effect_duration_us",
		Help:    "Effect execution duration in microseconds.",
		Buckets: prometheus.ExponentialBuckets(100, 4, 10),
	}, []string{"effect_kind"})

	reg.MustRegister(transitions, broadcasts, effectOutcomes, effectDurationUs)

	return &Metrics{
		registry:         reg,
		transitions:      transitions,
		broadcasts:       broadcasts,
		effectOutcomes:   effectOutcomes,
		effectDurationUs: effectDurationUs,
		effectSuccess:    make(map[string]int64),
		effectFailure:    make(map[string]int64),
		effectCancelled:  make(map[string]int64),
	}
}

// Registry exposes the private Prometheus registry for an operator-wired
// /metrics endpoint (outside this spec's scope, but the handle is useful).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// observe is the Bus handler wired in NewBus; it demultiplexes events into
// the Prometheus collectors and the plain counters exposed by Snapshot.
func (m *Metrics) observe(e Event) {
	switch e.Type {
	case EventTransition:
		tenant, _ := e.Metadata["tenant_id"].(string)
		kindName, _ := e.Metadata["kind"].(string)
		m.transitions.WithLabelValues(tenant, kindName).Inc()
	case EventBroadcast:
		tenant, _ := e.Metadata["tenant_id"].(string)
		evType, _ := e.Metadata["event_type"].(string)
		count := 1.0
		if c, ok := e.Measurements["count"].(int); ok {
			count = float64(c)
		}
		m.broadcasts.WithLabelValues(tenant, evType).Add(count)
	case EventEffectCompleted, EventEffectFailed, EventEffectCancelled:
		effectKind, _ := e.Metadata["effect_kind"].(string)
		status := statusFor(e.Type)
		m.effectOutcomes.WithLabelValues(effectKind, status).Inc()
		if us, ok := e.Measurements["duration_us"].(int64); ok {
			m.effectDurationUs.WithLabelValues(effectKind).Observe(float64(us))
		}
		m.mu.Lock()
		switch e.Type {
		case EventEffectCompleted:
			m.effectSuccess[effectKind]++
		case EventEffectFailed:
			m.effectFailure[effectKind]++
		case EventEffectCancelled:
			m.effectCancelled[effectKind]++
		}
		m.mu.Unlock()
	}
}

func statusFor(t EventType) string {
	switch t {
	case EventEffectCompleted:
		return "ok"
	case EventEffectFailed:
		return "error"
	case EventEffectCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Snapshot is the plain-data view returned by Manager.GetMetrics
// (Manager.GetFSMMetrics returns per-instance navigator.Performance instead).
type Snapshot struct {
	EffectSuccess   map[string]int64 `json:"effect_success"`
	EffectFailure   map[string]int64 `json:"effect_failure"`
	EffectCancelled map[string]int64 `json:"effect_cancelled"`
}

// Snapshot returns a point-in-time copy of the aggregate counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		EffectSuccess:   make(map[string]int64, len(m.effectSuccess)),
		EffectFailure:   make(map[string]int64, len(m.effectFailure)),
		EffectCancelled: make(map[string]int64, len(m.effectCancelled)),
	}
	for k, v := range m.effectSuccess {
		s.EffectSuccess[k] = v
	}
	for k, v := range m.effectFailure {
		s.EffectFailure[k] = v
	}
	for k, v := range m.effectCancelled {
		s.EffectCancelled[k] = v
	}
	return s
}
