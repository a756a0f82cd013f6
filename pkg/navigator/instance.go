// Package navigator implements the Navigator core (component F): the
// transition algorithm of §4.1.2 driving FSM instances against a
// pkg/kind.KindDefinition, plus per-instance data, subscriptions and
// snapshotting.
//
// Grounded on fluxor's pkg/statemachine.Machine (engine.go/machine.go):
// a guard -> exit-hooks -> enter-hooks -> commit -> persist -> notify
// pipeline (enter hooks run against a buffered copy, so nothing is
// committed until they all succeed), generalized from one machine instance
// to a Navigator that takes any KindDefinition and Instance pair.
package navigator

import (
	"sync"
	"time"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

// Metadata tracks instance provenance and the version counter bumped on
// every successful transition (§3.2 invariant 5).
type Metadata struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int64     `json:"version"`
}

// Performance tracks the rolling transition counters exposed by
// get_fsm_metrics.
type Performance struct {
	TransitionCount   int64     `json:"transition_count"`
	LastTransitionAt  time.Time `json:"last_transition_at"`
	AvgTransitionUs   int64     `json:"avg_transition_us"`
}

// Instance is a live FSM: identity, tenant, current state, bound data,
// metadata and subscribers (§3.1). It implements kind.Instance directly so
// guards/hooks can operate on it without an adapter.
type Instance struct {
	mu sync.Mutex

	id       string
	tenantID string
	kindName string

	state string
	data  map[string]interface{}

	meta Metadata
	perf Performance

	subscribers map[string]bool
}

// New creates a fresh instance in initialState with a copy of data.
func New(id, tenantID, kindName, initialState string, data map[string]interface{}) *Instance {
	d := make(map[string]interface{}, len(data))
	for k, v := range data {
		d[k] = v
	}
	now := time.Now()
	return &Instance{
		id:          id,
		tenantID:    tenantID,
		kindName:    kindName,
		state:       initialState,
		data:        d,
		meta:        Metadata{CreatedAt: now, UpdatedAt: now, Version: 0},
		subscribers: make(map[string]bool),
	}
}

func (i *Instance) InstanceID() string { return i.id }
func (i *Instance) TenantID() string   { return i.tenantID }
func (i *Instance) KindName() string   { return i.kindName }

func (i *Instance) State() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Data returns a shallow copy of the instance's bound data.
func (i *Instance) Data() map[string]interface{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[string]interface{}, len(i.data))
	for k, v := range i.data {
		out[k] = v
	}
	return out
}

// SetData writes a single key under the instance's lock, satisfying both
// kind.Instance (guards/hooks); put_data nodes write through Put, with which
// the Instance itself serves as the effects.DataStore.
func (i *Instance) SetData(key string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.data[key] = value
}

// Get implements effects.DataStore's read half for get_data/get_result
// resolution.
func (i *Instance) Get(key string) (interface{}, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	v, ok := i.data[key]
	return v, ok
}

// Put implements effects.DataStore's write half.
func (i *Instance) Put(key string, value interface{}) {
	i.SetData(key, value)
}

func (i *Instance) Metadata() Metadata {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.meta
}

func (i *Instance) Performance() Performance {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.perf
}

// Subscribe registers otherID to receive state_changed notifications from
// this instance.
func (i *Instance) Subscribe(otherID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.subscribers[otherID] = true
}

// Unsubscribe removes otherID from the notification set.
func (i *Instance) Unsubscribe(otherID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.subscribers, otherID)
}

// Subscribers returns a snapshot of subscriber instance IDs.
func (i *Instance) Subscribers() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.subscribers))
	for id := range i.subscribers {
		out = append(out, id)
	}
	return out
}

// commit applies a buffered transition result under the instance's lock:
// new state, merged data, bumped version and refreshed timestamps
// (§4.1.2 steps 5-6, committed atomically once on_enter hooks succeed).
func (i *Instance) commit(newState string, mergedData map[string]interface{}, durationUs int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = newState
	i.data = mergedData
	i.meta.Version++
	now := time.Now()
	i.meta.UpdatedAt = now
	i.perf.TransitionCount++
	i.perf.LastTransitionAt = now
	if i.perf.TransitionCount == 1 {
		i.perf.AvgTransitionUs = durationUs
	} else {
		// running average
		i.perf.AvgTransitionUs = i.perf.AvgTransitionUs + (durationUs-i.perf.AvgTransitionUs)/i.perf.TransitionCount
	}
}

// ReplayTransition reapplies a previously-committed transition during
// startup recovery (§4.2.5): eventData is shallow-merged into the existing
// data exactly as Send's buffered commit would, then committed so version
// and performance counters advance identically to the original transition.
func (i *Instance) ReplayTransition(toState string, eventData map[string]interface{}, durationUs int64) {
	i.mu.Lock()
	merged := make(map[string]interface{}, len(i.data)+len(eventData))
	for k, v := range i.data {
		merged[k] = v
	}
	for k, v := range eventData {
		merged[k] = v
	}
	i.mu.Unlock()
	i.commit(toState, merged, durationUs)
}

// ApplyExternalResult commits handle_external's I' (§4.1.1): a direct
// state/data update driven by an ExternalHandler reducer rather than a
// guarded transition. nextState empty leaves current_state unchanged; data
// is shallow-merged into the instance's existing data either way. A
// reducer that changes neither (an observer-only handler) is a true no-op:
// it does not bump version/perf counters.
func (i *Instance) ApplyExternalResult(nextState string, data map[string]interface{}) {
	if nextState == "" && len(data) == 0 {
		return
	}
	i.mu.Lock()
	state := i.state
	if nextState != "" {
		state = nextState
	}
	merged := make(map[string]interface{}, len(i.data)+len(data))
	for k, v := range i.data {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	i.mu.Unlock()
	i.commit(state, merged, 0)
}

// Snapshot is the JSON shape persisted by the blob store (§6.2).
type Snapshot struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"tenant_id"`
	Kind         string                 `json:"kind"`
	CurrentState string                 `json:"current_state"`
	Data         map[string]interface{} `json:"data"`
	Metadata     Metadata               `json:"metadata"`
	Performance  Performance            `json:"performance"`
	Subscribers  []string               `json:"subscribers"`
}

// Snapshot returns the persistable view of the instance.
func (i *Instance) Snapshot() Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	data := make(map[string]interface{}, len(i.data))
	for k, v := range i.data {
		data[k] = v
	}
	subs := make([]string, 0, len(i.subscribers))
	for id := range i.subscribers {
		subs = append(subs, id)
	}
	return Snapshot{
		ID: i.id, TenantID: i.tenantID, Kind: i.kindName,
		CurrentState: i.state, Data: data,
		Metadata: i.meta, Performance: i.perf, Subscribers: subs,
	}
}

// FromSnapshot rebuilds an Instance from its persisted form (recovery,
// §4.2.5).
func FromSnapshot(s Snapshot) *Instance {
	data := make(map[string]interface{}, len(s.Data))
	for k, v := range s.Data {
		data[k] = v
	}
	subs := make(map[string]bool, len(s.Subscribers))
	for _, id := range s.Subscribers {
		subs[id] = true
	}
	return &Instance{
		id: s.ID, tenantID: s.TenantID, kindName: s.Kind,
		state: s.CurrentState, data: data,
		meta: s.Metadata, perf: s.Performance, subscribers: subs,
	}
}

// bufferedInstance is the transient view on_enter hooks observe: the
// candidate new state and merged data, not yet committed to the real
// Instance. If any on_enter hook fails, this buffer is discarded and the
// real instance is untouched (§4.1.2 step 6).
type bufferedInstance struct {
	id, tenant, state string
	data              map[string]interface{}
}

func (b *bufferedInstance) InstanceID() string                 { return b.id }
func (b *bufferedInstance) TenantID() string                   { return b.tenant }
func (b *bufferedInstance) State() string                      { return b.state }
func (b *bufferedInstance) Data() map[string]interface{}       { return b.data }
func (b *bufferedInstance) SetData(key string, value interface{}) { b.data[key] = value }

// Instance satisfies both kind.Instance (structurally) and effects.DataStore
// via Get/Put/SetData above.
var _ effects.DataStore = (*Instance)(nil)
