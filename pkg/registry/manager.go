package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxorio/fsmruntime/pkg/cache"
	"github.com/fluxorio/fsmruntime/pkg/corelog"
	"github.com/fluxorio/fsmruntime/pkg/effects"
	"github.com/fluxorio/fsmruntime/pkg/eventlog"
	"github.com/fluxorio/fsmruntime/pkg/kind"
	"github.com/fluxorio/fsmruntime/pkg/navigator"
	"github.com/fluxorio/fsmruntime/pkg/rtconfig"
	"github.com/fluxorio/fsmruntime/pkg/shard"
	"github.com/fluxorio/fsmruntime/pkg/store"
	"github.com/fluxorio/fsmruntime/pkg/telemetry"
)

const snapshotTable = "snapshot"

// snapshotPersister adapts *store.Blob to cache.Persister so the hot cache
// (component C) can write through to durable storage (component A) without
// either package importing the other's full surface (§4.4.3/§4.4.4).
type snapshotPersister struct{ blob *store.Blob }

func snapshotKey(tenantID, kindName, instanceID string) string {
	return tenantID + "\x00" + kindName + "\x00" + instanceID
}

// Persist saves a snapshot, or deletes one when value is nil (cache.Delete's
// write-through convention for the blob-backed table).
func (p snapshotPersister) Persist(_, key string, value interface{}) error {
	if value == nil {
		parts := strings.SplitN(key, "\x00", 3)
		if len(parts) != 3 {
			return fmt.Errorf("snapshotPersister: malformed key %q", key)
		}
		return p.blob.DeleteSnapshot(parts[0], parts[1], parts[2])
	}
	snap, ok := value.(navigator.Snapshot)
	if !ok {
		return fmt.Errorf("snapshotPersister: unexpected value type %T", value)
	}
	return p.blob.SaveSnapshot(snap)
}

func (p snapshotPersister) Load(_, key string) (interface{}, bool, error) {
	parts := strings.SplitN(key, "\x00", 3)
	if len(parts) != 3 {
		return nil, false, fmt.Errorf("snapshotPersister: malformed key %q", key)
	}
	snap, err := p.blob.LoadSnapshot(parts[0], parts[1], parts[2])
	if err != nil {
		return nil, false, nil
	}
	return snap, true, nil
}

// Manager is the public facade (component H, §6.1): create, send_event,
// get_state, destroy, batch, metrics, broadcast, cancel_effects,
// available_kinds. It owns no locking of its own beyond what Registry and
// Instance already provide — every operation is "lock the shard's bucket,
// apply the algorithm, release" (§4.2.2).
type Manager struct {
	kinds     *kind.Registry
	instances *Registry
	nav       *navigator.Navigator
	blob      *store.Blob
	cache     *cache.Cache
	log       *eventlog.Log
	bus       *telemetry.Bus
	effects   *effects.Engine
	logger    corelog.Logger
	cfg       rtconfig.Config

	broadcastSem chan struct{}

	dedup   map[string]bool // (source_id, version) pairs already delivered, cycle guard (§9)
	dedupMu sync.Mutex
}

// NewManager builds a Manager with every dependency injected (§9's
// "dependency-injected handles... tests create isolated instances").
func NewManager(kinds *kind.Registry, cfg rtconfig.Config, blob *store.Blob, log *eventlog.Log, bus *telemetry.Bus, eng *effects.Engine, logger corelog.Logger) *Manager {
	if logger == nil {
		logger = corelog.NewDefaultLogger()
	}
	var persister cache.Persister
	if blob != nil {
		persister = snapshotPersister{blob: blob}
	}
	return &Manager{
		kinds:        kinds,
		instances:    New(cfg.ShardCount),
		nav:          navigator.New(log, bus, eng, logger),
		blob:         blob,
		cache:        cache.New(cfg.ShardCount, cfg.EntryTTL(), cfg.CleanupInterval(), cfg.CacheMemoryThresholdBytes, persister),
		log:          log,
		bus:          bus,
		effects:      eng,
		logger:       logger,
		cfg:          cfg,
		broadcastSem: make(chan struct{}, cfg.EffectWorkerPool),
		dedup:        make(map[string]bool),
	}
}

// Close stops the Manager's background cache sweep goroutine.
func (m *Manager) Close() {
	m.cache.Close()
}

// Recover reloads instances from durable storage on startup (§4.2.5):
// every snapshot under tenantID (or every tenant when tenantID is "") is
// rebuilt via navigator.FromSnapshot, then the instance's event log tail is
// replayed for any transition whose recorded version exceeds the
// snapshot's — the gap a crash between a transition's commit and its
// snapshot write can leave. Returns the number of instances recovered.
func (m *Manager) Recover(tenantID string) (int, error) {
	if m.blob == nil {
		return 0, nil
	}
	count := 0
	err := m.blob.WalkSnapshots(tenantID, func(snap navigator.Snapshot) error {
		inst := navigator.FromSnapshot(snap)
		if m.log != nil {
			recs, err := m.log.List(snap.TenantID, snap.Kind, snap.ID, eventlog.ListOpts{})
			if err != nil {
				m.logger.Errorf("manager: recovery event log read failed for %s: %v", snap.ID, err)
			}
			for _, rec := range recs {
				if rec.Type != "transition" {
					continue
				}
				v, ok := payloadInt(rec.Payload, "version")
				if !ok || v <= snap.Metadata.Version {
					continue
				}
				to, _ := rec.Payload["to"].(string)
				eventData, _ := rec.Payload["event_data"].(map[string]interface{})
				durationUs, _ := payloadInt(rec.Payload, "duration_us")
				inst.ReplayTransition(to, eventData, durationUs)
			}
		}
		m.instances.Put(inst.TenantID(), inst.KindName(), inst)
		count++
		return nil
	})
	return count, err
}

// payloadInt reads a numeric event-log field back as an int64; JSON
// round-trips every number through float64, so an in-process int64 (as a
// not-yet-persisted record would carry) is also accepted.
func payloadInt(payload map[string]interface{}, key string) (int64, bool) {
	switch n := payload[key].(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// saveSnapshot write-throughs inst's snapshot via the hot cache (component
// C), which persists to the blob store (component A) synchronously per
// §4.4.3's persist_immediately behavior for state-changing operations.
func (m *Manager) saveSnapshot(inst *navigator.Instance) {
	snap := inst.Snapshot()
	key := snapshotKey(inst.TenantID(), inst.KindName(), inst.InstanceID())
	if err := m.cache.Put(snapshotTable, key, snap, true); err != nil {
		m.logger.Errorf("manager: snapshot save failed for %s: %v", inst.InstanceID(), err)
	}
}

// CreateFSM instantiates kindRef (§4.2.2 create): generates an instance
// ID, drives it to kind.initial_state, writes a snapshot through and
// appends a `created` record.
func (m *Manager) CreateFSM(kindRef string, data map[string]interface{}, tenantID string) (string, error) {
	def, ok := m.kinds.Get(kindRef)
	if !ok {
		return "", &navigator.Error{Reason: navigator.ReasonKindUnknown}
	}

	id := uuid.NewString()
	inst := navigator.New(id, tenantID, kindRef, def.InitialState, data)
	m.instances.Put(tenantID, kindRef, inst)

	if m.blob != nil {
		m.saveSnapshot(inst)
	}
	if m.log != nil {
		_ = m.log.Append(tenantID, kindRef, id, map[string]interface{}{"type": "created", "initial_state": def.InitialState})
	}
	return id, nil
}

// TransitionResult is send_event's ok payload (§6.1).
type TransitionResult struct {
	State   string                 `json:"state"`
	Data    map[string]interface{} `json:"data"`
	Version int64                  `json:"version"`
}

// SendEvent applies §4.1.2 to instanceID, then delivers state_changed to
// its subscribers (§4.1.2 step 9) under the configured deadline.
func (m *Manager) SendEvent(ctx context.Context, instanceID, event string, eventData map[string]interface{}) (TransitionResult, error) {
	kindName, inst, ok := m.instances.Get(instanceID)
	if !ok {
		return TransitionResult{}, &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	def, ok := m.kinds.Get(kindName)
	if !ok {
		return TransitionResult{}, &navigator.Error{Reason: navigator.ReasonKindUnknown}
	}

	// Hold the instance's shard bucket for the transition and its snapshot
	// write, so transitions on one instance never interleave.
	bucket := m.instances.shardFor(inst.TenantID())
	bucket.mu.Lock()
	from := inst.State()
	subs, err := m.nav.Send(ctx, def, inst, event, eventData)
	if err != nil {
		bucket.mu.Unlock()
		return TransitionResult{}, err
	}

	if m.blob != nil {
		m.saveSnapshot(inst)
	}

	to := inst.State()
	bucket.mu.Unlock()
	m.notifySubscribers(inst, subs, from, to, event, eventData)

	meta := inst.Metadata()
	return TransitionResult{State: to, Data: inst.Data(), Version: meta.Version}, nil
}

// notifySubscribers delivers state_changed to each subscriber in isolated,
// deadline-bounded calls (§4.2.4). Deliveries for (source_id, version) are
// deduplicated so subscriber cycles converge (§9's cyclic-graph note).
func (m *Manager) notifySubscribers(source *navigator.Instance, subscriberIDs []string, from, to, event string, eventData map[string]interface{}) {
	if len(subscriberIDs) == 0 {
		return
	}
	meta := source.Metadata()
	dedupKey := fmt.Sprintf("%s@%d", source.InstanceID(), meta.Version)

	m.dedupMu.Lock()
	if m.dedup[dedupKey] {
		m.dedupMu.Unlock()
		return
	}
	m.dedup[dedupKey] = true
	m.dedupMu.Unlock()

	payload := map[string]interface{}{"event": event, "from": from, "to": to, "data": source.Data()}
	src := kind.ExternalSource{KindName: source.KindName(), InstanceID: source.InstanceID()}

	for _, subID := range subscriberIDs {
		subKind, subInst, ok := m.instances.Get(subID)
		if !ok {
			continue
		}
		subDef, ok := m.kinds.Get(subKind)
		if !ok {
			continue
		}
		m.deliverIsolated(subDef, subInst, src, "state_changed", payload)
	}
}

// deliverIsolated runs one subscriber callback with the configured
// deadline; a panic or a timeout is logged and otherwise ignored
// (§4.2.4: "considered delivered-with-timeout").
func (m *Manager) deliverIsolated(def *kind.KindDefinition, inst *navigator.Instance, src kind.ExternalSource, eventType string, data map[string]interface{}) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.nav.HandleExternal(def, inst, src, eventType, data)
	}()
	select {
	case <-done:
	case <-time.After(m.cfg.SubscriberDeadline()):
		m.logger.Warnf("manager: subscriber %s exceeded deadline, treated as delivered", inst.InstanceID())
	}
}

// GetFSMState is get_fsm_state (§6.1).
func (m *Manager) GetFSMState(instanceID string) (string, map[string]interface{}, navigator.Metadata, error) {
	_, inst, ok := m.instances.Get(instanceID)
	if !ok {
		return "", nil, navigator.Metadata{}, &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	return inst.State(), inst.Data(), inst.Metadata(), nil
}

// DestroyFSM cancels all effects scoped to instanceID, deletes its
// snapshot and appends a `destroyed` record (§4.2.2).
func (m *Manager) DestroyFSM(instanceID string) error {
	kindName, inst, ok := m.instances.Get(instanceID)
	if !ok {
		return &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	if m.effects != nil {
		m.effects.CancelEffects(instanceID)
	}
	m.instances.Delete(inst.TenantID(), instanceID)
	if m.blob != nil {
		key := snapshotKey(inst.TenantID(), kindName, instanceID)
		if err := m.cache.Delete(snapshotTable, key); err != nil {
			m.logger.Errorf("manager: snapshot delete failed for %s: %v", instanceID, err)
		}
	}
	if m.log != nil {
		_ = m.log.Append(inst.TenantID(), kindName, instanceID, map[string]interface{}{"type": "destroyed"})
	}
	return nil
}

// Summary is list_by_tenant's element type (§6.1).
type Summary struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	State string `json:"state"`
}

// ListByTenant is list_by_tenant (§6.1); returns only tenantID's instances
// (§8.1's tenant isolation invariant).
func (m *Manager) ListByTenant(tenantID string) []Summary {
	out := make([]Summary, 0)
	m.instances.ForEachTenant(tenantID, func(kindName string, inst *navigator.Instance) {
		out = append(out, Summary{ID: inst.InstanceID(), Kind: kindName, State: inst.State()})
	})
	return out
}

// BatchItem is one element of batch_send_events' input.
type BatchItem struct {
	InstanceID string
	Event      string
	EventData  map[string]interface{}
}

// BatchResult is one element of batch_send_events' output.
type BatchResult struct {
	InstanceID string
	Result     TransitionResult
	Err        error
}

// BatchSendEvents groups items by shard and processes each shard's items
// sequentially, matching §4.2.2's backpressure model; different shards run
// concurrently.
func (m *Manager) BatchSendEvents(ctx context.Context, items []BatchItem) []BatchResult {
	byShard := make(map[int][]BatchItem)
	for _, it := range items {
		_, inst, ok := m.instances.Get(it.InstanceID)
		idx := 0
		if ok {
			idx = shard.Of(inst.TenantID(), m.instances.n)
		}
		byShard[idx] = append(byShard[idx], it)
	}

	results := make([]BatchResult, len(items))
	resultIdx := make(map[string]int, len(items))
	for i, it := range items {
		resultIdx[it.InstanceID] = i
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, group := range byShard {
		group := group
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, it := range group {
				r, err := m.SendEvent(ctx, it.InstanceID, it.Event, it.EventData)
				mu.Lock()
				results[resultIdx[it.InstanceID]] = BatchResult{InstanceID: it.InstanceID, Result: r, Err: err}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return results
}

// GetFSMMetrics returns instanceID's own performance counters (§6.1).
func (m *Manager) GetFSMMetrics(instanceID string) (navigator.Performance, error) {
	_, inst, ok := m.instances.Get(instanceID)
	if !ok {
		return navigator.Performance{}, &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	return inst.Performance(), nil
}

// GetMetrics returns the process-wide aggregate effect counters (§4.3.6's
// get_metrics() design note).
func (m *Manager) GetMetrics() telemetry.Snapshot {
	return m.bus.Metrics().Snapshot()
}

// Subscribe registers subscriberID on sourceID's subscriber set so it
// receives state_changed notifications on sourceID's future transitions
// (§4.1.2 step 9).
func (m *Manager) Subscribe(sourceID, subscriberID string) error {
	_, inst, ok := m.instances.Get(sourceID)
	if !ok {
		return &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	inst.Subscribe(subscriberID)
	return nil
}

// Unsubscribe removes subscriberID from sourceID's subscriber set.
func (m *Manager) Unsubscribe(sourceID, subscriberID string) error {
	_, inst, ok := m.instances.Get(sourceID)
	if !ok {
		return &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	inst.Unsubscribe(subscriberID)
	return nil
}

// Broadcast fans event_type/payload out to every matching instance's
// handle_external_event in a worker-pool-bounded task, isolating failures
// (§4.2.3).
func (m *Manager) Broadcast(ctx context.Context, eventType string, payload map[string]interface{}, tenantID string, all bool) {
	var wg sync.WaitGroup
	count := 0
	var countMu sync.Mutex

	deliver := func(tid, kindName string, inst *navigator.Instance) {
		def, ok := m.kinds.Get(kindName)
		if !ok {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case m.broadcastSem <- struct{}{}:
				defer func() { <-m.broadcastSem }()
			case <-ctx.Done():
				return
			}
			src := kind.ExternalSource{KindName: kindName, InstanceID: inst.InstanceID()}
			m.nav.HandleExternal(def, inst, src, eventType, payload)
			countMu.Lock()
			count++
			countMu.Unlock()
		}()
	}

	if all {
		m.instances.ForEachAll(func(tid, kindName string, inst *navigator.Instance) {
			deliver(tid, kindName, inst)
		})
	} else {
		m.instances.ForEachTenant(tenantID, func(kindName string, inst *navigator.Instance) {
			deliver(tenantID, kindName, inst)
		})
	}
	wg.Wait()
	m.bus.Emit(telemetry.BroadcastEvent(eventType, tenantID, count))
}

// CancelEffects is cancel_effects (§6.1, §4.3.5).
func (m *Manager) CancelEffects(instanceID string) error {
	if _, _, ok := m.instances.Get(instanceID); !ok {
		return &navigator.Error{Reason: navigator.ReasonNotFound}
	}
	if m.effects != nil {
		m.effects.CancelEffects(instanceID)
	}
	return nil
}

// AvailableKinds is available_kinds (§6.1, component J).
func (m *Manager) AvailableKinds() []kind.Describe {
	return m.kinds.List()
}
