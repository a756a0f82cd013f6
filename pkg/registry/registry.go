// Package registry implements the sharded instance registry (component E)
// and the Manager facade (component H) described in §4.2: a tenant-sharded
// in-memory index of live FSM instances, single-writer-per-shard, backed
// by the blob store and event log for durability.
package registry

import (
	"sync"

	"github.com/fluxorio/fsmruntime/pkg/navigator"
	"github.com/fluxorio/fsmruntime/pkg/shard"
)

type entry struct {
	kindName string
	inst     *navigator.Instance
}

type shardData struct {
	mu        sync.Mutex
	instances map[string]entry            // instance_id -> entry
	byTenant  map[string]map[string]bool  // tenant_id -> set<instance_id>
}

// Registry is the sharded `{tenant_id, instance_id} -> (kind, instance)`
// index of §4.2.1. Shard selection is `fnv1a(tenant_id) mod N`; each shard
// has a single logical writer (every Registry method that touches a shard
// holds that shard's mutex for the duration of the access).
type Registry struct {
	shards []*shardData
	n      int

	idxMu         sync.RWMutex
	instanceShard map[string]int // instance_id -> shard index, for get(id) without a tenant
}

// New builds a Registry with n shards.
func New(n int) *Registry {
	shards := make([]*shardData, n)
	for i := range shards {
		shards[i] = &shardData{instances: make(map[string]entry), byTenant: make(map[string]map[string]bool)}
	}
	return &Registry{shards: shards, n: n, instanceShard: make(map[string]int)}
}

func (r *Registry) shardFor(tenantID string) *shardData {
	return r.shards[shard.Of(tenantID, r.n)]
}

// Put registers or replaces inst under tenantID/kindName.
func (r *Registry) Put(tenantID, kindName string, inst *navigator.Instance) {
	idx := shard.Of(tenantID, r.n)
	s := r.shards[idx]

	s.mu.Lock()
	s.instances[inst.InstanceID()] = entry{kindName: kindName, inst: inst}
	set, ok := s.byTenant[tenantID]
	if !ok {
		set = make(map[string]bool)
		s.byTenant[tenantID] = set
	}
	set[inst.InstanceID()] = true
	s.mu.Unlock()

	r.idxMu.Lock()
	r.instanceShard[inst.InstanceID()] = idx
	r.idxMu.Unlock()
}

// Get resolves instanceID to its kind name and instance.
func (r *Registry) Get(instanceID string) (string, *navigator.Instance, bool) {
	r.idxMu.RLock()
	idx, ok := r.instanceShard[instanceID]
	r.idxMu.RUnlock()
	if !ok {
		return "", nil, false
	}
	s := r.shards[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.instances[instanceID]
	if !ok {
		return "", nil, false
	}
	return e.kindName, e.inst, true
}

// Delete removes instanceID from the registry.
func (r *Registry) Delete(tenantID, instanceID string) {
	idx := shard.Of(tenantID, r.n)
	s := r.shards[idx]
	s.mu.Lock()
	delete(s.instances, instanceID)
	if set, ok := s.byTenant[tenantID]; ok {
		delete(set, instanceID)
		if len(set) == 0 {
			delete(s.byTenant, tenantID)
		}
	}
	s.mu.Unlock()

	r.idxMu.Lock()
	delete(r.instanceShard, instanceID)
	r.idxMu.Unlock()
}

// ListByTenant returns every instance registered under tenantID. Isolation
// (§8.1) is structural: only that tenant's shard bucket is read.
func (r *Registry) ListByTenant(tenantID string) []*navigator.Instance {
	s := r.shardFor(tenantID)
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byTenant[tenantID]
	out := make([]*navigator.Instance, 0, len(ids))
	for id := range ids {
		if e, ok := s.instances[id]; ok {
			out = append(out, e.inst)
		}
	}
	return out
}

// ForEachTenant invokes fn for every instance registered under tenantID.
func (r *Registry) ForEachTenant(tenantID string, fn func(kindName string, inst *navigator.Instance)) {
	s := r.shardFor(tenantID)
	s.mu.Lock()
	ids := make([]string, 0, len(s.byTenant[tenantID]))
	for id := range s.byTenant[tenantID] {
		ids = append(ids, id)
	}
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.instances[id]; ok {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		fn(e.kindName, e.inst)
	}
}

// ForEachAll invokes fn for every instance in every tenant (the `:all`
// broadcast target, §4.2.3).
func (r *Registry) ForEachAll(fn func(tenantID, kindName string, inst *navigator.Instance)) {
	for _, s := range r.shards {
		s.mu.Lock()
		entries := make(map[string]entry, len(s.instances))
		tenantOf := make(map[string]string, len(s.instances))
		for tid, ids := range s.byTenant {
			for id := range ids {
				tenantOf[id] = tid
			}
		}
		for id, e := range s.instances {
			entries[id] = e
		}
		s.mu.Unlock()

		for id, e := range entries {
			fn(tenantOf[id], e.kindName, e.inst)
		}
	}
}

// ShardStats is the per-shard instance count in Stats().
type ShardStats struct {
	Shard int `json:"shard"`
	Count int `json:"count"`
}

// Stats reports the instance distribution across shards.
func (r *Registry) Stats() (perShard []ShardStats, total int) {
	for i, s := range r.shards {
		s.mu.Lock()
		n := len(s.instances)
		s.mu.Unlock()
		perShard = append(perShard, ShardStats{Shard: i, Count: n})
		total += n
	}
	return perShard, total
}
