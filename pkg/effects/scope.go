package effects

import "sync"

// scopeTable tracks the cancel funcs of in-flight executions, keyed by
// instance then execution ID, so cancel_effects(instance_id) (§4.3.5) can
// cancel every execution currently running for that instance without
// touching any other instance's work.
type scopeTable struct {
	mu     sync.Mutex
	byInst map[string]map[string]func()
}

func newScopeTable() *scopeTable {
	return &scopeTable{byInst: make(map[string]map[string]func())}
}

func (s *scopeTable) register(instanceID, executionID string, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byInst[instanceID]
	if !ok {
		m = make(map[string]func())
		s.byInst[instanceID] = m
	}
	m[executionID] = cancel
}

func (s *scopeTable) unregister(instanceID, executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byInst[instanceID]
	if !ok {
		return
	}
	delete(m, executionID)
	if len(m) == 0 {
		delete(s.byInst, instanceID)
	}
}

func (s *scopeTable) cancelAll(instanceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byInst[instanceID]
	if !ok {
		return 0
	}
	n := 0
	for _, cancel := range m {
		cancel()
		n++
	}
	return n
}
