package kind

import (
	"fmt"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

// Builder constructs an immutable KindDefinition, mirroring
// statemachine.StateMachineBuilder's fluent style: each method returns the
// same *Builder, errors accumulate and surface at Build().
type Builder struct {
	name         string
	initialState string
	states       map[string]State
	stateOrder   []string
	transitions    []Transition
	validators     []NamedGuard
	plugins        []Plugin
	handleExternal ExternalHandler
	err            error
}

// NewBuilder starts a Kind definition named name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		states: make(map[string]State),
	}
}

// InitialState sets the state new instances start in.
func (b *Builder) InitialState(name string) *Builder {
	b.initialState = name
	return b
}

// AddState declares a state, applying any StateOptions.
func (b *Builder) AddState(name string, opts ...StateOption) *Builder {
	if b.err != nil {
		return b
	}
	s := State{Name: name}
	for _, o := range opts {
		o(&s)
	}
	if _, exists := b.states[name]; !exists {
		b.stateOrder = append(b.stateOrder, name)
	}
	b.states[name] = s
	return b
}

// StateOption configures a state at AddState time.
type StateOption func(*State)

func OnEnter(name string, h Hook) StateOption {
	return func(s *State) { s.OnEnter = append(s.OnEnter, NamedHook{Name: name, Hook: h}) }
}

func OnExit(name string, h Hook) StateOption {
	return func(s *State) { s.OnExit = append(s.OnExit, NamedHook{Name: name, Hook: h}) }
}

// WithEntryEffect attaches the effect tree triggered fire-and-forget when
// the state is entered (§4.1.2 step 8).
func WithEntryEffect(n *effects.Node) StateOption {
	return func(s *State) { s.EntryEffect = n }
}

// AddTransition declares a (from, event, to) edge guarded by guards, in
// declaration order (§4.1.1).
func (b *Builder) AddTransition(from, event, to string, guards ...NamedGuard) *Builder {
	if b.err != nil {
		return b
	}
	b.transitions = append(b.transitions, Transition{From: from, Event: event, To: to, Guards: guards})
	return b
}

// Guarded names a Guard for use in AddTransition/AddValidator.
func Guarded(name string, g Guard) NamedGuard { return NamedGuard{Name: name, Guard: g} }

// AddValidator appends a kind-wide guard run before any transition-specific
// guard (§4.1.2 step 2).
func (b *Builder) AddValidator(name string, v Guard) *Builder {
	b.validators = append(b.validators, NamedGuard{Name: name, Guard: v})
	return b
}

// AddPlugin attaches a cross-cutting before/after observer (§4.1.3).
func (b *Builder) AddPlugin(p Plugin) *Builder {
	b.plugins = append(b.plugins, p)
	return b
}

// HandleExternal sets the kind's external-event reducer (§4.1.1).
func (b *Builder) HandleExternal(h ExternalHandler) *Builder {
	b.handleExternal = h
	return b
}

// AddComponent merges a reusable fragment's states and transitions in.
// State names must be disjoint from what's already declared unless
// override is true, matching "merging enforces disjoint state names across
// components unless a later declaration explicitly overrides" (§4.1.3).
func (b *Builder) AddComponent(c Component, override bool) *Builder {
	if b.err != nil {
		return b
	}
	for _, s := range c.States {
		if _, exists := b.states[s.Name]; exists && !override {
			b.err = fmt.Errorf("kind %q: component %q redeclares state %q without override", b.name, c.Name, s.Name)
			return b
		}
		if _, exists := b.states[s.Name]; !exists {
			b.stateOrder = append(b.stateOrder, s.Name)
		}
		b.states[s.Name] = s
	}
	b.transitions = append(b.transitions, c.Transitions...)
	return b
}

// Build validates and flattens the definition. Errors: an undeclared
// initial/destination state, an unresolved transition source, or a
// same-from/event pair declared twice with different destinations
// (§4.1.2's tie-break rule).
func (b *Builder) Build() (*KindDefinition, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.name == "" {
		return nil, fmt.Errorf("kind: name is required")
	}
	if _, ok := b.states[b.initialState]; !ok {
		return nil, fmt.Errorf("kind %q: initial_state %q is not a declared state", b.name, b.initialState)
	}

	index := make(map[string]int, len(b.transitions))
	kept := make([]Transition, 0, len(b.transitions))
	for _, t := range b.transitions {
		if _, ok := b.states[t.From]; !ok {
			return nil, fmt.Errorf("kind %q: transition from undeclared state %q", b.name, t.From)
		}
		if _, ok := b.states[t.To]; !ok {
			return nil, fmt.Errorf("kind %q: transition to undeclared state %q", b.name, t.To)
		}
		key := t.From + "\x00" + t.Event
		if existingIdx, ok := index[key]; ok {
			existing := kept[existingIdx]
			if existing.To != t.To {
				return nil, fmtTieBreakErr(t.From, t.Event, existing.To, t.To)
			}
			continue // identical duplicate: first declared wins, silently
		}
		index[key] = len(kept)
		kept = append(kept, t)
	}

	return &KindDefinition{
		Name:            b.name,
		InitialState:    b.initialState,
		states:          b.states,
		stateOrder:      b.stateOrder,
		transitions:     kept,
		transitionIndex: index,
		validators:      b.validators,
		plugins:         b.plugins,
		handleExternal:  b.handleExternal,
	}, nil
}
