// Package kind defines FSM Kind blueprints (§4.1 of the runtime this module
// implements): states, transitions, guards, lifecycle hooks, component
// composition and plugins. A Kind is immutable once built; package
// navigator drives instances against it.
//
// Grounded on fluxor's pkg/statemachine: StateMachineDefinition/
// StateDefinition/TransitionDefinition become KindDefinition/State/
// Transition, and the builder style of
// statemachine.NewStateMachineBuilder(...).AddState(...).AddTransition(...)
// carries over almost unchanged. Guard/Action funcs close over an Instance
// interface instead of *statemachine.Event so kind has no dependency on the
// concrete instance type navigator provides (avoiding an import cycle
// between the two packages).
package kind

import (
	"fmt"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

// Instance is the read/write surface guards, hooks and plugins see. The
// navigator's Instance type implements this structurally; kind never
// imports navigator.
type Instance interface {
	InstanceID() string
	TenantID() string
	State() string
	Data() map[string]interface{}
	SetData(key string, value interface{})
}

// Guard evaluates whether a transition may proceed.
type Guard func(inst Instance, event string, eventData map[string]interface{}) bool

// Hook runs a side-effecting step on entry/exit of a state. A non-nil error
// aborts the transition in progress.
type Hook func(inst Instance) error

// PluginHook observes every transition of every state; it cannot veto.
type PluginHook func(inst Instance, event string, eventData map[string]interface{})

// NamedGuard pairs a Guard with the name reported in a guard_denied{name}
// failure (§4.1.1's send/2 reasons).
type NamedGuard struct {
	Name  string
	Guard Guard
}

// NamedHook pairs a Hook with the name reported in a hook_failed{name}
// failure.
type NamedHook struct {
	Name string
	Hook Hook
}

// State is one node of a Kind's state graph.
type State struct {
	Name        string
	OnEnter     []NamedHook
	OnExit      []NamedHook
	EntryEffect *effects.Node // triggered fire-and-forget on entry, §4.1.2 step 8
}

// Transition is one (from, event, to) edge, guarded by zero or more Guards
// evaluated in declaration order.
type Transition struct {
	From   string
	Event  string
	To     string
	Guards []NamedGuard
}

// Plugin registers ordered before/after observers attached to every
// transition of the kind they're added to (§4.1.3).
type Plugin struct {
	Name   string
	Before PluginHook
	After  PluginHook
}

// ExternalSource identifies the origin of a subscriber notification or
// broadcast delivered to handle_external (§4.1.1).
type ExternalSource struct {
	KindName   string
	InstanceID string
}

// ExternalResult is handle_external's `I'` (§4.1.1): the reducer's next
// state and data for the navigator to commit. NextState empty means the
// instance's current_state is left unchanged; Data is shallow-merged into
// the instance's existing data either way.
type ExternalResult struct {
	NextState string
	Data      map[string]interface{}
}

// ExternalHandler is the user-overridable reducer invoked for subscriber
// notifications and tenant broadcasts: `handle_external(I, source,
// event_type, event_data) -> I'` (§4.1.1). It must be total: panics and
// errors are caught by the caller and treated as a no-op (the instance
// returned unchanged), per "must be total; failures are caught".
type ExternalHandler func(inst Instance, source ExternalSource, eventType string, eventData map[string]interface{}) (ExternalResult, error)

// Component bundles a reusable fragment of states, transitions and hooks,
// merged into a KindDefinition at build time (§4.1.3, §9's "component
// macro becomes a merge operation at definition time").
type Component struct {
	Name        string
	States      []State
	Transitions []Transition
}

// KindDefinition is the immutable, flattened result of building a Kind:
// every component merged, every plugin attached, in one value. Matches
// statemachine.StateMachineDefinition's role but keeps Go func values
// instead of a JSON-serializable guard/action name, since this runtime has
// no macro stage to resolve symbolic references at load time.
type KindDefinition struct {
	Name         string
	InitialState string
	states       map[string]State
	stateOrder   []string
	transitions  []Transition
	// transitionIndex resolves (from, event) -> transition index for O(1)
	// lookup; built once at Build().
	transitionIndex map[string]int
	validators      []NamedGuard
	plugins         []Plugin
	handleExternal  ExternalHandler
}

// HandleExternal returns the kind's external-event reducer, or nil if the
// kind declared none (in which case external notifications are ignored).
func (k *KindDefinition) HandleExternal() ExternalHandler {
	return k.handleExternal
}

// State returns the named state and whether it exists.
func (k *KindDefinition) State(name string) (State, bool) {
	s, ok := k.states[name]
	return s, ok
}

// States returns the declared state names in declaration order.
func (k *KindDefinition) States() []string {
	out := make([]string, len(k.stateOrder))
	copy(out, k.stateOrder)
	return out
}

// Events returns the distinct event names recognized from any state, sorted
// by first declaration.
func (k *KindDefinition) Events() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range k.transitions {
		if !seen[t.Event] {
			seen[t.Event] = true
			out = append(out, t.Event)
		}
	}
	return out
}

// Validators returns the kind-wide guards evaluated before any
// transition-specific guard (§4.1.2 step 2).
func (k *KindDefinition) Validators() []NamedGuard {
	return k.validators
}

// Plugins returns the attached cross-cutting observers in declaration order.
func (k *KindDefinition) Plugins() []Plugin {
	return k.plugins
}

// Resolve finds the transition for (from, event), honoring the "first
// declared wins" tie-break (§4.1.2).
func (k *KindDefinition) Resolve(from, event string) (Transition, bool) {
	idx, ok := k.transitionIndex[from+"\x00"+event]
	if !ok {
		return Transition{}, false
	}
	return k.transitions[idx], true
}

// CanTransition reports whether (from, event) resolves to some destination,
// without evaluating guards.
func (k *KindDefinition) CanTransition(from, event string) bool {
	_, ok := k.Resolve(from, event)
	return ok
}

// Destinations returns the set of states reachable from `from` by any
// single declared event.
func (k *KindDefinition) Destinations(from string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range k.transitions {
		if t.From == from && !seen[t.To] {
			seen[t.To] = true
			out = append(out, t.To)
		}
	}
	return out
}

// Describe is the introspection payload for Module discovery's
// available_kinds() (§6.1, component J).
type Describe struct {
	Name   string   `json:"name"`
	States []string `json:"states"`
	Events []string `json:"events"`
}

func (k *KindDefinition) Describe() Describe {
	return Describe{Name: k.Name, States: k.States(), Events: k.Events()}
}

func fmtTieBreakErr(from, event, existing, attempted string) error {
	return fmt.Errorf("kind: duplicate transition (%s, %s) -> %s conflicts with already-declared -> %s", from, event, attempted, existing)
}
