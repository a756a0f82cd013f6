package effects

import "context"

// DataStore is the engine's view of an FSM instance's bound data, satisfied
// by the navigator's Instance type. put_data/get_data nodes and the
// ResultRef/DataRef sentinels go through this interface instead of touching
// instance state directly, so the engine never depends on package navigator
// (breaking what would otherwise be a navigator <-> effects import cycle).
type DataStore interface {
	Get(key string) (interface{}, bool)
	Put(key string, value interface{})
}

// CallFunc is the signature every capability-registry entry implements.
type CallFunc func(ctx context.Context, args []interface{}) (interface{}, error)

// CapabilityRegistry resolves (module, function) pairs used by call nodes
// to a CallFunc. It is the only way effect trees reach outside the engine
// for arbitrary side effects (§4.3.2's "call" node).
type CapabilityRegistry struct {
	fns map[string]CallFunc
}

// NewCapabilityRegistry returns an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{fns: make(map[string]CallFunc)}
}

// Register binds module.function to fn, overwriting any previous binding.
func (r *CapabilityRegistry) Register(module, function string, fn CallFunc) {
	r.fns[module+"."+function] = fn
}

// Lookup resolves module.function, reporting whether a binding exists.
func (r *CapabilityRegistry) Lookup(module, function string) (CallFunc, bool) {
	fn, ok := r.fns[module+"."+function]
	return fn, ok
}

// LLMCompletion is the normalized result of a call_llm node.
type LLMCompletion struct {
	Text         string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// LLMPort is a capability port (§4.3.2 design note): one implementation per
// configured provider name. pkg/capability supplies a deterministic stub and
// an OpenAI-backed concrete port.
type LLMPort interface {
	Complete(ctx context.Context, opts LLMOpts) (LLMCompletion, error)
}

// AgentResult is one participant's contribution to coordinate_agents.
type AgentResult struct {
	Agent  string
	Output string
	Err    error
}

// AgentCoordinator drives a coordinate_agents node. Sequential/parallel/
// consensus composition is the engine's job; the port only runs one agent
// at a time.
type AgentCoordinator interface {
	RunAgent(ctx context.Context, spec AgentSpec) (AgentResult, error)
}

// RAGResult is the normalized result of a rag_pipeline node.
type RAGResult struct {
	Answer           string
	SourcesRetrieved []string
	ContextTokens    int
}

// RAGPort is a capability port for rag_pipeline nodes.
type RAGPort interface {
	Query(ctx context.Context, opts RAGOpts) (RAGResult, error)
}
