// Package effects implements the declarative effect tree described in §4.3
// of the specification: an interpreter for sequence/parallel/race/retry/
// timeout/with_compensation/call/delay/log/data-ops/call_llm/
// coordinate_agents/rag_pipeline nodes, with telemetry, cancellation and
// per-instance concurrency scoping.
//
// The tree is represented as a flat tagged struct rather than an interface
// hierarchy, matching the teacher's declarative-definition style (fluxor's
// statemachine.ActionDefinition / workflow.NodeDefinition): one JSON- and
// YAML-serializable value type, discriminated by Kind, carrying only the
// fields its kind needs.
package effects

import "github.com/fluxorio/fsmruntime/pkg/rtconfig"

// Kind identifies the effect node's operation.
type Kind string

const (
	KindCall               Kind = "call"
	KindDelay              Kind = "delay"
	KindLog                Kind = "log"
	KindPutData            Kind = "put_data"
	KindGetData            Kind = "get_data"
	KindSequence           Kind = "sequence"
	KindParallel           Kind = "parallel"
	KindRace               Kind = "race"
	KindRetry              Kind = "retry"
	KindTimeout            Kind = "timeout"
	KindWithCompensation   Kind = "with_compensation"
	KindCallLLM            Kind = "call_llm"
	KindCoordinateAgents   Kind = "coordinate_agents"
	KindRAGPipeline        Kind = "rag_pipeline"
)

// CoordinationType selects how coordinate_agents composes its agent specs.
type CoordinationType string

const (
	CoordinationSequential CoordinationType = "sequential"
	CoordinationParallel   CoordinationType = "parallel"
	CoordinationConsensus  CoordinationType = "consensus"
)

// LogLevel mirrors the levels recognized by pkg/corelog.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// AgentSpec describes one participant passed to coordinate_agents.
type AgentSpec struct {
	Name   string                 `json:"name" yaml:"name"`
	Role   string                 `json:"role,omitempty" yaml:"role,omitempty"`
	Prompt string                 `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// LLMOpts is the call_llm opts contract (§4.3.1): at minimum provider,
// model and prompt; system/max_tokens/temperature are optional.
type LLMOpts struct {
	Provider    string  `json:"provider" yaml:"provider"`
	Model       string  `json:"model" yaml:"model"`
	Prompt      string  `json:"prompt" yaml:"prompt"`
	System      string  `json:"system,omitempty" yaml:"system,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// RAGOpts is the rag_pipeline opts contract.
type RAGOpts struct {
	Query             string   `json:"query" yaml:"query"`
	RetrievalStrategy string   `json:"retrieval_strategy" yaml:"retrieval_strategy"`
	KnowledgeBases    []string `json:"knowledge_bases" yaml:"knowledge_bases"`
	MaxContextTokens  int      `json:"max_context_tokens,omitempty" yaml:"max_context_tokens,omitempty"`
}

// RetryOpts configures a retry node. An empty Backoff and a non-positive
// BaseMs fall back to the runtime's rtconfig.RetryDefault; Attempts has no
// fallback and must be at least 1 (Validate rejects the tree otherwise).
type RetryOpts struct {
	Attempts int                 `json:"attempts" yaml:"attempts"`
	Backoff  rtconfig.BackoffKind `json:"backoff,omitempty" yaml:"backoff,omitempty"`
	BaseMs   int                 `json:"base_ms,omitempty" yaml:"base_ms,omitempty"`
	Jitter   *bool               `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}

// JitterEnabled reports whether jitter applies, defaulting to true when
// unset (per §4.3.2's "unless jitter: false").
func (r RetryOpts) JitterEnabled() bool {
	return r.Jitter == nil || *r.Jitter
}

// Node is one element of the effect tree (§4.3.1 grammar E). Only the
// fields relevant to Kind are populated; Validate (validate.go) enforces
// this before execution.
type Node struct {
	Kind Kind `json:"kind" yaml:"kind"`

	// call
	Module   string        `json:"module,omitempty" yaml:"module,omitempty"`
	Function string        `json:"function,omitempty" yaml:"function,omitempty"`
	Args     []interface{} `json:"args,omitempty" yaml:"args,omitempty"`

	// delay / timeout
	Ms int `json:"ms,omitempty" yaml:"ms,omitempty"`

	// log
	Level   LogLevel `json:"level,omitempty" yaml:"level,omitempty"`
	Message string   `json:"message,omitempty" yaml:"message,omitempty"`

	// put_data / get_data
	Key   string      `json:"key,omitempty" yaml:"key,omitempty"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`

	// sequence / parallel / race
	Children []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	// retry / timeout / with_compensation (main branch)
	Child *Node `json:"child,omitempty" yaml:"child,omitempty"`

	// retry
	Retry RetryOpts `json:"retry,omitempty" yaml:"retry,omitempty"`

	// with_compensation
	Rollback *Node `json:"rollback,omitempty" yaml:"rollback,omitempty"`

	// call_llm
	LLM LLMOpts `json:"llm,omitempty" yaml:"llm,omitempty"`

	// coordinate_agents
	Agents           []AgentSpec      `json:"agents,omitempty" yaml:"agents,omitempty"`
	Coordination     CoordinationType `json:"coordination,omitempty" yaml:"coordination,omitempty"`
	SuccessCriteria  string           `json:"success_criteria,omitempty" yaml:"success_criteria,omitempty"`

	// rag_pipeline
	RAG RAGOpts `json:"rag,omitempty" yaml:"rag,omitempty"`
}

// --- Builders -------------------------------------------------------------

func Call(module, function string, args ...interface{}) *Node {
	return &Node{Kind: KindCall, Module: module, Function: function, Args: args}
}

func Delay(ms int) *Node { return &Node{Kind: KindDelay, Ms: ms} }

func Log(level LogLevel, msg string) *Node {
	return &Node{Kind: KindLog, Level: level, Message: msg}
}

func PutData(key string, value interface{}) *Node {
	return &Node{Kind: KindPutData, Key: key, Value: value}
}

func GetData(key string) *Node { return &Node{Kind: KindGetData, Key: key} }

func Sequence(children ...*Node) *Node { return &Node{Kind: KindSequence, Children: children} }

func Parallel(children ...*Node) *Node { return &Node{Kind: KindParallel, Children: children} }

func Race(children ...*Node) *Node { return &Node{Kind: KindRace, Children: children} }

func Retry(child *Node, opts RetryOpts) *Node {
	return &Node{Kind: KindRetry, Child: child, Retry: opts}
}

func Timeout(child *Node, ms int) *Node {
	return &Node{Kind: KindTimeout, Child: child, Ms: ms}
}

func WithCompensation(main, rollback *Node) *Node {
	return &Node{Kind: KindWithCompensation, Child: main, Rollback: rollback}
}

func CallLLM(opts LLMOpts) *Node { return &Node{Kind: KindCallLLM, LLM: opts} }

func CoordinateAgents(agents []AgentSpec, coordination CoordinationType, successCriteria string) *Node {
	return &Node{Kind: KindCoordinateAgents, Agents: agents, Coordination: coordination, SuccessCriteria: successCriteria}
}

func RAGPipeline(opts RAGOpts) *Node { return &Node{Kind: KindRAGPipeline, RAG: opts} }
