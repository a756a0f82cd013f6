package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

// StubLLMPort returns a deterministic completion derived from the prompt's
// hash rather than calling a provider, so call_llm effect trees are
// reproducible in tests and offline demos without network access.
type StubLLMPort struct{}

func (StubLLMPort) Complete(_ context.Context, opts effects.LLMOpts) (effects.LLMCompletion, error) {
	return effects.LLMCompletion{
		Text:         fmt.Sprintf("stub-completion[%s]:%s", opts.Model, digest(opts.Prompt)),
		FinishReason: "stop",
		PromptTokens: len(opts.Prompt) / 4,
		OutputTokens: 8,
	}, nil
}

// StubAgentCoordinator runs no real agent; it returns the agent's name and
// role plus a digest of its prompt, deterministically, so coordinate_agents
// trees are testable offline.
type StubAgentCoordinator struct{}

func (StubAgentCoordinator) RunAgent(_ context.Context, spec effects.AgentSpec) (effects.AgentResult, error) {
	return effects.AgentResult{
		Agent:  spec.Name,
		Output: fmt.Sprintf("stub-agent[%s/%s]:%s", spec.Name, spec.Role, digest(spec.Prompt)),
	}, nil
}

// StubRAGPort returns a deterministic answer and reports the requested
// knowledge bases as its retrieved sources.
type StubRAGPort struct{}

func (StubRAGPort) Query(_ context.Context, opts effects.RAGOpts) (effects.RAGResult, error) {
	return effects.RAGResult{
		Answer:           fmt.Sprintf("stub-rag[%s]:%s", opts.RetrievalStrategy, digest(opts.Query)),
		SourcesRetrieved: opts.KnowledgeBases,
		ContextTokens:    len(opts.Query) / 4,
	}, nil
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

var (
	_ effects.LLMPort          = StubLLMPort{}
	_ effects.AgentCoordinator = StubAgentCoordinator{}
	_ effects.RAGPort          = StubRAGPort{}
)
