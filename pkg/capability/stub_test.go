package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

func TestStubLLMPort_Deterministic(t *testing.T) {
	port := StubLLMPort{}
	opts := effects.LLMOpts{Model: "gpt-test", Prompt: "hello world"}

	a, err := port.Complete(context.Background(), opts)
	require.NoError(t, err)
	b, err := port.Complete(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, "stop", a.FinishReason)
}

func TestStubLLMPort_DifferentPromptsDifferentText(t *testing.T) {
	port := StubLLMPort{}
	a, err := port.Complete(context.Background(), effects.LLMOpts{Model: "m", Prompt: "hello"})
	require.NoError(t, err)
	b, err := port.Complete(context.Background(), effects.LLMOpts{Model: "m", Prompt: "goodbye"})
	require.NoError(t, err)
	assert.NotEqual(t, a.Text, b.Text)
}

func TestStubAgentCoordinator_EchoesName(t *testing.T) {
	coord := StubAgentCoordinator{}
	r, err := coord.RunAgent(context.Background(), effects.AgentSpec{Name: "researcher", Role: "analyst", Prompt: "investigate"})
	require.NoError(t, err)
	assert.Equal(t, "researcher", r.Agent)
	assert.Contains(t, r.Output, "researcher/analyst")
}

func TestStubRAGPort_ReturnsKnowledgeBasesAsSources(t *testing.T) {
	port := StubRAGPort{}
	r, err := port.Query(context.Background(), effects.RAGOpts{
		Query:             "what is fsmrt",
		RetrievalStrategy: "dense",
		KnowledgeBases:    []string{"kb-a", "kb-b"},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kb-a", "kb-b"}, r.SourcesRetrieved)
	assert.Contains(t, r.Answer, "dense")
}
