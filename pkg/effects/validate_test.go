package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_RejectsUnknownKind(t *testing.T) {
	err := Validate(&Node{Kind: "nonsense"})
	assert.Error(t, err)
}

func TestValidate_CallRequiresModuleAndFunction(t *testing.T) {
	assert.Error(t, Validate(&Node{Kind: KindCall}))
	assert.NoError(t, Validate(Call("m", "f")))
}

func TestValidate_SequenceRequiresChildrenAndRecurses(t *testing.T) {
	assert.Error(t, Validate(Sequence()))
	assert.Error(t, Validate(Sequence(&Node{Kind: KindDelay, Ms: 0})))
	assert.NoError(t, Validate(Sequence(Delay(10))))
}

func TestValidate_RetryRequiresChildAndValidAttempts(t *testing.T) {
	assert.Error(t, Validate(Retry(nil, RetryOpts{Attempts: 1})))
	assert.Error(t, Validate(Retry(Delay(1), RetryOpts{Attempts: 0})))
	assert.NoError(t, Validate(Retry(Delay(1), RetryOpts{Attempts: 1})))
}

func TestValidate_WithCompensationRequiresBothBranches(t *testing.T) {
	assert.Error(t, Validate(WithCompensation(Delay(1), nil)))
	assert.NoError(t, Validate(WithCompensation(Delay(1), Delay(1))))
}

func TestValidate_CallLLMRequiresProviderModelPrompt(t *testing.T) {
	assert.Error(t, Validate(CallLLM(LLMOpts{})))
	assert.NoError(t, Validate(CallLLM(LLMOpts{Provider: "openai", Model: "gpt", Prompt: "hi"})))
}

func TestValidate_CoordinateAgentsRequiresAgentsAndKnownType(t *testing.T) {
	assert.Error(t, Validate(CoordinateAgents(nil, CoordinationSequential, "")))
	assert.Error(t, Validate(CoordinateAgents([]AgentSpec{{Name: "a"}}, "bogus", "")))
	assert.NoError(t, Validate(CoordinateAgents([]AgentSpec{{Name: "a"}}, CoordinationSequential, "")))
}

func TestValidate_RAGPipelineRequiresQueryStrategyAndKBs(t *testing.T) {
	assert.Error(t, Validate(RAGPipeline(RAGOpts{})))
	assert.NoError(t, Validate(RAGPipeline(RAGOpts{Query: "q", RetrievalStrategy: "dense", KnowledgeBases: []string{"kb1"}})))
}
