// Package capability supplies concrete implementations of the effects
// engine's capability ports (pkg/effects.LLMPort / AgentCoordinator /
// RAGPort): a real OpenAI-backed LLM port grounded on aimodule's
// OpenAIClient, and deterministic stubs for environments without a live
// provider (tests, offline demos).
package capability

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fluxorio/fsmruntime/pkg/effects"
)

// OpenAILLMPort implements effects.LLMPort against the real OpenAI chat
// completions API, mirroring aimodule.OpenAIClient.Chat's request/response
// shaping and retry loop, narrowed to the single-prompt call_llm contract.
type OpenAILLMPort struct {
	client     *openai.Client
	maxRetries int
	timeout    time.Duration
}

// NewOpenAILLMPort builds a port from an API key. baseURL may be empty to
// use the default OpenAI endpoint.
func NewOpenAILLMPort(apiKey, baseURL string, maxRetries int, timeout time.Duration) *OpenAILLMPort {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAILLMPort{
		client:     openai.NewClientWithConfig(cfg),
		maxRetries: maxRetries,
		timeout:    timeout,
	}
}

func (p *OpenAILLMPort) Complete(ctx context.Context, opts effects.LLMOpts) (effects.LLMCompletion, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: opts.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: opts.Prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		resp, err = p.client.CreateChatCompletion(reqCtx, req)
		if err == nil {
			break
		}
		if reqCtx.Err() != nil {
			return effects.LLMCompletion{}, reqCtx.Err()
		}
		if attempt < p.maxRetries {
			time.Sleep(time.Duration(attempt+1) * time.Second)
		}
	}
	if err != nil {
		return effects.LLMCompletion{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return effects.LLMCompletion{}, fmt.Errorf("openai returned no choices")
	}

	choice := resp.Choices[0]
	return effects.LLMCompletion{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

var _ effects.LLMPort = (*OpenAILLMPort)(nil)
