package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Caller is the queue-backed transport a generator sends payloads through.
type Caller interface {
	Call(ctx context.Context, url string, payload map[string]any) ([]byte, error)
}

// ChatGenerator turns a Prompt into one OpenAI-compatible chat completion.
type ChatGenerator struct {
	caller      Caller
	url         string
	model       string
	temperature float64
}

// NewChatGenerator targets baseURL's /v1/chat/completions endpoint.
func NewChatGenerator(caller Caller, baseURL, model string, temperature float64) *ChatGenerator {
	return &ChatGenerator{
		caller:      caller,
		url:         ChatCompletionsURL(baseURL),
		model:       model,
		temperature: temperature,
	}
}

// ChatCompletionsURL appends the chat completions path unless baseURL
// already points at it.
func ChatCompletionsURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/v1/chat/completions"
}

func (g *ChatGenerator) Invoke(ctx context.Context, p Prompt) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if p.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": p.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": p.User})

	payload := map[string]any{
		"model":       g.model,
		"messages":    messages,
		"temperature": g.temperature,
		"stream":      false,
	}

	respBody, err := g.caller.Call(ctx, g.url, payload)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}

	// Parse standard OpenAI-style response
	var llmResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &llmResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return "", errors.New("no choices returned from llm")
	}
	return strings.TrimSpace(llmResp.Choices[0].Message.Content), nil
}
