package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go-advisor/internal/llm"
)

// ContextualResponder is the retrieval-augmented answer capability that
// memory context is layered on top of.
type ContextualResponder interface {
	Respond(ctx context.Context, userID, query string, extra map[string]any) (string, error)
}

// Generator is the text generation capability the LLMResponder calls.
type Generator interface {
	Invoke(ctx context.Context, p llm.Prompt) (string, error)
}

const responderSystem = "You answer the user's question directly and briefly. Use the supplied context when it is relevant and ignore it otherwise."

// LLMResponder answers a query with one generation call.
type LLMResponder struct {
	gen Generator
}

func NewLLMResponder(gen Generator) *LLMResponder {
	return &LLMResponder{gen: gen}
}

func (r *LLMResponder) Respond(ctx context.Context, userID, query string, extra map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	if len(extra) > 0 {
		b.WriteString("\n\nContext:\n")
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, extra[k])
		}
	}
	answer, err := r.gen.Invoke(ctx, llm.Prompt{System: responderSystem, User: b.String()})
	if err != nil {
		return "", fmt.Errorf("respond for %s: %w", userID, err)
	}
	return strings.TrimSpace(answer), nil
}
