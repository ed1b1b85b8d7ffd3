package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"research-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs without
// a provider key. It answers with short canned text derived from the request.
type NoopAIAdapter struct {
	delay time.Duration
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 50 * time.Millisecond}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{"noop-ai-model"}, nil
}

func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return EstimateTokens(model, messages), nil
}

func (a *NoopAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	// Simulate processing and respect ctx
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return adapter.Completion{}, ctx.Err()
	}

	var user string
	for _, m := range req.Messages {
		if m.Role == adapter.RoleUser {
			user = m.Text()
		}
	}

	var text string
	switch {
	case req.MaxOutputTokens > 0 && req.MaxOutputTokens <= 50:
		text = firstWords(user, 6)
	case strings.HasPrefix(user, "## Research Request\n"):
		prompt := strings.TrimPrefix(user, "## Research Request\n")
		if i := strings.Index(prompt, "\n"); i >= 0 {
			prompt = prompt[:i]
		}
		text = fmt.Sprintf("# Research Report\n\n## Introduction\n\nThis offline report answers: %s\n\n## References\n\n- (offline mode, no sources consulted)\n", prompt)
	default:
		text = firstWords(user, 40)
	}
	return adapter.Completion{
		Text:  text,
		Model: "noop-ai-model",
		Usage: adapter.Usage{PromptTokens: len(user) / 4, CompletionTokens: len(text) / 4, TotalTokens: (len(user) + len(text)) / 4},
	}, nil
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
