package ai

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*instrumentedAI)(nil)

// instrumentedAI records latency and token usage for every completion.
type instrumentedAI struct {
	inner    adapter.AIServiceAdapter
	provider string
	logger   *zerolog.Logger
}

func NewInstrumentedAI(inner adapter.AIServiceAdapter, provider string, logger *zerolog.Logger) adapter.AIServiceAdapter {
	l := logger.With().Str("component", "ai").Str("provider", provider).Logger()
	return &instrumentedAI{inner: inner, provider: provider, logger: &l}
}

func (i *instrumentedAI) ListModels(ctx context.Context) ([]string, error) {
	return i.inner.ListModels(ctx)
}

func (i *instrumentedAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return i.inner.CountTokens(ctx, model, messages)
}

func (i *instrumentedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	start := time.Now()
	resp, err := i.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	mdl := resp.Model
	if mdl == "" {
		mdl = req.Model
	}
	metrics.ObserveAICall(i.provider, mdl, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens,
		elapsed.Milliseconds(), err == nil)

	ev := i.logger.Debug()
	if err != nil {
		ev = i.logger.Warn().Err(err)
	}
	ev.Str("model", mdl).
		Int("max_tokens", req.MaxOutputTokens).
		Int("tokens_in", resp.Usage.PromptTokens).
		Int("tokens_out", resp.Usage.CompletionTokens).
		Dur("latency", elapsed).
		Msg("completion")
	return resp, err
}
