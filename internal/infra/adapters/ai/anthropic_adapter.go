package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"

	"research-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

// AnthropicAdapter implements adapter.AIServiceAdapter using the Messages API.
type AnthropicAdapter struct {
	client       anthropic.Client
	defaultModel string
}

func NewAnthropicAdapter(apiKey, baseURL, defaultModel string, timeout time.Duration) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-latest"
	}
	opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, aoption.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, aoption.WithRequestTimeout(timeout))
	}
	return &AnthropicAdapter{client: anthropic.NewClient(opts...), defaultModel: defaultModel}, nil
}

func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{a.defaultModel}, nil
}

func (a *AnthropicAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return EstimateTokens(modelOrDefault(model, a.defaultModel), messages), nil
}

func (a *AnthropicAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	mdl := modelOrDefault(req.Model, a.defaultModel)
	maxOut := int64(req.MaxOutputTokens)
	if maxOut <= 0 {
		maxOut = 1024 // required by the API
	}

	system, msgs := toAnthropicMessages(req.Messages)
	if len(msgs) == 0 {
		return adapter.Completion{}, errors.New("anthropic: no user messages")
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(mdl),
		MaxTokens: maxOut,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return adapter.Completion{
		Text:  sb.String(),
		Model: mdl,
		Usage: adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// toAnthropicMessages lifts system messages into the top-level system prompt.
func toAnthropicMessages(msgs []adapter.Message) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if strings.ToLower(m.Role) == adapter.RoleSystem {
			system = append(system, m.Text())
			continue
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case adapter.PartImage:
				mime := p.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				blocks = append(blocks, anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(p.Data)))
			default:
				blocks = append(blocks, anthropic.NewTextBlock(p.Text))
			}
		}
		if strings.ToLower(m.Role) == adapter.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return strings.Join(system, "\n\n"), out
}
