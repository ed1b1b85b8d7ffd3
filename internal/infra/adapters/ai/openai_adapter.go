package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions
// API. Pointing base at an OpenAI-compatible gateway (Metis) reuses it as is.
type OpenAIAdapter struct {
	client   openai.Client
	model    string
	provider string
}

type OpenAIOptions struct {
	APIKey   string
	BaseURL  string // empty keeps the SDK default
	Model    string
	Provider string // label used in metrics; "openai" by default
	Timeout  time.Duration
}

func NewOpenAIAdapter(o OpenAIOptions) (*OpenAIAdapter, error) {
	if o.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Provider == "" {
		o.Provider = "openai"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(o.APIKey),
		option.WithMaxRetries(2),
	}
	if o.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(o.BaseURL, "/")+"/"))
	}
	if o.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.Timeout))
	}
	return &OpenAIAdapter{
		client:   openai.NewClient(opts...),
		model:    o.Model,
		provider: o.Provider,
	}, nil
}

// NewMetisAdapter targets Metis's OpenAI-compatible gateway.
func NewMetisAdapter(apiKey, model, base string, timeout time.Duration) (*OpenAIAdapter, error) {
	if base == "" {
		base = "https://api.metisai.ir/openai/v1"
	}
	return NewOpenAIAdapter(OpenAIOptions{APIKey: apiKey, BaseURL: base, Model: model, Provider: "metis", Timeout: timeout})
}

func (o *OpenAIAdapter) Provider() string { return o.provider }

func (o *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{o.model}, nil
}

func (o *OpenAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return EstimateTokens(modelOrDefault(model, o.model), messages), nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	mdl := modelOrDefault(req.Model, o.model)
	params := openai.ChatCompletionNewParams{
		Model:    mdl,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return adapter.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return adapter.Completion{}, errors.New("openai: no choices in response")
	}
	return adapter.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: mdl,
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))
		case adapter.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Text()))
		default:
			if !hasImage(m) {
				out = append(out, openai.UserMessage(m.Text()))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Parts))
			for _, p := range m.Parts {
				switch p.Type {
				case adapter.PartImage:
					img := model.Image{Data: p.Data, MIMEType: p.MIMEType}
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: img.DataURL(),
					}))
				default:
					parts = append(parts, openai.TextContentPart(p.Text))
				}
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func hasImage(m adapter.Message) bool {
	for _, p := range m.Parts {
		if p.Type == adapter.PartImage {
			return true
		}
	}
	return false
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
