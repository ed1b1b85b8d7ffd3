// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"research-assistant/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, timeout time.Duration) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	httpOpts := genai.HTTPOptions{BaseURL: baseURL}
	if timeout > 0 {
		httpOpts.Timeout = &timeout
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{g.defaultModel}, nil
}

func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	_, contents := toGenAIContents(messages)
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.defaultModel), contents, nil)
	if err != nil {
		// best effort
		return EstimateTokens(model, messages), nil
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	mdl := modelOrDefault(req.Model, g.defaultModel)
	system, contents := toGenAIContents(req.Messages)
	if len(contents) == 0 {
		return adapter.Completion{}, errors.New("gemini: no user messages")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if system != nil {
		cfg.SystemInstruction = system
	}

	resp, err := g.client.Models.GenerateContent(ctx, mdl, contents, cfg)
	if err != nil {
		return adapter.Completion{}, err
	}

	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return adapter.Completion{Text: resp.Text(), Model: mdl, Usage: u}, nil
}

// toGenAIContents moves system messages into a SystemInstruction and maps
// image parts to inline blobs.
func toGenAIContents(msgs []adapter.Message) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]*genai.Part, 0, len(m.Parts))
		for _, p := range m.Parts {
			if p.Type == adapter.PartImage {
				mime := p.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				parts = append(parts, genai.NewPartFromBytes(p.Data, mime))
				continue
			}
			parts = append(parts, genai.NewPartFromText(p.Text))
		}

		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			if system == nil {
				system = genai.NewContentFromParts(parts, genai.RoleUser)
			} else {
				system.Parts = append(system.Parts, parts...)
			}
		case adapter.RoleAssistant, "model":
			out = append(out, genai.NewContentFromParts(parts, genai.RoleModel))
		default:
			out = append(out, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}
	return system, out
}
