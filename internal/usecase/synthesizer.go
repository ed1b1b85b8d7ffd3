// File: internal/usecase/synthesizer.go
package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/infra/logging"
)

const (
	reportMaxTokens = 4000

	reportSystemPrompt = `You are a research assistant that creates comprehensive, well-structured reports.

Your reports should:
- Be written in Markdown format
- Have a clear title and structure with headers
- Synthesize information from Wikipedia sources
- Include relevant citations and references
- Be informative and well-organized

Always cite your sources using the Wikipedia article titles provided.`

	reportInstructions = "\n## Instructions\nPlease create a comprehensive research report based on the above information. Include a title, introduction, main content with sections, and a references section listing the Wikipedia articles used."
)

// Synthesizer writes the final Markdown report in a single model call.
type Synthesizer struct {
	ai     adapter.AIServiceAdapter
	model  string
	logger *zerolog.Logger
}

func NewSynthesizer(ai adapter.AIServiceAdapter, model string, logger *zerolog.Logger) *Synthesizer {
	l := logger.With().Str("component", "synthesizer").Logger()
	return &Synthesizer{ai: ai, model: model, logger: &l}
}

// Synthesize returns the model's report text verbatim.
func (s *Synthesizer) Synthesize(ctx context.Context, prompt string, image *model.Image, reduced string, bundle model.KnowledgeBundle) (string, error) {
	req := adapter.CompletionRequest{
		Model:           s.model,
		Messages:        BuildReportMessages(prompt, image, reduced, bundle),
		MaxOutputTokens: reportMaxTokens,
	}

	lg := logging.With(ctx, s.logger)
	if n, err := s.ai.CountTokens(ctx, s.model, req.Messages); err == nil {
		lg.Debug().Int("prompt_tokens_est", n).Bool("image", image != nil).Msg("requesting report")
	}

	resp, err := s.ai.Complete(ctx, req)
	if err != nil {
		return "", domain.ModelError("synthesize report", err)
	}
	lg.Info().Int("report_chars", len(resp.Text)).Int("tokens_out", resp.Usage.CompletionTokens).Msg("report synthesized")
	return resp.Text, nil
}

// BuildReportMessages assembles the system instruction and the single user
// turn: the optional image block first, then one text block.
func BuildReportMessages(prompt string, image *model.Image, reduced string, bundle model.KnowledgeBundle) []adapter.Message {
	parts := make([]adapter.ContentPart, 0, 2)
	if image != nil && len(image.Data) > 0 {
		mime := image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, adapter.ImagePart(image.Data, mime))
	}
	parts = append(parts, adapter.TextPart(buildReportText(prompt, reduced, bundle)))

	return []adapter.Message{
		adapter.NewTextMessage(adapter.RoleSystem, reportSystemPrompt),
		{Role: adapter.RoleUser, Parts: parts},
	}
}

func buildReportText(prompt, reduced string, bundle model.KnowledgeBundle) string {
	sections := []string{"## Research Request\n" + prompt}
	if reduced != "" {
		sections = append(sections, "\n## Provided Context\n"+reduced)
	}
	if len(bundle.Summaries) > 0 {
		sections = append(sections, "\n## Wikipedia Sources")
		for _, s := range bundle.Summaries {
			sections = append(sections, "\n### "+s.Title+"\n"+s.Summary)
		}
	}
	sections = append(sections, reportInstructions)
	return strings.Join(sections, "\n")
}
