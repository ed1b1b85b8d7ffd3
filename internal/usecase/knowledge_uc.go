// File: internal/usecase/knowledge_uc.go
package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
	"research-assistant/internal/infra/logging"
	"research-assistant/internal/infra/metrics"
)

const (
	SearchLimit        = 5
	MaxSummaries       = 3
	SummaryRecordLimit = 500

	queryMaxTokens     = 50
	querySystemPrompt  = "Extract the main topic or subject for a Wikipedia search from the user's question. Respond with just the search query, nothing else."
	maxQueryCharacters = 300
)

// Gatherer collects encyclopedia material relevant to a prompt.
type Gatherer struct {
	ai     adapter.AIServiceAdapter
	source adapter.KnowledgeSource
	model  string
	logger *zerolog.Logger
}

func NewGatherer(ai adapter.AIServiceAdapter, source adapter.KnowledgeSource, model string, logger *zerolog.Logger) *Gatherer {
	l := logger.With().Str("component", "gatherer").Logger()
	return &Gatherer{ai: ai, source: source, model: model, logger: &l}
}

// Gather derives a search query from the prompt, searches, and fetches
// summaries for the top results. Every tool call that produced output is
// appended to log. Only a failed query extraction is returned as an error;
// knowledge source failures degrade to fewer results.
func (g *Gatherer) Gather(ctx context.Context, prompt string, log *model.SourceLog) (model.KnowledgeBundle, error) {
	lg := logging.With(ctx, g.logger)

	query, err := g.extractQuery(ctx, prompt)
	if err != nil {
		return model.KnowledgeBundle{}, domain.ModelError("extract search query", err)
	}
	lg.Info().Str("query", query).Msg("search query extracted")

	results, err := g.source.Search(ctx, query, SearchLimit)
	if err != nil {
		lg.Warn().Err(domain.KnowledgeSourceError("search", err)).Str("query", query).Msg("search failed, continuing without results")
		metrics.IncKnowledgeRequest("search", "error")
		results = nil
	} else if len(results) == 0 {
		metrics.IncKnowledgeRequest("search", "empty")
	} else {
		metrics.IncKnowledgeRequest("search", "ok")
	}
	if results == nil {
		results = []string{}
	}
	log.Append(model.SourceRecord{
		ToolName: model.ToolSearch,
		Input:    model.SearchInput{Query: query, Limit: SearchLimit},
		Output:   results,
	})

	bundle := model.KnowledgeBundle{
		SearchQuery:   query,
		SearchResults: results,
		Summaries:     []model.ArticleSummary{},
	}

	top := results
	if len(top) > MaxSummaries {
		top = top[:MaxSummaries]
	}
	for _, title := range top {
		summary, found, err := g.source.Summary(ctx, title)
		switch {
		case err != nil:
			lg.Warn().Err(domain.KnowledgeSourceError("summary", err)).Str("title", title).Msg("summary failed, skipping")
			metrics.IncKnowledgeRequest("summary", "error")
			continue
		case !found || summary == "":
			lg.Debug().Str("title", title).Msg("no summary for article")
			metrics.IncKnowledgeRequest("summary", "not_found")
			continue
		}
		metrics.IncKnowledgeRequest("summary", "ok")

		bundle.Summaries = append(bundle.Summaries, model.ArticleSummary{Title: title, Summary: summary})
		log.Append(model.SourceRecord{
			ToolName: model.ToolSummary,
			Input:    model.SummaryInput{Title: title},
			Output:   model.Truncate(summary, SummaryRecordLimit),
		})
	}

	lg.Info().Int("results", len(results)).Int("summaries", len(bundle.Summaries)).Msg("knowledge gathered")
	return bundle, nil
}

func (g *Gatherer) extractQuery(ctx context.Context, prompt string) (string, error) {
	resp, err := g.ai.Complete(ctx, adapter.CompletionRequest{
		Model: g.model,
		Messages: []adapter.Message{
			adapter.NewTextMessage(adapter.RoleSystem, querySystemPrompt),
			adapter.NewTextMessage(adapter.RoleUser, prompt),
		},
		MaxOutputTokens: queryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return normalizeQuery(resp.Text, prompt), nil
}

// normalizeQuery trims the model's answer. A multi-line answer keeps its first
// non-empty line, wrapping quotes are dropped, and an empty answer falls back
// to the prompt itself.
func normalizeQuery(answer, prompt string) string {
	q := strings.TrimSpace(answer)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		q = strings.TrimSpace(q[:i])
	}
	if len(q) >= 2 {
		if (q[0] == '"' && q[len(q)-1] == '"') || (q[0] == '\'' && q[len(q)-1] == '\'') {
			q = strings.TrimSpace(q[1 : len(q)-1])
		}
	}
	if q == "" {
		q = strings.TrimSpace(prompt)
	}
	if r := []rune(q); len(r) > maxQueryCharacters {
		q = string(r[:maxQueryCharacters])
	}
	return q
}
