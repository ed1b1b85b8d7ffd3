package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/model"
	"research-assistant/internal/domain/ports/adapter"
)

func TestGatherer_Gather(t *testing.T) {
	ctx := context.Background()

	t.Run("summaries follow the first three results and skip missing articles", func(t *testing.T) {
		ai := &mockAI{}
		src := &mockSource{
			SearchFunc: func(ctx context.Context, q string, limit int) ([]string, error) {
				assert.Equal(t, SearchLimit, limit)
				return []string{"A", "B", "C", "D", "E"}, nil
			},
			SummaryFunc: func(ctx context.Context, title string) (string, bool, error) {
				if title == "B" {
					return "", false, nil
				}
				return "about " + title, true, nil
			},
		}
		g := NewGatherer(ai, src, "m", newTestLogger())
		log := model.NewSourceLog()

		bundle, err := g.Gather(ctx, "What is quantum computing?", log)
		require.NoError(t, err)

		assert.Equal(t, "Quantum computing", bundle.SearchQuery)
		assert.Equal(t, []string{"A", "B", "C", "D", "E"}, bundle.SearchResults)
		assert.Equal(t, []model.ArticleSummary{{Title: "A", Summary: "about A"}, {Title: "C", Summary: "about C"}}, bundle.Summaries)
		assert.Equal(t, []string{"A", "B", "C"}, src.summaries, "only the first three titles are fetched")

		recs := log.Records()
		require.Len(t, recs, 3)
		assert.Equal(t, model.ToolSearch, recs[0].ToolName)
		assert.Equal(t, model.SearchInput{Query: "Quantum computing", Limit: 5}, recs[0].Input)
		assert.Equal(t, model.ToolSummary, recs[1].ToolName)
		assert.Equal(t, model.SummaryInput{Title: "A"}, recs[1].Input)
		assert.Equal(t, model.SummaryInput{Title: "C"}, recs[2].Input)

		calls := ai.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, querySystemPrompt, systemOf(calls[0]))
		assert.Equal(t, "What is quantum computing?", userOf(calls[0]).Text())
		assert.Equal(t, queryMaxTokens, calls[0].MaxOutputTokens)
	})

	t.Run("search failure degrades to an empty recorded search", func(t *testing.T) {
		src := &mockSource{SearchFunc: func(ctx context.Context, q string, limit int) ([]string, error) {
			return nil, errors.New("connection refused")
		}}
		g := NewGatherer(&mockAI{}, src, "m", newTestLogger())
		log := model.NewSourceLog()

		bundle, err := g.Gather(ctx, "prompt", log)
		require.NoError(t, err)
		assert.Empty(t, bundle.SearchResults)
		assert.Empty(t, bundle.Summaries)
		assert.Empty(t, src.summaries)

		recs := log.Records()
		require.Len(t, recs, 1)
		raw, err := json.Marshal(recs[0])
		require.NoError(t, err)
		assert.JSONEq(t, `{"tool_name":"search","input":{"query":"Quantum computing","limit":5},"output":[]}`, string(raw))
	})

	t.Run("summary errors are skipped silently", func(t *testing.T) {
		src := &mockSource{
			SearchFunc: func(ctx context.Context, q string, limit int) ([]string, error) { return []string{"X", "Y"}, nil },
			SummaryFunc: func(ctx context.Context, title string) (string, bool, error) {
				if title == "X" {
					return "", false, errors.New("timeout")
				}
				return "why", true, nil
			},
		}
		g := NewGatherer(&mockAI{}, src, "m", newTestLogger())
		log := model.NewSourceLog()

		bundle, err := g.Gather(ctx, "prompt", log)
		require.NoError(t, err)
		assert.Equal(t, []model.ArticleSummary{{Title: "Y", Summary: "why"}}, bundle.Summaries)
		assert.Equal(t, 2, log.Len())
	})

	t.Run("recorded summary output is truncated", func(t *testing.T) {
		long := strings.Repeat("z", 800)
		src := &mockSource{
			SearchFunc:  func(ctx context.Context, q string, limit int) ([]string, error) { return []string{"Long"}, nil },
			SummaryFunc: func(ctx context.Context, title string) (string, bool, error) { return long, true, nil },
		}
		g := NewGatherer(&mockAI{}, src, "m", newTestLogger())
		log := model.NewSourceLog()

		bundle, err := g.Gather(ctx, "prompt", log)
		require.NoError(t, err)
		assert.Equal(t, long, bundle.Summaries[0].Summary, "bundle keeps the full text")

		recs := log.Records()
		require.Len(t, recs, 2)
		assert.Equal(t, strings.Repeat("z", 500)+"...", recs[1].Output)
	})

	t.Run("query extraction failure is fatal", func(t *testing.T) {
		ai := &mockAI{CompleteFunc: func(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
			return adapter.Completion{}, errors.New("invalid api key")
		}}
		src := &mockSource{}
		g := NewGatherer(ai, src, "m", newTestLogger())
		log := model.NewSourceLog()

		_, err := g.Gather(ctx, "prompt", log)
		require.Error(t, err)
		assert.Equal(t, domain.KindModel, domain.KindOf(err))
		assert.Empty(t, src.searches)
		assert.Zero(t, log.Len())
	})
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name, answer, prompt, want string
	}{
		{"trimmed verbatim", "  Alan Turing \n", "p", "Alan Turing"},
		{"first line of a chatty answer", "Alan Turing\nThis query targets...", "p", "Alan Turing"},
		{"double quotes stripped", `"Enigma machine"`, "p", "Enigma machine"},
		{"single quotes stripped", `'Enigma'`, "p", "Enigma"},
		{"empty falls back to the prompt", "   ", " Who broke Enigma? ", "Who broke Enigma?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeQuery(tt.answer, tt.prompt))
		})
	}
}
