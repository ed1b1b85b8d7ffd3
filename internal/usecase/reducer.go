// File: internal/usecase/reducer.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/ports/adapter"
)

const (
	// DirectContextLimit is the largest context (in characters) passed through unchanged.
	DirectContextLimit = 15000
	// ChunkSize bounds each chunk sent for summarization.
	ChunkSize = 12000

	summaryMaxTokens = 1000
	sectionDivider   = "\n\n---\n\n"

	summarySystemPrompt = "You are a helpful assistant that creates concise summaries. Extract the key points and main ideas from the provided text."
	summaryUserPrefix   = "Please summarize the following text, preserving the most important information:\n\n"
)

// Reducer shrinks oversized context text so it fits the synthesis request.
type Reducer struct {
	ai     adapter.AIServiceAdapter
	model  string
	logger *zerolog.Logger
}

func NewReducer(ai adapter.AIServiceAdapter, model string, logger *zerolog.Logger) *Reducer {
	l := logger.With().Str("component", "reducer").Logger()
	return &Reducer{ai: ai, model: model, logger: &l}
}

// Reduce returns text unchanged when it is within DirectContextLimit, otherwise
// the per-chunk summaries tagged by section and joined in chunk order.
func (r *Reducer) Reduce(ctx context.Context, text string) (string, error) {
	size := utf8.RuneCountInString(text)
	if size <= DirectContextLimit {
		r.logger.Debug().Int("chars", size).Msg("context within limit, using directly")
		return text, nil
	}

	chunks := ChunkText(text, ChunkSize)
	r.logger.Info().Int("chars", size).Int("chunks", len(chunks)).Msg("context exceeds limit, summarizing")

	sections := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := r.summarize(ctx, chunk)
		if err != nil {
			return "", domain.ModelError(fmt.Sprintf("summarize chunk %d/%d", i+1, len(chunks)), err)
		}
		sections = append(sections, fmt.Sprintf("**Section %d Summary:**\n%s", i+1, summary))
	}

	merged := strings.Join(sections, sectionDivider)
	r.logger.Debug().Int("merged_chars", utf8.RuneCountInString(merged)).Msg("summaries merged")
	return merged, nil
}

func (r *Reducer) summarize(ctx context.Context, chunk string) (string, error) {
	resp, err := r.ai.Complete(ctx, adapter.CompletionRequest{
		Model: r.model,
		Messages: []adapter.Message{
			adapter.NewTextMessage(adapter.RoleSystem, summarySystemPrompt),
			adapter.NewTextMessage(adapter.RoleUser, summaryUserPrefix+chunk),
		},
		MaxOutputTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// ChunkText splits text on whitespace into greedy chunks of whole words joined
// by single spaces. A chunk is closed before a word that would push its joined
// length past size. A word longer than size forms its own chunk. Empty chunks
// are never produced.
func ChunkText(text string, size int) []string {
	words := strings.Fields(text)
	chunks := make([]string, 0, len(text)/size+1)

	var current []string
	length := 0
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		if len(current) > 0 {
			if length+1+wl > size {
				chunks = append(chunks, strings.Join(current, " "))
				current = current[:0]
				length = 0
			} else {
				length++
			}
		}
		current = append(current, w)
		length += wl
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}
