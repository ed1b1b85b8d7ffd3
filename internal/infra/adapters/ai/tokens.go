package ai

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"research-assistant/internal/domain/ports/adapter"
)

// perMessageOverhead approximates the role/separator tokens chat formats add.
const perMessageOverhead = 4

// imageTokenEstimate is a flat charge for an inline image.
const imageTokenEstimate = 765

var (
	tokMu    sync.RWMutex
	encoders = map[string]*tiktoken.Tiktoken{}
)

// LoadTokenizer prepares the BPE encoding for model so later estimates are
// exact for OpenAI-family models. It may fetch the encoding file once; callers
// run it at startup and treat an error as "fall back to approximations".
func LoadTokenizer(model string) error {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return err
		}
	}
	tokMu.Lock()
	encoders[model] = enc
	tokMu.Unlock()
	return nil
}

// EstimateTokens returns a prompt token estimate. Without a loaded encoding
// for model it assumes four characters per token.
func EstimateTokens(model string, messages []adapter.Message) int {
	tokMu.RLock()
	enc := encoders[model]
	tokMu.RUnlock()

	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		for _, p := range m.Parts {
			if p.Type == adapter.PartImage {
				total += imageTokenEstimate
				continue
			}
			if enc != nil {
				total += len(enc.Encode(p.Text, nil, nil))
			} else {
				total += approxTokens(p.Text)
			}
		}
	}
	return total
}

func approxTokens(s string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
