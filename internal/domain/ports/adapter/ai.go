package adapter

import (
	"context"
	"strings"
)

// Roles understood by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ContentPart is one block of a message: plain text or an inline image.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	MIMEType string   `json:"mime_type,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

func ImagePart(data []byte, mimeType string) ContentPart {
	return ContentPart{Type: PartImage, Data: data, MIMEType: mimeType}
}

// Message represents a role-tagged chat message.
type Message struct {
	Role  string        `json:"role"` // "user", "assistant", "system"
	Parts []ContentPart `json:"parts"`
}

// NewTextMessage is shorthand for a message with a single text part.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Parts: []ContentPart{TextPart(text)}}
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type != PartText {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Usage for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type CompletionRequest struct {
	Model           string // empty selects the adapter default
	Messages        []Message
	MaxOutputTokens int
}

type Completion struct {
	Text  string
	Usage Usage
	Model string
}

// AIServiceAdapter is the port for the generative text model.
type AIServiceAdapter interface {
	ListModels(ctx context.Context) ([]string, error)

	// CountTokens returns a best-effort prompt token count for the messages.
	CountTokens(ctx context.Context, model string, messages []Message) (int, error)

	// Complete returns one text completion for the ordered messages.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}
