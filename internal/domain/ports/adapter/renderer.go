package adapter

import "context"

// DocumentRenderer turns the Markdown report into a paginated document.
type DocumentRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
	// ContentType is the media type of the rendered bytes.
	ContentType() string
}
