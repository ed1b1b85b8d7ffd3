package adapter

import "context"

// KnowledgeSource is the port for the external encyclopedia.
type KnowledgeSource interface {
	// Search returns article titles best matching query, at most limit of them.
	Search(ctx context.Context, query string, limit int) ([]string, error)
	// Summary returns the intro extract of the article. found is false when no
	// such article exists.
	Summary(ctx context.Context, title string) (summary string, found bool, err error)
}
