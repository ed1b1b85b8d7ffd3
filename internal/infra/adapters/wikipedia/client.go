// File: internal/infra/adapters/wikipedia/client.go
package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"research-assistant/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.KnowledgeSource = (*Client)(nil)

const (
	DefaultBaseURL = "https://en.wikipedia.org/w/api.php"
	// SummarySentences is how much of an article intro Summary returns.
	SummarySentences = 5
)

// Client talks to the public MediaWiki API. No key is required.
type Client struct {
	base      string
	userAgent string
	http      *http.Client
	logger    *zerolog.Logger
}

func NewClient(baseURL, userAgent string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "wikipedia").Logger()
	return &Client{
		base:      baseURL,
		userAgent: userAgent,
		http:      &http.Client{Timeout: timeout},
		logger:    &l,
	}
}

// Search runs an opensearch query and returns matching article titles.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return []string{}, nil
	}
	params := url.Values{
		"action":    {"opensearch"},
		"search":    {query},
		"limit":     {strconv.Itoa(limit)},
		"namespace": {"0"},
		"format":    {"json"},
	}

	// [query, [titles], [descriptions], [urls]]
	var payload []json.RawMessage
	if err := c.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	titles := []string{}
	if len(payload) >= 2 {
		if err := json.Unmarshal(payload[1], &titles); err != nil {
			return nil, fmt.Errorf("wikipedia search: decode titles: %w", err)
		}
	}
	if limit > 0 && len(titles) > limit {
		titles = titles[:limit]
	}
	c.logger.Debug().Str("query", query).Int("results", len(titles)).Msg("search")
	return titles, nil
}

// Summary returns the plain-text intro of the article titled title.
func (c *Client) Summary(ctx context.Context, title string) (string, bool, error) {
	params := url.Values{
		"action":      {"query"},
		"titles":      {title},
		"prop":        {"extracts"},
		"exintro":     {"true"},
		"explaintext": {"true"},
		"exsentences": {strconv.Itoa(SummarySentences)},
		"format":      {"json"},
	}

	var payload struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := c.get(ctx, params, &payload); err != nil {
		return "", false, fmt.Errorf("wikipedia summary: %w", err)
	}
	for id, page := range payload.Query.Pages {
		// -1 marks a missing page
		if id == "-1" {
			continue
		}
		return page.Extract, page.Extract != "", nil
	}
	return "", false, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response body")
		}
		return err
	}
	return nil
}
