// Package search fetches web results used to ground spoken answers.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Brave web search endpoint
const DefaultBaseURL = "https://api.search.brave.com/res/v1/web/search"

// SummaryHeader starts every summary handed to the model
const SummaryHeader = "Here's a summary of search results for your query:\n"

const noDescription = "No description available"

// Result is one web hit
type Result struct {
	Title       string
	Description string
	URL         string
}

// Searcher runs a web query
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// StatusError is returned for non-200 responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search error: %d, %s", e.StatusCode, e.Body)
}

// Config holds Brave search settings
type Config struct {
	APIKey  string
	BaseURL string
	Count   int
	Country string
	Lang    string
	Timeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Count:   3,
		Country: "us",
		Lang:    "en",
		Timeout: 10 * time.Second,
	}
}

// BraveClient queries the Brave Search API
type BraveClient struct {
	config Config
	client *http.Client
}

var _ Searcher = (*BraveClient)(nil)

// NewBrave creates a Brave client
func NewBrave(config Config) *BraveClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	return &BraveClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs query and returns at most Count results
func (c *BraveClient) Search(ctx context.Context, query string) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty search query")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.config.Count))
	params.Set("country", c.config.Country)
	params.Set("lang", c.config.Lang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.config.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]Result, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, Result{Title: r.Title, Description: r.Description, URL: r.URL})
	}
	return results, nil
}

// Summarize renders results as the text submitted to the model.
// Descriptions are cut to limit runes; limit <= 0 keeps them whole.
func Summarize(results []Result, limit int) string {
	var b strings.Builder
	b.WriteString(SummaryHeader)
	for _, r := range results {
		desc := r.Description
		if desc == "" {
			desc = noDescription
		}
		if limit > 0 {
			if runes := []rune(desc); len(runes) > limit {
				desc = string(runes[:limit])
			}
		}
		fmt.Fprintf(&b, "- %s: %s...\n", r.Title, desc)
	}
	return b.String()
}
