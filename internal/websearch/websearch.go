// Package websearch holds web search results and renders them for prompts.
package websearch

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// #region types

// Result holds a single search result.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher runs a web query.
type Searcher interface {
	WebSearch(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, maxResults int) ([]Result, error)

// WebSearch calls f.
func (f SearcherFunc) WebSearch(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return f(ctx, query, maxResults)
}

// Config holds web search parameters.
type Config struct {
	MaxResults int           `koanf:"max_results"`
	Timeout    time.Duration `koanf:"timeout"`
	Enabled    bool          `koanf:"enabled"`
	// ScrapeMinSnippet is the snippet length at which a result counts as scraped content.
	ScrapeMinSnippet int `koanf:"scrape_min_snippet"`
}

// #endregion types

// #region config

// DefaultConfig returns default web search configuration.
func DefaultConfig() Config {
	return Config{
		MaxResults:       5,
		Timeout:          10 * time.Second,
		Enabled:          true,
		ScrapeMinSnippet: 80,
	}
}

// #endregion config

// #region search

// Search runs s under cfg's timeout. A disabled config returns no results.
func Search(ctx context.Context, s Searcher, cfg Config, query string) ([]Result, error) {
	if !cfg.Enabled || s == nil {
		return nil, nil
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	results, err := s.WebSearch(ctx, query, cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("web search %q: %w", query, err)
	}
	if cfg.MaxResults > 0 && len(results) > cfg.MaxResults {
		results = results[:cfg.MaxResults]
	}
	return results, nil
}

// URLs lists the non-empty result URLs in order.
func URLs(results []Result) []string {
	urls := make([]string, 0, len(results))
	for _, r := range results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// #endregion search

// #region format

// FormatAsEvidence converts search results to a numbered block for a prompt.
func FormatAsEvidence(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Web Search Results]\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", r.URL)
		}
	}
	return b.String()
}

// #endregion format
