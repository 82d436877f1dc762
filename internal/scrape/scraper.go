// Package scrape fetches company websites and reduces them to bounded plain
// text for description generation and candidate extraction.
package scrape

import (
	"context"
	"strings"
)

// Result holds scraped page text with its source.
type Result struct {
	URL    string
	Title  string
	Text   string
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its visible text content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// NormalizeURL prefixes https:// when the URL carries no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

// Truncate bounds text to maxChars runes, cutting on a whitespace boundary
// when one is near the limit.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxChars/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
