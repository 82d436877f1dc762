package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries scrapers in priority order, returning the first success.
// It normalizes the target URL and bounds the returned text, so callers get
// the WebScrape contract (cleaned visible text, first maxChars characters).
type Chain struct {
	scrapers []Scraper
	maxChars int
}

// NewChain creates a Chain. Scrapers are tried in order.
func NewChain(maxChars int, scrapers ...Scraper) *Chain {
	if maxChars <= 0 {
		maxChars = 2000
	}
	return &Chain{scrapers: scrapers, maxChars: maxChars}
}

// Scrape tries each scraper in order for a single URL and returns bounded
// plain text from the first success.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	targetURL = NormalizeURL(targetURL)
	if targetURL == "" {
		return nil, eris.New("scrape: empty url")
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			result.Text = Truncate(result.Text, c.maxChars)
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// Name implements Scraper so a Chain can be used anywhere a single scraper is.
func (c *Chain) Name() string { return "chain" }

// Supports reports whether any member scraper supports the URL.
func (c *Chain) Supports(url string) bool {
	for _, s := range c.scrapers {
		if s.Supports(url) {
			return true
		}
	}
	return false
}
