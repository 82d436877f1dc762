package search

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/resilience"
	"github.com/sells-group/prospect-api/pkg/anthropic"
	"github.com/sells-group/prospect-api/pkg/perplexity"
)

const (
	enhanceMaxTokens = 512
	extractMaxTokens = 4096

	// extractParallelism bounds concurrent extraction completions.
	extractParallelism = 3

	// segmentMaxChars caps how much search text one extraction call sees.
	segmentMaxChars = 6000
)

// Generator produces external company candidates for a prospecting query.
type Generator struct {
	completer anthropic.Client
	searcher  perplexity.Client
	registry  *registry.Registry
	retry     resilience.RetryConfig
}

// NewGenerator creates a Generator.
func NewGenerator(completer anthropic.Client, searcher perplexity.Client, reg *registry.Registry) *Generator {
	return &Generator{
		completer: completer,
		searcher:  searcher,
		registry:  reg,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// Generate runs the full candidate pipeline: enhance the query, search the
// web, extract structured candidates from the result text.
func (g *Generator) Generate(ctx context.Context, query string) ([]model.Candidate, Metadata, error) {
	meta := Metadata{Query: query}

	enhanced := g.EnhanceQuery(ctx, query)
	meta.EnhancedQuery = enhanced

	text, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.searcher.Search(ctx, enhanced)
	})
	if err != nil {
		return nil, meta, apperr.Provider(err, "search: web search")
	}

	candidates, err := g.ExtractCandidates(ctx, text)
	if err != nil {
		return nil, meta, err
	}
	meta.TotalResults = len(candidates)
	return candidates, meta, nil
}

// EnhanceQuery rewrites the query for better web results. Enhancement is
// best-effort: any failure falls back to the user's own query.
func (g *Generator) EnhanceQuery(ctx context.Context, query string) string {
	enhanced, err := g.completer.Complete(ctx, anthropic.CompletionRequest{
		System:    g.registry.Prompt("enhance_query_system"),
		Prompt:    query,
		MaxTokens: enhanceMaxTokens,
	})
	if err != nil || strings.TrimSpace(enhanced) == "" {
		zap.L().Warn("search: query enhancement failed, using original",
			zap.String("query", query), zap.Error(err))
		return query
	}
	return strings.TrimSpace(enhanced)
}

// ExtractCandidates pulls structured candidates out of search result text.
// Long text is split into segments extracted in bounded parallel; a failed
// segment is skipped, and invalid elements are discarded with a log line.
func (g *Generator) ExtractCandidates(ctx context.Context, text string) ([]model.Candidate, error) {
	segments := splitSegments(text, segmentMaxChars)
	if len(segments) == 0 {
		return nil, nil
	}

	results := make([][]model.Candidate, len(segments))
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(extractParallelism)
	var mu sync.Mutex
	failed := 0

	for i, segment := range segments {
		eg.Go(func() error {
			batch, err := g.extractSegment(ectx, segment)
			if err != nil {
				zap.L().Warn("search: segment extraction failed, skipping",
					zap.Int("segment", i), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = batch
			return nil
		})
	}
	_ = eg.Wait()

	if failed == len(segments) {
		return nil, apperr.Provider(eris.New("all segments failed"), "search: extract candidates")
	}

	var out []model.Candidate
	seen := make(map[string]bool)
	for _, batch := range results {
		for _, c := range batch {
			if !c.Valid() {
				zap.L().Debug("search: discarding candidate without a name")
				continue
			}
			key := model.LinkedInKey(c.LinkedInURL)
			if key == "" {
				key = "name:" + model.NameKey(c.Name)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func (g *Generator) extractSegment(ctx context.Context, segment string) ([]model.Candidate, error) {
	raw, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.completer.Complete(ctx, anthropic.CompletionRequest{
			System:    g.registry.Prompt("extract_candidates_system"),
			Prompt:    segment,
			MaxTokens: extractMaxTokens,
		})
	})
	if err != nil {
		return nil, apperr.Provider(err, "search: extract candidates")
	}

	var candidates []model.Candidate
	if err := decodeStrict(raw, &candidates); err != nil {
		return nil, apperr.Parse(err, "search: candidate response")
	}
	return candidates, nil
}

// splitSegments breaks text on paragraph boundaries into chunks of at most
// maxChars. A single oversized paragraph becomes its own (truncated) chunk.
func splitSegments(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var segments []string
	var current strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		if current.Len() > 0 && current.Len()+len(para)+2 > maxChars {
			segments = append(segments, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if len(para) > maxChars {
			para = para[:maxChars]
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		segments = append(segments, strings.TrimSpace(current.String()))
	}
	return segments
}
