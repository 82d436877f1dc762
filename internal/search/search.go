package search

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/store"
)

// Service is the search facade used by the HTTP handlers.
type Service struct {
	store      store.Store
	parser     *Parser
	generator  *Generator
	reconciler *Reconciler
	registry   *registry.Registry
}

// NewService wires the search facade. Parser and generator may be nil when
// the completion/search providers are not configured; the corresponding
// operations then fail with a validation error.
func NewService(st store.Store, parser *Parser, generator *Generator, reg *registry.Registry) *Service {
	return &Service{
		store:      st,
		parser:     parser,
		generator:  generator,
		reconciler: NewReconciler(st),
		registry:   reg,
	}
}

// Structured runs a filter search and returns one page of companies.
func (s *Service) Structured(ctx context.Context, filter store.CompanyFilter, page, limit int) (*model.Page[model.Company], error) {
	page, limit = model.ClampPagination(page, limit)
	items, total, err := s.store.SearchCompanies(ctx, filter, SortFor(filter), page, limit)
	if err != nil {
		return nil, eris.Wrap(err, "search: structured")
	}
	p := model.NewPage(items, page, limit, total)
	return &p, nil
}

// NaturalResponse carries a natural-language search page plus the criteria
// the query parsed into.
type NaturalResponse struct {
	Page     model.Page[model.Company] `json:"page"`
	Criteria Criteria                  `json:"criteria"`
}

// Natural parses the query into criteria and runs the structured search.
func (s *Service) Natural(ctx context.Context, query string, page, limit int) (*NaturalResponse, error) {
	if s.parser == nil {
		return nil, apperr.Validation("natural-language search is not configured")
	}
	criteria, err := s.parser.ParseQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	filter := BuildFilter(criteria, s.registry)
	result, err := s.Structured(ctx, filter, page, limit)
	if err != nil {
		return nil, err
	}
	return &NaturalResponse{Page: *result, Criteria: *criteria}, nil
}

// WebResponse is one page of reconciled AI-search results plus pipeline
// metadata.
type WebResponse struct {
	Page     model.Page[Result] `json:"page"`
	Metadata Metadata           `json:"metadata"`
}

// Web runs the AI search pipeline: candidate generation, reconciliation
// against the store, then in-memory pagination of the reconciled set.
func (s *Service) Web(ctx context.Context, query string, page, limit int) (*WebResponse, error) {
	if s.generator == nil {
		return nil, apperr.Validation("ai search is not configured")
	}
	if query == "" {
		return nil, apperr.Validation("query is required")
	}

	candidates, meta, err := s.generator.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	candidates = s.screen(ctx, query, candidates)

	results, err := s.reconciler.Reconcile(ctx, candidates)
	if err != nil {
		return nil, err
	}
	zap.L().Info("search: ai search reconciled",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
	)

	page, limit = model.ClampPagination(page, limit)
	start := (page - 1) * limit
	if start > len(results) {
		start = len(results)
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}
	p := model.NewPage(results[start:end], page, limit, len(results))
	return &WebResponse{Page: p, Metadata: meta}, nil
}

// screen drops extracted candidates that contradict the set-valued criteria
// parsed from the query. Screening is best effort: if the parser is absent
// or fails, the unfiltered candidate list stands.
func (s *Service) screen(ctx context.Context, query string, candidates []model.Candidate) []model.Candidate {
	if s.parser == nil || len(candidates) == 0 {
		return candidates
	}
	criteria, err := s.parser.ParseWebQuery(ctx, query)
	if err != nil {
		zap.L().Warn("search: candidate screening skipped", zap.Error(err))
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if criteria.Matches(c) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Industries returns the distinct industries present in the store.
func (s *Service) Industries(ctx context.Context) ([]string, error) {
	values, err := s.store.DistinctIndustries(ctx)
	return values, eris.Wrap(err, "search: industries")
}

// Countries returns the distinct countries present in the store.
func (s *Service) Countries(ctx context.Context) ([]string, error) {
	values, err := s.store.DistinctCountries(ctx)
	return values, eris.Wrap(err, "search: countries")
}
