package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/pkg/anthropic"
)

const parseMaxTokens = 1024

// Parser turns natural-language queries into structured criteria via the
// completion model.
type Parser struct {
	completer anthropic.Client
	registry  *registry.Registry
}

// NewParser creates a Parser.
func NewParser(completer anthropic.Client, reg *registry.Registry) *Parser {
	return &Parser{completer: completer, registry: reg}
}

// ParseQuery extracts single-valued Criteria from a natural-language query.
// A response that is not strict JSON or carries unknown fields is a parse
// error, never silently partial.
func (p *Parser) ParseQuery(ctx context.Context, query string) (*Criteria, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query is required")
	}

	raw, err := p.completer.Complete(ctx, anthropic.CompletionRequest{
		System:    p.registry.Prompt("parse_criteria_system"),
		Prompt:    query,
		MaxTokens: parseMaxTokens,
	})
	if err != nil {
		return nil, apperr.Provider(err, "search: parse query")
	}

	var criteria Criteria
	if err := decodeStrict(raw, &criteria); err != nil {
		return nil, apperr.Parse(err, "search: criteria response")
	}
	return &criteria, nil
}

// ParseWebQuery extracts set-valued WebCriteria used to screen AI-search
// candidates, where one query legitimately expands to several values per
// field.
func (p *Parser) ParseWebQuery(ctx context.Context, query string) (*WebCriteria, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("query is required")
	}

	raw, err := p.completer.Complete(ctx, anthropic.CompletionRequest{
		System:    p.registry.Prompt("parse_web_criteria_system"),
		Prompt:    query,
		MaxTokens: parseMaxTokens,
	})
	if err != nil {
		return nil, apperr.Provider(err, "search: parse web query")
	}

	var criteria WebCriteria
	if err := decodeStrict(raw, &criteria); err != nil {
		return nil, apperr.Parse(err, "search: web criteria response")
	}
	return &criteria, nil
}

// decodeStrict parses exactly one JSON value, rejecting unknown fields and
// trailing content. Completions are asked for bare JSON but occasionally
// fence it anyway.
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader(stripFences(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return eris.New("trailing data after JSON value")
	}
	return nil
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return []byte(s)
}
