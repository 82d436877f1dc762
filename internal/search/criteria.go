// Package search implements company discovery: structured filter search,
// natural-language query parsing, and the AI web-search pipeline that
// reconciles external candidates into the store.
package search

import (
	"strings"

	"github.com/sells-group/prospect-api/internal/model"
)

// Criteria is the structured form of a natural-language query. Fields are
// single-valued; the parser omits anything the query does not constrain.
type Criteria struct {
	Name         string   `json:"name,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Country      string   `json:"country,omitempty"`
	Region       string   `json:"region,omitempty"`
	Locality     string   `json:"locality,omitempty"`
	Size         string   `json:"size,omitempty"`
	FoundedFrom  int      `json:"founded_from,omitempty"`
	FoundedTo    int      `json:"founded_to,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// WebCriteria is the set-valued criteria shape used by the AI web-search
// pipeline, where a query like "fintech or insurtech in the DACH region"
// legitimately expands to several values per field.
type WebCriteria struct {
	Industries   []string `json:"industries,omitempty"`
	Countries    []string `json:"countries,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	Localities   []string `json:"localities,omitempty"`
	Sizes        []string `json:"sizes,omitempty"`
	FoundedFrom  int      `json:"founded_from,omitempty"`
	FoundedTo    int      `json:"founded_to,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
}

// Matches reports whether the candidate satisfies every populated criteria
// set. Empty sets constrain nothing, and a candidate missing a field is not
// rejected for it, so screening stays permissive on sparse extractions.
func (wc *WebCriteria) Matches(c model.Candidate) bool {
	if !inSet(wc.Industries, c.Industry) ||
		!inSet(wc.Countries, c.Country) ||
		!inSet(wc.Regions, c.Region) ||
		!inSet(wc.Localities, c.Locality) ||
		!inSet(wc.Sizes, c.Size) {
		return false
	}
	if c.Founded != 0 {
		if wc.FoundedFrom != 0 && c.Founded < wc.FoundedFrom {
			return false
		}
		if wc.FoundedTo != 0 && c.Founded > wc.FoundedTo {
			return false
		}
	}
	return true
}

func inSet(set []string, value string) bool {
	if len(set) == 0 || value == "" {
		return true
	}
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}

// Result is one reconciled entry of an AI search response. Every candidate
// produces exactly one Result, matched or not.
type Result struct {
	Candidate    model.Candidate `json:"candidate"`
	CompanyID    string          `json:"company_id,omitempty"`
	IsInDatabase bool            `json:"is_in_database"`
	Confidence   float64         `json:"confidence"`
	Saved        bool            `json:"saved"`
	Stored       *model.Company  `json:"stored,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Metadata describes how an AI search response was produced.
type Metadata struct {
	Query         string `json:"query"`
	EnhancedQuery string `json:"enhanced_query"`
	TotalResults  int    `json:"total_results"`
}
