package store

import "strings"

// Sort selects the ordering applied to company search results.
type Sort string

const (
	SortRelevance   Sort = "relevance"
	SortNewest      Sort = "newest"
	SortFoundedDesc Sort = "founded_desc"
	SortFoundedAsc  Sort = "founded_asc"
)

// CompanyFilter specifies criteria for searching companies. Zero-valued
// fields are ignored. TextSearch matches across name, industry, description
// and location fields; the exact mechanics are backend-specific. Industry
// is case-insensitive exact equality; the set-valued fields match any of
// their values, also case-insensitively. Name is a substring match.
type CompanyFilter struct {
	TextSearch   string   `json:"text_search,omitempty"`
	Name         string   `json:"name,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	Industries   []string `json:"industries,omitempty"`
	Regions      []string `json:"regions,omitempty"`
	Countries    []string `json:"countries,omitempty"`
	Localities   []string `json:"localities,omitempty"`
	Sizes        []string `json:"sizes,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	FoundedFrom  int      `json:"founded_from,omitempty"`
	FoundedTo    int      `json:"founded_to,omitempty"`
	SavedOnly    bool     `json:"saved_only,omitempty"`
}

func lowerAll(vals []string) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.ToLower(v)
	}
	return out
}

// Empty reports whether the filter carries no criteria at all.
func (f CompanyFilter) Empty() bool {
	return f.TextSearch == "" && f.Name == "" && f.Industry == "" &&
		len(f.Industries) == 0 && len(f.Regions) == 0 && len(f.Countries) == 0 &&
		len(f.Localities) == 0 && len(f.Sizes) == 0 && len(f.Technologies) == 0 &&
		f.FoundedFrom == 0 && f.FoundedTo == 0 && !f.SavedOnly
}
