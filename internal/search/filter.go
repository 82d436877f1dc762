package search

import (
	"strings"

	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/store"
)

// BuildFilter maps parsed criteria onto a store filter. Free-text criteria
// (name, keywords) combine into the store's text search; size terms resolve
// through the registry's aliases.
func BuildFilter(criteria *Criteria, reg *registry.Registry) store.CompanyFilter {
	f := store.CompanyFilter{
		Industry:     criteria.Industry,
		Technologies: criteria.Technologies,
		FoundedFrom:  criteria.FoundedFrom,
		FoundedTo:    criteria.FoundedTo,
	}
	if criteria.Country != "" {
		f.Countries = []string{criteria.Country}
	}
	if criteria.Region != "" {
		f.Regions = []string{criteria.Region}
	}
	if criteria.Locality != "" {
		f.Localities = []string{criteria.Locality}
	}
	if criteria.Size != "" {
		f.Sizes = []string{reg.CanonicalSize(criteria.Size)}
	}

	var text []string
	if criteria.Name != "" {
		text = append(text, criteria.Name)
	}
	text = append(text, criteria.Keywords...)
	f.TextSearch = strings.Join(text, " ")

	return f
}

// SortFor picks the result ordering: relevance ranking when text search is
// in play, otherwise newest first.
func SortFor(f store.CompanyFilter) store.Sort {
	if f.TextSearch != "" {
		return store.SortRelevance
	}
	return store.SortNewest
}
