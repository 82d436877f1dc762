package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/store"
)

// Confidence weights for candidate-to-company matching. A LinkedIn URL
// match is definitive; name matches accumulate evidence from the other
// fields.
const (
	confidenceName     = 0.5
	confidenceIndustry = 0.3
	confidenceCountry  = 0.2
)

// Reconciler merges external candidates into the company store.
type Reconciler struct {
	store store.Store
}

// NewReconciler creates a Reconciler.
func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Reconcile matches every candidate against the store and persists the
// unmatched ones. Each candidate yields exactly one Result: matched
// candidates point at the existing company, new ones at their freshly
// inserted row. A partial insert failure annotates the affected entries
// instead of failing the whole call.
func (r *Reconciler) Reconcile(ctx context.Context, candidates []model.Candidate) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	linkedInKeys := make([]string, 0, len(candidates))
	nameKeys := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if key := model.LinkedInKey(c.LinkedInURL); key != "" {
			linkedInKeys = append(linkedInKeys, key)
		}
		if key := model.NameKey(c.Name); key != "" {
			nameKeys = append(nameKeys, key)
		}
	}

	byLinkedIn, err := r.store.CompaniesByLinkedInKeys(ctx, linkedInKeys)
	if err != nil {
		return nil, eris.Wrap(err, "search: lookup linkedin keys")
	}
	byName, err := r.store.CompaniesByNameKeys(ctx, nameKeys)
	if err != nil {
		return nil, eris.Wrap(err, "search: lookup name keys")
	}

	results := make([]Result, len(candidates))
	var toInsert []model.Company
	insertIdx := make([]int, 0, len(candidates))

	for i, c := range candidates {
		if match, conf, ok := matchCandidate(c, byLinkedIn, byName); ok {
			results[i] = Result{
				Candidate:    c,
				CompanyID:    match.ID,
				IsInDatabase: true,
				Confidence:   conf,
				Saved:        match.Saved,
				Stored:       match,
			}
			continue
		}
		results[i] = Result{Candidate: c}
		toInsert = append(toInsert, c.ToCompany())
		insertIdx = append(insertIdx, i)
	}

	if len(toInsert) == 0 {
		return results, nil
	}

	inserted, err := r.store.InsertCompanies(ctx, toInsert)
	if err != nil && !apperr.IsPartialBatch(err) {
		return nil, eris.Wrap(err, "search: insert candidates")
	}
	if err != nil {
		zap.L().Warn("search: candidate insert partially failed",
			zap.Int("requested", len(toInsert)),
			zap.Int("inserted", len(inserted)),
			zap.Error(err),
		)
	}

	// Re-attach inserted rows to their result entries by match key.
	insertedByKey := make(map[string]model.Company, len(inserted))
	for _, c := range inserted {
		if c.LinkedInKey != "" {
			insertedByKey[c.LinkedInKey] = c
		}
		insertedByKey["name:"+model.NameKey(c.Name)] = c
	}
	for _, i := range insertIdx {
		c := results[i].Candidate
		stored, ok := insertedByKey[model.LinkedInKey(c.LinkedInURL)]
		if !ok {
			stored, ok = insertedByKey["name:"+model.NameKey(c.Name)]
		}
		if !ok {
			results[i].Error = "not persisted"
			continue
		}
		results[i].CompanyID = stored.ID
		results[i].Stored = &stored
	}

	return results, nil
}

// matchCandidate resolves a candidate against the pre-fetched key maps.
// A LinkedIn URL match wins outright; otherwise a name match scores
// additive confidence from corroborating fields.
func matchCandidate(c model.Candidate, byLinkedIn, byName map[string]model.Company) (*model.Company, float64, bool) {
	if key := model.LinkedInKey(c.LinkedInURL); key != "" {
		if match, ok := byLinkedIn[key]; ok {
			return &match, 1.0, true
		}
	}

	match, ok := byName[model.NameKey(c.Name)]
	if !ok {
		return nil, 0, false
	}

	conf := confidenceName
	if c.Industry != "" && strings.EqualFold(c.Industry, match.Industry) {
		conf += confidenceIndustry
	}
	if c.Country != "" && strings.EqualFold(c.Country, match.Country) {
		conf += confidenceCountry
	}
	return &match, conf, true
}
