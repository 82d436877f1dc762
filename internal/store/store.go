// Package store provides the persistence layer for companies and the
// enrichment job ledger, with PostgreSQL and SQLite backends.
package store

import (
	"context"
	"encoding/json"

	"github.com/sells-group/prospect-api/internal/model"
)

// Store defines the persistence interface for companies and enrichment jobs.
type Store interface {
	// Companies
	SearchCompanies(ctx context.Context, filter CompanyFilter, sort Sort, page, limit int) ([]model.Company, int, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	CompaniesByLinkedInKeys(ctx context.Context, keys []string) (map[string]model.Company, error)
	CompaniesByNameKeys(ctx context.Context, keys []string) (map[string]model.Company, error)
	InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error)
	UpdateDescription(ctx context.Context, id string, description string) error
	SetSaved(ctx context.Context, id string, saved bool) error
	DistinctIndustries(ctx context.Context) ([]string, error)
	DistinctCountries(ctx context.Context) ([]string, error)
	CompaniesWithoutDescription(ctx context.Context, limit int) ([]model.Company, error)

	// Jobs
	CreateJob(ctx context.Context, jobType, companyID string) (*model.Job, error)
	ClaimJobs(ctx context.Context, limit int) ([]model.Job, error)
	SetJobProgress(ctx context.Context, jobID string, progress int) error
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobsByCompany(ctx context.Context, companyID string, limit int) ([]model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
