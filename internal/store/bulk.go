package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-api/internal/db"
	"github.com/sells-group/prospect-api/internal/model"
)

var bulkImportCols = []string{
	"id", "name", "name_key", "size", "website", "founded",
	"locality", "region", "country", "industry",
	"linkedin_url", "linkedin_key", "description", "saved",
	"created_at", "updated_at",
}

// Columns refreshed when an import row collides with an existing linkedin
// key. Description and saved stay untouched so imports never clobber
// generated descriptions or user bookmarks.
var bulkImportUpdateCols = []string{
	"name", "name_key", "size", "website", "founded",
	"locality", "region", "country", "industry",
	"linkedin_url", "updated_at",
}

// BulkImportCompanies loads an import batch through a temp-table COPY plus
// INSERT ON CONFLICT, far cheaper than row-at-a-time inserts at bulk sizes.
// The conflict target is linkedin_key, so rows without one fall back to
// InsertCompanies. Returns the number of rows written or refreshed.
func (s *PostgresStore) BulkImportCompanies(ctx context.Context, companies []model.Company) (int64, error) {
	if len(companies) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(companies))
	var keyed [][]any
	var keyless []model.Company

	for _, c := range companies {
		key := c.LinkedInKey
		if key == "" {
			key = model.LinkedInKey(c.LinkedInURL)
		}
		if key == "" {
			keyless = append(keyless, c)
			continue
		}
		// A duplicate key inside one batch would make the upsert touch the
		// same row twice, which Postgres rejects.
		if seen[key] {
			continue
		}
		seen[key] = true

		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		keyed = append(keyed, []any{
			id, c.Name, model.NameKey(c.Name), c.Size, c.Website, c.Founded,
			c.Locality, c.Region, c.Country, c.Industry,
			c.LinkedInURL, key, c.Description, c.Saved,
			now, now,
		})
	}

	var total int64
	if len(keyed) > 0 {
		n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
			Table:        "companies",
			Columns:      bulkImportCols,
			ConflictKeys: []string{"linkedin_key"},
			UpdateCols:   bulkImportUpdateCols,
		}, keyed)
		if err != nil {
			return total, eris.Wrap(err, "postgres: bulk import companies")
		}
		total += n
	}

	if len(keyless) > 0 {
		inserted, err := s.InsertCompanies(ctx, keyless)
		total += int64(len(inserted))
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
