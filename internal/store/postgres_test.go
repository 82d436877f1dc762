package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func companyMockRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "size", "website", "founded", "locality", "region",
		"country", "industry", "linkedin_url", "linkedin_key", "description",
		"saved", "created_at", "updated_at",
	})
}

func jobMockRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "type", "status", "company_id", "result", "error", "progress",
		"created_at", "updated_at",
	})
}

func TestPostgresStore_GetCompany_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetCompany(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM companies WHERE id = \$1`).
		WithArgs("c-1").
		WillReturnRows(companyMockRows().AddRow(
			"c-1", "Acme Robotics", "51-200", "https://acme.example", 2012,
			"Austin", "Texas", "United States", "Robotics",
			"https://linkedin.com/company/acme-robotics", "linkedin.com/company/acme-robotics",
			"Builds robots.", true, now, now,
		))

	c, err := s.GetCompany(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Robotics", c.Name)
	assert.Equal(t, "linkedin.com/company/acme-robotics", c.LinkedInKey)
	assert.True(t, c.Saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSaved_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE companies SET saved`).
		WithArgs(true, pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.SetSaved(context.Background(), "missing", true)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDescription(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE companies SET description`).
		WithArgs("A fine company.", pgxmock.AnyArg(), "c-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateDescription(context.Background(), "c-1", "A fine company.")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimJobs(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(5).
		WillReturnRows(jobMockRows().
			AddRow("j-1", "description-generation", "processing", "c-1", nil, "", 0, now, now).
			AddRow("j-2", "description-generation", "processing", "c-2", nil, "", 0, now, now))

	jobs, err := s.ClaimJobs(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-1", jobs[0].ID)
	assert.Equal(t, "c-2", jobs[1].CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteJob_TerminalGuard(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = 'completed'`).
		WithArgs(pgxmock.AnyArg(), "j-done").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteJob(context.Background(), "j-done", []byte(`{"description":"x"}`))
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = 'failed'`).
		WithArgs("provider timeout", "j-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailJob(context.Background(), "j-1", "provider timeout")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertCompanies_ConflictResolvesToExisting(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO companies`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM companies WHERE linkedin_key = \$1`).
		WithArgs("linkedin.com/company/acme").
		WillReturnRows(companyMockRows().AddRow(
			"existing-id", "Acme", "", "", 0, "", "", "", "",
			"https://linkedin.com/company/acme", "linkedin.com/company/acme",
			"", false, now, now,
		))

	inserted, err := s.InsertCompanies(context.Background(), []model.Company{
		{Name: "Acme", LinkedInURL: "https://www.linkedin.com/company/acme"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "existing-id", inserted[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DistinctIndustries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT industry FROM companies`).
		WillReturnRows(pgxmock.NewRows([]string{"industry"}).
			AddRow("Robotics").
			AddRow("Software"))

	industries, err := s.DistinctIndustries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Robotics", "Software"}, industries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildCompanyWhere_ArgOrdering(t *testing.T) {
	where, args, next := buildCompanyWhere(CompanyFilter{
		TextSearch: "robotics",
		Countries:  []string{"United States"},
		SavedOnly:  true,
	})
	assert.Contains(t, where, `plainto_tsquery('english', $1)`)
	assert.Contains(t, where, `LOWER(country) = ANY($2)`)
	assert.Contains(t, where, `saved`)
	assert.Len(t, args, 2)
	assert.Equal(t, []string{"united states"}, args[1])
	assert.Equal(t, 3, next)
}

func TestBuildCompanyWhere_IndustryExactMatch(t *testing.T) {
	where, args, _ := buildCompanyWhere(CompanyFilter{Industry: "Fintech"})
	// Equality, not a substring pattern: "fintech services" must not match.
	assert.Contains(t, where, `industry ILIKE $1`)
	assert.Equal(t, []any{"Fintech"}, args)
}
