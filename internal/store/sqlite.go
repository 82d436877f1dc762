package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and tests; text search degrades to LIKE matching.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	name_key     TEXT NOT NULL DEFAULT '',
	size         TEXT NOT NULL DEFAULT '',
	website      TEXT NOT NULL DEFAULT '',
	founded      INTEGER NOT NULL DEFAULT 0,
	locality     TEXT NOT NULL DEFAULT '',
	region       TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	industry     TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	linkedin_key TEXT UNIQUE,
	description  TEXT NOT NULL DEFAULT '',
	saved        INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_industry ON companies(industry);
CREATE INDEX IF NOT EXISTS idx_companies_country ON companies(country);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	company_id TEXT NOT NULL REFERENCES companies(id),
	result     TEXT,
	error      TEXT,
	progress   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_id, created_at DESC);
`

const sqliteCompanyCols = `id, name, size, website, founded, locality, region, country, industry, linkedin_url, COALESCE(linkedin_key, ''), description, saved, created_at, updated_at`

const sqliteJobCols = `id, type, status, company_id, result, COALESCE(error, ''), progress, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCompany(row sqlScanner) (*model.Company, error) {
	var c model.Company
	err := row.Scan(&c.ID, &c.Name, &c.Size, &c.Website, &c.Founded,
		&c.Locality, &c.Region, &c.Country, &c.Industry,
		&c.LinkedInURL, &c.LinkedInKey, &c.Description, &c.Saved,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanSQLiteJob(row sqlScanner) (*model.Job, error) {
	var j model.Job
	var result sql.NullString
	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.CompanyID, &result,
		&j.Error, &j.Progress, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if result.Valid && result.String != "" {
		j.Result = json.RawMessage(result.String)
	}
	return &j, nil
}

// buildSQLiteWhere renders the filter into a WHERE clause with ? args.
// TextSearch falls back to LIKE over the concatenated text columns.
func buildSQLiteWhere(f CompanyFilter) (string, []any) {
	conds := []string{"1=1"}
	var args []any

	inClause := func(col string, vals []string) {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		conds = append(conds, fmt.Sprintf(`LOWER(%s) IN (%s)`, col, ph))
		for _, v := range lowerAll(vals) {
			args = append(args, v)
		}
	}

	if f.TextSearch != "" {
		conds = append(conds, `(name || ' ' || industry || ' ' || description || ' ' || locality || ' ' || region || ' ' || country) LIKE ? COLLATE NOCASE`)
		args = append(args, "%"+f.TextSearch+"%")
	}
	if f.Name != "" {
		conds = append(conds, `name LIKE ? COLLATE NOCASE`)
		args = append(args, "%"+f.Name+"%")
	}
	// Exact match, case-insensitive, unlike the substring Name filter.
	if f.Industry != "" {
		conds = append(conds, `industry = ? COLLATE NOCASE`)
		args = append(args, f.Industry)
	}
	if len(f.Industries) > 0 {
		inClause("industry", f.Industries)
	}
	if len(f.Regions) > 0 {
		inClause("region", f.Regions)
	}
	if len(f.Countries) > 0 {
		inClause("country", f.Countries)
	}
	if len(f.Localities) > 0 {
		inClause("locality", f.Localities)
	}
	if len(f.Sizes) > 0 {
		inClause("size", f.Sizes)
	}
	if len(f.Technologies) > 0 {
		var techConds []string
		for _, t := range f.Technologies {
			techConds = append(techConds, `description LIKE ? COLLATE NOCASE`)
			args = append(args, "%"+t+"%")
		}
		conds = append(conds, "("+strings.Join(techConds, " OR ")+")")
	}
	if f.FoundedFrom > 0 {
		conds = append(conds, `founded >= ?`)
		args = append(args, f.FoundedFrom)
	}
	if f.FoundedTo > 0 {
		conds = append(conds, `founded > 0 AND founded <= ?`)
		args = append(args, f.FoundedTo)
	}
	if f.SavedOnly {
		conds = append(conds, `saved = 1`)
	}

	return strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) SearchCompanies(ctx context.Context, filter CompanyFilter, sort Sort, page, limit int) ([]model.Company, int, error) {
	page, limit = model.ClampPagination(page, limit)
	where, args := buildSQLiteWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM companies WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: count companies")
	}

	order := `created_at DESC`
	switch sort {
	case SortFoundedDesc:
		order = `founded DESC, created_at DESC`
	case SortFoundedAsc:
		order = `founded ASC, created_at DESC`
	}

	query := fmt.Sprintf(`SELECT %s FROM companies WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
		sqliteCompanyCols, where, order)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "sqlite: search companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, total, eris.Wrap(rows.Err(), "sqlite: search companies iterate")
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanSQLiteCompany(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteCompanyCols+` FROM companies WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("company not found: %s", id)
		}
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) companiesByColumn(ctx context.Context, column string, keys []string) (map[string]model.Company, error) {
	if len(keys) == 0 {
		return map[string]model.Company{}, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM companies WHERE %s IN (%s)`, sqliteCompanyCols, column, ph),
		args...,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: companies by %s", column)
	}
	defer rows.Close()

	out := make(map[string]model.Company, len(keys))
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		key := c.LinkedInKey
		if column == "name_key" {
			key = model.NameKey(c.Name)
		}
		out[key] = *c
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: companies by %s iterate", column)
}

func (s *SQLiteStore) CompaniesByLinkedInKeys(ctx context.Context, keys []string) (map[string]model.Company, error) {
	return s.companiesByColumn(ctx, "linkedin_key", keys)
}

func (s *SQLiteStore) CompaniesByNameKeys(ctx context.Context, keys []string) (map[string]model.Company, error) {
	return s.companiesByColumn(ctx, "name_key", keys)
}

func (s *SQLiteStore) InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error) {
	if len(companies) == 0 {
		return nil, nil
	}

	inserted := make([]model.Company, 0, len(companies))
	var failures []error

	for _, c := range companies {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.LinkedInKey == "" {
			c.LinkedInKey = model.LinkedInKey(c.LinkedInURL)
		}
		now := time.Now().UTC()
		c.CreatedAt, c.UpdatedAt = now, now

		var id string
		err := s.db.QueryRowContext(ctx,
			`INSERT INTO companies
			 (id, name, name_key, size, website, founded, locality, region, country, industry, linkedin_url, linkedin_key, description, saved, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, 0, ?, ?)
			 ON CONFLICT (linkedin_key) DO NOTHING
			 RETURNING id`,
			c.ID, c.Name, model.NameKey(c.Name), c.Size, c.Website, c.Founded,
			c.Locality, c.Region, c.Country, c.Industry,
			c.LinkedInURL, c.LinkedInKey, c.Description, now, now,
		).Scan(&id)
		switch {
		case err == nil:
			inserted = append(inserted, c)
		case errors.Is(err, sql.ErrNoRows):
			existing, err := scanSQLiteCompany(s.db.QueryRowContext(ctx,
				`SELECT `+sqliteCompanyCols+` FROM companies WHERE linkedin_key = ?`, c.LinkedInKey))
			if err != nil {
				failures = append(failures, eris.Wrapf(err, "sqlite: resolve conflict for %q", c.Name))
				continue
			}
			inserted = append(inserted, *existing)
		default:
			failures = append(failures, eris.Wrapf(err, "sqlite: insert company %q", c.Name))
		}
	}

	if len(failures) > 0 {
		err := apperr.PartialBatch(errors.Join(failures...), "sqlite: insert companies")
		if len(inserted) == 0 {
			return nil, err
		}
		return inserted, err
	}
	return inserted, nil
}

func (s *SQLiteStore) UpdateDescription(ctx context.Context, id string, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET description = ?, updated_at = ? WHERE id = ?`,
		description, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update description %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) SetSaved(ctx context.Context, id string, saved bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET saved = ?, updated_at = ? WHERE id = ?`,
		saved, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set saved %s", id)
	}
	return checkRowsAffected(res, "company", id)
}

func (s *SQLiteStore) DistinctIndustries(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "industry")
}

func (s *SQLiteStore) DistinctCountries(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "country")
}

func (s *SQLiteStore) distinctColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT %s FROM companies WHERE %s <> '' ORDER BY %s`, column, column, column))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct %s", column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", column)
		}
		values = append(values, v)
	}
	return values, eris.Wrapf(rows.Err(), "sqlite: distinct %s iterate", column)
}

func (s *SQLiteStore) CompaniesWithoutDescription(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCompanyCols+` FROM companies WHERE description = '' ORDER BY created_at LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: companies without description")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: companies without description iterate")
}

func (s *SQLiteStore) CreateJob(ctx context.Context, jobType, companyID string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, company_id, progress, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, jobType, string(model.JobStatusPending), companyID, 0, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert job for company %s", companyID)
	}

	return &model.Job{
		ID:        id,
		Type:      jobType,
		Status:    model.JobStatusPending,
		CompanyID: companyID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ClaimJobs atomically moves up to limit pending jobs to processing.
// WAL mode serializes writers, so a single UPDATE ... RETURNING is safe
// against concurrent claimers.
func (s *SQLiteStore) ClaimJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE jobs SET status = 'processing', updated_at = ?
		 WHERE id IN (
			SELECT id FROM jobs WHERE status = 'pending' ORDER BY created_at LIMIT ?
		 )
		 RETURNING `+sqliteJobCols,
		time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: claim jobs iterate")
}

func (s *SQLiteStore) SetJobProgress(ctx context.Context, jobID string, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		progress, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', result = ?, progress = 100, error = NULL, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(result), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', error = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanSQLiteJob(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobCols+` FROM jobs WHERE id = ?`, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("job not found: %s", jobID)
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobsByCompany(ctx context.Context, companyID string, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteJobCols+` FROM jobs WHERE company_id = ? ORDER BY created_at DESC LIMIT ?`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list jobs for company %s", companyID)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// checkRowsAffected converts a zero-row update into a not-found error.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return apperr.NotFoundf("%s not updatable: %s", entity, id)
	}
	return nil
}
