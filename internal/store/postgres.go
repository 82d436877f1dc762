package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/db"
	"github.com/sells-group/prospect-api/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const companyCols = `id, name, size, website, founded, locality, region, country, industry, linkedin_url, COALESCE(linkedin_key, ''), description, saved, created_at, updated_at`

const jobCols = `id, type, status, company_id, result, COALESCE(error, ''), progress, created_at, updated_at`

// companyTSV is the text-search document over a company row. The GIN index
// in the migration must use the identical expression or the planner will
// not pick it up.
const companyTSV = `to_tsvector('english', name || ' ' || industry || ' ' || description || ' ' || locality || ' ' || region || ' ' || country)`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_company":        `SELECT ` + companyCols + ` FROM companies WHERE id = $1`,
	"update_description": `UPDATE companies SET description = $1, updated_at = $2 WHERE id = $3`,
	"set_saved":          `UPDATE companies SET saved = $1, updated_at = $2 WHERE id = $3`,
	"get_job":            `SELECT ` + jobCols + ` FROM jobs WHERE id = $1`,
	"insert_job":         `INSERT INTO jobs (id, type, status, company_id, progress, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	saved        BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_companies_name_key ON companies(name_key);
CREATE INDEX IF NOT EXISTS idx_companies_industry ON companies(industry);
CREATE INDEX IF NOT EXISTS idx_companies_country ON companies(country);
CREATE INDEX IF NOT EXISTS idx_companies_saved ON companies(saved) WHERE saved;
CREATE INDEX IF NOT EXISTS idx_companies_tsv ON companies USING GIN (` + companyTSV + `);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	company_id TEXT NOT NULL REFERENCES companies(id),
	result     JSONB,
	error      TEXT,
	progress   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

type pgScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row pgScanner) (*model.Company, error) {
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

func scanJob(row pgScanner) (*model.Job, error) {
	var j model.Job
	var result *[]byte
	err := row.Scan(&j.ID, &j.Type, &j.Status, &j.CompanyID, &result,
		&j.Error, &j.Progress, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if result != nil {
		j.Result = json.RawMessage(*result)
	}
	return &j, nil
}

// buildCompanyWhere renders the filter into a WHERE clause with positional
// args starting at $1. It returns the clause (without the WHERE keyword),
// the args, and the next free arg index.
func buildCompanyWhere(f CompanyFilter) (string, []any, int) {
	conds := []string{"true"}
	args := []any{}
	argIdx := 1

	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
		argIdx += len(vals)
	}

	if f.TextSearch != "" {
		add(fmt.Sprintf(`%s @@ plainto_tsquery('english', $%d)`, companyTSV, argIdx), f.TextSearch)
	}
	if f.Name != "" {
		add(fmt.Sprintf(`name ILIKE $%d`, argIdx), "%"+f.Name+"%")
	}
	// Single-valued industry is exact equality and set-valued fields match
	// whole values; both are case-insensitive.
	if f.Industry != "" {
		add(fmt.Sprintf(`industry ILIKE $%d`, argIdx), f.Industry)
	}
	if len(f.Industries) > 0 {
		add(fmt.Sprintf(`LOWER(industry) = ANY($%d)`, argIdx), lowerAll(f.Industries))
	}
	if len(f.Regions) > 0 {
		add(fmt.Sprintf(`LOWER(region) = ANY($%d)`, argIdx), lowerAll(f.Regions))
	}
	if len(f.Countries) > 0 {
		add(fmt.Sprintf(`LOWER(country) = ANY($%d)`, argIdx), lowerAll(f.Countries))
	}
	if len(f.Localities) > 0 {
		add(fmt.Sprintf(`LOWER(locality) = ANY($%d)`, argIdx), lowerAll(f.Localities))
	}
	if len(f.Sizes) > 0 {
		add(fmt.Sprintf(`LOWER(size) = ANY($%d)`, argIdx), lowerAll(f.Sizes))
	}
	if len(f.Technologies) > 0 {
		patterns := make([]string, len(f.Technologies))
		for i, t := range f.Technologies {
			patterns[i] = "%" + t + "%"
		}
		add(fmt.Sprintf(`description ILIKE ANY($%d)`, argIdx), patterns)
	}
	if f.FoundedFrom > 0 {
		add(fmt.Sprintf(`founded >= $%d`, argIdx), f.FoundedFrom)
	}
	if f.FoundedTo > 0 {
		add(fmt.Sprintf(`founded > 0 AND founded <= $%d`, argIdx), f.FoundedTo)
	}
	if f.SavedOnly {
		conds = append(conds, `saved`)
	}

	return strings.Join(conds, " AND "), args, argIdx
}

func (s *PostgresStore) SearchCompanies(ctx context.Context, filter CompanyFilter, sort Sort, page, limit int) ([]model.Company, int, error) {
	page, limit = model.ClampPagination(page, limit)
	where, args, argIdx := buildCompanyWhere(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM companies WHERE ` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, eris.Wrap(err, "postgres: count companies")
	}

	order := `created_at DESC`
	switch sort {
	case SortRelevance:
		if filter.TextSearch != "" {
			order = fmt.Sprintf(`ts_rank(%s, plainto_tsquery('english', $%d)) DESC, created_at DESC`, companyTSV, argIdx)
			args = append(args, filter.TextSearch)
			argIdx++
		}
	case SortFoundedDesc:
		order = `founded DESC, created_at DESC`
	case SortFoundedAsc:
		order = `founded ASC, created_at DESC`
	}

	query := fmt.Sprintf(`SELECT %s FROM companies WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		companyCols, where, order, argIdx, argIdx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, eris.Wrap(err, "postgres: search companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, total, eris.Wrap(rows.Err(), "postgres: search companies iterate")
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyCols+` FROM companies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("company not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return c, nil
}

func (s *PostgresStore) CompaniesByLinkedInKeys(ctx context.Context, keys []string) (map[string]model.Company, error) {
	if len(keys) == 0 {
		return map[string]model.Company{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyCols+` FROM companies WHERE linkedin_key = ANY($1)`, keys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: companies by linkedin keys")
	}
	defer rows.Close()

	out := make(map[string]model.Company, len(keys))
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out[c.LinkedInKey] = *c
	}
	return out, eris.Wrap(rows.Err(), "postgres: companies by linkedin keys iterate")
}

func (s *PostgresStore) CompaniesByNameKeys(ctx context.Context, keys []string) (map[string]model.Company, error) {
	if len(keys) == 0 {
		return map[string]model.Company{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyCols+` FROM companies WHERE name_key = ANY($1)`, keys)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: companies by name keys")
	}
	defer rows.Close()

	out := make(map[string]model.Company, len(keys))
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out[model.NameKey(c.Name)] = *c
	}
	return out, eris.Wrap(rows.Err(), "postgres: companies by name keys iterate")
}

// InsertCompanies inserts the batch, assigning ids and match keys. Rows
// whose linkedin_key collides with an existing row resolve to that existing
// row, so every input yields a persisted company in the result. A mix of
// successes and per-row failures returns the persisted subset alongside an
// ErrPartialBatch-tagged error.
func (s *PostgresStore) InsertCompanies(ctx context.Context, companies []model.Company) ([]model.Company, error) {
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
		err := s.pool.QueryRow(ctx,
			`INSERT INTO companies
			 (id, name, name_key, size, website, founded, locality, region, country, industry, linkedin_url, linkedin_key, description, saved, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''), $13, false, $14, $14)
			 ON CONFLICT (linkedin_key) DO NOTHING
			 RETURNING id`,
			c.ID, c.Name, model.NameKey(c.Name), c.Size, c.Website, c.Founded,
			c.Locality, c.Region, c.Country, c.Industry,
			c.LinkedInURL, c.LinkedInKey, c.Description, now,
		).Scan(&id)
		switch {
		case err == nil:
			inserted = append(inserted, c)
		case errors.Is(err, pgx.ErrNoRows):
			// Lost a key race; resolve to the row that won.
			existing, err := scanCompany(s.pool.QueryRow(ctx,
				`SELECT `+companyCols+` FROM companies WHERE linkedin_key = $1`, c.LinkedInKey))
			if err != nil {
				failures = append(failures, eris.Wrapf(err, "postgres: resolve conflict for %q", c.Name))
				continue
			}
			inserted = append(inserted, *existing)
		default:
			failures = append(failures, eris.Wrapf(err, "postgres: insert company %q", c.Name))
		}
	}

	if len(failures) > 0 {
		err := apperr.PartialBatch(errors.Join(failures...), "postgres: insert companies")
		if len(inserted) == 0 {
			return nil, err
		}
		return inserted, err
	}
	return inserted, nil
}

func (s *PostgresStore) UpdateDescription(ctx context.Context, id string, description string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET description = $1, updated_at = $2 WHERE id = $3`,
		description, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update description %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("company not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetSaved(ctx context.Context, id string, saved bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET saved = $1, updated_at = $2 WHERE id = $3`,
		saved, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set saved %s", id)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("company not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DistinctIndustries(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "industry")
}

func (s *PostgresStore) DistinctCountries(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "country")
}

func (s *PostgresStore) distinctColumn(ctx context.Context, column string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM companies WHERE %s <> '' ORDER BY %s`,
		column, column, column)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct %s", column)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", column)
		}
		values = append(values, v)
	}
	return values, eris.Wrapf(rows.Err(), "postgres: distinct %s iterate", column)
}

func (s *PostgresStore) CompaniesWithoutDescription(ctx context.Context, limit int) ([]model.Company, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+companyCols+` FROM companies WHERE description = '' ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: companies without description")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: companies without description iterate")
}

func (s *PostgresStore) CreateJob(ctx context.Context, jobType, companyID string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, type, status, company_id, progress, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, jobType, string(model.JobStatusPending), companyID, 0, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert job for company %s", companyID)
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

// ClaimJobs atomically moves up to limit pending jobs to processing and
// returns them. SKIP LOCKED keeps concurrent workers from claiming the
// same row.
func (s *PostgresStore) ClaimJobs(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.pool.Query(ctx,
		`WITH claimed AS (
			SELECT id FROM jobs
			WHERE status = 'pending'
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs SET status = 'processing', updated_at = now()
		WHERE id IN (SELECT id FROM claimed)
		RETURNING `+jobCols,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: claim jobs iterate")
}

func (s *PostgresStore) SetJobProgress(ctx context.Context, jobID string, progress int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('completed', 'failed')`,
		progress, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("job not updatable: %s", jobID)
	}
	return nil
}

// CompleteJob marks the job completed with the given result payload.
// Terminal rows are never updated.
func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', result = $1, progress = 100, error = NULL, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('completed', 'failed')`,
		[]byte(result), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("job not updatable: %s", jobID)
	}
	return nil
}

// FailJob marks the job failed with the given error message. Terminal rows
// are never updated.
func (s *PostgresStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('completed', 'failed')`,
		errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("job not updatable: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFoundf("job not found: %s", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobsByCompany(ctx context.Context, companyID string, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobCols+` FROM jobs WHERE company_id = $1 ORDER BY created_at DESC LIMIT $2`,
		companyID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list jobs for company %s", companyID)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}
