package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-worker/internal/db"
	"github.com/sells-group/enrichment-worker/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

var contactColumns = []string{
	"search_id", "business_id", "contact_type", "raw_value", "normalized_value",
	"is_valid", "confidence", "source_url", "created_at",
}

var (
	pgInsertSource = `INSERT INTO lead_sources (search_id, business_id, source_type, url, domain, created_at) VALUES ($1, $2, $3, $4, $5, $6)`

	pgUpsertContact = db.MustInsertIgnoreSQL(db.InsertIgnoreConfig{
		Table:        "lead_contacts",
		Columns:      contactColumns,
		ConflictKeys: []string{"business_id", "contact_type", "normalized_value"},
	})

	pgEnsureJob = `INSERT INTO enrichment_jobs (id, search_id, total_businesses, status, created_at) VALUES ($1, $2, $3, 'pending', $4) ` +
		`ON CONFLICT (id) DO UPDATE SET search_id = EXCLUDED.search_id, total_businesses = EXCLUDED.total_businesses ` +
		`WHERE enrichment_jobs.status = 'pending'`

	pgStartJob = `UPDATE enrichment_jobs SET status = 'processing', started_at = $1 WHERE id = $2 AND status = 'pending'`

	pgUpdateProgress = `UPDATE enrichment_jobs SET processed_businesses = $1 WHERE id = $2 AND status = 'processing' AND $1 <= total_businesses`

	pgFinishJob = `UPDATE enrichment_jobs SET status = $1, processed_businesses = $2, error = $3, finished_at = $4 WHERE id = $5 AND status IN ('pending', 'processing')`

	pgGetJob = `SELECT id, search_id, total_businesses, processed_businesses, status, error, created_at, started_at, finished_at FROM enrichment_jobs WHERE id = $1`

	pgListSources = `SELECT search_id, business_id, source_type, url, domain FROM lead_sources WHERE business_id = $1 ORDER BY id`

	pgListContacts = `SELECT search_id, business_id, contact_type, raw_value, normalized_value, is_valid, confidence, source_url FROM lead_contacts WHERE business_id = $1 ORDER BY id`
)

// NewPostgres creates a PostgresStore with a connection pool. A zero
// maxConns keeps the default of 10.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id                   BIGINT PRIMARY KEY,
	search_id            TEXT NOT NULL,
	total_businesses     INTEGER NOT NULL DEFAULT 0,
	processed_businesses INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT 'pending',
	error                TEXT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at           TIMESTAMPTZ,
	finished_at          TIMESTAMPTZ,
	CHECK (processed_businesses <= total_businesses)
);

CREATE TABLE IF NOT EXISTS lead_sources (
	id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	search_id   TEXT NOT NULL,
	business_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	url         TEXT NOT NULL,
	domain      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lead_contacts (
	id               BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	search_id        TEXT NOT NULL,
	business_id      TEXT NOT NULL,
	contact_type     TEXT NOT NULL,
	raw_value        TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	is_valid         BOOLEAN NOT NULL DEFAULT false,
	confidence       DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	source_url       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (business_id, contact_type, normalized_value)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_search_id ON enrichment_jobs(search_id);
CREATE INDEX IF NOT EXISTS idx_lead_sources_business_id ON lead_sources(business_id);
CREATE INDEX IF NOT EXISTS idx_lead_sources_search_id ON lead_sources(search_id);
CREATE INDEX IF NOT EXISTS idx_lead_contacts_search_id ON lead_contacts(search_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertLeadSource(ctx context.Context, src model.LeadSource) error {
	if err := validSource(src); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, pgInsertSource,
		src.SearchID, src.BusinessID, string(src.Type), src.URL, src.Domain, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert lead source %s", src.URL)
	}
	return nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, c model.NormalizedContact) (bool, error) {
	if err := validContact(c); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx, pgUpsertContact,
		c.SearchID, c.BusinessID, string(c.Type), c.RawValue, c.NormalizedValue,
		c.IsValid, c.Confidence, c.SourceURL, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert contact %s", c.NormalizedValue)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) EnsureJob(ctx context.Context, jobID int64, searchID string, total int) error {
	_, err := s.pool.Exec(ctx, pgEnsureJob, jobID, searchID, total, time.Now().UTC())
	if err != nil {
		return eris.Wrapf(err, "postgres: ensure job %d", jobID)
	}
	return nil
}

func (s *PostgresStore) StartJob(ctx context.Context, jobID int64) error {
	tag, err := s.pool.Exec(ctx, pgStartJob, time.Now().UTC(), jobID)
	if err != nil {
		return eris.Wrapf(err, "postgres: start job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotActive, "postgres: start job %d", jobID)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID int64, processed int) error {
	tag, err := s.pool.Exec(ctx, pgUpdateProgress, processed, jobID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotActive, "postgres: update job progress %d", jobID)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, jobID int64, status model.JobStatus, processed int, errMsg string) error {
	if err := validFinish(status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgFinishJob, string(status), processed, nullIfEmpty(errMsg), time.Now().UTC(), jobID)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %d", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotActive, "postgres: finish job %d", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID int64) (*model.EnrichmentJob, error) {
	var (
		j      model.EnrichmentJob
		status string
		errMsg *string
	)
	err := s.pool.QueryRow(ctx, pgGetJob, jobID).Scan(
		&j.ID, &j.SearchID, &j.Total, &j.Processed, &status, &errMsg, &j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: get job %d", jobID)
		}
		return nil, eris.Wrapf(err, "postgres: get job %d", jobID)
	}
	j.Status = model.JobStatus(status)
	if errMsg != nil {
		j.Error = *errMsg
	}
	return &j, nil
}

func (s *PostgresStore) ListLeadSources(ctx context.Context, businessID string) ([]model.LeadSource, error) {
	rows, err := s.pool.Query(ctx, pgListSources, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list lead sources")
	}
	defer rows.Close()

	var out []model.LeadSource
	for rows.Next() {
		var src model.LeadSource
		var typ string
		if err := rows.Scan(&src.SearchID, &src.BusinessID, &typ, &src.URL, &src.Domain); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead source")
		}
		src.Type = model.SourceType(typ)
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list lead sources")
}

func (s *PostgresStore) ListContacts(ctx context.Context, businessID string) ([]model.NormalizedContact, error) {
	rows, err := s.pool.Query(ctx, pgListContacts, businessID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list contacts")
	}
	defer rows.Close()

	var out []model.NormalizedContact
	for rows.Next() {
		var c model.NormalizedContact
		var typ string
		if err := rows.Scan(&c.SearchID, &c.BusinessID, &typ, &c.RawValue, &c.NormalizedValue,
			&c.IsValid, &c.Confidence, &c.SourceURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		c.Type = model.ContactType(typ)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list contacts")
}
