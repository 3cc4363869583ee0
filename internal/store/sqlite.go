package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrichment-worker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id                   INTEGER PRIMARY KEY,
	search_id            TEXT NOT NULL,
	total_businesses     INTEGER NOT NULL DEFAULT 0,
	processed_businesses INTEGER NOT NULL DEFAULT 0,
	status               TEXT NOT NULL DEFAULT 'pending',
	error                TEXT,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at           DATETIME,
	finished_at          DATETIME,
	CHECK (processed_businesses <= total_businesses)
);

CREATE TABLE IF NOT EXISTS lead_sources (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id   TEXT NOT NULL,
	business_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	url         TEXT NOT NULL,
	domain      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lead_contacts (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	search_id        TEXT NOT NULL,
	business_id      TEXT NOT NULL,
	contact_type     TEXT NOT NULL,
	raw_value        TEXT NOT NULL,
	normalized_value TEXT NOT NULL,
	is_valid         BOOLEAN NOT NULL DEFAULT 0,
	confidence       REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
	source_url       TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_lead_contacts_unique ON lead_contacts(business_id, contact_type, normalized_value);
CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_search_id ON enrichment_jobs(search_id);
CREATE INDEX IF NOT EXISTS idx_lead_sources_business_id ON lead_sources(business_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertLeadSource(ctx context.Context, src model.LeadSource) error {
	if err := validSource(src); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_sources (search_id, business_id, source_type, url, domain, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		src.SearchID, src.BusinessID, string(src.Type), src.URL, src.Domain, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert lead source %s", src.URL)
	}
	return nil
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c model.NormalizedContact) (bool, error) {
	if err := validContact(c); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lead_contacts
		(search_id, business_id, contact_type, raw_value, normalized_value, is_valid, confidence, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SearchID, c.BusinessID, string(c.Type), c.RawValue, c.NormalizedValue,
		c.IsValid, c.Confidence, c.SourceURL, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert contact %s", c.NormalizedValue)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) EnsureJob(ctx context.Context, jobID int64, searchID string, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, search_id, total_businesses, status, created_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT (id) DO UPDATE SET search_id = excluded.search_id, total_businesses = excluded.total_businesses
		WHERE enrichment_jobs.status = 'pending'`,
		jobID, searchID, total, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: ensure job %d", jobID)
	}
	return nil
}

func (s *SQLiteStore) StartJob(ctx context.Context, jobID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = 'processing', started_at = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start job %d", jobID)
	}
	return checkJobUpdated(res, "sqlite: start job", jobID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID int64, processed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET processed_businesses = ?
		WHERE id = ? AND status = 'processing' AND ? <= total_businesses`,
		processed, jobID, processed,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %d", jobID)
	}
	return checkJobUpdated(res, "sqlite: update job progress", jobID)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID int64, status model.JobStatus, processed int, errMsg string) error {
	if err := validFinish(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE enrichment_jobs SET status = ?, processed_businesses = ?, error = ?, finished_at = ?
		WHERE id = ? AND status IN ('pending', 'processing')`,
		string(status), processed, nullIfEmpty(errMsg), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %d", jobID)
	}
	return checkJobUpdated(res, "sqlite: finish job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID int64) (*model.EnrichmentJob, error) {
	var (
		j          model.EnrichmentJob
		status     string
		errMsg     sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, search_id, total_businesses, processed_businesses, status, error, created_at, started_at, finished_at
		FROM enrichment_jobs WHERE id = ?`,
		jobID,
	).Scan(&j.ID, &j.SearchID, &j.Total, &j.Processed, &status, &errMsg, &j.CreatedAt, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get job %d", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %d", jobID)
	}

	j.Status = model.JobStatus(status)
	j.Error = errMsg.String
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		j.FinishedAt = &finishedAt.Time
	}
	return &j, nil
}

func (s *SQLiteStore) ListLeadSources(ctx context.Context, businessID string) ([]model.LeadSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT search_id, business_id, source_type, url, domain FROM lead_sources WHERE business_id = ? ORDER BY id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list lead sources")
	}
	defer func() { _ = rows.Close() }()

	var out []model.LeadSource
	for rows.Next() {
		var src model.LeadSource
		var typ string
		if err := rows.Scan(&src.SearchID, &src.BusinessID, &typ, &src.URL, &src.Domain); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead source")
		}
		src.Type = model.SourceType(typ)
		out = append(out, src)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list lead sources")
}

func (s *SQLiteStore) ListContacts(ctx context.Context, businessID string) ([]model.NormalizedContact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT search_id, business_id, contact_type, raw_value, normalized_value, is_valid, confidence, source_url
		FROM lead_contacts WHERE business_id = ? ORDER BY id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list contacts")
	}
	defer func() { _ = rows.Close() }()

	var out []model.NormalizedContact
	for rows.Next() {
		var c model.NormalizedContact
		var typ string
		if err := rows.Scan(&c.SearchID, &c.BusinessID, &typ, &c.RawValue, &c.NormalizedValue,
			&c.IsValid, &c.Confidence, &c.SourceURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		c.Type = model.ContactType(typ)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list contacts")
}

func checkJobUpdated(res sql.Result, action string, jobID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrJobNotActive, "%s %d", action, jobID)
	}
	return nil
}
