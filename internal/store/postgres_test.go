package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-worker/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func TestPostgresStore_UpsertContact_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	c := testContact("biz-1", "info@acme.com")

	mock.ExpectExec(`INSERT INTO "lead_contacts" .* ON CONFLICT \("business_id", "contact_type", "normalized_value"\) DO NOTHING`).
		WithArgs("search-1", "biz-1", "email", "info@acme.com", "info@acme.com", true, 0.9, "https://acme.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.UpsertContact(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContact_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.UpsertContact(context.Background(), testContact("biz-1", "info@acme.com"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContact_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).WillReturnError(errors.New("connection refused"))

	_, err := s.UpsertContact(context.Background(), testContact("biz-1", "info@acme.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert contact")
}

func TestPostgresStore_InsertLeadSource(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO lead_sources`).
		WithArgs("s", "biz-1", "website", "https://acme.com", "acme.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertLeadSource(context.Background(), model.LeadSource{
		SearchID: "s", BusinessID: "biz-1", Type: model.SourceWebsite, URL: "https://acme.com", Domain: "acme.com",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enrichment_jobs .* ON CONFLICT \(id\) DO UPDATE .* WHERE enrichment_jobs.status = 'pending'`).
		WithArgs(int64(42), "search-1", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureJob(context.Background(), 42, "search-1", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartJob_Terminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE enrichment_jobs SET status = 'processing'`).
		WithArgs(pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.StartJob(context.Background(), 42)
	assert.True(t, errors.Is(err, ErrJobNotActive))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateJobProgress(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE enrichment_jobs SET processed_businesses = \$1 WHERE id = \$2 AND status = 'processing'`).
		WithArgs(2, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateJobProgress(context.Background(), 42, 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE enrichment_jobs SET status = \$1`).
		WithArgs("failed", 1, "boom", pgxmock.AnyArg(), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE enrichment_jobs SET status = \$1`).
		WithArgs("done", 3, nil, pgxmock.AnyArg(), int64(43)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FinishJob(context.Background(), 42, model.JobStatusFailed, 1, "boom"))
	require.NoError(t, s.FinishJob(context.Background(), 43, model.JobStatusDone, 3, ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	started := created.Add(time.Second)
	finished := created.Add(time.Minute)
	errMsg := "boom"

	mock.ExpectQuery(`SELECT id, search_id, total_businesses, processed_businesses, status, error, created_at, started_at, finished_at FROM enrichment_jobs WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "search_id", "total_businesses", "processed_businesses", "status", "error", "created_at", "started_at", "finished_at",
		}).AddRow(int64(42), "search-1", 3, 1, "failed", &errMsg, created, &started, &finished))

	job, err := s.GetJob(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.Equal(t, 1, job.Processed)
	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, finished, *job.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM enrichment_jobs WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), 9)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListContacts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM lead_contacts WHERE business_id = \$1`).
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"search_id", "business_id", "contact_type", "raw_value", "normalized_value", "is_valid", "confidence", "source_url",
		}).AddRow("search-1", "biz-1", "email", "info@acme.com", "info@acme.com", true, 0.9, "https://acme.com"))

	got, err := s.ListContacts(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testContact("biz-1", "info@acme.com"), got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS enrichment_jobs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), configFor("mysql", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpen_PostgresRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), configFor("postgres", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url is required")
}

func TestOpen_SQLite(t *testing.T) {
	st, err := Open(context.Background(), configFor("sqlite", t.TempDir()+"/open.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
}
