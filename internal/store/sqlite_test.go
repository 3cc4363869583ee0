package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrichment-worker/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testContact(businessID, value string) model.NormalizedContact {
	return model.NormalizedContact{
		SearchID:        "search-1",
		BusinessID:      businessID,
		Type:            model.ContactEmail,
		RawValue:        value,
		NormalizedValue: value,
		IsValid:         true,
		Confidence:      0.9,
		SourceURL:       "https://acme.com",
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_UpsertContact_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := testContact("biz-1", "info@acme.com")
	inserted, err := st.UpsertContact(ctx, c)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same triple with a different raw value and score is ignored.
	dup := c
	dup.RawValue = "INFO@acme.com"
	dup.Confidence = 0.5
	inserted, err = st.UpsertContact(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	contacts, err := st.ListContacts(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, c, contacts[0])
}

func TestSQLite_UpsertContact_DistinctTriples(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := testContact("biz-1", "+541145678900")
	a.Type = model.ContactPhone
	b := a
	b.Type = model.ContactWhatsApp
	c := a
	c.BusinessID = "biz-2"

	for _, nc := range []model.NormalizedContact{a, b, c} {
		inserted, err := st.UpsertContact(ctx, nc)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	got, err := st.ListContacts(ctx, "biz-1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_UpsertContact_RejectsOutOfRangeConfidence(t *testing.T) {
	st := newTestSQLiteStore(t)
	c := testContact("biz-1", "info@acme.com")
	c.Confidence = 1.5
	_, err := st.UpsertContact(context.Background(), c)
	assert.Error(t, err)
}

func TestSQLite_RejectsUnknownTypes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := testContact("biz-1", "fax")
	c.Type = model.ContactType("fax")
	_, err := st.UpsertContact(ctx, c)
	assert.ErrorContains(t, err, "unknown contact type")

	err = st.InsertLeadSource(ctx, model.LeadSource{SearchID: "s", BusinessID: "biz-1", Type: "tiktok", URL: "https://tiktok.com/@acme"})
	assert.ErrorContains(t, err, "unknown source type")
}

func TestSQLite_LeadSources(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	srcs := []model.LeadSource{
		{SearchID: "s", BusinessID: "biz-1", Type: model.SourceWebsite, URL: "https://acme.com", Domain: "acme.com"},
		{SearchID: "s", BusinessID: "biz-1", Type: model.SourceInstagram, URL: "https://instagram.com/acme", Domain: "instagram.com"},
	}
	for _, src := range srcs {
		require.NoError(t, st.InsertLeadSource(ctx, src))
	}

	got, err := st.ListLeadSources(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, srcs, got)

	none, err := st.ListLeadSources(ctx, "biz-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLite_JobLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureJob(ctx, 42, "search-1", 3))
	job, err := st.GetJob(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Nil(t, job.StartedAt)

	require.NoError(t, st.StartJob(ctx, 42))
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.UpdateJobProgress(ctx, 42, i))
	}
	require.NoError(t, st.FinishJob(ctx, 42, model.JobStatusDone, 3, ""))

	job, err = st.GetJob(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusDone, job.Status)
	assert.Equal(t, 3, job.Processed)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
}

func TestSQLite_EnsureJob_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureJob(ctx, 1, "search-1", 2))
	require.NoError(t, st.EnsureJob(ctx, 1, "search-1", 5))

	job, err := st.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, job.Total)

	// Once running, the total is frozen.
	require.NoError(t, st.StartJob(ctx, 1))
	require.NoError(t, st.EnsureJob(ctx, 1, "search-1", 9))
	job, err = st.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, job.Total)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestSQLite_TerminalJobsAreFinal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureJob(ctx, 7, "search-1", 2))
	require.NoError(t, st.StartJob(ctx, 7))
	require.NoError(t, st.FinishJob(ctx, 7, model.JobStatusFailed, 1, "boom"))

	err := st.UpdateJobProgress(ctx, 7, 2)
	assert.True(t, errors.Is(err, ErrJobNotActive))
	err = st.FinishJob(ctx, 7, model.JobStatusDone, 2, "")
	assert.True(t, errors.Is(err, ErrJobNotActive))
	err = st.StartJob(ctx, 7)
	assert.True(t, errors.Is(err, ErrJobNotActive))
	require.NoError(t, st.EnsureJob(ctx, 7, "search-1", 10))

	job, err := st.GetJob(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Processed)
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, "boom", job.Error)
}

func TestSQLite_ProgressBoundedByTotal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureJob(ctx, 3, "search-1", 1))
	require.NoError(t, st.StartJob(ctx, 3))
	require.NoError(t, st.UpdateJobProgress(ctx, 3, 1))

	err := st.UpdateJobProgress(ctx, 3, 2)
	assert.True(t, errors.Is(err, ErrJobNotActive))
}

func TestSQLite_ProgressRequiresProcessing(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.EnsureJob(ctx, 4, "search-1", 2))
	err := st.UpdateJobProgress(ctx, 4, 1)
	assert.True(t, errors.Is(err, ErrJobNotActive))
}

func TestSQLite_FinishJob_NonTerminalStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.FinishJob(context.Background(), 1, model.JobStatusProcessing, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-terminal")
}

func TestSQLite_GetJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetJob(context.Background(), 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}
