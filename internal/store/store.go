// Package store persists lead sources, contacts and job progress.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrichment-worker/internal/config"
	"github.com/sells-group/enrichment-worker/internal/model"
)

var (
	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrJobNotActive is returned when a guarded job update matched no
	// row: the job is missing, already terminal, or not in the state the
	// transition starts from.
	ErrJobNotActive = eris.New("store: job not active")
)

// SourceWriter records discovered lead sources.
type SourceWriter interface {
	InsertLeadSource(ctx context.Context, src model.LeadSource) error
}

// ContactWriter records normalized contacts. A contact colliding with an
// existing (business, type, normalized value) row is skipped and reported
// as not inserted.
type ContactWriter interface {
	UpsertContact(ctx context.Context, c model.NormalizedContact) (inserted bool, err error)
}

// JobStore tracks enrichment job state. Updates never touch terminal jobs.
type JobStore interface {
	EnsureJob(ctx context.Context, jobID int64, searchID string, total int) error
	StartJob(ctx context.Context, jobID int64) error
	UpdateJobProgress(ctx context.Context, jobID int64, processed int) error
	FinishJob(ctx context.Context, jobID int64, status model.JobStatus, processed int, errMsg string) error
	GetJob(ctx context.Context, jobID int64) (*model.EnrichmentJob, error)
}

// Store is the full persistence interface.
type Store interface {
	SourceWriter
	ContactWriter
	JobStore

	ListLeadSources(ctx context.Context, businessID string) ([]model.LeadSource, error)
	ListContacts(ctx context.Context, businessID string) ([]model.NormalizedContact, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "postgres", "":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: database_url is required for postgres")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "enrichment.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

func validFinish(status model.JobStatus) error {
	if !model.JobStatusProcessing.CanTransition(status) {
		return eris.Errorf("store: finish job with non-terminal status %q", status)
	}
	return nil
}

func validSource(src model.LeadSource) error {
	if !src.Type.Valid() {
		return eris.Errorf("store: unknown source type %q", src.Type)
	}
	return nil
}

func validContact(c model.NormalizedContact) error {
	if !c.Type.Valid() {
		return eris.Errorf("store: unknown contact type %q", c.Type)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
