package pipeline

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/notify"
	"github.com/sells-group/enrichment-worker/internal/resilience"
	"github.com/sells-group/enrichment-worker/internal/store"
)

// MaxErrorLen bounds the error message persisted and sent on failure.
const MaxErrorLen = 500

// BusinessEnricher enriches a single business.
type BusinessEnricher interface {
	EnrichBusiness(ctx context.Context, searchID string, b model.Business) (*BusinessResult, error)
}

// Coordinator processes one enrichment request at a time: it walks the
// businesses in order, persists progress, records the terminal status and
// sends the completion notification.
type Coordinator struct {
	enricher BusinessEnricher
	jobs     store.JobStore
	notifier notify.Notifier
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(enricher BusinessEnricher, jobs store.JobStore, notifier notify.Notifier) *Coordinator {
	return &Coordinator{enricher: enricher, jobs: jobs, notifier: notifier}
}

// Run processes req to completion and returns the final job state. A
// failing business never stops the batch; only a failed progress write or
// cancellation does, and the job is then marked failed.
func (c *Coordinator) Run(ctx context.Context, req model.EnrichRequest) model.EnrichmentJob {
	log := zap.L().With(
		zap.Int64("job_id", req.JobID),
		zap.String("search_id", req.SearchID),
		zap.String("run_id", uuid.NewString()),
	)
	start := time.Now()

	job := model.EnrichmentJob{
		ID:        req.JobID,
		SearchID:  req.SearchID,
		Total:     len(req.Businesses),
		Status:    model.JobStatusProcessing,
		CreatedAt: start.UTC(),
	}
	log.Info("pipeline: job starting", zap.Int("total", job.Total))

	if err := c.process(ctx, log, req, &job); err != nil {
		job.Status = model.JobStatusFailed
		job.Error = TruncateError(err.Error(), MaxErrorLen)
		log.Error("pipeline: job failed",
			zap.Int("processed", job.Processed),
			zap.Error(err),
		)
	} else {
		job.Status = model.JobStatusDone
	}

	// Final writes must land even when the batch was cancelled.
	finalCtx := context.WithoutCancel(ctx)
	if err := c.jobs.FinishJob(finalCtx, job.ID, job.Status, job.Processed, job.Error); err != nil {
		log.Error("pipeline: record terminal status failed",
			zap.String("status", string(job.Status)),
			zap.Error(err),
		)
	}
	finished := time.Now().UTC()
	job.FinishedAt = &finished

	c.notify(finalCtx, log, job)

	log.Info("pipeline: job finished",
		zap.String("status", string(job.Status)),
		zap.Int("processed", job.Processed),
		zap.Int("failed", job.Failed),
		zap.Int("total", job.Total),
		zap.Duration("duration", time.Since(start)),
	)
	return job
}

func (c *Coordinator) process(ctx context.Context, log *zap.Logger, req model.EnrichRequest, job *model.EnrichmentJob) error {
	if err := c.jobs.StartJob(ctx, req.JobID); err != nil {
		return eris.Wrap(err, "pipeline: start job")
	}
	started := time.Now().UTC()
	job.StartedAt = &started

	for i, b := range req.Businesses {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: interrupted before business %d of %d", i+1, job.Total)
		}

		res, err := c.safeEnrich(ctx, req.SearchID, b)
		if err != nil {
			job.Failed++
			log.Error("pipeline: business failed",
				zap.String("business_id", b.ID),
				zap.String("error_kind", string(resilience.Classify(err))),
				zap.Error(err),
			)
		} else {
			log.Info("pipeline: business complete",
				zap.String("business_id", b.ID),
				zap.Int("sources", res.SourcesStored),
				zap.Int("contacts", res.ContactsStored),
			)
		}

		job.Processed++
		if err := c.jobs.UpdateJobProgress(ctx, req.JobID, job.Processed); err != nil {
			return eris.Wrap(err, "pipeline: update progress")
		}
	}
	return nil
}

// safeEnrich runs the enricher and converts a panic into an error.
func (c *Coordinator) safeEnrich(ctx context.Context, searchID string, b model.Business) (res *BusinessResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = eris.Errorf("pipeline: panic enriching business %s: %v", b.ID, r)
		}
	}()
	return c.enricher.EnrichBusiness(ctx, searchID, b)
}

func (c *Coordinator) notify(ctx context.Context, log *zap.Logger, job model.EnrichmentJob) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(ctx, notify.Notification{
		JobID:     job.ID,
		SearchID:  job.SearchID,
		Status:    job.Status,
		Processed: job.Processed,
		Total:     job.Total,
		Error:     job.Error,
	})
	if err != nil {
		log.Warn("pipeline: callback failed",
			zap.String("error_kind", string(resilience.Classify(err))),
			zap.Error(err),
		)
	}
}

// TruncateError cuts msg to at most n bytes without splitting a UTF-8
// sequence.
func TruncateError(msg string, n int) string {
	if len(msg) <= n {
		return msg
	}
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
