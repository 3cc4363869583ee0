package model

import "time"

// JobStatus is the lifecycle state of an enrichment job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusDone || next == JobStatusFailed
	default:
		return false
	}
}

// EnrichmentJob tracks progress of one batch.
type EnrichmentJob struct {
	ID         int64      `json:"id"`
	SearchID   string     `json:"search_id"`
	Total      int        `json:"total_businesses"`
	Processed  int        `json:"processed_businesses"`
	Failed     int        `json:"failed_businesses"` // not persisted
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
