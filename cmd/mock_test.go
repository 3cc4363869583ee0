package main

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/worker"
)

// --- JobStore Mock ---

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) EnsureJob(ctx context.Context, jobID int64, searchID string, total int) error {
	args := m.Called(ctx, jobID, searchID, total)
	return args.Error(0)
}

func (m *mockJobStore) StartJob(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockJobStore) UpdateJobProgress(ctx context.Context, jobID int64, processed int) error {
	args := m.Called(ctx, jobID, processed)
	return args.Error(0)
}

func (m *mockJobStore) FinishJob(ctx context.Context, jobID int64, status model.JobStatus, processed int, errMsg string) error {
	args := m.Called(ctx, jobID, status, processed, errMsg)
	return args.Error(0)
}

func (m *mockJobStore) GetJob(ctx context.Context, jobID int64) (*model.EnrichmentJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EnrichmentJob), args.Error(1)
}

// --- Runner Mock ---

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req model.EnrichRequest) model.EnrichmentJob {
	args := m.Called(ctx, req)
	return args.Get(0).(model.EnrichmentJob)
}

// --- Task submitters ---

// inlineTasks runs each task synchronously unless err is set.
type inlineTasks struct {
	err error
}

func (s *inlineTasks) Submit(t worker.Task) error {
	if s.err != nil {
		return s.err
	}
	t(context.Background())
	return nil
}

func (s *inlineTasks) Pending() int { return 0 }

// heldTasks keeps submitted tasks until the test runs them.
type heldTasks struct {
	held []worker.Task
}

func (s *heldTasks) Submit(t worker.Task) error {
	s.held = append(s.held, t)
	return nil
}

func (s *heldTasks) Pending() int { return len(s.held) }

func (s *heldTasks) runAll() {
	for _, t := range s.held {
		t(context.Background())
	}
	s.held = nil
}
