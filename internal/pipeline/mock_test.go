package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/enrichment-worker/internal/model"
	"github.com/sells-group/enrichment-worker/internal/notify"
	"github.com/sells-group/enrichment-worker/internal/resilience"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, name, locality string) resilience.Result[model.Resolution] {
	args := m.Called(ctx, name, locality)
	return args.Get(0).(resilience.Result[model.Resolution])
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, url string) resilience.Result[model.Contacts] {
	args := m.Called(ctx, url)
	return args.Get(0).(resilience.Result[model.Contacts])
}

// --- Writer Mock ---

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) InsertLeadSource(ctx context.Context, src model.LeadSource) error {
	args := m.Called(ctx, src)
	return args.Error(0)
}

func (m *mockWriter) UpsertContact(ctx context.Context, c model.NormalizedContact) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

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

// --- Notifier Mock ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// --- Enricher Mock ---

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) EnrichBusiness(ctx context.Context, searchID string, b model.Business) (*BusinessResult, error) {
	args := m.Called(ctx, searchID, b)
	if res, ok := args.Get(0).(*BusinessResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}
