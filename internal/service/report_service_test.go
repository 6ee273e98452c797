package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
	"github.com/noah-isme/course-enroll-api/pkg/jobs"
)

type mockJobStore struct {
	jobs        map[string]*models.ReportJob
	summary     *models.ReportSummary
	summaryHits int
	updates     []repository.UpdateReportJobParams
}

func (m *mockJobStore) Create(ctx context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ReportJob)
	}
	if job.ID == "" {
		job.ID = "job-1"
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if job, ok := m.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockJobStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	m.updates = append(m.updates, params)
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	return nil
}

func (m *mockJobStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var queued []models.ReportJob
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (m *mockJobStore) Summary(ctx context.Context, filter models.ReportSummaryFilter) (*models.ReportSummary, error) {
	m.summaryHits++
	if m.summary != nil {
		return m.summary, nil
	}
	return &models.ReportSummary{}, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockGenerator struct {
	result *ExportResult
	err    error
}

func (m *mockGenerator) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestCreateJobEnqueues(t *testing.T) {
	store := &mockJobStore{}
	dispatcher := &mockDispatcher{}
	svc := NewReportService(store, nil, dispatcher, nil, nil, ReportServiceConfig{})

	status, err := svc.CreateJob(context.Background(), ReportRequest{Type: models.ReportTypeEnrollments, Format: models.ReportFormatCSV}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, status.Status)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, status.ID, dispatcher.enqueued[0].ID)
}

func TestCreateJobUnsupportedType(t *testing.T) {
	svc := NewReportService(&mockJobStore{}, nil, &mockDispatcher{}, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), ReportRequest{Type: "grades", Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := &mockJobStore{}
	dispatcher := &mockDispatcher{err: errors.New("queue stopped")}
	svc := NewReportService(store, nil, dispatcher, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), ReportRequest{Type: models.ReportTypeSummary, Format: models.ReportFormatPDF}, "admin")
	require.Error(t, err)
	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestGetStatusNotFound(t *testing.T) {
	svc := NewReportService(&mockJobStore{}, nil, &mockDispatcher{}, nil, nil, ReportServiceConfig{})

	_, err := svc.GetStatus(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSummaryWithoutCacheHitsRepository(t *testing.T) {
	store := &mockJobStore{summary: &models.ReportSummary{TotalStudents: 7}}
	svc := NewReportService(store, nil, &mockDispatcher{}, nil, nil, ReportServiceConfig{})

	summary, err := svc.Summary(context.Background(), models.ReportSummaryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalStudents)
	assert.Equal(t, 1, store.summaryHits)
}

func TestRecoverPendingJobsRequeues(t *testing.T) {
	store := &mockJobStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusQueued, Type: models.ReportTypeEnrollments},
		"job-2": {ID: "job-2", Status: models.ReportStatusFinished, Type: models.ReportTypeSummary},
	}}
	dispatcher := &mockDispatcher{}
	svc := NewReportService(store, nil, dispatcher, nil, nil, ReportServiceConfig{})

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, "job-1", dispatcher.enqueued[0].ID)
}

func TestWorkerHandleSuccess(t *testing.T) {
	store := &mockJobStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusQueued, Type: models.ReportTypeEnrollments, Params: models.ReportJobParams{Format: models.ReportFormatCSV}},
	}}
	generator := &mockGenerator{result: &ExportResult{URL: "/api/v1/reports/download/token-1"}}
	worker := NewReportWorker(store, generator, 3, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/reports/download/token-1", *job.ResultURL)
}

func TestWorkerHandleRetriesThenFails(t *testing.T) {
	store := &mockJobStore{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusQueued, Type: models.ReportTypeEnrollments},
	}}
	generator := &mockGenerator{err: errors.New("dataset error")}
	worker := NewReportWorker(store, generator, 2, nil)

	// First attempt requeues.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0}))
	assert.Equal(t, models.ReportStatusQueued, store.jobs["job-1"].Status)

	// Final attempt marks the job failed.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "dataset error", *job.ErrorMessage)
}
