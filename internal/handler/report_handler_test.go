package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/internal/service"
)

type fakeReportSrv struct {
	summary    *models.ReportSummary
	lastFilter models.ReportSummaryFilter
	job        *service.ReportJobStatus
	jobErr     error
	lastActor  string
	download   *service.ReportDownload
}

func (f *fakeReportSrv) Summary(_ context.Context, filter models.ReportSummaryFilter) (*models.ReportSummary, error) {
	f.lastFilter = filter
	return f.summary, nil
}

func (f *fakeReportSrv) CreateJob(_ context.Context, _ service.ReportRequest, createdBy string) (*service.ReportJobStatus, error) {
	f.lastActor = createdBy
	return f.job, f.jobErr
}

func (f *fakeReportSrv) GetStatus(context.Context, string) (*service.ReportJobStatus, error) {
	return f.job, f.jobErr
}

func (f *fakeReportSrv) ResolveDownload(context.Context, string) (*service.ReportDownload, error) {
	return f.download, nil
}

func TestReportHandlerSummaryParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReportSrv{summary: &models.ReportSummary{TotalStudents: 42}}
	handler := NewReportHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/summary?course_id=course-1&sbu=IT&year=2026", nil)

	handler.Summary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "course-1", srv.lastFilter.CourseID)
	assert.Equal(t, 2026, srv.lastFilter.Year)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(42), envelope.Data["total_students"])
}

func TestReportHandlerCreateJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeReportSrv{job: &service.ReportJobStatus{ID: "job-1", Status: models.ReportStatusQueued}}
	handler := NewReportHandler(srv)

	payload := bytes.NewBufferString(`{"type":"enrollments","format":"csv"}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/reports/jobs", payload)
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateJob(c)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "system", srv.lastActor)
}

func TestReportHandlerCreateJobInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&fakeReportSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/reports/jobs", bytes.NewBufferString("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreateJob(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHandlerDownloadServesFile(t *testing.T) {
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,Go Basics\n"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	handler := NewReportHandler(&fakeReportSrv{download: &service.ReportDownload{
		File:      file,
		Filename:  "report.csv",
		Format:    models.ReportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/reports/download/token-1", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.csv")
	assert.Contains(t, rec.Body.String(), "Go Basics")
}
