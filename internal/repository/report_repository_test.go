package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

func newReportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestReportRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs")).WillReturnResult(sqlmock.NewResult(0, 1))

	job := &models.ReportJob{
		Type:      models.ReportTypeEnrollments,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		CreatedBy: "admin",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.ReportStatusQueued, job.Status)
	require.False(t, job.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdatePartial(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	status := models.ReportStatusProcessing
	progress := 10
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $1, progress = $2 WHERE id = $3")).
		WithArgs(status, progress, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{Status: &status, Progress: &progress})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateNoFields(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListQueued(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "type", "status", "progress", "created_by"}).
		AddRow("job-1", "enrollments", "QUEUED", 0, "admin").
		AddRow("job-2", "summary", "QUEUED", 0, "admin")
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(rows)

	jobs, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, "job-1", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositorySummaryAppliesFilters(t *testing.T) {
	db, mock, cleanup := newReportRepoMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(120))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE archived = false")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(6))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FILTER (WHERE e.approval_status = 'PENDING')")).
		WithArgs(models.SBUIT).
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "approved", "completed"}).AddRow(40, 10, 20, 15))
	mock.ExpectQuery(regexp.QuoteMeta("AVG(EXTRACT(EPOCH FROM (e.approved_at - e.created_at)) / 3600)")).
		WithArgs(models.SBUIT).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(36.5))
	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY s.sbu")).
		WithArgs(models.SBUIT).
		WillReturnRows(sqlmock.NewRows([]string{"sbu", "total", "approved", "completed"}).AddRow("IT", 40, 20, 15))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c WHERE c.archived = false")).
		WillReturnRows(sqlmock.NewRows([]string{"course_id", "course_name", "batch_code", "seat_limit", "current_enrolled", "utilization"}).
			AddRow("course-1", "Go Basics", "GO-2026-01", 30, 27, 90.0))

	summary, err := repo.Summary(context.Background(), models.ReportSummaryFilter{SBU: models.SBUIT})
	require.NoError(t, err)
	require.Equal(t, 120, summary.TotalStudents)
	require.Equal(t, 40, summary.TotalEnrollments)
	require.InDelta(t, 75.0, summary.CompletionRate, 0.01)
	require.InDelta(t, 36.5, summary.AvgApprovalHours, 0.01)
	require.Len(t, summary.EnrollmentsBySBU, 1)
	require.Len(t, summary.SeatUtilization, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
