package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

func newIncomingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestIncomingEnrollmentRepositoryApplyBatch(t *testing.T) {
	db, mock, cleanup := newIncomingRepoMock(t)
	defer cleanup()
	repo := NewIncomingEnrollmentRepository(db)

	audits := []models.IncomingEnrollment{
		{EmployeeID: "EMP-001", Name: "Ayesha Rahman", Email: "ayesha@corp.example", CourseName: "Go Fundamentals", BatchCode: "GF-2026-01", RawData: "{}", Processed: true},
		{EmployeeID: "EMP-404", Name: "Unknown", Email: "unknown@corp.example", CourseName: "Go Fundamentals", BatchCode: "GF-2026-01", RawData: "{}"},
	}
	courseID := "course-1"
	enrollments := []models.Enrollment{
		{StudentID: "stu-1", CourseID: &courseID, EligibilityStatus: models.EligibilityEligible, ApprovalStatus: models.ApprovalPending, CompletionStatus: models.CompletionNotStarted},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO incoming_enrollments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO incoming_enrollments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyBatch(context.Background(), audits, enrollments)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncomingEnrollmentRepositoryApplyBatchRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newIncomingRepoMock(t)
	defer cleanup()
	repo := NewIncomingEnrollmentRepository(db)

	audits := []models.IncomingEnrollment{
		{EmployeeID: "EMP-001", Name: "Ayesha Rahman", Email: "ayesha@corp.example", CourseName: "Go Fundamentals", BatchCode: "GF-2026-01", RawData: "{}"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO incoming_enrollments")).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.ApplyBatch(context.Background(), audits, nil)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncomingEnrollmentRepositorySyncStatus(t *testing.T) {
	db, mock, cleanup := newIncomingRepoMock(t)
	defer cleanup()
	repo := NewIncomingEnrollmentRepository(db)

	last := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(submitted_at) AS last_submitted_at")).
		WillReturnRows(sqlmock.NewRows([]string{"last_submitted_at", "pending_processing"}).AddRow(last, 5))

	status, err := repo.SyncStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.LastSubmittedAt)
	require.Equal(t, 5, status.PendingProcessing)
	require.NoError(t, mock.ExpectationsWereMet())
}
