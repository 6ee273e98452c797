package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "employee_id", "name", "email", "sbu", "designation", "experience_years", "created_at", "updated_at"}).
		AddRow(id, "EMP-001", "Ayesha Rahman", "ayesha@corp.example", models.SBUIT, nil, 4, now, now)
}

func TestStudentRepositoryFindByEmployeeID(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE employee_id = $1")).
		WithArgs("EMP-001").
		WillReturnRows(studentRows("stu-1"))

	student, err := repo.FindByEmployeeID(context.Background(), "EMP-001")
	require.NoError(t, err)
	require.Equal(t, "stu-1", student.ID)
	require.Equal(t, models.SBUIT, student.SBU)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByEmailCaseInsensitive(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE LOWER(email) = LOWER($1)")).
		WithArgs("AYESHA@corp.example").
		WillReturnRows(studentRows("stu-1"))

	student, err := repo.FindByEmail(context.Background(), "AYESHA@corp.example")
	require.NoError(t, err)
	require.Equal(t, "stu-1", student.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByEmployeeIDNotFound(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE employee_id = $1")).
		WithArgs("EMP-404").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByEmployeeID(context.Background(), "EMP-404", "")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListBySBU(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("s.sbu = $1")).
		WithArgs(models.SBUIT).
		WillReturnRows(studentRows("stu-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(models.SBUIT).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{SBU: models.SBUIT})
	require.NoError(t, err)
	require.Len(t, students, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
