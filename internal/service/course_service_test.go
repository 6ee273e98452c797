package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type mockCourseRepo struct {
	courses      map[string]*models.Course
	batchTaken   bool
	archivedRuns int
	created      *models.Course
	updated      *models.Course
	deleted      []string
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	list := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		list = append(list, *c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByNameAndBatchCode(ctx context.Context, name, batchCode, excludeID string) (bool, error) {
	return m.batchTaken, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if m.courses == nil {
		m.courses = make(map[string]*models.Course)
	}
	if course.ID == "" {
		course.ID = "new-course"
	}
	m.courses[course.ID] = course
	m.created = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.courses[course.ID] = course
	m.updated = course
	return nil
}

func (m *mockCourseRepo) DeleteDetaching(ctx context.Context, id string) error {
	if _, ok := m.courses[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.courses, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockCourseRepo) ArchivePastEndDate(ctx context.Context, now time.Time) (int64, error) {
	m.archivedRuns++
	return 0, nil
}

func TestCreateCourse(t *testing.T) {
	repo := &mockCourseRepo{}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Go Basics",
		BatchCode: "2026-A",
		StartDate: "2026-09-01",
		SeatLimit: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, "Go Basics", course.Name)
	assert.Equal(t, 25, course.SeatLimit)
	require.NotNil(t, repo.created)
}

func TestCreateCourseDuplicateBatchCode(t *testing.T) {
	repo := &mockCourseRepo{batchTaken: true}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Go Basics",
		BatchCode: "2026-A",
		StartDate: "2026-09-01",
		SeatLimit: 25,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseEndBeforeStart(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil)

	end := "2026-08-01"
	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:      "Go Basics",
		BatchCode: "2026-A",
		StartDate: "2026-09-01",
		EndDate:   &end,
		SeatLimit: 25,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateCourseMissingPrerequisite(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, nil)

	missing := "course-404"
	_, err := svc.Create(context.Background(), CreateCourseRequest{
		Name:                 "Go Advanced",
		BatchCode:            "2026-B",
		StartDate:            "2026-09-01",
		SeatLimit:            25,
		PrerequisiteCourseID: &missing,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUpdateCourseSeatLimitBelowEnrollment(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Name: "Go Basics", BatchCode: "2026-A", StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), SeatLimit: 20, CurrentEnrolled: 15},
	}}
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "course-1", UpdateCourseRequest{
		Name:      "Go Basics",
		BatchCode: "2026-A",
		StartDate: "2026-09-01",
		SeatLimit: 10,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUpdateCourseSelfPrerequisite(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Name: "Go Basics", BatchCode: "2026-A", StartDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), SeatLimit: 20},
	}}
	svc := NewCourseService(repo, nil, nil)

	self := "course-1"
	_, err := svc.Update(context.Background(), "course-1", UpdateCourseRequest{
		Name:                 "Go Basics",
		BatchCode:            "2026-A",
		StartDate:            "2026-09-01",
		SeatLimit:            20,
		PrerequisiteCourseID: &self,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListArchivesEndedCoursesFirst(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{}}
	svc := NewCourseService(repo, nil, nil)

	_, _, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.archivedRuns)
}

func TestDeleteCourseDetaches(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1"},
	}}
	svc := NewCourseService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "course-1"))
	assert.Equal(t, []string{"course-1"}, repo.deleted)

	err := svc.Delete(context.Background(), "course-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestArchiveCourseIdempotent(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]*models.Course{
		"course-1": {ID: "course-1", Archived: true},
	}}
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Archive(context.Background(), "course-1")
	require.NoError(t, err)
	assert.True(t, course.Archived)
	assert.Nil(t, repo.updated)
}
