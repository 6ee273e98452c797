package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
)

type mockEligibilityEnrollments struct {
	active          map[string]bool
	completed       map[string]bool
	yearlyCompleted string
}

func (m *mockEligibilityEnrollments) ExistsActive(ctx context.Context, studentID, courseID, excludeID string) (bool, error) {
	return m.active[studentID+courseID+excludeID], nil
}

func (m *mockEligibilityEnrollments) HasCompleted(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.completed[studentID+courseID], nil
}

func (m *mockEligibilityEnrollments) CompletedCourseInYear(ctx context.Context, studentID string, year int, excludeCourseID string) (string, bool, error) {
	if m.yearlyCompleted != "" {
		return m.yearlyCompleted, true, nil
	}
	return "", false, nil
}

type mockEligibilityCourses struct {
	courses map[string]*models.Course
}

func (m *mockEligibilityCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func fixedClock() time.Time {
	return time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
}

func TestEvaluateEligible(t *testing.T) {
	svc := NewEligibilityService(&mockEligibilityEnrollments{}, &mockEligibilityCourses{}, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityEligible, verdict.Status)
	assert.True(t, verdict.Eligible())
	assert.Nil(t, verdict.Reason)
	assert.Equal(t, fixedClock(), verdict.CheckedAt)
}

func TestEvaluatePrerequisiteNotCompleted(t *testing.T) {
	prereqID := "course-basics"
	courses := &mockEligibilityCourses{courses: map[string]*models.Course{
		prereqID: {ID: prereqID, Name: "Go Basics"},
	}}
	svc := NewEligibilityService(&mockEligibilityEnrollments{}, courses, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-2", PrerequisiteCourseID: &prereqID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligiblePrerequisite, verdict.Status)
	require.NotNil(t, verdict.Reason)
	assert.Contains(t, *verdict.Reason, "Go Basics")
}

func TestEvaluatePrerequisiteCompleted(t *testing.T) {
	prereqID := "course-basics"
	enrollments := &mockEligibilityEnrollments{completed: map[string]bool{"student-1" + prereqID: true}}
	svc := NewEligibilityService(enrollments, &mockEligibilityCourses{}, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-2", PrerequisiteCourseID: &prereqID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityEligible, verdict.Status)
}

func TestEvaluateDuplicateEnrollment(t *testing.T) {
	enrollments := &mockEligibilityEnrollments{active: map[string]bool{"student-1course-1": true}}
	svc := NewEligibilityService(enrollments, &mockEligibilityCourses{}, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligibleDuplicate, verdict.Status)
	require.NotNil(t, verdict.Reason)
}

func TestEvaluateAnnualLimitNamesConflictingCourse(t *testing.T) {
	enrollments := &mockEligibilityEnrollments{yearlyCompleted: "Advanced SQL"}
	svc := NewEligibilityService(enrollments, &mockEligibilityCourses{}, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligibleAnnualLimit, verdict.Status)
	require.NotNil(t, verdict.Reason)
	assert.Contains(t, *verdict.Reason, "Advanced SQL")
}

func TestEvaluateChecksRunInOrder(t *testing.T) {
	// Prerequisite and duplicate both fail; the prerequisite verdict wins
	// because checks short-circuit in order.
	prereqID := "course-basics"
	enrollments := &mockEligibilityEnrollments{
		active:          map[string]bool{"student-1course-2": true},
		yearlyCompleted: "Something Else",
	}
	courses := &mockEligibilityCourses{courses: map[string]*models.Course{
		prereqID: {ID: prereqID, Name: "Go Basics"},
	}}
	svc := NewEligibilityService(enrollments, courses, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-2", PrerequisiteCourseID: &prereqID}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityIneligiblePrerequisite, verdict.Status)
}

func TestEvaluateExcludesEnrollmentFromDuplicateCheck(t *testing.T) {
	// The duplicate lookup keyed with the exclude ID misses, modelling the
	// reapproval path where the enrollment itself must not count.
	enrollments := &mockEligibilityEnrollments{active: map[string]bool{"student-1course-1": true}}
	svc := NewEligibilityService(enrollments, &mockEligibilityCourses{}, nil)
	svc.now = fixedClock

	verdict, err := svc.Evaluate(context.Background(), "student-1", &models.Course{ID: "course-1"}, "enroll-1")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityEligible, verdict.Status)
}
