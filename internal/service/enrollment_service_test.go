package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments     map[string]models.Enrollment
	created         *models.Enrollment
	createdApproved *models.Enrollment
	approveErr      error
	bulkFailures    map[string]error
	withdrawErr     error
	rejectErr       error
	eligibility     map[string]models.EligibilityStatus
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) CreateApproved(ctx context.Context, enrollment *models.Enrollment, approvedBy string) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	enrollment.ApprovalStatus = models.ApprovalApproved
	enrollment.ApprovedBy = &approvedBy
	m.enrollments[enrollment.ID] = *enrollment
	m.createdApproved = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateEligibility(ctx context.Context, id string, status models.EligibilityStatus, reason *string, checkedAt time.Time) error {
	if m.eligibility == nil {
		m.eligibility = make(map[string]models.EligibilityStatus)
	}
	m.eligibility[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.EligibilityStatus = status
		e.EligibilityReason = reason
		m.enrollments[id] = e
	}
	return nil
}

func (m *mockEnrollmentRepo) Approve(ctx context.Context, id string, from models.ApprovalStatus, approvedBy string) error {
	if m.approveErr != nil {
		return m.approveErr
	}
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if e.ApprovalStatus != from {
		return repository.ErrWrongStatus
	}
	e.ApprovalStatus = models.ApprovalApproved
	e.ApprovedBy = &approvedBy
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) ApproveMany(ctx context.Context, ids []string, from models.ApprovalStatus, approvedBy string) (map[string]error, error) {
	failures := make(map[string]error)
	for _, id := range ids {
		if err, ok := m.bulkFailures[id]; ok {
			failures[id] = err
			continue
		}
		if e, ok := m.enrollments[id]; ok {
			e.ApprovalStatus = models.ApprovalApproved
			m.enrollments[id] = e
		}
	}
	return failures, nil
}

func (m *mockEnrollmentRepo) Reject(ctx context.Context, id, reason, rejectedBy string) error {
	if m.rejectErr != nil {
		return m.rejectErr
	}
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.ApprovalStatus = models.ApprovalRejected
	e.RejectionReason = &reason
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) RejectMany(ctx context.Context, ids []string, reason, rejectedBy string) (map[string]error, error) {
	failures := make(map[string]error)
	for _, id := range ids {
		if err, ok := m.bulkFailures[id]; ok {
			failures[id] = err
			continue
		}
		if e, ok := m.enrollments[id]; ok {
			e.ApprovalStatus = models.ApprovalRejected
			m.enrollments[id] = e
		}
	}
	return failures, nil
}

func (m *mockEnrollmentRepo) Withdraw(ctx context.Context, id, reason, withdrawnBy string) error {
	if m.withdrawErr != nil {
		return m.withdrawErr
	}
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	if e.ApprovalStatus != models.ApprovalApproved {
		return repository.ErrWrongStatus
	}
	e.ApprovalStatus = models.ApprovalWithdrawn
	e.WithdrawalReason = &reason
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) UpdateCompletion(ctx context.Context, id string, status models.CompletionStatus, score, attendance *float64, totalClasses, classesAttended *int, completionDate *time.Time) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.CompletionStatus = status
	e.Score = score
	if e.CompletionDate == nil {
		e.CompletionDate = completionDate
	}
	m.enrollments[id] = e
	return nil
}

func (m *mockEnrollmentRepo) ValidateBulkIDs(ctx context.Context, enrollmentIDs []string) (map[string]bool, error) {
	found := make(map[string]bool, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		if _, ok := m.enrollments[id]; ok {
			found[id] = true
		}
	}
	return found, nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses map[string]*models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type stubEvaluator struct {
	verdict Verdict
}

func (s *stubEvaluator) Evaluate(ctx context.Context, studentID string, course *models.Course, excludeEnrollmentID string) (Verdict, error) {
	return s.verdict, nil
}

func eligibleVerdict() Verdict {
	return Verdict{Status: models.EligibilityEligible, CheckedAt: fixedClock()}
}

func ineligibleVerdict(status models.EligibilityStatus, reason string) Verdict {
	return Verdict{Status: status, Reason: &reason, CheckedAt: fixedClock()}
}

func newEnrollmentService(repo *mockEnrollmentRepo, students *mockStudentReader, courses *mockCourseReader, verdict Verdict) *EnrollmentService {
	return NewEnrollmentService(repo, students, courses, &stubEvaluator{verdict: verdict}, nil, nil)
}

func TestCreateEligibleAutoApproves(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"student-1": {ID: "student-1"}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", SeatLimit: 10}}}
	svc := newEnrollmentService(repo, students, courses, eligibleVerdict())

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "student-1", CourseID: "course-1"}, "admin")
	require.NoError(t, err)
	require.NotNil(t, repo.createdApproved)
	assert.Equal(t, models.ApprovalApproved, detail.ApprovalStatus)
	assert.Equal(t, models.EligibilityEligible, detail.EligibilityStatus)
}

func TestCreateStampsCourseSnapshot(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"student-1": {ID: "student-1"}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", Name: "Go Basics", BatchCode: "2026-A", SeatLimit: 10}}}
	svc := newEnrollmentService(repo, students, courses, eligibleVerdict())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "student-1", CourseID: "course-1"}, "admin")
	require.NoError(t, err)
	require.NotNil(t, repo.createdApproved)
	require.NotNil(t, repo.createdApproved.CourseName)
	assert.Equal(t, "Go Basics", *repo.createdApproved.CourseName)
	require.NotNil(t, repo.createdApproved.BatchCode)
	assert.Equal(t, "2026-A", *repo.createdApproved.BatchCode)
}

func TestCreateIneligibleStoresRejected(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"student-1": {ID: "student-1"}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", SeatLimit: 10}}}
	svc := newEnrollmentService(repo, students, courses, ineligibleVerdict(models.EligibilityIneligibleDuplicate, "duplicate enrollment"))

	detail, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "student-1", CourseID: "course-1"}, "admin")
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Nil(t, repo.createdApproved)
	assert.Equal(t, models.ApprovalRejected, detail.ApprovalStatus)
	require.NotNil(t, detail.RejectionReason)
	assert.Equal(t, "duplicate enrollment", *detail.RejectionReason)
}

func TestCreateFullCourseReturnsCapacityExceeded(t *testing.T) {
	repo := &mockEnrollmentRepo{approveErr: repository.ErrNoSeats}
	students := &mockStudentReader{students: map[string]*models.Student{"student-1": {ID: "student-1"}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", SeatLimit: 1, CurrentEnrolled: 1}}}
	svc := newEnrollmentService(repo, students, courses, eligibleVerdict())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "student-1", CourseID: "course-1"}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
}

func TestCreateArchivedCourseRejected(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"student-1": {ID: "student-1"}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", Archived: true}}}
	svc := newEnrollmentService(repo, students, courses, eligibleVerdict())

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{StudentID: "student-1", CourseID: "course-1"}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApprovePendingEligible(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalPending, EligibilityStatus: models.EligibilityEligible},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	detail, err := svc.Approve(context.Background(), "enroll-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, detail.ApprovalStatus)
	require.NotNil(t, detail.ApprovedBy)
	assert.Equal(t, "admin", *detail.ApprovedBy)
}

func TestApproveIneligibleFailsRegardlessOfSeats(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalPending, EligibilityStatus: models.EligibilityIneligiblePrerequisite},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	_, err := svc.Approve(context.Background(), "enroll-1", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIneligible.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.ApprovalPending, repo.enrollments["enroll-1"].ApprovalStatus)
}

func TestApproveNonPendingRejectsTransition(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalApproved, EligibilityStatus: models.EligibilityEligible},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	_, err := svc.Approve(context.Background(), "enroll-1", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestApproveManyPartialSuccess(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalPending, EligibilityStatus: models.EligibilityEligible},
			"enroll-2": {ID: "enroll-2", ApprovalStatus: models.ApprovalPending, EligibilityStatus: models.EligibilityEligible},
			"enroll-3": {ID: "enroll-3", ApprovalStatus: models.ApprovalRejected, EligibilityStatus: models.EligibilityEligible},
		},
		bulkFailures: map[string]error{"enroll-2": repository.ErrNoSeats},
	}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	result, err := svc.ApproveMany(context.Background(), BulkApproveRequest{EnrollmentIDs: []string{"enroll-1", "enroll-2", "enroll-3", "missing"}}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 4, result.Requested)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, models.ApprovalApproved, repo.enrollments["enroll-1"].ApprovalStatus)

	codes := make(map[string]string)
	for _, item := range result.Errors {
		codes[item.EnrollmentID] = item.Code
	}
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, codes["enroll-2"])
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, codes["enroll-3"])
	assert.Equal(t, appErrors.ErrNotFound.Code, codes["missing"])
}

func TestRejectManyFlagsMissingEnrollments(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalPending},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	result, err := svc.RejectMany(context.Background(), BulkRejectRequest{EnrollmentIDs: []string{"enroll-1", "missing"}, Reason: "budget cut"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing", result.Errors[0].EnrollmentID)
	assert.Equal(t, appErrors.ErrNotFound.Code, result.Errors[0].Code)
	assert.Equal(t, models.ApprovalRejected, repo.enrollments["enroll-1"].ApprovalStatus)
}

func TestWithdrawApprovedEnrollment(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalApproved},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	detail, err := svc.Withdraw(context.Background(), "enroll-1", WithdrawEnrollmentRequest{Reason: "schedule conflict"}, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalWithdrawn, detail.ApprovalStatus)
	require.NotNil(t, detail.WithdrawalReason)
	assert.Equal(t, "schedule conflict", *detail.WithdrawalReason)
}

func TestWithdrawPendingRejectsTransition(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalPending},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	_, err := svc.Withdraw(context.Background(), "enroll-1", WithdrawEnrollmentRequest{Reason: "changed mind"}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestReapproveWithdrawnEnrollment(t *testing.T) {
	courseID := "course-1"
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", StudentID: "student-1", CourseID: &courseID, ApprovalStatus: models.ApprovalWithdrawn, EligibilityStatus: models.EligibilityEligible},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID, SeatLimit: 5}}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, courses, eligibleVerdict())

	detail, err := svc.Reapprove(context.Background(), "enroll-1", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, detail.ApprovalStatus)
	assert.Equal(t, models.EligibilityEligible, repo.eligibility["enroll-1"])
}

func TestReapproveIneligibleStoresVerdictAndFails(t *testing.T) {
	courseID := "course-1"
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", StudentID: "student-1", CourseID: &courseID, ApprovalStatus: models.ApprovalWithdrawn, EligibilityStatus: models.EligibilityEligible},
	}}
	courses := &mockCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID, SeatLimit: 5}}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, courses, ineligibleVerdict(models.EligibilityIneligibleAnnualLimit, "already completed a course this year: Advanced SQL"))

	_, err := svc.Reapprove(context.Background(), "enroll-1", "admin")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIneligible.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "Advanced SQL")
	assert.Equal(t, models.EligibilityIneligibleAnnualLimit, repo.eligibility["enroll-1"])
	assert.Equal(t, models.ApprovalWithdrawn, repo.enrollments["enroll-1"].ApprovalStatus)
}

func TestReapproveAtCapacityLeavesWithdrawn(t *testing.T) {
	courseID := "course-1"
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"enroll-1": {ID: "enroll-1", StudentID: "student-1", CourseID: &courseID, ApprovalStatus: models.ApprovalWithdrawn, EligibilityStatus: models.EligibilityEligible},
		},
		approveErr: repository.ErrNoSeats,
	}
	courses := &mockCourseReader{courses: map[string]*models.Course{courseID: {ID: courseID, SeatLimit: 1, CurrentEnrolled: 1}}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, courses, eligibleVerdict())

	_, err := svc.Reapprove(context.Background(), "enroll-1", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.ApprovalWithdrawn, repo.enrollments["enroll-1"].ApprovalStatus)
}

func TestReapproveDetachedCourseConflicts(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", StudentID: "student-1", ApprovalStatus: models.ApprovalWithdrawn},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	_, err := svc.Reapprove(context.Background(), "enroll-1", "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRecordCompletionStampsDateOnce(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalApproved, CompletionStatus: models.CompletionInProgress},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	score := 88.5
	detail, err := svc.RecordCompletion(context.Background(), CompletionUpdateRequest{
		EnrollmentID:     "enroll-1",
		CompletionStatus: "completed",
		Score:            &score,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CompletionCompleted, detail.CompletionStatus)
	require.NotNil(t, detail.CompletionDate)
	firstDate := *detail.CompletionDate

	detail, err = svc.RecordCompletion(context.Background(), CompletionUpdateRequest{
		EnrollmentID:     "enroll-1",
		CompletionStatus: "COMPLETED",
	})
	require.NoError(t, err)
	require.NotNil(t, detail.CompletionDate)
	assert.Equal(t, firstDate, *detail.CompletionDate)
}

func TestRecordCompletionUnknownStatus(t *testing.T) {
	svc := newEnrollmentService(&mockEnrollmentRepo{}, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	_, err := svc.RecordCompletion(context.Background(), CompletionUpdateRequest{EnrollmentID: "enroll-1", CompletionStatus: "graduated"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordCompletionsReportsPerItemFailures(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"enroll-1": {ID: "enroll-1", ApprovalStatus: models.ApprovalApproved},
	}}
	svc := newEnrollmentService(repo, &mockStudentReader{}, &mockCourseReader{}, eligibleVerdict())

	result, err := svc.RecordCompletions(context.Background(), BulkCompletionRequest{Completions: []CompletionUpdateRequest{
		{EnrollmentID: "enroll-1", CompletionStatus: "in progress"},
		{EnrollmentID: "missing", CompletionStatus: "completed"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "missing", result.Errors[0].EnrollmentID)
}
