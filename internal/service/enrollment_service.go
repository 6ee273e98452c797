package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	"github.com/noah-isme/course-enroll-api/internal/repository"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	CreateApproved(ctx context.Context, enrollment *models.Enrollment, approvedBy string) error
	UpdateEligibility(ctx context.Context, id string, status models.EligibilityStatus, reason *string, checkedAt time.Time) error
	Approve(ctx context.Context, id string, from models.ApprovalStatus, approvedBy string) error
	ApproveMany(ctx context.Context, ids []string, from models.ApprovalStatus, approvedBy string) (map[string]error, error)
	Reject(ctx context.Context, id, reason, rejectedBy string) error
	RejectMany(ctx context.Context, ids []string, reason, rejectedBy string) (map[string]error, error)
	Withdraw(ctx context.Context, id, reason, withdrawnBy string) error
	UpdateCompletion(ctx context.Context, id string, status models.CompletionStatus, score, attendance *float64, totalClasses, classesAttended *int, completionDate *time.Time) error
	ValidateBulkIDs(ctx context.Context, enrollmentIDs []string) (map[string]bool, error)
}

type enrollmentStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type eligibilityEvaluator interface {
	Evaluate(ctx context.Context, studentID string, course *models.Course, excludeEnrollmentID string) (Verdict, error)
}

type transitionRecorder interface {
	RecordEnrollmentTransition(action string, success bool)
}

// CreateEnrollmentRequest describes the manual enrollment creation payload.
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
}

// WithdrawEnrollmentRequest carries the withdrawal reason.
type WithdrawEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RejectEnrollmentRequest carries the rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// BulkApproveRequest lists enrollments to approve.
type BulkApproveRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
}

// BulkRejectRequest lists enrollments to reject with a shared reason.
type BulkRejectRequest struct {
	EnrollmentIDs []string `json:"enrollment_ids" validate:"required,min=1,dive,required"`
	Reason        string   `json:"reason" validate:"required"`
}

// CompletionUpdateRequest records a completion outcome for one enrollment.
type CompletionUpdateRequest struct {
	EnrollmentID         string   `json:"enrollment_id" validate:"required"`
	CompletionStatus     string   `json:"completion_status" validate:"required"`
	Score                *float64 `json:"score" validate:"omitempty,gte=0,lte=100"`
	AttendancePercentage *float64 `json:"attendance_percentage" validate:"omitempty,gte=0,lte=100"`
	TotalClasses         *int     `json:"total_classes" validate:"omitempty,gte=0"`
	ClassesAttended      *int     `json:"classes_attended" validate:"omitempty,gte=0"`
	CompletionDate       *string  `json:"completion_date"`
}

// BulkCompletionRequest records completion outcomes for many enrollments.
type BulkCompletionRequest struct {
	Completions []CompletionUpdateRequest `json:"completions" validate:"required,min=1,dive"`
}

// EnrollmentService orchestrates the enrollment approval workflow.
type EnrollmentService struct {
	repo        enrollmentRepository
	students    enrollmentStudentReader
	courses     enrollmentCourseReader
	eligibility eligibilityEvaluator
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     transitionRecorder
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students enrollmentStudentReader, courses enrollmentCourseReader, eligibility eligibilityEvaluator, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, students: students, courses: courses, eligibility: eligibility, validator: validate, logger: logger}
}

// WithMetrics attaches the workflow transition counter.
func (s *EnrollmentService) WithMetrics(metrics transitionRecorder) *EnrollmentService {
	s.metrics = metrics
	return s
}

func (s *EnrollmentService) recordTransition(action string, err error) {
	if s.metrics != nil {
		s.metrics.RecordEnrollmentTransition(action, err == nil)
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns one enrollment with student and course context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Create registers an enrollment through the administrative path. The
// eligibility verdict is evaluated fresh; ineligible requests are stored as
// rejected, eligible ones go straight to approved when a seat is free.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest, actor string) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.Archived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is archived")
	}

	verdict, err := s.eligibility.Evaluate(ctx, req.StudentID, course, "")
	if err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		StudentID:            req.StudentID,
		CourseID:             &course.ID,
		CourseName:           &course.Name,
		BatchCode:            &course.BatchCode,
		EligibilityStatus:    verdict.Status,
		EligibilityReason:    verdict.Reason,
		EligibilityCheckedAt: &verdict.CheckedAt,
		CompletionStatus:     models.CompletionNotStarted,
	}

	if !verdict.Eligible() {
		enrollment.ApprovalStatus = models.ApprovalRejected
		enrollment.RejectionReason = verdict.Reason
		if err := s.repo.Create(ctx, enrollment); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
		return s.Get(ctx, enrollment.ID)
	}

	if err := s.repo.CreateApproved(ctx, enrollment, actor); err != nil {
		if errors.Is(err, repository.ErrNoSeats) {
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	return s.Get(ctx, enrollment.ID)
}

// Approve moves a pending enrollment to approved, claiming a seat. The
// stored eligibility verdict must be eligible; seat availability is checked
// inside the repository transaction.
func (s *EnrollmentService) Approve(ctx context.Context, id, actor string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.ApprovalStatus != models.ApprovalPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending enrollments can be approved")
	}
	if enrollment.EligibilityStatus != models.EligibilityEligible {
		return nil, appErrors.Clone(appErrors.ErrIneligible, "")
	}
	if err := s.repo.Approve(ctx, id, models.ApprovalPending, actor); err != nil {
		s.recordTransition("approve", err)
		return nil, s.mapApprovalError(err)
	}
	s.recordTransition("approve", nil)
	return s.Get(ctx, id)
}

// ApproveMany approves every listed enrollment inside one transaction,
// collecting per-item failures without aborting the batch.
func (s *EnrollmentService) ApproveMany(ctx context.Context, req BulkApproveRequest, actor string) (*models.BulkActionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk approve payload")
	}

	result := &models.BulkActionResult{Requested: len(req.EnrollmentIDs)}
	eligible := make([]string, 0, len(req.EnrollmentIDs))
	for _, id := range req.EnrollmentIDs {
		enrollment, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if err == sql.ErrNoRows {
				result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrNotFound.Code, Message: "enrollment not found"})
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if enrollment.ApprovalStatus != models.ApprovalPending {
			result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrInvalidTransition.Code, Message: "only pending enrollments can be approved"})
			continue
		}
		if enrollment.EligibilityStatus != models.EligibilityEligible {
			result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrIneligible.Code, Message: appErrors.ErrIneligible.Message})
			continue
		}
		eligible = append(eligible, id)
	}

	if len(eligible) > 0 {
		failures, err := s.repo.ApproveMany(ctx, eligible, models.ApprovalPending, actor)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve enrollments")
		}
		for _, id := range eligible {
			if itemErr, failed := failures[id]; failed {
				appErr := appErrors.FromError(s.mapApprovalError(itemErr))
				result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErr.Code, Message: appErr.Message})
			}
		}
	}

	result.Failed = len(result.Errors)
	result.Succeeded = result.Requested - result.Failed
	return result, nil
}

// Reject marks a pending enrollment as rejected; eligibility is not
// consulted and the seat counter is untouched.
func (s *EnrollmentService) Reject(ctx context.Context, id string, req RejectEnrollmentRequest, actor string) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	if err := s.repo.Reject(ctx, id, req.Reason, actor); err != nil {
		s.recordTransition("reject", err)
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrWrongStatus):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only pending enrollments can be rejected")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollment")
		}
	}
	s.recordTransition("reject", nil)
	return s.Get(ctx, id)
}

// RejectMany rejects every listed pending enrollment in one transaction.
// Unknown IDs are reported up front so the transaction only touches rows
// that exist.
func (s *EnrollmentService) RejectMany(ctx context.Context, req BulkRejectRequest, actor string) (*models.BulkActionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk reject payload")
	}

	found, err := s.repo.ValidateBulkIDs(ctx, req.EnrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollments")
	}

	result := &models.BulkActionResult{Requested: len(req.EnrollmentIDs)}
	ids := make([]string, 0, len(req.EnrollmentIDs))
	for _, id := range req.EnrollmentIDs {
		if !found[id] {
			result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrNotFound.Code, Message: "enrollment not found"})
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) > 0 {
		failures, err := s.repo.RejectMany(ctx, ids, req.Reason, actor)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject enrollments")
		}
		for _, id := range ids {
			itemErr, failed := failures[id]
			if !failed {
				continue
			}
			if itemErr == sql.ErrNoRows {
				result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrNotFound.Code, Message: "enrollment not found"})
			} else {
				result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: id, Code: appErrors.ErrInvalidTransition.Code, Message: "only pending enrollments can be rejected"})
			}
		}
	}
	result.Failed = len(result.Errors)
	result.Succeeded = result.Requested - result.Failed
	return result, nil
}

// Withdraw releases an approved enrollment's seat and records the reason.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string, req WithdrawEnrollmentRequest, actor string) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid withdraw payload")
	}
	if err := s.repo.Withdraw(ctx, id, req.Reason, actor); err != nil {
		s.recordTransition("withdraw", err)
		switch {
		case err == sql.ErrNoRows:
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		case errors.Is(err, repository.ErrWrongStatus):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only approved enrollments can be withdrawn")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
		}
	}
	s.recordTransition("withdraw", nil)
	return s.Get(ctx, id)
}

// Reapprove returns a withdrawn enrollment to approved. Eligibility is
// re-evaluated and the fresh verdict is stored; the seat is claimed inside
// the repository transaction.
func (s *EnrollmentService) Reapprove(ctx context.Context, id, actor string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.loadEnrollment(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment.ApprovalStatus != models.ApprovalWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only withdrawn enrollments can be reapproved")
	}
	if enrollment.CourseID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer attached to a course")
	}
	course, err := s.courses.FindByID(ctx, *enrollment.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	verdict, err := s.eligibility.Evaluate(ctx, enrollment.StudentID, course, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateEligibility(ctx, id, verdict.Status, verdict.Reason, verdict.CheckedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store eligibility verdict")
	}
	if !verdict.Eligible() {
		message := appErrors.ErrIneligible.Message
		if verdict.Reason != nil {
			message = *verdict.Reason
		}
		return nil, appErrors.Clone(appErrors.ErrIneligible, message)
	}

	if err := s.repo.Approve(ctx, id, models.ApprovalWithdrawn, actor); err != nil {
		s.recordTransition("reapprove", err)
		return nil, s.mapApprovalError(err)
	}
	s.recordTransition("reapprove", nil)
	return s.Get(ctx, id)
}

// RecordCompletion stores the completion outcome for one enrollment.
func (s *EnrollmentService) RecordCompletion(ctx context.Context, req CompletionUpdateRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}
	status, ok := models.ParseCompletionStatus(req.CompletionStatus)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown completion status")
	}

	var completionDate *time.Time
	if status == models.CompletionCompleted {
		now := time.Now().UTC()
		completionDate = &now
	}
	if req.CompletionDate != nil && *req.CompletionDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.CompletionDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "completion_date must be YYYY-MM-DD")
		}
		completionDate = &parsed
	}

	err := s.repo.UpdateCompletion(ctx, req.EnrollmentID, status, req.Score, req.AttendancePercentage, req.TotalClasses, req.ClassesAttended, completionDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record completion")
	}
	return s.Get(ctx, req.EnrollmentID)
}

// RecordCompletions applies a batch of completion updates, reporting
// per-item failures.
func (s *EnrollmentService) RecordCompletions(ctx context.Context, req BulkCompletionRequest) (*models.BulkActionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk completion payload")
	}
	result := &models.BulkActionResult{Requested: len(req.Completions)}
	for _, item := range req.Completions {
		if _, err := s.RecordCompletion(ctx, item); err != nil {
			appErr := appErrors.FromError(err)
			result.Errors = append(result.Errors, models.BulkItemError{EnrollmentID: item.EnrollmentID, Code: appErr.Code, Message: appErr.Message})
		}
	}
	result.Failed = len(result.Errors)
	result.Succeeded = result.Requested - result.Failed
	return result, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) mapApprovalError(err error) error {
	switch {
	case err == sql.ErrNoRows:
		return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	case errors.Is(err, repository.ErrNoSeats):
		return appErrors.Clone(appErrors.ErrCapacityExceeded, "")
	case errors.Is(err, repository.ErrWrongStatus):
		return appErrors.Clone(appErrors.ErrInvalidTransition, "")
	case errors.Is(err, repository.ErrCourseDetached):
		return appErrors.Clone(appErrors.ErrConflict, "enrollment is no longer attached to a course")
	case errors.Is(err, repository.ErrCourseNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "course not found")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment")
	}
}
