package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type incomingEnrollmentRepository interface {
	ApplyBatch(ctx context.Context, audits []models.IncomingEnrollment, enrollments []models.Enrollment) error
	List(ctx context.Context, page, pageSize int) ([]models.IncomingEnrollment, int, error)
	SyncStatus(ctx context.Context) (*models.ImportSyncStatus, error)
}

type importStudentResolver interface {
	FindByEmployeeID(ctx context.Context, employeeID string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
}

type importCourseResolver interface {
	FindByNameAndBatchCode(ctx context.Context, name, batchCode string) (*models.Course, error)
}

type importEnrollmentChecker interface {
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

// ImportService turns raw enrollment uploads into audit rows and pending
// enrollments. It never creates students or courses; rows that cannot be
// resolved, or that duplicate an existing enrollment, are recorded and
// failed individually.
type ImportService struct {
	incoming    incomingEnrollmentRepository
	students    importStudentResolver
	courses     importCourseResolver
	enrollments importEnrollmentChecker
	eligibility eligibilityEvaluator
	validator   *validator.Validate
	maxRecords  int
	now         func() time.Time
	logger      *zap.Logger
}

// NewImportService constructs ImportService. maxRecords bounds a single
// batch; zero or negative means unlimited.
func NewImportService(incoming incomingEnrollmentRepository, students importStudentResolver, courses importCourseResolver, enrollments importEnrollmentChecker, eligibility eligibilityEvaluator, validate *validator.Validate, maxRecords int, logger *zap.Logger) *ImportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		incoming:    incoming,
		students:    students,
		courses:     courses,
		enrollments: enrollments,
		eligibility: eligibility,
		validator:   validate,
		maxRecords:  maxRecords,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Process evaluates every record and applies the whole batch in a single
// transaction. Every record leaves an audit row regardless of outcome;
// eligible rows additionally produce a pending enrollment and ineligible
// ones a rejected enrollment carrying the reason.
func (s *ImportService) Process(ctx context.Context, records []models.ImportRecord) (*models.ImportBatchResult, error) {
	if len(records) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import payload contains no records")
	}
	if s.maxRecords > 0 && len(records) > s.maxRecords {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import exceeds the limit of %d records", s.maxRecords))
	}

	now := s.now()
	result := &models.ImportBatchResult{TotalRows: len(records), Rows: make([]models.ImportRowResult, 0, len(records))}
	audits := make([]models.IncomingEnrollment, 0, len(records))
	enrollments := make([]models.Enrollment, 0, len(records))

	// Tracks (student, course) pairs that already produced an enrollment
	// earlier in this batch, eligible or not, so in-batch duplicates are
	// caught before anything is written.
	seen := make(map[string]bool)

	for i, record := range records {
		rowNumber := i + 1
		audit := buildAuditRow(record, now)
		audits = append(audits, audit)

		rowResult := models.ImportRowResult{
			Row:        rowNumber,
			EmployeeID: record.EmployeeID,
			CourseName: record.CourseName,
			BatchCode:  record.BatchCode,
		}

		fail := func(msg string) {
			rowResult.Status = models.ImportRowFailed
			rowResult.Error = &msg
			result.Failed++
			result.Rows = append(result.Rows, rowResult)
		}

		if err := s.validator.Struct(record); err != nil {
			fail(fmt.Sprintf("invalid record: %v", err))
			continue
		}

		student, err := s.resolveStudent(ctx, record)
		if err != nil {
			return nil, err
		}
		if student == nil {
			fail("student not found by employee id or email")
			continue
		}

		course, err := s.courses.FindByNameAndBatchCode(ctx, record.CourseName, record.BatchCode)
		if err != nil {
			if err == sql.ErrNoRows {
				fail("course batch not found")
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve course")
		}
		if course.Archived {
			fail("course batch is archived")
			continue
		}

		pairKey := student.ID + "|" + course.ID
		if seen[pairKey] {
			fail("duplicate of an earlier row in this batch")
			continue
		}
		// Any prior enrollment for the pair blocks a re-import, including
		// rejected and withdrawn ones; re-importing must never add rows.
		exists, err := s.enrollments.Exists(ctx, student.ID, course.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing enrollment")
		}
		if exists {
			fail("student already has an enrollment for this course batch")
			continue
		}
		seen[pairKey] = true

		verdict, err := s.eligibility.Evaluate(ctx, student.ID, course, "")
		if err != nil {
			return nil, err
		}

		enrollment := models.Enrollment{
			ID:                   uuid.NewString(),
			StudentID:            student.ID,
			CourseID:             &course.ID,
			CourseName:           &course.Name,
			BatchCode:            &course.BatchCode,
			EligibilityStatus:    verdict.Status,
			EligibilityReason:    verdict.Reason,
			EligibilityCheckedAt: &verdict.CheckedAt,
			CompletionStatus:     models.CompletionNotStarted,
			IncomingEnrollmentID: &audits[len(audits)-1].ID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if verdict.Eligible() {
			enrollment.ApprovalStatus = models.ApprovalPending
			rowResult.Status = models.ImportRowCreated
			result.Created++
		} else {
			enrollment.ApprovalStatus = models.ApprovalRejected
			enrollment.RejectionReason = verdict.Reason
			rowResult.Status = models.ImportRowRejected
			rowResult.Error = verdict.Reason
			result.Rejected++
		}
		// Failed rows keep processed = false so they show up as pending in
		// the sync status; anything that produced an enrollment is done.
		audits[len(audits)-1].Processed = true
		audits[len(audits)-1].ProcessedAt = &now
		enrollments = append(enrollments, enrollment)
		result.Rows = append(result.Rows, rowResult)
	}

	if err := s.incoming.ApplyBatch(ctx, audits, enrollments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply import batch")
	}

	s.logger.Sugar().Infow("processed enrollment import",
		"total", result.TotalRows, "created", result.Created, "rejected", result.Rejected, "failed", result.Failed)
	return result, nil
}

// ListAudit returns the raw audit rows for the imports dashboard.
func (s *ImportService) ListAudit(ctx context.Context, page, pageSize int) ([]models.IncomingEnrollment, *models.Pagination, error) {
	rows, total, err := s.incoming.List(ctx, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list import audit rows")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return rows, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// SyncStatus reports the freshness of the import audit trail.
func (s *ImportService) SyncStatus(ctx context.Context) (*models.ImportSyncStatus, error) {
	status, err := s.incoming.SyncStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import sync status")
	}
	return status, nil
}

// resolveStudent looks up by employee ID first, then by email. Missing
// students are reported as nil, not as an error, so the row can be failed
// individually.
func (s *ImportService) resolveStudent(ctx context.Context, record models.ImportRecord) (*models.Student, error) {
	student, err := s.students.FindByEmployeeID(ctx, strings.TrimSpace(record.EmployeeID))
	if err == nil {
		return student, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}

	student, err = s.students.FindByEmail(ctx, strings.TrimSpace(record.Email))
	if err == nil {
		return student, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	return nil, nil
}

func buildAuditRow(record models.ImportRecord, submittedAt time.Time) models.IncomingEnrollment {
	audit := models.IncomingEnrollment{
		ID:          uuid.NewString(),
		EmployeeID:  record.EmployeeID,
		Name:        record.Name,
		Email:       record.Email,
		CourseName:  record.CourseName,
		BatchCode:   record.BatchCode,
		RawData:     record.Raw,
		SubmittedAt: submittedAt,
	}
	if record.SBU != "" {
		sbu := record.SBU
		audit.SBU = &sbu
	}
	if record.Designation != "" {
		designation := record.Designation
		audit.Designation = &designation
	}
	if audit.RawData == "" {
		audit.RawData = "{}"
	}
	return audit
}
