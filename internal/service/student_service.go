package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmployeeID(ctx context.Context, employeeID string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type studentEnrollmentReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

// CreateStudentRequest describes student creation payload.
type CreateStudentRequest struct {
	EmployeeID      string  `json:"employee_id" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	SBU             string  `json:"sbu"`
	Designation     *string `json:"designation"`
	ExperienceYears int     `json:"experience_years" validate:"gte=0"`
}

// UpdateStudentRequest describes student update payload.
type UpdateStudentRequest struct {
	EmployeeID      string  `json:"employee_id" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Email           string  `json:"email" validate:"required,email"`
	SBU             string  `json:"sbu"`
	Designation     *string `json:"designation"`
	ExperienceYears int     `json:"experience_years" validate:"gte=0"`
}

// StudentService manages the employee roster.
type StudentService struct {
	repo        studentRepository
	enrollments studentEnrollmentReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, enrollments studentEnrollmentReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, enrollments: enrollments, validator: validate, logger: logger}
}

// List returns students matching the filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student by ID.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new employee. Employee IDs are unique.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByEmployeeID(ctx, req.EmployeeID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate employee id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "employee id already registered")
	}

	student := &models.Student{
		EmployeeID:      req.EmployeeID,
		Name:            req.Name,
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		SBU:             models.ParseSBU(req.SBU),
		Designation:     req.Designation,
		ExperienceYears: req.ExperienceYears,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Update modifies an existing student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByEmployeeID(ctx, req.EmployeeID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate employee id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "employee id already registered")
	}

	student.EmployeeID = req.EmployeeID
	student.Name = req.Name
	student.Email = strings.ToLower(strings.TrimSpace(req.Email))
	student.SBU = models.ParseSBU(req.SBU)
	student.Designation = req.Designation
	student.ExperienceYears = req.ExperienceYears
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// Delete removes a student and, through the schema, their enrollments.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	return nil
}

// History returns a student's enrollments together with completion
// statistics. The completion rate counts withdrawn enrollments and approved
// enrollments that already finished; only completed ones count as complete.
func (s *StudentService) History(ctx context.Context, id string) (*models.StudentHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student history")
	}

	history := &models.StudentHistory{Enrollments: enrollments}
	counted := 0
	for _, e := range enrollments {
		switch e.ApprovalStatus {
		case models.ApprovalWithdrawn:
			counted++
		case models.ApprovalApproved:
			if e.CompletionStatus == models.CompletionCompleted || e.CompletionStatus == models.CompletionFailed {
				counted++
			}
		}
		if e.ApprovalStatus != models.ApprovalRejected {
			history.TotalCoursesAssigned++
		}
		if e.CompletionStatus == models.CompletionCompleted {
			history.CompletedCourses++
		}
	}
	if counted > 0 {
		history.OverallCompletionRate = float64(history.CompletedCourses) / float64(counted) * 100
	}
	return history, nil
}
