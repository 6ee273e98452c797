package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByNameAndBatchCode(ctx context.Context, name, batchCode, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	DeleteDetaching(ctx context.Context, id string) error
	ArchivePastEndDate(ctx context.Context, now time.Time) (int64, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Name                 string  `json:"name" validate:"required"`
	BatchCode            string  `json:"batch_code" validate:"required"`
	Description          *string `json:"description"`
	StartDate            string  `json:"start_date" validate:"required"`
	EndDate              *string `json:"end_date"`
	SeatLimit            int     `json:"seat_limit" validate:"required,gt=0"`
	PrerequisiteCourseID *string `json:"prerequisite_course_id"`
}

// UpdateCourseRequest describes course update payload.
type UpdateCourseRequest struct {
	Name                 string  `json:"name" validate:"required"`
	BatchCode            string  `json:"batch_code" validate:"required"`
	Description          *string `json:"description"`
	StartDate            string  `json:"start_date" validate:"required"`
	EndDate              *string `json:"end_date"`
	SeatLimit            int     `json:"seat_limit" validate:"required,gt=0"`
	PrerequisiteCourseID *string `json:"prerequisite_course_id"`
	Archived             *bool   `json:"archived"`
}

// CourseService manages course batches. Courses whose end date has passed
// are archived lazily before every listing.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	now       func() time.Time
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, now: func() time.Time { return time.Now().UTC() }, logger: logger}
}

// List returns courses after flushing ended ones into the archive.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	if archived, err := s.repo.ArchivePastEndDate(ctx, s.now()); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive ended courses")
	} else if archived > 0 {
		s.logger.Sugar().Infow("archived ended courses", "count", archived)
	}

	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
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
	return courses, pagination, nil
}

// Get returns a course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create adds a new course batch. Batch codes must be unique within a
// course name.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	startDate, endDate, err := s.parseDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByNameAndBatchCode(ctx, req.Name, req.BatchCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate batch code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch code already exists for this course")
	}
	if req.PrerequisiteCourseID != nil {
		if _, err := s.repo.FindByID(ctx, *req.PrerequisiteCourseID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite course")
		}
	}

	course := &models.Course{
		Name:                 req.Name,
		BatchCode:            req.BatchCode,
		Description:          req.Description,
		StartDate:            startDate,
		EndDate:              endDate,
		SeatLimit:            req.SeatLimit,
		PrerequisiteCourseID: req.PrerequisiteCourseID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course batch.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	startDate, endDate, err := s.parseDates(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByNameAndBatchCode(ctx, req.Name, req.BatchCode, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate batch code")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "batch code already exists for this course")
	}
	if req.SeatLimit < course.CurrentEnrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "seat limit cannot drop below current enrollment")
	}
	if req.PrerequisiteCourseID != nil {
		if *req.PrerequisiteCourseID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course cannot be its own prerequisite")
		}
		if _, err := s.repo.FindByID(ctx, *req.PrerequisiteCourseID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite course")
		}
	}

	course.Name = req.Name
	course.BatchCode = req.BatchCode
	course.Description = req.Description
	course.StartDate = startDate
	course.EndDate = endDate
	course.SeatLimit = req.SeatLimit
	course.PrerequisiteCourseID = req.PrerequisiteCourseID
	if req.Archived != nil {
		course.Archived = *req.Archived
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Archive flags a course as archived without deleting anything.
func (s *CourseService) Archive(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if course.Archived {
		return course, nil
	}
	course.Archived = true
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive course")
	}
	return course, nil
}

// Delete removes a course, detaching its enrollments so history keeps the
// course name and batch code.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteDetaching(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) parseDates(start string, end *string) (time.Time, *time.Time, error) {
	startDate, err := time.Parse("2006-01-02", start)
	if err != nil {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}
	if end == nil || *end == "" {
		return startDate, nil, nil
	}
	endDate, err := time.Parse("2006-01-02", *end)
	if err != nil {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "end_date must be YYYY-MM-DD")
	}
	if endDate.Before(startDate) {
		return time.Time{}, nil, appErrors.Clone(appErrors.ErrValidation, "end_date cannot precede start_date")
	}
	return startDate, &endDate, nil
}
