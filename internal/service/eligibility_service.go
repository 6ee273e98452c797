package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-enroll-api/internal/models"
	appErrors "github.com/noah-isme/course-enroll-api/pkg/errors"
)

type eligibilityEnrollmentReader interface {
	ExistsActive(ctx context.Context, studentID, courseID, excludeID string) (bool, error)
	HasCompleted(ctx context.Context, studentID, courseID string) (bool, error)
	CompletedCourseInYear(ctx context.Context, studentID string, year int, excludeCourseID string) (string, bool, error)
}

type eligibilityCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// Verdict is the outcome of an eligibility evaluation.
type Verdict struct {
	Status    models.EligibilityStatus
	Reason    *string
	CheckedAt time.Time
}

// Eligible reports whether the verdict allows approval.
func (v Verdict) Eligible() bool {
	return v.Status == models.EligibilityEligible
}

// EligibilityService evaluates whether a student may take a course. Checks
// run in a fixed order and short-circuit on the first failure:
// prerequisite, then duplicate, then annual limit. Verdicts are computed
// fresh on every call; they are never cached.
type EligibilityService struct {
	enrollments eligibilityEnrollmentReader
	courses     eligibilityCourseReader
	now         func() time.Time
	logger      *zap.Logger
}

// NewEligibilityService constructs EligibilityService.
func NewEligibilityService(enrollments eligibilityEnrollmentReader, courses eligibilityCourseReader, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{
		enrollments: enrollments,
		courses:     courses,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Evaluate runs the eligibility checks for a student against a course.
// excludeEnrollmentID removes one enrollment from the duplicate check, used
// when re-evaluating an existing enrollment (reapproval).
func (s *EligibilityService) Evaluate(ctx context.Context, studentID string, course *models.Course, excludeEnrollmentID string) (Verdict, error) {
	checkedAt := s.now()

	if course.PrerequisiteCourseID != nil {
		completed, err := s.enrollments.HasCompleted(ctx, studentID, *course.PrerequisiteCourseID)
		if err != nil {
			return Verdict{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
		}
		if !completed {
			reason := "prerequisite course not completed"
			if prereq, err := s.courses.FindByID(ctx, *course.PrerequisiteCourseID); err == nil {
				reason = fmt.Sprintf("prerequisite course not completed: %s", prereq.Name)
			} else if err != sql.ErrNoRows {
				return Verdict{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite course")
			}
			return Verdict{Status: models.EligibilityIneligiblePrerequisite, Reason: &reason, CheckedAt: checkedAt}, nil
		}
	}

	duplicate, err := s.enrollments.ExistsActive(ctx, studentID, course.ID, excludeEnrollmentID)
	if err != nil {
		return Verdict{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check duplicate enrollment")
	}
	if duplicate {
		reason := "student already has a pending or approved enrollment for this course"
		return Verdict{Status: models.EligibilityIneligibleDuplicate, Reason: &reason, CheckedAt: checkedAt}, nil
	}

	conflicting, found, err := s.enrollments.CompletedCourseInYear(ctx, studentID, checkedAt.Year(), course.ID)
	if err != nil {
		return Verdict{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check annual limit")
	}
	if found {
		reason := fmt.Sprintf("already completed a course this year: %s", conflicting)
		return Verdict{Status: models.EligibilityIneligibleAnnualLimit, Reason: &reason, CheckedAt: checkedAt}, nil
	}

	return Verdict{Status: models.EligibilityEligible, CheckedAt: checkedAt}, nil
}
